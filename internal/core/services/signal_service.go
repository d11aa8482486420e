package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"sigrelay/internal/core/domain"
	"sigrelay/internal/core/ports"

	"go.uber.org/zap"
)

type signalService struct {
	endpoints ports.EndpointRepository
	sessions  ports.SessionRepository
	metrics   ports.MetricsRecorder
	logger    *zap.SugaredLogger

	// One mutex guards the combined registry+session state: every handler
	// runs to completion under it, so compound operations like disconnect
	// cleanup are race-free without further coordination.
	mu sync.Mutex
}

func NewSignalService(endpoints ports.EndpointRepository, sessions ports.SessionRepository, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) ports.SignalService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &signalService{
		endpoints: endpoints,
		sessions:  sessions,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *signalService) Register(ctx context.Context, conn domain.ConnID, identity domain.Identity) (domain.Effects, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var effects domain.Effects

	prev, replaced, err := s.endpoints.Register(ctx, identity, conn)
	if err != nil {
		return effects, fmt.Errorf("failed to register %s: %w", identity, err)
	}
	if replaced {
		// Last-writer-wins: the stale connection is handed to the
		// transport for closing.
		effects.Close = append(effects.Close, prev)
		s.logger.Infow("superseding previous connection", "identity", identity, "prev_conn", prev)
	}

	s.logger.Infow("identity registered", "identity", identity, "conn", conn, "replaced", replaced)

	if err := s.broadcastPresence(ctx, &effects); err != nil {
		return effects, err
	}
	return effects, nil
}

func (s *signalService) HandleMessage(ctx context.Context, sender domain.Identity, msg domain.Inbound) (domain.Effects, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.RecordMessage(msg.Type)

	switch msg.Type {
	case domain.KindCallRequest:
		return s.handleCallRequest(ctx, sender, msg.Payload)
	case domain.KindCallAccepted:
		return s.handleCallAccepted(ctx, sender, msg.Payload)
	case domain.KindCallRejected:
		return s.handleCallRejected(ctx, sender, msg.Payload)
	case domain.KindOffer:
		return s.handleOffer(ctx, sender, msg.Payload)
	case domain.KindAnswer:
		return s.handleAnswer(ctx, sender, msg.Payload)
	case domain.KindICECandidate:
		return s.handleICECandidate(ctx, sender, msg.Payload)
	case domain.KindEndCall:
		return s.handleEndCall(ctx, sender, msg.Payload)
	default:
		return domain.Effects{}, fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (s *signalService) handleCallRequest(ctx context.Context, sender domain.Identity, payload json.RawMessage) (domain.Effects, error) {
	var effects domain.Effects

	var req domain.CallRequestPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return effects, fmt.Errorf("invalid call-request payload: %w", err)
	}
	if req.TargetIdentity == "" {
		return effects, fmt.Errorf("call-request requires targetIdentity")
	}

	targetConn, ok := s.resolve(ctx, domain.KindCallRequest, sender, req.TargetIdentity)
	if !ok {
		// Unreachable target: no message, no session.
		return effects, nil
	}

	session, created, err := s.sessions.Open(ctx, sender, req.TargetIdentity)
	if err != nil {
		return effects, fmt.Errorf("failed to open session: %w", err)
	}
	if created {
		s.metrics.RecordSessionOpened()
		s.updateSessionGauge(ctx)
	}

	s.logger.Infow("call requested", "caller", sender, "callee", req.TargetIdentity, "session", session.ID)

	effects.Deliver(targetConn, domain.Outbound{
		Type:    domain.KindCallReceived,
		Payload: domain.CallReceivedPayload{CallerID: sender},
	})
	return effects, nil
}

func (s *signalService) handleCallAccepted(ctx context.Context, sender domain.Identity, payload json.RawMessage) (domain.Effects, error) {
	var effects domain.Effects

	var req domain.CallAcceptPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return effects, fmt.Errorf("invalid call-accepted payload: %w", err)
	}

	callerConn, ok := s.resolve(ctx, domain.KindCallAccepted, sender, req.CallerID)
	if !ok {
		return effects, nil
	}

	accepted, err := s.sessions.Accept(ctx, domain.PairKey(sender, req.CallerID), sender)
	if err != nil {
		return effects, fmt.Errorf("failed to accept session: %w", err)
	}
	if !accepted {
		// Stale or spoofed accept: no-op, nothing signaled back.
		s.metrics.RecordRelayDropped(domain.KindCallAccepted, "stale_session")
		s.logger.Infow("dropping stale accept", "accepter", sender, "caller", req.CallerID)
		return effects, nil
	}

	s.logger.Infow("call accepted", "accepter", sender, "caller", req.CallerID)

	effects.Deliver(callerConn, domain.Outbound{
		Type:    domain.KindCallAccepted,
		Payload: domain.CallAcceptedPayload{AccepterID: sender},
	})
	return effects, nil
}

func (s *signalService) handleCallRejected(ctx context.Context, sender domain.Identity, payload json.RawMessage) (domain.Effects, error) {
	var effects domain.Effects

	var req domain.CallRejectPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return effects, fmt.Errorf("invalid call-rejected payload: %w", err)
	}

	callerConn, ok := s.resolve(ctx, domain.KindCallRejected, sender, req.CallerID)
	if !ok {
		return effects, nil
	}

	// Rejection ends the session, same lifecycle path as end-call.
	ended, err := s.sessions.End(ctx, domain.PairKey(sender, req.CallerID))
	if err != nil {
		return effects, fmt.Errorf("failed to end session: %w", err)
	}
	if !ended {
		s.metrics.RecordRelayDropped(domain.KindCallRejected, "stale_session")
		s.logger.Infow("dropping stale reject", "rejecter", sender, "caller", req.CallerID)
		return effects, nil
	}
	s.metrics.RecordSessionEnded()
	s.updateSessionGauge(ctx)

	s.logger.Infow("call rejected", "rejecter", sender, "caller", req.CallerID)

	effects.Deliver(callerConn, domain.Outbound{
		Type:    domain.KindCallRejected,
		Payload: domain.CallRejectedPayload{RejecterID: sender},
	})
	return effects, nil
}

func (s *signalService) handleOffer(ctx context.Context, sender domain.Identity, payload json.RawMessage) (domain.Effects, error) {
	var effects domain.Effects

	var req domain.OfferPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return effects, fmt.Errorf("invalid offer payload: %w", err)
	}

	targetConn, ok := s.resolve(ctx, domain.KindOffer, sender, req.TargetIdentity)
	if !ok {
		return effects, nil
	}

	s.logger.Debugw("routing offer", "from", sender, "to", req.TargetIdentity, "sdp_length", len(req.Offer))

	// The SDP body is forwarded verbatim, never parsed.
	effects.Deliver(targetConn, domain.Outbound{
		Type:    domain.KindOffer,
		Payload: domain.OfferRelayPayload{Offer: req.Offer, CallerID: sender},
	})
	return effects, nil
}

func (s *signalService) handleAnswer(ctx context.Context, sender domain.Identity, payload json.RawMessage) (domain.Effects, error) {
	var effects domain.Effects

	var req domain.AnswerPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return effects, fmt.Errorf("invalid answer payload: %w", err)
	}

	targetConn, ok := s.resolve(ctx, domain.KindAnswer, sender, req.TargetIdentity)
	if !ok {
		return effects, nil
	}

	s.logger.Debugw("routing answer", "from", sender, "to", req.TargetIdentity, "sdp_length", len(req.Answer))

	effects.Deliver(targetConn, domain.Outbound{
		Type:    domain.KindAnswer,
		Payload: domain.AnswerRelayPayload{Answer: req.Answer, AnswererID: sender},
	})
	return effects, nil
}

func (s *signalService) handleICECandidate(ctx context.Context, sender domain.Identity, payload json.RawMessage) (domain.Effects, error) {
	var effects domain.Effects

	var req domain.ICECandidatePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return effects, fmt.Errorf("invalid ice-candidate payload: %w", err)
	}

	targetConn, ok := s.resolve(ctx, domain.KindICECandidate, sender, req.TargetIdentity)
	if !ok {
		return effects, nil
	}

	s.logger.Debugw("routing ice candidate", "from", sender, "to", req.TargetIdentity)

	effects.Deliver(targetConn, domain.Outbound{
		Type:    domain.KindICECandidate,
		Payload: domain.ICECandidateRelayPayload{Candidate: req.Candidate, SenderID: sender},
	})
	return effects, nil
}

func (s *signalService) handleEndCall(ctx context.Context, sender domain.Identity, payload json.RawMessage) (domain.Effects, error) {
	var effects domain.Effects

	var req domain.EndCallPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return effects, fmt.Errorf("invalid end-call payload: %w", err)
	}

	targetConn, ok := s.resolve(ctx, domain.KindEndCall, sender, req.TargetIdentity)
	if !ok {
		return effects, nil
	}

	ended, err := s.sessions.End(ctx, domain.PairKey(sender, req.TargetIdentity))
	if err != nil {
		return effects, fmt.Errorf("failed to end session: %w", err)
	}
	if !ended {
		// Second end-call for the same pair: no message, no error.
		s.metrics.RecordRelayDropped(domain.KindEndCall, "stale_session")
		s.logger.Infow("dropping stale end-call", "ender", sender, "target", req.TargetIdentity)
		return effects, nil
	}
	s.metrics.RecordSessionEnded()
	s.updateSessionGauge(ctx)

	s.logger.Infow("call ended", "ender", sender, "target", req.TargetIdentity)

	effects.Deliver(targetConn, domain.Outbound{
		Type:    domain.KindCallEnded,
		Payload: domain.CallEndedPayload{EnderID: sender},
	})
	return effects, nil
}

func (s *signalService) Disconnect(ctx context.Context, conn domain.ConnID, identity domain.Identity) (domain.Effects, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var effects domain.Effects

	current, err := s.endpoints.Lookup(ctx, identity)
	if err != nil {
		if errors.Is(err, domain.ErrEndpointNotFound) {
			return effects, nil
		}
		return effects, fmt.Errorf("failed to look up %s: %w", identity, err)
	}
	if current != conn {
		// The identity re-registered on a newer connection; this close
		// must not tear down the fresh binding or its sessions.
		s.logger.Infow("skipping cleanup for superseded connection", "identity", identity, "conn", conn)
		return effects, nil
	}

	sessions, err := s.sessions.FindByParticipant(ctx, identity)
	if err != nil {
		return effects, fmt.Errorf("failed to enumerate sessions of %s: %w", identity, err)
	}
	for _, session := range sessions {
		other, ok := session.OtherParty(identity)
		if ok {
			if otherConn, err := s.endpoints.Lookup(ctx, other); err == nil {
				effects.Deliver(otherConn, domain.Outbound{
					Type:    domain.KindCallEnded,
					Payload: domain.CallEndedPayload{EnderID: identity},
				})
			}
		}
		ended, err := s.sessions.End(ctx, session.ID)
		if err != nil {
			return effects, fmt.Errorf("failed to end session %s: %w", session.ID, err)
		}
		if ended {
			s.metrics.RecordSessionEnded()
		}
	}
	s.updateSessionGauge(ctx)

	if err := s.endpoints.Unregister(ctx, identity); err != nil {
		return effects, fmt.Errorf("failed to unregister %s: %w", identity, err)
	}

	s.logger.Infow("identity disconnected", "identity", identity, "sessions_closed", len(sessions))

	if err := s.broadcastPresence(ctx, &effects); err != nil {
		return effects, err
	}

	effects.Broadcast(domain.Outbound{
		Type:    domain.KindUserDisconnected,
		Payload: domain.UserDisconnectedPayload{Identity: identity},
	})
	s.metrics.RecordBroadcast(domain.KindUserDisconnected)

	return effects, nil
}

// resolve looks up the target's connection. A missing target is resolved
// immediately as a silent no-op: logged, counted, never surfaced to the
// sender, never queued.
func (s *signalService) resolve(ctx context.Context, kind domain.MessageKind, sender, target domain.Identity) (domain.ConnID, bool) {
	conn, err := s.endpoints.Lookup(ctx, target)
	if err != nil {
		s.metrics.RecordRelayDropped(kind, "target_unreachable")
		s.logger.Infow("dropping relay to unreachable target",
			"kind", kind,
			"sender", sender,
			"target", target,
		)
		return "", false
	}
	return conn, true
}

func (s *signalService) broadcastPresence(ctx context.Context, effects *domain.Effects) error {
	identities, err := s.endpoints.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("failed to list identities: %w", err)
	}
	s.metrics.SetRegisteredIdentities(len(identities))
	s.metrics.RecordBroadcast(domain.KindUserList)

	effects.Broadcast(domain.Outbound{
		Type:    domain.KindUserList,
		Payload: domain.UserListPayload{Identities: identities},
	})
	return nil
}

func (s *signalService) updateSessionGauge(ctx context.Context) {
	if n, err := s.sessions.Count(ctx); err == nil {
		s.metrics.SetActiveSessions(n)
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordMessage(domain.MessageKind)              {}
func (nopMetrics) RecordRelayDropped(domain.MessageKind, string) {}
func (nopMetrics) RecordBroadcast(domain.MessageKind)            {}
func (nopMetrics) RecordSessionOpened()                          {}
func (nopMetrics) RecordSessionEnded()                           {}
func (nopMetrics) SetRegisteredIdentities(int)                   {}
func (nopMetrics) SetActiveSessions(int)                         {}
