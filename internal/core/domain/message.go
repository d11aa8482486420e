package domain

import "encoding/json"

// MessageKind enumerates the closed set of signaling message types.
type MessageKind string

const (
	// client -> server
	KindRegister     MessageKind = "register"
	KindCallRequest  MessageKind = "call-request"
	KindCallAccepted MessageKind = "call-accepted"
	KindCallRejected MessageKind = "call-rejected"
	KindOffer        MessageKind = "offer"
	KindAnswer       MessageKind = "answer"
	KindICECandidate MessageKind = "ice-candidate"
	KindEndCall      MessageKind = "end-call"

	// server -> client
	KindUserList         MessageKind = "userList"
	KindCallReceived     MessageKind = "call-received"
	KindCallEnded        MessageKind = "call-ended"
	KindUserDisconnected MessageKind = "user-disconnected"
)

// Inbound is the envelope the transport decodes from the wire. Payload is
// left raw; the service unmarshals it per kind.
type Inbound struct {
	Type    MessageKind     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is an envelope produced by the service and marshaled by the
// transport.
type Outbound struct {
	Type    MessageKind `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Delivery is one (connection, message) effect of handling an inbound
// message. Broadcast deliveries go to every live connection.
type Delivery struct {
	Conn      ConnID
	Broadcast bool
	Message   Outbound
}

// Effects is what the service hands back to the transport: messages to
// write and connections the transport should shut down (a superseded
// binding after re-register). The core itself never touches sockets.
type Effects struct {
	Deliveries []Delivery
	Close      []ConnID
}

// Deliver appends a unicast delivery.
func (e *Effects) Deliver(conn ConnID, msg Outbound) {
	e.Deliveries = append(e.Deliveries, Delivery{Conn: conn, Message: msg})
}

// Broadcast appends a broadcast delivery.
func (e *Effects) Broadcast(msg Outbound) {
	e.Deliveries = append(e.Deliveries, Delivery{Broadcast: true, Message: msg})
}

// Inbound payload shapes (client -> server).

type RegisterPayload struct {
	Identity Identity `json:"identity"`
}

type CallRequestPayload struct {
	TargetIdentity Identity `json:"targetIdentity"`
}

// CallAcceptPayload is sent by the callee back to the server; CallerID names
// the identity that initiated the call.
type CallAcceptPayload struct {
	CallerID Identity `json:"callerId"`
}

type CallRejectPayload struct {
	CallerID Identity `json:"callerId"`
}

type OfferPayload struct {
	TargetIdentity Identity        `json:"targetIdentity"`
	Offer          json.RawMessage `json:"offer"`
}

type AnswerPayload struct {
	TargetIdentity Identity        `json:"targetIdentity"`
	Answer         json.RawMessage `json:"answer"`
}

type ICECandidatePayload struct {
	TargetIdentity Identity        `json:"targetIdentity"`
	Candidate      json.RawMessage `json:"candidate"`
}

type EndCallPayload struct {
	TargetIdentity Identity `json:"targetIdentity"`
}

// Outbound payload shapes (server -> client). The sender's identity is
// attached under a role-specific field so the recipient can address its
// reply without a presence lookup of its own.

type UserListPayload struct {
	Identities []Identity `json:"identities"`
}

type CallReceivedPayload struct {
	CallerID Identity `json:"callerId"`
}

type CallAcceptedPayload struct {
	AccepterID Identity `json:"accepterId"`
}

type CallRejectedPayload struct {
	RejecterID Identity `json:"rejecterId"`
}

type OfferRelayPayload struct {
	Offer    json.RawMessage `json:"offer"`
	CallerID Identity        `json:"callerId"`
}

type AnswerRelayPayload struct {
	Answer     json.RawMessage `json:"answer"`
	AnswererID Identity        `json:"answererId"`
}

type ICECandidateRelayPayload struct {
	Candidate json.RawMessage `json:"candidate"`
	SenderID  Identity        `json:"senderId"`
}

type CallEndedPayload struct {
	EnderID Identity `json:"enderId"`
}

type UserDisconnectedPayload struct {
	Identity Identity `json:"identity"`
}
