package domain

import "errors"

var (
	ErrEndpointNotFound = errors.New("endpoint not found")
	ErrSessionNotFound  = errors.New("session not found")
)
