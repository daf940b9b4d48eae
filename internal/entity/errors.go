package entity

import "errors"

// Domain errors
var (
	// Workflow errors
	ErrState             = errors.New("state precondition violated")
	ErrUnknownStep       = errors.New("unknown step")
	ErrSessionNotFound   = errors.New("session not found")
	ErrNoCurrentQuestion = errors.New("no question is currently being worked on")

	// Provider errors
	ErrProvider           = errors.New("provider call failed")
	ErrStructuredResponse = errors.New("structured response failed validation")

	// File errors
	ErrInvalidExtension = errors.New("invalid file extension")
	ErrFileUnresolvable = errors.New("file reference cannot be resolved")

	// Transport errors
	ErrUnauthorized = errors.New("missing or invalid credential")
)
