package viceprotocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for the binary monitor client.
var (
	// ErrNotConnected indicates an operation needed a live connection.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected indicates Connect was called while a connection
	// (live or still being established) exists.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrProtocolDesync indicates the receive stream could no longer be
	// framed: the leading byte was not STX, or unconsumed bytes passed the
	// receive buffer's high-water mark.
	ErrProtocolDesync = errors.New("protocol desync")

	// ErrShortPayload indicates a response body was shorter than its type
	// requires.
	ErrShortPayload = errors.New("short payload")

	// ErrStringTooLong indicates a string argument does not fit a one-byte
	// length prefix.
	ErrStringTooLong = errors.New("string longer than 255 bytes")
)

// ConnectionError represents a socket-level failure.
type ConnectionError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection failed: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, cause error) error {
	return &ConnectionError{Message: message, Cause: cause}
}

// ProtocolError is an error reported by the emulator in a response header.
type ProtocolError struct {
	Command   CommandType
	Code      ErrorCode
	RequestID uint32
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s (request $%X): %s", e.Command, e.RequestID, e.Code)
}

func newShortPayloadError(cmd CommandType, want, got int) error {
	return fmt.Errorf("%s: need %d bytes, have %d: %w", cmd, want, got, ErrShortPayload)
}
