package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the read and write paths.
var (
	// ErrInvalidAmount rejects negative, over-precise, or overflowing amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrMalformedEvent marks a log entry that carries no data payload.
	ErrMalformedEvent = errors.New("malformed event: missing data payload")

	// ErrConfirmTimeout is returned when confirmation waiting exhausts its
	// retry budget or deadline.
	ErrConfirmTimeout = errors.New("confirmation timed out")
)

// InvalidParametersError names the first offending field of a command.
type InvalidParametersError struct {
	Field  string
	Reason string
}

func (e *InvalidParametersError) Error() string {
	return fmt.Sprintf("invalid parameters: %s: %s", e.Field, e.Reason)
}

// DecodeError records a decode failure for a single log entry. Decode
// failures are isolated per entry and never abort a whole refresh.
type DecodeError struct {
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Reason      string `json:"reason"`
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s:%d: %s", e.TxHash, e.LogIndex, e.Reason)
}

// TransportError wraps a network-level failure. Retryable by the caller.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RevertedError reports an operation that was broadcast and then reverted
// on-chain. Terminal: resubmission is a new operation, never automatic.
type RevertedError struct {
	TxHash string
	Reason string
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("reverted %s: %s", e.TxHash, e.Reason)
}
