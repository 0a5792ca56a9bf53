package model

import (
	"errors"
	"fmt"
)

// Code is a per-item outcome of order processing or attribution.
type Code string

const (
	CodeSuccess Code = "success"

	// adapter errors
	CodeUnknownOrderKind        Code = "unknown-order-kind"
	CodeInvalidTokenSet         Code = "invalid-token-set"
	CodeInvalidSignature        Code = "invalid-signature"
	CodeInvalidListingTime      Code = "invalid-listing-time"
	CodeUnsupportedPaymentToken Code = "unsupported-payment-token"
	CodeFiltered                Code = "filtered"

	// validity errors
	CodeExpired Code = "expired"
	CodeInvalid Code = "invalid"

	// persistence conflicts
	CodeAlreadyExists Code = "already-exists"
	CodeRedundant     Code = "redundant"

	// cancellation observed during verification
	CodeCancelled Code = "cancelled"

	CodeNotFillable        Code = "not-fillable"
	CodeTraceUnavailable   Code = "trace-unavailable"
	CodeInvariantViolation Code = "invariant-violation"
)

// Class groups codes the way operators reason about them.
type Class string

const (
	ClassAdapter             Class = "AdapterError"
	ClassValidity            Class = "ValidityError"
	ClassPersistenceConflict Class = "PersistenceConflict"
	ClassDegradation         Class = "FillabilityDegradation"
	ClassFatal               Class = "FatalNotFillable"
	ClassTraceUnavailable    Class = "TraceUnavailable"
	ClassInvariantViolation  Class = "InvariantViolation"
)

func (c Code) Class() Class {
	switch c {
	case CodeUnknownOrderKind, CodeInvalidTokenSet, CodeInvalidSignature,
		CodeInvalidListingTime, CodeUnsupportedPaymentToken, CodeFiltered:
		return ClassAdapter
	case CodeExpired, CodeInvalid, CodeCancelled:
		return ClassValidity
	case CodeAlreadyExists, CodeRedundant:
		return ClassPersistenceConflict
	case CodeTraceUnavailable:
		return ClassTraceUnavailable
	case CodeInvariantViolation:
		return ClassInvariantViolation
	case CodeSuccess:
		return ""
	default:
		return ClassFatal
	}
}

var (
	ErrNotFound           = errors.New("not found")
	ErrTraceUnavailable   = errors.New("trace unavailable")
	ErrInvariantViolation = errors.New("attributed bps out of range")
)

// Rejection is a non-fatal, coded outcome for a single item.
type Rejection struct {
	Code   Code
	Reason string
}

func (r *Rejection) Error() string {
	if r.Reason == "" {
		return string(r.Code)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Reason)
}

// Reject builds a Rejection with a formatted reason.
func Reject(code Code, format string, args ...any) error {
	return &Rejection{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the outcome code carried by err. Errors without a code are
// fatal for the item.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var r *Rejection
	if errors.As(err, &r) {
		return r.Code
	}
	switch {
	case errors.Is(err, ErrTraceUnavailable):
		return CodeTraceUnavailable
	case errors.Is(err, ErrInvariantViolation):
		return CodeInvariantViolation
	}
	return CodeNotFillable
}

// OrderResult is the outcome of one item in an ingestion batch.
type OrderResult struct {
	ID     string            `json:"id,omitempty"`
	Kind   OrderKind         `json:"kind"`
	Code   Code              `json:"status"`
	Status FillabilityStatus `json:"fillability_status,omitempty"`
	Detail string            `json:"detail,omitempty"`
}
