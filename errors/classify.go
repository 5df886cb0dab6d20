/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package errors

import (
	"context"
	"errors"
	"strings"
)

// Kind is the closed classification of storage errors consumed by the
// orchestrator's retry and fallback branches.
type Kind int

const (
	KindOther Kind = iota
	KindInvalidArgument
	KindUniqueViolation
	KindNotFound
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUniqueViolation:
		return "unique_violation"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "other"
	}
}

// providerCodes maps native error codes per provider to a Kind. Providers
// with structured codes should surface them as "<provider>:<code>" via
// CodedError; the substring table below remains the fallback classifier.
var providerCodes = map[string]map[string]Kind{
	"postgres": {
		"23505": KindUniqueViolation,
		"40001": KindTransient, // serialization failure
		"57014": KindTransient, // query canceled
	},
	"mysql": {
		"1062": KindUniqueViolation,
		"1205": KindTransient, // lock wait timeout
		"1213": KindTransient, // deadlock
	},
	"sqlite": {
		"1555": KindUniqueViolation, // SQLITE_CONSTRAINT_PRIMARYKEY
		"2067": KindUniqueViolation, // SQLITE_CONSTRAINT_UNIQUE
		"5":    KindTransient,       // SQLITE_BUSY
	},
	"dynamodb": {
		"ConditionalCheckFailedException":          KindUniqueViolation,
		"TransactionCanceledException":             KindUniqueViolation,
		"ProvisionedThroughputExceededException":   KindTransient,
		"RequestLimitExceeded":                     KindTransient,
		"InternalServerError":                      KindTransient,
	},
}

// substringTable is the default classifier for providers lacking structured
// codes. Order matters: first match wins.
var substringTable = []struct {
	fragment string
	kind     Kind
}{
	{"unique constraint", KindUniqueViolation},
	{"duplicate key", KindUniqueViolation},
	{"UNIQUE constraint", KindUniqueViolation},
	{"Duplicate entry", KindUniqueViolation},
	{"ConditionalCheckFailed", KindUniqueViolation},
	{"connection refused", KindTransient},
	{"connection reset", KindTransient},
	{"timeout", KindTransient},
	{"timed out", KindTransient},
	{"too many connections", KindTransient},
	{"not found", KindNotFound},
}

// CodedError attaches a provider error code to an underlying error so
// Classify can use the structured table instead of string matching.
type CodedError struct {
	Code string
	Err  error
}

func (e *CodedError) Error() string {
	return e.Code + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

// NewCodedError wraps err with a provider-native error code.
func NewCodedError(code string, err error) error {
	return &CodedError{Code: code, Err: err}
}

// Classify maps an error from the given provider onto the closed Kind set.
// Resolution order: sentinel/typed errors from this package, provider code
// table (when the error carries a CodedError), then the substring fallback.
func Classify(provider string, err error) Kind {
	if err == nil {
		return KindOther
	}
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrUniqueViolation):
		return KindUniqueViolation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		if codes, ok := providerCodes[provider]; ok {
			if kind, ok := codes[coded.Code]; ok {
				return kind
			}
		}
	}

	msg := err.Error()
	for _, entry := range substringTable {
		if strings.Contains(msg, entry.fragment) {
			return entry.kind
		}
	}
	return KindOther
}
