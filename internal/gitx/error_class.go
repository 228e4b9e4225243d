// SPDX-License-Identifier: MIT
package gitx

import (
	"context"
	"errors"
	"strings"
)

// Error classes reported alongside remote failures.
const (
	ClassAuth          = "auth"
	ClassNetwork       = "network"
	ClassTimeout       = "timeout"
	ClassNotARepo      = "not_a_repo"
	ClassMissingRemote = "missing_remote"
	ClassUnknown       = "unknown"
)

// ClassifyError maps git/process errors into broad actionable categories.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTimeout
	}
	if errors.Is(err, ErrNotARepository) {
		return ClassNotARepo
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "permission denied", "authentication failed", "access denied", "publickey", "could not read username", "credential"):
		return ClassAuth
	case containsAny(msg, "could not resolve host", "network is unreachable", "connection refused", "connection timed out", "failed to connect", "unable to access", "temporary failure in name resolution", "tls handshake timeout"):
		return ClassNetwork
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ClassTimeout
	case containsAny(msg, "not a git repository"):
		return ClassNotARepo
	case containsAny(msg, "repository not found", "does not appear to be a git repository", "no such remote", "remote not found"):
		return ClassMissingRemote
	default:
		return ClassUnknown
	}
}

// Retryable reports whether a remote failure may succeed on another attempt.
// Auth failures, missing remotes and unparsable output are permanent for
// the run.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrMalformedOutput) {
		return false
	}
	switch ClassifyError(err) {
	case ClassAuth, ClassMissingRemote, ClassNotARepo:
		return false
	default:
		return true
	}
}

func containsAny(msg string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
