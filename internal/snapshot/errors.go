// SPDX-License-Identifier: MIT
package snapshot

import (
	"errors"
	"fmt"

	"github.com/skaphos/refcheck/internal/model"
)

// ErrRemoteUnreachable is matched by every RemoteUnreachableError.
var ErrRemoteUnreachable = errors.New("remote unreachable")

// RemoteUnreachableError reports a remote that could not be queried or
// fetched after all retries.
type RemoteUnreachableError struct {
	Remote string
	// Kind is empty for fetch failures.
	Kind model.RefKind
	// Class is the gitx error class of the last failure.
	Class    string
	Attempts int
	Err      error
}

func (e *RemoteUnreachableError) Error() string {
	what := "fetch"
	if e.Kind != "" {
		what = "list " + e.Kind.Plural()
	}
	return fmt.Sprintf("remote %s unreachable (%s): %s failed after %d attempt(s): %v", e.Remote, e.Class, what, e.Attempts, e.Err)
}

func (e *RemoteUnreachableError) Unwrap() []error {
	return []error{ErrRemoteUnreachable, e.Err}
}
