package ift

import (
	"errors"
	"fmt"
)

// FetchError reports a failed patch retrieval. It carries the expanded URI
// of the patch and wraps the transport's error.
type FetchError struct {
	URI string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching patch %q: %v", e.URI, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrNonConvergence is returned when the extension loop stops making
// progress: a round plans the same patches as the round before, or the
// round limit runs out. It points at a broken patch map or at patches
// which do not deliver what their entries advertise.
var ErrNonConvergence = errors.New("patch rounds no longer make progress towards the target")
