// Package persona implements the request/response client personas use to
// exchange work over the message transport, and the consumer pool that
// routes inbound requests to the correct persona's business logic.
package persona

import "errors"

// ErrPersonaTimeout is returned by WaitForCompletion when no matching
// response arrives within the caller's deadline.
var ErrPersonaTimeout = errors.New("persona: timed out waiting for completion")
