package autocare

import (
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for upstream catalog operations. The client never retries;
// it classifies and lets the sync engine decide.
var (
	// ErrAuth means the upstream rejected our credentials. Fatal for the
	// whole sync run, not just the current entity.
	ErrAuth = errors.New("autocare: authentication failed")

	// ErrRateLimited and ErrServer are transient; the sync engine retries
	// them with bounded backoff.
	ErrRateLimited = errors.New("autocare: rate limited by server")
	ErrServer      = errors.New("autocare: server error")

	// ErrBadRequest covers non-auth 4xx responses. Fatal for the current
	// entity.
	ErrBadRequest = errors.New("autocare: bad request")
)

// Error wraps an underlying error with the operation and entity path.
type Error struct {
	Op   string // "enumerate"
	Path string // entity resource path
	Page int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("autocare %s [%s page %d]: %v", e.Op, e.Path, e.Page, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the error is worth retrying: server-side
// failures, rate limiting, and transport errors. Auth, other 4xx
// classifications, and malformed payloads are terminal.
func Transient(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}
