package channel

import (
	"github.com/pkg/errors"
)

// ErrIoError is returned (optionally wrapped via github.com/pkg/errors) by
// an InputStream/OutputStream/Channel operation when the underlying
// transport has failed or been closed. It is fatal to the direction it was
// raised on.
var ErrIoError = errors.New("endpointchannel: io error")

// ErrProtocolError is returned when a frame declares a length above
// MAX_FRAME, or a handshake message cannot be parsed. It is fatal to the
// operation that raised it.
var ErrProtocolError = errors.New("endpointchannel: protocol error")

// ErrClosed names the closed-channel condition. No operation in this
// package returns it: Read and Write on a channel that has already been
// closed via Close fail with ErrIoError.
var ErrClosed = errors.New("endpointchannel: channel closed")

// errClosedLocally and errPeerClosed are the two causes Pipe ever raises;
// kept distinct so a future caller can tell "I closed this" from "the other
// side went away" without string-matching.
var (
	errClosedLocally = errors.New("closed locally")
	errPeerClosed    = errors.New("peer closed")
)

// sentinelError pairs a cause with one of this package's exported sentinels
// so errors.Is(err, ErrIoError) succeeds regardless of the underlying cause,
// while errors.Unwrap(err) still recovers it. github.com/pkg/errors.Wrap
// does not give the wrapped value this sentinel identity (it wraps the
// cause itself, not a fixed sentinel plus cause), so the two are kept
// separate: pkg/errors annotates with a stack trace, sentinelError carries
// the errors.Is contract.
type sentinelError struct {
	sentinel error
	cause    error
}

func (e *sentinelError) Error() string { return e.sentinel.Error() + ": " + e.cause.Error() }
func (e *sentinelError) Unwrap() error { return e.cause }
func (e *sentinelError) Is(target error) bool { return target == e.sentinel }

// ioError wraps cause (annotated with a stack trace via pkg/errors) so that
// errors.Is(err, ErrIoError) succeeds and errors.Unwrap(err) still recovers
// the original failure, mirroring the sentinel-plus-wrap style of
// other_examples' smux session.
func ioError(cause error) error {
	if cause == nil {
		return ErrIoError
	}
	return &sentinelError{sentinel: ErrIoError, cause: errors.WithStack(cause)}
}

func protocolError(msg string) error {
	return &sentinelError{sentinel: ErrProtocolError, cause: errors.New(msg)}
}

// InputStream is a blocking, byte-oriented read side of a transport. Read
// returns up to size bytes; implementations may return fewer. Close is
// idempotent and causes a concurrently blocked Read, or the next call, to
// fail with ErrIoError.
type InputStream interface {
	Read(size int) ([]byte, error)
	Close() error
}

// OutputStream is the blocking, byte-oriented write side of a transport.
// Close is idempotent and causes a concurrently blocked Write, or the next
// call, to fail with ErrIoError.
type OutputStream interface {
	Write(p []byte) error
	Close() error
}
