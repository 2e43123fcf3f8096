package ukey2

import (
	"time"

	"github.com/catshadow/endpointchannel/channel"
	"github.com/catshadow/endpointchannel/crypto/d2d"
	"github.com/catshadow/endpointchannel/internal/worker"
	"github.com/catshadow/endpointchannel/metrics"
	"github.com/pkg/errors"
	logging "gopkg.in/op/go-logging.v1"
)

// ErrTimeout is returned to on_failure (via the callback's error, not a
// return value, since Start* does not itself return an error) when the
// handshake does not complete within its deadline.
var ErrTimeout = errors.New("ukey2: handshake deadline exceeded")

// DefaultDeadline is the wall-clock bound the base spec calls out as a
// suggested 5 second default.
const DefaultDeadline = 5 * time.Second

// OnSuccess is invoked exactly once, on the handshake worker, when a
// handshake completes: it mirrors on_success(endpoint_id, handshake,
// auth_token, raw_auth_token) from the base spec, with "handshake" (the
// connection context) and "auth_token" collapsed into ctx/authToken.
// rawAuthToken receives the same bytes as authToken; the pre-HMAC
// transcript is not passed to the callback.
type OnSuccess func(endpointID string, ctx *d2d.Context, authToken, rawAuthToken []byte)

// OnFailure is invoked exactly once when the handshake fails for any
// reason (IoError, ProtocolError, verification failure, replay, or
// timeout); err identifies the cause.
type OnFailure func(endpointID string, ch *channel.BaseEndpointChannel, err error)

// Callbacks bundles the pair of callbacks a Start* call takes.
type Callbacks struct {
	OnSuccess OnSuccess
	OnFailure OnFailure
}

// HandshakeRunner drives client and server handshakes on background
// goroutines tracked by an internal worker.Worker, so a caller can Halt
// the runner to wait for every in-flight handshake to report a result.
type HandshakeRunner struct {
	worker.Worker

	deadline time.Duration
	guard    *ReplayGuard
	log      *logging.Logger
}

// NewHandshakeRunner constructs a runner with the given deadline (0
// selects DefaultDeadline) and an optional replay guard consulted by the
// server side only; guard may be nil to disable replay checking.
func NewHandshakeRunner(deadline time.Duration, guard *ReplayGuard, log *logging.Logger) *HandshakeRunner {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &HandshakeRunner{deadline: deadline, guard: guard, log: log}
}

type handshakeResult struct {
	ctx       *d2d.Context
	authToken []byte
	err       error
}

// StartClient launches the client side of the handshake over ch on a
// tracked goroutine, invoking exactly one of cb.OnSuccess/cb.OnFailure
// once the handshake completes or the deadline expires.
func (r *HandshakeRunner) StartClient(endpointID string, ch *channel.BaseEndpointChannel, cb Callbacks) {
	r.Go(func() {
		defer r.Done()
		r.run(endpointID, ch, cb, "client", func() (*d2d.Context, []byte, error) {
			return runClient(ch)
		})
	})
}

// StartServer launches the server side of the handshake over ch on a
// tracked goroutine, symmetric to StartClient.
func (r *HandshakeRunner) StartServer(endpointID string, ch *channel.BaseEndpointChannel, cb Callbacks) {
	r.Go(func() {
		defer r.Done()
		r.run(endpointID, ch, cb, "server", func() (*d2d.Context, []byte, error) {
			return runServer(ch, r.guard)
		})
	})
}

func (r *HandshakeRunner) run(endpointID string, ch *channel.BaseEndpointChannel, cb Callbacks, role string, fn func() (*d2d.Context, []byte, error)) {
	resultCh := make(chan handshakeResult, 1)
	go func() {
		ctx, authToken, err := fn()
		resultCh <- handshakeResult{ctx: ctx, authToken: authToken, err: err}
	}()

	timer := time.NewTimer(r.deadline)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			if r.log != nil {
				r.log.Warningf("ukey2 %s handshake failed for %s: %v", role, endpointID, res.err)
			}
			metrics.RecordHandshakeOutcome(role, "failure")
			cb.OnFailure(endpointID, ch, res.err)
			return
		}
		metrics.RecordHandshakeOutcome(role, "success")
		cb.OnSuccess(endpointID, res.ctx, res.authToken, res.authToken)
	case <-timer.C:
		metrics.RecordHandshakeOutcome(role, "timeout")
		if r.log != nil {
			r.log.Warningf("ukey2 %s handshake timed out for %s", role, endpointID)
		}
		cb.OnFailure(endpointID, ch, ErrTimeout)
	case <-r.HaltCh():
		cb.OnFailure(endpointID, ch, ErrTimeout)
	}
}
