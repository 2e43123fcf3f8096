package channel

import (
	"sync"

	"github.com/catshadow/endpointchannel/metrics"
)

// EncryptionCodec encrypts and decrypts a single frame payload. A codec is
// produced from a handshake's connection context (see crypto/d2d.Context,
// which satisfies this interface) and is installed on exactly one channel
// via EnableEncryption.
type EncryptionCodec interface {
	Encode(payload []byte) ([]byte, error)
	Decode(payload []byte) ([]byte, error)
}

// TransportHooks is the small behavior interface a concrete transport
// supplies so BaseEndpointChannel never needs a subclass: just the medium
// it reports itself as, and the teardown it performs on Close. Mirrors the
// "no inheritance required" re-architecture note.
type TransportHooks interface {
	Medium() Medium
	CloseImpl() error
}

// BaseEndpointChannel is a named, ordered (input stream, output stream)
// pair with optional encryption, a pause gate, and idempotent close. At
// most one Read and one Write run concurrently; EnableEncryption takes both
// directions' locks so no frame ever straddles the plaintext/ciphertext
// transition. Close does not take them, so it can unblock an in-flight Read
// or Write.
type BaseEndpointChannel struct {
	name  string
	hooks TransportHooks
	in    InputStream
	out   OutputStream

	maxFrameSize int

	readMu  sync.Mutex
	writeMu sync.Mutex

	mu          sync.Mutex
	cond        *sync.Cond
	paused      bool
	closed      bool
	closeReason DisconnectionReason
	codec       EncryptionCodec
}

// NewBaseEndpointChannel constructs a channel over in/out, reporting
// hooks.Medium() as its transport. maxFrameSize of 0 selects
// DefaultMaxFrameSize.
func NewBaseEndpointChannel(name string, in InputStream, out OutputStream, hooks TransportHooks, maxFrameSize int) *BaseEndpointChannel {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	c := &BaseEndpointChannel{
		name:         name,
		hooks:        hooks,
		in:           in,
		out:          out,
		maxFrameSize: maxFrameSize,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Name returns the channel's name, as supplied at construction.
func (c *BaseEndpointChannel) Name() string { return c.name }

// GetMedium reports the transport this channel is layered over.
func (c *BaseEndpointChannel) GetMedium() Medium { return c.hooks.Medium() }

// GetType returns "<MEDIUM>" before EnableEncryption and
// "ENCRYPTED_<MEDIUM>" after.
func (c *BaseEndpointChannel) GetType() string {
	c.mu.Lock()
	encrypted := c.codec != nil
	c.mu.Unlock()

	medium := c.hooks.Medium().String()
	if encrypted {
		return "ENCRYPTED_" + medium
	}
	return medium
}

// waitForGate blocks while the channel is paused, returning an IoError
// (errors.Is(err, ErrIoError)) if Close happened instead of Resume. Caller
// must not hold c.mu.
func (c *BaseEndpointChannel) waitForGate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.paused && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return ioError(errClosedLocally)
	}
	return nil
}

func (c *BaseEndpointChannel) activeCodec() EncryptionCodec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codec
}

// Write encrypts (if enabled) and frames payload, sending it over the
// channel's output stream. Blocks while the channel is paused.
func (c *BaseEndpointChannel) Write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.waitForGate(); err != nil {
		return err
	}

	if codec := c.activeCodec(); codec != nil {
		encoded, err := codec.Encode(payload)
		if err != nil {
			return err
		}
		payload = encoded
	}

	if err := writeFrame(c.out, payload); err != nil {
		return err
	}
	metrics.RecordWrite(c.hooks.Medium().String())
	return nil
}

// Read blocks for and returns the next frame's payload, decrypting it if
// encryption is enabled. Blocks while the channel is paused.
func (c *BaseEndpointChannel) Read() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := c.waitForGate(); err != nil {
		return nil, err
	}

	frame, err := readFrame(c.in, c.maxFrameSize)
	if err != nil {
		return nil, err
	}

	codec := c.activeCodec()
	if codec == nil {
		metrics.RecordRead(c.hooks.Medium().String())
		return frame, nil
	}
	decoded, err := codec.Decode(frame)
	if err != nil {
		return nil, err
	}
	metrics.RecordRead(c.hooks.Medium().String())
	return decoded, nil
}

// EnableEncryption installs codec atomically: it takes both the read and
// write mutex (in that fixed order) so no Read or Write in flight can
// straddle the plaintext/ciphertext boundary. Callers must invoke this at
// a quiescent point, with no user Read/Write in flight.
func (c *BaseEndpointChannel) EnableEncryption(codec EncryptionCodec) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.codec = codec
	c.mu.Unlock()

	metrics.RecordEncryptionEnabled(c.hooks.Medium().String())
}

// Pause gates subsequent Read/Write calls until Resume or Close. Pause
// itself returns immediately; operations already past the gate are not
// interrupted.
func (c *BaseEndpointChannel) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume releases the pause gate, waking any Read/Write blocked on it.
func (c *BaseEndpointChannel) Resume() {
	c.mu.Lock()
	c.paused = false
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Close is idempotent: the first call records reason, runs the transport's
// CloseImpl hook, closes both streams, and wakes any parked Read/Write so
// they fail with IoError. Subsequent calls are no-ops.
func (c *BaseEndpointChannel) Close(reason DisconnectionReason) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeReason = reason
	c.mu.Unlock()

	// Best-effort teardown: Close itself is documented to succeed on
	// repeat calls, so an already-failing transport doesn't make Close
	// report an error the caller can't act on differently than they
	// already are (they're tearing down).
	_ = c.hooks.CloseImpl()
	_ = c.in.Close()
	_ = c.out.Close()

	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()

	metrics.RecordClose(c.hooks.Medium().String(), reason.String())
	return nil
}

// CloseReason returns the reason recorded by the first Close call, or
// UnknownDisconnectionReason if the channel is still open.
func (c *BaseEndpointChannel) CloseReason() DisconnectionReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

// Closed reports whether Close has been called.
func (c *BaseEndpointChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
