package medium

import (
	"crypto/rand"
	"os"
	"sync"

	"github.com/catshadow/endpointchannel/internal/worker"
	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
	logging "gopkg.in/op/go-logging.v1"
)

const (
	logKeySize   = 32
	logNonceSize = 24
)

var cborHandle = new(codec.CborHandle)

// Event is one entry in a DiscoveryLogWriter's append-only record: a
// discovery-plane state change the simulated environment fanned out (or
// suppressed, for same-medium notifications).
type Event struct {
	Kind      string
	MediumID  string
	ServiceID string
}

// DiscoveryLogWriter persists every discovery Event an Environment fans
// out to an encrypted, atomically-rotated statefile: argon2 key stretch,
// secretbox seal, write-temp/rename-twice durability, a worker goroutine
// serializing all writes.
type DiscoveryLogWriter struct {
	worker.Worker

	log     *logging.Logger
	eventCh chan Event
	path    string
	key     [logKeySize]byte

	mu     sync.Mutex
	events []Event
}

// NewDiscoveryLogWriter derives a key from passphrase via argon2, loads
// any existing encrypted log at path, and starts the writer's worker
// goroutine.
func NewDiscoveryLogWriter(path string, passphrase string, log *logging.Logger) (*DiscoveryLogWriter, error) {
	secret := argon2.Key([]byte(passphrase), nil, 3, 32*1024, 4, logKeySize)
	w := &DiscoveryLogWriter{
		log:     log,
		eventCh: make(chan Event, 64),
		path:    path,
	}
	copy(w.key[:], secret)

	events, err := loadEvents(path, w.key)
	if err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, err
	}
	w.events = events

	w.Go(w.worker)
	return w, nil
}

func loadEvents(path string, key [logKeySize]byte) ([]Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < logNonceSize {
		return nil, errors.New("medium: discovery log truncated")
	}
	var nonce [logNonceSize]byte
	copy(nonce[:], raw[:logNonceSize])
	ciphertext := raw[logNonceSize:]
	plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, &key)
	if !ok {
		return nil, errors.New("medium: failed to decrypt discovery log")
	}
	var events []Event
	if err := codec.NewDecoderBytes(plaintext, cborHandle).Decode(&events); err != nil {
		return nil, err
	}
	return events, nil
}

// Append enqueues e for the worker goroutine to record and flush.
func (w *DiscoveryLogWriter) Append(e Event) {
	select {
	case w.eventCh <- e:
	case <-w.HaltCh():
	}
}

// Events returns a snapshot of every event recorded so far.
func (w *DiscoveryLogWriter) Events() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Event, len(w.events))
	copy(out, w.events)
	return out
}

func (w *DiscoveryLogWriter) worker() {
	defer w.Done()
	for {
		select {
		case <-w.HaltCh():
			return
		case e := <-w.eventCh:
			w.mu.Lock()
			w.events = append(w.events, e)
			snapshot := make([]Event, len(w.events))
			copy(snapshot, w.events)
			w.mu.Unlock()

			if err := w.flush(snapshot); err != nil {
				w.log.Errorf("medium: failed to write discovery log: %s", err)
			}
		}
	}
}

func (w *DiscoveryLogWriter) flush(events []Event) error {
	var plaintext []byte
	if err := codec.NewEncoderBytes(&plaintext, cborHandle).Encode(events); err != nil {
		return err
	}

	var nonce [logNonceSize]byte
	if _, err := rand.Reader.Read(nonce[:]); err != nil {
		return err
	}
	ciphertext := secretbox.Seal(nil, plaintext, &nonce, &w.key)
	out := append(nonce[:], ciphertext...)

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return err
	}
	if err := os.Remove(w.path + "~"); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(w.path, w.path+"~"); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return err
	}
	return os.Remove(w.path + "~")
}

// Close halts the writer's worker goroutine, waiting for any in-flight
// flush to finish.
func (w *DiscoveryLogWriter) Close() {
	w.Halt()
}
