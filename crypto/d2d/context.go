// Package d2d implements the "D2D connection context" produced by a
// completed UKEY2-style handshake: a pair of directional secretbox keys
// and the encode/decode codec BaseEndpointChannel installs via
// EnableEncryption.
package d2d

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrDecrypt is returned by Decode when secretbox rejects a frame: the
// ciphertext was tampered with, truncated, or arrived out of the order the
// channel's per-direction mutex is supposed to guarantee.
var ErrDecrypt = errors.New("d2d: decrypt failed")

const keySize = 32

// Context is the per-channel encryption codec derived from a handshake's
// shared secret. It owns two directional keys (one for each side's write
// direction) and a monotonic counter per direction that doubles as the
// secretbox nonce, so no nonce needs to travel on the wire.
type Context struct {
	mu sync.Mutex

	writeKey     *memguard.LockedBuffer
	readKey      *memguard.LockedBuffer
	writeCounter uint64
	readCounter  uint64
}

// NewContext derives a Context from sharedSecret (the handshake's DH
// output) and authToken (bound into the HKDF info so a context can never
// be confused with one from a different handshake transcript). isClient
// picks which HKDF-derived key is used for which direction, so that the
// client's write key equals the server's read key and vice versa.
func NewContext(sharedSecret, authToken []byte, isClient bool) (*Context, error) {
	clientToServer, err := deriveDirectionalKey(sharedSecret, authToken, "UKEY2 v1 client->server")
	if err != nil {
		return nil, err
	}
	serverToClient, err := deriveDirectionalKey(sharedSecret, authToken, "UKEY2 v1 server->client")
	if err != nil {
		return nil, err
	}

	c := &Context{}
	if isClient {
		c.writeKey = memguard.NewBufferFromBytes(clientToServer)
		c.readKey = memguard.NewBufferFromBytes(serverToClient)
	} else {
		c.writeKey = memguard.NewBufferFromBytes(serverToClient)
		c.readKey = memguard.NewBufferFromBytes(clientToServer)
	}
	return c, nil
}

func deriveDirectionalKey(sharedSecret, authToken []byte, label string) ([]byte, error) {
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, sharedSecret, authToken, []byte(label))
	if _, err := r.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func counterNonce(counter uint64) [24]byte {
	var nonce [24]byte
	binary.BigEndian.PutUint64(nonce[:8], counter)
	return nonce
}

// Encode seals payload under the next write-direction nonce. Satisfies
// channel.EncryptionCodec.
func (c *Context) Encode(payload []byte) ([]byte, error) {
	c.mu.Lock()
	nonce := counterNonce(c.writeCounter)
	c.writeCounter++
	key := c.writeKey.ByteArray32()
	c.mu.Unlock()

	return secretbox.Seal(nil, payload, &nonce, key), nil
}

// Decode opens a frame sealed by the peer's Encode. Satisfies
// channel.EncryptionCodec.
func (c *Context) Decode(payload []byte) ([]byte, error) {
	c.mu.Lock()
	nonce := counterNonce(c.readCounter)
	c.readCounter++
	key := c.readKey.ByteArray32()
	c.mu.Unlock()

	out, ok := secretbox.Open(nil, payload, &nonce, key)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}

// Destroy wipes both directional keys. Safe to call more than once.
func (c *Context) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeKey != nil {
		c.writeKey.Destroy()
	}
	if c.readKey != nil {
		c.readKey.Destroy()
	}
}
