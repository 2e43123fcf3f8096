package ukey2

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// ErrReplay is returned by the server side of the handshake when the
// computed auth token has already been recorded by a ReplayGuard.
var ErrReplay = errors.New("ukey2: auth token replay detected")

var authTokenBucket = []byte("auth_tokens")

// ReplayGuard persists every auth token a server has ever accepted in a
// bbolt bucket, so a captured-and-replayed handshake is rejected even
// across process restarts.
type ReplayGuard struct {
	db *bolt.DB
}

// OpenReplayGuard opens (creating if necessary) a bbolt database at path
// and ensures the auth-token bucket exists.
func OpenReplayGuard(path string) (*ReplayGuard, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(authTokenBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &ReplayGuard{db: db}, nil
}

// CheckAndRecord reports whether token has been seen before, and records
// it if not, as a single transaction so two concurrent handshakes
// presenting the same token can't both pass.
func (g *ReplayGuard) CheckAndRecord(token []byte) (seen bool, err error) {
	err = g.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(authTokenBucket)
		if b.Get(token) != nil {
			seen = true
			return nil
		}
		return b.Put(token, []byte{1})
	})
	return seen, err
}

// Close closes the underlying bbolt database.
func (g *ReplayGuard) Close() error { return g.db.Close() }
