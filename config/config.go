// Package config loads the TOML-sourced tunables shared by the channel,
// handshake and medium-environment packages.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds every tunable this module exposes. A zero-value numeric
// field selects the default documented on that field, applied by the
// constructor that consumes it.
type Config struct {
	// MaxFrameSize bounds a single frame's payload length. 0 selects
	// channel.DefaultMaxFrameSize.
	MaxFrameSize int `toml:"max_frame_size"`

	// HandshakeDeadline bounds how long a handshake may run before
	// on_failure fires with ukey2.ErrTimeout. 0 selects
	// ukey2.DefaultDeadline.
	HandshakeDeadline time.Duration `toml:"handshake_deadline"`

	// PipeChunkSize is the unit channel.Pipe reads/buffers in. 0 selects
	// channel.ChunkSize.
	PipeChunkSize int `toml:"pipe_chunk_size"`

	// UseValidPeerConnection mirrors the source EnvironmentConfig field of
	// the same name: whether the simulated WebRTC peer connection should
	// behave as if ICE succeeded.
	UseValidPeerConnection bool `toml:"use_valid_peer_connection"`

	// PeerConnectionLatency is injected before a simulated WebRTC
	// signaling message is delivered.
	PeerConnectionLatency time.Duration `toml:"peer_connection_latency"`

	// DiscoveryLogPath, if non-empty, is where medium.Environment persists
	// its encrypted discovery-event log. Empty disables logging.
	DiscoveryLogPath string `toml:"discovery_log_path"`

	// DiscoveryLogPassphrase derives the discovery log's encryption key
	// via argon2.
	DiscoveryLogPassphrase string `toml:"discovery_log_passphrase"`
}

// Default returns a Config with every documented default applied.
func Default() Config {
	return Config{
		UseValidPeerConnection: true,
	}
}

// Load reads and parses a TOML file at path into a Config seeded with
// Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: decoding "+path)
	}
	return cfg, nil
}
