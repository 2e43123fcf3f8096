package ukey2

// ClientInit is the first message the client writes over the channel's
// unencrypted Write. It carries an ephemeral curve25519 public key and an
// ed25519 signing key the server uses to verify ClientFinish.
type ClientInit struct {
	Version          uint32
	Random           []byte
	PublicKey        []byte
	SigningPublicKey []byte
}

// ServerInit answers ClientInit with the server's own ephemeral key. It is
// sent wrapped in a signedEnvelope rather than signing itself, so the
// bytes a signature covers never include that same signature.
type ServerInit struct {
	Version          uint32
	Random           []byte
	PublicKey        []byte
	SigningPublicKey []byte
}

// signedEnvelope carries a CBOR-encoded payload alongside a signature over
// (some other known bytes || Payload), letting the payload's own encoding
// stay fixed while the signature travels alongside it instead of inside
// it.
type signedEnvelope struct {
	Payload   []byte
	Signature []byte
}

// ClientFinish completes the handshake: a signature, from the client's
// signing key, over the transcript of both init messages. Once the server
// verifies it, both sides derive the same auth token.
type ClientFinish struct {
	Signature []byte
}
