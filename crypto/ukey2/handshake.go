// Package ukey2 implements a UKEY2-style Diffie-Hellman handshake: two
// peers exchange CLIENT_INIT/SERVER_INIT/CLIENT_FINISH messages over a
// channel.BaseEndpointChannel's unencrypted Read/Write, authenticate each
// other's ephemeral curve25519 key with an ed25519 signature, and derive a
// d2d.Context plus an auth token both sides agree on.
package ukey2

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"github.com/catshadow/endpointchannel/channel"
	"github.com/catshadow/endpointchannel/crypto/d2d"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
)

// Version is the only handshake version this package speaks.
const Version = 1

const (
	randomSize     = 32
	privateKeySize = 32
)

// ErrVerification is returned when a peer's signature over the handshake
// transcript does not check out.
var ErrVerification = errors.New("ukey2: signature verification failed")

// ErrMalformed is returned when a handshake message cannot be decoded. It
// wraps channel.ErrProtocolError, so errors.Is matches either.
var ErrMalformed = errors.Wrap(channel.ErrProtocolError, "ukey2: malformed handshake message")

type keyPair struct {
	priv [privateKeySize]byte
	pub  [32]byte
}

func generateKeyPair() (keyPair, error) {
	var kp keyPair
	if _, err := rand.Read(kp.priv[:]); err != nil {
		return kp, err
	}
	// Standard curve25519 clamping.
	kp.priv[0] &= 248
	kp.priv[31] &= 127
	kp.priv[31] |= 64
	curve25519.ScalarBaseMult(&kp.pub, &kp.priv)
	return kp, nil
}

func randomNonce() ([]byte, error) {
	b := make([]byte, randomSize)
	_, err := rand.Read(b)
	return b, err
}

// transcript is the bytes both peers feed into every signature and the
// auth token HMAC: the CBOR encoding of ClientInit followed by the CBOR
// encoding of ServerInit's payload, exactly as exchanged on the wire.
func transcript(clientInitBytes, serverInitPayload []byte) []byte {
	out := make([]byte, 0, len(clientInitBytes)+len(serverInitPayload))
	out = append(out, clientInitBytes...)
	out = append(out, serverInitPayload...)
	return out
}

func deriveAuthToken(t []byte) []byte {
	mac := hmac.New(sha256.New, t)
	mac.Write([]byte("UKEY2 v1 auth"))
	return mac.Sum(nil)
}

func marshalEnvelope(payload []byte, signature []byte) ([]byte, error) {
	return cbor.Marshal(signedEnvelope{Payload: payload, Signature: signature})
}

func unmarshalEnvelope(b []byte) (signedEnvelope, error) {
	var env signedEnvelope
	if err := cbor.Unmarshal(b, &env); err != nil {
		return env, errors.Wrap(ErrMalformed, err.Error())
	}
	return env, nil
}

// runClient drives the client side of the handshake to completion over ch,
// returning the derived connection context and auth token, or an error.
func runClient(ch *channel.BaseEndpointChannel) (*d2d.Context, []byte, error) {
	dh, err := generateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	signPub, signPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	clientRandom, err := randomNonce()
	if err != nil {
		return nil, nil, err
	}

	clientInitBytes, err := cbor.Marshal(ClientInit{
		Version:          Version,
		Random:           clientRandom,
		PublicKey:        dh.pub[:],
		SigningPublicKey: signPub,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Write(clientInitBytes); err != nil {
		return nil, nil, err
	}

	serverEnvelopeBytes, err := ch.Read()
	if err != nil {
		return nil, nil, err
	}
	serverEnvelope, err := unmarshalEnvelope(serverEnvelopeBytes)
	if err != nil {
		return nil, nil, err
	}
	var serverInit ServerInit
	if err := cbor.Unmarshal(serverEnvelope.Payload, &serverInit); err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}

	t := transcript(clientInitBytes, serverEnvelope.Payload)
	if !ed25519.Verify(ed25519.PublicKey(serverInit.SigningPublicKey), t, serverEnvelope.Signature) {
		return nil, nil, ErrVerification
	}

	var peerPub [32]byte
	copy(peerPub[:], serverInit.PublicKey)
	var sharedSecret [32]byte
	curve25519.ScalarMult(&sharedSecret, &dh.priv, &peerPub)

	authToken := deriveAuthToken(t)

	finishBytes, err := cbor.Marshal(ClientFinish{Signature: ed25519.Sign(signPriv, t)})
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Write(finishBytes); err != nil {
		return nil, nil, err
	}

	if _, err := ch.Read(); err != nil { // Done
		return nil, nil, err
	}

	ctx, err := d2d.NewContext(sharedSecret[:], authToken, true)
	if err != nil {
		return nil, nil, err
	}
	return ctx, authToken, nil
}

// runServer drives the server side of the handshake to completion over ch.
func runServer(ch *channel.BaseEndpointChannel, guard *ReplayGuard) (*d2d.Context, []byte, error) {
	clientInitBytes, err := ch.Read()
	if err != nil {
		return nil, nil, err
	}
	var clientInit ClientInit
	if err := cbor.Unmarshal(clientInitBytes, &clientInit); err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}

	dh, err := generateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	signPub, signPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	serverRandom, err := randomNonce()
	if err != nil {
		return nil, nil, err
	}

	serverInitPayload, err := cbor.Marshal(ServerInit{
		Version:          Version,
		Random:           serverRandom,
		PublicKey:        dh.pub[:],
		SigningPublicKey: signPub,
	})
	if err != nil {
		return nil, nil, err
	}
	t := transcript(clientInitBytes, serverInitPayload)
	envelopeBytes, err := marshalEnvelope(serverInitPayload, ed25519.Sign(signPriv, t))
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Write(envelopeBytes); err != nil {
		return nil, nil, err
	}

	clientFinishBytes, err := ch.Read()
	if err != nil {
		return nil, nil, err
	}
	var clientFinish ClientFinish
	if err := cbor.Unmarshal(clientFinishBytes, &clientFinish); err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if !ed25519.Verify(clientInit.SigningPublicKey, t, clientFinish.Signature) {
		return nil, nil, ErrVerification
	}

	var peerPub [32]byte
	copy(peerPub[:], clientInit.PublicKey)
	var sharedSecret [32]byte
	curve25519.ScalarMult(&sharedSecret, &dh.priv, &peerPub)

	authToken := deriveAuthToken(t)

	if guard != nil {
		seen, err := guard.CheckAndRecord(authToken)
		if err != nil {
			return nil, nil, err
		}
		if seen {
			return nil, nil, ErrReplay
		}
	}

	doneBytes, err := cbor.Marshal(struct{}{})
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Write(doneBytes); err != nil {
		return nil, nil, err
	}

	ctx, err := d2d.NewContext(sharedSecret[:], authToken, false)
	if err != nil {
		return nil, nil, err
	}
	return ctx, authToken, nil
}
