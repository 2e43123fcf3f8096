package ukey2

import (
	"testing"
	"time"

	"github.com/catshadow/endpointchannel/channel"
	"github.com/catshadow/endpointchannel/crypto/d2d"
	"github.com/stretchr/testify/require"
)

type hooks struct{ medium channel.Medium }

func (h *hooks) Medium() channel.Medium { return h.medium }
func (h *hooks) CloseImpl() error       { return nil }

func pairedChannels(t *testing.T) (a, b *channel.BaseEndpointChannel) {
	t.Helper()
	aToB := channel.NewPipe()
	bToA := channel.NewPipe()
	a = channel.NewBaseEndpointChannel("a", bToA.Reader(), aToB.Writer(), &hooks{medium: channel.WifiLan}, 0)
	b = channel.NewBaseEndpointChannel("b", aToB.Reader(), bToA.Writer(), &hooks{medium: channel.WifiLan}, 0)
	return a, b
}

func TestHandshakeSucceedsBothSidesAndAuthTokensMatch(t *testing.T) {
	a, b := pairedChannels(t)
	defer a.Close(channel.Shutdown)
	defer b.Close(channel.Shutdown)

	runner := NewHandshakeRunner(time.Second, nil, nil)

	clientDone := make(chan struct{})
	serverDone := make(chan struct{})

	var clientCtx, serverCtx *d2d.Context
	var clientToken, serverToken []byte
	var clientErr, serverErr error

	runner.StartClient("peer-b", a, Callbacks{
		OnSuccess: func(endpointID string, ctx *d2d.Context, authToken, rawAuthToken []byte) {
			clientCtx, clientToken = ctx, authToken
			close(clientDone)
		},
		OnFailure: func(endpointID string, ch *channel.BaseEndpointChannel, err error) {
			clientErr = err
			close(clientDone)
		},
	})

	runner.StartServer("peer-a", b, Callbacks{
		OnSuccess: func(endpointID string, ctx *d2d.Context, authToken, rawAuthToken []byte) {
			serverCtx, serverToken = ctx, authToken
			close(serverDone)
		},
		OnFailure: func(endpointID string, ch *channel.BaseEndpointChannel, err error) {
			serverErr = err
			close(serverDone)
		},
	})

	select {
	case <-clientDone:
	case <-time.After(2 * time.Second):
		t.Fatal("client handshake never completed")
	}
	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatal("server handshake never completed")
	}

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	require.NotNil(t, clientCtx)
	require.NotNil(t, serverCtx)
	require.Equal(t, serverToken, clientToken)

	sealed, err := clientCtx.Encode([]byte("data message"))
	require.NoError(t, err)
	opened, err := serverCtx.Decode(sealed)
	require.NoError(t, err)
	require.Equal(t, "data message", string(opened))
}

// S6: handshake failure on deadline when the peer never responds.
func TestHandshakeTimesOutWhenPeerNeverResponds(t *testing.T) {
	a, _ := pairedChannels(t)
	defer a.Close(channel.Shutdown)

	runner := NewHandshakeRunner(100*time.Millisecond, nil, nil)

	failures := make(chan error, 1)
	runner.StartClient("silent-peer", a, Callbacks{
		OnSuccess: func(endpointID string, ctx *d2d.Context, authToken, rawAuthToken []byte) {
			t.Fatal("handshake unexpectedly succeeded against a silent peer")
		},
		OnFailure: func(endpointID string, ch *channel.BaseEndpointChannel, err error) {
			failures <- err
		},
	})

	select {
	case err := <-failures:
		require.ErrorIs(t, err, ErrTimeout)
	case <-time.After(time.Second):
		t.Fatal("on_failure never fired within the deadline")
	}
}

func TestReplayGuardRejectsDuplicateToken(t *testing.T) {
	dir := t.TempDir()
	guard, err := OpenReplayGuard(dir + "/replay.db")
	require.NoError(t, err)
	defer guard.Close()

	token := []byte("some-auth-token")

	seen, err := guard.CheckAndRecord(token)
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = guard.CheckAndRecord(token)
	require.NoError(t, err)
	require.True(t, seen)
}
