package channel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	p := NewPipe()
	payload := []byte("the quick brown fox")

	errc := make(chan error, 1)
	go func() { errc <- writeFrame(p.Writer(), payload) }()

	got, err := readFrame(p.Reader(), DefaultMaxFrameSize)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	require.Equal(t, payload, got)
}

func TestFrameEmptyPayload(t *testing.T) {
	p := NewPipe()

	errc := make(chan error, 1)
	go func() { errc <- writeFrame(p.Writer(), nil) }()

	got, err := readFrame(p.Reader(), DefaultMaxFrameSize)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	require.Empty(t, got)
}

func TestFrameOverMaxSizeRejected(t *testing.T) {
	p := NewPipe()

	errc := make(chan error, 1)
	go func() { errc <- writeFrame(p.Writer(), make([]byte, 100)) }()

	_, err := readFrame(p.Reader(), 10)
	require.ErrorIs(t, err, ErrProtocolError)
	<-errc
}

func TestFrameReadSpansMultipleUnderlyingReads(t *testing.T) {
	p := NewPipe()
	w := p.Writer()

	payload := make([]byte, ChunkSize+10)
	for i := range payload {
		payload[i] = byte(i)
	}

	errc := make(chan error, 1)
	go func() { errc <- writeFrame(w, payload) }()

	got, err := readFrame(p.Reader(), DefaultMaxFrameSize)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	require.Equal(t, payload, got)
}
