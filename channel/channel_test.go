package channel

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubHooks is a TransportHooks for a fixed medium that does nothing extra
// on CloseImpl; tests that want to observe CloseImpl record into closed.
type stubHooks struct {
	medium Medium
	closed bool
}

func (h *stubHooks) Medium() Medium { return h.medium }
func (h *stubHooks) CloseImpl() error {
	h.closed = true
	return nil
}

// xorCodec is a trivial, reversible EncryptionCodec standing in for
// crypto/d2d.Context in tests that only need "ciphertext looks different
// from plaintext", not real confidentiality.
type xorCodec struct{ key byte }

func (c xorCodec) Encode(p []byte) ([]byte, error) { return c.xor(p), nil }
func (c xorCodec) Decode(p []byte) ([]byte, error) { return c.xor(p), nil }
func (c xorCodec) xor(p []byte) []byte {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = b ^ c.key
	}
	return out
}

// pairedChannels returns two BaseEndpointChannels, a and b, connected by
// two independent Pipes such that a.Write is read by b.Read and vice
// versa.
func pairedChannels(medium Medium) (a, b *BaseEndpointChannel) {
	aToB := NewPipe()
	bToA := NewPipe()
	a = NewBaseEndpointChannel("a", bToA.Reader(), aToB.Writer(), &stubHooks{medium: medium}, 0)
	b = NewBaseEndpointChannel("b", aToB.Reader(), bToA.Writer(), &stubHooks{medium: medium}, 0)
	return a, b
}

// pump copies every frame read from src to dst, recording each payload
// into capture, simulating an observer sitting on the wire (a man in the
// middle) between two channels.
type pump struct {
	mu      sync.Mutex
	capture []byte
}

func (p *pump) record(b []byte) {
	p.mu.Lock()
	p.capture = append(p.capture, b...)
	p.mu.Unlock()
}

func (p *pump) contains(s string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Contains(string(p.capture), s)
}

// pumpedChannels wires a <-> monitor <-> b, where monitor copies and
// records every frame crossing each direction, instead of a direct Pipe
// pair. It returns the two endpoint channels plus the capture for each
// direction.
func pumpedChannels(t *testing.T, medium Medium) (a, b *BaseEndpointChannel, captureAToB, captureBToA *pump) {
	t.Helper()

	rawAToB := NewPipe()
	rawBToA := NewPipe()
	monitoredAToB := NewPipe()
	monitoredBToA := NewPipe()

	captureAToB = &pump{}
	captureBToA = &pump{}

	copyFrames := func(src InputStream, dst OutputStream, cap *pump, stop chan struct{}) {
		for {
			select {
			case <-stop:
				return
			default:
			}
			frame, err := readFrame(src, DefaultMaxFrameSize)
			if err != nil {
				return
			}
			cap.record(frame)
			if err := writeFrame(dst, frame); err != nil {
				return
			}
		}
	}

	stopAB := make(chan struct{})
	stopBA := make(chan struct{})
	go copyFrames(rawAToB.Reader(), monitoredAToB.Writer(), captureAToB, stopAB)
	go copyFrames(rawBToA.Reader(), monitoredBToA.Writer(), captureBToA, stopBA)

	a = NewBaseEndpointChannel("a", monitoredBToA.Reader(), rawAToB.Writer(), &stubHooks{medium: medium}, 0)
	b = NewBaseEndpointChannel("b", monitoredAToB.Reader(), rawBToA.Writer(), &stubHooks{medium: medium}, 0)

	return a, b, captureAToB, captureBToA
}

func TestRoundTripPlaintext(t *testing.T) {
	a, b := pairedChannels(BLE)
	defer a.Close(Shutdown)
	defer b.Close(Shutdown)

	require.NoError(t, a.Write([]byte("data message")))
	got, err := b.Read()
	require.NoError(t, err)
	require.Equal(t, "data message", string(got))
}

func TestRoundTripEncrypted(t *testing.T) {
	a, b := pairedChannels(Bluetooth)
	defer a.Close(Shutdown)
	defer b.Close(Shutdown)

	codec := xorCodec{key: 0x5A}
	a.EnableEncryption(codec)
	b.EnableEncryption(codec)

	require.NoError(t, a.Write([]byte("data message")))
	got, err := b.Read()
	require.NoError(t, err)
	require.Equal(t, "data message", string(got))
}

// S2: MITM plaintext capture.
func TestMITMPlaintextCapture(t *testing.T) {
	a, b, captureAToB, _ := pumpedChannels(t, BLE)
	defer a.Close(Shutdown)
	defer b.Close(Shutdown)

	require.NoError(t, a.Write([]byte("data message")))
	got, err := b.Read()
	require.NoError(t, err)
	require.Equal(t, "data message", string(got))

	require.True(t, captureAToB.contains("data message"))
	require.Equal(t, "BLE", a.GetType())
	require.Equal(t, "BLE", b.GetType())
}

// S3: MITM encrypted opacity.
func TestMITMEncryptedOpacity(t *testing.T) {
	a, b, captureAToB, captureBToA := pumpedChannels(t, Bluetooth)
	defer a.Close(Shutdown)
	defer b.Close(Shutdown)

	codec := xorCodec{key: 0x42}
	a.EnableEncryption(codec)
	b.EnableEncryption(codec)

	require.NoError(t, a.Write([]byte("data message")))
	got, err := b.Read()
	require.NoError(t, err)
	require.Equal(t, "data message", string(got))

	require.False(t, captureAToB.contains("data message"))
	require.False(t, captureBToA.contains("data message"))
	require.Equal(t, "ENCRYPTED_BLUETOOTH", a.GetType())
	require.Equal(t, "ENCRYPTED_BLUETOOTH", b.GetType())
}

// S4: Pause/Resume.
func TestPauseBlocksReaderAndWriter(t *testing.T) {
	a, b := pairedChannels(WifiLan)
	defer a.Close(Shutdown)
	defer b.Close(Shutdown)

	require.NoError(t, a.Write([]byte("warmup")))
	_, err := b.Read()
	require.NoError(t, err)

	a.Pause()

	writeDone := make(chan error, 1)
	go func() { writeDone <- a.Write([]byte("more data")) }()

	readDone := make(chan []byte, 1)
	readErr := make(chan error, 1)
	go func() {
		got, err := b.Read()
		if err != nil {
			readErr <- err
			return
		}
		readDone <- got
	}()

	select {
	case <-writeDone:
		t.Fatal("Write completed while paused")
	case <-readDone:
		t.Fatal("Read completed while paused")
	case <-readErr:
		t.Fatal("Read errored while paused")
	case <-time.After(500 * time.Millisecond):
	}

	a.Resume()

	select {
	case err := <-writeDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Write never completed after Resume")
	}

	select {
	case got := <-readDone:
		require.Equal(t, "more data", string(got))
	case err := <-readErr:
		t.Fatalf("Read errored after Resume: %v", err)
	case <-time.After(time.Second):
		t.Fatal("Read never completed after Resume")
	}

	require.Equal(t, "WIFI_LAN", a.GetType())
}

// S5: Read after writer close.
func TestReadAfterWriterCloseFails(t *testing.T) {
	p := NewPipe()
	in := p.Reader()
	out := p.Writer()

	require.NoError(t, out.Close())

	c := NewBaseEndpointChannel("solo", in, NewPipe().Writer(), &stubHooks{medium: USB}, 0)
	defer c.Close(Shutdown)

	_, err := c.Read()
	require.ErrorIs(t, err, ErrIoError)
}

// Invariant 7 / close idempotence.
func TestCloseIdempotent(t *testing.T) {
	a, b := pairedChannels(WebRTC)
	defer b.Close(Shutdown)

	require.NoError(t, a.Close(LocalDisconnection))
	require.NoError(t, a.Close(RemoteDisconnection))
	require.Equal(t, LocalDisconnection, a.CloseReason())
}

func TestGetTypeReportsMediumAndEncryption(t *testing.T) {
	a, b := pairedChannels(WebRTC)
	defer a.Close(Shutdown)
	defer b.Close(Shutdown)

	require.Equal(t, "WEB_RTC", a.GetType())
	a.EnableEncryption(xorCodec{key: 1})
	require.Equal(t, "ENCRYPTED_WEB_RTC", a.GetType())
}

func TestCloseUnblocksPendingRead(t *testing.T) {
	a, b := pairedChannels(BLE)
	defer b.Close(Shutdown)

	errc := make(chan error, 1)
	go func() {
		_, err := a.Read()
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, a.Close(Shutdown))

	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrIoError)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock pending Read")
	}
}
