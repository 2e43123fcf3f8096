package channel

import "encoding/binary"

// DefaultMaxFrameSize is the ceiling on a single frame's payload length,
// fixed at 5 MiB and overridable per BaseEndpointChannel via
// config.Config.MaxFrameSize.
const DefaultMaxFrameSize = 5 * 1024 * 1024

// frameHeaderSize is the width of the big-endian length prefix.
const frameHeaderSize = 4

// writeFrame sends payload as a single length-prefixed frame: a 4-byte
// big-endian length followed by the payload bytes. The two writes are not
// atomic with respect to a concurrent Close, matching the rest of the
// package's "Close unblocks, doesn't synchronize" contract.
func writeFrame(out OutputStream, payload []byte) error {
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if err := out.Write(header[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return out.Write(payload)
}

// readFrame reads one length-prefixed frame from in, rejecting any frame
// whose declared length exceeds maxFrame with ErrProtocolError. It loops
// Read calls internally since InputStream.Read may return short reads.
func readFrame(in InputStream, maxFrame int) ([]byte, error) {
	header, err := readExactly(in, frameHeaderSize)
	if err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header)
	if maxFrame > 0 && int(n) > maxFrame {
		return nil, protocolError("frame exceeds maximum size")
	}
	if n == 0 {
		return []byte{}, nil
	}
	return readExactly(in, int(n))
}

// readExactly accumulates Read results until exactly n bytes have been
// collected, since InputStream implementations (Pipe included) are free to
// return fewer bytes than requested.
func readExactly(in InputStream, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk, err := in.Read(n - len(out))
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			continue
		}
		out = append(out, chunk...)
	}
	return out, nil
}
