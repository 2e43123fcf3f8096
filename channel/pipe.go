package channel

import "sync"

// ChunkSize is the default unit Pipe's capacity is expressed in and the most
// a single Pipe Read returns. 64 KiB.
const ChunkSize = 64 * 1024

// pipeCapacityChunks bounds how much unread data a Pipe will buffer before
// Write blocks, giving the pipe real backpressure instead of growing
// without limit.
const pipeCapacityChunks = 4

// Pipe is an in-process, in-memory bounded FIFO connecting a Reader to a
// Writer, used by tests (and the simulated medium environment) in place of
// a real transport. Closing either end causes the next blocking operation
// on the other end to fail with ErrIoError, rather than block forever.
type Pipe struct {
	mu   sync.Mutex
	cond *sync.Cond

	data     []byte
	capacity int

	readerClosed bool
	writerClosed bool
}

// NewPipe returns a ready-to-use Pipe whose chunk size is ChunkSize.
func NewPipe() *Pipe {
	return NewPipeWithChunkSize(ChunkSize)
}

// NewPipeWithChunkSize returns a ready-to-use Pipe whose buffering unit is
// chunkSize instead of the package default; chunkSize of 0 selects
// ChunkSize. config.Config.PipeChunkSize feeds this constructor.
func NewPipeWithChunkSize(chunkSize int) *Pipe {
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}
	p := &Pipe{capacity: pipeCapacityChunks * chunkSize}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Reader returns the blocking InputStream side of the pipe.
func (p *Pipe) Reader() InputStream { return (*pipeReader)(p) }

// Writer returns the blocking OutputStream side of the pipe.
func (p *Pipe) Writer() OutputStream { return (*pipeWriter)(p) }

type pipeReader Pipe

func (r *pipeReader) p() *Pipe { return (*Pipe)(r) }

func (r *pipeReader) Read(size int) ([]byte, error) {
	p := r.p()
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.data) == 0 && !p.writerClosed && !p.readerClosed {
		p.cond.Wait()
	}

	if p.readerClosed {
		return nil, ioError(errClosedLocally)
	}
	if len(p.data) == 0 {
		// Writer closed with nothing left to deliver: fail the read as an
		// IoError rather than return an orderly zero-length result, so a
		// Read blocked past a peer close observably fails instead of
		// spinning on empty reads.
		return nil, ioError(errPeerClosed)
	}

	n := size
	if chunk := p.capacity / pipeCapacityChunks; n > chunk {
		n = chunk
	}
	if n > len(p.data) {
		n = len(p.data)
	}
	out := make([]byte, n)
	copy(out, p.data[:n])
	p.data = p.data[n:]
	p.cond.Broadcast()
	return out, nil
}

func (r *pipeReader) Close() error {
	p := r.p()
	p.mu.Lock()
	p.readerClosed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

type pipeWriter Pipe

func (w *pipeWriter) p() *Pipe { return (*Pipe)(w) }

func (w *pipeWriter) Write(b []byte) error {
	p := w.p()
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.data)+len(b) > p.capacity && !p.readerClosed && !p.writerClosed {
		p.cond.Wait()
	}

	if p.writerClosed {
		return ioError(errClosedLocally)
	}
	if p.readerClosed {
		return ioError(errPeerClosed)
	}

	p.data = append(p.data, b...)
	p.cond.Broadcast()
	return nil
}

func (w *pipeWriter) Close() error {
	p := w.p()
	p.mu.Lock()
	p.writerClosed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}
