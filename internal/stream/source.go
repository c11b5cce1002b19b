package stream

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
)

// ByteSource yields the chunks of one open connection.
type ByteSource interface {
	// Next blocks until the next chunk is available. It returns io.EOF at
	// a clean end of stream; any other error is a transport failure.
	Next(ctx context.Context) ([]byte, error)

	// Close releases the connection. It may be called while Next is blocked.
	Close() error
}

// Opener opens a fresh ByteSource for a pass over ids.
type Opener interface {
	Open(ctx context.Context, ids []domain.EntityID) (ByteSource, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, ids []domain.EntityID) (ByteSource, error)

// Open calls f(ctx, ids).
func (f OpenerFunc) Open(ctx context.Context, ids []domain.EntityID) (ByteSource, error) {
	return f(ctx, ids)
}

// DefaultChunkSize is the read size used by ReaderSource when none is given.
const DefaultChunkSize = 32 * 1024

// ReaderSource adapts an io.Reader, such as an HTTP response body, to a
// ByteSource. If the reader is also an io.Closer it is closed by Close.
type ReaderSource struct {
	r    io.Reader
	buf  []byte
	err  error
	once sync.Once
}

// NewReaderSource reads r in chunks of at most chunkSize bytes.
func NewReaderSource(r io.Reader, chunkSize int) *ReaderSource {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ReaderSource{r: r, buf: make([]byte, chunkSize)}
}

func (s *ReaderSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}

	n, err := s.r.Read(s.buf)
	if err != nil {
		s.err = err
	}
	if n > 0 {
		return bytes.Clone(s.buf[:n]), nil
	}
	return nil, err
}

func (s *ReaderSource) Close() error {
	var err error
	s.once.Do(func() {
		if c, ok := s.r.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// ChunkSource replays a fixed sequence of chunks and then returns End, or
// io.EOF when End is nil.
type ChunkSource struct {
	Chunks [][]byte
	End    error

	mu     sync.Mutex
	pos    int
	closed bool
}

// NewChunkSource builds a ChunkSource from string chunks.
func NewChunkSource(end error, chunks ...string) *ChunkSource {
	s := &ChunkSource{End: end}
	for _, c := range chunks {
		s.Chunks = append(s.Chunks, []byte(c))
	}
	return s
}

func (s *ChunkSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, io.ErrClosedPipe
	}
	if s.pos < len(s.Chunks) {
		c := s.Chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.End != nil {
		return nil, s.End
	}
	return nil, io.EOF
}

func (s *ChunkSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *ChunkSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// onceSource makes Close idempotent so the controller can release a source
// both from Cancel and from the loop's exit path.
type onceSource struct {
	ByteSource
	once sync.Once
	err  error
}

func (s *onceSource) Close() error {
	s.once.Do(func() { s.err = s.ByteSource.Close() })
	return s.err
}
