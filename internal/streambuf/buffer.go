// Package streambuf implements the byte buffer pair a Stream Client reads
// into: two growable buffers used alternately as the active read target,
// with a carry-over copy of any unreceived message tail between them.
//
// Grounded on the original trdk NetworkStreamClient.cpp buffer-growth
// algorithm (see SPEC_FULL.md §4.A), adapted to Go slices.
package streambuf

import "fmt"

const (
	// DefaultInitialCapacity is the starting size of each buffer in a pair.
	DefaultInitialCapacity = 2 * 1024 * 1024 // 2 MiB

	// DebugInitialCapacity is used instead of DefaultInitialCapacity when a
	// Client is built with debug buffer sizing (mirrors the original's
	// DEV_VER build flag).
	DebugInitialCapacity = 256

	// DefaultMaxCapacity is the hard ceiling a Pair refuses to grow past.
	DefaultMaxCapacity = 20 * 1024 * 1024 // 20 MiB
)

// OverflowError is returned by Pair.Grow when growing would exceed the
// configured ceiling. It is fatal for the connection, not the process.
type OverflowError struct {
	Attempted int
	Ceiling   int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("the maximum buffer size is exceeded: %d > %d bytes", e.Attempted, e.Ceiling)
}

// Buffer is a contiguous, growable byte array with no notion of its own
// "valid prefix" length — that bookkeeping (offset, transferred) lives in
// the Client's read loop, per spec.
type Buffer struct {
	data   []byte
	poison bool
}

func newBuffer(capacity int, poison bool) *Buffer {
	b := &Buffer{data: make([]byte, capacity), poison: poison}
	if poison {
		fillPoison(b.data)
	}
	return b
}

func fillPoison(b []byte) {
	for i := range b {
		b[i] = 0xff
	}
}

// Cap returns the buffer's current capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Bytes returns the full backing slice (len == Cap).
func (b *Buffer) Bytes() []byte { return b.data }

// At returns the byte at i; used by the protocol-error hex dump.
func (b *Buffer) At(i int) byte { return b.data[i] }

func (b *Buffer) grow(newCap int) {
	grown := make([]byte, newCap)
	copy(grown, b.data)
	if b.poison {
		fillPoison(grown[len(b.data):])
	}
	b.data = grown
}

// Pair is exactly two buffers per Client, one active (current read target)
// and one next (receives the carried-over tail before becoming active).
type Pair struct {
	bufs      [2]*Buffer
	activeIdx int
	maxCap    int
}

// NewPair allocates a buffer pair at initialCapacity with a growth ceiling
// of maxCapacity. poison fills freshly allocated or grown regions with 0xFF,
// mirroring the original's DEV_VER uninitialized-tail marker.
func NewPair(initialCapacity, maxCapacity int, poison bool) *Pair {
	return &Pair{
		bufs:   [2]*Buffer{newBuffer(initialCapacity, poison), newBuffer(initialCapacity, poison)},
		maxCap: maxCapacity,
	}
}

// Active returns the buffer currently being written into by the transport.
func (p *Pair) Active() *Buffer { return p.bufs[p.activeIdx] }

// Next returns the buffer that will become active after the current read
// completes.
func (p *Pair) Next() *Buffer { return p.bufs[1-p.activeIdx] }

// Swap flips which buffer is active. Called just before the next read is
// armed, so that read targets the other buffer.
func (p *Pair) Swap() { p.activeIdx = 1 - p.activeIdx }

// MaxCapacity returns the configured growth ceiling.
func (p *Pair) MaxCapacity() int { return p.maxCap }

// Grow doubles both buffers' capacity together, keeping them symmetric
// (REDESIGN FLAG (i): the original only grows the tight buffer and lazily
// restores symmetry after dispatch; this port grows both eagerly, which
// preserves the "next.Cap() >= active.Cap()" invariant without a deferred
// resync step). Returns *OverflowError if the new size would exceed the
// ceiling.
func (p *Pair) Grow() error {
	newCap := p.Active().Cap() * 2
	if newCap > p.maxCap {
		return &OverflowError{Attempted: newCap, Ceiling: p.maxCap}
	}
	p.bufs[0].grow(newCap)
	p.bufs[1].grow(newCap)
	return nil
}

// CopyTail copies the unreceived message tail active.data[start:end] into
// the prefix of the next buffer, growing next first if it has no room.
func (p *Pair) CopyTail(start, end int) error {
	tailLen := end - start
	if tailLen <= 0 {
		return nil
	}
	next := p.Next()
	if next.Cap() < tailLen {
		if err := p.Grow(); err != nil {
			return err
		}
	}
	copy(next.Bytes()[:tailLen], p.Active().Bytes()[start:end])
	return nil
}
