package streambuf

import "testing"

func TestPairSwapAlternatesActive(t *testing.T) {
	p := NewPair(64, 1024, false)
	a := p.Active()
	n := p.Next()
	if a == n {
		t.Fatal("active and next must be distinct buffers")
	}
	p.Swap()
	if p.Active() != n || p.Next() != a {
		t.Fatal("swap did not flip active/next")
	}
}

func TestPairGrowDoublesBothBuffers(t *testing.T) {
	p := NewPair(64, 1024, false)
	if err := p.Grow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Active().Cap() != 128 || p.Next().Cap() != 128 {
		t.Fatalf("expected both buffers at 128, got active=%d next=%d", p.Active().Cap(), p.Next().Cap())
	}
}

func TestPairGrowRespectsCeiling(t *testing.T) {
	p := NewPair(512, 1000, false)
	err := p.Grow()
	if err == nil {
		t.Fatal("expected overflow error")
	}
	var overflow *OverflowError
	if _, ok := err.(*OverflowError); !ok {
		t.Fatalf("expected *OverflowError, got %T", err)
	} else {
		overflow = err.(*OverflowError)
	}
	if overflow.Attempted != 1024 || overflow.Ceiling != 1000 {
		t.Fatalf("unexpected overflow fields: %+v", overflow)
	}
}

func TestPairCopyTailCarriesBytes(t *testing.T) {
	p := NewPair(8, 1024, false)
	active := p.Active()
	copy(active.Bytes(), []byte("ABCDEFGH"))

	if err := p.CopyTail(3, 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	next := p.Next()
	got := string(next.Bytes()[:5])
	if got != "DEFGH" {
		t.Fatalf("expected tail DEFGH, got %q", got)
	}
}

func TestPairGrowDoublesFullSmallBuffer(t *testing.T) {
	p := NewPair(4, 1024, false)
	active := p.Active()
	copy(active.Bytes(), []byte("WXYZ"))
	// CopyTail never has to grow a symmetric pair (a tail is never longer
	// than the active buffer), so the growth is exercised via Grow directly.
	if err := p.Grow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Active().Cap() != 8 {
		t.Fatalf("expected growth to 8, got %d", p.Active().Cap())
	}
}

func TestBufferPoisonFillsGrowthRegion(t *testing.T) {
	p := NewPair(4, 64, true)
	if err := p.Grow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := p.Active().Bytes()
	for i := 4; i < len(b); i++ {
		if b[i] != 0xff {
			t.Fatalf("expected poison byte at %d, got %x", i, b[i])
		}
	}
}
