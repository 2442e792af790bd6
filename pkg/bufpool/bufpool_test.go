package bufpool

import "testing"

func TestGetRoundsUpToBucket(t *testing.T) {
	p := DefaultPool()
	buf := p.Get(1000)
	if len(buf.Data()) != 1000 {
		t.Fatalf("len = %d, want 1000", len(buf.Data()))
	}
	if cap(buf.Data()) != 1500 {
		t.Fatalf("cap = %d, want 1500", cap(buf.Data()))
	}
}

func TestReleaseReturnsToPool(t *testing.T) {
	p := New([]int{64})
	buf := p.Get(64)
	data := buf.Data()
	data[0] = 0xFF
	buf.Release()

	buf2 := p.Get(64)
	if &buf2.data[0] != &data[0] {
		t.Skip("pool reuse is not guaranteed by sync.Pool; skip flaky identity check")
	}
}

func TestRetainDelaysRelease(t *testing.T) {
	p := New([]int{64})
	buf := p.Get(64)
	buf.Retain()
	buf.Release()
	// still retained once more; data slice should remain valid
	if len(buf.Data()) != 64 {
		t.Fatalf("buffer released early")
	}
	buf.Release()
}

func TestOversizeGetAllocatesExactSize(t *testing.T) {
	p := New([]int{64, 128})
	buf := p.Get(256)
	if len(buf.Data()) != 256 {
		t.Fatalf("len = %d, want 256", len(buf.Data()))
	}
}
