package transport

import (
	"bytes"
	"testing"
)

func seqData(seq uint16) []byte {
	return []byte{byte(seq >> 8), byte(seq)}
}

func TestRetransmitCacheStoreAndLookup(t *testing.T) {
	c := newRetransmitCache(512)
	c.store(1, seqData(1))

	got, ok := c.lookup(1)
	if !ok {
		t.Fatal("expected hit for seq 1")
	}
	if !bytes.Equal(got, seqData(1)) {
		t.Fatalf("got %v, want %v", got, seqData(1))
	}
}

func TestRetransmitCacheStaleSlotIsMiss(t *testing.T) {
	c := newRetransmitCache(512)
	c.store(1, seqData(1))
	c.store(513, seqData(513)) // same slot (513 mod 512 == 1), overwrites

	if _, ok := c.lookup(1); ok {
		t.Fatal("expected miss: slot overwritten by seq 513")
	}
	got, ok := c.lookup(513)
	if !ok || !bytes.Equal(got, seqData(513)) {
		t.Fatalf("expected hit for seq 513, got %v ok=%v", got, ok)
	}
}

func TestRetransmitCacheStoredDataIsOwnedCopy(t *testing.T) {
	c := newRetransmitCache(512)
	src := []byte{1, 2, 3}
	c.store(1, src)
	src[0] = 0xFF // mutate caller's slice after store

	got, ok := c.lookup(1)
	if !ok {
		t.Fatal("expected hit")
	}
	if got[0] != 1 {
		t.Fatalf("cache aliased caller's buffer: got[0] = %d, want 1", got[0])
	}
}

func TestRetransmitCacheEmptySlotIsMiss(t *testing.T) {
	c := newRetransmitCache(512)
	if _, ok := c.lookup(42); ok {
		t.Fatal("expected miss on never-written slot")
	}
}
