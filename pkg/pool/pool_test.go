package pool

import "testing"

func TestBuffersGetPut(t *testing.T) {
	b := NewBuffers(1024)

	buf := b.Get()
	if len(*buf) != 1024 {
		t.Errorf("got len %d, want 1024", len(*buf))
	}

	// Shrink the slice before returning it; the next Get must see the full
	// length again.
	*buf = (*buf)[:10]
	b.Put(buf)

	buf2 := b.Get()
	if len(*buf2) != 1024 {
		t.Errorf("got len %d after Put, want 1024", len(*buf2))
	}
}

func TestBuffersRejectsForeignSizes(t *testing.T) {
	b := NewBuffers(1024)
	foreign := make([]byte, 64)
	b.Put(&foreign) // silently dropped
	b.Put(nil)      // must not panic

	if got := len(*b.Get()); got != 1024 {
		t.Errorf("got len %d, want 1024", got)
	}
}

func TestBuffersDefaultSize(t *testing.T) {
	b := NewBuffers(0)
	if b.Size() != DefaultBufferSize {
		t.Errorf("got size %d, want %d", b.Size(), DefaultBufferSize)
	}
}
