package pool

import "testing"

func TestBufferPoolGetPut(t *testing.T) {
	p := NewBufferPool(1024)

	buf := p.Get()
	if len(*buf) != 1024 {
		t.Fatalf("expected buffer of 1024 bytes, got %d", len(*buf))
	}
	p.Put(buf)

	again := p.Get()
	if len(*again) != 1024 {
		t.Errorf("expected reused buffer of 1024 bytes, got %d", len(*again))
	}
}

func TestBufferPoolDropsForeignBuffers(t *testing.T) {
	p := NewBufferPool(1024)

	small := make([]byte, 16)
	p.Put(&small) // must not end up in the pool
	p.Put(nil)

	buf := p.Get()
	if len(*buf) != 1024 {
		t.Errorf("expected buffer of 1024 bytes, got %d", len(*buf))
	}
}
