package audioblock

import "testing"

func TestPoolTakeReturnInvariant(t *testing.T) {
	const n = 8
	p := NewPool(n, 2, 1024)

	if got := p.Len(); got != n {
		t.Fatalf("Len() = %d, want %d", got, n)
	}

	taken := make([]*Block, 0, n)
	for i := 0; i < n; i++ {
		b := p.Take()
		if b == nil {
			t.Fatalf("Take() returned nil before pool exhausted (i=%d)", i)
		}
		taken = append(taken, b)
	}

	if b := p.Take(); b != nil {
		t.Fatalf("Take() on exhausted pool returned %v, want nil", b)
	}

	for _, b := range taken {
		p.Return(b)
	}

	if got := p.Len(); got != n {
		t.Fatalf("Len() after full return = %d, want %d", got, n)
	}
}

func TestBlockClear(t *testing.T) {
	p := NewPool(1, 2, 4)
	b := p.Take()
	for ch := range b.Channels {
		for i := range b.Channels[ch] {
			b.Channels[ch][i] = 1
		}
	}
	b.Valid = 4
	b.Clear()

	if b.Valid != 0 {
		t.Fatalf("Valid = %d after Clear, want 0", b.Valid)
	}
	for ch := range b.Channels {
		for i, v := range b.Channels[ch] {
			if v != 0 {
				t.Fatalf("Channels[%d][%d] = %v after Clear, want 0", ch, i, v)
			}
		}
	}
}
