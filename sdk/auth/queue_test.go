package auth

import "testing"

func TestUnboundedPreservesOrderWithoutReader(t *testing.T) {
	in, out := unbounded[int](nil)
	for i := 0; i < 1000; i++ {
		in <- i
	}
	close(in)

	next := 0
	for v := range out {
		if v != next {
			t.Fatalf("got %d, want %d", v, next)
		}
		next++
	}
	if next != 1000 {
		t.Fatalf("received %d values, want 1000", next)
	}
}

func TestUnboundedStop(t *testing.T) {
	stop := make(chan struct{})
	in, out := unbounded[string](stop)
	in <- "queued"
	close(stop)
	for range out {
	}
}
