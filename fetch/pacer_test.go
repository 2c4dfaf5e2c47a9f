package fetch

import (
	"context"
	"testing"
	"time"
)

func TestPacerFirstWaitNeverBlocks(t *testing.T) {
	t.Parallel()

	p := NewPacer(200)
	start := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("first Wait blocked for %v, want ~0", elapsed)
	}
}

func TestPacerDisabled(t *testing.T) {
	t.Parallel()

	p := NewPacer(0)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("disabled pacer blocked for %v, want ~0", elapsed)
	}
}

func TestPacerSubsequentWaitDelays(t *testing.T) {
	t.Parallel()

	p := NewPacer(100)
	ctx := context.Background()
	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("second Wait returned after %v, want >= ~100ms", elapsed)
	}
}
