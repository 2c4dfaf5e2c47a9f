package store

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDomainLockExclusion(t *testing.T) {
	t.Parallel()

	l := NewDomainLock(t.TempDir())

	ok, err := l.Acquire("example.org", time.Second, 10*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("first Acquire: ok=%v err=%v", ok, err)
	}

	ok, err = l.Acquire("example.org", 50*time.Millisecond, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second Acquire for a held lock must fail within a short timeout")
	}

	if err := l.Release("example.org"); err != nil {
		t.Fatal(err)
	}

	ok, err = l.Acquire("example.org", time.Second, 10*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("Acquire after Release: ok=%v err=%v", ok, err)
	}
	if err := l.Release("example.org"); err != nil {
		t.Fatal(err)
	}
}

func TestDomainLockReleaseIdempotent(t *testing.T) {
	t.Parallel()

	l := NewDomainLock(t.TempDir())
	if err := l.Release("never-acquired"); err != nil {
		t.Fatal(err)
	}
}

func TestDomainLockSingleFlightUnderContention(t *testing.T) {
	t.Parallel()

	l := NewDomainLock(t.TempDir())
	const n = 20

	var successes, holders int64
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			ok, err := l.Acquire("contended", 200*time.Millisecond, 5*time.Millisecond)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				atomic.AddInt64(&successes, 1)
				if h := atomic.AddInt64(&holders, 1); h > 1 {
					t.Errorf("%d callers hold the lock at once", h)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&holders, -1)
				l.Release("contended")
			}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	if successes == 0 {
		t.Error("expected at least one successful acquisition")
	}
}
