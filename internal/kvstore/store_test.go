// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package kvstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/ratelimit"
)

var _ ratelimit.Window = (*Store)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIncrementAndGet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if n, err := s.Get(ctx, "page1:minute:1"); err != nil || n != 0 {
		t.Fatalf("Get on empty store = %d, %v; want 0, nil", n, err)
	}

	for want := int64(1); want <= 3; want++ {
		n, err := s.Increment(ctx, "page1:minute:1", time.Minute)
		if err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		if n != want {
			t.Errorf("Increment = %d, want %d", n, want)
		}
	}

	n, err := s.Get(ctx, "page1:minute:1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Get = %d, want 3", n)
	}

	other, _ := s.Get(ctx, "page2:minute:1")
	if other != 0 {
		t.Errorf("counters leak across keys: %d", other)
	}
}

func TestIncrement_Concurrent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := s.Increment(ctx, "hot", time.Hour); err != nil {
					t.Errorf("Increment failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	n, err := s.Get(ctx, "hot")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if n != 20 {
		t.Errorf("Get = %d, want 20", n)
	}
}

func TestTryLock_Exclusive(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.TryLock(ctx, "campaign:c1", 5*time.Minute)
	if err != nil || first == nil {
		t.Fatalf("first TryLock = %v, %v; want lock", first, err)
	}

	second, err := s.TryLock(ctx, "campaign:c1", 5*time.Minute)
	if err != nil {
		t.Fatalf("second TryLock failed: %v", err)
	}
	if second != nil {
		t.Fatal("second TryLock acquired a held lock")
	}

	other, err := s.TryLock(ctx, "campaign:c2", 5*time.Minute)
	if err != nil || other == nil {
		t.Fatalf("TryLock on other key = %v, %v; want lock", other, err)
	}
	other.Release()

	first.Release()
	first.Release()

	third, err := s.TryLock(ctx, "campaign:c1", 5*time.Minute)
	if err != nil || third == nil {
		t.Fatalf("TryLock after release = %v, %v; want lock", third, err)
	}
	third.Release()
}

func TestTryLock_ConcurrentExactlyOneWinner(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			l, err := s.TryLock(ctx, "adset:a1", 5*time.Minute)
			if err != nil {
				t.Errorf("TryLock failed: %v", err)
				return
			}
			if l != nil {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Errorf("winners = %d, want 1", got)
	}
}

func TestTryLock_Expires(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	l, err := s.TryLock(ctx, "page:p1", time.Second)
	if err != nil || l == nil {
		t.Fatalf("TryLock = %v, %v", l, err)
	}

	// badger TTLs have one-second resolution.
	time.Sleep(2100 * time.Millisecond)

	locked, err := s.IsLocked(ctx, "page:p1")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if locked {
		t.Fatal("lock did not expire")
	}

	next, err := s.TryLock(ctx, "page:p1", time.Minute)
	if err != nil || next == nil {
		t.Fatalf("TryLock after expiry = %v, %v", next, err)
	}

	// The stale holder must not release the new owner's lock.
	l.Release()
	if locked, _ := s.IsLocked(ctx, "page:p1"); !locked {
		t.Error("stale Release removed another holder's lock")
	}
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	s, err := Open(&config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if _, err := s.Increment(context.Background(), "k", time.Minute); !errors.Is(err, ErrClosed) {
		t.Errorf("Increment after Close err = %v, want ErrClosed", err)
	}
	if _, err := s.TryLock(context.Background(), "k", time.Minute); !errors.Is(err, ErrClosed) {
		t.Errorf("TryLock after Close err = %v, want ErrClosed", err)
	}
}

func TestLockScope(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"campaign:123": "campaign",
		"page:p:1":     "page",
		"bare":         "bare",
	}
	for in, want := range tests {
		if got := lockScope(in); got != want {
			t.Errorf("lockScope(%q) = %q, want %q", in, got, want)
		}
	}
}
