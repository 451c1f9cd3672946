package ring

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNew_RejectsNonPowerOfTwo(t *testing.T) {
	for _, c := range []int{0, -4, 3, 6, 1000} {
		if _, err := New(c); !errors.Is(err, ErrCapacity) {
			t.Errorf("New(%d): expected ErrCapacity, got %v", c, err)
		}
	}
	for _, c := range []int{1, 2, 8, 1 << 19} {
		r, err := New(c)
		if err != nil {
			t.Fatalf("New(%d): unexpected error %v", c, err)
		}
		if r.Cap() != c {
			t.Errorf("Cap() = %d, want %d", r.Cap(), c)
		}
	}
}

func TestSnapshot_NeverExceedsCapacity(t *testing.T) {
	const capacity = 8
	for _, n := range []int{0, 1, 7, 8, 9, 100} {
		r := MustNew(capacity)
		for i := 0; i < n; i++ {
			r.Push(float64(i), float64(i))
		}
		got := r.Snapshot(float64(n), float64(n+1))
		want := n
		if want > capacity {
			want = capacity
		}
		if len(got) != want {
			t.Fatalf("n=%d: got %d samples, want %d", n, len(got), want)
		}
		if r.Len() != want {
			t.Fatalf("n=%d: Len() = %d, want %d", n, r.Len(), want)
		}
		// The retained samples are the newest ones, oldest first.
		for i, s := range got {
			if s.T != float64(n-want+i) {
				t.Fatalf("n=%d: sample %d has t=%v, want %v", n, i, s.T, float64(n-want+i))
			}
		}
	}
}

func TestSnapshot_Window(t *testing.T) {
	r := MustNew(16)
	for i := 0; i < 10; i++ {
		r.Push(float64(i)*0.5, float64(i))
	}
	// latest=4.5, window=1.5 -> t in [3.0, 4.5]
	got := r.Snapshot(4.5, 1.5)
	want := []Sample{{3.0, 6}, {3.5, 7}, {4.0, 8}, {4.5, 9}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}

	// Samples newer than latest are excluded.
	got = r.Snapshot(2.0, 1.0)
	if len(got) != 3 || got[0].T != 1.0 || got[2].T != 2.0 {
		t.Fatalf("unexpected window [1,2]: %v", got)
	}
}

func TestSnapshotWithBaseline(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		r := MustNew(4)
		if got := r.SnapshotWithBaseline(10, 1); len(got) != 0 {
			t.Fatalf("expected empty, got %v", got)
		}
	})

	t.Run("only stale baseline", func(t *testing.T) {
		r := MustNew(4)
		r.Push(1.0, 1)
		got := r.SnapshotWithBaseline(10, 1)
		if len(got) != 1 || got[0] != (Sample{1.0, 1}) {
			t.Fatalf("expected baseline only, got %v", got)
		}
	})

	t.Run("both sides", func(t *testing.T) {
		r := MustNew(16)
		r.Push(1.0, 0)
		r.Push(2.0, 1)
		r.Push(9.5, 0)
		r.Push(10.0, 1)
		got := r.SnapshotWithBaseline(10, 1)
		want := []Sample{{2.0, 1}, {9.5, 0}, {10.0, 1}}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("sample %d: got %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("no pre-cutoff sample", func(t *testing.T) {
		r := MustNew(4)
		r.Push(9.8, 1)
		got := r.SnapshotWithBaseline(10, 1)
		if len(got) != 1 || got[0].T != 9.8 {
			t.Fatalf("got %v", got)
		}
	})
}

func TestClear(t *testing.T) {
	r := MustNew(4)
	r.Push(1, 1)
	r.Push(2, 2)
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("Len() after Clear = %d", r.Len())
	}
	if _, ok := r.Latest(); ok {
		t.Fatalf("Latest() after Clear should be empty")
	}
	if got := r.Snapshot(2, 10); len(got) != 0 {
		t.Fatalf("Snapshot after Clear = %v", got)
	}
	r.Push(3, 3)
	s, ok := r.Latest()
	if !ok || s != (Sample{3, 3}) {
		t.Fatalf("Latest() = %v, %v", s, ok)
	}
}

func TestConcurrentSnapshotDuringPush(t *testing.T) {
	r := MustNew(64)
	const n = 20000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			r.Push(float64(i), 1)
		}
	}()

	for i := 0; i < 200; i++ {
		got := r.Snapshot(float64(n), float64(n))
		if len(got) > r.Cap() {
			t.Fatalf("snapshot returned %d samples, cap %d", len(got), r.Cap())
		}
	}
	wg.Wait()

	if r.Len() != r.Cap() {
		t.Fatalf("Len() = %d, want %d", r.Len(), r.Cap())
	}
}

func TestClearConcurrentWithPush(t *testing.T) {
	for trial := 0; trial < 500; trial++ {
		r := MustNew(1024)
		var (
			pushed atomic.Uint64
			stop   atomic.Bool
			wg     sync.WaitGroup
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint64(0); !stop.Load(); i++ {
				r.Push(float64(i), 1)
				pushed.Store(i + 1)
			}
		}()

		for pushed.Load() < 16 {
			runtime.Gosched()
		}
		before := pushed.Load()
		r.Clear()
		stop.Store(true)
		wg.Wait()

		for _, s := range r.Snapshot(1e18, 2e18) {
			if s.T < float64(before) {
				t.Fatalf("trial %d: sample t=%v pushed before Clear (at %d) survived", trial, s.T, before)
			}
		}
	}
}

func TestSnapshot_StopsAtCutoff(t *testing.T) {
	r := MustNew(1 << 16)
	for i := 0; i < r.Cap(); i++ {
		r.Push(float64(i)*0.001, float64(i))
	}
	latest := float64(r.Cap()-1) * 0.001

	got := r.Snapshot(latest, 0.01)
	if len(got) < 10 || len(got) > 11 {
		t.Fatalf("got %d samples for a 10ms window", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].T <= got[i-1].T {
			t.Fatalf("samples out of order at %d: %v", i, got)
		}
	}

	withBase := r.SnapshotWithBaseline(latest, 0.01)
	if len(withBase) != len(got)+1 || withBase[0].T >= latest-0.01 {
		t.Fatalf("baseline missing: %v", withBase[:2])
	}
	if withBase[1] != got[0] {
		t.Fatalf("baseline not directly before window: %v vs %v", withBase[1], got[0])
	}
}
