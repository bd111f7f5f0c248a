package worker

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var errSplit = errors.New("nothing to split")

// splitResult carries the names split from one creator string
type splitResult struct {
	index int
	names []string
	err   error
}

func (r *splitResult) GetError() error { return r.err }

// splitJob splits a creator string on semicolons after an optional delay
type splitJob struct {
	index   int
	creator string
	delay   time.Duration
	onStart func()
	onEnd   func()
}

func (j *splitJob) Execute(ctx context.Context) Result {
	if j.onStart != nil {
		j.onStart()
	}
	if j.onEnd != nil {
		defer j.onEnd()
	}
	if j.delay > 0 {
		select {
		case <-time.After(j.delay):
		case <-ctx.Done():
			return &splitResult{index: j.index, err: ctx.Err()}
		}
	}
	if strings.TrimSpace(j.creator) == "" {
		return &splitResult{index: j.index, err: errSplit}
	}
	var names []string
	for _, part := range strings.Split(j.creator, ";") {
		if p := strings.TrimSpace(part); p != "" {
			names = append(names, p)
		}
	}
	return &splitResult{index: j.index, names: names}
}

func TestNewPool_WorkerFloor(t *testing.T) {
	for _, tc := range []struct{ in, want int }{{4, 4}, {0, 1}, {-3, 1}} {
		if got := NewPool(context.Background(), tc.in).workers; got != tc.want {
			t.Errorf("NewPool(%d).workers = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestPool_GathersInSubmissionOrder(t *testing.T) {
	pool := NewPool(context.Background(), 4)
	pool.Start()

	creators := []string{"Smith, J.; Doe, A.", "Jane Roe", "Lee, K.; Park, S.; Kim, H."}
	rng := rand.New(rand.NewSource(7))
	const n = 45
	for i := 0; i < n; i++ {
		// Random delays finish jobs out of order
		pool.Submit(&splitJob{
			index:   i,
			creator: creators[i%len(creators)],
			delay:   time.Duration(rng.Intn(4)) * time.Millisecond,
		})
	}

	results := pool.Wait()
	if len(results) != n {
		t.Fatalf("got %d results, want %d", len(results), n)
	}
	wantNames := []int{2, 1, 3}
	for i, r := range results {
		sr, ok := r.(*splitResult)
		if !ok || sr == nil {
			t.Fatalf("slot %d is empty", i)
		}
		if sr.index != i {
			t.Errorf("slot %d holds job %d", i, sr.index)
		}
		if len(sr.names) != wantNames[i%3] {
			t.Errorf("slot %d: %d names, want %d", i, len(sr.names), wantNames[i%3])
		}
	}
}

func TestPool_NoDeadlockPastBuffers(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	const n = 600
	done := make(chan []Result, 1)
	go func() {
		for i := 0; i < n; i++ {
			pool.Submit(&splitJob{index: i, creator: "A; B"})
		}
		done <- pool.Wait()
	}()

	select {
	case results := <-done:
		if len(results) != n {
			t.Errorf("got %d results, want %d", len(results), n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool deadlocked")
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	const workers = 6
	pool := NewPool(context.Background(), workers)
	pool.Start()

	var inFlight, peak, finished atomic.Int32
	for i := 0; i < 40; i++ {
		pool.Submit(&splitJob{
			index:   i,
			creator: "Name",
			delay:   5 * time.Millisecond,
			onStart: func() {
				cur := inFlight.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
			},
			onEnd: func() {
				inFlight.Add(-1)
				finished.Add(1)
			},
		})
	}
	pool.Wait()

	if finished.Load() != 40 {
		t.Errorf("finished %d jobs, want 40", finished.Load())
	}
	if p := peak.Load(); p > workers {
		t.Errorf("peak concurrency %d exceeds %d workers", p, workers)
	}
}

func TestPool_FailureStaysInItsSlot(t *testing.T) {
	pool := NewPool(context.Background(), 3)
	pool.Start()

	pool.Submit(&splitJob{index: 0, creator: "Smith, J."})
	pool.Submit(&splitJob{index: 1, creator: "   "})
	pool.Submit(&splitJob{index: 2, creator: "Doe, A."})

	results := pool.Wait()
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !errors.Is(results[1].GetError(), errSplit) {
		t.Errorf("slot 1 error = %v, want errSplit", results[1].GetError())
	}
	for _, i := range []int{0, 2} {
		if err := results[i].GetError(); err != nil {
			t.Errorf("slot %d unexpected error: %v", i, err)
		}
	}
}

func TestResultCollector_LeavesGapsNil(t *testing.T) {
	c := NewResultCollector()
	c.Add(3, &splitResult{index: 3})
	c.Add(0, &splitResult{index: 0, err: errSplit})
	c.Add(9, &splitResult{index: 9}) // beyond the requested length

	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}
	got := c.Ordered(4)
	if len(got) != 4 {
		t.Fatalf("Ordered(4) returned %d slots", len(got))
	}
	if got[0] == nil || got[0].GetError() == nil {
		t.Error("slot 0 should hold the failed result")
	}
	if got[1] != nil || got[2] != nil {
		t.Error("slots 1 and 2 should be nil")
	}
	if got[3] == nil {
		t.Error("slot 3 should be filled")
	}
}

func TestPool_RejectsLateSubmissions(t *testing.T) {
	t.Run("after shutdown", func(t *testing.T) {
		pool := NewPool(context.Background(), 2)
		pool.Start()
		pool.Shutdown()

		accepted := make(chan bool, 1)
		go func() { accepted <- pool.Submit(&splitJob{creator: "X"}) }()
		select {
		case ok := <-accepted:
			if ok {
				t.Error("Submit after Shutdown was accepted")
			}
		case <-time.After(time.Second):
			t.Fatal("Submit after Shutdown blocked")
		}
	})

	t.Run("after wait", func(t *testing.T) {
		pool := NewPool(context.Background(), 1)
		pool.Start()
		pool.Wait()
		if pool.Submit(&splitJob{creator: "X"}) {
			t.Error("Submit after Wait was accepted")
		}
		if pool.Submitted() != 0 {
			t.Errorf("Submitted = %d, want 0", pool.Submitted())
		}
	})
}

func TestPool_ShutdownKeepsFinishedWork(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	pool.Start()

	running := make(chan struct{})
	pool.Submit(&splitJob{index: 0, creator: "Smith, J.", delay: 40 * time.Millisecond, onStart: func() { close(running) }})
	pool.Submit(&splitJob{index: 1, creator: "Doe, A."})
	<-running

	stopped := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not return")
	}

	results := pool.Wait()
	if len(results) != 2 {
		t.Fatalf("got %d slots, want 2", len(results))
	}
	if results[0] == nil {
		t.Error("the running job should have reported a result")
	}
}

func TestPool_CancelledBeforeWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1)
	pool.Start()
	cancel()

	pool.Submit(&splitJob{creator: "Smith, J.", delay: 30 * time.Millisecond})
	for i, r := range pool.Wait() {
		if r != nil && r.GetError() == nil {
			t.Errorf("slot %d succeeded after cancellation", i)
		}
	}
}
