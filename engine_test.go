package loom

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func newTestEngine(t *testing.T, maxThreads int) *Engine {
	t.Helper()
	e := New(WithMaxThreads(maxThreads), WithStartupTimeout(2*time.Second))
	t.Cleanup(e.Shutdown)
	return e
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestEnqueueDispatchesInPriorityOrder(t *testing.T) {
	e := newTestEngine(t, 1) // a single worker makes order observable

	var mu sync.Mutex
	var order []int

	record := func(n int) Job {
		return NewFuncJob(n, func(self Job, w *Worker) error {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return nil
		})
	}

	// Hold the lone worker busy with a blocking job first so every
	// priority below is in the assignment list simultaneously.
	release := make(chan struct{})
	blocker := NewFuncJob(100, func(self Job, w *Worker) error {
		<-release
		return nil
	})
	e.Enqueue(blocker)
	waitFor(t, time.Second, func() bool { return e.CurrentThreads() >= 1 })

	e.Enqueue(record(1), record(5), record(3))
	waitFor(t, time.Second, func() bool { return e.QueueLength() == 3 })

	close(release)
	e.Finish()

	mu.Lock()
	defer mu.Unlock()
	want := []int{5, 3, 1}
	if len(order) != len(want) {
		t.Fatalf("order = %v; want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v; want %v", order, want)
		}
	}
}

func TestQueuePolicyGatesDispatch(t *testing.T) {
	e := newTestEngine(t, 2)

	gate := &toggleablePolicy{allowed: false}
	started := make(chan struct{})

	j := NewFuncJob(0, func(self Job, w *Worker) error {
		close(started)
		return nil
	}, gate)

	e.Enqueue(j)

	select {
	case <-started:
		t.Fatal("job ran before its policy allowed it")
	case <-time.After(50 * time.Millisecond):
	}

	gate.allow()
	e.RequestAbort() // no-op here, just exercising the call; does not unblock dispatch
	// a real unblock needs the engine to re-scan; Enqueue and Finish both
	// broadcast jobAvailable, so nudge it with another Enqueue.
	e.Enqueue(NewFuncJob(0, func(self Job, w *Worker) error { return nil }))

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("job never ran after its policy allowed it")
	}
}

type toggleablePolicy struct {
	mu      sync.Mutex
	allowed bool
}

func (p *toggleablePolicy) allow() {
	p.mu.Lock()
	p.allowed = true
	p.mu.Unlock()
}

func (p *toggleablePolicy) CanRun(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allowed
}

func (p *toggleablePolicy) Release(job Job) {}
func (p *toggleablePolicy) Free(job Job)    {}

func TestSuspendStopsNewDispatchAndResumeContinues(t *testing.T) {
	e := newTestEngine(t, 1)

	ran := make(chan struct{}, 1)
	blockFirst := make(chan struct{})
	e.Enqueue(NewFuncJob(0, func(self Job, w *Worker) error {
		<-blockFirst
		return nil
	}))
	waitFor(t, time.Second, func() bool { return e.CurrentThreads() >= 1 })

	e.Suspend()
	close(blockFirst) // let the active job finish; engine should settle in Suspended

	waitFor(t, time.Second, func() bool { return stateID(e.state.Load()) == stateSuspended })

	second := NewFuncJob(0, func(self Job, w *Worker) error {
		ran <- struct{}{}
		return nil
	})
	e.Enqueue(second)

	select {
	case <-ran:
		t.Fatal("job ran while engine was suspended")
	case <-time.After(50 * time.Millisecond):
	}

	e.Resume()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job never ran after Resume")
	}
}

func TestShutdownDrainsPendingWork(t *testing.T) {
	e := New(WithMaxThreads(4), WithStartupTimeout(2*time.Second))

	var completed int
	var mu sync.Mutex
	n := 20
	jobs := make([]Job, n)
	for i := 0; i < n; i++ {
		jobs[i] = NewFuncJob(i, func(self Job, w *Worker) error {
			mu.Lock()
			completed++
			mu.Unlock()
			return nil
		})
	}
	e.Enqueue(jobs...)

	e.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if completed != n {
		t.Fatalf("completed = %d; want %d", completed, n)
	}
	if !e.IsEmpty() {
		t.Fatal("assignment list not empty after shutdown")
	}
}

func TestOperationsAfterShutdownAreNoops(t *testing.T) {
	e := New(WithMaxThreads(2))
	e.Shutdown()

	var ran bool
	e.Enqueue(NewFuncJob(0, func(self Job, w *Worker) error {
		ran = true
		return nil
	}))

	time.Sleep(20 * time.Millisecond)
	if ran {
		t.Fatal("job ran after Shutdown")
	}
	if !e.IsEmpty() {
		t.Fatal("engine accepted a job after Shutdown")
	}

	e.Shutdown() // must not panic or block
}

// TestConcurrentSubmittersAllComplete fans out many goroutines enqueuing
// jobs at once, the way a real caller with several independent producers
// would, and joins them with errgroup rather than a bare WaitGroup.
func TestConcurrentSubmittersAllComplete(t *testing.T) {
	e := newTestEngine(t, 4)

	var completed atomic.Int64
	const submitters = 8
	const perSubmitter = 10

	g, _ := errgroup.WithContext(context.Background())
	for s := 0; s < submitters; s++ {
		g.Go(func() error {
			for i := 0; i < perSubmitter; i++ {
				e.Enqueue(NewFuncJob(i, func(self Job, w *Worker) error {
					completed.Add(1)
					return nil
				}))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup.Wait() = %v", err)
	}

	e.Finish()

	if got, want := completed.Load(), int64(submitters*perSubmitter); got != want {
		t.Fatalf("completed = %d; want %d", got, want)
	}
}

func TestDequeueRemovesQueuedJob(t *testing.T) {
	e := newTestEngine(t, 1)

	blockFirst := make(chan struct{})
	e.Enqueue(NewFuncJob(10, func(self Job, w *Worker) error {
		<-blockFirst
		return nil
	}))
	waitFor(t, time.Second, func() bool { return e.CurrentThreads() >= 1 })

	j := NewFuncJob(0, func(self Job, w *Worker) error { return nil })
	e.Enqueue(j)
	waitFor(t, time.Second, func() bool { return e.QueueLength() == 1 })

	if !e.Dequeue(j) {
		t.Fatal("Dequeue returned false for a queued job")
	}
	if got := j.Status(); got != StatusNew {
		t.Fatalf("status after dequeue = %s; want New", got)
	}

	close(blockFirst)
}

type suspendRecordingObserver struct {
	BaseObserver
	mu    sync.Mutex
	count int
}

func (o *suspendRecordingObserver) ThreadSuspended(int) {
	o.mu.Lock()
	o.count++
	o.mu.Unlock()
}

func (o *suspendRecordingObserver) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

// TestWorkerParkingEmitsThreadSuspended checks that a worker with nothing
// left to dispatch reports itself suspended before blocking, the way
// WeaverImpl's blockThreadUntilJobsAreBeingAssigned_locked does.
func TestWorkerParkingEmitsThreadSuspended(t *testing.T) {
	e := newTestEngine(t, 1)
	obs := &suspendRecordingObserver{}
	e.RegisterObserver(obs)

	done := make(chan struct{})
	e.Enqueue(NewFuncJob(0, func(self Job, w *Worker) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}

	waitFor(t, time.Second, func() bool { return obs.Count() > 0 })
}
