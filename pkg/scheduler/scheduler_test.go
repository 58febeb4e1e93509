package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/StricklySoft/bedrock-auth/internal/testutil"
	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// runLoop starts l on a goroutine and stops it when the test ends.
func runLoop(t *testing.T, l *Loop) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(context.Background())
	}()
	t.Cleanup(func() {
		l.Stop()
		<-done
	})
}

type recordingTask struct {
	input    int
	output   int
	ranOn    chan struct{}
	complete chan int
	err      error
	panics   bool
}

func (r *recordingTask) Run(ctx context.Context) {
	if r.panics {
		panic("worker exploded")
	}
	r.output = r.input * 2
}

func (r *recordingTask) Complete() {
	r.complete <- r.output
}

func (r *recordingTask) Recovered(err error) {
	r.err = err
}

func TestLoop_RunsInOrder(t *testing.T) {
	l := NewLoop(0, nil)
	runLoop(t, l)

	var got []int
	for i := range 5 {
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_SurvivesPanic(t *testing.T) {
	l := NewLoop(4, nil)
	runLoop(t, l)

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_PostAfterStop(t *testing.T) {
	l := NewLoop(1, nil)
	l.Stop()
	assert.False(t, l.Post(func() {}))
	err := l.Do(context.Background(), func() {})
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailable)
}

func TestLoop_RunReturnsOnContextCancel(t *testing.T) {
	l := NewLoop(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	<-l.Done()
}

func TestLoop_After(t *testing.T) {
	l := NewLoop(1, nil)
	runLoop(t, l)

	fired := make(chan struct{})
	l.After(10*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	var late atomic.Bool
	cancel := l.After(time.Hour, func() { late.Store(true) })
	assert.True(t, cancel())
	assert.False(t, late.Load())
}

func TestPool_CompletesOnLoop(t *testing.T) {
	l := NewLoop(0, nil)
	runLoop(t, l)
	p := NewPool(l, WithWorkers(2))
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, p.Shutdown(context.Background())) })

	task := &recordingTask{input: 21, complete: make(chan int, 1)}
	require.NoError(t, p.Submit(task))
	select {
	case v := <-task.complete:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete")
	}
}

func TestPool_RecoversPanickingTask(t *testing.T) {
	l := NewLoop(0, nil)
	runLoop(t, l)
	p := NewPool(l, WithWorkers(1))
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, p.Shutdown(context.Background())) })

	task := &recordingTask{panics: true, complete: make(chan int, 1)}
	require.NoError(t, p.Submit(task))
	<-task.complete
	testutil.RequireErrorCode(t, task.err, sserr.CodeInternal)
}

func TestPool_SubmitBeforeStartAndAfterShutdown(t *testing.T) {
	l := NewLoop(0, nil)
	p := NewPool(l, WithWorkers(1))
	err := p.Submit(&recordingTask{})
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailable)

	require.NoError(t, p.Start(context.Background()))
	testutil.RequireErrorCode(t, p.Start(context.Background()), sserr.CodeInternal)
	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))

	err = p.Submit(&recordingTask{})
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailable)
}

type blockingTask struct {
	release chan struct{}
}

func (b *blockingTask) Run(ctx context.Context) {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
}

func (b *blockingTask) Complete() {}

func TestPool_QueueFull(t *testing.T) {
	l := NewLoop(0, nil)
	runLoop(t, l)
	p := NewPool(l, WithWorkers(1), WithQueueSize(1))
	require.NoError(t, p.Start(context.Background()))

	release := make(chan struct{})
	require.NoError(t, p.Submit(&blockingTask{release: release}))
	// The worker may not have dequeued the first task yet, so fill until
	// the queue rejects.
	var err error
	for range 3 {
		if err = p.Submit(&blockingTask{release: release}); err != nil {
			break
		}
	}
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailable)
	assert.Positive(t, p.Pending())

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_ShutdownCancelsRunningTasks(t *testing.T) {
	l := NewLoop(0, nil)
	runLoop(t, l)
	p := NewPool(l, WithWorkers(1))
	require.NoError(t, p.Start(context.Background()))

	require.NoError(t, p.Submit(&blockingTask{release: make(chan struct{})}))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}
