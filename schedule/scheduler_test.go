package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name    string
	runs    atomic.Int32
	err     error
	block   chan struct{}
	started chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.started != nil {
		j.started <- struct{}{}
	}
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestCronScheduler_AddJob(t *testing.T) {
	s := NewCronScheduler()

	require.NoError(t, s.AddJob(&countingJob{name: "sweep"}, "@every 5m"))
	require.NoError(t, s.AddJob(&countingJob{name: "nightly"}, "0 3 * * *"))
	assert.Len(t, s.entries, 2)

	// Same name replaces the entry
	require.NoError(t, s.AddJob(&countingJob{name: "sweep"}, "@hourly"))
	assert.Len(t, s.entries, 2)
	assert.Len(t, s.cron.Entries(), 2)

	assert.Error(t, s.AddJob(&countingJob{name: "bad"}, "not a spec"))
}

func TestCronScheduler_WrapRunsJob(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "job", err: errors.New("ignored")}

	run := s.wrap(job, "@every 1m")
	run()
	run()
	assert.Equal(t, int32(2), job.runs.Load())
}

func TestCronScheduler_WrapSkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "slow", block: make(chan struct{}), started: make(chan struct{}, 1)}
	run := s.wrap(job, "@every 1m")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		run()
	}()
	<-job.started

	run() // skipped while the first run blocks
	close(job.block)
	wg.Wait()

	assert.Equal(t, int32(1), job.runs.Load())
}

func TestCronScheduler_StartStop(t *testing.T) {
	s := NewCronScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	assert.Equal(t, ctx, s.runContext())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
