package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestCronScheduler_AddAndRunOnce(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "session_prune"}
	require.NoError(t, s.AddJob(job, "*/10 * * * *"))
	require.Error(t, s.AddJob(job, "*/5 * * * *"))

	manual := &countingJob{name: "corpus_reload", err: errors.New("boom")}
	require.NoError(t, s.AddJob(manual, ""))

	require.NoError(t, s.RunOnce("session_prune"))
	require.NoError(t, s.RunOnce("corpus_reload"))
	require.Error(t, s.RunOnce("missing"))
	require.Equal(t, int32(1), job.runs.Load())
	require.Equal(t, int32(1), manual.runs.Load())

	s.Start(context.Background())
	s.Stop()
}

func TestCronScheduler_InvalidSpec(t *testing.T) {
	s := NewCronScheduler()
	require.Error(t, s.AddJob(&countingJob{name: "bad"}, "not a cron"))
	require.Error(t, s.RunOnce("bad"))
}

func TestCronScheduler_Descriptor(t *testing.T) {
	require.NoError(t, NewCronScheduler().AddJob(&countingJob{name: "hourly"}, "@hourly"))
}
