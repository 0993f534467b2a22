package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eHtmlu/peak-publisher/internal/jobs"
)

func TestManager_NewManager(t *testing.T) {
	mgr := jobs.NewManager(nil)
	assert.NotNil(t, mgr)
	assert.Empty(t, mgr.GetStatus())
}

func TestManager_RegisterAndGetStatus(t *testing.T) {
	mgr := jobs.NewManager(nil)
	mgr.Register("jobB", "Job B", func(ctx context.Context) (string, error) { return "", nil })
	mgr.Register("jobA", "Job A", func(ctx context.Context) (string, error) { return "", nil })
	statuses := mgr.GetStatus()
	require.Len(t, statuses, 2)
	assert.Equal(t, "jobA", statuses[0].ID)
	assert.Equal(t, "jobB", statuses[1].ID)
	assert.Equal(t, "idle", statuses[0].Status)
}

func TestManager_RunJob_SuccessAndStatus(t *testing.T) {
	mgr := jobs.NewManager(nil)
	var called bool
	mgr.Register("jobX", "Job X", func(ctx context.Context) (string, error) {
		called = true
		return "removed 2", nil
	})
	require.NoError(t, mgr.RunJob(context.Background(), "jobX"))
	mgr.Wait()
	assert.True(t, called)
	statuses := mgr.GetStatus()
	assert.Equal(t, "success", statuses[0].Status)
	assert.Equal(t, "removed 2", statuses[0].Message)
	assert.False(t, statuses[0].EndTime.IsZero())
}

func TestManager_RunJob_Error(t *testing.T) {
	mgr := jobs.NewManager(nil)
	mgr.Register("jobE", "Job E", func(ctx context.Context) (string, error) {
		return "", errors.New("disk full")
	})
	require.NoError(t, mgr.RunJob(context.Background(), "jobE"))
	mgr.Wait()
	st := mgr.GetStatus()[0]
	assert.Equal(t, "failed", st.Status)
	assert.Equal(t, "disk full", st.Message)
}

func TestManager_RunJob_AlreadyRunning(t *testing.T) {
	mgr := jobs.NewManager(nil)
	block := make(chan struct{})
	mgr.Register("jobY", "Job Y", func(ctx context.Context) (string, error) { <-block; return "", nil })
	require.NoError(t, mgr.RunJob(context.Background(), "jobY"))
	err := mgr.RunJob(context.Background(), "jobY")
	assert.ErrorIs(t, err, jobs.ErrJobRunning)
	close(block)
	mgr.Wait()
}

func TestManager_RunJob_NotFound(t *testing.T) {
	mgr := jobs.NewManager(nil)
	err := mgr.RunJob(context.Background(), "nojob")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestManager_RunJob_Panic(t *testing.T) {
	mgr := jobs.NewManager(nil)
	mgr.Register("panicJob", "Panic Job", func(ctx context.Context) (string, error) { panic("fail") })
	require.NoError(t, mgr.RunJob(context.Background(), "panicJob"))
	mgr.Wait()
	statuses := mgr.GetStatus()
	assert.Equal(t, "failed", statuses[0].Status)
	assert.Contains(t, statuses[0].Message, "panicked")
}

func TestManager_RunJob_OutlivesRequestContext(t *testing.T) {
	mgr := jobs.NewManager(nil)
	var sawCancel bool
	mgr.Register("jobCtx", "Job Ctx", func(ctx context.Context) (string, error) {
		sawCancel = ctx.Err() != nil
		return "", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, mgr.RunJob(ctx, "jobCtx"))
	mgr.Wait()
	assert.False(t, sawCancel)
}

func TestManager_Concurrency(t *testing.T) {
	mgr := jobs.NewManager(nil)
	var mu sync.Mutex
	var count int
	block := make(chan struct{})
	mgr.Register("jobC", "Job C", func(ctx context.Context) (string, error) {
		mu.Lock()
		count++
		mu.Unlock()
		<-block
		return "", nil
	})
	wg := sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			_ = mgr.RunJob(context.Background(), "jobC")
			wg.Done()
		}()
	}
	wg.Wait()
	close(block)
	mgr.Wait()
	mu.Lock()
	assert.Equal(t, 1, count, "job should only run once concurrently")
	mu.Unlock()
}
