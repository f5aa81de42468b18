package reaper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReleaser struct {
	calls     atomic.Int32
	released  int64
	err       error
	lastLease atomic.Int64
}

func (f *fakeReleaser) ReleaseStale(ctx context.Context, lease time.Duration) (int64, error) {
	f.calls.Add(1)
	f.lastLease.Store(int64(lease))
	if f.err != nil {
		return 0, f.err
	}
	return f.released, nil
}

func TestSweep(t *testing.T) {
	releaser := &fakeReleaser{released: 3}
	r := New(releaser, "0 */5 * * * *", 45*time.Minute)

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, int64(45*time.Minute), releaser.lastLease.Load())
}

func TestSweep_Error(t *testing.T) {
	releaser := &fakeReleaser{err: errors.New("db gone")}
	r := New(releaser, "0 */5 * * * *", 45*time.Minute)

	_, err := r.Sweep(context.Background())
	assert.Error(t, err)
}

func TestStart_InvalidSchedule(t *testing.T) {
	r := New(&fakeReleaser{}, "not a cron expr", time.Minute)
	assert.Error(t, r.Start())
}

func TestStart_RunsOnSchedule(t *testing.T) {
	releaser := &fakeReleaser{}
	// Every second, so the test observes at least one firing quickly.
	r := New(releaser, "* * * * * *", time.Minute)
	require.NoError(t, r.Start())
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return releaser.calls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}
