package concurrency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/logger"
	"github.com/tejashwikalptaru/tubetune/internal/testutil"
)

func TestRegistry_DuplicateNamesReuseExisting(t *testing.T) {
	log, captured := logger.NewCaptureLogger()
	r := NewRegistry(log)
	defer r.Close()

	q1, err := CreateQueue[int](r, "commands")
	require.NoError(t, err)
	q2, err := CreateQueue[int](r, "commands")
	assert.ErrorIs(t, err, domain.ErrNameTaken)
	assert.Same(t, q1, q2)

	f1, err := r.CreateCrossProcessFlag("stop")
	require.NoError(t, err)
	f2, err := r.CreateCrossProcessFlag("stop")
	assert.ErrorIs(t, err, domain.ErrNameTaken)
	assert.Same(t, f1, f2)

	// separate namespaces
	coop, err := r.CreateCooperativeFlag("stop")
	require.NoError(t, err)
	assert.NotSame(t, f1, coop)

	s1, err := r.CreateIndexSlot("select")
	require.NoError(t, err)
	s2, err := r.CreateIndexSlot("select")
	assert.ErrorIs(t, err, domain.ErrNameTaken)
	assert.Same(t, s1, s2)

	assert.Contains(t, captured.String(), "queue already exists")
	assert.Contains(t, captured.String(), "cross-process flag already exists")
}

func TestRegistry_MissingLookupsWarn(t *testing.T) {
	log, captured := logger.NewCaptureLogger()
	r := NewRegistry(log)
	defer r.Close()

	assert.Nil(t, LookupQueue[int](r, "nope"))
	assert.Nil(t, r.CrossProcessFlag("nope"))
	assert.Nil(t, r.ThreadSignal("nope"))
	assert.Nil(t, r.IndexSlot("nope"))
	assert.Nil(t, r.Task("nope"))
	assert.Nil(t, r.Thread("nope"))
	assert.False(t, r.HasTask("nope"))

	out := captured.String()
	assert.Contains(t, out, "queue not found")
	assert.Contains(t, out, "task not found")
	assert.Contains(t, out, "name=nope")
}

func TestRegistry_LookupQueueWrongType(t *testing.T) {
	r := NewRegistry(logger.NewTestLogger())
	defer r.Close()

	_, err := CreateQueue[string](r, "responses")
	require.NoError(t, err)
	assert.Nil(t, LookupQueue[int](r, "responses"))
	assert.NotNil(t, LookupQueue[string](r, "responses"))
}

func TestRegistry_TaskNameFreedAfterExit(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	r := NewRegistry(logger.NewTestLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background()) }()

	gate := NewSignal("gate")
	first, err := r.CreateTask("Playlist Manager", func(ctx context.Context) error {
		return gate.Wait(ctx)
	})
	require.NoError(t, err)

	dup, err := r.CreateTask("Playlist Manager", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNameTaken)
	assert.Same(t, first, dup)

	gate.Set()
	require.NoError(t, first.Wait(context.Background()))
	assert.Eventually(t, func() bool { return !r.HasTask("Playlist Manager") }, time.Second, time.Millisecond)

	second, err := r.CreateTask("Playlist Manager", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	r.ProgramClose().Set()
	require.NoError(t, <-errCh)
	r.Close()
}

func TestRegistry_ThreadsJoinOnClose(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	r := NewRegistry(logger.NewTestLogger())

	th, err := r.CreateThread("Response Listener", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	_, err = r.CreateThread("Response Listener", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNameTaken)

	r.Close()
	assert.True(t, th.Done().IsSet())
	assert.ErrorIs(t, th.Err(), context.Canceled)
}

func TestRegistry_ShutdownOrder(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	r := NewRegistry(logger.NewTestLogger())

	downloaderClosed, err := r.CreateThreadSignal("Downloader Closed")
	require.NoError(t, err)
	r.AwaitOnShutdown("Playlist Manager")
	r.AwaitSignalOnShutdown("Downloader Closed")

	var mu sync.Mutex
	var trace []string
	record := func(s string) {
		mu.Lock()
		trace = append(trace, s)
		mu.Unlock()
	}

	release := NewSignal("release sequencer")
	_, err = r.CreateTask("Playlist Manager", func(ctx context.Context) error {
		_ = release.Wait(ctx)
		record("sequencer finished")
		return nil
	})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background()) }()

	r.ProgramClose().Set()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, r.WindowCloseSafe().IsSet(), "must wait for the sequencer")

	release.Set()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, r.WindowCloseSafe().IsSet(), "must wait for the downloader")

	record("downloader closed")
	downloaderClosed.Set()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("registry did not shut down")
	}
	assert.True(t, r.WindowCloseSafe().IsSet())
	assert.Equal(t, []string{"sequencer finished", "downloader closed"}, trace)
	r.Close()
}

func TestRegistry_ShutdownWithoutSequencer(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	r := NewRegistry(logger.NewTestLogger())
	r.AwaitOnShutdown("Playlist Manager")

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background()) }()
	r.ProgramClose().Set()

	require.NoError(t, <-errCh)
	assert.True(t, r.WindowCloseSafe().IsSet())
	r.Close()
}

func TestRegistry_OnStartBeforeFirstTask(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	r := NewRegistry(logger.NewTestLogger())

	var trace []string
	r.ScheduleOnStart(func() { trace = append(trace, "scan playlists") })
	_, err := r.CreateTask("first", func(context.Context) error {
		trace = append(trace, "first")
		r.ProgramClose().Set()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []string{"scan playlists", "first"}, trace)
	r.Close()
}
