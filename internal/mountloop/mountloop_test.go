package mountloop

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaXOng/tag-filesystem/internal/config"
	"github.com/JoshuaXOng/tag-filesystem/internal/delegatestore"
	"github.com/JoshuaXOng/tag-filesystem/internal/model"
	"github.com/JoshuaXOng/tag-filesystem/internal/snapshot"
	"github.com/JoshuaXOng/tag-filesystem/internal/tagfs"
	"github.com/JoshuaXOng/tag-filesystem/internal/vfsadapter"
)

func newTestAdapterAt(t *testing.T, dir string) *vfsadapter.Adapter {
	t.Helper()
	snap, err := snapshot.New(dir)
	require.NoError(t, err)
	fs := tagfs.New(delegatestore.NewStubDelegate(), snap, model.Attrs{Mode: os.ModeDir | 0755})
	return vfsadapter.New(fs, silentLogger())
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAdapter(t *testing.T) *vfsadapter.Adapter {
	t.Helper()
	snap, err := snapshot.New(t.TempDir())
	require.NoError(t, err)
	fs := tagfs.New(delegatestore.NewStubDelegate(), snap, model.Attrs{Mode: os.ModeDir | 0755})
	return vfsadapter.New(fs, silentLogger())
}

func TestPersistLoopSavesOnCadenceAndStopsCleanly(t *testing.T) {
	dir := t.TempDir()
	adapter := newTestAdapterAt(t, dir)
	cfg := &config.Config{
		PersistenceCadence:  10 * time.Millisecond,
		PersistenceCooldown: 0,
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go persistLoop(cfg, adapter, silentLogger(), stop, done)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "pointers.json"))
		return err == nil
	}, time.Second, 5*time.Millisecond, "persistLoop never saved on its cadence")
	require.NoError(t, adapter.FsyncDir(1))

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("persistLoop did not exit after stop was closed")
	}
}

func TestPersistLoopSkipsWithinCooldown(t *testing.T) {
	dir := t.TempDir()
	adapter := newTestAdapterAt(t, dir)
	cfg := &config.Config{
		PersistenceCadence:  5 * time.Millisecond,
		PersistenceCooldown: time.Hour,
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go persistLoop(cfg, adapter, silentLogger(), stop, done)

	// The first tick saves (no prior save), writing the blue slot.
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "tfs.snapshot.blue"))
		return err == nil
	}, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("persistLoop did not exit after stop was closed")
	}
	assert.NotNil(t, adapter)
	_, err := os.Stat(filepath.Join(dir, "tfs.snapshot.green"))
	assert.True(t, os.IsNotExist(err), "ticks within the cooldown must not save a second time")
}

func TestDestroyWithRetrySucceedsOnFirstAttempt(t *testing.T) {
	adapter := newTestAdapter(t)
	cfg := &config.Config{DestroyRetryInitialBackoff: time.Millisecond, DestroyRetryMaxAttempts: 3}

	assert.NoError(t, destroyWithRetry(cfg, adapter, silentLogger()))
}

func TestDestroyWithRetryGivesUpAfterExhaustingAttempts(t *testing.T) {
	dir := t.TempDir()
	adapter := newTestAdapterAt(t, dir)
	require.NoError(t, os.RemoveAll(dir))

	cfg := &config.Config{DestroyRetryInitialBackoff: time.Millisecond, DestroyRetryMaxAttempts: 3}

	err := destroyWithRetry(cfg, adapter, silentLogger())
	assert.Error(t, err)
}
