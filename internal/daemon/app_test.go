// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camrec/internal/capture"
	"github.com/ManuGH/camrec/internal/config"
)

type fakeManager struct {
	startErr error
	started  chan struct{}
	stopped  chan struct{}
}

func newFakeManager(startErr error) *fakeManager {
	return &fakeManager{startErr: startErr, started: make(chan struct{}), stopped: make(chan struct{}, 1)}
}

func (m *fakeManager) Start(ctx context.Context) error {
	close(m.started)
	if m.startErr != nil {
		return m.startErr
	}
	<-ctx.Done()
	return nil
}

func (m *fakeManager) Shutdown(context.Context) error {
	m.stopped <- struct{}{}
	return nil
}

func (m *fakeManager) RegisterShutdownHook(string, ShutdownHook) {}
func (m *fakeManager) Addr() string                             { return "" }

type fakeControls struct {
	mu          sync.Mutex
	rendering   bool
	orientation capture.Orientation
	starts      int
}

func (c *fakeControls) SetRenderingEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rendering = enabled
}

func (c *fakeControls) SetOrientation(o capture.Orientation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orientation = o
	return nil
}

func (c *fakeControls) StartRunning(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	return nil
}

func (c *fakeControls) snapshot() (bool, capture.Orientation, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rendering, c.orientation, c.starts
}

func TestApp_RequiresManager(t *testing.T) {
	app := NewApp(testLogger(), nil, nil, nil, false)
	require.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}

func TestApp_AutoStartAndLiveSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "camrec.yaml")
	write := func(body string) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	write("outputDir: " + dir + "\n")

	loader := config.NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	holder := config.NewHolder(initial, loader)

	controls := &fakeControls{rendering: true, orientation: capture.OrientationPortrait}
	mgr := newFakeManager(nil)
	app := NewApp(testLogger(), mgr, holder, controls, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	<-mgr.started

	require.Eventually(t, func() bool {
		_, _, starts := controls.snapshot()
		return starts == 1
	}, 2*time.Second, 5*time.Millisecond)

	write("outputDir: " + dir + "\ncapture:\n  renderingEnabled: false\n  orientation: landscape_left\n")
	require.Eventually(t, func() bool {
		// Reload until the listener is registered and has applied the change.
		if err := holder.Reload(ctx); err != nil {
			return false
		}
		rendering, o, _ := controls.snapshot()
		return !rendering && o == capture.OrientationLandscapeLeft
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestApp_ManagerFailureShutsDown(t *testing.T) {
	boom := errors.New("listen failed")
	mgr := newFakeManager(boom)
	app := NewApp(testLogger(), mgr, nil, nil, false)

	err := app.Run(context.Background())
	require.ErrorIs(t, err, boom)
	select {
	case <-mgr.stopped:
	default:
		t.Fatal("manager was not shut down after start failure")
	}
}

func TestApp_ApplyPushesCaptureSettings(t *testing.T) {
	controls := &fakeControls{rendering: true}
	app := NewApp(testLogger(), newFakeManager(nil), nil, controls, false)

	cfg := config.Defaults()
	cfg.Capture.RenderingEnabled = false
	cfg.Capture.Orientation = "portrait_upside_down"
	app.apply(cfg)

	rendering, o, starts := controls.snapshot()
	assert.False(t, rendering)
	assert.Equal(t, capture.OrientationPortraitUpsideDown, o)
	assert.Zero(t, starts)
}
