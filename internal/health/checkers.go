// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/camrec/internal/capture"
)

// PingChecker reports the result of a ping function, for example the catalog
// database or the Redis event channel. A failing optional dependency only
// degrades health.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	optional bool
	timeout  time.Duration
}

// NewPingChecker creates a checker around ping. Optional dependencies report
// degraded instead of unhealthy.
func NewPingChecker(name string, ping func(ctx context.Context) error, optional bool) *PingChecker {
	return &PingChecker{name: name, ping: ping, optional: optional, timeout: 2 * time.Second}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.ping(ctx); err != nil {
		status := StatusUnhealthy
		if c.optional {
			status = StatusDegraded
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// ControllerView is the read-only controller surface the checker uses.
type ControllerView interface {
	State() capture.State
	Stats() capture.Stats
}

// ControllerChecker reports the recorder state. The controller itself is
// always healthy; a majority of failed recordings degrades it.
type ControllerChecker struct {
	c ControllerView
}

// NewControllerChecker creates a checker for c.
func NewControllerChecker(c ControllerView) *ControllerChecker {
	return &ControllerChecker{c: c}
}

func (c *ControllerChecker) Name() string { return "capture" }

func (c *ControllerChecker) Check(context.Context) CheckResult {
	state := c.c.State()
	st := c.c.Stats()
	msg := fmt.Sprintf("state=%s recordings=%d failed=%d", state, st.RecordingsCompleted, st.RecordingsFailed)
	if st.RecordingsFailed > 0 && st.RecordingsFailed >= st.RecordingsCompleted {
		return CheckResult{Status: StatusDegraded, Message: msg}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}

// DirChecker checks that a directory exists and is writable.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker creates a writable-directory checker.
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(context.Context) CheckResult {
	if err := checkWritableDir(c.path); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	}
	return CheckResult{Status: StatusHealthy, Message: "writable"}
}

func checkWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	f, err := os.CreateTemp(path, ".write_test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(filepath.Clean(name))
	return nil
}
