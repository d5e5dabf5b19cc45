// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package recordings names, classifies and catalogs recording artifacts.
package recordings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LifecycleState is the on-disk state of a file in the output directory.
type LifecycleState string

const (
	StateInProgress LifecycleState = "in_progress" // being written, partial or unstable
	StateFinished   LifecycleState = "finished"    // final name, stable, complete
)

// PartialSuffix marks an artifact whose writer has not finalized it yet.
const PartialSuffix = ".partial"

// ClassifierConfig holds classification parameters.
type ClassifierConfig struct {
	StableWindow time.Duration
	MinSizeBytes int64
	AllowedExt   []string
}

// DefaultClassifierConfig accepts both writer backends' extensions.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		StableWindow: 5 * time.Second,
		MinSizeBytes: 1,
		AllowedExt:   []string{".camrec", ".mp4"},
	}
}

// FileName builds the artifact base name for a recording started at t.
func FileName(t time.Time, id, ext string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("rec-%s-%s%s", t.UTC().Format("20060102T150405Z"), short, ext)
}

// Classify reports StateFinished only if every criterion holds:
//   - the file has not been modified for StableWindow
//   - size >= MinSizeBytes
//   - the extension is allowed
//   - there is no in-progress marker (see hasLockMarker)
func Classify(absPath string, info os.FileInfo, cfg ClassifierConfig) LifecycleState {
	if time.Since(info.ModTime()) < cfg.StableWindow {
		return StateInProgress
	}
	if info.Size() < cfg.MinSizeBytes {
		return StateInProgress
	}
	if hasLockMarker(absPath) {
		return StateInProgress
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	for _, allowed := range cfg.AllowedExt {
		if ext == strings.ToLower(allowed) {
			return StateFinished
		}
	}
	return StateInProgress
}

// hasLockMarker checks for .partial/.lock/.tmp suffixes, renameio pending
// files (hidden dot-prefixed names) and a sibling .lock file.
func hasLockMarker(absPath string) bool {
	lower := strings.ToLower(absPath)
	if strings.HasSuffix(lower, PartialSuffix) ||
		strings.HasSuffix(lower, ".lock") ||
		strings.HasSuffix(lower, ".tmp") {
		return true
	}
	if strings.HasPrefix(filepath.Base(absPath), ".") {
		return true
	}
	if _, err := os.Stat(absPath + ".lock"); err == nil {
		return true
	}
	return false
}

// Entry is one file found by ScanDir.
type Entry struct {
	Path    string         `json:"path"`
	Size    int64          `json:"size"`
	ModTime time.Time      `json:"mod_time"`
	State   LifecycleState `json:"state"`
}

// ScanDir classifies every regular file directly inside dir, newest first.
// A missing directory yields no entries.
func ScanDir(dir string, cfg ClassifierConfig) ([]Entry, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("recordings: resolve %s: %w", dir, err)
	}
	dirEntries, err := os.ReadDir(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recordings: scan %s: %w", abs, err)
	}

	out := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		path := filepath.Join(abs, de.Name())
		out = append(out, Entry{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			State:   Classify(path, info, cfg),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}
