// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camrec/internal/config"
	"github.com/ManuGH/camrec/internal/log"
	"github.com/ManuGH/camrec/internal/persistence/sqlite"
)

// PerformStartupChecks validates the environment and dependencies before starting the daemon.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkWritableDir(cfg.OutputDir); err != nil {
		return fmt.Errorf("output directory check failed: %w", err)
	}
	logger.Info().Str("path", cfg.OutputDir).Msg("output directory is writable")
	warnIfTemp(logger, cfg.OutputDir)

	if cfg.Writer.Backend == config.BackendFFmpeg {
		bin := strings.TrimSpace(cfg.Writer.FFmpegPath)
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("ffmpeg binary not found (%s): %w", bin, err)
		}
		logger.Info().Str("ffmpeg", bin).Msg("encoder binary available")
	}

	if cfg.Catalog.VerifyOnStartup {
		if err := checkCatalog(logger, cfg.Catalog.Path); err != nil {
			return fmt.Errorf("catalog check failed: %w", err)
		}
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

// checkCatalog runs a quick integrity check on an existing catalog. A
// missing file is fine; it is created on open.
func checkCatalog(logger zerolog.Logger, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info().Str("path", path).Msg("catalog does not exist yet")
		return nil
	}
	problems, err := sqlite.VerifyIntegrity(path, "quick")
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return fmt.Errorf("catalog %s is corrupt: %s", path, strings.Join(problems, "; "))
	}
	logger.Info().Str("path", path).Msg("catalog integrity ok")
	return nil
}

func warnIfTemp(logger zerolog.Logger, dir string) {
	tempDir := filepath.Clean(os.TempDir())
	dir = filepath.Clean(dir)
	if tempDir != "." && (dir == tempDir || strings.HasPrefix(dir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("output_dir", dir).
			Msg("output directory is under temp; recordings may be lost on reboot")
	}
}
