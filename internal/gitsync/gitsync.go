// Package gitsync commits and pushes the exported JSON snapshots to the
// website repository. Runs are fire-and-forget: failures are logged with
// a correlation id and recorded on the audit sheet when possible, never
// surfaced to the user whose save triggered them.
package gitsync

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbarkhau/stammtischbot/core/logger"
)

// Exporter regenerates the JSON snapshots before the git operations.
type Exporter interface {
	Run(ctx context.Context) error
}

// Auditor records sync outcomes on the remote audit trail.
type Auditor interface {
	Audit(ctx context.Context, line string)
}

// Syncer runs export + git add/commit/push against one working copy.
// Jobs are serialized: the working copy's index and HEAD cannot take
// concurrent add/commit/push sequences, so overlapping saves queue.
type Syncer struct {
	exporter Exporter
	auditor  Auditor
	repoDir  string
	paths    []string
	enabled  bool
	timeout  time.Duration

	runMu sync.Mutex
}

// New returns a syncer. paths are the repo-relative paths staged on each
// run; enabled=false makes Go a no-op (test sheets must not push).
func New(exporter Exporter, auditor Auditor, repoDir string, paths []string, enabled bool) *Syncer {
	return &Syncer{
		exporter: exporter,
		auditor:  auditor,
		repoDir:  repoDir,
		paths:    paths,
		enabled:  enabled,
		timeout:  2 * time.Minute,
	}
}

// Go starts a sync-and-push in the background and returns immediately.
func (s *Syncer) Go(message string) {
	if s == nil || !s.enabled {
		return
	}
	jobID := uuid.NewString()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.run(ctx, jobID, message); err != nil {
			logger.SYNC.LogAttrs(ctx, slog.LevelError, "gitsync.failed",
				slog.String("job_id", jobID),
				slog.String("err", err.Error()),
			)
		}
	}()
}

// Run performs a sync-and-push in the foreground (used by the CLI).
func (s *Syncer) Run(ctx context.Context, message string) error {
	return s.run(ctx, uuid.NewString(), message)
}

func (s *Syncer) run(ctx context.Context, jobID, message string) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	logger.SYNC.LogAttrs(ctx, slog.LevelInfo, "gitsync.start",
		slog.String("job_id", jobID),
		slog.String("target", message),
	)

	if s.exporter != nil {
		if err := s.exporter.Run(ctx); err != nil {
			return fmt.Errorf("gitsync: export: %w", err)
		}
	}

	if err := s.git(ctx, jobID, append([]string{"add"}, s.paths...)...); err != nil {
		return err
	}
	if err := s.git(ctx, jobID, "commit", "-m", message); err != nil {
		return err
	}
	if err := s.git(ctx, jobID, "push"); err != nil {
		return err
	}

	logger.SYNC.LogAttrs(ctx, slog.LevelInfo, "gitsync.done",
		slog.String("job_id", jobID),
	)
	if s.auditor != nil {
		s.auditor.Audit(ctx, fmt.Sprintf("Git push successful: %s (job %s)", message, jobID))
	}
	return nil
}

func (s *Syncer) git(ctx context.Context, jobID string, args ...string) error {
	logger.SYNC.LogAttrs(ctx, slog.LevelDebug, "gitsync.git",
		slog.String("job_id", jobID),
		slog.String("target", strings.Join(args, " ")),
	)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.repoDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("gitsync: git %s: %w: %s",
			strings.Join(args, " "), err, logger.SanitizeLimit(string(out), 256))
	}
	return nil
}
