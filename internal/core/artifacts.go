package core

// artifacts.go manages job output files.
//
// Each job writes into its own directory under the artifact dir:
//
//	<artifact dir>/<job id>/clean.csv
//	<artifact dir>/<job id>/rejects.txt
//
// Downloads are named after the uploaded file: "<base>.csv" and
// "<base>.reject.txt". Outputs of failed jobs are removed right away; the
// rest are removed once the retention period passes, either by the job's
// own timer or by SweepArtifacts after a restart.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArtifactKind selects one of a job's two outputs.
type ArtifactKind string

const (
	ArtifactClean   ArtifactKind = "clean"
	ArtifactRejects ArtifactKind = "rejects"
)

// ErrArtifactUnavailable is returned when an output does not exist.
var ErrArtifactUnavailable = errors.New("artifact not available")

// ParseArtifactKind validates a kind from a URL.
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch k := ArtifactKind(s); k {
	case ArtifactClean, ArtifactRejects:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrArtifactUnavailable, s)
}

// DownloadNames returns the clean and reject file names for an upload.
// Directory parts and the .gz plus one more extension are stripped.
func DownloadNames(fileName string) (clean, rejects string) {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' || r == '/' {
			return '_'
		}
		return r
	}, base)
	if base == "" || base == "." || base == ".." {
		base = "output"
	}
	return base + ".csv", base + ".reject.txt"
}

type artifactFiles struct {
	dir         string
	cleanPath   string
	rejectsPath string
	cleanName   string
	rejectsName string
}

func (s *Service) createArtifacts(jobID, fileName string) (artifactFiles, error) {
	dir := filepath.Join(s.artifactDir, jobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return artifactFiles{}, fmt.Errorf("create job dir: %w", err)
	}
	cleanName, rejectsName := DownloadNames(fileName)
	return artifactFiles{
		dir:         dir,
		cleanPath:   filepath.Join(dir, "clean.csv"),
		rejectsPath: filepath.Join(dir, "rejects.txt"),
		cleanName:   cleanName,
		rejectsName: rejectsName,
	}, nil
}

func removeArtifacts(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to remove job outputs", "dir", dir, "error", err)
	}
}

// OpenArtifact opens a finished job's output for download. The caller must
// close the file. The returned name is the suggested download file name.
func (s *Service) OpenArtifact(jobID string, kind ArtifactKind) (*os.File, string, error) {
	job, err := s.lookup(jobID)
	if err != nil {
		return nil, "", err
	}
	res := job.getResult()
	if res == nil {
		return nil, "", ErrJobRunning
	}
	if !res.HasArtifacts() {
		return nil, "", fmt.Errorf("%w: job %s", ErrArtifactUnavailable, res.Phase)
	}

	path, name := filepath.Join(job.dir, "clean.csv"), job.cleanName
	if kind == ArtifactRejects {
		path, name = filepath.Join(job.dir, "rejects.txt"), job.rejectsName
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s expired", ErrArtifactUnavailable, kind)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open %s output: %w", kind, err)
	}
	return f, name, nil
}

// SweepArtifacts removes expired job directories now and then every
// interval until ctx ends. Directories of tracked jobs are left to their
// own timers.
func (s *Service) SweepArtifacts(ctx context.Context, interval time.Duration) error {
	slog.Info("artifact sweeper started", "dir", s.artifactDir, "retention", s.retention)

	s.sweepOnce(time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("artifact sweeper stopped")
			return nil
		case now := <-ticker.C:
			s.sweepOnce(now)
		}
	}
}

// sweepOnce returns the number of directories removed.
func (s *Service) sweepOnce(now time.Time) int {
	entries, err := os.ReadDir(s.artifactDir)
	if err != nil {
		slog.Error("artifact sweep failed", "error", err)
		return 0
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s.mu.RLock()
		_, tracked := s.jobs[e.Name()]
		s.mu.RUnlock()
		if tracked {
			continue
		}

		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < s.retention {
			continue
		}
		removeArtifacts(filepath.Join(s.artifactDir, e.Name()))
		removed++
	}

	if removed > 0 {
		slog.Info("removed expired job outputs", "count", removed)
	}
	return removed
}
