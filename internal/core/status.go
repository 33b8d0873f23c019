package core

import (
	"os"
	"runtime"
	"time"
)

// ResourceStatus is the process report served by /api/status.
type ResourceStatus struct {
	PID         int              `json:"pid"`
	Uptime      string           `json:"uptime"`
	Goroutines  int              `json:"goroutines"`
	HeapAllocMB float64          `json:"heap_alloc_mb"`
	HeapInuseMB float64          `json:"heap_inuse_mb"`
	SysMB       float64          `json:"sys_mb"`
	NumGC       uint32           `json:"num_gc"`
	TrackedJobs int              `json:"tracked_jobs"`
	Limiter     JobLimiterStatus `json:"limiter"`
	ArtifactDir string           `json:"artifact_dir"`
}

const mb = 1024 * 1024

// Status reports memory, goroutines and job slot usage.
func (s *Service) Status() ResourceStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s.mu.RLock()
	tracked := len(s.jobs)
	s.mu.RUnlock()

	return ResourceStatus{
		PID:         os.Getpid(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(m.HeapAlloc) / mb,
		HeapInuseMB: float64(m.HeapInuse) / mb,
		SysMB:       float64(m.Sys) / mb,
		NumGC:       m.NumGC,
		TrackedJobs: tracked,
		Limiter:     s.limiter.Status(),
		ArtifactDir: s.artifactDir,
	}
}
