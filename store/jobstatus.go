package store

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/quantmill/marketcache/cache"
	"github.com/quantmill/marketcache/signature"
)

// JobStatus is a snapshot of one background job's last run. Snapshots live
// in the durable tier only (newest row per job wins) so they survive
// restarts and are visible to other processes sharing the cache file.
type JobStatus struct {
	Name       string         `json:"name"`
	Outcome    string         `json:"outcome"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Error      string         `json:"error,omitempty"`
	PID        int32          `json:"pid,omitempty"`
	RSSBytes   uint64         `json:"rss_bytes,omitempty"`
	CPUPercent float64        `json:"cpu_percent,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

func jobKey(name string) cache.Key {
	return cache.Key{Path: "job:" + name}
}

// RecordJobStatus persists a job snapshot, enriched with the recording
// process's resource usage. Durable-tier failures degrade to a no-op; only
// an unserializable status is an error.
func (s *Store) RecordJobStatus(ctx context.Context, status JobStatus) error {
	if status.Name == "" {
		return errors.New("store: job status requires a name")
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		status.PID = proc.Pid
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			status.RSSBytes = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			status.CPUPercent = cpu
		}
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return errors.Wrapf(err, "store: serialize status for job %s", status.Name)
	}
	s.durableStatus.Put(ctx, jobKey(status.Name), signature.Signature{}, payload)
	return nil
}

// JobStatus returns the last recorded snapshot for name, or found=false.
func (s *Store) JobStatus(ctx context.Context, name string) (JobStatus, bool) {
	payload, ok := s.durableStatus.Get(ctx, jobKey(name), signature.Signature{})
	if !ok {
		return JobStatus{}, false
	}
	var status JobStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		s.log.Warn("job status %s undecodable: %v", name, err)
		return JobStatus{}, false
	}
	return status, true
}
