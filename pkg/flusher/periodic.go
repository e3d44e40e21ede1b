// Package flusher batches report uploads behind a reportstore.Store and
// flushes them on a fixed interval, instead of one Upload call per
// report. It is opt-in: the default per-report Upload path in
// services/orchestrator never goes through it.
package flusher

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/blackironj/periodic"

	"github.com/pescan-dev/pescan/pkg/reportstore"
)

type entry struct {
	bucket, key string
	data        []byte
}

// Periodic buffers uploads in memory and flushes them to store every
// interval, via blackironj/periodic's recurring job scheduler.
type Periodic struct {
	mu      sync.Mutex
	pending []entry
	store   reportstore.Store
	logf    func(format string, args ...interface{})
	job     *periodic.Job
}

// NewPeriodic starts flushing pending uploads to store every interval.
// logf receives a warning when an individual flush fails; it may be nil.
func NewPeriodic(store reportstore.Store, interval time.Duration, logf func(format string, args ...interface{})) *Periodic {
	p := &Periodic{store: store, logf: logf}
	p.job = periodic.NewJob(p.flush, interval)
	p.job.Start()
	return p
}

// Enqueue buffers data for upload to bucket/key on the next flush,
// instead of uploading it immediately.
func (p *Periodic) Enqueue(bucket, key string, data []byte) {
	p.mu.Lock()
	p.pending = append(p.pending, entry{bucket: bucket, key: key, data: data})
	p.mu.Unlock()
}

// flush drains the pending queue and uploads every entry. A per-entry
// failure is logged and skipped; it never blocks the rest of the batch,
// since a flush failure is an ancillary failure, not a scan failure.
func (p *Periodic) flush() {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, e := range batch {
		if err := p.store.Upload(context.Background(), e.bucket, e.key, bytes.NewReader(e.data)); err != nil {
			if p.logf != nil {
				p.logf("flusher: upload of %s/%s failed: %v", e.bucket, e.key, err)
			}
		}
	}
}

// Stop halts the periodic schedule and runs one final flush of anything
// still pending, so a clean shutdown never drops buffered reports.
func (p *Periodic) Stop() {
	p.job.Stop()
	p.flush()
}
