package app

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// profiler appends per-section frame timings to a CSV file. A nil profiler
// is valid and does nothing.
type profiler struct {
	mu    sync.Mutex
	file  *os.File
	start time.Time
	last  time.Time
}

func newProfiler(path string, log logrus.FieldLogger) *profiler {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.WithError(err).Warn("profiler disabled")
		return nil
	}
	p := &profiler{file: f}
	fmt.Fprintln(p.file, "timestamp,section,delta_ms")
	log.WithField("path", path).Info("profiling frames")
	return p
}

func (p *profiler) beginFrame() {
	if p == nil {
		return
	}
	now := time.Now()
	p.start, p.last = now, now
}

func (p *profiler) markSection(name string) {
	if p == nil {
		return
	}
	now := time.Now()
	p.write(name, now.Sub(p.last))
	p.last = now
}

func (p *profiler) endFrame() {
	if p == nil {
		return
	}
	p.write("frame_total", time.Since(p.start))
}

func (p *profiler) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Close()
}

func (p *profiler) write(section string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.file, "%s,%s,%.3f\n", time.Now().Format(time.RFC3339Nano), section, float64(d)/float64(time.Millisecond))
}
