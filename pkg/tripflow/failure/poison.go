package failure

import (
	"sync"
	"time"
)

// PoisonDetector tracks repeated failures of identical payloads by
// content fingerprint. A payload whose failure count exceeds the
// threshold within the tracking window is a poison pill.
//
// The detector is a small counting store with its own TTL rather than
// per-request state, so the verdict holds across independently scheduled
// workers feeding the same classifier.
type PoisonDetector struct {
	mu       sync.RWMutex
	failures map[string]*failureTally
	cfg      PoisonConfig
	stopCh   chan struct{}
}

// failureTally tracks failures for one payload fingerprint.
type failureTally struct {
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
}

// PoisonConfig configures poison-pill detection.
type PoisonConfig struct {
	// Threshold is the failure count a fingerprint must exceed to be
	// flagged. Default: 3.
	Threshold int

	// Window is how long failures are tracked. Default: 1 hour.
	Window time.Duration

	// CleanupInterval is how often stale tallies are dropped.
	// Default: 5 minutes.
	CleanupInterval time.Duration

	// Now supplies the current time. Default: time.Now.
	Now func() time.Time

	// OnDetect is called once when a fingerprint crosses the threshold.
	OnDetect func(fingerprint string, count int)
}

// DefaultPoisonConfig provides the standard detection thresholds.
var DefaultPoisonConfig = PoisonConfig{
	Threshold:       3,
	Window:          1 * time.Hour,
	CleanupInterval: 5 * time.Minute,
}

// NewPoisonDetector creates a detector and starts its cleanup goroutine.
// Call Close when done.
func NewPoisonDetector(cfg PoisonConfig) *PoisonDetector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultPoisonConfig.Threshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultPoisonConfig.Window
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultPoisonConfig.CleanupInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	d := &PoisonDetector{
		failures: make(map[string]*failureTally),
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}

	go d.cleanupLoop()

	return d
}

// Record registers a failure for a fingerprint and returns the updated
// count within the window.
func (d *PoisonDetector) Record(fingerprint string) int {
	now := d.cfg.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	tally, ok := d.failures[fingerprint]
	if !ok || now.Sub(tally.FirstSeen) > d.cfg.Window {
		tally = &failureTally{FirstSeen: now}
		d.failures[fingerprint] = tally
	}

	tally.Count++
	tally.LastSeen = now

	if tally.Count == d.cfg.Threshold+1 && d.cfg.OnDetect != nil {
		d.cfg.OnDetect(fingerprint, tally.Count)
	}

	return tally.Count
}

// IsPoison reports whether a fingerprint has exceeded the threshold
// within the tracking window.
func (d *PoisonDetector) IsPoison(fingerprint string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tally, ok := d.failures[fingerprint]
	if !ok {
		return false
	}
	if d.cfg.Now().Sub(tally.FirstSeen) > d.cfg.Window {
		return false
	}
	return tally.Count > d.cfg.Threshold
}

// Count returns the tracked failure count for a fingerprint.
func (d *PoisonDetector) Count(fingerprint string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tally, ok := d.failures[fingerprint]
	if !ok {
		return 0
	}
	return tally.Count
}

// Clear resets tracking for a fingerprint.
func (d *PoisonDetector) Clear(fingerprint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failures, fingerprint)
}

// Stats returns detector statistics.
func (d *PoisonDetector) Stats() PoisonStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := PoisonStats{TrackedFingerprints: len(d.failures)}
	for _, tally := range d.failures {
		if tally.Count > d.cfg.Threshold {
			stats.PoisonCount++
		}
	}
	return stats
}

// PoisonStats provides detector statistics.
type PoisonStats struct {
	TrackedFingerprints int // unique fingerprints being tracked
	PoisonCount         int // fingerprints over the threshold
}

// Close stops the cleanup goroutine.
func (d *PoisonDetector) Close() {
	close(d.stopCh)
}

func (d *PoisonDetector) cleanupLoop() {
	ticker := time.NewTicker(d.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.cleanup()
		}
	}
}

func (d *PoisonDetector) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.cfg.Now()
	for fingerprint, tally := range d.failures {
		if now.Sub(tally.FirstSeen) > d.cfg.Window {
			delete(d.failures, fingerprint)
		}
	}
}
