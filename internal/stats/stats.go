package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Store persists engine statistics.
type Store interface {
	StoreEngineStats(stats map[string]interface{}) error
}

// Stats tracks ingestion and session lifecycle counters.
type Stats struct {
	TotalReports    uint64
	DroppedReports  uint64
	RejectedReports uint64
	OpenedSessions  uint64
	ClosedSessions  uint64
	ForcedClosures  uint64
	Evictions       uint64
	OpenedParkings  uint64
	ClosedParkings  uint64
	SkippedCycles   uint64

	ActiveAircraft uint64
	ActiveSessions uint64

	LastReportTime time.Time
	ProcessingTime time.Duration

	store Store

	mu sync.RWMutex
}

// New creates a new Stats instance.
func New() *Stats {
	return &Stats{
		LastReportTime: time.Now(),
	}
}

// SetStore sets the store used for persistence.
func (s *Stats) SetStore(store Store) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
}

// Persist stores the current statistics.
func (s *Stats) Persist() error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return fmt.Errorf("stats store not set")
	}
	return store.StoreEngineStats(s.Snapshot())
}

// StartPersistence periodically persists statistics until ctx is done.
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Persist(); err != nil {
				fmt.Printf("Warning: failed to persist stats: %v\n", err)
			}
		}
	}
}

// IncrementTotalReports increments the total reports counter.
func (s *Stats) IncrementTotalReports() { atomic.AddUint64(&s.TotalReports, 1) }

// IncrementDroppedReports increments the out-of-order/duplicate drop counter.
func (s *Stats) IncrementDroppedReports() { atomic.AddUint64(&s.DroppedReports, 1) }

// IncrementRejectedReports increments the malformed report counter.
func (s *Stats) IncrementRejectedReports() { atomic.AddUint64(&s.RejectedReports, 1) }

// IncrementOpenedSessions increments the opened overflights counter.
func (s *Stats) IncrementOpenedSessions() { atomic.AddUint64(&s.OpenedSessions, 1) }

// IncrementClosedSessions increments the closed overflights counter.
func (s *Stats) IncrementClosedSessions() { atomic.AddUint64(&s.ClosedSessions, 1) }

// IncrementForcedClosures increments the eviction-forced close counter.
func (s *Stats) IncrementForcedClosures() { atomic.AddUint64(&s.ForcedClosures, 1) }

// IncrementEvictions increments the track eviction counter.
func (s *Stats) IncrementEvictions() { atomic.AddUint64(&s.Evictions, 1) }

// IncrementOpenedParkings increments the opened parking sessions counter.
func (s *Stats) IncrementOpenedParkings() { atomic.AddUint64(&s.OpenedParkings, 1) }

// IncrementClosedParkings increments the closed parking sessions counter.
func (s *Stats) IncrementClosedParkings() { atomic.AddUint64(&s.ClosedParkings, 1) }

// IncrementSkippedCycles increments the abandoned ingestion cycle counter.
func (s *Stats) IncrementSkippedCycles() { atomic.AddUint64(&s.SkippedCycles, 1) }

// AddRejectedReports adds n rejected reports at once.
func (s *Stats) AddRejectedReports(n int) {
	if n > 0 {
		atomic.AddUint64(&s.RejectedReports, uint64(n))
	}
}

// SetActiveAircraft sets the number of tracked aircraft.
func (s *Stats) SetActiveAircraft(count uint64) {
	atomic.StoreUint64(&s.ActiveAircraft, count)
}

// SetActiveSessions sets the number of open overflight sessions.
func (s *Stats) SetActiveSessions(count uint64) {
	atomic.StoreUint64(&s.ActiveSessions, count)
}

// UpdateLastReportTime records that a report was just processed.
func (s *Stats) UpdateLastReportTime() {
	s.mu.Lock()
	s.LastReportTime = time.Now()
	s.mu.Unlock()
}

// AddProcessingTime accumulates ingestion processing time.
func (s *Stats) AddProcessingTime(d time.Duration) {
	s.mu.Lock()
	s.ProcessingTime += d
	s.mu.Unlock()
}

// Snapshot returns the current statistics as a map for persistence.
func (s *Stats) Snapshot() map[string]interface{} {
	s.mu.RLock()
	lastReport := s.LastReportTime
	processing := s.ProcessingTime
	s.mu.RUnlock()

	return map[string]interface{}{
		"total_reports":    atomic.LoadUint64(&s.TotalReports),
		"dropped_reports":  atomic.LoadUint64(&s.DroppedReports),
		"rejected_reports": atomic.LoadUint64(&s.RejectedReports),
		"opened_sessions":  atomic.LoadUint64(&s.OpenedSessions),
		"closed_sessions":  atomic.LoadUint64(&s.ClosedSessions),
		"forced_closures":  atomic.LoadUint64(&s.ForcedClosures),
		"evictions":        atomic.LoadUint64(&s.Evictions),
		"opened_parkings":  atomic.LoadUint64(&s.OpenedParkings),
		"closed_parkings":  atomic.LoadUint64(&s.ClosedParkings),
		"skipped_cycles":   atomic.LoadUint64(&s.SkippedCycles),
		"active_aircraft":  atomic.LoadUint64(&s.ActiveAircraft),
		"active_sessions":  atomic.LoadUint64(&s.ActiveSessions),
		"last_report_time": lastReport,
		"processing_time":  processing,
	}
}

// String renders the statistics for the periodic log line.
func (s *Stats) String() string {
	s.mu.RLock()
	lastReport := s.LastReportTime
	processing := s.ProcessingTime
	s.mu.RUnlock()

	return fmt.Sprintf(
		"Reports: %d total, %d dropped, %d rejected\n"+
			"Sessions: %d opened, %d closed (%d forced), %d evictions\n"+
			"Parking: %d opened, %d closed\n"+
			"Active: %d aircraft, %d sessions\n"+
			"Cycles skipped: %d\n"+
			"Last report: %s\n"+
			"Processing time: %s",
		atomic.LoadUint64(&s.TotalReports),
		atomic.LoadUint64(&s.DroppedReports),
		atomic.LoadUint64(&s.RejectedReports),
		atomic.LoadUint64(&s.OpenedSessions),
		atomic.LoadUint64(&s.ClosedSessions),
		atomic.LoadUint64(&s.ForcedClosures),
		atomic.LoadUint64(&s.Evictions),
		atomic.LoadUint64(&s.OpenedParkings),
		atomic.LoadUint64(&s.ClosedParkings),
		atomic.LoadUint64(&s.ActiveAircraft),
		atomic.LoadUint64(&s.ActiveSessions),
		atomic.LoadUint64(&s.SkippedCycles),
		lastReport.Format(time.RFC3339),
		processing,
	)
}
