// ABOUTME: Participant-side store for coordinator-issued corrected time
// ABOUTME: Keeps the skew between corrected and local time and applies it to later clock reads
package sync

import (
	"sync"
	"time"

	"github.com/harperreed/berkeley-go/internal/clock"
)

// Quality represents sync quality
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

// ClockSync holds the latest authoritative time reference from the coordinator.
// It does not touch the system clock; callers read Now() instead.
type ClockSync struct {
	mu          sync.RWMutex
	local       clock.Clock
	skew        time.Duration // corrected - local, at the moment the correction arrived
	lastCorrect time.Time     // corrected time carried by the latest broadcast
	lastSync    time.Time     // local time the latest broadcast arrived
	sampleCount int
	quality     Quality

	// A correction is expected every cycle; missing this many marks the sync degraded/lost
	cyclePeriod time.Duration
}

// NewClockSync creates a synchronizer over the given local clock.
// cyclePeriod is the coordinator's expected broadcast interval.
func NewClockSync(local clock.Clock, cyclePeriod time.Duration) *ClockSync {
	return &ClockSync{
		local:       local,
		quality:     QualityLost,
		cyclePeriod: cyclePeriod,
	}
}

// ApplyCorrection records a corrected time received at local time receivedAt
// and returns the new skew.
func (cs *ClockSync) ApplyCorrection(corrected, receivedAt time.Time) time.Duration {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.skew = corrected.Sub(receivedAt)
	cs.lastCorrect = corrected
	cs.lastSync = receivedAt
	cs.sampleCount++
	cs.quality = QualityGood

	return cs.skew
}

// Now returns the local clock adjusted by the latest skew.
// Before the first correction it is the raw local clock.
func (cs *ClockSync) Now() time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.local.Now().Add(cs.skew)
}

// LocalNow returns the raw local clock, which is what gets reported to the coordinator
func (cs *ClockSync) LocalNow() time.Time {
	return cs.local.Now()
}

// Skew returns the current correction applied to local clock reads
func (cs *ClockSync) Skew() time.Duration {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.skew
}

// GetStats returns sync statistics
func (cs *ClockSync) GetStats() (skew time.Duration, lastCorrected time.Time, samples int, quality Quality) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.skew, cs.lastCorrect, cs.sampleCount, cs.quality
}

// CheckQuality updates quality based on time since the last correction
func (cs *ClockSync) CheckQuality() Quality {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.sampleCount == 0 || cs.cyclePeriod <= 0 {
		return cs.quality
	}

	since := cs.local.Now().Sub(cs.lastSync)
	switch {
	case since > 3*cs.cyclePeriod:
		cs.quality = QualityLost
	case since > 2*cs.cyclePeriod:
		cs.quality = QualityDegraded
	default:
		cs.quality = QualityGood
	}

	return cs.quality
}
