package types

import "sync"

// ProgressSnapshot is an immutable view of production progress.
type ProgressSnapshot struct {
	CurrentTask    string `json:"current_task"`
	Percent        int    `json:"progress"`
	CompletedUnits int    `json:"completed_units"`
	TotalUnits     int    `json:"total_units"`
}

// Progress tracks completed units of one production run. Completed units
// only ever grow and never pass the total.
type Progress struct {
	mu   sync.RWMutex
	snap ProgressSnapshot
}

// NewProgress starts a tracker for total units.
func NewProgress(total int) *Progress {
	if total < 0 {
		total = 0
	}
	return &Progress{snap: ProgressSnapshot{TotalUnits: total}}
}

// SetTask records the task currently in progress.
func (p *Progress) SetTask(task string) ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.CurrentTask = task
	return p.snap
}

// Advance marks one more unit complete.
func (p *Progress) Advance() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snap.CompletedUnits < p.snap.TotalUnits {
		p.snap.CompletedUnits++
	}
	p.snap.Percent = Percent(p.snap.CompletedUnits, p.snap.TotalUnits)
	return p.snap
}

// Finish marks every unit complete.
func (p *Progress) Finish() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.CompletedUnits = p.snap.TotalUnits
	p.snap.Percent = 100
	return p.snap
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Percent returns round(100*completed/total), 0 when total is 0.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return (200*completed + total) / (2 * total)
}
