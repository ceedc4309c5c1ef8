package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Reclamation: mark from roots, then sweep the table in creation order
// ---------------------------------------------------------------------------

// ReclaimStats holds statistics from a single reclamation pass.
type ReclaimStats struct {
	Live          int
	Freed         int
	Capacity      int
	SweepDuration time.Duration
	Timestamp     time.Time
}

// ReclaimNow performs an immediate reclamation pass. It must only be called
// at a safepoint: every handle Go code still needs is either reachable from
// the roots or was created since the last safepoint.
func (m *Memory) ReclaimNow() *ReclaimStats {
	return m.reclaim()
}

// ReclaimCount returns the total number of reclamation passes.
func (m *Memory) ReclaimCount() uint64 {
	return m.reclaimCount
}

// LastStats returns statistics from the most recent pass, or nil.
func (m *Memory) LastStats() *ReclaimStats {
	return m.lastStats
}

// SafePoint forgets the young objects pinned since the previous safepoint
// and runs a pending allocation-triggered reclamation.
func (m *Memory) SafePoint() {
	m.young = m.young[:0]
	if m.reclaimAfter > 0 && m.allocated >= m.reclaimAfter {
		m.reclaim()
	}
}

// makeRoom is called when registration finds the table full.
func (m *Memory) makeRoom() {
	for round := 1; round <= reclaimRounds; round++ {
		if m.FreeSlots() >= m.growth {
			return
		}
		if round == 2 && m.roots != nil {
			m.roots.FlushCaches()
		}
		stats := m.reclaim()
		if stats.Freed == 0 && round >= 2 {
			break
		}
	}
	if m.FreeSlots() < m.growth {
		m.capacity += m.growth
		log.Debugf("object table grown to %d entries", m.capacity)
	}
}

func (m *Memory) reclaim() *ReclaimStats {
	start := time.Now()
	stats := &ReclaimStats{Timestamp: start}

	marks := make([]bool, len(m.slots))
	var work []Oop
	mark := func(v Value) {
		if !v.IsObject() {
			return
		}
		oop := v.Oop()
		if int(oop) >= len(m.slots) || m.slots[oop] == nil || marks[oop] {
			return
		}
		marks[oop] = true
		work = append(work, oop)
	}

	mark(m.specialObjects)
	for _, oop := range m.young {
		mark(FromOop(oop))
	}
	if m.roots != nil {
		m.roots.EnumerateRoots(mark)
	}
	for len(work) > 0 {
		oop := work[len(work)-1]
		work = work[:len(work)-1]
		obj := m.slots[oop]
		mark(obj.Class)
		if slots, ok := obj.Pointers(); ok {
			for _, v := range slots {
				mark(v)
			}
		}
	}

	kept := m.order[:0]
	for _, oop := range m.order {
		if marks[oop] {
			kept = append(kept, oop)
			continue
		}
		m.slots[oop] = nil
		m.free = append(m.free, oop)
		stats.Freed++
	}
	m.order = kept
	m.lastIndex = 0
	m.allocated = 0
	m.names.Purge()
	if m.roots != nil && stats.Freed > 0 {
		m.roots.FlushCaches()
	}

	stats.Live = len(m.order)
	stats.Capacity = m.capacity
	stats.SweepDuration = time.Since(start)
	m.reclaimCount++
	m.lastStats = stats
	log.Debugf("reclaimed %d objects, %d live", stats.Freed, stats.Live)
	return stats
}
