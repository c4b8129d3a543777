package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Mark and sweep collector
// ---------------------------------------------------------------------------

// GCStats describes one collection.
type GCStats struct {
	Cycle      int
	Marked     int
	Freed      int
	FreedBytes int64
	Used       int64
	Live       int
	Duration   time.Duration
}

// Collect runs a full stop-the-world collection.
//
// Roots are the registered providers, pinned references and protected
// references. Marking uses an explicit work list, so deep and cyclic object
// graphs need no recursion. Sweeping frees every unmarked slot and bumps its
// generation so outstanding handles to it become detectably dangling.
func (h *Heap) Collect() GCStats {
	start := time.Now()
	stats := GCStats{Cycle: h.totals.Cycles + 1}

	var work []Ref
	push := func(r Ref) {
		idx := r.index()
		if idx < 0 || idx >= len(h.slots) {
			return
		}
		s := &h.slots[idx]
		if s.item == nil || s.gen != r.generation() || s.marked {
			return
		}
		s.marked = true
		stats.Marked++
		work = append(work, r)
	}

	for _, p := range h.providers {
		p.VisitRoots(push)
	}
	for r := range h.pinned {
		push(r)
	}
	for _, r := range h.protected {
		push(r)
	}
	for len(work) > 0 {
		r := work[len(work)-1]
		work = work[:len(work)-1]
		h.slots[r.index()].item.visitRefs(push)
	}

	for i := range h.slots {
		s := &h.slots[i]
		if s.item == nil {
			continue
		}
		if s.marked {
			s.marked = false
			continue
		}
		stats.Freed++
		stats.FreedBytes += s.size
		h.used -= s.size
		h.live--
		s.item = nil
		s.size = 0
		s.gen++
		h.free = append(h.free, i)
	}

	h.resetThreshold()
	h.totals.Cycles++
	h.totals.TotalFreed += int64(stats.Freed)
	h.totals.TotalFreedBytes += stats.FreedBytes
	stats.Used = h.used
	stats.Live = h.live
	stats.Duration = time.Since(start)
	gcLog.Infof("%sgc cycle %d: marked %d, freed %d (%d bytes), %d bytes in use",
		h.tag, stats.Cycle, stats.Marked, stats.Freed, stats.FreedBytes, stats.Used)
	return stats
}
