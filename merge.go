package lstore

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type MergeStats struct {
	// live records rewritten into the new base segments
	Records int
	// deleted records dropped from the table
	Dropped int
	// pages frozen because the merge superseded them
	Frozen int
}

// Merge consolidates every live record's newest values into fresh base
// segments and freezes the superseded base and tail pages. Frozen pages
// stay readable, so versions older than the merge are still served.
// Merge never loses the newest value of a live record and never brings
// back a deleted one.
func (t *Table) Merge() MergeStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.merge()
}

func (t *Table) merge() MergeStats {
	var stats MergeStats
	if !t.dirty && t.sealed == 0 {
		return stats
	}

	start := time.Now()
	t.clock++
	superseded := len(t.segments)
	t.curBase, t.curTail = -1, -1

	live := t.order[:0]
	for _, rid := range t.order {
		rec := t.records[rid]
		if !t.isLive(rec) {
			delete(t.records, rid)
			stats.Dropped++
			continue
		}

		head := t.head(rec)
		row := make([]Value, t.width())
		for col := 0; col < t.NumColumns; col++ {
			row[col] = t.readColumn(rec, head, col)
		}
		row[t.meta(metaRID)] = Int(int64(rid))
		row[t.meta(metaIndirection)] = Int(int64(head))
		row[t.meta(metaTimestamp)] = Int(int64(t.clock))
		row[t.meta(metaSchema)] = Int(0)
		row[t.meta(metaBaseRID)] = Int(int64(rid))

		rec.base = t.appendRow(PageBase, row)
		rec.tps = head
		live = append(live, rid)
		stats.Records++
	}
	t.order = live

	frozen := t.dir.Stats().Frozen
	for _, seg := range t.segments[:superseded] {
		for _, id := range seg.pages {
			if err := t.dir.Freeze(id); err != nil {
				panic(err)
			}
		}
	}
	stats.Frozen = t.dir.Stats().Frozen - frozen

	t.sealed = 0
	t.dirty = false
	t.merges++
	t.log.WithFields(log.Fields{
		"records": stats.Records,
		"dropped": stats.Dropped,
		"frozen":  stats.Frozen,
		"took":    time.Since(start),
	}).Info("merge finished")
	return stats
}
