package lstore

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// merger merges tables in the background once they have sealed enough
// tail segments.
type merger struct {
	log   log.FieldLogger
	queue chan *Table
	quit  chan struct{}
	wg    sync.WaitGroup
}

func startMerger(logger log.FieldLogger) *merger {
	m := &merger{
		log:   logger.WithField("component", "merger"),
		queue: make(chan *Table, 16),
		quit:  make(chan struct{}),
	}
	m.wg.Add(1)
	go m.loop()
	return m
}

func (m *merger) loop() {
	defer m.wg.Done()
	for {
		select {
		case t := <-m.queue:
			stats := t.Merge()
			m.log.WithFields(log.Fields{"table": t.Name, "records": stats.Records}).Debug("background merge done")
		case <-m.quit:
			return
		}
	}
}

// schedule queues t without blocking; the caller holds t's write lock.
// Merging a clean table is a no-op.
func (m *merger) schedule(t *Table) {
	select {
	case m.queue <- t:
	default:
	}
}

func (m *merger) stop() {
	close(m.quit)
	m.wg.Wait()
}
