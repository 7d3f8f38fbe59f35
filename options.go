package lstore

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Options represents the options that can be set when creating a
// database or a table. They are fixed once a table exists.
type Options struct {
	// PageSize is the byte budget of a page. Every slot costs SlotSize
	// bytes. Default: 4KiB.
	PageSize int

	// LoadFactor is the records per bucket ratio above which a hash index
	// grows. Default: 0.75.
	LoadFactor float64

	// InitialBuckets is the bucket count of a freshly built hash index.
	// Default: 101.
	InitialBuckets int

	// Compression is applied to pages frozen by a merge.
	// Default: CompSnappy.
	Compression CompressAlgorithm

	// MergeThreshold is the number of tail segments a table may seal
	// before the database merges it in the background. Zero disables
	// background merges.
	MergeThreshold int

	// Timeout is the amount of time to wait to obtain the directory lock
	// in Open. When set to zero it fails immediately.
	Timeout time.Duration

	// Logger receives engine events. Default: the logrus standard logger.
	Logger log.FieldLogger
}

var DefaultOptions = &Options{
	PageSize:       DefaultPageSize,
	LoadFactor:     0.75,
	InitialBuckets: 101,
	Compression:    CompSnappy,
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.PageSize < SlotSize {
		oo.PageSize = DefaultOptions.PageSize
	}
	if oo.PageSize/SlotSize > maxPageSlots {
		oo.PageSize = maxPageSlots * SlotSize
	}
	if oo.LoadFactor <= 0 {
		oo.LoadFactor = DefaultOptions.LoadFactor
	}
	if oo.InitialBuckets < 1 {
		oo.InitialBuckets = DefaultOptions.InitialBuckets
	}
	if !oo.Compression.isValid() {
		oo.Compression = DefaultOptions.Compression
	}
	if oo.MergeThreshold < 0 {
		oo.MergeThreshold = 0
	}
	if oo.Logger == nil {
		oo.Logger = log.StandardLogger()
	}
	return &oo
}
