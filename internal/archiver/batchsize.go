package archiver

import "time"

// BatchSizeBounds bounds a BatchSizeController's adjustments (spec.md §4.4).
type BatchSizeBounds struct {
	Min           int
	Max           int
	TargetSeconds int
}

// DefaultBatchSizeBounds matches the documented defaults.
func DefaultBatchSizeBounds() BatchSizeBounds {
	return BatchSizeBounds{Min: 100, Max: 2000, TargetSeconds: 20}
}

// BatchSizeController adapts the next batch size to keep per-batch wall
// time near TargetSeconds, per spec.md §4.4.
type BatchSizeController struct {
	bounds BatchSizeBounds
}

// NewBatchSizeController builds a controller with the given bounds.
func NewBatchSizeController(bounds BatchSizeBounds) *BatchSizeController {
	return &BatchSizeController{bounds: bounds}
}

// Adjust returns the next batch size given the size just used (current),
// how many rows that batch returned (rowCount), and how long the
// resize-justifying work took (elapsed — the write+delete pair, not the
// read, per spec.md §4.1).
func (c *BatchSizeController) Adjust(current int, rowCount int, elapsed time.Duration) int {
	if rowCount <= 0 {
		return current
	}

	target := time.Duration(c.bounds.TargetSeconds) * time.Second

	if elapsed > target+target/2 {
		next := current / 2
		if next < c.bounds.Min {
			next = c.bounds.Min
		}
		return next
	}

	if elapsed < target/2 && rowCount >= current {
		next := current * 2
		if next > c.bounds.Max {
			next = c.bounds.Max
		}
		return next
	}

	return current
}

// InitialBatchSize returns the setting's requested batch size, or
// defaultSize when the setting specifies 0 ("use engine default").
func InitialBatchSize(settingBatchSize, defaultSize int) int {
	if settingBatchSize > 0 {
		return settingBatchSize
	}
	return defaultSize
}
