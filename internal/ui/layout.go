package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which the feed column is hidden.
	LayoutCompactWidth = 80

	// LayoutWideWidth is the minimum width to show article ages.
	LayoutWideWidth = 110
)

// List behavior.
const (
	// PrefetchThreshold is how close to the end of the loaded rows the
	// selection may get before the next page is requested.
	PrefetchThreshold = 5
)

// Timing constants.
const (
	// DefaultUIInterval is the default status refresh interval.
	DefaultUIInterval = time.Second

	// FlashDuration is how long a status message stays in the footer.
	FlashDuration = 4 * time.Second
)
