package markdrill

import "time"

// Mark outcomes reported by the service.
const (
	StatusSuccess    = "success"
	StatusReverified = "reverified"
	StatusFail       = "fail"
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DefaultWarmUp        = 10 * time.Second
	PercentageMultiplier = 100
	streamReadBuffer     = 32 << 10
)
