package markdrill

import "time"

// Config holds configuration for the mark drill.
type Config struct {
	BaseURL    string        // Base URL of the service
	Requests   int           // Number of concurrent mark requests
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	WarmUp     time.Duration // How long to wait for the first streamed frame
	OutputFile string        // Output file for collected responses
	LogFile    string        // Log file for drill output
	Verbose    bool          // Enable verbose logging
}

// MarkResponse mirrors the body of GET /mark-attendance.
type MarkResponse struct {
	Status string `json:"status"`
	Name   string `json:"name,omitempty"`
	Time   string `json:"time,omitempty"`
	Msg    string `json:"msg,omitempty"`
}

// Result is one mark request as observed by the drill.
type Result struct {
	Index      int           `json:"index"`
	StatusCode int           `json:"status_code"`
	Response   MarkResponse  `json:"response"`
	Err        string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency_ns"`
}

// Stats holds drill statistics.
type Stats struct {
	Sent       int
	Success    int
	Reverified int
	Fail       int
	Errors     int
	Names      map[string]int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
