package domain

import "time"

// SyncResult summarizes one sync run.
type SyncResult struct {
	Success  bool          `json:"success"`
	Added    int           `json:"added"`
	Total    int           `json:"total"`
	Failed   int           `json:"failed"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"-"`

	Err error `json:"-"`
}
