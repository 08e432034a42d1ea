package model

import "time"

// ScheduleSnapshot reports the scheduler's current state. The schedule
// itself lives in memory only and does not survive a daemon restart.
type ScheduleSnapshot struct {
	Enabled   bool       `json:"enabled"`
	TimeOfDay string     `json:"time_of_day,omitempty"`
	Next      *time.Time `json:"next,omitempty"`
}
