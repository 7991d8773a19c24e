package service

import "time"

// LogFilter supports journal filtering by time range, topic and event name.
type LogFilter struct {
	From  time.Time // inclusive; zero means no lower bound
	To    time.Time // inclusive; zero means no upper bound
	Topic string    // "", "door", "control", "calibration", "process", "system"
	Name  string    // e.g. "DOOR_SAFETY_STOP"
	Limit int
}

// RateEstimate is the expected rate of change at the current oven temperature.
type RateEstimate struct {
	PowerPercent   float64 `json:"power_percent"`
	HeatingCPerSec float64 `json:"heating_c_per_sec"`
	CoolingCPerSec float64 `json:"cooling_c_per_sec"`
}
