package engine

import (
	"time"
)

// SignalType distinguishes entry and exit signals.
type SignalType string

const (
	SignalEntry SignalType = "entry_signal"
	SignalExit  SignalType = "exit_signal"
)

// Signal is one emitted trading event. Signals are appended in scan order
// and never revised retroactively.
type Signal struct {
	Timestamp time.Time  `json:"timestamp"`
	Type      SignalType `json:"type"`
	Price     float64    `json:"price"`
	Shares    int        `json:"shares"`
	Reason    string     `json:"reason"`
	Direction string     `json:"direction"`
}
