// internal/models/common.go
package models

// Enums
type EventType string

const (
	EventTypeView      EventType = "view"
	EventTypeAddToCart EventType = "add_to_cart"
	EventTypePurchase  EventType = "purchase"
)

// EventTypes lists the funnel stages in funnel order.
var EventTypes = []EventType{EventTypeView, EventTypeAddToCart, EventTypePurchase}

func (t EventType) Valid() bool {
	switch t {
	case EventTypeView, EventTypeAddToCart, EventTypePurchase:
		return true
	}
	return false
}

type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed
}

// Fallbacks used when a lookup misses.
const (
	UnknownCity     = "Unknown"
	UnknownCategory = "unknown"
)
