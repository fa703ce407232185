// internal/models/event.go
package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Event is a row of the event fact table. Rows are immutable once stored.
//
// Field order follows EventColumns; the store writes exactly those columns in that order.
type Event struct {
	EventID   string          `json:"event_id" gorm:"primaryKey;type:varchar(191)"`
	UserID    int64           `json:"user_id" gorm:"not null;index:idx_events_user"`
	ProductID *int64          `json:"product_id"`
	EventType EventType       `json:"event_type" gorm:"type:varchar(20);not null;index:idx_events_type;check:chk_events_type,event_type IN ('view','add_to_cart','purchase')"`
	Quantity  int64           `json:"quantity" gorm:"not null;check:chk_events_quantity,quantity > 0"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null;check:chk_events_price,price >= 0"`
	Category  string          `json:"category" gorm:"type:varchar(191)"`
	EventTime time.Time       `json:"event_time" gorm:"not null"`
	EventDate time.Time       `json:"event_date" gorm:"type:date;not null;index:idx_events_date"`
	UserCity  string          `json:"user_city" gorm:"type:varchar(191);not null;index:idx_events_city"`
	SessionID string          `json:"session_id" gorm:"type:varchar(191);not null;index:idx_events_session"`
	LoadedAt  time.Time       `json:"loaded_at" gorm:"not null"`
}

func (Event) TableName() string {
	return "events"
}

// EventColumns is the column order of the events table.
var EventColumns = []string{
	"event_id", "user_id", "product_id", "event_type", "quantity", "price",
	"category", "event_time", "event_date", "user_city", "session_id", "loaded_at",
}

// EventDateOf returns the UTC calendar date of t as a midnight timestamp.
func EventDateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SessionIDFor returns the session id shared by every event synthesized from one cart.
func SessionIDFor(cartID int64) string {
	return "sess_" + strconv.FormatInt(cartID, 10)
}
