// internal/services/event_synthesizer.go
package services

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/funnel-etl/internal/metrics"
	"github.com/javajoker/funnel-etl/internal/models"
)

// Rand is the randomness the synthesizer consumes. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// FunnelPolicy shapes the synthetic funnel.
type FunnelPolicy struct {
	AddToCartProb  float64
	PurchaseProb   float64
	ViewLeadMin    time.Duration
	ViewLeadMax    time.Duration
	PurchaseLagMin time.Duration
	PurchaseLagMax time.Duration
}

// DefaultFunnelPolicy adds 60% of viewed items to the cart and purchases half of those.
func DefaultFunnelPolicy() FunnelPolicy {
	return FunnelPolicy{
		AddToCartProb:  0.6,
		PurchaseProb:   0.5,
		ViewLeadMin:    5 * time.Minute,
		ViewLeadMax:    30 * time.Minute,
		PurchaseLagMin: 1 * time.Minute,
		PurchaseLagMax: 10 * time.Minute,
	}
}

// SynthesisStats counts carts seen, used and skipped, and events emitted per type.
type SynthesisStats struct {
	Carts        int
	ValidCarts   int
	SkippedCarts int
	ByType       map[models.EventType]int
}

// EventSynthesizer derives view, add_to_cart and purchase events from carts.
type EventSynthesizer struct {
	policy  FunnelPolicy
	rng     Rand
	metrics *metrics.Metrics
	log     *logrus.Entry
}

func NewEventSynthesizer(policy FunnelPolicy, rng Rand, m *metrics.Metrics, log logrus.FieldLogger) *EventSynthesizer {
	return &EventSynthesizer{
		policy:  policy,
		rng:     rng,
		metrics: m,
		log:     log.WithField("component", "synthesizer"),
	}
}

type cartItem struct {
	productID int64
	quantity  int64
}

type cart struct {
	id     int64
	userID int64
	date   time.Time
	items  []cartItem
}

// Synthesize emits events cart by cart, item by item. Carts with any malformed field
// or line item are skipped whole. Price and category are left for enrichment.
func (s *EventSynthesizer) Synthesize(carts, users []models.RawRecord) ([]models.Event, SynthesisStats) {
	s.log.Info("Generating event funnel from cart data...")

	stats := SynthesisStats{
		Carts:  len(carts),
		ByType: make(map[models.EventType]int, len(models.EventTypes)),
	}
	cities := s.userCities(users)

	var events []models.Event
	for _, raw := range carts {
		c, err := parseCart(raw)
		if err != nil {
			stats.SkippedCarts++
			if s.metrics != nil {
				s.metrics.RecordsSkipped.WithLabelValues(EntityCarts, "invalid").Inc()
			}
			s.log.WithFields(logrus.Fields{
				"cart_id": raw.Ref(),
				"error":   err.Error(),
			}).Warn("Skipping invalid cart")
			continue
		}
		stats.ValidCarts++

		city, ok := cities[c.userID]
		if !ok {
			city = models.UnknownCity
		}
		events = s.appendCartEvents(events, c, city)
	}

	for _, e := range events {
		stats.ByType[e.EventType]++
	}
	if s.metrics != nil {
		for eventType, n := range stats.ByType {
			s.metrics.EventsSynthesized.WithLabelValues(string(eventType)).Add(float64(n))
		}
	}

	s.log.WithFields(logrus.Fields{
		"events":        len(events),
		"carts":         stats.Carts,
		"skipped_carts": stats.SkippedCarts,
	}).Infof("Generated %d events from %d carts", len(events), stats.Carts)
	s.log.WithFields(logrus.Fields{
		"view":        stats.ByType[models.EventTypeView],
		"add_to_cart": stats.ByType[models.EventTypeAddToCart],
		"purchase":    stats.ByType[models.EventTypePurchase],
	}).Info("Event type distribution")

	return events, stats
}

func (s *EventSynthesizer) appendCartEvents(events []models.Event, c cart, city string) []models.Event {
	session := models.SessionIDFor(c.id)
	seen := make(map[int64]int, len(c.items))

	for _, item := range c.items {
		suffix := ""
		if n := seen[item.productID]; n > 0 {
			suffix = fmt.Sprintf("_%d", n)
		}
		seen[item.productID]++

		key := fmt.Sprintf("%d_%d%s", c.id, item.productID, suffix)
		newEvent := func(prefix string, eventType models.EventType, at time.Time, quantity int64) models.Event {
			productID := item.productID
			return models.Event{
				EventID:   prefix + "_" + key,
				UserID:    c.userID,
				ProductID: &productID,
				EventType: eventType,
				Quantity:  quantity,
				EventTime: at,
				EventDate: models.EventDateOf(at),
				UserCity:  city,
				SessionID: session,
			}
		}

		viewAt := c.date.Add(-s.offset(s.policy.ViewLeadMin, s.policy.ViewLeadMax))
		events = append(events, newEvent("view", models.EventTypeView, viewAt, 1))

		if s.rng.Float64() >= s.policy.AddToCartProb {
			continue
		}
		events = append(events, newEvent("cart", models.EventTypeAddToCart, c.date, item.quantity))

		if s.rng.Float64() >= s.policy.PurchaseProb {
			continue
		}
		purchaseAt := c.date.Add(s.offset(s.policy.PurchaseLagMin, s.policy.PurchaseLagMax))
		events = append(events, newEvent("purchase", models.EventTypePurchase, purchaseAt, item.quantity))
	}
	return events
}

// offset draws a whole number of seconds uniformly from [lo, hi].
func (s *EventSynthesizer) offset(lo, hi time.Duration) time.Duration {
	span := int((hi - lo) / time.Second)
	if span <= 0 {
		return lo
	}
	return lo + time.Duration(s.rng.IntN(span+1))*time.Second
}

// userCities maps user id to city. Users without a usable id are ignored.
func (s *EventSynthesizer) userCities(users []models.RawRecord) map[int64]string {
	cities := make(map[int64]string, len(users))
	for _, u := range users {
		id, err := u.Int("id")
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"user_id": u.Ref(),
				"error":   err.Error(),
			}).Warn("Skipping invalid user")
			continue
		}

		city := models.UnknownCity
		if address, err := u.Object("address"); err == nil {
			if name, err := address.String("city"); err == nil && name != "" {
				city = name
			}
		}
		cities[id] = city
	}
	return cities
}

func parseCart(raw models.RawRecord) (cart, error) {
	var c cart
	var err error

	if c.id, err = raw.Int("id"); err != nil {
		return c, err
	}
	if c.userID, err = raw.Int("userId"); err != nil {
		return c, err
	}
	if c.date, err = raw.Time("date"); err != nil {
		return c, err
	}
	items, err := raw.Objects("products")
	if err != nil {
		return c, err
	}

	c.items = make([]cartItem, 0, len(items))
	for i, item := range items {
		productID, err := item.Int("productId")
		if err != nil {
			return c, fmt.Errorf("products[%d]: %w", i, err)
		}
		quantity, err := item.Int("quantity")
		if err != nil {
			return c, fmt.Errorf("products[%d]: %w", i, err)
		}
		if quantity <= 0 {
			return c, fmt.Errorf("products[%d]: %w", i, &models.FieldError{Field: "quantity", Err: models.ErrInvalidValue})
		}
		c.items = append(c.items, cartItem{productID: productID, quantity: quantity})
	}
	return c, nil
}
