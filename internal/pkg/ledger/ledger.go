package ledger

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// DefaultCapacity bounds the retained event window when none is configured.
const DefaultCapacity = 100

// Status marks how processing of a recorded event went.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is one processed webhook event. Entries are never mutated after
// insertion.
type Entry struct {
	ID        string         `json:"id"`
	EventType string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Status    Status         `json:"status"`
	Data      map[string]any `json:"data"`
	Error     string         `json:"error,omitempty"`
}

// RevenueType classifies a monetary event.
type RevenueType string

const (
	RevenueTip          RevenueType = "tip"
	RevenuePurchase     RevenueType = "purchase"
	RevenueSubscription RevenueType = "subscription"
)

// RevenueEvent is one monetary event. Append-only, aggregated at read time.
type RevenueEvent struct {
	Type      RevenueType `json:"type"`
	Amount    float64     `json:"amount"`
	Currency  string      `json:"currency"`
	UserID    string      `json:"userUuid,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Store is the swappable persistence boundary beneath the ledger. Events()
// returns the retained window newest-first; implementations enforce the
// capacity bound themselves.
type Store interface {
	AppendEvent(entry Entry) error
	Events() ([]Entry, error)
	AppendRevenue(ev RevenueEvent) error
	Revenue() ([]RevenueEvent, error)
}

// Stats is the on-demand aggregate over the retained event window.
type Stats struct {
	Total       int            `json:"total"`
	Successful  int            `json:"successful"`
	Failed      int            `json:"failed"`
	SuccessRate float64        `json:"successRate"`
	EventCounts map[string]int `json:"eventCounts"`
}

// Period selects the revenue aggregation window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod maps a query value onto a known period, defaulting to all.
func ParsePeriod(raw string) Period {
	switch Period(raw) {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return Period(raw)
	default:
		return PeriodAll
	}
}

func (p Period) window() time.Duration {
	switch p {
	case PeriodDay:
		return 24 * time.Hour
	case PeriodWeek:
		return 7 * 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// RevenueStats is the read-time aggregate over revenue events in a period.
// NetTotal applies the configured platform commission.
type RevenueStats struct {
	Total    float64                 `json:"total"`
	NetTotal float64                 `json:"netTotal"`
	ByType   map[RevenueType]float64 `json:"byType"`
	Count    int                     `json:"count"`
}

// Ledger is the append-only observability record for processed webhook and
// revenue events. Store failures are logged and absorbed: nothing recorded
// here may fail a webhook that was already acknowledged.
type Ledger struct {
	store          Store
	commissionRate float64
}

// New builds a ledger over the given store.
func New(store Store, commissionRate float64) *Ledger {
	return &Ledger{store: store, commissionRate: commissionRate}
}

// Record appends one processed-event entry and returns it.
func (l *Ledger) Record(eventType string, data map[string]any, status Status, procErr error) Entry {
	entry := Entry{
		ID:        uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
		Status:    status,
		Data:      data,
	}
	if procErr != nil {
		entry.Error = procErr.Error()
	}
	if err := l.store.AppendEvent(entry); err != nil {
		log.Errorf("[Ledger] Failed to append event %s: %v", eventType, err)
	}
	return entry
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(limit int) []Entry {
	entries, err := l.store.Events()
	if err != nil {
		log.Errorf("[Ledger] Failed to read events: %v", err)
		return nil
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Stats computes aggregates over the currently retained window. Nothing is
// maintained incrementally, so the numbers always match Recent().
func (l *Ledger) Stats() Stats {
	entries, err := l.store.Events()
	if err != nil {
		log.Errorf("[Ledger] Failed to read events: %v", err)
	}

	stats := Stats{EventCounts: make(map[string]int)}
	for _, e := range entries {
		stats.Total++
		if e.Status == StatusSuccess {
			stats.Successful++
		} else {
			stats.Failed++
		}
		stats.EventCounts[e.EventType]++
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}
	return stats
}

// RecordRevenue appends one monetary event.
func (l *Ledger) RecordRevenue(ev RevenueEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if err := l.store.AppendRevenue(ev); err != nil {
		log.Errorf("[Ledger] Failed to append revenue event: %v", err)
		return
	}
	log.Infof("[Ledger] Revenue event logged: type=%s amount=%.2f %s", ev.Type, ev.Amount, ev.Currency)
}

// RevenueStats aggregates revenue events whose timestamp falls inside the
// period window, computed at read time.
func (l *Ledger) RevenueStats(period Period) RevenueStats {
	events, err := l.store.Revenue()
	if err != nil {
		log.Errorf("[Ledger] Failed to read revenue events: %v", err)
	}

	var cutoff time.Time
	if window := period.window(); window > 0 {
		cutoff = time.Now().Add(-window)
	}

	stats := RevenueStats{ByType: make(map[RevenueType]float64)}
	for _, ev := range events {
		if !cutoff.IsZero() && ev.Timestamp.Before(cutoff) {
			continue
		}
		stats.Total += ev.Amount
		stats.ByType[ev.Type] += ev.Amount
		stats.Count++
	}
	stats.NetTotal = stats.Total * (1 - l.commissionRate)
	return stats
}
