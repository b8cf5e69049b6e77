package monitor

import (
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Tumbling windows are explicit per-key state machines: Open while
// accumulating, Closed exactly once when the event-time clock passes
// their end, emitting their result and being discarded. Windows are
// non-overlapping and aligned to the epoch, so each event belongs to
// exactly one window.

// txWindow accumulates one customer's transactions for one interval.
type txWindow struct {
	start  time.Time
	end    time.Time
	events []*domain.Transaction
}

func newTxWindow(at time.Time, length time.Duration) *txWindow {
	start := at.Truncate(length)
	return &txWindow{start: start, end: start.Add(length)}
}

func (w *txWindow) contains(at time.Time) bool {
	return !at.Before(w.start) && at.Before(w.end)
}

func (w *txWindow) add(tx *domain.Transaction) {
	w.events = append(w.events, tx)
}

// alertWindow accumulates one community's alerts for one interval.
type alertWindow struct {
	start  time.Time
	end    time.Time
	alerts []*domain.Alert
}

func newAlertWindow(at time.Time, length time.Duration) *alertWindow {
	start := at.Truncate(length)
	return &alertWindow{start: start, end: start.Add(length)}
}

func (w *alertWindow) contains(at time.Time) bool {
	return !at.Before(w.start) && at.Before(w.end)
}

func (w *alertWindow) add(alert *domain.Alert) {
	w.alerts = append(w.alerts, alert)
}

// distinctCustomers returns the sorted distinct customer ids behind the
// window's alerts.
func (w *alertWindow) distinctCustomers() []string {
	seen := make(map[string]struct{}, len(w.alerts))
	var out []string
	for _, a := range w.alerts {
		if _, ok := seen[a.CustomerID]; !ok {
			seen[a.CustomerID] = struct{}{}
			out = append(out, a.CustomerID)
		}
	}
	sort.Strings(out)
	return out
}
