// Package monitor implements the streaming risk-monitoring pipeline:
// per-customer anomaly detection in tumbling windows, chained into
// per-community risk aggregation in longer tumbling windows.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/anomaly"
	"github.com/opensource-finance/harrier/internal/domain"
)

// RiskScorer maps an alert count to a community risk score. The default
// is linear: count * RiskScorePerAlert.
type RiskScorer func(alertCount int) float64

// Monitor consumes the transaction topic, detects per-customer
// anomalies, and aggregates alerts into community risk reports.
//
// Delivery from the bus is at-least-once; duplicated events inflate
// window counts rather than being deduplicated. State for different
// keys is independent; events for the same key must arrive in event-
// timestamp order, and an event older than its key's open window is
// dropped with a counter increment.
type Monitor struct {
	cfg       domain.MonitorConfig
	store     domain.GraphStore
	repo      domain.Repository // optional
	bus       domain.EventBus   // optional
	predicate anomaly.Predicate
	scorer    RiskScorer

	mu               sync.Mutex
	customerWindows  map[string]*txWindow
	communityWindows map[string]*alertWindow

	dropped atomic.Int64

	sub    domain.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor. repo and bus may be nil for in-process use;
// predicate nil selects the default count threshold.
func New(cfg domain.MonitorConfig, store domain.GraphStore, repo domain.Repository, bus domain.EventBus, predicate anomaly.Predicate) *Monitor {
	if cfg.CustomerWindow <= 0 {
		cfg.CustomerWindow = 10 * time.Minute
	}
	if cfg.CommunityWindow <= 0 {
		cfg.CommunityWindow = time.Hour
	}
	if cfg.RiskScorePerAlert <= 0 {
		cfg.RiskScorePerAlert = 10.0
	}
	if predicate == nil {
		threshold := cfg.AnomalyThreshold
		if threshold <= 0 {
			threshold = 3
		}
		predicate = &anomaly.ThresholdPredicate{Threshold: threshold}
	}
	m := &Monitor{
		cfg:              cfg,
		store:            store,
		repo:             repo,
		bus:              bus,
		predicate:        predicate,
		customerWindows:  make(map[string]*txWindow),
		communityWindows: make(map[string]*alertWindow),
	}
	m.scorer = func(alertCount int) float64 {
		return float64(alertCount) * cfg.RiskScorePerAlert
	}
	return m
}

// SetRiskScorer replaces the linear default. Call before Start.
func (m *Monitor) SetRiskScorer(scorer RiskScorer) {
	if scorer != nil {
		m.scorer = scorer
	}
}

// Start subscribes to the transaction topic and begins the event-time
// sweep that closes expired windows.
func (m *Monitor) Start(ctx context.Context) error {
	if m.bus == nil {
		return fmt.Errorf("monitor requires an event bus to start")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	sub, err := m.bus.Subscribe(runCtx, domain.TopicTransaction, m.handleMessage)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to transactions: %w", err)
	}
	m.sub = sub

	go m.sweep(runCtx)

	slog.Info("risk monitor started",
		"customer_window", m.cfg.CustomerWindow.String(),
		"community_window", m.cfg.CommunityWindow.String(),
	)
	return nil
}

// Stop unsubscribes, closes all open windows and flushes their output.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.sub != nil {
		if err := m.sub.Unsubscribe(); err != nil {
			slog.Error("monitor unsubscribe failed", "error", err)
		}
	}
	if m.done != nil {
		<-m.done
	}
	m.Flush(ctx)
	slog.Info("risk monitor stopped", "dropped_events", m.Dropped())
	return nil
}

// Dropped returns the count of malformed or late events discarded so
// far.
func (m *Monitor) Dropped() int64 {
	return m.dropped.Load()
}

// handleMessage decodes one bus message. Malformed transactions are
// dropped with a counter increment, never fatal to the pipeline.
func (m *Monitor) handleMessage(ctx context.Context, msg *domain.Message) error {
	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		m.dropped.Add(1)
		slog.Warn("dropped malformed transaction",
			"message_id", msg.ID,
			"error", err,
		)
		return nil
	}
	m.OfferTransaction(ctx, &tx)
	return nil
}

// OfferTransaction feeds one event into the per-customer stage. An
// event belonging to a later window than the customer's open one closes
// that window first; an invalid or older event is dropped.
func (m *Monitor) OfferTransaction(ctx context.Context, tx *domain.Transaction) {
	if !tx.Valid() {
		m.dropped.Add(1)
		slog.Warn("dropped invalid transaction", "customer_id", tx.CustomerID)
		return
	}

	m.mu.Lock()
	w, ok := m.customerWindows[tx.CustomerID]
	if ok && !w.contains(tx.Timestamp) {
		if tx.Timestamp.Before(w.start) {
			m.mu.Unlock()
			m.dropped.Add(1)
			slog.Warn("dropped late transaction",
				"customer_id", tx.CustomerID,
				"timestamp", tx.Timestamp,
			)
			return
		}
		delete(m.customerWindows, tx.CustomerID)
		m.mu.Unlock()
		m.closeCustomerWindow(ctx, tx.CustomerID, w)
		m.mu.Lock()
		ok = false
	}
	if !ok {
		w = newTxWindow(tx.Timestamp, m.cfg.CustomerWindow)
		m.customerWindows[tx.CustomerID] = w
	}
	w.add(tx)
	m.mu.Unlock()
}

// AdvanceTo closes every window whose end is at or before the
// watermark. The sweep goroutine calls this with the wall clock; tests
// drive it directly.
func (m *Monitor) AdvanceTo(ctx context.Context, watermark time.Time) {
	m.mu.Lock()
	var expiredTx []struct {
		key string
		w   *txWindow
	}
	for key, w := range m.customerWindows {
		if !watermark.Before(w.end) {
			expiredTx = append(expiredTx, struct {
				key string
				w   *txWindow
			}{key, w})
			delete(m.customerWindows, key)
		}
	}
	m.mu.Unlock()

	for _, e := range expiredTx {
		m.closeCustomerWindow(ctx, e.key, e.w)
	}

	m.mu.Lock()
	var expiredAlerts []*alertWindow
	var expiredKeys []string
	for key, w := range m.communityWindows {
		if !watermark.Before(w.end) {
			expiredAlerts = append(expiredAlerts, w)
			expiredKeys = append(expiredKeys, key)
			delete(m.communityWindows, key)
		}
	}
	m.mu.Unlock()

	for i, w := range expiredAlerts {
		m.closeCommunityWindow(ctx, expiredKeys[i], w)
	}
}

// Flush closes every open window regardless of the watermark.
func (m *Monitor) Flush(ctx context.Context) {
	m.AdvanceTo(ctx, time.Unix(1<<62, 0))
}

// closeCustomerWindow evaluates the anomaly predicate over the closed
// window and emits at most one alert.
func (m *Monitor) closeCustomerWindow(ctx context.Context, customerID string, w *txWindow) {
	stats := anomaly.WindowStats{
		TxCount:       len(w.events),
		WindowSeconds: int(m.cfg.CustomerWindow.Seconds()),
	}
	for _, tx := range w.events {
		stats.TotalAmount += tx.Amount
		if tx.Amount > stats.MaxAmount {
			stats.MaxAmount = tx.Amount
		}
	}

	anomalous, err := m.predicate.Anomalous(stats)
	if err != nil {
		slog.Error("anomaly predicate failed",
			"customer_id", customerID,
			"error", err,
		)
		return
	}
	if !anomalous {
		return
	}

	communityID, err := m.store.CommunityOf(ctx, customerID)
	if err != nil {
		// Unknown customers still alert; they just aggregate under
		// their own id.
		communityID = customerID
	}

	alert := &domain.Alert{
		ID:          uuid.New().String(),
		CustomerID:  customerID,
		CommunityID: communityID,
		AlertType:   domain.AlertAnomalousPattern,
		Description: m.predicate.Describe(),
		Timestamp:   w.end,
	}

	slog.Info("anomaly alert",
		"customer_id", customerID,
		"community_id", communityID,
		"tx_count", stats.TxCount,
		"total_amount", stats.TotalAmount,
	)

	if m.repo != nil {
		if err := m.repo.SaveAlert(ctx, alert); err != nil {
			slog.Error("failed to persist alert", "alert_id", alert.ID, "error", err)
		}
	}
	if m.bus != nil {
		payload, _ := json.Marshal(alert)
		if err := m.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert", "alert_id", alert.ID, "error", err)
		}
	}

	m.offerAlert(ctx, alert)
}

// offerAlert feeds one alert into the per-community stage, closing the
// community's previous window first when the alert belongs to a later
// one. An alert older than the community's open window is dropped with
// a counter increment, same as a late transaction; the open window and
// the alerts it holds stay intact.
func (m *Monitor) offerAlert(ctx context.Context, alert *domain.Alert) {
	var expired *alertWindow

	m.mu.Lock()
	w, ok := m.communityWindows[alert.CommunityID]
	if ok && !w.contains(alert.Timestamp) {
		if alert.Timestamp.Before(w.start) {
			m.mu.Unlock()
			m.dropped.Add(1)
			slog.Warn("dropped late alert",
				"community_id", alert.CommunityID,
				"customer_id", alert.CustomerID,
				"timestamp", alert.Timestamp,
			)
			return
		}
		expired = w
		delete(m.communityWindows, alert.CommunityID)
		ok = false
	}
	if !ok {
		w = newAlertWindow(alert.Timestamp, m.cfg.CommunityWindow)
		m.communityWindows[alert.CommunityID] = w
	}
	w.add(alert)
	m.mu.Unlock()

	if expired != nil {
		m.closeCommunityWindow(ctx, alert.CommunityID, expired)
	}
}

// closeCommunityWindow emits a report only when at least one alert fell
// in the window.
func (m *Monitor) closeCommunityWindow(ctx context.Context, communityID string, w *alertWindow) {
	if len(w.alerts) == 0 {
		return
	}

	report := &domain.CommunityRiskReport{
		ID:            uuid.New().String(),
		CommunityID:   communityID,
		AlertCount:    len(w.alerts),
		RiskScore:     m.scorer(len(w.alerts)),
		RiskCustomers: w.distinctCustomers(),
		Timestamp:     w.end,
	}

	slog.Info("community risk report",
		"community_id", communityID,
		"alert_count", report.AlertCount,
		"risk_score", report.RiskScore,
		"risk_customers", len(report.RiskCustomers),
	)

	if m.repo != nil {
		if err := m.repo.SaveReport(ctx, report); err != nil {
			slog.Error("failed to persist report", "report_id", report.ID, "error", err)
		}
	}
	if m.bus != nil {
		payload, _ := json.Marshal(report)
		if err := m.bus.Publish(ctx, domain.TopicCommunityReport, payload); err != nil {
			slog.Error("failed to publish report", "report_id", report.ID, "error", err)
		}
	}
}

// sweep drives event-time window closure off the wall clock.
func (m *Monitor) sweep(ctx context.Context) {
	defer close(m.done)
	interval := m.cfg.CustomerWindow / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.AdvanceTo(ctx, now)
		}
	}
}
