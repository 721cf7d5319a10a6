package jobs

import (
	"context"
	"fmt"
	"log/slog"
)

// HealthResult is the structured outcome of one health check run
type HealthResult struct {
	Success              bool     `json:"success"`
	DatabaseOK           bool     `json:"database_ok"`
	ActiveListings       int      `json:"active_listings"`
	ActiveAlerts         int      `json:"active_alerts"`
	PendingNotifications int      `json:"pending_notifications"`
	Errors               []string `json:"errors,omitempty"`
}

type HealthChecker interface {
	Run(ctx context.Context) *HealthResult
}

// Pinger reports database connectivity.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type ActiveCounter interface {
	GetActiveCount() (int, error)
}

type PendingCounter interface {
	GetPendingCount() (int, error)
}

// DBHealthChecker probes the database and gathers table gauges.
type DBHealthChecker struct {
	db            Pinger
	listings      ActiveCounter
	alerts        ActiveCounter
	notifications PendingCounter
}

func NewDBHealthChecker(db Pinger, listings ActiveCounter,
	alerts ActiveCounter, notifications PendingCounter) *DBHealthChecker {
	return &DBHealthChecker{
		db:            db,
		listings:      listings,
		alerts:        alerts,
		notifications: notifications,
	}
}

func (h *DBHealthChecker) Run(ctx context.Context) *HealthResult {
	result := &HealthResult{}

	if err := h.db.PingContext(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("database ping: %v", err))
		slog.Error("Health check failed", "error", err)
		return result
	}
	result.DatabaseOK = true

	var err error
	if result.ActiveListings, err = h.listings.GetActiveCount(); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("listing count: %v", err))
	}
	if result.ActiveAlerts, err = h.alerts.GetActiveCount(); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("alert count: %v", err))
	}
	if result.PendingNotifications, err = h.notifications.GetPendingCount(); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("pending count: %v", err))
	}

	result.Success = len(result.Errors) == 0

	slog.Info("Health check completed",
		"database_ok", result.DatabaseOK,
		"active_listings", result.ActiveListings,
		"active_alerts", result.ActiveAlerts,
		"pending_notifications", result.PendingNotifications)
	return result
}

var _ HealthChecker = (*DBHealthChecker)(nil)
