package jobs

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) PingContext(_ context.Context) error {
	return f.err
}

type fakeCounter struct {
	count int
	err   error
}

func (f *fakeCounter) GetActiveCount() (int, error) {
	return f.count, f.err
}

func (f *fakeCounter) GetPendingCount() (int, error) {
	return f.count, f.err
}

func TestHealthCheckGathersGauges(t *testing.T) {
	checker := NewDBHealthChecker(&fakePinger{},
		&fakeCounter{count: 120}, &fakeCounter{count: 8}, &fakeCounter{count: 3})

	result := checker.Run(context.Background())

	if !result.Success {
		t.Errorf("expected success, got errors %v", result.Errors)
	}
	if !result.DatabaseOK {
		t.Error("expected database OK")
	}
	if result.ActiveListings != 120 {
		t.Errorf("expected 120 active listings, got %d", result.ActiveListings)
	}
	if result.ActiveAlerts != 8 {
		t.Errorf("expected 8 active alerts, got %d", result.ActiveAlerts)
	}
	if result.PendingNotifications != 3 {
		t.Errorf("expected 3 pending notifications, got %d", result.PendingNotifications)
	}
}

func TestHealthCheckPingFailureShortCircuits(t *testing.T) {
	checker := NewDBHealthChecker(&fakePinger{err: errors.New("connection refused")},
		&fakeCounter{count: 120}, &fakeCounter{count: 8}, &fakeCounter{count: 3})

	result := checker.Run(context.Background())

	if result.Success {
		t.Error("expected failure when ping fails")
	}
	if result.DatabaseOK {
		t.Error("expected database flagged down")
	}
	if result.ActiveListings != 0 {
		t.Errorf("expected no gauges gathered after ping failure, got %d", result.ActiveListings)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(result.Errors))
	}
}

func TestHealthCheckCountFailureRecorded(t *testing.T) {
	checker := NewDBHealthChecker(&fakePinger{},
		&fakeCounter{err: errors.New("relation missing")}, &fakeCounter{count: 8}, &fakeCounter{count: 3})

	result := checker.Run(context.Background())

	if result.Success {
		t.Error("expected failure when a gauge query fails")
	}
	if !result.DatabaseOK {
		t.Error("expected database still marked reachable")
	}
	if result.ActiveAlerts != 8 {
		t.Errorf("expected remaining gauges gathered, got %d alerts", result.ActiveAlerts)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(result.Errors))
	}
}
