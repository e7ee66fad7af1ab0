package dc

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jihwankim/netwatch/pkg/config"
	"github.com/jihwankim/netwatch/pkg/reporting"
	"github.com/jihwankim/netwatch/pkg/wire"
)

func testConfig() config.DCConfig {
	return config.DCConfig{
		DCID:            0,
		ListenPort:      0, // ephemeral
		MetricsPort:     8100,
		SummaryInterval: 10 * time.Second,
		StalenessWindow: 30 * time.Second,
	}
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewController(testConfig(), reporting.NewNopLogger(), metrics)
}

func report(rackID int, score float64) wire.Report {
	return wire.Report{RackID: rackID, HealthScore: score, ServerCount: 8, Timestamp: 1000}
}

func TestRecomputeMeansFreshReports(t *testing.T) {
	c := newTestController(t)
	now := time.Now()

	c.HandleReport(report(0, 0.9), now)
	c.HandleReport(report(1, 0.7), now)

	got := c.Recompute(now)
	want := 0.8
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Recompute() = %v, want %v", got, want)
	}
}

func TestRecomputeExcludesStaleReports(t *testing.T) {
	c := newTestController(t)
	now := time.Now()

	c.HandleReport(report(0, 0.2), now.Add(-31*time.Second))
	c.HandleReport(report(1, 0.9), now)

	if got := c.Recompute(now); got != 0.9 {
		t.Errorf("Recompute() = %v with one stale report, want 0.9", got)
	}
}

func TestRecomputeEmptyIsHealthy(t *testing.T) {
	c := newTestController(t)

	if got := c.Recompute(time.Now()); got != 1.0 {
		t.Errorf("Recompute() = %v with no reports, want 1.0", got)
	}

	// All reports aged out behaves the same.
	now := time.Now()
	c.HandleReport(report(0, 0.1), now.Add(-time.Minute))
	if got := c.Recompute(now); got != 1.0 {
		t.Errorf("Recompute() = %v with only stale reports, want 1.0", got)
	}
}

func TestRecomputeBounds(t *testing.T) {
	c := newTestController(t)
	now := time.Now()

	for rack := 0; rack < 8; rack++ {
		c.HandleReport(report(rack, float64(rack)/7), now)
	}

	got := c.Recompute(now)
	if got < 0 || got > 1 {
		t.Errorf("Recompute() = %v out of [0, 1]", got)
	}
}

func TestLatestReportWins(t *testing.T) {
	c := newTestController(t)
	now := time.Now()

	c.HandleReport(report(0, 0.2), now.Add(-10*time.Second))
	c.HandleReport(report(0, 0.8), now)

	if got := c.Recompute(now); got != 0.8 {
		t.Errorf("Recompute() = %v, want the newer report's 0.8", got)
	}
	if c.RackCount() != 1 {
		t.Errorf("RackCount() = %d, want 1", c.RackCount())
	}
}

func TestConnectionSurvivesMalformedLines(t *testing.T) {
	c := newTestController(t)
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	conn, err := net.Dial("tcp", c.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	good, _ := report(3, 0.75).Encode()
	if _, err := fmt.Fprintf(conn, "this is not a report\n%s", good); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for c.RackCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("valid report after malformed line never arrived")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	c := newTestController(t)
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	conn, err := net.Dial("tcp", c.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}

	// The peer closed our connection: the next read must fail promptly.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Error("connection still open after controller shutdown")
	}
}
