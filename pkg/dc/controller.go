// Package dc implements the datacenter controller: a TCP server that accepts
// rack health reports, aggregates them into a datacenter-wide score, and
// exports it.
package dc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jihwankim/netwatch/pkg/config"
	"github.com/jihwankim/netwatch/pkg/reporting"
	"github.com/jihwankim/netwatch/pkg/wire"
)

// reportEntry is the last report from one rack with its arrival time.
type reportEntry struct {
	report   wire.Report
	received time.Time
}

// Controller owns the dc report map and its activities: the accept loop, one
// reader per rack connection, and the periodic aggregator/summary.
type Controller struct {
	cfg     config.DCConfig
	logger  *reporting.Logger
	metrics *Metrics
	dcLabel string

	ln net.Listener

	mu      sync.Mutex
	reports map[int]reportEntry
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
}

// NewController creates a dc controller.
func NewController(cfg config.DCConfig, logger *reporting.Logger, metrics *Metrics) *Controller {
	return &Controller{
		cfg:     cfg,
		logger:  logger.WithComponent("dc"),
		metrics: metrics,
		dcLabel: strconv.Itoa(cfg.DCID),
		reports: make(map[int]reportEntry),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Listen binds the TCP report socket. A bind failure is unrecoverable.
func (c *Controller) Listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", c.cfg.ListenPort))
	if err != nil {
		return fmt.Errorf("failed to bind TCP port %d: %w", c.cfg.ListenPort, err)
	}
	c.ln = ln
	c.logger.Info("listening for rack reports", "port", c.cfg.ListenPort)
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (c *Controller) Addr() net.Addr {
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

// Run accepts rack connections and aggregates reports until the context is
// cancelled. Listen must have been called first.
func (c *Controller) Run(ctx context.Context) error {
	if c.ln == nil {
		return errors.New("controller is not listening")
	}

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		c.acceptLoop()
	}()

	ticker := time.NewTicker(c.cfg.SummaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown(acceptDone)
			return nil
		case <-ticker.C:
			score := c.Recompute(time.Now())
			c.logSummary(score)
		}
	}
}

// acceptLoop accepts one connection per rack controller until the listener
// closes.
func (c *Controller) acceptLoop() {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.logger.Error("accept failed", "error", err.Error())
			}
			return
		}

		c.mu.Lock()
		c.conns[conn] = struct{}{}
		c.mu.Unlock()

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handleConn(conn)
		}()
	}
}

// handleConn reads newline-framed report records until EOF or a transport
// error. Malformed records are skipped; the connection stays up.
func (c *Controller) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	c.logger.Info("rack connected", "remote", remote)

	defer func() {
		conn.Close()
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		c.logger.Info("rack disconnected", "remote", remote)
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		rep, err := wire.DecodeReport(line)
		if err != nil {
			c.metrics.ParseErrors.Inc()
			c.logger.Debug("skipping malformed report line", "remote", remote, "error", err.Error())
			continue
		}

		c.HandleReport(rep, time.Now())
	}

	if err := scanner.Err(); err != nil {
		c.logger.Debug("report stream error", "remote", remote, "error", err.Error())
	}
}

// HandleReport records one rack report and recomputes the dc score.
func (c *Controller) HandleReport(rep wire.Report, now time.Time) {
	c.metrics.ReportsReceived.Inc()
	c.metrics.RackHealth.WithLabelValues(strconv.Itoa(rep.RackID)).Set(rep.HealthScore)

	c.mu.Lock()
	c.reports[rep.RackID] = reportEntry{report: rep, received: now}
	c.mu.Unlock()

	c.Recompute(now)
}

// Recompute recalculates the dc health score as the mean of rack scores
// received within the staleness window. Stale reports are excluded; with no
// fresh report at all the score is 1.0 (no evidence of degradation). Gauges
// for stale racks are left in place.
func (c *Controller) Recompute(now time.Time) float64 {
	c.mu.Lock()
	var sum float64
	fresh := 0
	for _, entry := range c.reports {
		if now.Sub(entry.received) > c.cfg.StalenessWindow {
			continue
		}
		sum += entry.report.HealthScore
		fresh++
	}
	c.mu.Unlock()

	score := 1.0
	if fresh > 0 {
		score = sum / float64(fresh)
	} else {
		c.logger.Debug("no fresh rack reports in aggregation window")
	}
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	c.metrics.DCHealth.WithLabelValues(c.dcLabel).Set(score)
	return score
}

// RackCount returns the number of racks that have ever reported.
func (c *Controller) RackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

// logSummary emits the periodic informational summary line.
func (c *Controller) logSummary(score float64) {
	c.mu.Lock()
	racks := len(c.reports)
	conns := len(c.conns)
	c.mu.Unlock()

	c.logger.Info("dc summary",
		"dc_health_score", score,
		"racks_reporting", racks,
		"connections", conns,
	)
}

// shutdown stops accepting connections and closes the active readers.
func (c *Controller) shutdown(acceptDone <-chan struct{}) {
	c.ln.Close()
	<-acceptDone

	c.mu.Lock()
	for conn := range c.conns {
		conn.Close()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
	}

	c.logger.Info("dc controller stopped", "racks_seen", c.RackCount())
}
