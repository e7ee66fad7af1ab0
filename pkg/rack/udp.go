package rack

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jihwankim/netwatch/pkg/wire"
)

// shutdownDrain is how long in-flight work may finish after a stop signal.
const shutdownDrain = 1 * time.Second

// Listen binds the UDP ingest socket. A bind failure is unrecoverable and
// callers exit the process on it.
func (c *Controller) Listen() error {
	addr := &net.UDPAddr{Port: c.cfg.ListenPort()}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP port %d: %w", c.cfg.ListenPort(), err)
	}
	c.conn = conn
	c.logger.Info("listening for sample datagrams", "port", c.cfg.ListenPort())
	return nil
}

// LocalAddr returns the bound UDP address, or nil before Listen.
func (c *Controller) LocalAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// Run drives the receive loop and the periodic analyzer/reporter until the
// context is cancelled. Listen must have been called first.
func (c *Controller) Run(ctx context.Context) error {
	if c.conn == nil {
		return errors.New("controller is not listening")
	}

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		c.receiveLoop()
	}()

	ticker := time.NewTicker(c.cfg.AnalysisInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown(recvDone)
			return nil
		case <-ticker.C:
			result := c.RunAnalysisPass()
			c.report(result)
		}
	}
}

// receiveLoop reads datagrams until the socket closes. UDP ingest has no
// backpressure: kernel-buffer overflow surfaces as sequence gaps, and the
// loss counters measure it.
func (c *Controller) receiveLoop() {
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.logger.Error("UDP receive failed", "error", err.Error())
			}
			return
		}

		dg, err := wire.DecodeDatagram(buf[:n])
		if err != nil {
			c.metrics.DecodeErrors.Inc()
			c.logger.Debug("dropping undecodable datagram", "error", err.Error())
			continue
		}

		c.Ingest(dg, time.Now())
	}
}

// report forwards one rack report to the dc controller. Failed sends are
// dropped; the next pass carries fresh truth.
func (c *Controller) report(result AnalysisResult) {
	if c.reporter == nil {
		return
	}

	rep := wire.Report{
		RackID:      c.cfg.RackID,
		HealthScore: result.HealthScore,
		ServerCount: result.ServerCount,
		Timestamp:   float64(time.Now().UnixNano()) / 1e9,
	}

	if err := c.reporter.Send(rep); err != nil {
		c.logger.Debug("rack report dropped", "error", err.Error())
	}
}

// shutdown stops accepting datagrams, lets the receive loop drain briefly,
// and closes the dc connection.
func (c *Controller) shutdown(recvDone <-chan struct{}) {
	c.conn.Close()
	select {
	case <-recvDone:
	case <-time.After(shutdownDrain):
	}
	if c.reporter != nil {
		c.reporter.Close()
	}
	c.logger.Info("rack controller stopped", "servers_seen", c.ServerCount())
}
