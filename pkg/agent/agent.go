// Package agent implements the server agent: a phase-locked sine source
// that streams sample datagrams toward its rack controller over UDP.
package agent

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/jihwankim/netwatch/pkg/config"
	"github.com/jihwankim/netwatch/pkg/reporting"
	"github.com/jihwankim/netwatch/pkg/spectral"
	"github.com/jihwankim/netwatch/pkg/wire"
)

// Agent emits a steady sinusoidal carrier at the frequency assigned to its
// (rack, server) pair. Sample phase is anchored to the sample index, not to
// wall time, so sender clock drift never bends the waveform.
type Agent struct {
	cfg    config.AgentConfig
	logger *reporting.Logger
	freq   float64

	sampleIndex uint64
	seq         uint64
}

// New creates a server agent. The carrier frequency is derived once from the
// configured rack and server ids.
func New(cfg config.AgentConfig, logger *reporting.Logger) *Agent {
	return &Agent{
		cfg:    cfg,
		logger: logger.WithComponent("agent"),
		freq:   spectral.ExpectedFreq(cfg.RackID, cfg.ServerID),
	}
}

// Frequency returns the derived carrier frequency in Hz.
func (a *Agent) Frequency() float64 {
	return a.freq
}

// Sample returns the carrier amplitude at sample index n.
func (a *Agent) Sample(n uint64) float64 {
	t := float64(n) / a.cfg.SampleRateHz
	return a.cfg.Amplitude * math.Sin(2*math.Pi*a.freq*t)
}

// Run streams datagrams until the context is cancelled. A failure to resolve
// or open the destination socket is fatal; transient send failures are logged
// at debug and dropped, since retries would falsify the spectral picture.
func (a *Agent) Run(ctx context.Context) error {
	addr := net.JoinHostPort(a.cfg.ControllerHost, fmt.Sprintf("%d", a.cfg.ControllerPort))
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to open UDP socket to %s: %w", addr, err)
	}
	defer conn.Close()

	a.logger.Info("agent started",
		"rack_id", a.cfg.RackID,
		"server_id", a.cfg.ServerID,
		"frequency_hz", a.freq,
		"sample_rate_hz", a.cfg.SampleRateHz,
		"target", addr,
	)

	period := time.Duration(float64(time.Second) / a.cfg.SampleRateHz)
	start := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping", "samples_sent", a.seq)
			return nil
		case <-timer.C:
		}

		if err := a.emit(conn); err != nil {
			a.logger.Debug("send failed, sample dropped", "seq", a.seq, "error", err.Error())
		}
		a.sampleIndex++
		a.seq++

		// Sleep until the next scheduled tick so drift does not accumulate.
		next := start.Add(time.Duration(a.sampleIndex) * period)
		timer.Reset(time.Until(next))
	}
}

// emit builds and sends the datagram for the current sample index.
func (a *Agent) emit(conn net.Conn) error {
	dg := wire.Datagram{
		RackID:     a.cfg.RackID,
		ServerID:   a.cfg.ServerID,
		Seq:        a.seq,
		SentTS:     float64(time.Now().UnixNano()) / 1e9,
		WaveSample: a.Sample(a.sampleIndex),
	}

	data, err := dg.Encode()
	if err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}
