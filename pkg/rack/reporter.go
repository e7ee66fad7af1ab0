package rack

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jihwankim/netwatch/pkg/reporting"
	"github.com/jihwankim/netwatch/pkg/wire"
)

// Reporter connection timeouts. No send blocks unboundedly.
const (
	connectTimeout = 5 * time.Second
	sendTimeout    = 2 * time.Second

	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// ReporterState is the dc connection state.
type ReporterState int

const (
	StateDisconnected ReporterState = iota
	StateConnecting
	StateConnected
)

func (s ReporterState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ErrBackingOff indicates a report was dropped because the reporter is
// waiting out its reconnect delay. The next report carries fresh truth, so
// dropped reports are never queued.
var ErrBackingOff = errors.New("reporter backing off")

// Reporter maintains the transient TCP connection from a rack controller to
// the dc controller and delivers one report per analysis pass.
type Reporter struct {
	addr    string
	logger  *reporting.Logger
	metrics *Metrics

	mu          sync.Mutex
	conn        net.Conn
	state       ReporterState
	backoff     *Backoff
	nextAttempt time.Time
}

// NewReporter creates a reporter targeting the dc controller at host:port.
func NewReporter(host string, port int, logger *reporting.Logger, metrics *Metrics) *Reporter {
	return &Reporter{
		addr:    net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		logger:  logger,
		metrics: metrics,
		state:   StateDisconnected,
		backoff: NewBackoff(reconnectInitialDelay, reconnectMaxDelay),
	}
}

// State returns the current connection state.
func (r *Reporter) State() ReporterState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Send delivers one report. Transport failures transition the reporter back
// to disconnected and drop the report; it is not retried.
func (r *Reporter) Send(rep wire.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		if time.Now().Before(r.nextAttempt) {
			r.metrics.ReportErrors.Inc()
			return ErrBackingOff
		}
		if err := r.connectLocked(); err != nil {
			r.metrics.ReportErrors.Inc()
			return err
		}
	}

	data, err := rep.Encode()
	if err != nil {
		r.metrics.ReportErrors.Inc()
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if err := r.conn.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		r.dropConnLocked()
		r.metrics.ReportErrors.Inc()
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := r.conn.Write(data); err != nil {
		r.dropConnLocked()
		r.metrics.ReportErrors.Inc()
		return fmt.Errorf("report send failed: %w", err)
	}

	r.metrics.ReportsSent.Inc()
	return nil
}

// connectLocked dials the dc controller. Callers hold r.mu.
func (r *Reporter) connectLocked() error {
	r.state = StateConnecting
	r.logger.Debug("connecting to dc controller", "addr", r.addr)

	conn, err := net.DialTimeout("tcp", r.addr, connectTimeout)
	if err != nil {
		r.state = StateDisconnected
		r.nextAttempt = time.Now().Add(r.backoff.Next())
		return fmt.Errorf("dc connect failed: %w", err)
	}

	r.conn = conn
	r.state = StateConnected
	r.backoff.Reset()
	r.logger.Info("connected to dc controller", "addr", r.addr)
	return nil
}

// dropConnLocked tears down the connection and schedules the next attempt.
// Callers hold r.mu.
func (r *Reporter) dropConnLocked() {
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.state = StateDisconnected
	r.nextAttempt = time.Now().Add(r.backoff.Next())
	r.logger.Debug("dc connection lost", "next_attempt", r.nextAttempt)
}

// Close shuts the connection down.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.state = StateDisconnected
}
