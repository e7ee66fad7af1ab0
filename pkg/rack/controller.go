// Package rack implements the rack controller: it terminates UDP sample
// streams from its servers, runs periodic spectral analysis over per-server
// rolling buffers, exports metrics, and reports an aggregated rack health
// score to the dc controller over TCP.
package rack

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jihwankim/netwatch/pkg/config"
	"github.com/jihwankim/netwatch/pkg/reporting"
	"github.com/jihwankim/netwatch/pkg/spectral"
	"github.com/jihwankim/netwatch/pkg/wire"
)

// serverState is the per-server record. Each record has its own mutex: the
// ingest path and the analysis path are the only writers, and they may run
// concurrently for different servers.
type serverState struct {
	mu sync.Mutex

	serverID     int
	expectedFreq float64
	rackLabel    string
	serverLabel  string

	// Bounded ring of the last windowSize (sample, relative_time) pairs.
	samples []float64
	times   []float64
	head    int
	count   int

	packetsReceived uint64
	packetsLost     uint64
	lastSeq         uint64
	firstSeq        uint64
	hasSeq          bool

	lastSpectralError float64
	lastSNRdB         float64
	analyzed          bool
}

// push appends one sample, evicting the oldest when the ring is full.
func (s *serverState) push(sample, relTime float64) {
	if s.count < len(s.samples) {
		idx := (s.head + s.count) % len(s.samples)
		s.samples[idx] = sample
		s.times[idx] = relTime
		s.count++
		return
	}
	s.samples[s.head] = sample
	s.times[s.head] = relTime
	s.head = (s.head + 1) % len(s.samples)
}

// snapshot returns the buffered samples in arrival order.
func (s *serverState) snapshot() []float64 {
	out := make([]float64, s.count)
	for i := 0; i < s.count; i++ {
		out[i] = s.samples[(s.head+i)%len(s.samples)]
	}
	return out
}

// Controller owns the rack's per-server state map and its three activities:
// the UDP receive loop, the periodic analyzer/reporter, and the metrics
// surface.
type Controller struct {
	cfg      config.RackConfig
	logger   *reporting.Logger
	metrics  *Metrics
	reporter *Reporter

	start     time.Time
	rackLabel string
	conn      *net.UDPConn

	mu      sync.RWMutex
	servers map[int]*serverState

	// Cross-rack traffic is a configuration bug; log once per offender to
	// avoid flooding.
	wrongRackSeen map[int]struct{}
}

// NewController creates a rack controller. The reporter may be nil when no
// dc forwarding is wanted (tests).
func NewController(cfg config.RackConfig, logger *reporting.Logger, metrics *Metrics, reporter *Reporter) *Controller {
	return &Controller{
		cfg:           cfg,
		logger:        logger.WithComponent("rack"),
		metrics:       metrics,
		reporter:      reporter,
		start:         time.Now(),
		rackLabel:     strconv.Itoa(cfg.RackID),
		servers:       make(map[int]*serverState),
		wrongRackSeen: make(map[int]struct{}),
	}
}

// Ingest processes one decoded datagram.
func (c *Controller) Ingest(dg wire.Datagram, now time.Time) {
	if dg.RackID != c.cfg.RackID {
		c.metrics.WrongRack.WithLabelValues(strconv.Itoa(dg.RackID)).Inc()
		c.mu.Lock()
		if _, seen := c.wrongRackSeen[dg.RackID]; !seen {
			c.wrongRackSeen[dg.RackID] = struct{}{}
			c.mu.Unlock()
			c.logger.Warn("dropping datagrams from foreign rack", "rack_id", dg.RackID)
			return
		}
		c.mu.Unlock()
		return
	}

	state := c.lookupOrCreate(dg.ServerID)

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.hasSeq {
		if dg.Seq > state.lastSeq+1 {
			lost := dg.Seq - state.lastSeq - 1
			state.packetsLost += lost
			c.metrics.PacketsLost.WithLabelValues(state.rackLabel, state.serverLabel).Add(float64(lost))
		}
		// seq <= lastSeq is a reset or a late reorder: no loss credit.
	} else {
		state.hasSeq = true
		state.firstSeq = dg.Seq
		state.lastSeq = dg.Seq
	}

	state.push(dg.WaveSample, now.Sub(c.start).Seconds())

	latency := float64(now.UnixNano())/1e9 - dg.SentTS
	if latency < 0 {
		latency = 0
	}
	c.metrics.LatencyMs.WithLabelValues(state.rackLabel, state.serverLabel).Observe(latency * 1000)

	state.packetsReceived++
	c.metrics.PacketsReceived.WithLabelValues(state.rackLabel, state.serverLabel).Inc()
	if dg.Seq > state.lastSeq {
		state.lastSeq = dg.Seq
	}
}

// lookupOrCreate returns the per-server record, creating it on first
// datagram. Records live for the process lifetime; the server population is
// bounded and known.
func (c *Controller) lookupOrCreate(serverID int) *serverState {
	c.mu.RLock()
	state, ok := c.servers[serverID]
	c.mu.RUnlock()
	if ok {
		return state
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok = c.servers[serverID]; ok {
		return state
	}

	state = &serverState{
		serverID:     serverID,
		expectedFreq: spectral.ExpectedFreq(c.cfg.RackID, serverID),
		rackLabel:    c.rackLabel,
		serverLabel:  strconv.Itoa(serverID),
		samples:      make([]float64, c.cfg.WindowSize),
		times:        make([]float64, c.cfg.WindowSize),
	}
	c.servers[serverID] = state
	c.logger.Info("new server observed", "server_id", serverID, "expected_freq_hz", state.expectedFreq)
	return state
}

// AnalysisResult is the outcome of one analysis pass.
type AnalysisResult struct {
	HealthScore float64
	ServerCount int
	Analyzed    int
}

// RunAnalysisPass analyzes every server with a full-enough buffer, updates
// the per-server gauges, and recomputes the rack health score. Servers below
// the sample threshold keep their previous gauges untouched: no data is not
// degradation.
func (c *Controller) RunAnalysisPass() AnalysisResult {
	c.mu.RLock()
	servers := make([]*serverState, 0, len(c.servers))
	for _, s := range c.servers {
		servers = append(servers, s)
	}
	c.mu.RUnlock()

	var errSum float64
	analyzed := 0

	for _, s := range servers {
		s.mu.Lock()
		if s.count < c.cfg.MinSamples {
			s.mu.Unlock()
			continue
		}
		buf := s.snapshot()
		freq := s.expectedFreq
		s.mu.Unlock()

		specErr, snrDB := spectral.Analyze(buf, freq, c.cfg.SampleRateHz)

		s.mu.Lock()
		s.lastSpectralError = specErr
		s.lastSNRdB = snrDB
		s.analyzed = true
		s.mu.Unlock()

		c.metrics.SpectralError.WithLabelValues(s.rackLabel, s.serverLabel).Set(specErr)
		c.metrics.SNRdB.WithLabelValues(s.rackLabel, s.serverLabel).Set(snrDB)
		c.logger.Debug("server analyzed",
			"server_id", s.serverID,
			"spectral_error", specErr,
			"snr_db", snrDB,
			"health", spectral.Classify(specErr).String(),
		)

		errSum += specErr
		analyzed++
	}

	score := 1.0
	if analyzed > 0 {
		score = 1.0 - errSum/float64(analyzed)
	} else {
		c.logger.Debug("analysis pass found no server with enough samples")
	}
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	c.metrics.RackHealth.WithLabelValues(c.rackLabel).Set(score)

	return AnalysisResult{
		HealthScore: score,
		ServerCount: len(servers),
		Analyzed:    analyzed,
	}
}

// ServerStats reports the loss counters for one server. The boolean is
// false if the server has never been seen.
func (c *Controller) ServerStats(serverID int) (received, lost uint64, ok bool) {
	c.mu.RLock()
	state, exists := c.servers[serverID]
	c.mu.RUnlock()
	if !exists {
		return 0, 0, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.packetsReceived, state.packetsLost, true
}

// ServerCount returns the number of servers observed so far.
func (c *Controller) ServerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.servers)
}
