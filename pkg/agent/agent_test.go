package agent

import (
	"context"
	"math"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jihwankim/netwatch/pkg/config"
	"github.com/jihwankim/netwatch/pkg/reporting"
	"github.com/jihwankim/netwatch/pkg/wire"
)

func testAgentConfig(port int) config.AgentConfig {
	return config.AgentConfig{
		RackID:         0,
		ServerID:       3,
		ControllerHost: "127.0.0.1",
		ControllerPort: port,
		SampleRateHz:   20,
		Amplitude:      1.0,
	}
}

func TestFrequencyDerivation(t *testing.T) {
	tests := []struct {
		rackID, serverID int
		want             float64
	}{
		{0, 3, 1.15},
		{1, 0, 2.0},
		{3, 10, 4.5},
	}

	for _, tt := range tests {
		cfg := testAgentConfig(12345)
		cfg.RackID = tt.rackID
		cfg.ServerID = tt.serverID

		a := New(cfg, reporting.NewNopLogger())
		if math.Abs(a.Frequency()-tt.want) > 1e-9 {
			t.Errorf("Frequency() for rack %d server %d = %v, want %v",
				tt.rackID, tt.serverID, a.Frequency(), tt.want)
		}
	}
}

func TestSamplePhaseAnchoredToIndex(t *testing.T) {
	cfg := testAgentConfig(12345)
	cfg.RackID = 0
	cfg.ServerID = 0 // 1.0 Hz at 20 Hz: period is 20 samples
	a := New(cfg, reporting.NewNopLogger())

	if got := a.Sample(0); got != 0 {
		t.Errorf("Sample(0) = %v, want 0", got)
	}
	if got := a.Sample(5); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Sample(5) = %v, want 1.0 at the quarter period", got)
	}
	if got := a.Sample(10); math.Abs(got) > 1e-9 {
		t.Errorf("Sample(10) = %v, want 0 at the half period", got)
	}
	if got := a.Sample(20); math.Abs(got) > 1e-9 {
		t.Errorf("Sample(20) = %v, want 0 after a full period", got)
	}
}

func TestSampleAmplitudeScaling(t *testing.T) {
	cfg := testAgentConfig(12345)
	cfg.ServerID = 0
	cfg.Amplitude = 0.5
	a := New(cfg, reporting.NewNopLogger())

	if got := a.Sample(5); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Sample(5) with amplitude 0.5 = %v, want 0.5", got)
	}
}

func TestRunEmitsDecodableDatagrams(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to open listener: %v", err)
	}
	defer listener.Close()

	_, portStr, _ := net.SplitHostPort(listener.LocalAddr().String())
	port, _ := strconv.Atoi(portStr)

	cfg := testAgentConfig(port)
	cfg.SampleRateHz = 200 // keep the test fast

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(cfg, reporting.NewNopLogger()).Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	buf := make([]byte, wire.MaxDatagramSize)
	var lastSeq uint64
	for i := 0; i < 5; i++ {
		listener.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := listener.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("datagram %d never arrived: %v", i, err)
		}

		dg, err := wire.DecodeDatagram(buf[:n])
		if err != nil {
			t.Fatalf("datagram %d undecodable: %v", i, err)
		}
		if dg.RackID != 0 || dg.ServerID != 3 {
			t.Errorf("datagram carries rack %d server %d, want 0/3", dg.RackID, dg.ServerID)
		}
		if dg.WaveSample < -1 || dg.WaveSample > 1 {
			t.Errorf("wave sample %v out of [-1, 1]", dg.WaveSample)
		}
		if i > 0 && dg.Seq != lastSeq+1 {
			t.Errorf("seq jumped from %d to %d on loopback", lastSeq, dg.Seq)
		}
		lastSeq = dg.Seq
	}
}

func TestRunFailsOnUnresolvableAddress(t *testing.T) {
	cfg := testAgentConfig(9999)
	cfg.ControllerHost = "host.invalid."

	err := New(cfg, reporting.NewNopLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("Run() succeeded against an unresolvable address")
	}
}
