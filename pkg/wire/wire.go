// Package wire defines the records exchanged between netwatch tiers and
// their encodings: one JSON object per UDP datagram (agent to rack) and one
// newline-terminated JSON object per TCP report (rack to dc).
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// MaxDatagramSize bounds the receive buffer for sample datagrams.
const MaxDatagramSize = 256

// Datagram is one carrier sample emitted by a server agent.
type Datagram struct {
	RackID     int     `json:"rack_id"`
	ServerID   int     `json:"server_id"`
	Seq        uint64  `json:"seq"`
	SentTS     float64 `json:"sent_ts"`
	WaveSample float64 `json:"wave_sample"`
}

// Report is one rack health summary sent to the dc controller.
type Report struct {
	RackID      int     `json:"rack_id"`
	HealthScore float64 `json:"health_score"`
	ServerCount int     `json:"server_count"`
	Timestamp   float64 `json:"timestamp"`
}

var (
	ErrNegativeID    = errors.New("negative rack or server id")
	ErrBadWaveSample = errors.New("wave sample out of range")
	ErrBadTimestamp  = errors.New("timestamp not finite or negative")
	ErrBadScore      = errors.New("health score out of range")
)

// Validate rejects ill-formed datagrams at the decode boundary so nothing
// downstream has to tolerate partial records.
func (d Datagram) Validate() error {
	if d.RackID < 0 || d.ServerID < 0 {
		return ErrNegativeID
	}
	if math.IsNaN(d.WaveSample) || d.WaveSample < -1 || d.WaveSample > 1 {
		return ErrBadWaveSample
	}
	if math.IsNaN(d.SentTS) || math.IsInf(d.SentTS, 0) || d.SentTS < 0 {
		return ErrBadTimestamp
	}
	return nil
}

// Encode marshals the datagram to its wire form.
func (d Datagram) Encode() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(d)
}

// DecodeDatagram parses and validates one datagram payload.
func DecodeDatagram(data []byte) (Datagram, error) {
	var d Datagram
	if err := json.Unmarshal(data, &d); err != nil {
		return Datagram{}, fmt.Errorf("malformed datagram: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Datagram{}, fmt.Errorf("malformed datagram: %w", err)
	}
	for _, name := range []string{"rack_id", "server_id", "seq", "sent_ts", "wave_sample"} {
		if _, ok := fields[name]; !ok {
			return Datagram{}, fmt.Errorf("malformed datagram: missing field %q", name)
		}
	}
	if err := d.Validate(); err != nil {
		return Datagram{}, err
	}
	return d, nil
}

// Validate rejects ill-formed reports.
func (r Report) Validate() error {
	if r.RackID < 0 {
		return ErrNegativeID
	}
	if math.IsNaN(r.HealthScore) || r.HealthScore < 0 || r.HealthScore > 1 {
		return ErrBadScore
	}
	if r.ServerCount < 0 {
		return fmt.Errorf("negative server count %d", r.ServerCount)
	}
	if math.IsNaN(r.Timestamp) || math.IsInf(r.Timestamp, 0) || r.Timestamp < 0 {
		return ErrBadTimestamp
	}
	return nil
}

// Encode marshals the report as one newline-terminated line.
func (r Report) Encode() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeReport parses and validates one report line (without the newline).
func DecodeReport(line []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(line, &r); err != nil {
		return Report{}, fmt.Errorf("malformed report: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return Report{}, fmt.Errorf("malformed report: %w", err)
	}
	for _, name := range []string{"rack_id", "health_score", "server_count", "timestamp"} {
		if _, ok := fields[name]; !ok {
			return Report{}, fmt.Errorf("malformed report: missing field %q", name)
		}
	}
	if err := r.Validate(); err != nil {
		return Report{}, err
	}
	return r, nil
}
