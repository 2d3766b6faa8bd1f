// Package tasks holds the mission routines scheduled on the event loop
// and the single registration call site that assembles them. Hardware is
// reached only through the collaborator interfaces here; the sim
// implementations let the full stack run on a desk.
package tasks

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// BatteryGauge reads the pack voltage.
type BatteryGauge interface {
	Voltage() float64
}

// Radio is the transmit/receive front end.
type Radio interface {
	Transmit(payload []byte) error
	LastRSSI() (dbm float64, ok bool)
	Frequency() (mhz float64)
}

// Heartbeat is the status LED (or equivalent) fault indicator.
type Heartbeat interface {
	Pulse()
}

// SimGauge models a slowly discharging pack with a small ripple.
type SimGauge struct {
	Base  float64
	Start time.Time
}

func NewSimGauge() *SimGauge {
	return &SimGauge{Base: 7.4, Start: time.Now()}
}

func (g *SimGauge) Voltage() float64 {
	elapsed := time.Since(g.Start).Hours()
	ripple := 0.05 * math.Sin(time.Since(g.Start).Seconds()/7)
	v := g.Base - 0.025*elapsed + ripple
	if v < 5.5 {
		v = 5.5
	}
	return v
}

// SimRadio emits telemetry frames on the flight log in the TELEM: form the
// ground tooling parses, and reports a fixed downlink RSSI.
type SimRadio struct{}

func (SimRadio) Transmit(payload []byte) error {
	log.Info().RawJSON("frame", payload).Msg("TELEM")
	return nil
}

func (SimRadio) LastRSSI() (float64, bool) { return -62.0, true }

func (SimRadio) Frequency() float64 { return 433.0 }

// SimHeartbeat logs the pulse at debug level.
type SimHeartbeat struct{}

func (SimHeartbeat) Pulse() {
	log.Debug().Msg("heartbeat")
}
