// Package transport connects remote controllers to the simulation engine. Every
// link reads ASCII command messages and answers with binary telemetry.
package transport

import (
	"context"

	"simmer-sim/internal/simulation"
	"simmer-sim/internal/telemetry"
)

// Submitter runs one command message and returns its readings. It is
// implemented by *simulation.Engine.
type Submitter interface {
	Submit(ctx context.Context, message string) ([]float64, error)
}

// reply encodes the answer to a message. A failed message is answered with an
// empty record so the controller is never left waiting.
func reply(readings []float64, err error) []byte {
	if err != nil && !simulation.IsCommandError(err) {
		return []byte{}
	}
	return telemetry.Encode(readings)
}
