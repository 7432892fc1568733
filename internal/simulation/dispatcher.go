package simulation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"simmer-sim/internal/config"
)

// CommandKind tells the engine how to carry a command out.
type CommandKind int

const (
	KindUnresolved CommandKind = iota
	KindDrive
	KindSensor
	KindReset
)

func (k CommandKind) String() string {
	switch k {
	case KindUnresolved:
		return "unresolved"
	case KindDrive:
		return "drive"
	case KindSensor:
		return "sensor"
	case KindReset:
		return "reset"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is one parsed token. Drive and Sensor are set by Prepare once the id
// has been resolved against the device tables.
type Command struct {
	Token        string
	Kind         CommandKind
	DeviceID     string
	Magnitude    float64
	HasMagnitude bool

	Drive  *Drive
	Sensor *Sensor
}

// Response carries the readings produced by one command, in order.
type Response struct {
	Token    string
	Readings []float64
}

var unsignedDecimal = regexp.MustCompile(`^(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)$`)

// splitToken separates "<id>", "<id>-<m>" and "<id>--<m>". raw keeps the sign.
func splitToken(token string) (id, raw string, hasMagnitude bool, err error) {
	id, raw, hasMagnitude = strings.Cut(token, "-")
	if id == "" {
		return "", "", false, fmt.Errorf("%w: %q has no device id", ErrParse, token)
	}
	return id, raw, hasMagnitude, nil
}

func parseMagnitude(token, raw string) (float64, error) {
	sign := 1.0
	if rest, ok := strings.CutPrefix(raw, "-"); ok {
		sign, raw = -1, rest
	}
	if !unsignedDecimal.MatchString(raw) {
		return 0, fmt.Errorf("%w: %q has a bad magnitude", ErrParse, token)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrParse, token, err)
	}
	return sign * v, nil
}

// Parse checks the syntax of a single token without consulting any device table.
// Device commands come back as KindUnresolved. When only the magnitude is bad,
// the returned command still carries the id along with the error.
func Parse(token string) (Command, error) {
	token = strings.TrimSpace(token)
	id, raw, hasMagnitude, err := splitToken(token)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Token: token, DeviceID: id, HasMagnitude: hasMagnitude}
	if id == config.ReservedCommand {
		cmd.Kind = KindReset
	}
	if hasMagnitude {
		if cmd.Magnitude, err = parseMagnitude(token, raw); err != nil {
			return cmd, err
		}
	}
	return cmd, nil
}

// SplitMessage breaks a message into tokens on whitespace and commas.
func SplitMessage(message string) []string {
	return strings.FieldsFunc(message, func(r rune) bool {
		switch r {
		case ' ', '\t', '\r', '\n', ',':
			return true
		}
		return false
	})
}

// Dispatcher resolves tokens against a simulation and executes them in one
// step. It performs no I/O; transports and the engine sit around it.
type Dispatcher struct {
	sim *Simulation
}

func NewDispatcher(sim *Simulation) *Dispatcher {
	return &Dispatcher{sim: sim}
}

// Prepare parses a token and resolves its device. The device id is checked
// before the magnitude, so "u9-x" reports an unknown device.
func (d *Dispatcher) Prepare(token string) (Command, error) {
	cmd, err := Parse(token)
	if cmd.DeviceID == "" {
		return Command{}, err
	}
	id := cmd.DeviceID

	switch {
	case cmd.Kind == KindReset:
		if cmd.HasMagnitude {
			return Command{}, fmt.Errorf("%w: %q takes no magnitude", ErrParse, cmd.Token)
		}
		return cmd, nil
	case d.lookupDrive(id, &cmd):
		if !cmd.HasMagnitude {
			return Command{}, fmt.Errorf("%w: drive %s needs a magnitude", ErrParse, id)
		}
	case d.lookupSensor(id, &cmd):
		if cmd.HasMagnitude {
			return Command{}, fmt.Errorf("%w: sensor %s takes no magnitude", ErrParse, id)
		}
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}

	if err != nil {
		return Command{}, err
	}
	if _, ok := d.sim.actuation.Duration(cmd.Drive, cmd.Magnitude); !ok {
		return Command{}, fmt.Errorf("%w: %q is too large for drive %s", ErrParse, cmd.Token, id)
	}
	return cmd, nil
}

func (d *Dispatcher) lookupDrive(id string, cmd *Command) bool {
	drive, ok := d.sim.Drive(id)
	if ok {
		cmd.Kind, cmd.Drive = KindDrive, drive
	}
	return ok
}

func (d *Dispatcher) lookupSensor(id string, cmd *Command) bool {
	sensor, ok := d.sim.Sensor(id)
	if ok {
		cmd.Kind, cmd.Sensor = KindSensor, sensor
	}
	return ok
}

// Execute carries out a prepared command immediately. Drive commands move the
// robot the whole way in one step and echo their signed magnitude.
func (d *Dispatcher) Execute(cmd Command) Response {
	resp := Response{Token: cmd.Token}
	switch cmd.Kind {
	case KindDrive:
		d.sim.Move(cmd.Drive, cmd.Magnitude)
		resp.Readings = []float64{cmd.Magnitude}
	case KindSensor:
		resp.Readings = []float64{d.sim.Measure(cmd.Sensor)}
	case KindReset:
		d.sim.Reset()
		resp.Readings = []float64{}
	}
	return resp
}

// Dispatch prepares and executes a single token. On error the simulation is
// left untouched.
func (d *Dispatcher) Dispatch(token string) (Response, error) {
	cmd, err := d.Prepare(token)
	if err != nil {
		return Response{Token: strings.TrimSpace(token)}, err
	}
	return d.Execute(cmd), nil
}

// DispatchAll runs every token of a message in order and concatenates the
// readings. The first failing token stops the rest; the readings gathered so
// far are returned alongside the error.
func (d *Dispatcher) DispatchAll(message string) ([]float64, error) {
	readings := []float64{}
	for _, token := range SplitMessage(message) {
		resp, err := d.Dispatch(token)
		if err != nil {
			return readings, err
		}
		readings = append(readings, resp.Readings...)
	}
	return readings, nil
}
