package scenario

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is used when PortOptions leaves the rate unset.
const DefaultBaudRate = 115200

// PortOptions describes the serial link to a frame bridge. Zero values
// select 115200 8N1.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"` // N, E or O
}

// Normalize validates the options and fills in defaults.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}

	switch p := strings.ToUpper(strings.TrimSpace(o.Parity)); p {
	case "", "N", "NONE":
		o.Parity = "N"
	case "E", "EVEN":
		o.Parity = "E"
	case "O", "ODD":
		o.Parity = "O"
	default:
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return o, nil
}

// Mode converts the options to the go.bug.st/serial mode.
func (o PortOptions) Mode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{BaudRate: n.BaudRate, DataBits: n.DataBits, StopBits: serial.OneStopBit}
	if n.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch n.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// PortOpener opens the device at path. Tests substitute a fake.
type PortOpener func(path string, mode *serial.Mode) (io.ReadCloser, error)

func openRealPort(path string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(path, mode)
}

// SerialSource reads JSON-line frames from a serial port, for example an
// odometry/landmark bridge on a vehicle. Undecodable lines are logged and
// skipped since a live link can drop bytes.
type SerialSource struct {
	*Reader
	port io.ReadCloser
}

// OpenSerial opens the serial port at path.
func OpenSerial(path string, opts PortOptions) (*SerialSource, error) {
	return OpenSerialWith(openRealPort, path, opts)
}

// OpenSerialWith opens path through open.
func OpenSerialWith(open PortOpener, path string, opts PortOptions) (*SerialSource, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	port, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	diagf("reading frames from serial port %s at %d baud", path, mode.BaudRate)

	r := NewReader(port)
	r.SkipMalformed = true
	return &SerialSource{Reader: r, port: port}, nil
}

// Close closes the port, which also unblocks a pending Next.
func (s *SerialSource) Close() error {
	return s.port.Close()
}
