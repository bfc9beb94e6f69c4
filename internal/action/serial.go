package action

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Serial writes a payload to a serial device, e.g. a microcontroller that
// drives a pedal or light
type Serial struct {
	device  string
	baud    int
	payload []byte
	open    func(device string, baud int) (io.Writer, error)
}

// NewSerial creates a serial action. A zero baud defaults to 9600.
func NewSerial(device string, baud int, payload string, open func(string, int) (io.Writer, error)) (*Serial, error) {
	if device == "" {
		return nil, fmt.Errorf("serial action needs a device")
	}
	if baud == 0 {
		baud = 9600
	}
	if baud < 0 {
		return nil, fmt.Errorf("invalid baud rate %d", baud)
	}
	if payload == "" {
		return nil, fmt.Errorf("serial action needs a payload")
	}

	return &Serial{device: device, baud: baud, payload: []byte(payload), open: open}, nil
}

// Execute writes the payload
func (s *Serial) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w, err := s.open(s.device, s.baud)
	if err != nil {
		return fmt.Errorf("open serial %s: %w", s.device, err)
	}
	if _, err := w.Write(s.payload); err != nil {
		return fmt.Errorf("write serial %s: %w", s.device, err)
	}
	return nil
}

func (s *Serial) String() string {
	return fmt.Sprintf("serial:%s %q", s.device, s.payload)
}

// OpenSerialPort opens device at the given baud rate
func OpenSerialPort(device string, baud int) (io.WriteCloser, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return port, nil
}
