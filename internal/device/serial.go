package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

var (
	// ErrReadTimeout is returned by ReadLine when no line arrived in time.
	ErrReadTimeout = errors.New("read timeout")
	// ErrNotOpen is returned when writing to a closed device.
	ErrNotOpen = errors.New("serial port not open")
)

type lineResult struct {
	line string
	err  error
}

// SerialDevice implements Device on top of a serial port. A single reader
// goroutine is started on first ReadLine, so reads with a timeout never race
// on the buffered reader.
type SerialDevice struct {
	port io.ReadWriteCloser
	dev  string

	mu      sync.Mutex // guards port for writes and Close
	once    sync.Once
	lines   chan lineResult
	closed  bool
	done    chan struct{} // closed by Close
	stopped chan struct{} // closed when the reader goroutine exits
}

// NewSerialDevice creates and opens a serial device with the given path and baudrate.
func NewSerialDevice(dev string, baud int) (*SerialDevice, error) {
	p, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", dev, err)
	}
	return NewSerialDeviceFromPort(dev, p), nil
}

// NewSerialDeviceFromPort wraps an already open port, e.g. one end of a pipe in tests.
func NewSerialDeviceFromPort(name string, port io.ReadWriteCloser) *SerialDevice {
	return &SerialDevice{port: port, dev: name, done: make(chan struct{}), stopped: make(chan struct{})}
}

// Name returns the device path.
func (s *SerialDevice) Name() string { return s.dev }

func (s *SerialDevice) startReader() {
	s.once.Do(func() {
		s.lines = make(chan lineResult, 16)
		go func() {
			defer close(s.stopped)
			defer close(s.lines)
			r := bufio.NewReader(s.port)
			for {
				line, err := r.ReadString('\n')
				if line != "" || err != nil {
					select {
					case s.lines <- lineResult{line, err}:
					case <-s.done:
						return
					}
				}
				if err != nil {
					return
				}
			}
		}()
	})
}

// ReadLine reads a single line from the serial port, blocking until newline
// or timeout. A timeout of zero waits forever.
func (s *SerialDevice) ReadLine(timeout time.Duration) (string, error) {
	s.startReader()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	case <-expired:
		return "", ErrReadTimeout
	}
}

// WriteLine writes a single line followed by '\n' to the serial port.
func (s *SerialDevice) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotOpen
	}
	_, err := s.port.Write(append([]byte(line), '\n'))
	return err
}

// Close closes the underlying serial connection and releases the reader
// goroutine even if nobody drains the lines it still holds. A blocked
// ReadLine returns once the port reports the close.
func (s *SerialDevice) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return s.port.Close()
}
