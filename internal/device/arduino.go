package device

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"AcademyBot/internal/model"
	"AcademyBot/internal/parser"
)

// ArduinoDevice is a serial-connected Arduino driving either the drivetrain
// motors or the turret servos. Commands go out as "<CMD>" frames; anything
// the board prints back is treated as acknowledgement or debug output.
type ArduinoDevice struct {
	ID     string
	Device string
	Baud   int
	Serial *SerialDevice

	mu sync.Mutex
}

// NewArduinoDevice creates a new Arduino device handler.
func NewArduinoDevice(id, device string, baud int) *ArduinoDevice {
	return &ArduinoDevice{ID: id, Device: device, Baud: baud}
}

// NewArduinoDeviceOnPort creates an Arduino handler over an open port.
func NewArduinoDeviceOnPort(id string, port io.ReadWriteCloser) *ArduinoDevice {
	return &ArduinoDevice{ID: id, Device: id, Serial: NewSerialDeviceFromPort(id, port)}
}

// --- Implementation of Device interface ---

// Open initializes the Arduino serial connection.
func (arduino *ArduinoDevice) Open() error {
	arduino.mu.Lock()
	defer arduino.mu.Unlock()
	if arduino.Serial != nil {
		return nil
	}
	serialDevice, err := NewSerialDevice(arduino.Device, arduino.Baud)
	if err != nil {
		return fmt.Errorf("open arduino serial failed: %w", err)
	}
	arduino.Serial = serialDevice
	return nil
}

// Close terminates the serial connection safely.
func (arduino *ArduinoDevice) Close() error {
	arduino.mu.Lock()
	defer arduino.mu.Unlock()
	if arduino.Serial == nil {
		return nil
	}
	err := arduino.Serial.Close()
	arduino.Serial = nil
	return err
}

func (arduino *ArduinoDevice) serial() *SerialDevice {
	arduino.mu.Lock()
	defer arduino.mu.Unlock()
	return arduino.Serial
}

// ReadLine reads a single line of data from the Arduino.
func (arduino *ArduinoDevice) ReadLine(timeout time.Duration) (string, error) {
	s := arduino.serial()
	if s == nil {
		return "", errors.New("arduino serial not open")
	}
	return s.ReadLine(timeout)
}

// WriteLine writes a command or message to the Arduino.
func (arduino *ArduinoDevice) WriteLine(line string) error {
	s := arduino.serial()
	if s == nil {
		return errors.New("arduino serial not open")
	}
	return s.WriteLine(line)
}

// --- Implementation of Link interface ---

// Send writes one actuator frame.
func (arduino *ArduinoDevice) Send(cmd model.Command) error {
	frame := parser.FrameCommand(cmd)
	if err := arduino.WriteLine(frame); err != nil {
		return fmt.Errorf("arduino %s send %s: %w", arduino.ID, frame, err)
	}
	return nil
}

// --- Additional behavior ---

// Monitor forwards every line the Arduino prints into out until the returned
// stop function is called or the port closes. out is closed on exit.
func (arduino *ArduinoDevice) Monitor(out chan<- string) (func(), error) {
	if err := arduino.Open(); err != nil {
		return nil, err
	}
	s := arduino.serial()

	stop := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-stop:
				return
			default:
			}

			line, err := s.ReadLine(200 * time.Millisecond)
			if errors.Is(err, ErrReadTimeout) {
				continue
			}
			if err != nil {
				log.Printf("[arduino %s] monitor stopped: %v", arduino.ID, err)
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-stop:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }, nil
}

// StartSimulation plays the board side of the link: it reads frames from the
// port, reports each decoded command to onCommand and acknowledges it with
// "ACK <CMD>". It returns when stop is closed or the port goes away.
func (arduino *ArduinoDevice) StartSimulation(stop <-chan struct{}, onCommand func(model.Command)) error {
	if err := arduino.Open(); err != nil {
		return err
	}
	defer func() {
		if err := arduino.Close(); err != nil {
			log.Printf("[warning] Failed to close arduino device: %v", err)
		}
	}()

	log.Printf("[arduino %s] Simulator started on %s (baud %d)", arduino.ID, arduino.Device, arduino.Baud)

	for {
		select {
		case <-stop:
			log.Printf("[arduino %s] Simulation stopped.", arduino.ID)
			return nil
		default:
		}

		line, err := arduino.ReadLine(200 * time.Millisecond)
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if err != nil {
			return fmt.Errorf("arduino %s simulator read: %w", arduino.ID, err)
		}
		cmd, err := parser.ParseFrame(line)
		if err != nil {
			log.Printf("[arduino %s] ignoring %q: %v", arduino.ID, strings.TrimSpace(line), err)
			continue
		}
		if onCommand != nil {
			onCommand(cmd)
		}
		if err := arduino.WriteLine("ACK " + parser.FrameCommand(cmd)); err != nil {
			log.Printf("[arduino %s] simulate write error: %v", arduino.ID, err)
		}
	}
}
