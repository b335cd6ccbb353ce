package device

import (
	"fmt"
	"io"
	"sync"

	"AcademyBot/internal/model"
	"AcademyBot/internal/parser"
)

// ConsoleLink prints actuator frames instead of driving hardware. It is the
// bench-test stand-in for an Arduino.
type ConsoleLink struct {
	ID string

	mu sync.Mutex
	w  io.Writer
}

// NewConsoleLink creates a link that writes one frame per line to w.
func NewConsoleLink(id string, w io.Writer) *ConsoleLink {
	return &ConsoleLink{ID: id, w: w}
}

// Send prints the frame for cmd prefixed with the link id.
func (c *ConsoleLink) Send(cmd model.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return ErrNotOpen
	}
	_, err := fmt.Fprintf(c.w, "%s %s\n", c.ID, parser.FrameCommand(cmd))
	return err
}

// Close stops further writes. The writer itself is left open.
func (c *ConsoleLink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w = nil
	return nil
}
