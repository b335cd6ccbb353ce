package parser

import (
	"fmt"
	"strings"

	"AcademyBot/internal/model"
)

// FrameCommand converts a command into the bracketed actuator frame.
func FrameCommand(cmd model.Command) string { return cmd.Frame() }

// ParseFrame parses a bracketed actuator frame such as "<FIR>".
func ParseFrame(line string) (model.Command, error) {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "<") || !strings.HasSuffix(s, ">") {
		return "", fmt.Errorf("%w: %q", ErrMalformedRecord, line)
	}
	cmd, err := model.ParseCommand(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, line)
	}
	return cmd, nil
}
