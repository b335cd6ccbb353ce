// Package model defines shared message structures for AcademyBot.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Command is a single token of the robot command vocabulary.
// Drive and turret commands share LFT, RGT and STP.
type Command string

const (
	CmdForward   Command = "FWD"
	CmdBack      Command = "BCK"
	CmdLeft      Command = "LFT"
	CmdRight     Command = "RGT"
	CmdTurnLeft  Command = "LLL"
	CmdTurnRight Command = "RRR"
	CmdStop      Command = "STP"
	CmdUp        Command = "UPP"
	CmdDown      Command = "DWN"
	CmdFire      Command = "FIR"
	CmdHome      Command = "HOM"
)

var driveCommands = map[Command]bool{
	CmdForward: true, CmdBack: true, CmdLeft: true, CmdRight: true,
	CmdTurnLeft: true, CmdTurnRight: true, CmdStop: true,
}

var turretCommands = map[Command]bool{
	CmdUp: true, CmdDown: true, CmdLeft: true, CmdRight: true,
	CmdFire: true, CmdHome: true, CmdStop: true,
}

// ParseCommand converts a token into a Command. Surrounding whitespace and
// actuator brackets ("<FWD>") are accepted.
func ParseCommand(token string) (Command, error) {
	t := strings.TrimSpace(token)
	t = strings.TrimSuffix(strings.TrimPrefix(t, "<"), ">")
	c := Command(strings.ToUpper(t))
	if !c.Valid() {
		return "", fmt.Errorf("unknown command %q", token)
	}
	return c, nil
}

// Valid reports whether c belongs to either vocabulary.
func (c Command) Valid() bool { return driveCommands[c] || turretCommands[c] }

// IsDrive reports whether c belongs to the drivetrain vocabulary.
func (c Command) IsDrive() bool { return driveCommands[c] }

// IsTurret reports whether c belongs to the turret vocabulary.
func (c Command) IsTurret() bool { return turretCommands[c] }

// IsTurn reports whether c is a hard in-place turn.
func (c Command) IsTurn() bool { return c == CmdTurnLeft || c == CmdTurnRight }

// Frame returns the actuator wire form of c, e.g. "<FWD>".
func (c Command) Frame() string { return "<" + string(c) + ">" }

func (c Command) String() string { return string(c) }

// Message is a command paired with the time its producer created it.
type Message struct {
	Command Command
	Sent    time.Time
}

// Age returns how old the message is at now.
func (m Message) Age(now time.Time) time.Duration { return now.Sub(m.Sent) }

// Producer identifies which perception task sent a message.
type Producer int

const (
	ProducerNone Producer = iota
	ProducerNavigation
	ProducerTargeting
)

func (p Producer) String() string {
	switch p {
	case ProducerNavigation:
		return "NAV"
	case ProducerTargeting:
		return "TARGETING"
	default:
		return "NONE"
	}
}

// MarshalText lets producers appear by name in JSON events.
func (p Producer) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText parses a producer name written by MarshalText.
func (p *Producer) UnmarshalText(b []byte) error {
	switch string(b) {
	case "NAV":
		*p = ProducerNavigation
	case "TARGETING":
		*p = ProducerTargeting
	case "NONE", "":
		*p = ProducerNone
	default:
		return fmt.Errorf("unknown producer %q", string(b))
	}
	return nil
}
