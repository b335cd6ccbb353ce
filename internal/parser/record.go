package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"AcademyBot/internal/model"
)

// RecordParser implements Parser with fixed-width, space padded text records.
// Example record (width 50): "LLL 1767225600.250000" followed by 29 spaces.
type RecordParser struct {
	width int
}

// NewRecordParser creates a record parser for the given record width.
func NewRecordParser(width int) *RecordParser { return &RecordParser{width: width} }

// RecordWidth returns the fixed record size in bytes.
func (p *RecordParser) RecordWidth() int { return p.width }

// EncodeRecord converts a Message into a padded record.
func (p *RecordParser) EncodeRecord(m model.Message) ([]byte, error) {
	if !m.Command.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, m.Command)
	}
	line := fmt.Sprintf("%s %s", m.Command, FormatTimestamp(m.Sent))
	if len(line) > p.width {
		return nil, fmt.Errorf("%w: %d > %d", ErrRecordTooLong, len(line), p.width)
	}
	rec := make([]byte, p.width)
	copy(rec, line)
	for i := len(line); i < p.width; i++ {
		rec[i] = ' '
	}
	return rec, nil
}

// DecodeRecord parses a record into a Message. The first word is the command,
// the last word the send timestamp.
func (p *RecordParser) DecodeRecord(rec []byte) (model.Message, error) {
	line := string(bytes.TrimSpace(rec))
	if line == "" {
		return model.Message{}, ErrEmptyRecord
	}
	words := strings.Fields(line)
	if len(words) < 2 {
		return model.Message{}, fmt.Errorf("%w: %q", ErrMalformedRecord, line)
	}
	sent, err := ParseTimestamp(words[len(words)-1])
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	cmd, err := model.ParseCommand(words[0])
	if err != nil {
		return model.Message{Sent: sent}, fmt.Errorf("%w: %q", ErrUnknownCommand, words[0])
	}
	return model.Message{Command: cmd, Sent: sent}, nil
}

// FormatTimestamp renders t as fractional Unix seconds with microsecond precision.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

// ParseTimestamp parses the output of FormatTimestamp. A missing fractional
// part is accepted.
func ParseTimestamp(s string) (time.Time, error) {
	secPart, fracPart, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	var nanos int64
	if fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		frac, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil || frac < 0 {
			return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
		}
		for i := len(fracPart); i < 9; i++ {
			frac *= 10
		}
		nanos = frac
	}
	return time.Unix(sec, nanos), nil
}
