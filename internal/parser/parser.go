// Package parser converts AcademyBot wire formats to structured types and vice-versa.
//
// Command channel record (navigation/targeting -> arbiter), left-justified and
// space padded to a fixed width:
//
//	CMD UNIX_SECONDS.MICROS
//
// Actuator frame (arbiter -> Arduino):
//
//	<CMD>
package parser

import (
	"errors"

	"AcademyBot/internal/model"
)

var (
	// ErrEmptyRecord is returned for a record that is blank after trimming.
	ErrEmptyRecord = errors.New("empty record")
	// ErrMalformedRecord is returned when a record lacks a command or timestamp.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrUnknownCommand is returned for a token outside the command vocabulary.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrRecordTooLong is returned when an encoded record exceeds the record width.
	ErrRecordTooLong = errors.New("record exceeds fixed width")
)

// Parser encodes and decodes command channel records.
type Parser interface {
	// EncodeRecord renders m into exactly one record.
	EncodeRecord(m model.Message) ([]byte, error)
	// DecodeRecord parses one record.
	DecodeRecord(rec []byte) (model.Message, error)
	// RecordWidth is the fixed record size in bytes.
	RecordWidth() int
}

// EventCodec encodes monitor and journal events.
type EventCodec interface {
	EncodeEvent(e model.Event) ([]byte, error)
	DecodeEvent(b []byte) (model.Event, error)
}
