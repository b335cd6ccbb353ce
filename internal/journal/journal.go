// Package journal is the robot's flight recorder: every arbiter transition,
// guidance decision, crossing and stale drop of a run is appended to a BoltDB
// file so a failed run can be replayed event by event afterwards.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"AcademyBot/internal/model"
	"AcademyBot/internal/parser"
)

var runsBucket = []byte("runs")

var (
	// ErrUnknownRun is returned by Events for a run id that was never recorded.
	ErrUnknownRun = errors.New("unknown run")
	// ErrReadOnly is returned by Record on a journal opened for reading.
	ErrReadOnly = errors.New("journal is read-only")
)

// Run describes one recorded process lifetime.
type Run struct {
	ID      string    `json:"id"`
	Started time.Time `json:"started"`
}

// Journal records events for the current run. Publish is asynchronous so the
// arbiter never waits on disk.
type Journal struct {
	db    *bbolt.DB
	codec parser.EventCodec
	run   Run

	mu       sync.RWMutex
	closed   bool
	readOnly bool
	queue    chan model.Event
	wg       sync.WaitGroup
}

// Open opens (or creates) the journal at path and starts a new run.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("[journal] failed to create %s: %w", dir, err)
		}
	}
	db, err := bbolt.Open(path, 0o666, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("[journal] failed to open BoltDB: %w", err)
	}

	j := &Journal{
		db:    db,
		codec: parser.NewJSONParser(),
		run:   Run{ID: uuid.NewString(), Started: time.Now().UTC()},
		queue: make(chan model.Event, 256),
	}
	if err := j.startRun(); err != nil {
		_ = db.Close()
		return nil, err
	}

	j.wg.Add(1)
	go j.writer()
	log.Printf("[journal] recording run %s to %s", j.run.ID, path)
	return j, nil
}

// OpenReadOnly opens an existing journal for reading without starting a run.
func OpenReadOnly(path string) (*Journal, error) {
	db, err := bbolt.Open(path, 0o444, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("[journal] failed to open BoltDB: %w", err)
	}
	return &Journal{db: db, codec: parser.NewJSONParser(), readOnly: true}, nil
}

func (j *Journal) startRun() error {
	meta, err := jsonRun(j.run)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		runs, err := tx.CreateBucketIfNotExists(runsBucket)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucket(runKey(j.run.ID)); err != nil {
			return err
		}
		return runs.Put([]byte(j.run.ID), meta)
	})
}

// RunID returns the id of the run being recorded, empty when read-only.
func (j *Journal) RunID() string { return j.run.ID }

// Publish queues e for recording. Events are dropped with a log line when the
// writer falls behind.
func (j *Journal) Publish(e model.Event) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed || j.readOnly {
		return
	}
	select {
	case j.queue <- e:
	default:
		log.Printf("[journal] queue full, dropping %s event", e.Kind)
	}
}

func (j *Journal) writer() {
	defer j.wg.Done()
	for e := range j.queue {
		if err := j.Record(e); err != nil {
			log.Printf("[journal] write failed: %v", err)
		}
	}
}

// Record appends e to the current run synchronously.
func (j *Journal) Record(e model.Event) error {
	if j.readOnly {
		return ErrReadOnly
	}
	body, err := j.codec.EncodeEvent(e)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(runKey(j.run.ID))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrUnknownRun, j.run.ID)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), body)
	})
}

// Events returns the events of a run in recording order.
func (j *Journal) Events(runID string) ([]model.Event, error) {
	var out []model.Event
	err := j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(runKey(runID))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
		}
		return b.ForEach(func(_, v []byte) error {
			e, err := j.codec.DecodeEvent(v)
			if err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// Runs lists every recorded run, oldest first.
func (j *Journal) Runs() ([]Run, error) {
	var out []Run
	err := j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(runsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			r, err := parseRun(v)
			if err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	sort.Slice(out, func(a, b int) bool { return out[a].Started.Before(out[b].Started) })
	return out, err
}

// Close flushes queued events and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	if j.readOnly {
		j.mu.Unlock()
		return j.db.Close()
	}
	close(j.queue)
	j.mu.Unlock()

	j.wg.Wait()
	log.Printf("[journal] closed run %s", j.run.ID)
	return j.db.Close()
}

func runKey(id string) []byte { return []byte("run:" + id) }

// seqKey encodes seq big-endian so cursor order is recording order.
func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func jsonRun(r Run) ([]byte, error) { return json.Marshal(r) }

func parseRun(b []byte) (Run, error) {
	var r Run
	err := json.Unmarshal(b, &r)
	return r, err
}
