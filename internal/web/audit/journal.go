// Package audit keeps an append-only journal of operator actions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketJournal = []byte("journal")

// Actions recorded in the journal.
const (
	ActionUpload    = "upload"
	ActionCancel    = "cancel"
	ActionReprocess = "reprocess"
	ActionResolve   = "resolve"
)

// Outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Entry is one journaled action.
type Entry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	JobID     int64     `json:"job_id,omitempty"`
	IssueID   int64     `json:"issue_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal stores entries in a bbolt file ordered by time.
type Journal struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketJournal)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal bucket: %w", err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends e, assigning its id and time when unset.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.now()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeOK
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJournal).Put(makeIndexKey(e.CreatedAt, e.ID), data)
	})
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Action string
	Actor  string
	JobID  int64
	Limit  int
	Offset int
}

// List returns matching entries, newest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	entries := []Entry{}

	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJournal).Cursor()

		skipped := 0
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			if f.Action != "" && e.Action != f.Action {
				continue
			}
			if f.Actor != "" && e.Actor != f.Actor {
				continue
			}
			if f.JobID != 0 && e.JobID != f.JobID {
				continue
			}
			if skipped < f.Offset {
				skipped++
				continue
			}

			entries = append(entries, e)
			if f.Limit > 0 && len(entries) >= f.Limit {
				break
			}
		}
		return nil
	})
	return entries, err
}

// Prune deletes entries older than maxAge and returns how many.
func (j *Journal) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := makeIndexKey(j.now().Add(-maxAge), "")
	deleted := 0

	err := j.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJournal).Cursor()
		for k, _ := c.First(); k != nil && string(k) < string(cutoff); k, _ = c.First() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// keyLayout has a fixed width so keys sort by time.
const keyLayout = "2006-01-02T15:04:05.000000000Z"

func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format(keyLayout) + ":" + id)
}
