package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

// Journal receives every committed record. The node subscribes one to the
// engine to keep a human-readable trail next to the database.
type Journal interface {
	Append(r core.Record)
}

type NopJournal struct{}

func NewNopJournal() *NopJournal           { return &NopJournal{} }
func (j *NopJournal) Append(_ core.Record) {}

// FileJournal appends one JSON line per record
type FileJournal struct {
	mu  sync.Mutex
	f   *os.File
	err error // first write error, reported by Close
}

func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(r core.Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	line, err := json.Marshal(r)
	if err == nil {
		_, err = fmt.Fprintln(j.f, string(line))
	}
	if err != nil && j.err == nil {
		j.err = err
	}
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.f.Close(); err != nil {
		return err
	}
	return j.err
}

var _ Journal = (*NopJournal)(nil)
var _ Journal = (*FileJournal)(nil)
