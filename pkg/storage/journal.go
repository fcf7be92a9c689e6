package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/uhyunpark/marketsim/pkg/sim"
)

var (
	_ sim.Journal = (*NopJournal)(nil)
	_ sim.Journal = (*FileJournal)(nil)
)

// Journals record one line per fired scenario event.

// JournalCloser is a sim.Journal that holds a resource.
type JournalCloser interface {
	sim.Journal
	Close() error
}

// OpenJournal opens a FileJournal at path, or a NopJournal when path is empty.
func OpenJournal(path string) (JournalCloser, error) {
	if path == "" {
		return NewNopJournal(), nil
	}
	return NewFileJournal(path)
}

type NopJournal struct{}

func NewNopJournal() *NopJournal      { return &NopJournal{} }
func (j *NopJournal) Append(_ string) {}
func (j *NopJournal) Close() error    { return nil }

type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fmt.Fprintln(j.f, line)
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
