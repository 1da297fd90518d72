package jsonbackend

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/FranksOps/reelrank/internal/model"
	"github.com/FranksOps/reelrank/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a backend writing one JSON object per result entry to
// filePath, truncating any existing content.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open accounts jsonl: %w", err)
	}

	return &jsonBackend{
		file: f,
	}, nil
}

func (b *jsonBackend) Save(entry *model.ResultEntry) error {
	rec := *entry
	if rec.TopReels == nil {
		rec.TopReels = []model.Reel{}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal entry %s: %w", entry.Account.ID, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write entry %s: %w", entry.Account.ID, err)
	}

	return nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.file.Sync(); err != nil {
		b.file.Close()
		return fmt.Errorf("sync accounts jsonl: %w", err)
	}
	return b.file.Close()
}
