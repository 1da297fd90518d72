package csvbackend

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/FranksOps/reelrank/internal/model"
	"github.com/FranksOps/reelrank/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

// rowsFunc flattens one result entry into zero or more CSV rows.
type rowsFunc func(entry *model.ResultEntry) [][]string

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
	rows rowsFunc
}

// NewAccounts creates a backend writing one row per account.
func NewAccounts(filePath string) (storage.Backend, error) {
	b, err := newBackend(filePath, storage.AccountColumns, accountRows)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewReels creates a backend writing one row per reel, each carrying its
// owning account's id and username.
func NewReels(filePath string) (storage.Backend, error) {
	b, err := newBackend(filePath, storage.ReelColumns, reelRows)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newBackend(filePath string, header []string, rows rowsFunc) (*csvBackend, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	return &csvBackend{
		file: f,
		w:    w,
		rows: rows,
	}, nil
}

func (b *csvBackend) Save(entry *model.ResultEntry) error {
	records := b.rows(entry)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.w.WriteAll(records); err != nil {
		return fmt.Errorf("write csv rows for %s: %w", entry.Account.ID, err)
	}
	return nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.w.Flush()
	if err := b.w.Error(); err != nil {
		b.file.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := b.file.Sync(); err != nil {
		b.file.Close()
		return fmt.Errorf("sync csv: %w", err)
	}
	return b.file.Close()
}

func accountRows(entry *model.ResultEntry) [][]string {
	a := entry.Account
	return [][]string{{
		a.ID,
		a.Username,
		a.FullName,
		a.Surname,
		a.Biography,
		a.ExternalURL,
		strconv.FormatInt(a.FollowerCount, 10),
		strconv.FormatInt(a.FollowingCount, 10),
		strconv.FormatInt(a.MediaCount, 10),
		strconv.FormatBool(a.IsVerified),
		strconv.FormatBool(a.IsPrivate),
	}}
}

func reelRows(entry *model.ResultEntry) [][]string {
	out := make([][]string, 0, len(entry.TopReels))
	for _, r := range entry.TopReels {
		out = append(out, []string{
			entry.Account.ID,
			entry.Account.Username,
			r.MediaID,
			r.Code,
			strconv.FormatInt(r.TakenAt, 10),
			strconv.FormatInt(r.Views, 10),
			strconv.FormatInt(r.LikeCount, 10),
			strconv.FormatInt(r.CommentCount, 10),
			r.CaptionText,
			r.Permalink,
		})
	}
	return out
}
