package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/FranksOps/reelrank/internal/hiker"
	"github.com/FranksOps/reelrank/internal/metrics"
	"github.com/FranksOps/reelrank/internal/model"
)

// Failure is a failed step of account processing.
type Failure struct {
	// Step is the error log context of the failed step.
	Step string
	Err  error
	// Stack is set when the step panicked.
	Stack string
}

// Outcome is the result of processing one account.
//
//	Entry == nil                  profile failed, account dropped
//	Entry != nil, Failure != nil  reels failed, account kept with no reels
//	Entry != nil, Failure == nil  success
type Outcome struct {
	Candidate model.AccountCandidate
	Entry     *model.ResultEntry
	Failure   *Failure
}

// Status labels the outcome for logs and metrics.
func (o Outcome) Status() string {
	switch {
	case o.Entry == nil:
		return metrics.AccountFailed
	case o.Failure != nil:
		return metrics.AccountDegraded
	}
	return metrics.AccountOK
}

// Worker processes one account at a time: profile, reels, normalize, rank.
type Worker struct {
	api         API
	sink        Sink
	recentReels int
	topK        int
	logger      *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(api API, sink Sink, recentReels, topK int, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		api:         api,
		sink:        sink,
		recentReels: recentReels,
		topK:        topK,
		logger:      logger,
	}
}

// Process runs every step for c. Each failing step emits exactly one error
// record. A profile failure skips the reel fetch; a reel failure still yields
// an entry with no reels. Panics are recovered and treated as a failure of
// the step that raised them.
func (w *Worker) Process(ctx context.Context, c model.AccountCandidate) (out Outcome) {
	out.Candidate = c
	step := model.ContextProfileFetch
	var account *model.Account

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		f := &Failure{Step: step, Err: fmt.Errorf("panic: %v", r), Stack: string(debug.Stack())}
		out.Failure = f
		out.Entry = nil
		if account != nil {
			out.Entry = &model.ResultEntry{Account: *account, TopReels: []model.Reel{}}
		}
		w.record(c, account, f)
	}()

	w.logger.Debug("processing account", "pk", c.PK, "username", c.Username)

	acc, err := w.api.GetProfile(ctx, c.PK)
	if err != nil {
		out.Failure = &Failure{Step: step, Err: err}
		w.record(c, nil, out.Failure)
		return out
	}
	acc = mergeCandidate(acc, c)
	account = &acc

	step = model.ContextReelFetch
	raw, err := w.api.ListReels(ctx, acc.ID, w.recentReels)
	if err != nil {
		out.Entry = &model.ResultEntry{Account: acc, TopReels: []model.Reel{}}
		out.Failure = &Failure{Step: step, Err: err}
		w.record(c, account, out.Failure)
		return out
	}

	reels := make([]model.Reel, 0, len(raw))
	for _, r := range raw {
		reels = append(reels, hiker.NormalizeReel(r, acc.Username))
	}

	out.Entry = &model.ResultEntry{Account: acc, TopReels: Rank(reels, w.topK)}
	return out
}

// mergeCandidate makes the profile authoritative while filling identity
// fields the profile left empty from the search hit. The id is always the
// one that was requested, which keeps ids unique after deduplication.
func mergeCandidate(acc model.Account, c model.AccountCandidate) model.Account {
	acc.ID = c.PK
	if acc.Username == "" {
		acc.Username = c.Username
	}
	if acc.FullName == "" {
		acc.FullName = c.FullName
		acc.Surname = model.Surname(acc.FullName)
	}
	return acc
}

func (w *Worker) record(c model.AccountCandidate, acc *model.Account, f *Failure) {
	username := c.Username
	if acc != nil && acc.Username != "" {
		username = acc.Username
	}

	rec := model.ErrorRecord{
		Context:      f.Step,
		ErrorType:    errorType(f.Err, f.Stack != ""),
		ErrorMessage: f.Err.Error(),
		Traceback:    f.Stack,
		Query:        c.Query,
		Username:     username,
		Attempts:     hiker.AttemptsOf(f.Err),
	}
	if f.Step == model.ContextProfileFetch {
		rec.PK = c.PK
	} else {
		rec.UserID = c.PK
	}
	w.sink.Record(rec)

	w.logger.Warn("account step failed",
		"step", f.Step,
		"pk", c.PK,
		"username", username,
		"error_type", rec.ErrorType,
		"err", f.Err,
	)
}

// errorType names the failure class recorded in the error log.
func errorType(err error, panicked bool) string {
	if panicked {
		return "panic"
	}
	if k := hiker.KindOf(err); k != "" {
		return string(k)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return string(hiker.KindCanceled)
	case errors.Is(err, context.DeadlineExceeded):
		return string(hiker.KindTimeout)
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
