package pipeline

import (
	"context"
	"log/slog"

	"github.com/FranksOps/reelrank/internal/hiker"
	"github.com/FranksOps/reelrank/internal/model"
)

// API is the remote data service used by the pipeline.
type API interface {
	SearchAccounts(ctx context.Context, query string, limit int) ([]model.AccountCandidate, error)
	GetProfile(ctx context.Context, id string) (model.Account, error)
	ListReels(ctx context.Context, id string, limit int) ([]hiker.RawReel, error)
}

// Sink receives one record per failure.
type Sink interface {
	Record(rec model.ErrorRecord)
}

// Config bounds a pipeline run.
type Config struct {
	// MaxAccounts caps unique accounts across all queries; 0 means no cap.
	MaxAccounts int
	// RecentReels is how many reels to request per account.
	RecentReels int
	// TopK is how many reels to keep per account after ranking.
	TopK int
	// Concurrency bounds accounts processed at once.
	Concurrency int
}

// Pipeline orchestrates the search, fetch and rank stages for a set of
// search queries.
type Pipeline struct {
	api    API
	sink   Sink
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline.
func New(api API, sink Sink, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{api: api, sink: sink, cfg: cfg, logger: logger}
}

// Run searches every query, deduplicates the hits and processes each unique
// account. Per-query and per-account failures go to the sink and never
// abort the run.
func (p *Pipeline) Run(ctx context.Context, queries []string) Report {
	candidates := p.Search(ctx, queries)
	p.logger.Info("candidates deduplicated", "queries", len(queries), "unique", len(candidates))

	worker := NewWorker(p.api, p.sink, p.cfg.RecentReels, p.cfg.TopK, p.logger)
	rep := NewScheduler(worker, p.cfg.Concurrency, p.logger).Run(ctx, candidates)

	p.logger.Info("accounts processed",
		"attempted", rep.Attempted,
		"ok", rep.Succeeded,
		"degraded", rep.Degraded,
		"failed", rep.Failed,
		"skipped", rep.Skipped,
	)
	return rep
}

// Search runs each query in order and returns the deduplicated candidates.
// A failed query is recorded once; whatever it returned before failing is kept.
func (p *Pipeline) Search(ctx context.Context, queries []string) []model.AccountCandidate {
	perQuery := make([][]model.AccountCandidate, 0, len(queries))

	for _, q := range queries {
		if ctx.Err() != nil {
			p.logger.Warn("run cancelled before search", "query", q)
			break
		}

		cands, err := p.api.SearchAccounts(ctx, q, p.cfg.MaxAccounts)
		for i := range cands {
			cands[i].Query = q
		}
		if err != nil {
			p.sink.Record(model.ErrorRecord{
				Context:      model.ContextSearch,
				ErrorType:    errorType(err, false),
				ErrorMessage: err.Error(),
				Query:        q,
				Attempts:     hiker.AttemptsOf(err),
			})
			p.logger.Warn("search failed", "query", q, "kept", len(cands), "err", err)
		}

		p.logger.Info("search complete", "query", q, "candidates", len(cands))
		perQuery = append(perQuery, cands)
	}

	return Dedupe(perQuery, p.cfg.MaxAccounts)
}
