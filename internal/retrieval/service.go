package retrieval

import (
	"context"
	"log/slog"
	"time"

	"docchat/internal/middleware"
	"docchat/internal/session"
	"docchat/internal/vector"
)

// Result is the ranked, deduplicated set of passages grounding one query.
// Matches are ordered by descending score with ties broken by ascending
// chunk sequence. An empty Matches is valid: it tells the synthesizer that
// no grounding was found.
type Result struct {
	Query   string // the query actually embedded (possibly rewritten)
	Matches []vector.Match
}

func (r Result) Grounded() bool { return len(r.Matches) > 0 }

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Rewriter expands a follow-up query using recent conversation so pronouns
// and ellipsis resolve before embedding.
type Rewriter interface {
	Rewrite(ctx context.Context, query string, history []session.Turn) (string, error)
}

type Config struct {
	TopK          int
	MinScore      float64
	DedupeOverlap float64
	Rewrite       bool
}

type Service struct {
	embedder Embedder
	index    vector.Index
	rewriter Rewriter
	cfg      Config
	logger   *QueryLogger
}

func NewService(e Embedder, idx vector.Index, rw Rewriter, cfg Config, l *QueryLogger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Service{embedder: e, index: idx, rewriter: rw, cfg: cfg, logger: l}
}

// Retrieve embeds the query, searches the index and filters the candidates.
// Rewriting is best-effort: a rewriter failure falls back to the raw query.
func (s *Service) Retrieve(ctx context.Context, query string, history []session.Turn) (Result, error) {
	start := time.Now()

	q := query
	if s.cfg.Rewrite && s.rewriter != nil && len(history) > 0 {
		rewritten, err := s.rewriter.Rewrite(ctx, query, history)
		if err != nil {
			slog.WarnContext(ctx, "query rewrite failed, using raw query", "error", err)
		} else if rewritten != "" {
			q = rewritten
		}
	}

	vec, err := s.embedder.Embed(ctx, q)
	if err != nil {
		return Result{}, err
	}

	matches, err := s.index.Search(ctx, vec, s.cfg.TopK)
	if err != nil {
		return Result{}, err
	}

	matches = dedupe(matches, s.cfg.DedupeOverlap)

	filtered := matches[:0]
	for _, m := range matches {
		if m.Score >= s.cfg.MinScore {
			filtered = append(filtered, m)
		}
	}

	result := Result{Query: q, Matches: filtered}
	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:         query,
			Rewritten:     q,
			NumResults:    len(filtered),
			Grounded:      result.Grounded(),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return result, nil
}

// dedupe drops candidates from the same document whose character ranges
// overlap a kept candidate by more than the configured fraction. Input is
// score-ordered, so the kept candidate always scores at least as high.
func dedupe(matches []vector.Match, maxOverlap float64) []vector.Match {
	if maxOverlap <= 0 || len(matches) < 2 {
		return matches
	}

	kept := make([]vector.Match, 0, len(matches))
	for _, m := range matches {
		dup := false
		for _, k := range kept {
			if k.Entry.DocumentID != m.Entry.DocumentID {
				continue
			}
			if overlapFraction(k.Entry, m.Entry) > maxOverlap {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, m)
		}
	}
	return kept
}

func overlapFraction(a, b vector.Entry) float64 {
	lo := max(a.Start, b.Start)
	hi := min(a.End, b.End)
	if hi <= lo {
		return 0
	}
	shorter := min(a.End-a.Start, b.End-b.Start)
	if shorter <= 0 {
		return 0
	}
	return float64(hi-lo) / float64(shorter)
}
