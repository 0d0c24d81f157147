package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/kirillkom/provider-intel/internal/core/ports"
)

const (
	defaultPageSize = 100
	defaultMaxPages = 10000
)

type Resolver struct {
	source       ports.PageSource
	pageSize     int
	maxPages     int
	vocabularies []domain.Vocabulary
}

func NewResolver(source ports.PageSource, pageSize, maxPages int) *Resolver {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &Resolver{
		source:       source,
		pageSize:     pageSize,
		maxPages:     maxPages,
		vocabularies: domain.Vocabularies,
	}
}

// Resolve pages through one vocabulary until an empty page or maxPages. Only a first-page
// failure is fatal; a later failure ends the vocabulary with what was collected so far.
func (r *Resolver) Resolve(ctx context.Context, vocabulary domain.Vocabulary) (map[int]string, error) {
	out := make(map[int]string)
	for page := 1; page <= r.maxPages; page++ {
		terms, err := r.source.TaxonomyPage(ctx, vocabulary, page, r.pageSize)
		if err != nil {
			if page == 1 {
				return nil, domain.WrapError(domain.ErrUpstreamUnavailable, fmt.Sprintf("resolve vocabulary %s", vocabulary), err)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("taxonomy_page_failed",
				"vocabulary", string(vocabulary),
				"page", page,
				"terms", len(out),
				"error", err,
			)
			return out, nil
		}
		if len(terms) == 0 {
			return out, nil
		}
		for _, term := range terms {
			if _, seen := out[term.ID]; seen {
				continue
			}
			out[term.ID] = term.Slug
		}
	}
	slog.Warn("taxonomy_page_cap_reached",
		"vocabulary", string(vocabulary),
		"max_pages", r.maxPages,
		"terms", len(out),
	)
	return out, nil
}

// ResolveAll resolves every vocabulary concurrently. The first fatal error cancels the rest.
func (r *Resolver) ResolveAll(ctx context.Context) (domain.TaxonomyMaps, error) {
	var mu sync.Mutex
	maps := make(domain.TaxonomyMaps, len(r.vocabularies))

	g, gCtx := errgroup.WithContext(ctx)
	for _, vocabulary := range r.vocabularies {
		g.Go(func() error {
			terms, err := r.Resolve(gCtx, vocabulary)
			if err != nil {
				return err
			}
			mu.Lock()
			maps[vocabulary] = terms
			mu.Unlock()
			slog.Debug("taxonomy_resolved", "vocabulary", string(vocabulary), "terms", len(terms))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return maps, nil
}
