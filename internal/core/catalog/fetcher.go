package catalog

import (
	"context"
	"log/slog"

	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/kirillkom/provider-intel/internal/core/ports"
)

const (
	defaultPageSize = 100
	defaultMaxPages = 10000
)

type Fetcher struct {
	source   ports.PageSource
	pageSize int
	maxPages int
}

func NewFetcher(source ports.PageSource, pageSize, maxPages int) *Fetcher {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &Fetcher{
		source:   source,
		pageSize: pageSize,
		maxPages: maxPages,
	}
}

// FetchAll reads the declared total from page 1 and stops on an empty page or once the
// running count reaches that total, whichever comes first.
func (f *Fetcher) FetchAll(ctx context.Context) ([]domain.CatalogEntry, error) {
	first, total, err := f.source.CatalogPage(ctx, 1, f.pageSize)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstreamUnavailable, "fetch catalog page 1", err)
	}

	entries := make([]domain.CatalogEntry, 0, max(total, len(first)))
	entries = append(entries, first...)
	if len(first) == 0 {
		return entries, nil
	}

	for page := 2; page <= f.maxPages; page++ {
		if total > 0 && len(entries) >= total {
			break
		}
		batch, _, err := f.source.CatalogPage(ctx, page, f.pageSize)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("catalog_page_failed",
				"page", page,
				"collected", len(entries),
				"declared_total", total,
				"error", err,
			)
			break
		}
		if len(batch) == 0 {
			break
		}
		entries = append(entries, batch...)
	}

	if total > 0 && len(entries) != total {
		slog.Info("catalog_total_mismatch", "collected", len(entries), "declared_total", total)
	}
	return entries, nil
}
