package usecase

import (
	"cmp"
	"slices"
	"strings"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

const topStatesLimit = 10

// BuildSummary aggregates the classified records of one run.
func BuildSummary(runID string, chunks int, records []domain.ClassifiedRecord) domain.RunSummary {
	summary := domain.RunSummary{
		RunID:  runID,
		Total:  len(records),
		Chunks: chunks,
		TierCounts: map[domain.Tier]int{
			domain.Tier1: 0,
			domain.Tier2: 0,
			domain.Tier3: 0,
		},
	}

	states := make(map[string]int)
	types := make(map[string]int)
	for _, rec := range records {
		summary.TierCounts[rec.Tier]++
		if rec.Relevant {
			summary.Relevant++
		}
		if rec.SpecialMarket {
			summary.SpecialMarket++
		}
		if rec.HighVolume {
			summary.HighVolume++
		}
		if strings.TrimSpace(rec.Record[domain.FieldContactName]) != "" {
			summary.WithContact++
		}
		if strings.TrimSpace(rec.Record[domain.FieldWebsite]) != "" {
			summary.WithWebsite++
		}
		states[orUnknown(rec.Record[domain.FieldState])]++
		types[orUnknown(rec.Record[domain.FieldTypeCode])]++
	}

	summary.TopStates = rankCounts(states, topStatesLimit)
	summary.ByType = rankCounts(types, 0)
	return summary
}

// rankCounts orders by count desc then key asc. limit <= 0 keeps every entry.
func rankCounts(counts map[string]int, limit int) []domain.CountEntry {
	out := make([]domain.CountEntry, 0, len(counts))
	for k, v := range counts {
		out = append(out, domain.CountEntry{Key: k, Count: v})
	}
	slices.SortFunc(out, func(a, b domain.CountEntry) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "Unknown"
	}
	return s
}
