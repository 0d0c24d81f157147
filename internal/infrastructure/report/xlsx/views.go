package xlsx

import (
	"cmp"
	"slices"
	"strings"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

const (
	ViewAll           = "All Providers"
	ViewTier1         = "Tier 1 Targets"
	ViewSpecialMarket = "Spanish Market Focus"
	ViewHighVolume    = "High Volume"
)

var typeLabels = map[string]string{
	"A": "ACCME Accredited",
	"J": "Jointly Accredited",
	"S": "State Accredited",
	"O": "Other",
}

var statusLabels = map[string]string{
	"C":  "Accreditation with Commendation",
	"A":  "Accredited",
	"P":  "Provisional",
	"X":  "Probation",
	"JA": "Joint Accreditation",
	"JC": "Joint with Commendation",
	"O":  "Other",
}

var jointLabels = map[string]string{
	"Y": "Yes",
	"N": "No",
}

// View is one named worksheet of the report.
type View struct {
	Name    string
	Records []domain.ClassifiedRecord
}

// BuildViews groups records into the report worksheets. The input slice is not modified.
func BuildViews(records []domain.ClassifiedRecord) []View {
	all := slices.Clone(records)
	slices.SortStableFunc(all, func(a, b domain.ClassifiedRecord) int {
		if c := cmp.Compare(a.Tier, b.Tier); c != 0 {
			return c
		}
		return cmp.Compare(b.Activities, a.Activities)
	})

	var tier1, special, highVolume []domain.ClassifiedRecord
	for _, rec := range all {
		if rec.Tier == domain.Tier1 {
			tier1 = append(tier1, rec)
		}
		if rec.SpecialMarket {
			special = append(special, rec)
		}
		if rec.HighVolume {
			highVolume = append(highVolume, rec)
		}
	}
	slices.SortStableFunc(highVolume, func(a, b domain.ClassifiedRecord) int {
		return cmp.Compare(b.Activities, a.Activities)
	})

	return []View{
		{Name: ViewAll, Records: all},
		{Name: ViewTier1, Records: tier1},
		{Name: ViewSpecialMarket, Records: special},
		{Name: ViewHighVolume, Records: highVolume},
	}
}

// ExpandCodes replaces each comma-joined code by its label, keeping unknown codes as they are.
func ExpandCodes(raw string, labels map[string]string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if label, ok := labels[p]; ok {
			p = label
		}
		parts[i] = p
	}
	return strings.Join(parts, ", ")
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
