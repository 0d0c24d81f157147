package classify

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

// Engine applies deterministic tiering and enrichment rules. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	rules domain.ClassificationRules

	targetCities  map[string]struct{}
	specialRegion string
	homeCountry   string
	orgKeywords   []string
	intlKeywords  []string
	categories    []domain.KeywordGroup
	orgTypes      []domain.KeywordGroup
}

func NewEngine(rules domain.ClassificationRules) *Engine {
	cities := make(map[string]struct{}, len(rules.TargetCities))
	for _, city := range rules.TargetCities {
		cities[normalize(city)] = struct{}{}
	}
	return &Engine{
		rules:         rules,
		targetCities:  cities,
		specialRegion: strings.ToUpper(strings.TrimSpace(rules.SpecialRegion)),
		homeCountry:   strings.ToUpper(strings.TrimSpace(rules.HomeCountry)),
		orgKeywords:   lowerAll(rules.OrgKeywords),
		intlKeywords:  lowerAll(rules.InternationalKeywords),
		categories:    lowerGroups(rules.Categories),
		orgTypes:      lowerGroups(rules.OrgTypes),
	}
}

func (e *Engine) Classify(rec domain.EncodedRecord) domain.ClassifiedRecord {
	activities := rec.Activities()
	name := normalize(rec[domain.FieldName])
	city := normalize(rec[domain.FieldCity])
	state := strings.ToUpper(strings.TrimSpace(rec[domain.FieldState]))
	country := strings.ToUpper(strings.TrimSpace(rec[domain.FieldCountry]))

	commendation := anyCode(rec.Codes(domain.FieldStatusCode), e.rules.CommendationCodes)
	specialRegion := e.specialRegion != "" && state == e.specialRegion
	_, targetCity := e.targetCities[city]
	specialMarket := specialRegion || targetCity
	highVolume := activities >= e.rules.HighVolumeActivities

	var tier domain.Tier
	switch {
	case activities >= e.rules.Tier1Activities || commendation || specialMarket:
		tier = domain.Tier1
	case activities >= e.rules.Tier2Activities ||
		slices.Contains(rec.Codes(domain.FieldTypeCode), e.rules.PrimaryTypeCode) ||
		containsAny(name, e.orgKeywords):
		tier = domain.Tier2
	default:
		tier = domain.Tier3
	}

	categories := e.matchCategories(name, normalize(rec[domain.FieldAccreditedBy]))
	crossBorder := (country != "" && country != e.homeCountry) || containsAny(name, e.intlKeywords)

	out := domain.ClassifiedRecord{
		Record:        rec,
		Activities:    activities,
		Tier:          tier,
		Relevant:      len(categories) > 0,
		Categories:    categories,
		OrgType:       e.orgType(name),
		CrossBorder:   crossBorder,
		SpecialMarket: specialMarket,
		HighVolume:    highVolume,
		Commendation:  commendation,
	}
	out.Pitch = e.pitch(out, specialRegion, country)
	return out
}

// ClassifyAll classifies records in order.
func (e *Engine) ClassifyAll(records []domain.EncodedRecord) []domain.ClassifiedRecord {
	out := make([]domain.ClassifiedRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, e.Classify(rec))
	}
	return out
}

func (e *Engine) matchCategories(fields ...string) []string {
	out := []string{}
	for _, group := range e.categories {
		for _, field := range fields {
			if containsAny(field, group.Keywords) {
				out = append(out, group.Name)
				break
			}
		}
	}
	return out
}

func (e *Engine) orgType(name string) string {
	for _, group := range e.orgTypes {
		if containsAny(name, group.Keywords) {
			return group.Name
		}
	}
	return e.rules.DefaultOrg
}

// pitch joins fragments in fixed precedence: categories, special market, cross-border, volume.
func (e *Engine) pitch(rec domain.ClassifiedRecord, specialRegion bool, country string) string {
	var fragments []string
	if len(rec.Categories) > 0 {
		fragments = append(fragments, strings.Join(rec.Categories, "/")+" focus")
	}
	if rec.SpecialMarket {
		where := strings.TrimSpace(rec.Record[domain.FieldCity])
		if specialRegion {
			where = e.specialRegion
		}
		fragments = append(fragments, fmt.Sprintf("%s (%s)", e.rules.SpecialMarketLabel, where))
	}
	if rec.CrossBorder {
		if country != "" && country != e.homeCountry {
			fragments = append(fragments, fmt.Sprintf("cross-border reach (%s)", country))
		} else {
			fragments = append(fragments, "cross-border reach")
		}
	}
	if rec.HighVolume {
		fragments = append(fragments, fmt.Sprintf("high volume (%d activities/yr)", rec.Activities))
	}
	if len(fragments) == 0 {
		return e.rules.DefaultPitch
	}
	return strings.Join(fragments, "; ")
}

func anyCode(codes, wanted []string) bool {
	for _, code := range codes {
		if slices.Contains(wanted, code) {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, normalize(s))
	}
	return out
}

func lowerGroups(in []domain.KeywordGroup) []domain.KeywordGroup {
	out := make([]domain.KeywordGroup, 0, len(in))
	for _, g := range in {
		out = append(out, domain.KeywordGroup{Name: g.Name, Keywords: lowerAll(g.Keywords)})
	}
	return out
}
