package encoding

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

// Metadata keys read from a catalog entry.
const (
	MetaCity         = "city"
	MetaState        = "state"
	MetaCountry      = "country"
	MetaWebsite      = "website"
	MetaActivities   = "activities"
	MetaContactName  = "contact_name"
	MetaContactPhone = "contact_phone"
	MetaAddress      = "address"
	MetaZip          = "zip"
	MetaAccreditedBy = "accredited_by"
)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&#038;", "&",
	"&ndash;", "–",
	"&#8211;", "–",
	"&#039;", "'",
	"&#39;", "'",
	"&rsquo;", "’",
	"&#8217;", "’",
	"&lsquo;", "‘",
	"&#8216;", "‘",
	"&ldquo;", "“",
	"&#8220;", "“",
	"&rdquo;", "”",
	"&#8221;", "”",
	"&trade;", "™",
	"&#8482;", "™",
)

type Encoder struct {
	rules domain.EncodingRules
}

func NewEncoder(rules domain.EncodingRules) *Encoder {
	if rules.OtherCode == "" {
		rules.OtherCode = "O"
	}
	if rules.OtherFormat == "" {
		rules.OtherFormat = "Other"
	}
	if rules.JointYesSlug == "" {
		rules.JointYesSlug = "yes"
	}
	return &Encoder{rules: rules}
}

// Encode flattens an entry into the fixed wire schema. It has no side effects.
func (e *Encoder) Encode(entry domain.CatalogEntry, maps domain.TaxonomyMaps) domain.EncodedRecord {
	var rec domain.EncodedRecord

	rec[domain.FieldName] = DecodeEntities(entry.Title)
	rec[domain.FieldCity] = DecodeEntities(entry.MetaString(MetaCity))
	rec[domain.FieldState] = entry.MetaString(MetaState)
	rec[domain.FieldCountry] = entry.MetaString(MetaCountry)
	rec[domain.FieldWebsite] = entry.MetaString(MetaWebsite)
	rec[domain.FieldTypeCode] = e.codes(entry.Terms[domain.VocabularyType], maps, domain.VocabularyType, e.rules.TypeCodes)
	rec[domain.FieldStatusCode] = e.codes(entry.Terms[domain.VocabularyStatus], maps, domain.VocabularyStatus, e.rules.StatusCodes)
	rec[domain.FieldJoint] = e.jointFlag(entry.Terms[domain.VocabularyJoint], maps)
	rec[domain.FieldActivities] = strconv.Itoa(ParseCount(entry.MetaString(MetaActivities)))
	rec[domain.FieldContactName] = DecodeEntities(entry.MetaString(MetaContactName))
	rec[domain.FieldContactPhone] = entry.MetaString(MetaContactPhone)
	rec[domain.FieldAddress] = DecodeEntities(entry.MetaString(MetaAddress))
	rec[domain.FieldZip] = entry.MetaString(MetaZip)
	rec[domain.FieldFormats] = e.formats(entry.Terms[domain.VocabularyFormat], maps)
	rec[domain.FieldAccreditedBy] = DecodeEntities(entry.MetaString(MetaAccreditedBy))
	rec[domain.FieldSourceID] = strconv.Itoa(entry.ID)

	for i := range rec {
		rec[i] = Sanitize(rec[i])
	}
	return rec
}

// EncodeAll encodes entries in order and logs how many taxonomy ids fell back to the other code.
func (e *Encoder) EncodeAll(entries []domain.CatalogEntry, maps domain.TaxonomyMaps) []domain.EncodedRecord {
	out := make([]domain.EncodedRecord, 0, len(entries))
	unresolved := 0
	for _, entry := range entries {
		unresolved += CountUnresolved(entry, maps)
		out = append(out, e.Encode(entry, maps))
	}
	if unresolved > 0 {
		slog.Info("taxonomy_ids_unresolved", "count", unresolved, "entries", len(entries))
	}
	return out
}

// CountUnresolved counts term ids on the entry that have no slug in their own vocabulary.
func CountUnresolved(entry domain.CatalogEntry, maps domain.TaxonomyMaps) int {
	n := 0
	for vocabulary, ids := range entry.Terms {
		for _, id := range ids {
			if _, ok := maps.Lookup(vocabulary, id); !ok {
				n++
			}
		}
	}
	return n
}

func (e *Encoder) codes(ids []int, maps domain.TaxonomyMaps, vocabulary domain.Vocabulary, rules []domain.CodeRule) string {
	if len(ids) == 0 {
		return ""
	}
	codes := make([]string, 0, len(ids))
	for _, id := range ids {
		slug, ok := maps.Lookup(vocabulary, id)
		if !ok {
			codes = append(codes, e.rules.OtherCode)
			continue
		}
		codes = append(codes, matchCode(slug, rules, e.rules.OtherCode))
	}
	return strings.Join(codes, ",")
}

func matchCode(slug string, rules []domain.CodeRule, fallback string) string {
	slug = strings.ToLower(slug)
	for _, rule := range rules {
		matched := len(rule.Match) > 0
		for _, fragment := range rule.Match {
			if !strings.Contains(slug, strings.ToLower(fragment)) {
				matched = false
				break
			}
		}
		if matched {
			return rule.Code
		}
	}
	return fallback
}

func (e *Encoder) formats(ids []int, maps domain.TaxonomyMaps) string {
	if len(ids) == 0 {
		return ""
	}
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		slug, ok := maps.Lookup(domain.VocabularyFormat, id)
		if !ok || strings.TrimSpace(slug) == "" {
			labels = append(labels, e.rules.OtherFormat)
			continue
		}
		labels = append(labels, TitleSlug(slug))
	}
	return strings.Join(labels, ", ")
}

func (e *Encoder) jointFlag(ids []int, maps domain.TaxonomyMaps) string {
	for _, id := range ids {
		slug, ok := maps.Lookup(domain.VocabularyJoint, id)
		if ok && strings.EqualFold(slug, e.rules.JointYesSlug) {
			return "Y"
		}
	}
	return "N"
}

// DecodeEntities unescapes the small set of entities the upstream emits in free text.
func DecodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return entityReplacer.Replace(s)
}

// Sanitize enforces the wire invariant: no delimiter and no line break inside a field.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, domain.Delimiter, domain.DelimiterSubstitute)
	if strings.ContainsAny(s, "\r\n") {
		s = strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '\r' || r == '\n' }), " ")
	}
	return strings.TrimSpace(s)
}

// TitleSlug turns "live_course" into "Live Course".
func TitleSlug(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// ParseCount parses a non-negative count, 0 when absent or not numeric.
func ParseCount(raw string) int {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return 0
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return max(n, 0)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return int(f)
}
