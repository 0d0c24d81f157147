package domain

import (
	"fmt"
	"strconv"
)

// Vocabulary names one of the independent upstream taxonomies.
type Vocabulary string

const (
	VocabularyStatus Vocabulary = "status"
	VocabularyType   Vocabulary = "type"
	VocabularyFormat Vocabulary = "format"
	VocabularyJoint  Vocabulary = "joint"
)

// Vocabularies lists every vocabulary the encoder depends on.
var Vocabularies = []Vocabulary{
	VocabularyStatus,
	VocabularyType,
	VocabularyFormat,
	VocabularyJoint,
}

type TaxonomyTerm struct {
	ID   int    `json:"id"`
	Slug string `json:"slug"`
}

// TaxonomyMaps holds id -> slug lookups per vocabulary. Vocabularies never share ids.
type TaxonomyMaps map[Vocabulary]map[int]string

func (m TaxonomyMaps) Lookup(vocabulary Vocabulary, id int) (string, bool) {
	terms, ok := m[vocabulary]
	if !ok {
		return "", false
	}
	slug, ok := terms[id]
	return slug, ok
}

// CatalogEntry is one raw provider object as returned by the upstream catalog.
type CatalogEntry struct {
	ID    int                  `json:"id"`
	Title string               `json:"title"`
	Meta  map[string]any       `json:"meta"`
	Terms map[Vocabulary][]int `json:"terms"`
}

// MetaString returns a metadata value rendered as text, or "" when absent.
// List values (common for custom fields) yield their first element.
func (e CatalogEntry) MetaString(key string) string {
	return metaText(e.Meta[key])
}

func metaText(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []any:
		if len(typed) == 0 {
			return ""
		}
		return metaText(typed[0])
	case []string:
		if len(typed) == 0 {
			return ""
		}
		return typed[0]
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return fmt.Sprint(typed)
	}
}
