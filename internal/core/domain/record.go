package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	FieldCount          = 16
	Delimiter           = "~"
	DelimiterSubstitute = "-"
)

// Field positions of an EncodedRecord. The order is the wire schema.
const (
	FieldName = iota
	FieldCity
	FieldState
	FieldCountry
	FieldWebsite
	FieldTypeCode
	FieldStatusCode
	FieldJoint
	FieldActivities
	FieldContactName
	FieldContactPhone
	FieldAddress
	FieldZip
	FieldFormats
	FieldAccreditedBy
	FieldSourceID
)

// FieldNames are the human readable column titles in schema order.
var FieldNames = [FieldCount]string{
	"Provider Name",
	"City",
	"State",
	"Country",
	"Website",
	"Accreditation Type",
	"Accreditation Status",
	"Joint Providership",
	"Activities/Year",
	"Contact Name",
	"Contact Phone",
	"Address",
	"ZIP",
	"Activity Formats",
	"Accredited By",
	"Provider ID",
}

// EncodedRecord is a fixed-arity, delimiter-free tuple.
type EncodedRecord [FieldCount]string

func (r EncodedRecord) Field(i int) string {
	return r[i]
}

// Activities parses the activity count field, 0 when it is not a number.
func (r EncodedRecord) Activities() int {
	n, err := strconv.Atoi(strings.TrimSpace(r[FieldActivities]))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Codes splits a comma-joined code field.
func (r EncodedRecord) Codes(i int) []string {
	raw := strings.TrimSpace(r[i])
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Row renders the record in its wire form: a leading delimiter, then the fields joined by the delimiter.
func (r EncodedRecord) Row() string {
	var b strings.Builder
	for _, f := range r {
		b.WriteString(Delimiter)
		b.WriteString(f)
	}
	return b.String()
}

// Chunk is an ordered group of records sent through the transit channel as one text block.
type Chunk struct {
	Index   int
	Records []EncodedRecord
	Text    string
}

// ChunkEnvelope is a chunk's text in transit between the scraper and a worker.
type ChunkEnvelope struct {
	RunID string
	Index int
	Total int
	Text  string
}

// ChunkArchiveKey names the stored copy of one chunk inside its run directory.
func ChunkArchiveKey(runID string, index int) string {
	return fmt.Sprintf("%s/chunk_%04d.txt", runID, index)
}
