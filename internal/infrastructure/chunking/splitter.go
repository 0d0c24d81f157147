package chunking

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

const rowSeparator = "\n"

// Splitter packs records into chunks that fit the transit channel's character budget.
type Splitter struct {
	MaxChunkChars int
}

func NewSplitter(maxChunkChars int) *Splitter {
	if maxChunkChars <= 0 {
		maxChunkChars = 90000
	}
	return &Splitter{MaxChunkChars: maxChunkChars}
}

// Split keeps record order and never splits a record across chunks. Chunks are numbered 0..K-1.
func (s *Splitter) Split(records []domain.EncodedRecord) ([]domain.Chunk, error) {
	if len(records) == 0 {
		return nil, nil
	}

	out := make([]domain.Chunk, 0, 1)
	var (
		current []domain.EncodedRecord
		text    strings.Builder
		chars   int
	)
	flush := func() {
		out = append(out, domain.Chunk{
			Index:   len(out),
			Records: current,
			Text:    text.String(),
		})
		current = nil
		text.Reset()
		chars = 0
	}

	for i, rec := range records {
		if err := ValidateRecord(rec); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("split record %d", i), err)
		}
		row := rec.Row()
		rowChars := utf8.RuneCountInString(row)
		if rowChars > s.MaxChunkChars {
			return nil, domain.WrapError(
				domain.ErrInvalidInput,
				fmt.Sprintf("split record %d", i),
				fmt.Errorf("row of %d chars exceeds chunk limit %d", rowChars, s.MaxChunkChars),
			)
		}

		added := rowChars
		if len(current) > 0 {
			added += utf8.RuneCountInString(rowSeparator)
		}
		if len(current) > 0 && chars+added > s.MaxChunkChars {
			flush()
			added = rowChars
		}
		if len(current) > 0 {
			text.WriteString(rowSeparator)
		}
		text.WriteString(row)
		chars += added
		current = append(current, rec)
	}
	flush()
	return out, nil
}

// Reassemble rebuilds the records of chunk index from text that may have had every line
// break replaced by one space.
func (s *Splitter) Reassemble(index int, text string) ([]domain.EncodedRecord, error) {
	return Reassemble(index, text)
}

// ValidateRecord checks the wire invariant the reassembler depends on.
func ValidateRecord(rec domain.EncodedRecord) error {
	for i, field := range rec {
		if strings.Contains(field, domain.Delimiter) {
			return fmt.Errorf("field %d contains delimiter %q", i, domain.Delimiter)
		}
		if strings.ContainsAny(field, "\r\n") {
			return fmt.Errorf("field %d contains a line break", i)
		}
	}
	return nil
}

// Join concatenates chunk texts in order into one multi-line payload.
func Join(chunks []domain.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, rowSeparator)
}
