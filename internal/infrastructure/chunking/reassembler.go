package chunking

import (
	"strings"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

// Reassemble splits the text on the delimiter and regroups tokens into windows of
// FieldCount. Whitespace is never used to find boundaries: the only residue a lost
// line break can leave is one trailing character on the last field of a record. The
// final field of the text is right-trimmed, since encoded fields never end in whitespace.
func Reassemble(index int, text string) ([]domain.EncodedRecord, error) {
	text = strings.TrimLeft(text, " \t\r\n")
	if text == "" {
		return nil, nil
	}
	if !strings.HasPrefix(text, domain.Delimiter) {
		return nil, &domain.MalformedChunkError{
			Index:  index,
			Tokens: strings.Count(text, domain.Delimiter) + 1,
			Reason: "text does not start at a record boundary",
		}
	}

	tokens := strings.Split(text, domain.Delimiter)[1:]
	if len(tokens)%domain.FieldCount != 0 {
		return nil, &domain.MalformedChunkError{Index: index, Tokens: len(tokens)}
	}

	count := len(tokens) / domain.FieldCount
	out := make([]domain.EncodedRecord, count)
	for i := range count {
		copy(out[i][:], tokens[i*domain.FieldCount:(i+1)*domain.FieldCount])
		last := &out[i][domain.FieldCount-1]
		if i < count-1 {
			*last = trimBoundary(*last)
		} else {
			*last = strings.TrimRight(*last, " \t\r\n")
		}
	}
	return out, nil
}

// ReassembleAll reassembles chunk texts in order and concatenates their records.
func ReassembleAll(texts []string) ([]domain.EncodedRecord, error) {
	var out []domain.EncodedRecord
	for i, text := range texts {
		records, err := Reassemble(i, text)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// trimBoundary removes exactly one record separator residue: the original line break or
// the single space that replaced it.
func trimBoundary(s string) string {
	switch {
	case strings.HasSuffix(s, "\r\n"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "\n"), strings.HasSuffix(s, " "), strings.HasSuffix(s, "\r"):
		return s[:len(s)-1]
	default:
		return s
	}
}
