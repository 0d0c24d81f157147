package channel

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

// Direct hands the chunk text over unchanged.
type Direct struct{}

func NewDirect() *Direct {
	return &Direct{}
}

func (d *Direct) Transit(ctx context.Context, chunk domain.Chunk) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return chunk.Text, nil
}

// Lossy models the constrained text tool the data has to cross: it refuses payloads above
// its cap and collapses every line boundary into a single space.
type Lossy struct {
	maxChars int
}

func NewLossy(maxChars int) *Lossy {
	if maxChars <= 0 {
		maxChars = 100000
	}
	return &Lossy{maxChars: maxChars}
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func (l *Lossy) Transit(ctx context.Context, chunk domain.Chunk) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n := utf8.RuneCountInString(chunk.Text); n > l.maxChars {
		return "", domain.WrapError(domain.ErrInvalidInput, "lossy transit",
			fmt.Errorf("chunk %d has %d chars, channel accepts %d", chunk.Index, n, l.maxChars))
	}
	return lineBreaks.Replace(chunk.Text), nil
}
