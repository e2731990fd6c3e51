package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/chatflow/pkg/domain"
)

// DefaultMaxInputSize bounds a single answer (or form field) in bytes.
const DefaultMaxInputSize = 4096

// EnvMaxInputSize overrides DefaultMaxInputSize for the whole process.
const EnvMaxInputSize = "CHATFLOW_MAX_INPUT_SIZE"

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeInput cleans one piece of user text before it reaches the
// interpreter. Oversized or non UTF-8 text is rejected; control characters
// other than newline, tab and carriage return are dropped.
func SanitizeInput(input string) (string, error) {
	limit := maxInputSize()
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}
	if strings.IndexFunc(input, droppedRune) < 0 {
		return input, nil
	}
	return strings.Map(func(r rune) rune {
		if droppedRune(r) {
			return -1
		}
		return r
	}, input), nil
}

// SanitizeResponse applies SanitizeInput to the free text and every form
// field of resp. The option index passes through untouched. The returned
// response never shares its Fields map with resp.
func SanitizeResponse(resp domain.Response) (domain.Response, error) {
	out := domain.Response{OptionIndex: resp.OptionIndex}

	text, err := SanitizeInput(resp.Text)
	if err != nil {
		return domain.Response{}, err
	}
	out.Text = text

	if resp.Fields != nil {
		out.Fields = make(map[string]string, len(resp.Fields))
		for key, value := range resp.Fields {
			clean, err := SanitizeInput(value)
			if err != nil {
				return domain.Response{}, fmt.Errorf("field %q: %w", key, err)
			}
			out.Fields[key] = clean
		}
	}
	return out, nil
}

func droppedRune(r rune) bool {
	switch r {
	case '\n', '\t', '\r':
		return false
	}
	return unicode.IsControl(r)
}

func maxInputSize() int {
	if size, err := strconv.Atoi(os.Getenv(EnvMaxInputSize)); err == nil && size > 0 {
		return size
	}
	return DefaultMaxInputSize
}
