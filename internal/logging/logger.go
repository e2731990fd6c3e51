package logging

import (
	"io"
	"log/slog"
	"strings"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

const redacted = "[redacted]"

// secretKeys are attribute names whose values never reach the log output.
var secretKeys = []string{"api_key", "apikey", "token", "password", "secret", "authorization"}

// New creates the application logger. format is FormatText or FormatJSON;
// anything else falls back to text. The CLI writes to stderr so stdout stays
// free for the chat itself and JSON-lines output.
//
// Attributes named "error" are renamed to "err", and credential-looking
// attributes are redacted.
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == "error" {
		a.Key = "err"
	}
	if isSecret(a.Key) && a.Value.String() != "" {
		a.Value = slog.StringValue(redacted)
	}
	return a
}

func isSecret(key string) bool {
	key = strings.ToLower(strings.ReplaceAll(key, "-", "_"))
	for _, s := range secretKeys {
		if key == s || strings.HasSuffix(key, "_"+s) {
			return true
		}
	}
	return false
}
