/*
Package logcapture provides a slog handler that records log output in memory
for tests.

A Handler collects every record it receives into a bounded log, so tests can
hand a logger to the code under test and assert on what was logged:

	capture := logcapture.New(logcapture.Config{})
	logger := capture.Logger()

	// ... pass logger to the code under test ...

	if !capture.Contains("cache rebuilt") {
		// fail
	}

Handlers derived through WithAttrs and WithGroup share the root handler's
entry log, so introspection on the root sees records logged through any
derived logger.
*/
package logcapture

import (
	"context"
	"log/slog"
	"strings"
	"time"

	testutils "github.com/FlashGalatine/xivdyetools-test-utils"
	"github.com/FlashGalatine/xivdyetools-test-utils/history"
)

// Entry is one captured log record.
type Entry struct {
	// Time is the record timestamp assigned by slog.
	Time time.Time

	// Level is the record level.
	Level slog.Level

	// Message is the log message.
	Message string

	// Attrs holds the record attributes, including attrs attached through
	// WithAttrs, keyed with group prefixes joined by ".".
	Attrs map[string]any
}

// Config controls construction of a Handler.
type Config struct {
	// Level is the minimum level captured. Nil captures everything from
	// debug up.
	Level slog.Leveler

	// MaxEntries bounds the entry log. Zero or negative values fall back
	// to the history package default.
	MaxEntries int
}

// Handler is a slog.Handler recording every enabled record in memory. All
// methods are safe for concurrent use.
type Handler struct {
	level   slog.Leveler
	entries *history.Log[Entry]
	attrs   []slog.Attr
	groups  []string
}

var (
	_ slog.Handler       = (*Handler)(nil)
	_ testutils.Resetter = (*Handler)(nil)
)

// New creates a Handler with the provided configuration.
func New(config Config) *Handler {
	level := config.Level
	if level == nil {
		level = slog.LevelDebug
	}

	return &Handler{
		level:   level,
		entries: history.New[Entry](config.MaxEntries),
	}
}

// Logger returns a slog logger emitting into this handler.
func (h *Handler) Logger() *slog.Logger {
	return slog.New(h)
}

// Enabled reports whether records at the given level are captured.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle records one log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.qualify(a.Key)] = a.Value.Resolve().Any()
		return true
	})

	h.entries.Append(Entry{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})
	return nil
}

// WithAttrs returns a derived handler whose attrs are attached to every
// record it captures. The derived handler shares this handler's entry log.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := h.clone()
	for _, a := range attrs {
		out.attrs = append(out.attrs, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	return out
}

// WithGroup returns a derived handler qualifying subsequent attribute keys
// with name. The derived handler shares this handler's entry log.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := h.clone()
	out.groups = append(out.groups, name)
	return out
}

// Entries returns the captured records, oldest first.
func (h *Handler) Entries() []Entry {
	entries := h.entries.Items()
	for i := range entries {
		entries[i].Attrs = cloneAttrs(entries[i].Attrs)
	}
	return entries
}

// Messages returns the captured messages, oldest first.
func (h *Handler) Messages() []string {
	entries := h.entries.Items()
	messages := make([]string, len(entries))
	for i, e := range entries {
		messages[i] = e.Message
	}
	return messages
}

// Contains reports whether any captured message contains substr.
func (h *Handler) Contains(substr string) bool {
	for _, e := range h.entries.Items() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Len returns the number of retained records.
func (h *Handler) Len() int {
	return h.entries.Len()
}

// Reset drops every captured record.
func (h *Handler) Reset() {
	h.entries.Reset()
}

// clone copies the handler's attr state while sharing its entry log.
func (h *Handler) clone() *Handler {
	return &Handler{
		level:   h.level,
		entries: h.entries,
		attrs:   append([]slog.Attr(nil), h.attrs...),
		groups:  append([]string(nil), h.groups...),
	}
}

// qualify prefixes key with the open group names.
func (h *Handler) qualify(key string) string {
	if len(h.groups) == 0 || key == "" {
		return key
	}
	return strings.Join(h.groups, ".") + "." + key
}

// cloneAttrs copies an attribute map, preserving nil.
func cloneAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
