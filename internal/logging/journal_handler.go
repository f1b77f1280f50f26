package logging

import (
	"context"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

const syslogIdentifier = "v4l2cam"

// JournalHandler is a slog.Handler that writes to the systemd journal.
// Attributes become journal fields, so records can be filtered with
// journalctl -t v4l2cam MODULE=capture DEVICE=/dev/video0.
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string // rendered WithAttrs attributes
	prefix string            // joined WithGroup names, with trailing "_"
	send   func(message string, priority journal.Priority, vars map[string]string) error
}

// NewJournalHandler creates a journal handler. Passing a *slog.LevelVar
// keeps the journal in step with runtime level changes.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{
		level:  level,
		fields: map[string]string{},
		send:   journal.Send,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle sends the record to the journal.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.fields)+r.NumAttrs()+1)
	maps.Copy(fields, h.fields)
	r.Attrs(func(attr slog.Attr) bool {
		addAttrToFields(fields, attr, h.prefix)
		return true
	})
	fields["SYSLOG_IDENTIFIER"] = syslogIdentifier

	return h.send(r.Message, mapLevelToPriority(r.Level), fields)
}

// WithAttrs renders attrs once so per-frame debug records only add their own.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.fields = maps.Clone(h.fields)
	for _, attr := range attrs {
		addAttrToFields(h2.fields, attr, h.prefix)
	}
	return &h2
}

// WithGroup returns a handler that prefixes later keys with name.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + fieldName(name) + "_"
	return &h2
}

// mapLevelToPriority maps slog levels to journal priorities.
func mapLevelToPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// addAttrToFields adds attr to fields under prefix, flattening groups.
func addAttrToFields(fields map[string]string, attr slog.Attr, prefix string) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix += fieldName(attr.Key) + "_"
		}
		for _, a := range attr.Value.Group() {
			addAttrToFields(fields, a, groupPrefix)
		}
		return
	}

	key := prefix + fieldName(attr.Key)
	switch attr.Value.Kind() {
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(attr.Value.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(attr.Value.Uint64(), 10)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(attr.Value.Float64(), 'g', -1, 64)
	case slog.KindTime:
		fields[key] = attr.Value.Time().Format(time.RFC3339Nano)
	default:
		fields[key] = attr.Value.String()
	}
}

// fieldName upper-cases key and replaces anything journald rejects in a
// field name with '_'. Names may not start with '_' or a digit.
func fieldName(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
	if name == "" || name[0] == '_' || (name[0] >= '0' && name[0] <= '9') {
		name = "X" + name
	}
	return name
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
