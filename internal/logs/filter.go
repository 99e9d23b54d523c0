package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"wifiguard/internal/logging"
)

// Entry is one decoded JSON log line.
type Entry struct {
	Time       time.Time
	Level      string
	Message    string
	Component  string
	Worker     string
	Generation string
	Attrs      map[string]any
}

// ParseEntry decodes a line written by the daemon's JSON handler. It
// reports false for anything else.
func ParseEntry(line string) (Entry, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Entry{}, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return Entry{}, false
	}

	entry := Entry{Attrs: make(map[string]any)}
	for key, value := range fields {
		text, _ := value.(string)
		switch key {
		case "ts":
			if ts, err := time.Parse(time.RFC3339Nano, text); err == nil {
				entry.Time = ts
			}
		case "level":
			entry.Level = strings.ToLower(text)
		case "msg":
			entry.Message = text
		case logging.FieldComponent:
			entry.Component = text
		case logging.FieldWorker:
			entry.Worker = text
		case logging.FieldGeneration:
			entry.Generation = text
		default:
			entry.Attrs[key] = value
		}
	}
	return entry, true
}

// Format renders the entry on one line for terminal output.
func (e Entry) Format() string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("2006-01-02 15:04:05.000"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(e.Level))
	if source := e.source(); source != "" {
		fmt.Fprintf(&b, " [%s]", source)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Attrs))
	for key := range e.Attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, e.Attrs[key])
	}
	return b.String()
}

func (e Entry) source() string {
	switch {
	case e.Worker != "" && e.Worker != e.Component && e.Component != "":
		return e.Component + "/" + e.Worker
	case e.Component != "":
		return e.Component
	default:
		return e.Worker
	}
}

// Filter selects log lines. The zero Filter matches everything.
type Filter struct {
	// MinLevel is a level name such as "warn"; empty accepts all levels.
	MinLevel  string
	Component string
	Worker    string
}

// Empty reports whether the filter accepts every line.
func (f Filter) Empty() bool {
	return strings.TrimSpace(f.MinLevel) == "" &&
		strings.TrimSpace(f.Component) == "" &&
		strings.TrimSpace(f.Worker) == ""
}

// Match reports whether line passes the filter. Lines that are not JSON
// entries pass only an empty filter.
func (f Filter) Match(line string) bool {
	if f.Empty() {
		return true
	}
	entry, ok := ParseEntry(line)
	if !ok {
		return false
	}
	if level := strings.TrimSpace(f.MinLevel); level != "" {
		if logging.ParseLevel(entry.Level) < logging.ParseLevel(level) {
			return false
		}
	}
	if component := strings.TrimSpace(f.Component); component != "" && !strings.EqualFold(entry.Component, component) {
		return false
	}
	if worker := strings.TrimSpace(f.Worker); worker != "" &&
		!strings.EqualFold(entry.Worker, worker) && !strings.EqualFold(entry.Component, worker) {
		return false
	}
	return true
}
