package errors

import (
	"fmt"
	"sort"
	"strings"
)

// DetailSet is an insertion-ordered set of detail strings.
type DetailSet struct {
	items []string
	seen  map[string]struct{}
}

// NewDetailSet builds a set from items, dropping blanks and duplicates.
func NewDetailSet(items ...string) *DetailSet {
	s := &DetailSet{seen: make(map[string]struct{}, len(items))}
	for _, it := range items {
		s.Add(it)
	}
	return s
}

// Add inserts v unless it is blank or already present. It reports whether v was added.
func (s *DetailSet) Add(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if _, ok := s.seen[v]; ok {
		return false
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// AddField inserts "field: message".
func (s *DetailSet) AddField(field, msg string) bool {
	field = strings.TrimSpace(field)
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return false
	}
	if field == "" {
		return s.Add(msg)
	}
	return s.Add(field + ": " + msg)
}

// Len returns the number of entries.
func (s *DetailSet) Len() int { return len(s.items) }

// Items returns a copy of the entries in insertion order, nil when empty.
func (s *DetailSet) Items() []string {
	if len(s.items) == 0 {
		return nil
	}
	return append([]string(nil), s.items...)
}

// FlattenFieldErrors turns a field -> message(s) map into "field: message"
// entries. Fields are visited in sorted order; messages keep their order.
func FlattenFieldErrors(fields map[string]any) []string {
	set := NewDetailSet()
	addFieldErrors(set, fields)
	return set.Items()
}

func addFieldErrors(set *DetailSet, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, field := range keys {
		switch v := fields[field].(type) {
		case string:
			set.AddField(field, v)
		case []string:
			for _, m := range v {
				set.AddField(field, m)
			}
		case []any:
			for _, m := range v {
				set.AddField(field, stringify(m))
			}
		case nil:
		default:
			set.AddField(field, stringify(v))
		}
	}
}

// StringFieldErrors is FlattenFieldErrors for the common typed shapes.
func StringFieldErrors(fields map[string][]string) []string {
	generic := make(map[string]any, len(fields))
	for k, v := range fields {
		generic[k] = v
	}
	return FlattenFieldErrors(generic)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case map[string]any:
		if msg, ok := t["message"].(string); ok {
			return msg
		}
		if msg, ok := t["msg"].(string); ok {
			return msg
		}
	}
	return fmt.Sprint(v)
}
