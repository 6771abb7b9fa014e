package engine

import (
	"fmt"
	"log"
	"strings"

	"ClimFinLedger/internal/config"
	"ClimFinLedger/internal/schema"
)

// KeyField resolves one canonical column on a record. The second return is
// false when the record's source does not carry the column at all; such
// columns are skipped rather than embedded as empty segments.
type KeyField func(schema.Column) (string, bool)

// KeyConfig is one ordered column list a matching pass joins on.
type KeyConfig struct {
	Name    string
	Columns []schema.Column
}

// Validate rejects empty or unregistered column lists.
func (kc KeyConfig) Validate() error {
	if len(kc.Columns) == 0 {
		return fmt.Errorf("key config %q: no columns", kc.Name)
	}
	return schema.Validate(kc.Columns...)
}

// naTokens are source artifacts that mean "missing" when they show up as a
// cell value. They collapse to the empty segment.
var naTokens = map[string]struct{}{
	"":      {},
	"nan":   {},
	"<na>":  {},
	"<nan>": {},
}

func normalizeSegment(s string) string {
	s = strings.TrimSpace(s)
	if _, ok := naTokens[strings.ToLower(s)]; ok {
		return ""
	}
	return s
}

// BuildKey concatenates the requested columns of a record into a composite
// join key. Missing values become empty segments, columns the record does
// not carry are skipped, and leading/trailing separators are trimmed. A row
// with nothing to contribute yields "".
func BuildKey(cols []schema.Column, field KeyField) string {
	segs := make([]string, 0, len(cols))
	for _, c := range cols {
		v, ok := field(c)
		if !ok {
			continue
		}
		segs = append(segs, normalizeSegment(v))
	}
	return strings.Trim(strings.Join(segs, "_"), "_")
}

// auditKeyColumns checks column availability and missingness across a pool
// before a pass and returns diagnostic warnings. Absent columns are skipped
// by BuildKey; heavy missingness in a present column degrades join quality
// silently, so it is surfaced here.
func auditKeyColumns(name string, cols []schema.Column, fields []KeyField) []string {
	if len(fields) == 0 {
		return nil
	}
	var warnings []string
	for _, c := range cols {
		present, missing := 0, 0
		for _, f := range fields {
			v, ok := f(c)
			if !ok {
				continue
			}
			present++
			if normalizeSegment(v) == "" {
				missing++
			}
		}
		if present == 0 {
			msg := fmt.Sprintf("pass %s: column %s absent, key built without it", name, c)
			log.Println("[match]", msg)
			warnings = append(warnings, msg)
			continue
		}
		if ratio := float64(missing) / float64(present); ratio > config.MissingKeyColumnWarnRatio {
			msg := fmt.Sprintf("pass %s: column %s is %.0f%% missing", name, c, ratio*100)
			log.Println("[match]", msg)
			warnings = append(warnings, msg)
		}
	}
	return warnings
}
