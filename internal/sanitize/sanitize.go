package sanitize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/rickchristie/postgres-connect/internal/store"
)

// Rule is the sanitizer's own rule type.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Sanitizer applies regex-based sanitization to result row field values.
type Sanitizer struct {
	rules []compiledRule
}

// NewSanitizer creates a new Sanitizer. Returns an error on invalid regex patterns.
func NewSanitizer(rules []Rule) (*Sanitizer, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Sanitizer{rules: compiled}, nil
}

// HasRules returns true if the sanitizer has any rules configured.
func (s *Sanitizer) HasRules() bool {
	return len(s.rules) > 0
}

// SanitizeRows rewrites text and opaque values in place. Document values
// (json, arrays) are decoded and every string inside them is rewritten.
// Numbers, booleans and nulls pass through.
func (s *Sanitizer) SanitizeRows(rows store.Rows) store.Rows {
	if !s.HasRules() {
		return rows
	}
	for _, row := range rows {
		row.Map(func(_ string, v store.Value) store.Value {
			return s.sanitizeValue(v)
		})
	}
	return rows
}

func (s *Sanitizer) sanitizeValue(v store.Value) store.Value {
	switch v.Kind() {
	case store.KindText:
		return store.Text(s.apply(v.String()))
	case store.KindOpaque:
		return store.Opaque(s.apply(v.String()))
	case store.KindDocument:
		dec := json.NewDecoder(bytes.NewReader(v.Raw()))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			return v
		}
		b, err := json.Marshal(s.sanitizeAny(doc))
		if err != nil {
			return v
		}
		return store.Document(b)
	default:
		return v
	}
}

func (s *Sanitizer) sanitizeAny(v any) any {
	switch val := v.(type) {
	case string:
		return s.apply(val)
	case map[string]any:
		for k, item := range val {
			val[k] = s.sanitizeAny(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = s.sanitizeAny(item)
		}
		return val
	default:
		// json.Number is a distinct type and does not match `case string:`.
		return v
	}
}

func (s *Sanitizer) apply(text string) string {
	for _, rule := range s.rules {
		text = rule.pattern.ReplaceAllString(text, rule.replacement)
	}
	return text
}
