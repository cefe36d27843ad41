// Package classifier admits or rejects SQL text with a conservative lexical
// filter. It never parses SQL and never touches the database.
//
// The filter is shallow. It can reject harmless text that uses a blocked word
// as an identifier or literal (e.g. "select ' delete ' as x"), and it misses
// keywords glued to comments, quotes, or operators (e.g. "delete/**/from").
// Store-side read-only permissions remain the real boundary.
package classifier

import "strings"

// BlockedKeywords are rejected when they appear as a space-delimited token.
var BlockedKeywords = []string{
	"insert",
	"update",
	"delete",
	"drop",
	"alter",
	"create",
	"truncate",
	"grant",
	"revoke",
	"copy",
	"call",
	"do",
}

// Reason codes returned by Verdict.
const (
	ReasonNone             = ""
	ReasonNotRead          = "not_read_statement"
	ReasonSemicolon        = "semicolon"
	ReasonBlockedKeywordPf = "blocked_keyword:"
)

// Classify reports whether text is admitted as a single read-only statement.
func Classify(text string) bool {
	ok, _ := Verdict(text)
	return ok
}

// Verdict is Classify plus the reason for a rejection.
func Verdict(text string) (bool, string) {
	normalized := strings.ToLower(strings.TrimSpace(text))

	if !strings.HasPrefix(normalized, "select") && !strings.HasPrefix(normalized, "with") {
		return false, ReasonNotRead
	}
	if strings.Contains(normalized, ";") {
		return false, ReasonSemicolon
	}

	padded := " " + strings.Map(tokenSeparator, normalized) + " "
	for _, kw := range BlockedKeywords {
		if strings.Contains(padded, " "+kw+" ") {
			return false, ReasonBlockedKeywordPf + kw
		}
	}
	return true, ReasonNone
}

// tokenSeparator folds whitespace, parentheses and commas into a plain space
// so that "(delete" and "\ndelete\n" are matched as tokens.
func tokenSeparator(r rune) rune {
	switch r {
	case '\t', '\n', '\r', '\f', '\v', '(', ')', ',':
		return ' '
	}
	return r
}
