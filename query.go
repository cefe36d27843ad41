package pgconnect

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rickchristie/postgres-connect/internal/classifier"
	"github.com/rickchristie/postgres-connect/internal/store"
)

// ReadQuery runs caller-supplied SQL after the read-only gate. The text is
// sent as-is with no parameters. Rejected text never reaches the store.
func (p *PostgresConnect) ReadQuery(ctx context.Context, sql string) (store.Rows, *ToolError) {
	startTime := time.Now()

	if max := p.config.Query.MaxSQLLength; max > 0 && len(sql) > max {
		te := validationError(fmt.Sprintf("SQL query too long: %d bytes exceeds maximum of %d bytes", len(sql), max), "")
		p.logRejected(sql, "too_long")
		return nil, te
	}

	if ok, reason := classifier.Verdict(sql); !ok {
		p.logRejected(sql, reason)
		return nil, validationError(msgReadOnlyOnly, "")
	}

	if p.protection != nil {
		if err := p.protection.Check(sql); err != nil {
			p.logRejected(sql, "strict_parse")
			return nil, validationError(msgReadOnlyOnly, err.Error())
		}
	}

	rows, te := p.run(ctx, "query_data_read", sql)
	if te != nil {
		return nil, te
	}

	sanitized := p.sanitizer.HasRules()
	rows = p.sanitizer.SanitizeRows(rows)

	_, timeoutRule := p.timeoutMgr.GetTimeoutWithPattern(sql)
	logEvent := p.logger.Info().
		Str("sql", truncateForLog(sql, 200)).
		Dur("duration", time.Since(startTime)).
		Int("row_count", len(rows))
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if sanitized {
		logEvent = logEvent.Bool("sanitized", true)
	}
	logEvent.Msg("query executed")

	return rows, nil
}

func (p *PostgresConnect) logRejected(sql, reason string) {
	p.logger.Info().
		Str("sql", truncateForLog(strings.TrimSpace(sql), 200)).
		Str("reason", reason).
		Msg("query rejected")
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
