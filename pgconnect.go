package pgconnect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rickchristie/postgres-connect/internal/errprompt"
	"github.com/rickchristie/postgres-connect/internal/protection"
	"github.com/rickchristie/postgres-connect/internal/sanitize"
	"github.com/rickchristie/postgres-connect/internal/store"
	"github.com/rickchristie/postgres-connect/internal/timeout"
)

// PostgresConnect runs the read query and introspection operations. It holds
// no connection: every call resolves parameters, connects, and closes.
// All exported methods are safe for concurrent use.
type PostgresConnect struct {
	config     Config
	client     store.Client
	resolve    ConnectionResolver
	protection *protection.Checker // nil unless query.strict_parse
	sanitizer  *sanitize.Sanitizer
	errPrompts *errprompt.Matcher
	timeoutMgr *timeout.Manager
	logger     zerolog.Logger
}

// Option is a functional option for New().
type Option func(*options)

type options struct {
	resolver ConnectionResolver
}

// WithConnectionResolver replaces EnvResolver.
func WithConnectionResolver(r ConnectionResolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// New creates a PostgresConnect. Panics on a nil client. Returns an error for
// invalid configuration, including rule patterns that do not compile.
func New(config Config, client store.Client, logger zerolog.Logger, opts ...Option) (*PostgresConnect, error) {
	if client == nil {
		panic("pgconnect: store client must be non-nil")
	}
	o := &options{resolver: EnvResolver}
	for _, opt := range opts {
		opt(o)
	}
	if o.resolver == nil {
		panic("pgconnect: connection resolver must be non-nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		return nil, err
	}

	promptRules := mapErrorPromptRules(config.ErrorPrompts)
	if config.DefaultErrorPrompts {
		promptRules = append(append([]errprompt.Rule(nil), errprompt.DefaultRules...), promptRules...)
	}
	matcher, err := errprompt.NewMatcher(promptRules)
	if err != nil {
		return nil, err
	}

	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: secondsDuration(r.TimeoutSeconds),
		}
	}
	tmgr, err := timeout.NewManager(timeout.Config{
		DefaultTimeout: secondsDuration(config.Query.DefaultTimeoutSeconds),
		Rules:          timeoutRules,
	})
	if err != nil {
		return nil, err
	}

	var checker *protection.Checker
	if config.Query.StrictParse {
		checker = protection.NewChecker(protection.Config{BlockedFunctions: config.Query.BlockedFunctions})
	}

	return &PostgresConnect{
		config:     config,
		client:     client,
		resolve:    o.resolver,
		protection: checker,
		sanitizer:  san,
		errPrompts: matcher,
		timeoutMgr: tmgr,
		logger:     logger,
	}, nil
}

// NewPostgresConnect is New with the pgx-backed store client.
func NewPostgresConnect(config Config, logger zerolog.Logger, opts ...Option) (*PostgresConnect, error) {
	return New(config, store.NewPostgres(), logger, opts...)
}

// run resolves parameters and executes one statement on a fresh connection.
// Every failure comes back as a ToolError.
func (p *PostgresConnect) run(ctx context.Context, op, sql string, args ...any) (store.Rows, *ToolError) {
	params, err := p.resolve()
	if err != nil {
		return nil, p.handleError(op, &store.ConnectionError{Err: err})
	}

	queryCtx, cancel := p.timeoutMgr.WithDeadline(ctx, sql)
	defer cancel()

	rows, err := store.Run(queryCtx, p.client, params, sql, args...)
	if err != nil {
		if errors.Is(queryCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = &store.ExecutionError{Err: fmt.Errorf("query timed out after %s", p.timeoutMgr.GetTimeout(sql))}
		}
		return nil, p.handleError(op, err)
	}
	return rows, nil
}

// handleError converts a store error into the client payload. Connection
// failures keep the driver text in detail; execution failures surface the
// driver text as the message. Matching error prompts become the hint.
func (p *PostgresConnect) handleError(op string, err error) *ToolError {
	var te *ToolError
	switch {
	case errors.As(err, &te):
		// already shaped
	case store.IsConnectionError(err):
		te = &ToolError{Message: msgConnectionFailed, Detail: err.Error(), category: CategoryConnection}
	default:
		var ee *store.ExecutionError
		if errors.As(err, &ee) {
			te = &ToolError{Message: err.Error(), category: CategoryExecution}
		} else {
			te = &ToolError{Message: msgInternal, Detail: err.Error(), category: CategoryInternal}
		}
	}

	errMsg := err.Error()
	patterns := p.errPrompts.MatchedPatterns(errMsg)
	if hint := p.errPrompts.Match(errMsg); hint != "" {
		te.Hint = hint
	}

	logEvent := p.logger.Error().
		Err(err).
		Str("op", op).
		Str("category", te.category.String())
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("operation failed")

	return p.redact(te)
}

// redact strips driver text from connection and internal payloads when
// redact_error_detail is set.
func (p *PostgresConnect) redact(te *ToolError) *ToolError {
	if !p.config.RedactErrorDetail {
		return te
	}
	switch te.category {
	case CategoryConnection:
		te.Detail = ""
	case CategoryInternal:
		te.Message = msgInternal
		te.Detail = ""
	}
	return te
}

func secondsDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
		}
	}
	return result
}

func mapErrorPromptRules(rules []ErrorPromptRule) []errprompt.Rule {
	result := make([]errprompt.Rule, len(rules))
	for i, r := range rules {
		result[i] = errprompt.Rule{
			Pattern: r.Pattern,
			Message: r.Message,
		}
	}
	return result
}
