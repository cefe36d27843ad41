package protection

import (
	"encoding/json"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// DefaultBlockedFunctions have side effects that a read-only transaction
// does not prevent.
var DefaultBlockedFunctions = []string{
	"pg_terminate_backend",
	"pg_cancel_backend",
	"pg_reload_conf",
	"pg_rotate_logfile",
	"set_config",
	"pg_advisory_lock",
	"pg_advisory_xact_lock",
	"pg_read_file",
	"pg_read_binary_file",
	"pg_ls_dir",
	"lo_import",
	"lo_export",
	"dblink",
	"dblink_exec",
}

// Config is the protection checker's own config type.
type Config struct {
	// BlockedFunctions are matched case-insensitively against the unqualified
	// function name.
	BlockedFunctions []string
}

// Checker uses PostgreSQL's parser to confirm SQL is one plain read.
type Checker struct {
	blocked map[string]bool
}

// NewChecker creates a new Checker with the given config.
func NewChecker(config Config) *Checker {
	blocked := make(map[string]bool, len(config.BlockedFunctions))
	for _, name := range config.BlockedFunctions {
		blocked[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return &Checker{blocked: blocked}
}

// Check parses SQL with pg_query_go and walks the AST.
// Returns nil if allowed, descriptive error if blocked.
func (c *Checker) Check(sql string) error {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return fmt.Errorf("SQL parse error: %w", err)
	}

	if len(result.Stmts) == 0 {
		return fmt.Errorf("SQL parse error: empty query")
	}

	if len(result.Stmts) > 1 {
		return fmt.Errorf("multi-statement queries are not allowed: found %d statements", len(result.Stmts))
	}

	if err := c.checkNode(result.Stmts[0].Stmt); err != nil {
		return err
	}

	if len(c.blocked) > 0 {
		return c.checkFunctions(sql)
	}
	return nil
}

// checkNode requires node to be a SELECT (or set operation of SELECTs) with
// no INTO, no row locks, and read-only CTEs.
func (c *Checker) checkNode(node *pg_query.Node) error {
	if node == nil {
		return nil
	}

	sel, ok := node.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return fmt.Errorf("only SELECT statements are allowed, got %s", statementName(node))
	}
	stmt := sel.SelectStmt

	if stmt.IntoClause != nil {
		return fmt.Errorf("SELECT INTO is not allowed: creates a table")
	}
	if len(stmt.LockingClause) > 0 {
		return fmt.Errorf("SELECT ... FOR UPDATE/SHARE is not allowed: acquires row locks")
	}
	if err := c.checkCTEs(stmt.WithClause); err != nil {
		return err
	}

	if stmt.Larg != nil {
		if err := c.checkNode(&pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: stmt.Larg}}); err != nil {
			return err
		}
	}
	if stmt.Rarg != nil {
		if err := c.checkNode(&pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: stmt.Rarg}}); err != nil {
			return err
		}
	}
	return nil
}

// checkCTEs recursively checks every CTE body.
func (c *Checker) checkCTEs(withClause *pg_query.WithClause) error {
	if withClause == nil {
		return nil
	}
	for _, cte := range withClause.Ctes {
		cteNode, ok := cte.Node.(*pg_query.Node_CommonTableExpr)
		if !ok {
			continue
		}
		query := cteNode.CommonTableExpr.Ctequery
		if _, isSelect := query.GetNode().(*pg_query.Node_SelectStmt); !isSelect {
			return fmt.Errorf("data-modifying statements in WITH are not allowed: %s in CTE %q",
				statementName(query), cteNode.CommonTableExpr.Ctename)
		}
		if err := c.checkNode(query); err != nil {
			return err
		}
	}
	return nil
}

// checkFunctions walks the JSON form of the parse tree for FuncCall nodes.
func (c *Checker) checkFunctions(sql string) error {
	tree, err := pg_query.ParseToJSON(sql)
	if err != nil {
		return fmt.Errorf("SQL parse error: %w", err)
	}
	var root any
	if err := json.Unmarshal([]byte(tree), &root); err != nil {
		return fmt.Errorf("SQL parse error: %w", err)
	}
	return c.walkFunctions(root)
}

func (c *Checker) walkFunctions(v any) error {
	switch node := v.(type) {
	case map[string]any:
		if call, ok := node["FuncCall"].(map[string]any); ok {
			if name := funcName(call); c.blocked[name] {
				return fmt.Errorf("function %s() is not allowed", name)
			}
		}
		for _, child := range node {
			if err := c.walkFunctions(child); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range node {
			if err := c.walkFunctions(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// funcName returns the lower-cased last element of a FuncCall's funcname.
func funcName(call map[string]any) string {
	parts, _ := call["funcname"].([]any)
	if len(parts) == 0 {
		return ""
	}
	last, _ := parts[len(parts)-1].(map[string]any)
	str, _ := last["String"].(map[string]any)
	name, _ := str["sval"].(string)
	return strings.ToLower(name)
}

// statementName renders a node's statement kind for error messages.
func statementName(node *pg_query.Node) string {
	switch node.GetNode().(type) {
	case *pg_query.Node_InsertStmt:
		return "INSERT"
	case *pg_query.Node_UpdateStmt:
		return "UPDATE"
	case *pg_query.Node_DeleteStmt:
		return "DELETE"
	case *pg_query.Node_MergeStmt:
		return "MERGE"
	case *pg_query.Node_ExplainStmt:
		return "EXPLAIN"
	case *pg_query.Node_VariableSetStmt:
		return "SET"
	case *pg_query.Node_VariableShowStmt:
		return "SHOW"
	case *pg_query.Node_CopyStmt:
		return "COPY"
	case *pg_query.Node_DoStmt:
		return "DO"
	case *pg_query.Node_CallStmt:
		return "CALL"
	case *pg_query.Node_TransactionStmt:
		return "transaction control"
	case nil:
		return "empty statement"
	default:
		name := fmt.Sprintf("%T", node.GetNode())
		name = strings.TrimPrefix(name, "*pg_query.Node_")
		return strings.TrimSuffix(name, "Stmt")
	}
}
