// Package demo holds the optional backends the reference server can
// enable: a read-only SQLite table browser and a synthetic sensor
// publisher. They exist so a fresh install has something to query and
// something to stream.
package demo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/format"
)

// maxQueryRows caps what one query returns to the client.
const maxQueryRows = 1000

// TableBrowser serves read-only SQL over a SQLite database through the
// show/query commands.
type TableBrowser struct {
	db  *sql.DB
	log *logrus.Entry
}

// OpenBrowser opens the database at path. ":memory:" opens an
// in-memory database seeded with sample tables; files are opened
// read-only.
func OpenBrowser(path string, logger *logrus.Logger) (*TableBrowser, error) {
	dsn := path
	seed := false
	if path == ":memory:" {
		seed = true
	} else {
		dsn = "file:" + path + "?mode=ro"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// The in-memory database vanishes if its only connection closes.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	b := &TableBrowser{db: db, log: logger.WithField("component", "demo.sqlite")}
	if seed {
		if err := b.seedSampleData(); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed sample data: %w", err)
		}
	}
	return b, nil
}

// Close releases the database.
func (b *TableBrowser) Close() error {
	return b.db.Close()
}

// Register installs the show and query handlers.
func (b *TableBrowser) Register(registry *command.Registry) {
	registry.RegisterFunc("show", "SHOW TABLES lists the browsable tables", b.handleShow)
	registry.RegisterFunc("query", "run a read-only SQL query", b.handleQuery)
	registry.RegisterFunc("select", "run a SELECT directly", b.handleSelect)
}

func (b *TableBrowser) handleShow(ctx context.Context, cmd command.ParsedCommand) command.Result {
	if len(cmd.Arguments) == 0 || !strings.EqualFold(cmd.Arguments[0], "tables") {
		return command.Fail("usage: SHOW TABLES")
	}
	return b.runQuery(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
}

// handleQuery runs `query <sql>`. The raw line keeps the statement's
// quoting intact; only the head token is stripped.
func (b *TableBrowser) handleQuery(ctx context.Context, cmd command.ParsedCommand) command.Result {
	var stmt string
	if _, rest, found := strings.Cut(strings.TrimSpace(cmd.Raw), " "); found {
		stmt = strings.TrimSpace(rest)
	}
	if stmt == "" {
		return command.Fail("usage: query <sql>")
	}
	if !readOnlyStatement(stmt) {
		return command.Fail("only SELECT queries are allowed")
	}
	return b.runQuery(ctx, stmt)
}

// handleSelect lets `SELECT ...` run without the query prefix.
func (b *TableBrowser) handleSelect(ctx context.Context, cmd command.ParsedCommand) command.Result {
	stmt := strings.TrimSpace(cmd.Raw)
	if !readOnlyStatement(stmt) {
		return command.Fail("only SELECT queries are allowed")
	}
	return b.runQuery(ctx, stmt)
}

// readOnlyStatement accepts single SELECT/WITH statements.
func readOnlyStatement(stmt string) bool {
	head := strings.ToUpper(strings.TrimSpace(stmt))
	if !strings.HasPrefix(head, "SELECT") && !strings.HasPrefix(head, "WITH") {
		return false
	}
	// No statement stacking.
	return !strings.Contains(strings.TrimRight(stmt, "; \t\n"), ";")
}

func (b *TableBrowser) runQuery(ctx context.Context, stmt string) command.Result {
	rows, err := b.db.QueryContext(ctx, stmt)
	if err != nil {
		return command.Failf("query failed: %v", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return command.Failf("query failed: %v", err)
	}

	var out [][]any
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return command.Failf("scan failed: %v", err)
		}
		for i, v := range cells {
			if raw, ok := v.([]byte); ok {
				cells[i] = string(raw)
			}
		}
		out = append(out, cells)
		if len(out) >= maxQueryRows {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return command.Failf("query failed: %v", err)
	}

	return command.OK(format.TableData(cols, out)).WithMeta("row_count", len(out))
}

// seedSampleData creates the tables the in-memory demo serves.
func (b *TableBrowser) seedSampleData() error {
	stmts := []string{
		`CREATE TABLE users (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE products (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			price REAL NOT NULL,
			stock INTEGER NOT NULL
		)`,
		`CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			product_id INTEGER NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL
		)`,
		`INSERT INTO users (id, name, email, created_at) VALUES
			(1, 'Alice', 'alice@example.com', '2024-01-15'),
			(2, 'Bob', 'bob@example.com', '2024-02-20'),
			(3, 'Carol', 'carol@example.com', '2024-03-08')`,
		`INSERT INTO products (id, name, price, stock) VALUES
			(1, 'Widget', 9.99, 120),
			(2, 'Gadget', 24.50, 38),
			(3, 'Gizmo', 3.75, 500)`,
		`INSERT INTO orders (id, user_id, product_id, quantity) VALUES
			(1, 1, 2, 1),
			(2, 2, 1, 4),
			(3, 1, 3, 10)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
