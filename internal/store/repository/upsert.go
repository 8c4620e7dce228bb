package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fortuna/propline/internal/store"
)

// upsertStatement describes a multi-row INSERT ... ON CONFLICT (conflict_key) for one table.
type upsertStatement struct {
	table   string
	columns []string
	// update is the DO UPDATE SET list; identity columns never appear in it.
	update []assignment
}

// assignment is one "column = expr" clause applied on conflict.
type assignment struct {
	column string
	expr   string
}

// overwrite takes the incoming value as is.
func overwrite(cols ...string) []assignment {
	out := make([]assignment, 0, len(cols))
	for _, col := range cols {
		out = append(out, assignment{col, "EXCLUDED." + col})
	}
	return out
}

// fillIn takes the incoming text unless it is empty.
func fillIn(table string, cols ...string) []assignment {
	out := make([]assignment, 0, len(cols))
	for _, col := range cols {
		out = append(out, assignment{col, fmt.Sprintf("COALESCE(NULLIF(EXCLUDED.%s, ''), %s.%s)", col, table, col)})
	}
	return out
}

// opponentFrom replaces the stored opponent only with a resolved one, so a later UNK never
// erases a known opponent.
func opponentFrom(table string) []assignment {
	return []assignment{
		{"opponent", fmt.Sprintf("CASE WHEN EXCLUDED.opponent_known THEN EXCLUDED.opponent ELSE %s.opponent END", table)},
		{"opponent_known", fmt.Sprintf("%s.opponent_known OR EXCLUDED.opponent_known", table)},
	}
}

func assignments(groups ...[]assignment) []assignment {
	var out []assignment
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func (s upsertStatement) sql(rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", s.table, strings.Join(s.columns, ", "))

	n := len(s.columns)
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < n; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*n+j+1)
		}
		b.WriteByte(')')
	}

	b.WriteString(" ON CONFLICT (conflict_key) DO UPDATE SET ")
	for _, a := range s.update {
		fmt.Fprintf(&b, "%s = %s, ", a.column, a.expr)
	}
	b.WriteString("updated_at = NOW() RETURNING conflict_key, (xmax = 0) AS inserted")
	return b.String()
}

// exec runs the statement for rows in a single transaction. Either every row applies or none does.
func (s upsertStatement) exec(ctx context.Context, db *sql.DB, rows int, args []interface{}) ([]store.UpsertedRow, error) {
	if rows == 0 {
		return nil, nil
	}
	if len(args) != rows*len(s.columns) {
		return nil, fmt.Errorf("upsert %s: %d args for %d rows of %d columns", s.table, len(args), rows, len(s.columns))
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert %s: %w", s.table, err)
	}
	defer tx.Rollback()

	result, err := tx.QueryContext(ctx, s.sql(rows), args...)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", s.table, err)
	}

	out := make([]store.UpsertedRow, 0, rows)
	for result.Next() {
		var row store.UpsertedRow
		if err := result.Scan(&row.ConflictKey, &row.Inserted); err != nil {
			result.Close()
			return nil, fmt.Errorf("scan upsert %s: %w", s.table, err)
		}
		out = append(out, row)
	}
	if err := result.Err(); err != nil {
		result.Close()
		return nil, fmt.Errorf("upsert %s: %w", s.table, err)
	}
	result.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert %s: %w", s.table, err)
	}
	return out, nil
}
