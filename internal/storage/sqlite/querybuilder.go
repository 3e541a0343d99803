package sqlite

import (
	"fmt"
	"strings"

	"github.com/kanbanhq/kanban/internal/storage"
)

// The typed query layer. Column names used in SELECT, WHERE, and ORDER
// BY must belong to the declared table schema; unknown columns fail at
// build time rather than at execution. LIKE is restricted to text
// columns, IN requires a non-empty operand set, and DELETE without a
// predicate fails closed.

type colKind int

const (
	colText colKind = iota
	colInt
	colReal
	colTime
	colBool
)

// tableSchema declares the queryable columns of one table.
type tableSchema struct {
	name string
	cols map[string]colKind
}

var tasksTable = tableSchema{
	name: "tasks",
	cols: map[string]colKind{
		"id": colInt, "board_id": colInt, "column_id": colInt,
		"parent_task_id": colInt, "title": colText, "description": colText,
		"status": colText, "priority": colText, "priority_score": colReal,
		"due_date": colTime, "assignee": colText, "estimated_hours": colReal,
		"position": colInt, "created_at": colTime, "updated_at": colTime,
		"archived": colBool,
	},
}

var notesTable = tableSchema{
	name: "notes",
	cols: map[string]colKind{
		"id": colInt, "task_id": colInt, "board_id": colInt,
		"content": colText, "category": colText, "pinned": colBool,
		"created_at": colTime, "updated_at": colTime,
	},
}

var validOps = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"IS": true, "IS NOT": true,
}

// query accumulates a SELECT or DELETE statement. The first invalid
// column or operator poisons the builder; SQL() returns the error.
type query struct {
	table    tableSchema
	selects  []string
	wheres   []string
	args     []any
	orderBy  []string
	limit    int
	offset   int
	isDelete bool
	err      error
}

func (t tableSchema) selectCols(cols ...string) *query {
	q := &query{table: t, limit: -1, offset: -1}
	if len(cols) == 0 {
		q.err = fmt.Errorf("%s: select requires at least one column", t.name)
		return q
	}
	for _, c := range cols {
		if _, ok := t.cols[c]; !ok {
			q.err = fmt.Errorf("%s: unknown column %q in select", t.name, c)
			return q
		}
	}
	q.selects = cols
	return q
}

func (t tableSchema) deleteRows() *query {
	return &query{table: t, isDelete: true, limit: -1, offset: -1}
}

func (q *query) where(col, op string, val any) *query {
	if q.err != nil {
		return q
	}
	if _, ok := q.table.cols[col]; !ok {
		q.err = fmt.Errorf("%s: unknown column %q in where", q.table.name, col)
		return q
	}
	if !validOps[op] {
		q.err = fmt.Errorf("%s: invalid operator %q", q.table.name, op)
		return q
	}
	if val == nil {
		q.wheres = append(q.wheres, fmt.Sprintf("%s %s NULL", col, op))
		return q
	}
	q.wheres = append(q.wheres, fmt.Sprintf("%s %s ?", col, op))
	q.args = append(q.args, val)
	return q
}

func (q *query) whereLike(col, pattern string) *query {
	if q.err != nil {
		return q
	}
	kind, ok := q.table.cols[col]
	if !ok {
		q.err = fmt.Errorf("%s: unknown column %q in where", q.table.name, col)
		return q
	}
	if kind != colText {
		q.err = fmt.Errorf("%s: LIKE requires a text column, %q is not", q.table.name, col)
		return q
	}
	q.wheres = append(q.wheres, col+" LIKE ?")
	q.args = append(q.args, pattern)
	return q
}

func (q *query) whereIn(col string, vals []any) *query {
	if q.err != nil {
		return q
	}
	if _, ok := q.table.cols[col]; !ok {
		q.err = fmt.Errorf("%s: unknown column %q in where", q.table.name, col)
		return q
	}
	if len(vals) == 0 {
		q.err = fmt.Errorf("%s: IN requires a non-empty operand set for %q", q.table.name, col)
		return q
	}
	placeholders := strings.Repeat("?, ", len(vals)-1) + "?"
	q.wheres = append(q.wheres, fmt.Sprintf("%s IN (%s)", col, placeholders))
	q.args = append(q.args, vals...)
	return q
}

// whereRaw appends a pre-built predicate (subqueries against join
// tables). Callers own the SQL; it is not column-checked.
func (q *query) whereRaw(clause string, args ...any) *query {
	if q.err != nil {
		return q
	}
	q.wheres = append(q.wheres, clause)
	q.args = append(q.args, args...)
	return q
}

func (q *query) order(col, dir string) *query {
	if q.err != nil {
		return q
	}
	if _, ok := q.table.cols[col]; !ok {
		q.err = fmt.Errorf("%s: unknown column %q in order by", q.table.name, col)
		return q
	}
	d := strings.ToUpper(dir)
	if d != "ASC" && d != "DESC" {
		q.err = fmt.Errorf("%s: invalid sort direction %q", q.table.name, dir)
		return q
	}
	q.orderBy = append(q.orderBy, col+" "+d)
	return q
}

// orderNullsLast sorts by col with NULLs after all values.
func (q *query) orderNullsLast(col, dir string) *query {
	if q.err != nil {
		return q
	}
	if _, ok := q.table.cols[col]; !ok {
		q.err = fmt.Errorf("%s: unknown column %q in order by", q.table.name, col)
		return q
	}
	d := strings.ToUpper(dir)
	if d != "ASC" && d != "DESC" {
		q.err = fmt.Errorf("%s: invalid sort direction %q", q.table.name, dir)
		return q
	}
	q.orderBy = append(q.orderBy, fmt.Sprintf("(%s IS NULL), %s %s", col, col, d))
	return q
}

func (q *query) withLimit(limit, offset int) *query {
	q.limit = limit
	q.offset = offset
	return q
}

// build renders the final SQL and argument list.
func (q *query) build() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}

	var sb strings.Builder
	if q.isDelete {
		if len(q.wheres) == 0 {
			return "", nil, fmt.Errorf("%s: %w", q.table.name, storage.ErrNoPredicate)
		}
		sb.WriteString("DELETE FROM ")
		sb.WriteString(q.table.name)
	} else {
		sb.WriteString("SELECT ")
		sb.WriteString(strings.Join(q.selects, ", "))
		sb.WriteString(" FROM ")
		sb.WriteString(q.table.name)
	}

	if len(q.wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.wheres, " AND "))
	}
	if len(q.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(q.orderBy, ", "))
	}

	args := q.args
	if q.limit >= 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.limit)
		if q.offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, q.offset)
		}
	}
	return sb.String(), args, nil
}
