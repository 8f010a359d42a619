package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between supported databases.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// ContainsFold renders a case-insensitive LIKE of col against the
	// pattern bound at placeholder. Backslash escapes wildcards.
	ContainsFold(col, placeholder string) string
}

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) ContainsFold(col, placeholder string) string {
	return col + " ILIKE " + placeholder + ` ESCAPE '\'`
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string          { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }

// SQLite's LIKE only folds ASCII, so both sides go through the fold
// function the sqlite store registers.
func (sqliteDialect) ContainsFold(col, placeholder string) string {
	return SQLiteFoldFunc + "(" + col + ") LIKE " + SQLiteFoldFunc + "(" + placeholder + `) ESCAPE '\'`
}

// SQLiteFoldFunc is the scalar function lower-casing text with full
// Unicode case mapping on SQLite connections.
const SQLiteFoldFunc = "fold"

var (
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
)

// Args accumulates bind arguments while rendering.
type Args struct {
	dialect Dialect
	values  []any
}

// NewArgs starts an argument list for d.
func NewArgs(d Dialect) *Args {
	return &Args{dialect: d}
}

// Add appends v and returns its placeholder.
func (a *Args) Add(v any) string {
	a.values = append(a.values, v)
	return a.dialect.Placeholder(len(a.values))
}

// Values returns the bind arguments in order.
func (a *Args) Values() []any { return a.values }

// Render renders p as a SQL boolean expression over the transactions table
// aliased as t. A nil predicate renders as true.
func Render(p Predicate, a *Args) string {
	switch p := p.(type) {
	case nil:
		return "1=1"
	case And:
		return join(p, " AND ", "1=1", a)
	case Or:
		return join(p, " OR ", "1=0", a)
	case AccountIn:
		return inList("t.account", len(p), func(i int) any { return p[i] }, a)
	case CostCenterIn:
		return inList("t.cost_center_id", len(p), func(i int) any { return p[i] }, a)
	case CostCenterNone:
		return "t.cost_center_id IS NULL"
	case SpendCategoryAny:
		in := inList("tsc.spend_category_id", len(p), func(i int) any { return p[i] }, a)
		return "EXISTS (SELECT 1 FROM transaction_spend_categories tsc WHERE tsc.transaction_id = t.id AND " + in + ")"
	case SpendCategoryNone:
		return "NOT EXISTS (SELECT 1 FROM transaction_spend_categories tsc WHERE tsc.transaction_id = t.id)"
	case DateFrom:
		return "t.date >= " + a.Add(p.Date.String())
	case DateTo:
		return "t.date <= " + a.Add(p.Date.String())
	case AmountMin:
		return "t.amount >= " + a.Add(p.Amount.String())
	case AmountMax:
		return "t.amount <= " + a.Add(p.Amount.String())
	case DescriptionContains:
		pattern := "%" + EscapeLike(p.Term) + "%"
		return a.dialect.ContainsFold("t.description", a.Add(pattern))
	default:
		panic(fmt.Sprintf("filter: unknown predicate %T", p))
	}
}

func join(ps []Predicate, sep, empty string, a *Args) string {
	if len(ps) == 0 {
		return empty
	}
	if len(ps) == 1 {
		return Render(ps[0], a)
	}
	parts := make([]string, len(ps))
	for i, c := range ps {
		parts[i] = Render(c, a)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func inList(col string, n int, value func(int) any, a *Args) string {
	if n == 0 {
		return "1=0"
	}
	marks := make([]string, n)
	for i := range n {
		marks[i] = a.Add(value(i))
	}
	return col + " IN (" + strings.Join(marks, ", ") + ")"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE wildcards so term matches literally.
func EscapeLike(term string) string {
	return likeEscaper.Replace(term)
}

// OrderBy renders s as an ORDER BY list over alias t, including the id
// tiebreaker.
func (s Sort) OrderBy() string {
	col := "t.date"
	switch s.Field {
	case SortByAmount:
		col = "t.amount"
	case SortByDescription:
		col = "t.description"
	case SortByAccount:
		col = "t.account"
	}
	dir := "ASC"
	if s.Order == Desc {
		dir = "DESC"
	}
	return col + " " + dir + ", t.id " + dir
}
