// Package sqlbuilder composes PostgreSQL predicates from typed clauses while owning
// positional parameter numbering, so fragments built by different callers never collide.
package sqlbuilder

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Operator is a comparison applied by a Clause.
type Operator string

const (
	OpEq        Operator = "="
	OpNotEq     Operator = "<>"
	OpGt        Operator = ">"
	OpGte       Operator = ">="
	OpLt        Operator = "<"
	OpLte       Operator = "<="
	OpAny       Operator = "= ANY"
	OpILikeAny  Operator = "ILIKE ANY"
	OpIn        Operator = "IN"
	OpIsNull    Operator = "IS NULL"
	OpIsNotNull Operator = "IS NOT NULL"
	opRaw       Operator = "RAW"
)

// Subquery renders itself into an outer builder, continuing its parameter numbering.
type Subquery interface {
	SQL(b *Builder) string
}

// Clause is a single `column operator value` predicate.
type Clause struct {
	Column   string
	Operator Operator
	Value    interface{}
}

// Eq builds an equality clause.
func Eq(column string, value interface{}) Clause {
	return Clause{Column: column, Operator: OpEq, Value: value}
}

// Gte builds a lower-bound clause.
func Gte(column string, value interface{}) Clause {
	return Clause{Column: column, Operator: OpGte, Value: value}
}

// Lte builds an upper-bound clause.
func Lte(column string, value interface{}) Clause {
	return Clause{Column: column, Operator: OpLte, Value: value}
}

// Any builds a `column = ANY($n)` membership clause. values must be a slice accepted by pq.Array.
func Any(column string, values interface{}) Clause {
	return Clause{Column: column, Operator: OpAny, Value: values}
}

// ILikeAny builds a case-insensitive `column ILIKE ANY($n)` pattern clause.
func ILikeAny(column string, patterns []string) Clause {
	return Clause{Column: column, Operator: OpILikeAny, Value: patterns}
}

// In builds a `column IN (subquery)` clause.
func In(column string, sub Subquery) Clause {
	return Clause{Column: column, Operator: OpIn, Value: sub}
}

// IsNull builds a `column IS NULL` clause.
func IsNull(column string) Clause {
	return Clause{Column: column, Operator: OpIsNull}
}

// Raw embeds a parameterless SQL fragment verbatim.
func Raw(fragment string) Clause {
	return Clause{Column: fragment, Operator: opRaw}
}

// Builder accumulates bound arguments for one statement.
type Builder struct {
	args []interface{}
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

// Bind appends a value and returns its placeholder.
func (b *Builder) Bind(value interface{}) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

// Args returns the bound arguments in placeholder order.
func (b *Builder) Args() []interface{} {
	return b.args
}

// Clause renders one clause, binding its value.
func (b *Builder) Clause(c Clause) string {
	switch c.Operator {
	case opRaw:
		return c.Column
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", c.Column, c.Operator)
	case OpAny, OpILikeAny:
		return fmt.Sprintf("%s %s(%s)", c.Column, c.Operator, b.Bind(pq.Array(c.Value)))
	case OpIn:
		sub, ok := c.Value.(Subquery)
		if !ok {
			panic(fmt.Sprintf("sqlbuilder: IN clause on %s requires a Subquery", c.Column))
		}
		return fmt.Sprintf("%s IN (%s)", c.Column, sub.SQL(b))
	default:
		return fmt.Sprintf("%s %s %s", c.Column, c.Operator, b.Bind(c.Value))
	}
}

// Where renders clauses joined by AND. An empty list renders TRUE.
func (b *Builder) Where(clauses ...Clause) string {
	if len(clauses) == 0 {
		return "TRUE"
	}
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		parts = append(parts, b.Clause(c))
	}
	return strings.Join(parts, " AND ")
}

// Between renders an inclusive range on column.
func (b *Builder) Between(column string, from, to interface{}) string {
	return b.Where(Gte(column, from), Lte(column, to))
}
