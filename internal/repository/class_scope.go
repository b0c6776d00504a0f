package repository

import (
	"github.com/noah-isme/sma-principal-report/internal/models"
	"github.com/noah-isme/sma-principal-report/pkg/sqlbuilder"
)

// ClassScope is the canonical filtered class set of one report request. It is built once
// and embedded as a subquery by every aggregate so no query derives its own scope.
type ClassScope struct {
	clauses []sqlbuilder.Clause
}

// NewClassScope composes the school, academic year, grade level and class id predicates.
func NewClassScope(filter models.ReportFilter) *ClassScope {
	clauses := []sqlbuilder.Clause{sqlbuilder.Eq("sc.school_id", filter.SchoolID)}
	if filter.AcademicYear != "" {
		clauses = append(clauses, sqlbuilder.Eq("sc.academic_year", filter.AcademicYear))
	}
	if len(filter.GradeLevels) > 0 {
		clauses = append(clauses, sqlbuilder.Any("sc.grade_level", filter.GradeLevels))
	}
	if len(filter.ClassIDs) > 0 {
		clauses = append(clauses, sqlbuilder.Any("sc.id", filter.ClassIDs))
	}
	return &ClassScope{clauses: clauses}
}

// Clauses returns a copy of the scope predicates.
func (s *ClassScope) Clauses() []sqlbuilder.Clause {
	out := make([]sqlbuilder.Clause, len(s.clauses))
	copy(out, s.clauses)
	return out
}

// SQL renders the matching class ids, binding parameters into b.
func (s *ClassScope) SQL(b *sqlbuilder.Builder) string {
	return "SELECT sc.id FROM classes sc WHERE " + b.Where(s.clauses...)
}

// In returns a clause restricting column to the scoped class ids.
func (s *ClassScope) In(column string) sqlbuilder.Clause {
	return sqlbuilder.In(column, s)
}
