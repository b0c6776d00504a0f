package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-principal-report/internal/models"
	"github.com/noah-isme/sma-principal-report/pkg/sqlbuilder"
)

func TestClassScopeSchoolOnly(t *testing.T) {
	b := sqlbuilder.New()

	sql := NewClassScope(models.ReportFilter{SchoolID: "school-1"}).SQL(b)

	assert.Equal(t, "SELECT sc.id FROM classes sc WHERE sc.school_id = $1", sql)
	assert.Equal(t, []interface{}{"school-1"}, b.Args())
}

func TestClassScopeAllFilters(t *testing.T) {
	b := sqlbuilder.New()
	scope := NewClassScope(models.ReportFilter{
		SchoolID:     "school-1",
		AcademicYear: "1403-1404",
		GradeLevels:  []string{"7"},
		ClassIDs:     []string{"class-a", "class-b"},
	})

	sql := b.Where(scope.In("a.class_id"), sqlbuilder.Gte("a.activity_date", "2024-01-01"))

	assert.Equal(t, "a.class_id IN (SELECT sc.id FROM classes sc WHERE sc.school_id = $1 AND sc.academic_year = $2 AND sc.grade_level = ANY($3) AND sc.id = ANY($4)) AND a.activity_date >= $5", sql)
	assert.Len(t, b.Args(), 5)
}

// Adding a class-id filter only ever appends a conjunct, so the set cannot grow.
func TestClassScopeClassFilterNarrows(t *testing.T) {
	base := models.ReportFilter{SchoolID: "school-1", AcademicYear: "1403-1404"}
	narrowed := base
	narrowed.ClassIDs = []string{"class-a"}

	baseClauses := NewClassScope(base).Clauses()
	narrowedClauses := NewClassScope(narrowed).Clauses()

	assert.Equal(t, baseClauses, narrowedClauses[:len(baseClauses)])
	assert.Len(t, narrowedClauses, len(baseClauses)+1)
}

func TestClassScopeReusedAcrossQueriesRebindsFreshly(t *testing.T) {
	scope := NewClassScope(models.ReportFilter{SchoolID: "school-1"})

	first := sqlbuilder.New()
	first.Bind("x")
	second := sqlbuilder.New()

	assert.Equal(t, "SELECT sc.id FROM classes sc WHERE sc.school_id = $2", scope.SQL(first))
	assert.Equal(t, "SELECT sc.id FROM classes sc WHERE sc.school_id = $1", scope.SQL(second))
}
