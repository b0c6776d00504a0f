package service

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-principal-report/internal/dto"
	"github.com/noah-isme/sma-principal-report/internal/models"
)

func nullInt(v int64) sql.NullInt64 { return sql.NullInt64{Int64: v, Valid: true} }

func nullFloat(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }

func TestComputeDelta(t *testing.T) {
	cases := []struct {
		name      string
		current   float64
		previous  float64
		value     float64
		percent   *float64
		direction string
	}{
		{name: "growth", current: 120, previous: 100, value: 20, percent: float64Ptr(20), direction: dto.DirectionUp},
		{name: "decline", current: 2, previous: 3, value: -1, percent: float64Ptr(-33.33), direction: dto.DirectionDown},
		{name: "flat", current: 5, previous: 5, value: 0, percent: float64Ptr(0), direction: dto.DirectionNeutral},
		{name: "zero previous", current: 7, previous: 0, value: 7, percent: nil, direction: dto.DirectionUp},
		{name: "both zero", current: 0, previous: 0, value: 0, percent: nil, direction: dto.DirectionNeutral},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			delta := computeDelta(float64Ptr(tc.current), float64Ptr(tc.previous))
			require.NotNil(t, delta.Value)
			assert.Equal(t, tc.value, *delta.Value)
			assert.Equal(t, tc.percent, delta.Percent)
			assert.Equal(t, tc.direction, delta.Direction)
		})
	}
}

func TestComputeDeltaWithMissingSide(t *testing.T) {
	delta := computeDelta(nil, float64Ptr(80))
	assert.Nil(t, delta.Value)
	assert.Nil(t, delta.Percent)
	assert.Equal(t, dto.DirectionNeutral, delta.Direction)
}

func TestSkillCoverage(t *testing.T) {
	row := models.KPIRow{ActiveStudents: nullInt(12), AssessedStudents: nullInt(3)}
	assert.Equal(t, 25.0, skillCoverage(row))

	empty := models.KPIRow{AssessedStudents: nullInt(3)}
	assert.Equal(t, 0.0, skillCoverage(empty))
}

func TestBuildKPICards(t *testing.T) {
	pair := models.KPIPair{
		Current: models.KPIRow{
			TotalClasses:       nullInt(12),
			NewClasses:         nullInt(2),
			ActiveStudents:     nullInt(12),
			Activities:         nullInt(30),
			AveragePerformance: nullFloat(78.456),
			ExamsDraft:         nullInt(1),
			ExamsPublished:     nullInt(2),
			ExamsActive:        nullInt(3),
			AssessedStudents:   nullInt(3),
		},
		Previous: models.KPIRow{
			TotalClasses:   nullInt(10),
			ActiveStudents: nullInt(0),
			Activities:     nullInt(20),
			ExamsDraft:     nullInt(4),
		},
	}

	cards := buildKPICards(pair)
	require.Len(t, cards, 6)

	keys := make([]string, 0, len(cards))
	for _, c := range cards {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, []string{KPIActiveClasses, KPIActiveStudents, KPIEducationalActivities, KPIAveragePerformance, KPIExamStatus, KPISkillCoverage}, keys)

	classes := cards[0]
	assert.Equal(t, 12.0, *classes.Value)
	assert.Equal(t, int64(2), classes.Extra["newInPeriod"])
	assert.Equal(t, 20.0, *classes.Delta.Percent)

	students := cards[1]
	assert.Nil(t, students.Delta.Percent)
	assert.Equal(t, dto.DirectionUp, students.Delta.Direction)

	performance := cards[3]
	require.NotNil(t, performance.Value)
	assert.Equal(t, 78.46, *performance.Value)
	assert.Nil(t, performance.Previous)
	assert.Nil(t, performance.Delta.Value)
	assert.Equal(t, dto.DirectionNeutral, performance.Delta.Direction)

	exams := cards[4]
	assert.Equal(t, 6.0, *exams.Value)
	assert.Equal(t, 4.0, *exams.Previous)
	assert.Equal(t, 50.0, *exams.Delta.Percent)
	assert.Equal(t, int64(3), exams.Extra[models.ExamStatusActive])

	coverage := cards[5]
	assert.Equal(t, 25.0, *coverage.Value)
	assert.Equal(t, 0.0, *coverage.Previous)
	assert.Nil(t, coverage.Delta.Percent)
}
