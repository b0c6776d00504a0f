package service

import (
	"github.com/noah-isme/sma-principal-report/internal/dto"
	"github.com/noah-isme/sma-principal-report/internal/models"
)

// KPI card keys, in presentation order.
const (
	KPIActiveClasses         = "activeClasses"
	KPIActiveStudents        = "activeStudents"
	KPIEducationalActivities = "educationalActivities"
	KPIAveragePerformance    = "averagePerformance"
	KPIExamStatus            = "examStatus"
	KPISkillCoverage         = "skillCoverage"
)

const unitPercent = "%"

// computeDelta compares the current value against the comparison period. A missing side
// yields a neutral delta with no value.
func computeDelta(current, previous *float64) dto.Delta {
	if current == nil || previous == nil {
		return dto.Delta{Direction: dto.DirectionNeutral}
	}
	value := round2(*current - *previous)
	delta := dto.Delta{Value: float64Ptr(value), Direction: dto.DirectionNeutral}
	if *previous != 0 {
		delta.Percent = float64Ptr(round2((*current - *previous) / *previous * 100))
	}
	switch {
	case value > 0:
		delta.Direction = dto.DirectionUp
	case value < 0:
		delta.Direction = dto.DirectionDown
	}
	return delta
}

func countCard(key, label string, current, previous int64) dto.KPICard {
	cur := float64(current)
	prev := float64(previous)
	return dto.KPICard{
		Key:      key,
		Label:    label,
		Value:    &cur,
		Previous: &prev,
		Delta:    computeDelta(&cur, &prev),
	}
}

func skillCoverage(row models.KPIRow) float64 {
	return ratioPercent(countOf(row.AssessedStudents), countOf(row.ActiveStudents))
}

func examTotal(row models.KPIRow) int64 {
	return countOf(row.ExamsDraft) + countOf(row.ExamsPublished) + countOf(row.ExamsActive)
}

// buildKPICards turns the raw period pair into the headline cards.
func buildKPICards(pair models.KPIPair) []dto.KPICard {
	cur, prev := pair.Current, pair.Previous

	classes := countCard(KPIActiveClasses, "Active classes", countOf(cur.TotalClasses), countOf(prev.TotalClasses))
	classes.Extra = map[string]interface{}{
		"newInPeriod":         countOf(cur.NewClasses),
		"newInPreviousPeriod": countOf(prev.NewClasses),
	}

	students := countCard(KPIActiveStudents, "Active students", countOf(cur.ActiveStudents), countOf(prev.ActiveStudents))
	activities := countCard(KPIEducationalActivities, "Educational activities", countOf(cur.Activities), countOf(prev.Activities))

	avgCur := averageOf(cur.AveragePerformance)
	avgPrev := averageOf(prev.AveragePerformance)
	performance := dto.KPICard{
		Key:      KPIAveragePerformance,
		Label:    "Average academic performance",
		Value:    avgCur,
		Previous: avgPrev,
		Unit:     unitPercent,
		Delta:    computeDelta(avgCur, avgPrev),
	}

	exams := countCard(KPIExamStatus, "Exams", examTotal(cur), examTotal(prev))
	exams.Extra = map[string]interface{}{
		models.ExamStatusDraft:     countOf(cur.ExamsDraft),
		models.ExamStatusPublished: countOf(cur.ExamsPublished),
		models.ExamStatusActive:    countOf(cur.ExamsActive),
	}

	covCur := skillCoverage(cur)
	covPrev := skillCoverage(prev)
	coverage := dto.KPICard{
		Key:      KPISkillCoverage,
		Label:    "Skill assessment coverage",
		Value:    &covCur,
		Previous: &covPrev,
		Unit:     unitPercent,
		Delta:    computeDelta(&covCur, &covPrev),
		Extra: map[string]interface{}{
			"assessedStudents": countOf(cur.AssessedStudents),
			"activeStudents":   countOf(cur.ActiveStudents),
		},
	}

	return []dto.KPICard{classes, students, activities, performance, exams, coverage}
}
