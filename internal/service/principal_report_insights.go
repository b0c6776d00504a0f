package service

import (
	"sort"

	"github.com/noah-isme/sma-principal-report/internal/dto"
	"github.com/noah-isme/sma-principal-report/internal/models"
)

// Action item severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Action item keys.
const (
	ActionClassesWithoutTeacher   = "classesWithoutTeacher"
	ActionStudentsWithoutGuardian = "studentsWithoutGuardian"
	ActionActivitiesMissingFiles  = "activitiesMissingFiles"
	ActionAIErrors                = "aiErrors"
	ActionAuthErrors              = "authErrors"
)

func buildTrend(rows []models.TrendRow) []dto.TrendPoint {
	points := make([]dto.TrendPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, dto.TrendPoint{
			Date:                 row.Bucket.Format(reportDateLayout),
			ActivityCount:        countOf(row.ActivityCount),
			AverageActivityScore: averageOf(row.AverageScore),
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// RankClasses orders classes by metric and keeps the first five. Classes without a value for
// the metric always trail the ranked ones; equal values keep their input order.
func RankClasses(rows []models.ClassActivityRow, metric, order string) []dto.ClassComparisonItem {
	items := make([]dto.ClassComparisonItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.ClassComparisonItem{
			ClassID:        row.ClassID,
			ClassName:      row.ClassName,
			GradeLevel:     row.GradeLevel,
			Section:        row.Section,
			ActivityVolume: countOf(row.ActivityCount),
			AverageScore:   averageOf(row.AverageScore),
		})
	}

	value := func(item dto.ClassComparisonItem) (float64, bool) {
		if metric == models.ComparisonMetricActivityVolume {
			return float64(item.ActivityVolume), true
		}
		if item.AverageScore == nil {
			return 0, false
		}
		return *item.AverageScore, true
	}
	ascending := order == models.ComparisonOrderBottom

	sort.SliceStable(items, func(i, j int) bool {
		a, aok := value(items[i])
		b, bok := value(items[j])
		if !aok || !bok {
			return aok && !bok
		}
		if ascending {
			return a < b
		}
		return a > b
	})

	if len(items) > classComparisonLimit {
		items = items[:classComparisonLimit]
	}
	return items
}

func buildTeacherInsights(rows []models.TeacherStatRow) []dto.TeacherInsight {
	out := make([]dto.TeacherInsight, 0, len(rows))
	for _, row := range rows {
		out = append(out, dto.TeacherInsight{
			TeacherID:      row.TeacherID,
			FullName:       row.FullName,
			ClassCount:     countOf(row.ClassCount),
			ActivityCount:  countOf(row.ActivityCount),
			AverageGrade:   averageOf(row.AverageGrade),
			LastActivityAt: timeOf(row.LastActivityAt),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ActivityCount != out[j].ActivityCount {
			return out[i].ActivityCount > out[j].ActivityCount
		}
		return out[i].FullName < out[j].FullName
	})
	return out
}

type rankedStudent struct {
	risk  dto.StudentRisk
	score float64
}

// topStudents sorts by score (ascending unless desc) then name and keeps the first ten.
func topStudents(ranked []rankedStudent, desc bool) []dto.StudentRisk {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			if desc {
				return ranked[i].score > ranked[j].score
			}
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].risk.FullName < ranked[j].risk.FullName
	})
	if len(ranked) > studentRankingLimit {
		ranked = ranked[:studentRankingLimit]
	}
	out := make([]dto.StudentRisk, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.risk)
	}
	return out
}

// rankStudents builds the three at-risk rankings. Absence is a proxy: days in the week window
// without any recorded activity.
func rankStudents(rows []models.StudentWeekRow, weekDays int) dto.StudentInsights {
	var decline, engagement, absence []rankedStudent

	for _, row := range rows {
		base := dto.StudentRisk{
			StudentID: row.StudentID,
			FullName:  row.FullName,
			ClassName: stringOf(row.ClassName),
		}

		current := averageOf(row.WeekAverage)
		previous := averageOf(row.PrevWeekAverage)
		if current != nil && previous != nil {
			d := round2(*current - *previous)
			risk := base
			risk.CurrentAverage = current
			risk.PreviousAverage = previous
			risk.Delta = float64Ptr(d)
			decline = append(decline, rankedStudent{risk: risk, score: d})
		}

		activities := countOf(row.WeekActivities)
		lowRisk := base
		lowRisk.ActivityCount = int64Ptr(activities)
		engagement = append(engagement, rankedStudent{risk: lowRisk, score: float64(activities)})

		days := int64(weekDays) - countOf(row.WeekActiveDays)
		if days < 0 {
			days = 0
		}
		absRisk := base
		absRisk.AbsenceDays = int64Ptr(days)
		absence = append(absence, rankedStudent{risk: absRisk, score: float64(days)})
	}

	return dto.StudentInsights{
		AcademicDecline: topStudents(decline, false),
		LowEngagement:   topStudents(engagement, false),
		BehavioralRisk:  topStudents(absence, true),
	}
}

func summariseAIUsage(rows models.AIUsageRows) dto.AIUsageInsight {
	total := countOf(rows.Totals.Total)
	insight := dto.AIUsageInsight{
		TotalRequests:       total,
		AverageProcessingMs: averageOf(rows.Totals.AverageProcessing),
		ByModel:             make([]dto.AIModelUsage, 0, len(rows.ByModel)),
	}
	if total > 0 {
		insight.SuccessRate = ratioPercent(countOf(rows.Totals.Successful), total)
		insight.ErrorRate = round2(100 - insight.SuccessRate)
	}
	for _, m := range rows.ByModel {
		name := m.Model
		if name == "" {
			name = "Unknown"
		}
		insight.ByModel = append(insight.ByModel, dto.AIModelUsage{Model: name, Count: countOf(m.Count)})
	}
	return insight
}

func buildActions(row models.DataHealthRow) []dto.ActionItem {
	candidates := []dto.ActionItem{
		{Key: ActionClassesWithoutTeacher, Severity: SeverityHigh, Title: "Classes without an assigned teacher", Count: countOf(row.ClassesWithoutTeacher)},
		{Key: ActionStudentsWithoutGuardian, Severity: SeverityMedium, Title: "Students without a linked guardian", Count: countOf(row.StudentsWithoutGuardian)},
		{Key: ActionActivitiesMissingFiles, Severity: SeverityLow, Title: "Activities missing question or answer files", Count: countOf(row.ActivitiesMissingFiles)},
		{Key: ActionAIErrors, Severity: SeverityHigh, Title: "AI grading errors", Count: countOf(row.AIErrors)},
		{Key: ActionAuthErrors, Severity: SeverityMedium, Title: "Authentication errors", Count: countOf(row.AuthErrors)},
	}
	items := make([]dto.ActionItem, 0, len(candidates))
	for _, c := range candidates {
		if c.Count > 0 {
			items = append(items, c)
		}
	}
	return items
}
