package models

import (
	"database/sql"
	"time"
)

// Comparison metrics accepted by the class ranking.
const (
	ComparisonMetricAverageScore   = "average_score"
	ComparisonMetricActivityVolume = "activity_volume"
)

// Comparison orders accepted by the class ranking.
const (
	ComparisonOrderTop    = "top"
	ComparisonOrderBottom = "bottom"
)

// Trend bucket widths.
const (
	GranularityDay  = "day"
	GranularityWeek = "week"
)

// Exam statuses counted by the exam KPI.
const (
	ExamStatusDraft     = "draft"
	ExamStatusPublished = "published"
	ExamStatusActive    = "active"
)

// PrincipalReportRequest is the raw query input for one report.
type PrincipalReportRequest struct {
	SchoolID         string   `validate:"required,max=64"`
	AcademicYear     string   `validate:"omitempty,max=32"`
	GradeLevels      []string `validate:"max=50,dive,max=32"`
	ClassIDs         []string `validate:"max=200,dive,max=64"`
	LessonIDs        []string `validate:"max=200,dive,max=64"`
	StartDate        string
	EndDate          string
	ComparisonMetric string `validate:"omitempty,oneof=average_score activity_volume"`
	ComparisonOrder  string `validate:"omitempty,oneof=top bottom"`
}

// ReportWindow holds every time range a report is computed over.
type ReportWindow struct {
	CurrentStart  time.Time
	CurrentEnd    time.Time
	PreviousStart time.Time
	PreviousEnd   time.Time
	WeekStart     time.Time
	WeekEnd       time.Time
	PrevWeekStart time.Time
	PrevWeekEnd   time.Time
	WeekDays      int
	Granularity   string
}

// Period is an inclusive time range.
type Period struct {
	Start time.Time
	End   time.Time
}

// Current returns the current period.
func (w ReportWindow) Current() Period { return Period{Start: w.CurrentStart, End: w.CurrentEnd} }

// Previous returns the comparison period.
func (w ReportWindow) Previous() Period { return Period{Start: w.PreviousStart, End: w.PreviousEnd} }

// Week returns the current week window.
func (w ReportWindow) Week() Period { return Period{Start: w.WeekStart, End: w.WeekEnd} }

// PrevWeek returns the week preceding the current week window.
func (w ReportWindow) PrevWeek() Period { return Period{Start: w.PrevWeekStart, End: w.PrevWeekEnd} }

// ReportFilter is the normalised filter state that scopes every aggregate.
type ReportFilter struct {
	SchoolID         string
	AcademicYear     string
	GradeLevels      []string
	ClassIDs         []string
	LessonIDs        []string
	Window           ReportWindow
	ComparisonMetric string
	ComparisonOrder  string
}

// ClassOption describes a class selectable in the report filters.
type ClassOption struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	AcademicYear string `db:"academic_year"`
	GradeLevel   string `db:"grade_level"`
	Section      string `db:"section"`
}

// LessonOption describes a subject selectable in the report filters.
type LessonOption struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

// ReportFilterOptions lists the values a principal may filter by.
type ReportFilterOptions struct {
	AcademicYears []string
	GradeLevels   []string
	Classes       []ClassOption
	Lessons       []LessonOption
}

// KPIRow is the raw, nullable aggregate result for one period.
type KPIRow struct {
	TotalClasses       sql.NullInt64   `db:"total_classes"`
	NewClasses         sql.NullInt64   `db:"new_classes"`
	ActiveStudents     sql.NullInt64   `db:"active_students"`
	Activities         sql.NullInt64   `db:"activities"`
	AveragePerformance sql.NullFloat64 `db:"average_performance"`
	ExamsDraft         sql.NullInt64   `db:"exams_draft"`
	ExamsPublished     sql.NullInt64   `db:"exams_published"`
	ExamsActive        sql.NullInt64   `db:"exams_active"`
	AssessedStudents   sql.NullInt64   `db:"assessed_students"`
}

// KPIPair carries the same aggregates for the current and comparison periods.
type KPIPair struct {
	Current  KPIRow
	Previous KPIRow
}

// TrendRow is one raw activity bucket.
type TrendRow struct {
	Bucket        time.Time       `db:"bucket"`
	ActivityCount sql.NullInt64   `db:"activity_count"`
	AverageScore  sql.NullFloat64 `db:"average_score"`
}

// ClassActivityRow is one class's raw activity aggregate.
type ClassActivityRow struct {
	ClassID       string          `db:"class_id"`
	ClassName     string          `db:"class_name"`
	GradeLevel    string          `db:"grade_level"`
	Section       string          `db:"section"`
	ActivityCount sql.NullInt64   `db:"activity_count"`
	AverageScore  sql.NullFloat64 `db:"average_score"`
}

// TeacherStatRow is one teacher's raw aggregate.
type TeacherStatRow struct {
	TeacherID      string          `db:"teacher_id"`
	FullName       string          `db:"full_name"`
	ClassCount     sql.NullInt64   `db:"class_count"`
	ActivityCount  sql.NullInt64   `db:"activity_count"`
	AverageGrade   sql.NullFloat64 `db:"average_grade"`
	LastActivityAt sql.NullTime    `db:"last_activity_at"`
}

// StudentWeekRow is one active student's raw week-over-week aggregate.
type StudentWeekRow struct {
	StudentID       string          `db:"student_id"`
	FullName        string          `db:"full_name"`
	ClassName       sql.NullString  `db:"class_name"`
	WeekAverage     sql.NullFloat64 `db:"week_average"`
	PrevWeekAverage sql.NullFloat64 `db:"prev_week_average"`
	WeekActivities  sql.NullInt64   `db:"week_activities"`
	WeekActiveDays  sql.NullInt64   `db:"week_active_days"`
}

// AIUsageTotalsRow is the raw AI usage aggregate.
type AIUsageTotalsRow struct {
	Total             sql.NullInt64   `db:"total"`
	Successful        sql.NullInt64   `db:"successful"`
	AverageProcessing sql.NullFloat64 `db:"average_processing_ms"`
}

// AIModelUsageRow counts AI requests per model.
type AIModelUsageRow struct {
	Model string        `db:"model"`
	Count sql.NullInt64 `db:"count"`
}

// AIUsageRows bundles the AI usage aggregates.
type AIUsageRows struct {
	Totals  AIUsageTotalsRow
	ByModel []AIModelUsageRow
}

// DataHealthRow holds the relational-completeness violation counts.
type DataHealthRow struct {
	ClassesWithoutTeacher   sql.NullInt64 `db:"classes_without_teacher"`
	StudentsWithoutGuardian sql.NullInt64 `db:"students_without_guardian"`
	ActivitiesMissingFiles  sql.NullInt64 `db:"activities_missing_files"`
	AIErrors                sql.NullInt64 `db:"ai_errors"`
	AuthErrors              sql.NullInt64 `db:"auth_errors"`
}
