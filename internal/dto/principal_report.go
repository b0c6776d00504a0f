package dto

import "time"

// ReportVersion identifies the principal report payload schema.
const ReportVersion = 1

// Delta directions.
const (
	DirectionUp      = "up"
	DirectionDown    = "down"
	DirectionNeutral = "neutral"
)

// PrincipalReportResponse is the full principal-facing performance report.
type PrincipalReportResponse struct {
	Filters  ReportFilters  `json:"filters"`
	KPIs     ReportKPIs     `json:"kpis"`
	Trends   ReportTrends   `json:"trends"`
	Insights ReportInsights `json:"insights"`
	Actions  ReportActions  `json:"actions"`
	Meta     ReportMeta     `json:"meta"`
}

// ReportFilters echoes available options, resolved defaults and the applied selection.
type ReportFilters struct {
	Options  FilterOptions   `json:"options"`
	Defaults FilterDefaults  `json:"defaults"`
	Current  FilterSelection `json:"current"`
}

// FilterOptions lists selectable filter values.
type FilterOptions struct {
	AcademicYears []string       `json:"academicYears"`
	GradeLevels   []string       `json:"gradeLevels"`
	Classes       []ClassOption  `json:"classes"`
	Lessons       []LessonOption `json:"lessons"`
}

// ClassOption is one selectable class.
type ClassOption struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AcademicYear string `json:"academicYear"`
	GradeLevel   string `json:"gradeLevel"`
	Section      string `json:"section"`
}

// LessonOption is one selectable lesson.
type LessonOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FilterDefaults are the values applied when the request omits them.
type FilterDefaults struct {
	AcademicYear *string `json:"academicYear"`
	StartDate    string  `json:"startDate"`
	EndDate      string  `json:"endDate"`
}

// FilterSelection is the resolved filter state the report was computed with.
type FilterSelection struct {
	AcademicYear     *string  `json:"academicYear"`
	GradeLevels      []string `json:"gradeLevels"`
	ClassIDs         []string `json:"classIds"`
	LessonIDs        []string `json:"lessonIds"`
	StartDate        string   `json:"startDate"`
	EndDate          string   `json:"endDate"`
	ComparisonMetric string   `json:"comparisonMetric"`
	ComparisonOrder  string   `json:"comparisonOrder"`
}

// ReportKPIs groups the headline metric cards.
type ReportKPIs struct {
	Cards []KPICard `json:"cards"`
}

// KPICard is one headline metric with its change versus the comparison period.
type KPICard struct {
	Key      string                 `json:"key"`
	Label    string                 `json:"label"`
	Value    *float64               `json:"value"`
	Previous *float64               `json:"previous"`
	Unit     string                 `json:"unit,omitempty"`
	Delta    Delta                  `json:"delta"`
	Extra    map[string]interface{} `json:"extra,omitempty"`
}

// Delta describes the change from the comparison period to the current period.
type Delta struct {
	Value     *float64 `json:"value"`
	Percent   *float64 `json:"percent"`
	Direction string   `json:"direction"`
}

// ReportTrends groups the time series and the class comparison.
type ReportTrends struct {
	LearningActivityTrend []TrendPoint    `json:"learningActivityTrend"`
	ClassComparison       ClassComparison `json:"classComparison"`
}

// TrendPoint is one sparse activity bucket.
type TrendPoint struct {
	Date                 string   `json:"date"`
	ActivityCount        int64    `json:"activityCount"`
	AverageActivityScore *float64 `json:"averageActivityScore"`
}

// ClassComparison is the ranked class list for the selected metric and order.
type ClassComparison struct {
	Metric string                `json:"metric"`
	Order  string                `json:"order"`
	Items  []ClassComparisonItem `json:"items"`
}

// ClassComparisonItem is one ranked class.
type ClassComparisonItem struct {
	ClassID        string   `json:"classId"`
	ClassName      string   `json:"className"`
	GradeLevel     string   `json:"gradeLevel"`
	Section        string   `json:"section"`
	ActivityVolume int64    `json:"activityVolume"`
	AverageScore   *float64 `json:"averageScore"`
}

// ReportInsights groups teacher, student and AI usage insights.
type ReportInsights struct {
	Teachers []TeacherInsight `json:"teachers"`
	Students StudentInsights  `json:"students"`
	AIUsage  AIUsageInsight   `json:"aiUsage"`
}

// TeacherInsight summarises one teacher's assignments and activity.
type TeacherInsight struct {
	TeacherID      string     `json:"teacherId"`
	FullName       string     `json:"fullName"`
	ClassCount     int64      `json:"classCount"`
	ActivityCount  int64      `json:"activityCount"`
	AverageGrade   *float64   `json:"averageGrade"`
	LastActivityAt *time.Time `json:"lastActivityAt"`
}

// StudentInsights holds the three at-risk rankings.
type StudentInsights struct {
	AcademicDecline []StudentRisk `json:"academicDecline"`
	LowEngagement   []StudentRisk `json:"lowEngagement"`
	BehavioralRisk  []StudentRisk `json:"behavioralRisk"`
}

// StudentRisk is one ranked student. Only the fields relevant to the ranking are set.
type StudentRisk struct {
	StudentID       string   `json:"studentId"`
	FullName        string   `json:"fullName"`
	ClassName       *string  `json:"className"`
	CurrentAverage  *float64 `json:"currentAverage,omitempty"`
	PreviousAverage *float64 `json:"previousAverage,omitempty"`
	Delta           *float64 `json:"delta,omitempty"`
	ActivityCount   *int64   `json:"activityCount,omitempty"`
	AbsenceDays     *int64   `json:"absenceDays,omitempty"`
}

// AIUsageInsight summarises AI grading requests in the period.
type AIUsageInsight struct {
	TotalRequests       int64          `json:"totalRequests"`
	SuccessRate         float64        `json:"successRate"`
	ErrorRate           float64        `json:"errorRate"`
	AverageProcessingMs *float64       `json:"averageProcessingMs"`
	ByModel             []AIModelUsage `json:"byModel"`
}

// AIModelUsage counts requests for one model.
type AIModelUsage struct {
	Model string `json:"model"`
	Count int64  `json:"count"`
}

// ReportActions is the data-health action list.
type ReportActions struct {
	Items []ActionItem `json:"items"`
}

// ActionItem is one data-health finding.
type ActionItem struct {
	Key      string `json:"key"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Count    int64  `json:"count"`
}

// ReportMeta describes how the report was produced.
type ReportMeta struct {
	CacheKey    string    `json:"cacheKey"`
	GeneratedAt time.Time `json:"generatedAt"`
	Granularity string    `json:"granularity"`
	Version     int       `json:"version"`
}
