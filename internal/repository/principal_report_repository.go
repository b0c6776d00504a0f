package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-principal-report/internal/models"
	"github.com/noah-isme/sma-principal-report/pkg/sqlbuilder"
)

// gradePercentExpr normalises a grade row to a percentage; rows with a zero max yield NULL and drop out of AVG.
const gradePercentExpr = `CASE
            WHEN g.percentage IS NOT NULL THEN g.percentage
            WHEN g.max_grade_value > 0 THEN g.grade_value / g.max_grade_value * 100
        END`

var aiErrorPatterns = []string{"%openai%", "%gemini%", "%ai_grading%", "%/ai/%", "% ai %", "%ai model%", "%model_name%"}

var authErrorStatuses = []int64{401, 403}

// PrincipalReportRepository exposes the read-only aggregates behind the principal report.
type PrincipalReportRepository struct {
	db *sqlx.DB
}

// NewPrincipalReportRepository instantiates the repository.
func NewPrincipalReportRepository(db *sqlx.DB) *PrincipalReportRepository {
	return &PrincipalReportRepository{db: db}
}

// Ping verifies database connectivity.
func (r *PrincipalReportRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Open returns a reader for one report. A pinned reader checks out a single connection that
// serves every query until Close; an unpinned reader draws from the pool and is safe for
// concurrent use.
func (r *PrincipalReportRepository) Open(ctx context.Context, pinned bool) (*PrincipalReportReader, error) {
	if !pinned {
		return &PrincipalReportReader{q: r.db}, nil
	}
	conn, err := r.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout report connection: %w", err)
	}
	return &PrincipalReportReader{q: conn, conn: conn}, nil
}

// PrincipalReportReader runs the report aggregates against one queryer.
type PrincipalReportReader struct {
	q    sqlx.QueryerContext
	conn *sqlx.Conn
}

// Close releases the pinned connection, if any.
func (r *PrincipalReportReader) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// FilterOptions lists the school's selectable academic years, grade levels, classes and lessons.
func (r *PrincipalReportReader) FilterOptions(ctx context.Context, schoolID string) (models.ReportFilterOptions, error) {
	var opts models.ReportFilterOptions

	if err := sqlx.SelectContext(ctx, r.q, &opts.AcademicYears, `SELECT DISTINCT c.academic_year
        FROM classes c
        WHERE c.school_id = $1 AND COALESCE(c.academic_year, '') <> ''
        ORDER BY c.academic_year DESC`, schoolID); err != nil {
		return opts, fmt.Errorf("query academic year options: %w", err)
	}

	if err := sqlx.SelectContext(ctx, r.q, &opts.GradeLevels, `SELECT DISTINCT c.grade_level
        FROM classes c
        WHERE c.school_id = $1 AND COALESCE(c.grade_level, '') <> ''
        ORDER BY c.grade_level`, schoolID); err != nil {
		return opts, fmt.Errorf("query grade level options: %w", err)
	}

	if err := sqlx.SelectContext(ctx, r.q, &opts.Classes, `SELECT c.id, COALESCE(c.name, '') AS name,
        COALESCE(c.academic_year, '') AS academic_year, COALESCE(c.grade_level, '') AS grade_level,
        COALESCE(c.section, '') AS section
        FROM classes c
        WHERE c.school_id = $1
        ORDER BY c.academic_year DESC, c.grade_level, c.section, c.id`, schoolID); err != nil {
		return opts, fmt.Errorf("query class options: %w", err)
	}

	if err := sqlx.SelectContext(ctx, r.q, &opts.Lessons, `SELECT DISTINCT s.id, s.name
        FROM subjects s
        JOIN teacher_assignments ta ON ta.subject_id = s.id AND ta.removed_at IS NULL
        JOIN classes c ON c.id = ta.class_id
        WHERE c.school_id = $1
        ORDER BY s.name, s.id`, schoolID); err != nil {
		return opts, fmt.Errorf("query lesson options: %w", err)
	}

	return opts, nil
}

// KPIs runs the same-shape KPI aggregate for the current and comparison periods.
func (r *PrincipalReportReader) KPIs(ctx context.Context, scope *ClassScope, filter models.ReportFilter) (models.KPIPair, error) {
	var pair models.KPIPair
	current, err := r.kpiRow(ctx, scope, filter, filter.Window.Current())
	if err != nil {
		return pair, fmt.Errorf("query current kpis: %w", err)
	}
	previous, err := r.kpiRow(ctx, scope, filter, filter.Window.Previous())
	if err != nil {
		return pair, fmt.Errorf("query previous kpis: %w", err)
	}
	pair.Current = current
	pair.Previous = previous
	return pair, nil
}

func (r *PrincipalReportReader) kpiRow(ctx context.Context, scope *ClassScope, filter models.ReportFilter, period models.Period) (models.KPIRow, error) {
	b := sqlbuilder.New()
	var q strings.Builder

	q.WriteString("SELECT\n")
	q.WriteString("    (SELECT COUNT(*) FROM classes c WHERE ")
	q.WriteString(b.Where(scope.In("c.id"), sqlbuilder.Lte("c.created_at", period.End)))
	q.WriteString(") AS total_classes,\n")

	q.WriteString("    (SELECT COUNT(*) FROM classes c WHERE ")
	q.WriteString(b.Where(scope.In("c.id"), sqlbuilder.Gte("c.created_at", period.Start), sqlbuilder.Lte("c.created_at", period.End)))
	q.WriteString(") AS new_classes,\n")

	q.WriteString("    (SELECT COUNT(DISTINCT cs.student_id) FROM class_students cs JOIN users u ON u.id = cs.student_id WHERE ")
	q.WriteString(b.Where(append(activeStudentClauses(scope, "cs"), sqlbuilder.Lte("cs.joined_at", period.End))...))
	q.WriteString(") AS active_students,\n")

	q.WriteString("    (SELECT COUNT(*) FROM educational_activities a WHERE ")
	q.WriteString(b.Where(activityClauses(scope, filter, period)...))
	q.WriteString(") AS activities,\n")

	q.WriteString("    (SELECT AVG(" + gradePercentExpr + ") FROM grades g WHERE ")
	q.WriteString(b.Where(gradeClauses(scope, filter, period)...))
	q.WriteString(") AS average_performance,\n")

	for _, status := range []string{models.ExamStatusDraft, models.ExamStatusPublished, models.ExamStatusActive} {
		q.WriteString("    (SELECT COUNT(*) FROM exams e WHERE ")
		q.WriteString(b.Where(append(examClauses(scope, filter, period), sqlbuilder.Eq("e.status", status))...))
		q.WriteString(") AS exams_" + status + ",\n")
	}

	q.WriteString("    (SELECT COUNT(DISTINCT x.student_id) FROM (")
	for i, table := range []string{"life_skills_assessments", "active_life_assessments", "growth_development_assessments"} {
		if i > 0 {
			q.WriteString(" UNION ALL ")
		}
		q.WriteString("SELECT s.student_id FROM " + table + " s WHERE ")
		q.WriteString(b.Where(assessmentClauses(scope, filter, period)...))
	}
	q.WriteString(") x JOIN class_students cs ON cs.student_id = x.student_id JOIN users u ON u.id = cs.student_id WHERE ")
	q.WriteString(b.Where(append(activeStudentClauses(scope, "cs"), sqlbuilder.Lte("cs.joined_at", period.End))...))
	q.WriteString(") AS assessed_students")

	var row models.KPIRow
	if err := sqlx.GetContext(ctx, r.q, &row, q.String(), b.Args()...); err != nil {
		return row, err
	}
	return row, nil
}

// ActivityTrend buckets in-period activities by the window granularity. Empty buckets are absent.
func (r *PrincipalReportReader) ActivityTrend(ctx context.Context, scope *ClassScope, filter models.ReportFilter) ([]models.TrendRow, error) {
	unit := models.GranularityDay
	if filter.Window.Granularity == models.GranularityWeek {
		unit = models.GranularityWeek
	}
	b := sqlbuilder.New()
	query := fmt.Sprintf(`SELECT date_trunc('%s', a.activity_date) AS bucket,
        COUNT(*) AS activity_count,
        AVG(a.quantitative_score) AS average_score
        FROM educational_activities a
        WHERE %s
        GROUP BY 1
        ORDER BY 1`, unit, b.Where(activityClauses(scope, filter, filter.Window.Current())...))

	var rows []models.TrendRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, b.Args()...); err != nil {
		return nil, fmt.Errorf("query activity trend: %w", err)
	}
	return rows, nil
}

// ClassComparison returns every scoped class with its in-period activity count and average score.
func (r *PrincipalReportReader) ClassComparison(ctx context.Context, scope *ClassScope, filter models.ReportFilter) ([]models.ClassActivityRow, error) {
	b := sqlbuilder.New()
	period := filter.Window.Current()
	joinClauses := []sqlbuilder.Clause{
		sqlbuilder.Raw("a.class_id = c.id"),
		sqlbuilder.Gte("a.activity_date", period.Start),
		sqlbuilder.Lte("a.activity_date", period.End),
	}
	if len(filter.LessonIDs) > 0 {
		joinClauses = append(joinClauses, sqlbuilder.Any("a.subject_id", filter.LessonIDs))
	}
	join := b.Where(joinClauses...)
	where := b.Where(scope.In("c.id"))
	query := fmt.Sprintf(`SELECT c.id AS class_id, COALESCE(c.name, '') AS class_name,
        COALESCE(c.grade_level, '') AS grade_level, COALESCE(c.section, '') AS section,
        COUNT(a.id) AS activity_count,
        AVG(a.quantitative_score) AS average_score
        FROM classes c
        LEFT JOIN educational_activities a ON %s
        WHERE %s
        GROUP BY c.id, c.name, c.grade_level, c.section
        ORDER BY c.grade_level, c.section, c.id`, join, where)

	var rows []models.ClassActivityRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, b.Args()...); err != nil {
		return nil, fmt.Errorf("query class comparison: %w", err)
	}
	return rows, nil
}

// TeacherStats aggregates every active teacher holding at least one live assignment inside the scope.
func (r *PrincipalReportReader) TeacherStats(ctx context.Context, scope *ClassScope, filter models.ReportFilter) ([]models.TeacherStatRow, error) {
	b := sqlbuilder.New()
	period := filter.Window.Current()

	assignedClauses := []sqlbuilder.Clause{
		sqlbuilder.IsNull("ta.removed_at"),
		sqlbuilder.Raw("t.active = TRUE"),
		sqlbuilder.Eq("t.role", "teacher"),
		scope.In("ta.class_id"),
	}
	if len(filter.LessonIDs) > 0 {
		assignedClauses = append(assignedClauses, sqlbuilder.Any("ta.subject_id", filter.LessonIDs))
	}
	assigned := b.Where(assignedClauses...)

	activityClauses := []sqlbuilder.Clause{
		sqlbuilder.Gte("a.activity_date", period.Start),
		sqlbuilder.Lte("a.activity_date", period.End),
	}
	if len(filter.LessonIDs) > 0 {
		activityClauses = append(activityClauses, sqlbuilder.Any("a.subject_id", filter.LessonIDs))
	}
	activity := b.Where(activityClauses...)
	grading := b.Between("g.created_at", period.Start, period.End)

	query := fmt.Sprintf(`WITH assigned AS (
            SELECT ta.teacher_id, ta.class_id, ta.subject_id
            FROM teacher_assignments ta
            JOIN users t ON t.id = ta.teacher_id
            WHERE %s
        ),
        activity AS (
            SELECT a.teacher_id, COUNT(*) AS activity_count, MAX(a.activity_date) AS last_activity_at
            FROM educational_activities a
            JOIN (SELECT DISTINCT teacher_id, class_id FROM assigned) ac
                ON ac.teacher_id = a.teacher_id AND ac.class_id = a.class_id
            WHERE %s
            GROUP BY a.teacher_id
        ),
        grading AS (
            SELECT x.teacher_id, AVG(%s) AS average_grade
            FROM (SELECT DISTINCT teacher_id, class_id, subject_id FROM assigned) x
            JOIN subjects s ON s.id = x.subject_id
            JOIN grades g ON g.class_id = x.class_id AND g.subject_name = s.name
            WHERE %s
            GROUP BY x.teacher_id
        )
        SELECT t.id AS teacher_id, t.full_name,
            COUNT(DISTINCT x.class_id) AS class_count,
            COALESCE(MAX(act.activity_count), 0) AS activity_count,
            MAX(gr.average_grade) AS average_grade,
            MAX(act.last_activity_at) AS last_activity_at
        FROM assigned x
        JOIN users t ON t.id = x.teacher_id
        LEFT JOIN activity act ON act.teacher_id = t.id
        LEFT JOIN grading gr ON gr.teacher_id = t.id
        GROUP BY t.id, t.full_name
        ORDER BY activity_count DESC, t.full_name ASC`, assigned, activity, gradePercentExpr, grading)

	var rows []models.TeacherStatRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, b.Args()...); err != nil {
		return nil, fmt.Errorf("query teacher stats: %w", err)
	}
	return rows, nil
}

// StudentWeekStats returns, for each active student in scope, the current/previous week score
// averages plus current week activity count and distinct active days.
func (r *PrincipalReportReader) StudentWeekStats(ctx context.Context, scope *ClassScope, filter models.ReportFilter) ([]models.StudentWeekRow, error) {
	b := sqlbuilder.New()
	week := filter.Window.Week()
	prev := filter.Window.PrevWeek()

	roster := b.Where(activeStudentClauses(scope, "cs")...)
	inWeek := b.Between("a.activity_date", week.Start, week.End)
	inPrevWeek := b.Between("a.activity_date", prev.Start, prev.End)
	inWeekCount := b.Between("a.activity_date", week.Start, week.End)
	inWeekDays := b.Between("a.activity_date", week.Start, week.End)

	joinClauses := []sqlbuilder.Clause{
		sqlbuilder.Raw("a.student_id = r.student_id"),
		scope.In("a.class_id"),
		sqlbuilder.Gte("a.activity_date", prev.Start),
		sqlbuilder.Lte("a.activity_date", week.End),
	}
	if len(filter.LessonIDs) > 0 {
		joinClauses = append(joinClauses, sqlbuilder.Any("a.subject_id", filter.LessonIDs))
	}
	join := b.Where(joinClauses...)

	query := fmt.Sprintf(`WITH roster AS (
            SELECT cs.student_id, MIN(c.name) AS class_name
            FROM class_students cs
            JOIN classes c ON c.id = cs.class_id
            JOIN users u ON u.id = cs.student_id
            WHERE %s
            GROUP BY cs.student_id
        )
        SELECT u.id AS student_id, u.full_name, r.class_name,
            AVG(a.quantitative_score) FILTER (WHERE %s) AS week_average,
            AVG(a.quantitative_score) FILTER (WHERE %s) AS prev_week_average,
            COUNT(a.id) FILTER (WHERE %s) AS week_activities,
            COUNT(DISTINCT a.activity_date::date) FILTER (WHERE %s) AS week_active_days
        FROM roster r
        JOIN users u ON u.id = r.student_id
        LEFT JOIN educational_activities a ON %s
        GROUP BY u.id, u.full_name, r.class_name
        ORDER BY u.full_name, u.id`, roster, inWeek, inPrevWeek, inWeekCount, inWeekDays, join)

	var rows []models.StudentWeekRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, b.Args()...); err != nil {
		return nil, fmt.Errorf("query student week stats: %w", err)
	}
	return rows, nil
}

// AIUsage aggregates AI grading requests linked to scoped classes through answer and exam.
func (r *PrincipalReportReader) AIUsage(ctx context.Context, scope *ClassScope, filter models.ReportFilter) (models.AIUsageRows, error) {
	var usage models.AIUsageRows
	period := filter.Window.Current()
	from := `FROM ai_usage_logs l
        JOIN exam_answers ea ON ea.id = l.answer_id
        JOIN exams e ON e.id = ea.exam_id`

	b := sqlbuilder.New()
	totals := fmt.Sprintf(`SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE l.success) AS successful,
        AVG(l.processing_time_ms) AS average_processing_ms
        %s
        WHERE %s`, from, b.Where(scope.In("e.class_id"), sqlbuilder.Gte("l.created_at", period.Start), sqlbuilder.Lte("l.created_at", period.End)))
	if err := sqlx.GetContext(ctx, r.q, &usage.Totals, totals, b.Args()...); err != nil {
		return usage, fmt.Errorf("query ai usage totals: %w", err)
	}

	b = sqlbuilder.New()
	byModel := fmt.Sprintf(`SELECT COALESCE(NULLIF(TRIM(l.model_name), ''), 'Unknown') AS model,
        COUNT(*) AS count
        %s
        WHERE %s
        GROUP BY 1
        ORDER BY count DESC, model ASC`, from, b.Where(scope.In("e.class_id"), sqlbuilder.Gte("l.created_at", period.Start), sqlbuilder.Lte("l.created_at", period.End)))
	if err := sqlx.SelectContext(ctx, r.q, &usage.ByModel, byModel, b.Args()...); err != nil {
		return usage, fmt.Errorf("query ai usage by model: %w", err)
	}
	return usage, nil
}

// DataHealth counts relational-completeness violations. Error logs are scoped by school.
func (r *PrincipalReportReader) DataHealth(ctx context.Context, scope *ClassScope, filter models.ReportFilter) (models.DataHealthRow, error) {
	b := sqlbuilder.New()
	period := filter.Window.Current()
	var q strings.Builder

	q.WriteString("SELECT\n    (SELECT COUNT(*) FROM classes c WHERE ")
	q.WriteString(b.Where(scope.In("c.id"), sqlbuilder.Raw("NOT EXISTS (SELECT 1 FROM teacher_assignments ta WHERE ta.class_id = c.id AND ta.removed_at IS NULL)")))
	q.WriteString(") AS classes_without_teacher,\n")

	q.WriteString("    (SELECT COUNT(DISTINCT cs.student_id) FROM class_students cs JOIN users u ON u.id = cs.student_id WHERE ")
	q.WriteString(b.Where(append(activeStudentClauses(scope, "cs"), sqlbuilder.Raw("NOT EXISTS (SELECT 1 FROM parent_student_relations p WHERE p.student_id = cs.student_id)"))...))
	q.WriteString(") AS students_without_guardian,\n")

	q.WriteString("    (SELECT COUNT(*) FROM educational_activities a WHERE ")
	q.WriteString(b.Where(append(activityClauses(scope, filter, period), sqlbuilder.Raw("(COALESCE(a.question_file_url, '') = '' OR COALESCE(a.answer_file_url, '') = '')"))...))
	q.WriteString(") AS activities_missing_files,\n")

	q.WriteString("    (SELECT COUNT(*) FROM error_logs el WHERE ")
	q.WriteString(b.Where(sqlbuilder.Eq("el.school_id", filter.SchoolID), sqlbuilder.Gte("el.created_at", period.Start), sqlbuilder.Lte("el.created_at", period.End)))
	q.WriteString(" AND (")
	q.WriteString(b.Clause(sqlbuilder.ILikeAny("el.message", aiErrorPatterns)))
	q.WriteString(" OR ")
	q.WriteString(b.Clause(sqlbuilder.ILikeAny("el.url", aiErrorPatterns)))
	q.WriteString(")) AS ai_errors,\n")

	q.WriteString("    (SELECT COUNT(*) FROM error_logs el WHERE ")
	q.WriteString(b.Where(sqlbuilder.Eq("el.school_id", filter.SchoolID), sqlbuilder.Gte("el.created_at", period.Start), sqlbuilder.Lte("el.created_at", period.End), sqlbuilder.Any("el.status_code", authErrorStatuses)))
	q.WriteString(") AS auth_errors")

	var row models.DataHealthRow
	if err := sqlx.GetContext(ctx, r.q, &row, q.String(), b.Args()...); err != nil {
		return row, fmt.Errorf("query data health: %w", err)
	}
	return row, nil
}

func activeStudentClauses(scope *ClassScope, alias string) []sqlbuilder.Clause {
	return []sqlbuilder.Clause{
		scope.In(alias + ".class_id"),
		sqlbuilder.Raw("u.active = TRUE"),
		sqlbuilder.Eq("u.role", "student"),
	}
}

func activityClauses(scope *ClassScope, filter models.ReportFilter, period models.Period) []sqlbuilder.Clause {
	clauses := []sqlbuilder.Clause{
		scope.In("a.class_id"),
		sqlbuilder.Gte("a.activity_date", period.Start),
		sqlbuilder.Lte("a.activity_date", period.End),
	}
	if len(filter.LessonIDs) > 0 {
		clauses = append(clauses, sqlbuilder.Any("a.subject_id", filter.LessonIDs))
	}
	return clauses
}

func gradeClauses(scope *ClassScope, filter models.ReportFilter, period models.Period) []sqlbuilder.Clause {
	clauses := []sqlbuilder.Clause{
		scope.In("g.class_id"),
		sqlbuilder.Gte("g.created_at", period.Start),
		sqlbuilder.Lte("g.created_at", period.End),
	}
	if len(filter.LessonIDs) > 0 {
		clauses = append(clauses, sqlbuilder.In("g.subject_name", lessonNames(filter.LessonIDs)))
	}
	return clauses
}

func examClauses(scope *ClassScope, filter models.ReportFilter, period models.Period) []sqlbuilder.Clause {
	clauses := []sqlbuilder.Clause{
		scope.In("e.class_id"),
		sqlbuilder.Gte("COALESCE(e.starts_at, e.created_at)", period.Start),
		sqlbuilder.Lte("COALESCE(e.starts_at, e.created_at)", period.End),
	}
	if len(filter.LessonIDs) > 0 {
		clauses = append(clauses, sqlbuilder.Any("e.subject_id", filter.LessonIDs))
	}
	return clauses
}

func assessmentClauses(scope *ClassScope, filter models.ReportFilter, period models.Period) []sqlbuilder.Clause {
	clauses := []sqlbuilder.Clause{
		scope.In("s.class_id"),
		sqlbuilder.Gte("s.assessment_date", period.Start),
		sqlbuilder.Lte("s.assessment_date", period.End),
	}
	if len(filter.LessonIDs) > 0 {
		clauses = append(clauses, sqlbuilder.Any("s.subject_id", filter.LessonIDs))
	}
	return clauses
}

// lessonNames maps lesson ids to subject names for tables that store the name only.
type lessonNames []string

func (l lessonNames) SQL(b *sqlbuilder.Builder) string {
	return "SELECT ls.name FROM subjects ls WHERE " + b.Where(sqlbuilder.Any("ls.id", []string(l)))
}
