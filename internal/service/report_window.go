package service

import (
	"strings"
	"time"

	"github.com/noah-isme/sma-principal-report/internal/models"
)

const (
	reportDateLayout      = "2006-01-02"
	defaultWindowDays     = 30
	weekWindowDays        = 7
	weeklyGranularityDays = 45
)

// ResolveReportWindow derives every report time range from optional YYYY-MM-DD bounds.
// Unparsable or inverted bounds fall back to the default window ending today; the
// location of now is used for all calendar arithmetic.
func ResolveReportWindow(startRaw, endRaw string, now time.Time) models.ReportWindow {
	loc := now.Location()
	today := startOfDay(now)

	endDay, endOK := parseReportDate(endRaw, loc)
	if !endOK {
		endDay = today
	}
	startDay, startOK := parseReportDate(startRaw, loc)
	if !startOK {
		startDay = endDay.AddDate(0, 0, -defaultWindowDays)
	}
	if startDay.After(endDay) {
		endDay = today
		startDay = today.AddDate(0, 0, -defaultWindowDays)
	}

	w := models.ReportWindow{
		CurrentStart: startDay,
		CurrentEnd:   endOfDay(endDay),
	}
	w.PreviousEnd = w.CurrentStart.Add(-time.Millisecond)
	w.PreviousStart = w.PreviousEnd.Add(-w.CurrentEnd.Sub(w.CurrentStart))

	w.WeekEnd = w.CurrentEnd
	w.WeekStart = endDay.AddDate(0, 0, -(weekWindowDays - 1))
	if w.WeekStart.Before(w.CurrentStart) {
		w.WeekStart = w.CurrentStart
	}
	w.PrevWeekEnd = w.WeekStart.Add(-time.Millisecond)
	w.PrevWeekStart = startOfDay(w.PrevWeekEnd).AddDate(0, 0, -(weekWindowDays - 1))

	w.WeekDays = calendarDaysBetween(w.WeekStart, endDay) + 1
	if w.WeekDays < 1 {
		w.WeekDays = 1
	}

	w.Granularity = models.GranularityDay
	if calendarDaysBetween(startDay, endDay) > weeklyGranularityDays {
		w.Granularity = models.GranularityWeek
	}
	return w
}

func parseReportDate(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.ParseInLocation(reportDateLayout, raw, loc)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// calendarDaysBetween counts date boundaries crossed from a to b, ignoring DST offsets.
func calendarDaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
