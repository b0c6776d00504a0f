package service

import (
	"database/sql"
	"math"
	"sort"
	"strings"
	"time"
)

// Every nullable aggregate passes through these helpers exactly once: counts default to 0,
// averages and ratios default to nil.

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func countOf(v sql.NullInt64) int64 {
	if !v.Valid || v.Int64 < 0 {
		return 0
	}
	return v.Int64
}

func averageOf(v sql.NullFloat64) *float64 {
	if !v.Valid || math.IsNaN(v.Float64) || math.IsInf(v.Float64, 0) {
		return nil
	}
	r := round2(v.Float64)
	return &r
}

func timeOf(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func stringOf(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func float64Ptr(v float64) *float64 {
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}

// ratioPercent returns part/whole as a rounded percentage, or 0 when whole is not positive.
func ratioPercent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

// normaliseList trims, drops empties, dedupes and sorts. The result is never nil.
func normaliseList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
