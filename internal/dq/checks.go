// Package dq runs data-quality checks on normalized rows after the provider
// merge and before loading. Pure: no I/O, never fails.
package dq

import (
	"fmt"
	"sort"
	"time"

	"github.com/gonow-app/gonow/internal/forecast"
)

const (
	expectedHours     = 168 // 7 days x 24
	nullRateThreshold = 0.10
)

type rangeCheck struct {
	field string
	min   float64
	max   float64
	value func(forecast.HourlyRow) *float64
}

var rangeChecks = []rangeCheck{
	{"wave_height_m", 0, 10, func(r forecast.HourlyRow) *float64 { return r.WaveHeightM }},
	{"eu_aqi", 0, 500, func(r forecast.HourlyRow) *float64 { return intAsFloat(r.EuAQI) }},
	{"uv_index", 0, 15, func(r forecast.HourlyRow) *float64 { return r.UVIndex }},
	{"feelslike_c", -5, 55, func(r forecast.HourlyRow) *float64 { return r.FeelslikeC }},
	{"wind_ms", 0, 50, func(r forecast.HourlyRow) *float64 { return r.WindMS }},
}

type keyMetric struct {
	field string
	value func(forecast.HourlyRow) bool // present?
}

var keyMetrics = []keyMetric{
	{"wave_height_m", func(r forecast.HourlyRow) bool { return r.WaveHeightM != nil }},
	{"feelslike_c", func(r forecast.HourlyRow) bool { return r.FeelslikeC != nil }},
	{"wind_ms", func(r forecast.HourlyRow) bool { return r.WindMS != nil }},
	{"uv_index", func(r forecast.HourlyRow) bool { return r.UVIndex != nil }},
	{"eu_aqi", func(r forecast.HourlyRow) bool { return r.EuAQI != nil }},
}

type Result struct {
	Flags    []string
	Degraded bool
}

func (r *Result) add(flag string, degraded bool) {
	r.Flags = append(r.Flags, flag)
	if degraded {
		r.Degraded = true
	}
}

// Run executes all checks: hour count, range, null rate, continuity.
func Run(rows []forecast.HourlyRow) Result {
	var res Result
	total := len(rows)

	if total < 100 {
		res.add(fmt.Sprintf("very_low_hour_count:%d", total), true)
	} else if total < 140 {
		res.add(fmt.Sprintf("low_hour_count:%d", total), false)
	}

	if total == 0 {
		return res
	}

	for _, rc := range rangeChecks {
		outOfRange := 0
		for _, row := range rows {
			if v := rc.value(row); v != nil && (*v < rc.min || *v > rc.max) {
				outOfRange++
			}
		}
		if outOfRange > 0 {
			res.add(fmt.Sprintf("out_of_range:%s:%d_rows", rc.field, outOfRange), false)
		}
	}

	for _, km := range keyMetrics {
		nullCount := 0
		for _, row := range rows {
			if !km.value(row) {
				nullCount++
			}
		}
		rate := float64(nullCount) / float64(total)
		if rate > nullRateThreshold {
			res.add(fmt.Sprintf("null_rate_high:%s:%.0f%%", km.field, rate*100), true)
		}
	}

	if total >= 2 {
		sorted := make([]forecast.HourlyRow, total)
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].HourUTC.Before(sorted[j].HourUTC) })
		for i := 1; i < total; i++ {
			gap := sorted[i].HourUTC.Sub(sorted[i-1].HourUTC)
			if gap > time.Hour {
				res.add(fmt.Sprintf("timestamp_gap:%s_to_%s:%.1fh",
					sorted[i-1].HourUTC.Format(time.RFC3339),
					sorted[i].HourUTC.Format(time.RFC3339),
					gap.Hours()), false)
			}
		}
	}

	return res
}

func intAsFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
