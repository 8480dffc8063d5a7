package model

import "time"

type Source string

const (
	SourceFileUpload  Source = "File Upload"
	SourceManualInput Source = "Manual Input"
)

func (s Source) Valid() bool {
	return s == SourceFileUpload || s == SourceManualInput
}

type Alert struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Source     Source         `json:"source"`
	Confidence float64        `json:"confidence"`
	IsResolved bool           `json:"is_resolved"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy *string        `json:"resolved_by,omitempty"`
	Details    map[string]any `json:"details"`
	UserID     *string        `json:"user_id,omitempty"`
}

type AlertFilter struct {
	Limit    int
	Offset   int
	Resolved *bool
	UserID   *string
}

type SourceCount struct {
	Source Source `json:"source"`
	Count  int64  `json:"count"`
}

type AlertStats struct {
	Total                int64         `json:"total"`
	Resolved             int64         `json:"resolved"`
	Unresolved           int64         `json:"unresolved"`
	AvgConfidence        *float64      `json:"avg_confidence"`
	SourceCount          int64         `json:"source_count"`
	Sources              []SourceCount `json:"sources"`
	AvgResolutionMinutes *float64      `json:"avg_resolution_minutes,omitempty"`
}

// TimeRange bounds a query; zero times are open ends.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

type Metric struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	MetricType string         `json:"metric_type"`
	Value      float64        `json:"value"`
	Details    map[string]any `json:"details,omitempty"`
}

type MetricFilter struct {
	MetricType string
	Range      TimeRange
	Limit      int
}

type Interval string

const (
	IntervalHour  Interval = "hour"
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
)

func (i Interval) Valid() bool {
	switch i {
	case IntervalHour, IntervalDay, IntervalWeek, IntervalMonth:
		return true
	}
	return false
}

type MetricPeriod struct {
	Period string  `json:"period"`
	Count  int64   `json:"count"`
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Sum    float64 `json:"sum"`
}

type MetricSummary struct {
	MetricType string         `json:"metric_type"`
	Interval   Interval       `json:"interval"`
	Periods    []MetricPeriod `json:"periods"`
}

type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RowResult struct {
	Index       int     `json:"index"`
	IsIntrusion bool    `json:"is_intrusion"`
	Confidence  float64 `json:"confidence"`
}

type BatchResult struct {
	Total      int         `json:"total"`
	Intrusions int         `json:"intrusions"`
	Safe       int         `json:"safe"`
	Results    []RowResult `json:"results"`
}

type SingleResult struct {
	IsIntrusion bool    `json:"is_intrusion"`
	Confidence  float64 `json:"confidence"`
	Threshold   float64 `json:"threshold"`
	AlertID     string  `json:"alert_id,omitempty"`
}
