package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

type JobKind string

const (
	JobKindCollect JobKind = "collect"
	JobKindAnalyze JobKind = "analyze"
	JobKindReport  JobKind = "report"
)

// JobKinds lists every kind the queue accepts.
var JobKinds = []JobKind{JobKindCollect, JobKindAnalyze, JobKindReport}

type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateDead      JobState = "dead"
)

// JobStates lists every persisted state. A retriable failure returns the
// job to pending with a delayed available_at, so a separate "failed"
// state never lands in storage: terminal failures go straight to dead.
var JobStates = []JobState{JobStatePending, JobStateRunning, JobStateSucceeded, JobStateDead}

// Job is the durable unit of work exchanged between the orchestrator and
// the agents. The queue is the only coordination medium: agents never
// call each other directly.
type Job struct {
	ID          string
	Kind        JobKind
	Payload     json.RawMessage
	State       JobState
	Attempts    int
	AvailableAt time.Time
	DependsOn   string
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ReportType string

const (
	ReportTypeMonthly ReportType = "monthly"
	ReportTypeYearly  ReportType = "yearly"
)

type ReportFormat string

const (
	ReportFormatDashboard ReportFormat = "dashboard"
	ReportFormatPDF       ReportFormat = "pdf"
	ReportFormatExcel     ReportFormat = "excel"
)

// CollectPayload parameterizes a collect job. An empty Month means an
// incremental collection since the latest stored post; a set Month
// requests that single historical month.
type CollectPayload struct {
	AccountID string   `json:"account_id"`
	Platform  Platform `json:"platform"`
	Month     string   `json:"month,omitempty"`
}

// AnalyzePayload parameterizes an analyze job. An empty AccountID means
// every active account.
type AnalyzePayload struct {
	AccountID string `json:"account_id,omitempty"`
	Month     string `json:"month"`
}

// ReportPayload parameterizes a report job. Month is required for monthly
// reports, Year for yearly ones.
type ReportPayload struct {
	Type   ReportType   `json:"type"`
	Month  string       `json:"month,omitempty"`
	Year   int          `json:"year,omitempty"`
	Format ReportFormat `json:"format"`
}

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ValidMonth reports whether s is a YYYY-MM month key.
func ValidMonth(s string) bool {
	return monthPattern.MatchString(s)
}

// MonthKey formats t as a YYYY-MM month key.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// ErrInvalidPayload marks a payload that does not match its kind's
// schema. It is a programmer/config error and is never retried.
var ErrInvalidPayload = errors.New("invalid job payload")

// ValidatePayload checks raw against the schema of kind. It runs at
// enqueue time so malformed work is rejected before it ever reaches an
// agent; agents re-run it at claim time as a guard against storage drift.
func ValidatePayload(kind JobKind, raw json.RawMessage) error {
	switch kind {
	case JobKindCollect:
		var p CollectPayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return err
		}
		if p.AccountID == "" {
			return fmt.Errorf("%w: collect requires account_id", ErrInvalidPayload)
		}
		if !p.Platform.Valid() {
			return fmt.Errorf("%w: unknown platform %q", ErrInvalidPayload, p.Platform)
		}
		if p.Month != "" && !ValidMonth(p.Month) {
			return fmt.Errorf("%w: month %q is not YYYY-MM", ErrInvalidPayload, p.Month)
		}
		return nil
	case JobKindAnalyze:
		var p AnalyzePayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return err
		}
		if !ValidMonth(p.Month) {
			return fmt.Errorf("%w: analyze month %q is not YYYY-MM", ErrInvalidPayload, p.Month)
		}
		return nil
	case JobKindReport:
		var p ReportPayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return err
		}
		switch p.Type {
		case ReportTypeMonthly:
			if !ValidMonth(p.Month) {
				return fmt.Errorf("%w: monthly report month %q is not YYYY-MM", ErrInvalidPayload, p.Month)
			}
		case ReportTypeYearly:
			if p.Year < 2000 || p.Year > 2200 {
				return fmt.Errorf("%w: yearly report year %d out of range", ErrInvalidPayload, p.Year)
			}
		default:
			return fmt.Errorf("%w: unknown report type %q", ErrInvalidPayload, p.Type)
		}
		switch p.Format {
		case ReportFormatDashboard, ReportFormatPDF, ReportFormatExcel:
		default:
			return fmt.Errorf("%w: unknown report format %q", ErrInvalidPayload, p.Format)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown job kind %q", ErrInvalidPayload, kind)
	}
}

func unmarshalPayload(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// MustPayload marshals a typed payload. The payload structs cannot fail
// to marshal, so an error here is a programming bug.
func MustPayload(payload any) json.RawMessage {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal payload: %v", err))
	}
	return raw
}
