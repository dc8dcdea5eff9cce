package models

import (
	"time"
)

// Record is an immutable, signed unit of publishable content. Records sharing an AuthorId and StableKey are revisions
// of the same logical object.
type Record struct {
	Id        string    `json:"id"`
	StableKey string    `json:"key"`
	AuthorId  string    `json:"author"`
	CreatedAt time.Time `json:"ts"`
	Payload   []byte    `json:"payload"`
	Signature []byte    `json:"sig"`
}

// RecordDraft is the unsigned content of a Record.
type RecordDraft struct {
	StableKey string
	AuthorId  string
	CreatedAt time.Time
	Payload   []byte
}

type PublishTarget struct {
	Address string        `json:"address"`
	Timeout time.Duration `json:"timeout"`
}

type BackoffStrategy uint8

const (
	BackoffStrategy_Linear BackoffStrategy = iota
	BackoffStrategy_Exponential
)

type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Strategy    BackoffStrategy
}

type PublishOutcome struct {
	Target    PublishTarget
	Succeeded bool
	Latency   time.Duration
	Attempt   int
	Err       error
}

type TargetFailure struct {
	Target PublishTarget
	Err    error
}

type PublishReport struct {
	RecordId         string
	Outcomes         []PublishOutcome
	SucceededTargets []PublishTarget
	FailedTargets    []TargetFailure
	TotalDuration    time.Duration
	AverageLatency   time.Duration
	RetryCount       int
	SuccessRatio     float64
}

// Delivered reports whether at least one target accepted the record.
func (r *PublishReport) Delivered() bool {
	return len(r.SucceededTargets) > 0
}

// RecordTip is the latest known revision of a logical record.
type RecordTip struct {
	AuthorId  string    `dynamodbav:"author"`
	StableKey string    `dynamodbav:"key"`
	RecordId  string    `dynamodbav:"rid"`
	CreatedAt time.Time `dynamodbav:"ts"`
}

// PublishLedgerEntry is the persisted summary of a PublishReport.
type PublishLedgerEntry struct {
	RecordId    string    `dynamodbav:"rid"`
	PublishedAt time.Time `dynamodbav:"ts"`
	Succeeded   []string  `dynamodbav:"ok,stringset,omitempty"`
	Failed      []string  `dynamodbav:"fail,stringset,omitempty"`
	RetryCount  int       `dynamodbav:"retries"`
	DurationMs  int64     `dynamodbav:"dur"`
}
