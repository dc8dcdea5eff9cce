package models

import (
	"time"

	"github.com/google/uuid"
)

type FailureKind string

const (
	FailureKind_Publish  FailureKind = "publish"
	FailureKind_Delivery FailureKind = "delivery"
)

// FailureMessage is posted to the failure queue when an operation could not reach its destination.
type FailureMessage struct {
	Id        uuid.UUID   `json:"id"`
	Kind      FailureKind `json:"kind"`
	Subject   string      `json:"sub"` // record id or counterparty id
	Targets   int         `json:"n"`
	Errors    []string    `json:"errs"`
	Timestamp time.Time   `json:"ts"`
}
