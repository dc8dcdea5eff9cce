package services

import (
	"time"

	"github.com/ceramicnetwork/go-fanout/models"
)

var _ models.Clock = &SystemClock{}

type SystemClock struct{}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
