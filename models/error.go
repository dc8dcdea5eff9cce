package models

import (
	"errors"
	"fmt"
)

var (
	ErrTotalFailure   = errors.New("no target accepted the record")
	ErrNoTargets      = fmt.Errorf("%w: no publish targets", ErrTotalFailure)
	ErrTargetTimeout  = errors.New("target timed out")
	ErrValidation     = errors.New("invalid delivery intent")
	ErrDeliveryFailed = errors.New("delivery failed")
)
