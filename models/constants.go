package models

import "time"

const DefaultTargetTimeout = 10 * time.Second
const DefaultMaxAttempts = 1
const DefaultMaxBackoff = 30 * time.Second

// DefaultSecondsPerFile seeds upload time estimates until the first file of a batch completes.
const DefaultSecondsPerFile = 3.5

const DefaultFailureAlertBatchSize = 10
const DefaultFailureAlertLinger = 10 * time.Second

// CollectionKeyPrefix prefixes the stable key of records that carry a synced collection
const CollectionKeyPrefix = "collection/"
