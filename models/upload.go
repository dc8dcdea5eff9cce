package models

import (
	"io"
	"time"
)

type FileStatus uint8

const (
	FileStatus_Waiting FileStatus = iota
	FileStatus_Authenticating
	FileStatus_Uploading
	FileStatus_Completed
	FileStatus_Failed
	FileStatus_Cancelled
)

func (s FileStatus) String() string {
	switch s {
	case FileStatus_Waiting:
		return "waiting"
	case FileStatus_Authenticating:
		return "authenticating"
	case FileStatus_Uploading:
		return "uploading"
	case FileStatus_Completed:
		return "completed"
	case FileStatus_Failed:
		return "failed"
	case FileStatus_Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible from this status.
func (s FileStatus) Terminal() bool {
	return s == FileStatus_Completed || s == FileStatus_Failed || s == FileStatus_Cancelled
}

type UploadFile struct {
	Id          string
	Name        string
	SizeBytes   int64
	Status      FileStatus
	ProgressPct int
	StartedAt   *time.Time
	CompletedAt *time.Time
	Err         error
}

type BatchProgress struct {
	Files              []UploadFile
	Total              int
	CompletedCount     int
	FailedCount        int
	CancelledCount     int
	OverallProgressPct int
}

type Analytics struct {
	Elapsed                time.Duration
	Throughput             float64 // finished files per second
	AverageSecondsPerFile  float64
	EstimatedTimeRemaining time.Duration
}

// BlobRef identifies stored blob content.
type BlobRef struct {
	Cid string
	Url string
}

type UploadResult struct {
	FileId string
	Blob   *BlobRef
	Err    error
}

// UploadRequest is one file handed to the upload pipeline.
type UploadRequest struct {
	Name      string
	SizeBytes int64
	Body      io.Reader
}
