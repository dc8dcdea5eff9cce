package services

import (
	"math"
	"time"

	"github.com/ceramicnetwork/go-fanout/models"
)

// UploadTracker aggregates status events for one batch of file uploads into progress snapshots and analytics. It is
// not safe for concurrent use; a batch has a single owner that serializes updates.
type UploadTracker struct {
	files     []models.UploadFile
	clock     models.Clock
	logger    models.Logger
	startedAt time.Time
	observers []models.ProgressObserver
}

func NewUploadTracker(files []models.UploadFile, clock models.Clock, logger models.Logger) *UploadTracker {
	tracked := make([]models.UploadFile, len(files))
	for idx, file := range files {
		tracked[idx] = models.UploadFile{Id: file.Id, Name: file.Name, SizeBytes: file.SizeBytes, Status: models.FileStatus_Waiting}
	}
	return &UploadTracker{files: tracked, clock: clock, logger: logger, startedAt: clock.Now()}
}

// Register adds an observer that is notified after every accepted update.
func (u *UploadTracker) Register(observer models.ProgressObserver) {
	u.observers = append(u.observers, observer)
}

func statusRank(status models.FileStatus) int {
	switch status {
	case models.FileStatus_Waiting:
		return 0
	case models.FileStatus_Authenticating:
		return 1
	case models.FileStatus_Uploading:
		return 2
	default:
		return 3
	}
}

func transitionAllowed(from, to models.FileStatus) bool {
	if from.Terminal() {
		return false
	}
	if (to == models.FileStatus_Cancelled) || (to == from) {
		return true
	}
	return statusRank(to) > statusRank(from)
}

// UpdateStatus applies a status event to the file at the given index. Late, duplicate or out-of-order events are
// logged and ignored, in which case false is returned.
func (u *UploadTracker) UpdateStatus(index int, status models.FileStatus, progressPct int, err error) bool {
	if (index < 0) || (index >= len(u.files)) {
		u.logger.Warnf("updateStatus: ignoring event for unknown file index %d", index)
		return false
	}
	file := &u.files[index]
	if !transitionAllowed(file.Status, status) {
		u.logger.Warnf("updateStatus: ignoring illegal transition %s -> %s for file %s", file.Status, status, file.Name)
		return false
	}
	if progressPct < 0 {
		progressPct = 0
	} else if progressPct > 100 {
		progressPct = 100
	}
	now := u.clock.Now()
	switch status {
	case models.FileStatus_Waiting:
		file.ProgressPct = progressPct
	case models.FileStatus_Authenticating, models.FileStatus_Uploading:
		if file.StartedAt == nil {
			file.StartedAt = &now
		}
		file.ProgressPct = progressPct
	case models.FileStatus_Completed:
		if file.StartedAt == nil {
			file.StartedAt = &now
		}
		file.CompletedAt = &now
		file.ProgressPct = 100
	case models.FileStatus_Failed, models.FileStatus_Cancelled:
		file.CompletedAt = &now
		file.Err = err
	}
	file.Status = status

	if len(u.observers) > 0 {
		progress, analytics := u.Snapshot()
		for _, observer := range u.observers {
			observer.OnProgress(progress, analytics)
		}
	}
	return true
}

// IsComplete reports whether every file reached a terminal status.
func (u *UploadTracker) IsComplete() bool {
	for _, file := range u.files {
		if !file.Status.Terminal() {
			return false
		}
	}
	return true
}

func (u *UploadTracker) Snapshot() (models.BatchProgress, models.Analytics) {
	progress := models.BatchProgress{
		Files: make([]models.UploadFile, len(u.files)),
		Total: len(u.files),
	}
	copy(progress.Files, u.files)

	var completedSeconds float64
	for _, file := range u.files {
		switch file.Status {
		case models.FileStatus_Completed:
			progress.CompletedCount++
			completedSeconds += file.CompletedAt.Sub(*file.StartedAt).Seconds()
		case models.FileStatus_Failed:
			progress.FailedCount++
		case models.FileStatus_Cancelled:
			progress.CancelledCount++
		}
	}
	// Progress covers every terminal file so that a complete batch always reads 100
	processed := progress.CompletedCount + progress.FailedCount
	finished := processed + progress.CancelledCount
	if progress.Total > 0 {
		progress.OverallProgressPct = int(math.Round(100 * float64(finished) / float64(progress.Total)))
	} else {
		progress.OverallProgressPct = 100
	}

	analytics := models.Analytics{
		Elapsed:               u.clock.Now().Sub(u.startedAt),
		AverageSecondsPerFile: models.DefaultSecondsPerFile,
	}
	if analytics.Elapsed > 0 {
		analytics.Throughput = float64(processed) / analytics.Elapsed.Seconds()
	}
	if progress.CompletedCount > 0 {
		analytics.AverageSecondsPerFile = completedSeconds / float64(progress.CompletedCount)
	}
	if eta := float64(progress.Total-finished) * analytics.AverageSecondsPerFile; eta > 0 {
		analytics.EstimatedTimeRemaining = time.Duration(eta * float64(time.Second))
	}
	return progress, analytics
}
