package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ceramicnetwork/go-fanout/models"
)

// UploadService uploads a batch of files one at a time and tracks their progress.
type UploadService struct {
	store         models.BlobStore
	metricService models.MetricService
	logger        models.Logger
	clock         models.Clock
}

func NewUploadService(store models.BlobStore, metricService models.MetricService, logger models.Logger, clock models.Clock) *UploadService {
	return &UploadService{store, metricService, logger, clock}
}

// UploadBatch uploads the requests in order. Files not yet started when the context is done are cancelled. The
// returned tracker holds the final state of the batch.
func (u UploadService) UploadBatch(
	ctx context.Context,
	requests []*models.UploadRequest,
	observers ...models.ProgressObserver,
) ([]models.UploadResult, *UploadTracker) {
	files := make([]models.UploadFile, len(requests))
	for idx, request := range requests {
		files[idx] = models.UploadFile{Id: uuid.New().String(), Name: request.Name, SizeBytes: request.SizeBytes}
	}
	tracker := NewUploadTracker(files, u.clock, u.logger)
	for _, observer := range observers {
		tracker.Register(observer)
	}
	// Progress callbacks may arrive from the store's own goroutines
	var trackerLock sync.Mutex
	update := func(idx int, status models.FileStatus, pct int, err error) {
		trackerLock.Lock()
		defer trackerLock.Unlock()
		tracker.UpdateStatus(idx, status, pct, err)
	}

	uploadResults := make([]models.UploadResult, len(requests))
	for idx, request := range requests {
		uploadResults[idx].FileId = files[idx].Id
		if err := ctx.Err(); err != nil {
			update(idx, models.FileStatus_Cancelled, 0, err)
			uploadResults[idx].Err = err
			continue
		}
		update(idx, models.FileStatus_Authenticating, 0, nil)
		size := request.SizeBytes
		blob, err := u.store.Put(ctx, request.Name, request.Body, size, func(written int64) {
			pct := 100
			if size > 0 {
				pct = int(written * 100 / size)
			}
			update(idx, models.FileStatus_Uploading, pct, nil)
		})
		if err != nil {
			uploadResults[idx].Err = err
			if ctx.Err() != nil {
				update(idx, models.FileStatus_Cancelled, 0, err)
			} else {
				u.metricService.Count(ctx, models.MetricName_UploadFailed, 1)
				u.logger.Warnf("uploadBatch: failed to upload %s: %v", request.Name, err)
				update(idx, models.FileStatus_Failed, 0, err)
			}
			continue
		}
		uploadResults[idx].Blob = blob
		u.metricService.Count(ctx, models.MetricName_UploadCompleted, 1)
		u.logger.Debugf("uploadBatch: uploaded %s as %s", request.Name, blob.Cid)
		update(idx, models.FileStatus_Completed, 100, nil)
	}

	trackerLock.Lock()
	defer trackerLock.Unlock()
	progress, analytics := tracker.Snapshot()
	u.logger.Infof(
		"uploadBatch: %d/%d files completed, %d failed, %d cancelled in %s",
		progress.CompletedCount, progress.Total, progress.FailedCount, progress.CancelledCount, analytics.Elapsed,
	)
	return uploadResults, tracker
}
