package services

import (
	"context"
	"strings"
	"testing"

	"github.com/ceramicnetwork/go-fanout/common/loggers"
	"github.com/ceramicnetwork/go-fanout/models"
)

func uploadRequests(names ...string) []*models.UploadRequest {
	requests := make([]*models.UploadRequest, len(names))
	for i, name := range names {
		body := strings.Repeat(name, 10)
		requests[i] = &models.UploadRequest{Name: name, SizeBytes: int64(len(body)), Body: strings.NewReader(body)}
	}
	return requests
}

func TestUploadBatch(t *testing.T) {
	store := &FakeBlobStore{failFor: map[string]bool{"b.jpg": true}, stored: make(map[string][]byte)}
	metricService := &MockMetricService{}
	service := NewUploadService(store, metricService, loggers.NewTestLogger(), NewFakeClock())
	observer := &SpyObserver{}

	uploadResults, tracker := service.UploadBatch(context.Background(), uploadRequests("a.jpg", "b.jpg", "c.jpg"), observer)
	Assert(t, 3, len(uploadResults), "Incorrect number of results")
	Assert(t, "cid-a.jpg", uploadResults[0].Blob.Cid, "Incorrect blob for first file")
	Assert(t, true, uploadResults[1].Err != nil, "Rejected file should fail")
	Assert(t, "mem://c.jpg", uploadResults[2].Blob.Url, "Incorrect blob for last file")
	Assert(t, "c.jpgc.jpgc.jpgc.jpgc.jpgc.jpgc.jpgc.jpgc.jpgc.jpg", string(store.stored["c.jpg"]), "Incorrect stored content")

	progress, _ := tracker.Snapshot()
	Assert(t, true, tracker.IsComplete(), "Batch should be complete")
	Assert(t, 2, progress.CompletedCount, "Incorrect completed count")
	Assert(t, 1, progress.FailedCount, "Incorrect failed count")
	Assert(t, 100, progress.OverallProgressPct, "Incorrect overall progress")
	Assert(t, uploadResults[0].FileId, progress.Files[0].Id, "Results should reference tracked files")
	Assert(t, 2, metricService.count(models.MetricName_UploadCompleted), "Incorrect completed metric")
	Assert(t, 1, metricService.count(models.MetricName_UploadFailed), "Incorrect failed metric")

	// authenticating, two progress events and completion for each stored file, authenticating and failure otherwise
	Assert(t, 10, len(observer.progress), "Incorrect number of notifications")
	Assert(t, models.FileStatus_Uploading, observer.progress[2].Files[0].Status, "Progress should move the file to uploading")
	Assert(t, 100, observer.progress[2].Files[0].ProgressPct, "Incorrect byte progress")
}

func TestUploadBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &FakeBlobStore{
		stored: make(map[string][]byte),
		beforePut: func(name string) {
			if name == "b.jpg" {
				cancel()
			}
		},
	}
	service := NewUploadService(store, &MockMetricService{}, loggers.NewTestLogger(), NewFakeClock())

	uploadResults, tracker := service.UploadBatch(ctx, uploadRequests("a.jpg", "b.jpg", "c.jpg"))
	progress, _ := tracker.Snapshot()
	Assert(t, true, tracker.IsComplete(), "Cancelled batch should be complete")
	Assert(t, models.FileStatus_Completed, progress.Files[0].Status, "First file should complete")
	Assert(t, models.FileStatus_Cancelled, progress.Files[1].Status, "In-flight file should be cancelled")
	Assert(t, models.FileStatus_Cancelled, progress.Files[2].Status, "Remaining file should be cancelled")
	Assert(t, 2, progress.CancelledCount, "Incorrect cancelled count")
	Assert(t, true, uploadResults[2].Err != nil, "Cancelled file should report an error")
	Assert(t, 1, len(store.stored), "Only the first file should be stored")
}
