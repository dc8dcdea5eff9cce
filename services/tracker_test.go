package services

import (
	"errors"
	"testing"
	"time"

	"github.com/ceramicnetwork/go-fanout/common/loggers"
	"github.com/ceramicnetwork/go-fanout/models"
)

type statusUpdate struct {
	index    int
	status   models.FileStatus
	pct      int
	accepted bool
}

func testFiles(n int) []models.UploadFile {
	files := make([]models.UploadFile, n)
	for i := range files {
		files[i] = models.UploadFile{Id: string(rune('a' + i)), Name: string(rune('a'+i)) + ".jpg", SizeBytes: 1024}
	}
	return files
}

func TestUpdateStatus(t *testing.T) {
	tests := map[string]struct {
		updates          []statusUpdate
		expectedStatus   models.FileStatus
		expectedProgress int
	}{
		"forward through the lifecycle": {
			updates: []statusUpdate{
				{0, models.FileStatus_Authenticating, 0, true},
				{0, models.FileStatus_Uploading, 10, true},
				{0, models.FileStatus_Uploading, 60, true},
				{0, models.FileStatus_Completed, 0, true},
			},
			expectedStatus:   models.FileStatus_Completed,
			expectedProgress: 100,
		},
		"backwards transition is ignored": {
			updates: []statusUpdate{
				{0, models.FileStatus_Uploading, 40, true},
				{0, models.FileStatus_Authenticating, 0, false},
			},
			expectedStatus:   models.FileStatus_Uploading,
			expectedProgress: 40,
		},
		"terminal status absorbs late events": {
			updates: []statusUpdate{
				{0, models.FileStatus_Uploading, 40, true},
				{0, models.FileStatus_Failed, 0, true},
				{0, models.FileStatus_Uploading, 90, false},
				{0, models.FileStatus_Completed, 0, false},
				{0, models.FileStatus_Cancelled, 0, false},
			},
			expectedStatus:   models.FileStatus_Failed,
			expectedProgress: 40,
		},
		"completed file cannot restart": {
			updates: []statusUpdate{
				{0, models.FileStatus_Completed, 0, true},
				{0, models.FileStatus_Uploading, 5, false},
			},
			expectedStatus:   models.FileStatus_Completed,
			expectedProgress: 100,
		},
		"cancel from waiting": {
			updates: []statusUpdate{
				{0, models.FileStatus_Cancelled, 0, true},
			},
			expectedStatus:   models.FileStatus_Cancelled,
			expectedProgress: 0,
		},
		"cancel from uploading": {
			updates: []statusUpdate{
				{0, models.FileStatus_Uploading, 30, true},
				{0, models.FileStatus_Cancelled, 0, true},
			},
			expectedStatus:   models.FileStatus_Cancelled,
			expectedProgress: 30,
		},
		"unknown index is ignored": {
			updates: []statusUpdate{
				{5, models.FileStatus_Uploading, 30, false},
				{-1, models.FileStatus_Uploading, 30, false},
			},
			expectedStatus:   models.FileStatus_Waiting,
			expectedProgress: 0,
		},
		"progress is clamped": {
			updates: []statusUpdate{
				{0, models.FileStatus_Uploading, 150, true},
			},
			expectedStatus:   models.FileStatus_Uploading,
			expectedProgress: 100,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			tracker := NewUploadTracker(testFiles(2), NewFakeClock(), loggers.NewTestLogger())
			for _, update := range test.updates {
				Assert(t, update.accepted, tracker.UpdateStatus(update.index, update.status, update.pct, nil), "Incorrect acceptance")
			}
			progress, _ := tracker.Snapshot()
			Assert(t, test.expectedStatus, progress.Files[0].Status, "Incorrect status")
			Assert(t, test.expectedProgress, progress.Files[0].ProgressPct, "Incorrect progress")
			Assert(t, models.FileStatus_Waiting, progress.Files[1].Status, "Other files should not change")
		})
	}
}

func TestUploadAnalytics(t *testing.T) {
	clock := NewFakeClock()
	tracker := NewUploadTracker(testFiles(4), clock, loggers.NewTestLogger())

	progress, analytics := tracker.Snapshot()
	Assert(t, 4, progress.Total, "Incorrect total")
	Assert(t, 0, progress.OverallProgressPct, "Incorrect initial progress")
	Assert(t, models.DefaultSecondsPerFile, analytics.AverageSecondsPerFile, "Average should be seeded")
	Assert(t, time.Duration(4*models.DefaultSecondsPerFile*float64(time.Second)), analytics.EstimatedTimeRemaining, "Incorrect seeded estimate")
	Assert(t, 0.0, analytics.Throughput, "Throughput should be zero before time passes")

	tracker.UpdateStatus(0, models.FileStatus_Uploading, 0, nil)
	clock.Advance(2 * time.Second)
	tracker.UpdateStatus(0, models.FileStatus_Completed, 100, nil)
	tracker.UpdateStatus(1, models.FileStatus_Uploading, 0, nil)
	clock.Advance(2 * time.Second)
	tracker.UpdateStatus(1, models.FileStatus_Failed, 0, errors.New("rejected"))

	progress, analytics = tracker.Snapshot()
	Assert(t, 1, progress.CompletedCount, "Incorrect completed count")
	Assert(t, 1, progress.FailedCount, "Incorrect failed count")
	Assert(t, 50, progress.OverallProgressPct, "Incorrect overall progress")
	Assert(t, 4*time.Second, analytics.Elapsed, "Incorrect elapsed time")
	Assert(t, 0.5, analytics.Throughput, "Incorrect throughput")
	Assert(t, 2.0, analytics.AverageSecondsPerFile, "Incorrect average")
	Assert(t, 4*time.Second, analytics.EstimatedTimeRemaining, "Incorrect estimate")
	Assert(t, "rejected", progress.Files[1].Err.Error(), "Failure error should be kept")
	Assert(t, false, tracker.IsComplete(), "Batch should not be complete")

	tracker.UpdateStatus(2, models.FileStatus_Cancelled, 0, nil)
	tracker.UpdateStatus(3, models.FileStatus_Completed, 100, nil)
	progress, analytics = tracker.Snapshot()
	Assert(t, true, tracker.IsComplete(), "Batch should be complete")
	Assert(t, 100, progress.OverallProgressPct, "Finished batch should be at 100%")
	Assert(t, time.Duration(0), analytics.EstimatedTimeRemaining, "Nothing should remain")
}

func TestUploadProgressRounding(t *testing.T) {
	tracker := NewUploadTracker(testFiles(3), NewFakeClock(), loggers.NewTestLogger())
	tracker.UpdateStatus(0, models.FileStatus_Completed, 100, nil)
	progress, _ := tracker.Snapshot()
	Assert(t, 33, progress.OverallProgressPct, "Incorrect rounding down")
	tracker.UpdateStatus(1, models.FileStatus_Completed, 100, nil)
	progress, _ = tracker.Snapshot()
	Assert(t, 67, progress.OverallProgressPct, "Incorrect rounding up")
}

func TestEmptyBatch(t *testing.T) {
	tracker := NewUploadTracker(nil, NewFakeClock(), loggers.NewTestLogger())
	progress, analytics := tracker.Snapshot()
	Assert(t, true, tracker.IsComplete(), "Empty batch should be complete")
	Assert(t, 100, progress.OverallProgressPct, "Empty batch should be at 100%")
	Assert(t, time.Duration(0), analytics.EstimatedTimeRemaining, "Incorrect estimate")
}

func TestProgressObservers(t *testing.T) {
	tracker := NewUploadTracker(testFiles(2), NewFakeClock(), loggers.NewTestLogger())
	observer := &SpyObserver{}
	tracker.Register(observer)

	tracker.UpdateStatus(0, models.FileStatus_Uploading, 50, nil)
	tracker.UpdateStatus(0, models.FileStatus_Waiting, 0, nil)
	tracker.UpdateStatus(0, models.FileStatus_Completed, 100, nil)

	// The rejected event should not be observed
	Assert(t, 2, len(observer.progress), "Incorrect number of notifications")
	Assert(t, 50, observer.progress[1].OverallProgressPct, "Incorrect notified progress")
	Assert(t, models.FileStatus_Uploading, observer.progress[0].Files[0].Status, "Snapshots should not alias tracker state")
}

func TestCompleteBatchProgress(t *testing.T) {
	tests := map[string]struct {
		terminal []models.FileStatus
	}{
		"completed and cancelled": {terminal: []models.FileStatus{models.FileStatus_Completed, models.FileStatus_Cancelled}},
		"all cancelled":           {terminal: []models.FileStatus{models.FileStatus_Cancelled, models.FileStatus_Cancelled, models.FileStatus_Cancelled}},
		"mixed":                   {terminal: []models.FileStatus{models.FileStatus_Failed, models.FileStatus_Cancelled, models.FileStatus_Completed}},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			tracker := NewUploadTracker(testFiles(len(test.terminal)), NewFakeClock(), loggers.NewTestLogger())
			for idx, status := range test.terminal {
				tracker.UpdateStatus(idx, status, 0, nil)
			}
			progress, analytics := tracker.Snapshot()
			Assert(t, true, tracker.IsComplete(), "Batch should be complete")
			Assert(t, 100, progress.OverallProgressPct, "Complete batch should be at 100%")
			Assert(t, time.Duration(0), analytics.EstimatedTimeRemaining, "Nothing should remain")
		})
	}
}
