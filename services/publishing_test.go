package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ceramicnetwork/go-fanout/common/loggers"
	"github.com/ceramicnetwork/go-fanout/models"
)

func TestPublishingConfig(t *testing.T) {
	t.Setenv("RELAY_ADDRESSES", " http://relay-1 ,/ip4/127.0.0.1/tcp/5001,,")
	t.Setenv("PUBLISH_MAX_ATTEMPTS", "3")
	t.Setenv("PUBLISH_BACKOFF", "2s")
	t.Setenv("PUBLISH_MAX_BACKOFF", "5s")
	t.Setenv("PUBLISH_BACKOFF_STRATEGY", "Exponential")
	t.Setenv("PUBLISH_TARGET_TIMEOUT", "1500ms")

	service := NewPublishingService(nil, &FakeStateRepository{}, loggers.NewTestLogger())
	Assert(t, 2, len(service.targets), "Incorrect number of targets")
	Assert(t, "http://relay-1", service.targets[0].Address, "Addresses should be trimmed")
	Assert(t, 1500*time.Millisecond, service.targets[1].Timeout, "Incorrect target timeout")
	Assert(t, 3, service.policy.MaxAttempts, "Incorrect max attempts")
	Assert(t, 2*time.Second, service.policy.Backoff, "Incorrect backoff")
	Assert(t, 5*time.Second, service.policy.MaxBackoff, "Incorrect max backoff")
	Assert(t, models.BackoffStrategy_Exponential, service.policy.Strategy, "Incorrect strategy")
}

func TestPublishRecord(t *testing.T) {
	tests := map[string]struct {
		endpoints       map[string]*fakeEndpoint
		existingTip     time.Duration // offset of an existing tip from the record's timestamp
		expectedErr     error
		expectedTip     bool
		expectedEntries int
	}{
		"delivered record becomes the tip": {
			endpoints:       map[string]*fakeEndpoint{"B": {failures: -1}},
			expectedTip:     true,
			expectedEntries: 1,
		},
		"undelivered record is recorded but not the tip": {
			endpoints:       map[string]*fakeEndpoint{"A": {failures: -1}, "B": {failures: -1}},
			expectedErr:     models.ErrTotalFailure,
			expectedTip:     false,
			expectedEntries: 1,
		},
		"older revision does not replace the tip": {
			endpoints:       map[string]*fakeEndpoint{},
			existingTip:     time.Hour,
			expectedTip:     false,
			expectedEntries: 1,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("RELAY_ADDRESSES", "A,B")
			record := testRecord(t)
			stateDb := &FakeStateRepository{tips: make(map[string]*models.RecordTip)}
			key := record.AuthorId + "/" + record.StableKey
			if test.existingTip != 0 {
				stateDb.tips[key] = &models.RecordTip{RecordId: "newer", CreatedAt: record.CreatedAt.Add(test.existingTip)}
			}
			logger := loggers.NewTestLogger()
			publisher := NewRelayPublisher(NewFakeTransport(test.endpoints), &MockMetricService{}, logger, NewFakeClock(), nil)
			service := NewPublishingService(publisher, stateDb, logger)

			report, err := service.PublishRecord(context.Background(), record)
			if test.expectedErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			} else if test.expectedErr != nil && !errors.Is(err, test.expectedErr) {
				t.Fatalf("expected error %v, got %v", test.expectedErr, err)
			}
			Assert(t, record.Id, report.RecordId, "Incorrect report")
			Assert(t, test.expectedEntries, len(stateDb.entries), "Incorrect number of ledger entries")
			tip := stateDb.tips[key]
			Assert(t, test.expectedTip, (tip != nil) && (tip.RecordId == record.Id), "Incorrect tip")
			if len(stateDb.entries) > 0 {
				entry := stateDb.entries[0]
				Assert(t, record.Id, entry.RecordId, "Incorrect ledger record")
				Assert(t, len(report.SucceededTargets), len(entry.Succeeded), "Incorrect ledger successes")
				Assert(t, len(report.FailedTargets), len(entry.Failed), "Incorrect ledger failures")
			}
		})
	}
}

func TestLedgerEntryDeduplicatesTargets(t *testing.T) {
	report := &models.PublishReport{
		RecordId:         "rid",
		SucceededTargets: []models.PublishTarget{{Address: "A"}, {Address: "A"}},
		FailedTargets:    []models.TargetFailure{{Target: models.PublishTarget{Address: "B"}, Err: errors.New("nope")}},
		RetryCount:       2,
		TotalDuration:    1500 * time.Millisecond,
	}
	entry := ledgerEntry(report, time.Now())
	Assert(t, 1, len(entry.Succeeded), "Duplicate targets should be stored once")
	Assert(t, 1, len(entry.Failed), "Incorrect failures")
	Assert(t, 2, entry.RetryCount, "Incorrect retry count")
	Assert(t, int64(1500), entry.DurationMs, "Incorrect duration")
}
