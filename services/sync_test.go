package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ceramicnetwork/go-fanout/common/loggers"
	"github.com/ceramicnetwork/go-fanout/models"
)

func TestReconcile(t *testing.T) {
	t0 := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	apple := models.CollectionItem{ItemKey: "apple", Quantity: 1, UnitPriceMinor: 100, UpdatedAt: t0}
	newerApple := models.CollectionItem{ItemKey: "apple", Quantity: 4, UnitPriceMinor: 100, UpdatedAt: t0.Add(time.Minute)}
	banana := models.CollectionItem{ItemKey: "banana", Quantity: 2, UnitPriceMinor: 50, UpdatedAt: t0}

	tests := map[string]struct {
		local               models.Collection
		remote              models.Collection
		expectedConflicts   int
		expectedLocalSaves  int
		expectedRemoteSaves int
		expectedPublished   int
	}{
		"in sync": {
			local:  models.Collection{"apple": apple},
			remote: models.Collection{"apple": apple},
		},
		"remote is behind": {
			local:               models.Collection{"apple": newerApple, "banana": banana},
			remote:              models.Collection{"apple": apple},
			expectedConflicts:   1,
			expectedRemoteSaves: 1,
			expectedPublished:   1,
		},
		"local is behind": {
			local:              models.Collection{"apple": apple},
			remote:             models.Collection{"apple": newerApple},
			expectedConflicts:  1,
			expectedLocalSaves: 1,
		},
		"both sides changed": {
			local:               models.Collection{"apple": apple},
			remote:              models.Collection{"banana": banana},
			expectedLocalSaves:  1,
			expectedRemoteSaves: 1,
			expectedPublished:   1,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			local := &FakeCollectionRepository{collections: map[string]models.Collection{"owner": test.local}}
			remote := &FakeCollectionRepository{collections: map[string]models.Collection{"owner": test.remote}}
			publisher := &FakeRecordPublisher{}
			metricService := &MockMetricService{}
			service := NewSyncService(local, remote, publisher, &FakeSigner{}, "did:key:alice", metricService, loggers.NewTestLogger(), NewFakeClock())

			merged, conflicts, err := service.Reconcile(context.Background(), "owner")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			Assert(t, test.expectedConflicts, conflicts, "Incorrect conflict count")
			Assert(t, test.expectedConflicts, metricService.count(models.MetricName_MergeConflict), "Incorrect conflict metric")
			Assert(t, test.expectedLocalSaves, local.saves, "Incorrect local saves")
			Assert(t, test.expectedRemoteSaves, remote.saves, "Incorrect remote saves")
			Assert(t, true, merged.Equal(local.collections["owner"]), "Local copy should match the merge")
			Assert(t, true, merged.Equal(remote.collections["owner"]), "Remote copy should match the merge")
			Assert(t, test.expectedPublished, len(publisher.records), "Incorrect number of published records")
			if len(publisher.records) > 0 {
				record := publisher.records[0]
				Assert(t, models.CollectionKeyPrefix+"owner", record.StableKey, "Incorrect record key")
				Assert(t, "did:key:alice", record.AuthorId, "Incorrect record author")
				published := models.Collection{}
				if err = json.Unmarshal(record.Payload, &published); err != nil {
					t.Fatalf("invalid record payload: %v", err)
				}
				Assert(t, true, merged.Equal(published), "Published collection should match the merge")
			}
		})
	}
}

func TestReconcileErrors(t *testing.T) {
	logger := loggers.NewTestLogger()
	ok := func() *FakeCollectionRepository {
		return &FakeCollectionRepository{collections: map[string]models.Collection{
			"owner": {"apple": {ItemKey: "apple", Quantity: 1, UpdatedAt: time.Now()}},
		}}
	}

	service := NewSyncService(&FakeCollectionRepository{fail: true}, ok(), nil, &FakeSigner{}, "author", &MockMetricService{}, logger, NewFakeClock())
	if _, _, err := service.Reconcile(context.Background(), "owner"); err == nil {
		t.Errorf("expected local load error")
	}

	service = NewSyncService(ok(), &FakeCollectionRepository{fail: true}, nil, &FakeSigner{}, "author", &MockMetricService{}, logger, NewFakeClock())
	if _, _, err := service.Reconcile(context.Background(), "owner"); err == nil {
		t.Errorf("expected remote load error")
	}

	remote := &FakeCollectionRepository{collections: map[string]models.Collection{}}
	service = NewSyncService(ok(), remote, &FakeRecordPublisher{fail: true}, &FakeSigner{}, "author", &MockMetricService{}, logger, NewFakeClock())
	if _, _, err := service.Reconcile(context.Background(), "owner"); !errors.Is(err, models.ErrTotalFailure) {
		t.Errorf("expected publish error, got %v", err)
	}
	Assert(t, 1, remote.saves, "Remote copy should be saved before publishing")
}
