package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ceramicnetwork/go-fanout/models"
)

// SyncService reconciles an owner's local collection with the remote copy.
type SyncService struct {
	local         models.CollectionRepository
	remote        models.CollectionRepository
	publisher     models.RecordPublisher
	signer        models.Signer
	authorId      string
	metricService models.MetricService
	logger        models.Logger
	clock         models.Clock
}

// NewSyncService creates a sync service. When a publisher is given, every change to the remote copy is also published
// as a signed record.
func NewSyncService(
	local models.CollectionRepository,
	remote models.CollectionRepository,
	publisher models.RecordPublisher,
	signer models.Signer,
	authorId string,
	metricService models.MetricService,
	logger models.Logger,
	clock models.Clock,
) *SyncService {
	return &SyncService{local, remote, publisher, signer, authorId, metricService, logger, clock}
}

// Reconcile merges both copies of the owner's collection, writes the result to whichever side was out of date and
// returns it with the number of conflicts resolved.
func (s SyncService) Reconcile(ctx context.Context, ownerId string) (models.Collection, int, error) {
	localCollection, err := s.local.Load(ctx, ownerId)
	if err != nil {
		return nil, 0, fmt.Errorf("reconcile: error loading local collection for %s: %w", ownerId, err)
	}
	remoteCollection, err := s.remote.Load(ctx, ownerId)
	if err != nil {
		return nil, 0, fmt.Errorf("reconcile: error loading remote collection for %s: %w", ownerId, err)
	}
	merged, conflicts := Merge(localCollection, remoteCollection)
	if conflicts > 0 {
		s.metricService.Count(ctx, models.MetricName_MergeConflict, conflicts)
		s.logger.Infof("reconcile: resolved %d conflict(s) for %s", conflicts, ownerId)
	}
	if !merged.Equal(localCollection) {
		if err = s.local.Save(ctx, ownerId, merged); err != nil {
			return merged, conflicts, fmt.Errorf("reconcile: error saving local collection for %s: %w", ownerId, err)
		}
	}
	if !merged.Equal(remoteCollection) {
		if err = s.remote.Save(ctx, ownerId, merged); err != nil {
			return merged, conflicts, fmt.Errorf("reconcile: error saving remote collection for %s: %w", ownerId, err)
		}
		if err = s.publish(ctx, ownerId, merged); err != nil {
			return merged, conflicts, err
		}
	}
	return merged, conflicts, nil
}

func (s SyncService) publish(ctx context.Context, ownerId string, collection models.Collection) error {
	if s.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(collection)
	if err != nil {
		return fmt.Errorf("reconcile: error encoding collection for %s: %w", ownerId, err)
	}
	record, err := SignRecord(s.signer, models.RecordDraft{
		StableKey: models.CollectionKeyPrefix + ownerId,
		AuthorId:  s.authorId,
		CreatedAt: s.clock.Now(),
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	if report, err := s.publisher.PublishRecord(ctx, record); err != nil {
		return fmt.Errorf("reconcile: error publishing collection for %s: %w", ownerId, err)
	} else {
		s.logger.Debugf("reconcile: published collection for %s as %s to %d target(s)", ownerId, record.Id, len(report.SucceededTargets))
	}
	return nil
}
