package services

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ceramicnetwork/go-fanout"
	"github.com/ceramicnetwork/go-fanout/models"
)

var _ models.RecordPublisher = &PublishingService{}

// PublishingService publishes records to the configured relays and keeps the revision ledger up to date.
type PublishingService struct {
	publisher *RelayPublisher
	stateDb   models.StateRepository
	logger    models.Logger
	targets   []models.PublishTarget
	policy    models.RetryPolicy
}

func NewPublishingService(publisher *RelayPublisher, stateDb models.StateRepository, logger models.Logger) *PublishingService {
	policy := models.RetryPolicy{MaxAttempts: models.DefaultMaxAttempts, MaxBackoff: models.DefaultMaxBackoff}
	if configMaxAttempts, found := os.LookupEnv(fanout.Env_PublishMaxAttempts); found {
		if parsedMaxAttempts, err := strconv.Atoi(configMaxAttempts); err == nil {
			policy.MaxAttempts = parsedMaxAttempts
		}
	}
	if configBackoff, found := os.LookupEnv(fanout.Env_PublishBackoff); found {
		if parsedBackoff, err := time.ParseDuration(configBackoff); err == nil {
			policy.Backoff = parsedBackoff
		}
	}
	if configMaxBackoff, found := os.LookupEnv(fanout.Env_PublishMaxBackoff); found {
		if parsedMaxBackoff, err := time.ParseDuration(configMaxBackoff); err == nil {
			policy.MaxBackoff = parsedMaxBackoff
		}
	}
	if configStrategy, found := os.LookupEnv(fanout.Env_PublishBackoffKind); found && (strings.ToLower(configStrategy) == "exponential") {
		policy.Strategy = models.BackoffStrategy_Exponential
	}
	targetTimeout := models.DefaultTargetTimeout
	if configTargetTimeout, found := os.LookupEnv(fanout.Env_PublishTargetTimeout); found {
		if parsedTargetTimeout, err := time.ParseDuration(configTargetTimeout); err == nil {
			targetTimeout = parsedTargetTimeout
		}
	}
	targets := make([]models.PublishTarget, 0)
	if configAddresses, found := os.LookupEnv(fanout.Env_RelayAddresses); found {
		for _, address := range strings.Split(configAddresses, ",") {
			if address = strings.TrimSpace(address); len(address) > 0 {
				targets = append(targets, models.PublishTarget{Address: address, Timeout: targetTimeout})
			}
		}
	}
	return &PublishingService{publisher, stateDb, logger, targets, policy}
}

func (p PublishingService) PublishRecord(ctx context.Context, record *models.Record) (*models.PublishReport, error) {
	report, publishErr := p.publisher.Publish(ctx, record, p.targets, p.policy)
	if (report != nil) && (len(report.Outcomes) > 0) {
		if err := p.stateDb.StoreReport(ctx, ledgerEntry(report, p.publisher.clock.Now())); err != nil {
			p.logger.Errorf("publishRecord: error storing report for record %s: %v", record.Id, err)
			if publishErr == nil {
				return report, err
			}
		}
	}
	if publishErr != nil {
		return report, publishErr
	}
	newTip := &models.RecordTip{
		AuthorId:  record.AuthorId,
		StableKey: record.StableKey,
		RecordId:  record.Id,
		CreatedAt: record.CreatedAt,
	}
	if updated, oldTip, err := p.stateDb.UpdateTip(ctx, newTip); err != nil {
		return report, fmt.Errorf("publishRecord: error updating tip for record %s: %w", record.Id, err)
	} else if !updated {
		p.logger.Debugf("publishRecord: record %s is older than the current tip for %s/%s", record.Id, record.AuthorId, record.StableKey)
	} else if oldTip != nil {
		p.logger.Debugf("publishRecord: record %s replaced tip %s for %s/%s", record.Id, oldTip.RecordId, record.AuthorId, record.StableKey)
	}
	return report, nil
}

func ledgerEntry(report *models.PublishReport, publishedAt time.Time) *models.PublishLedgerEntry {
	entry := &models.PublishLedgerEntry{
		RecordId:    report.RecordId,
		PublishedAt: publishedAt,
		RetryCount:  report.RetryCount,
		DurationMs:  report.TotalDuration.Milliseconds(),
	}
	// String sets can't hold duplicates
	succeeded := make(map[string]bool)
	for _, target := range report.SucceededTargets {
		if !succeeded[target.Address] {
			succeeded[target.Address] = true
			entry.Succeeded = append(entry.Succeeded, target.Address)
		}
	}
	failed := make(map[string]bool)
	for _, failure := range report.FailedTargets {
		if !failed[failure.Target.Address] {
			failed[failure.Target.Address] = true
			entry.Failed = append(entry.Failed, failure.Target.Address)
		}
	}
	return entry
}
