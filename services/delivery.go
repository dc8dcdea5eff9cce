package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/ceramicnetwork/go-fanout/common"
	"github.com/ceramicnetwork/go-fanout/models"
)

// GroupedDeliveryCoordinator turns one delivery intent into an independent encrypted delivery per counterparty.
type GroupedDeliveryCoordinator struct {
	transport        models.Transport
	metricService    models.MetricService
	logger           models.Logger
	clock            models.Clock
	validator        *validator.Validate
	failurePublisher models.QueuePublisher
}

type deliveryGroup struct {
	counterpartyId string
	items          []models.DeliveryItem
}

type groupResult struct {
	index  int
	report models.DeliveryReport
}

// NewGroupedDeliveryCoordinator creates a coordinator. The failure publisher is optional.
func NewGroupedDeliveryCoordinator(
	transport models.Transport,
	metricService models.MetricService,
	logger models.Logger,
	clock models.Clock,
	failurePublisher models.QueuePublisher,
) *GroupedDeliveryCoordinator {
	return &GroupedDeliveryCoordinator{
		transport:        transport,
		metricService:    metricService,
		logger:           logger,
		clock:            clock,
		validator:        validator.New(),
		failurePublisher: failurePublisher,
	}
}

// Deliver validates the intent, then encrypts and sends each counterparty's items concurrently. Reports are ordered by
// each counterparty's first appearance in the intent. The returned bool is true only if every delivery succeeded.
func (d *GroupedDeliveryCoordinator) Deliver(
	ctx context.Context,
	intent models.DeliveryIntent,
	sender models.Signer,
) ([]models.DeliveryReport, bool, error) {
	if err := d.validator.Struct(intent); err != nil {
		d.metricService.Count(ctx, models.MetricName_DeliveryInvalid, 1)
		d.logger.Warnf("deliver: rejecting intent: %v", err)
		return nil, false, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	groups := groupByCounterparty(intent.Items)

	// Buffered so that abandoned goroutines never block after the caller's deadline
	results := make(chan groupResult, len(groups))
	for idx, group := range groups {
		go func(idx int, group deliveryGroup) {
			results <- groupResult{idx, d.deliverGroup(ctx, group, sender)}
		}(idx, group)
	}

	reports := make([]*models.DeliveryReport, len(groups))
	for remaining := len(groups); remaining > 0; {
		select {
		case result := <-results:
			reports[result.index] = &result.report
			remaining--
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case result := <-results:
					reports[result.index] = &result.report
				default:
					drained = true
				}
			}
			for idx, report := range reports {
				if report == nil {
					reports[idx] = &models.DeliveryReport{
						CounterpartyId: groups[idx].counterpartyId,
						Err:            fmt.Errorf("%w: %v", models.ErrTargetTimeout, ctx.Err()),
					}
				}
			}
			remaining = 0
		}
	}

	allSucceeded := true
	deliveryReports := make([]models.DeliveryReport, len(reports))
	for idx, report := range reports {
		deliveryReports[idx] = *report
		if report.Succeeded {
			d.metricService.Count(ctx, models.MetricName_DeliverySucceeded, 1)
		} else {
			allSucceeded = false
			d.metricService.Count(ctx, models.MetricName_DeliveryFailed, 1)
			d.logger.Warnf("deliver: delivery to %s failed: %v", report.CounterpartyId, report.Err)
			d.reportFailure(report, len(groups[idx].items))
		}
	}
	return deliveryReports, allSucceeded, nil
}

// groupByCounterparty partitions items by counterparty, keeping groups in order of first appearance and items in their
// original order within each group.
func groupByCounterparty(items []models.DeliveryItem) []deliveryGroup {
	groups := make([]deliveryGroup, 0)
	groupIdx := make(map[string]int)
	for _, item := range items {
		if idx, found := groupIdx[item.CounterpartyId]; found {
			groups[idx].items = append(groups[idx].items, item)
		} else {
			groupIdx[item.CounterpartyId] = len(groups)
			groups = append(groups, deliveryGroup{item.CounterpartyId, []models.DeliveryItem{item}})
		}
	}
	return groups
}

func (d *GroupedDeliveryCoordinator) deliverGroup(ctx context.Context, group deliveryGroup, sender models.Signer) (report models.DeliveryReport) {
	report.CounterpartyId = group.counterpartyId
	defer func() {
		if r := recover(); r != nil {
			report.Succeeded = false
			report.Err = fmt.Errorf("%w: panic: %v", models.ErrDeliveryFailed, r)
		}
	}()
	envelope := models.DeliveryEnvelope{Id: uuid.New().String(), Items: group.items}
	if plaintext, err := json.Marshal(envelope); err != nil {
		report.Err = fmt.Errorf("%w: error encoding envelope: %v", models.ErrDeliveryFailed, err)
	} else if ciphertext, err := sender.Encrypt(group.counterpartyId, plaintext); err != nil {
		report.Err = fmt.Errorf("%w: error encrypting envelope: %v", models.ErrDeliveryFailed, err)
	} else if err = d.transport.Send(ctx, group.counterpartyId, ciphertext); err != nil {
		report.Err = fmt.Errorf("%w: error sending envelope: %v", models.ErrDeliveryFailed, err)
	} else {
		d.logger.Debugf("deliver: sent envelope %s with %d item(s) to %s", envelope.Id, len(group.items), group.counterpartyId)
		report.Succeeded = true
	}
	return report
}

func (d *GroupedDeliveryCoordinator) reportFailure(report *models.DeliveryReport, numItems int) {
	if d.failurePublisher == nil {
		return
	}
	msg := models.FailureMessage{
		Id:        uuid.New(),
		Kind:      models.FailureKind_Delivery,
		Subject:   report.CounterpartyId,
		Targets:   numItems,
		Errors:    []string{report.Err.Error()},
		Timestamp: d.clock.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), common.DefaultRpcWaitTime)
	defer cancel()
	if _, err := d.failurePublisher.SendMessage(ctx, msg); err != nil {
		d.logger.Errorf("deliver: error reporting failure for %s: %v", report.CounterpartyId, err)
	}
}
