package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ceramicnetwork/go-fanout/common"
	"github.com/ceramicnetwork/go-fanout/models"
)

// RelayPublisher fans a signed record out to a set of relay targets and reports what happened at each one.
type RelayPublisher struct {
	transport        models.Transport
	metricService    models.MetricService
	logger           models.Logger
	clock            models.Clock
	failurePublisher models.QueuePublisher
}

type targetResult struct {
	index   int
	outcome models.PublishOutcome
}

// NewRelayPublisher creates a publisher. The failure publisher is optional.
func NewRelayPublisher(
	transport models.Transport,
	metricService models.MetricService,
	logger models.Logger,
	clock models.Clock,
	failurePublisher models.QueuePublisher,
) *RelayPublisher {
	return &RelayPublisher{transport, metricService, logger, clock, failurePublisher}
}

// Publish sends the record to every target concurrently, retrying each target according to the policy. Partial
// success is not an error. If no target accepted the record the returned error wraps models.ErrTotalFailure and the
// report is still returned.
func (p *RelayPublisher) Publish(
	ctx context.Context,
	record *models.Record,
	targets []models.PublishTarget,
	policy models.RetryPolicy,
) (*models.PublishReport, error) {
	start := p.clock.Now()
	report := &models.PublishReport{RecordId: record.Id}
	if len(targets) == 0 {
		p.logger.Warnf("publish: no targets for record %s", record.Id)
		return report, models.ErrNoTargets
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("publish: error encoding record %s: %w", record.Id, err)
	}

	// Buffered so that abandoned goroutines never block after the caller's deadline
	results := make(chan targetResult, len(targets))
	attempts := make([]atomic.Int32, len(targets))
	for idx, target := range targets {
		go func(idx int, target models.PublishTarget) {
			results <- targetResult{idx, p.publishToTarget(ctx, payload, target, policy, &attempts[idx])}
		}(idx, target)
	}

	outcomes := make([]*models.PublishOutcome, len(targets))
	for remaining := len(targets); remaining > 0; {
		select {
		case result := <-results:
			outcomes[result.index] = &result.outcome
			remaining--
		case <-ctx.Done():
			// Pick up anything that finished before the deadline, then abandon the rest. Results arriving later are
			// never read.
			for drained := false; !drained; {
				select {
				case result := <-results:
					outcomes[result.index] = &result.outcome
				default:
					drained = true
				}
			}
			for idx, outcome := range outcomes {
				if outcome == nil {
					outcomes[idx] = &models.PublishOutcome{
						Target:  targets[idx],
						Latency: p.clock.Now().Sub(start),
						Attempt: int(attempts[idx].Load()),
						Err:     fmt.Errorf("%w: %v", models.ErrTargetTimeout, ctx.Err()),
					}
				}
			}
			remaining = 0
		}
	}
	p.summarize(ctx, report, outcomes, start)

	if !report.Delivered() {
		p.metricService.Count(ctx, models.MetricName_PublishTotalFailure, 1)
		p.reportFailure(report, len(targets))
		return report, fmt.Errorf("%w: record %s, 0/%d targets succeeded", models.ErrTotalFailure, record.Id, len(targets))
	}
	p.logger.Debugf("publish: record %s delivered to %d/%d targets", record.Id, len(report.SucceededTargets), len(targets))
	return report, nil
}

func (p *RelayPublisher) summarize(ctx context.Context, report *models.PublishReport, outcomes []*models.PublishOutcome, start time.Time) {
	var totalLatency time.Duration
	for _, outcome := range outcomes {
		report.Outcomes = append(report.Outcomes, *outcome)
		totalLatency += outcome.Latency
		if outcome.Attempt > 1 {
			report.RetryCount += outcome.Attempt - 1
		}
		if outcome.Succeeded {
			report.SucceededTargets = append(report.SucceededTargets, outcome.Target)
			p.metricService.Count(ctx, models.MetricName_PublishTargetSucceeded, 1)
			p.metricService.Distribution(ctx, models.MetricName_PublishLatency, int(outcome.Latency.Milliseconds()))
		} else {
			report.FailedTargets = append(report.FailedTargets, models.TargetFailure{Target: outcome.Target, Err: outcome.Err})
			p.metricService.Count(ctx, models.MetricName_PublishTargetFailed, 1)
			p.logger.Warnf("publish: target %s failed for record %s after %d attempt(s): %v", outcome.Target.Address, report.RecordId, outcome.Attempt, outcome.Err)
		}
	}
	report.TotalDuration = p.clock.Now().Sub(start)
	report.AverageLatency = totalLatency / time.Duration(len(outcomes))
	report.SuccessRatio = float64(len(report.SucceededTargets)) / float64(len(outcomes))
}

func (p *RelayPublisher) publishToTarget(
	ctx context.Context,
	payload []byte,
	target models.PublishTarget,
	policy models.RetryPolicy,
	attempts *atomic.Int32,
) models.PublishOutcome {
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = models.DefaultTargetTimeout
	}
	numAttempts := maxAttempts(policy)
	var outcome models.PublishOutcome
	for attempt := 1; ; attempt++ {
		attempts.Store(int32(attempt))
		p.metricService.Count(ctx, models.MetricName_PublishAttempt, 1)
		attemptStart := p.clock.Now()
		err := p.send(ctx, target.Address, payload, timeout)
		outcome = models.PublishOutcome{
			Target:    target,
			Succeeded: err == nil,
			Latency:   p.clock.Now().Sub(attemptStart),
			Attempt:   attempt,
			Err:       err,
		}
		if (err == nil) || (attempt >= numAttempts) || (ctx.Err() != nil) {
			return outcome
		}
		delay := backoffDelay(policy, attempt)
		p.logger.Debugf("publish: attempt %d to %s failed, retrying in %s: %v", attempt, target.Address, delay, err)
		if delay > 0 {
			select {
			case <-p.clock.After(delay):
			case <-ctx.Done():
				return outcome
			}
		}
	}
}

// send makes one attempt against the transport. The attempt is abandoned when its timeout elapses, even if the
// transport ignores the context.
func (p *RelayPublisher) send(ctx context.Context, address string, payload []byte, timeout time.Duration) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("transport panic: %v", r)
			}
		}()
		done <- p.transport.Send(attemptCtx, address, payload)
	}()
	select {
	case err := <-done:
		if (err != nil) && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %v", models.ErrTargetTimeout, timeout, err)
		}
		return err
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", models.ErrTargetTimeout, timeout)
		}
		return attemptCtx.Err()
	}
}

func (p *RelayPublisher) reportFailure(report *models.PublishReport, numTargets int) {
	if p.failurePublisher == nil {
		return
	}
	errs := make([]string, len(report.FailedTargets))
	for idx, failure := range report.FailedTargets {
		errs[idx] = fmt.Sprintf("%s: %v", failure.Target.Address, failure.Err)
	}
	msg := models.FailureMessage{
		Id:        uuid.New(),
		Kind:      models.FailureKind_Publish,
		Subject:   report.RecordId,
		Targets:   numTargets,
		Errors:    errs,
		Timestamp: p.clock.Now(),
	}
	// The caller's context may already be done
	ctx, cancel := context.WithTimeout(context.Background(), common.DefaultRpcWaitTime)
	defer cancel()
	if _, err := p.failurePublisher.SendMessage(ctx, msg); err != nil {
		p.logger.Errorf("publish: error reporting failure for record %s: %v, %s", report.RecordId, err, strings.Join(errs, "; "))
	}
}
