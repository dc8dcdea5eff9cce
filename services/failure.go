package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abevier/tsk/batch"
	"github.com/abevier/tsk/results"

	"github.com/ceramicnetwork/go-fanout"
	"github.com/ceramicnetwork/go-fanout/models"
)

// FailureHandlingService turns failure queue messages into alerts. Messages arriving close together are combined into
// a single alert.
type FailureHandlingService struct {
	notif         models.Notifier
	metricService models.MetricService
	logger        models.Logger
	batcher       *batch.Executor[*models.FailureMessage, int]
}

func NewFailureHandlingService(notif models.Notifier, metricService models.MetricService, logger models.Logger) *FailureHandlingService {
	alertBatchSize := models.DefaultFailureAlertBatchSize
	if configAlertBatchSize, found := os.LookupEnv(fanout.Env_FailureAlertSize); found {
		if parsedAlertBatchSize, err := strconv.Atoi(configAlertBatchSize); err == nil {
			alertBatchSize = parsedAlertBatchSize
		}
	}
	alertLinger := models.DefaultFailureAlertLinger
	if configAlertLinger, found := os.LookupEnv(fanout.Env_FailureAlertLinger); found {
		if parsedAlertLinger, err := time.ParseDuration(configAlertLinger); err == nil {
			alertLinger = parsedAlertLinger
		}
	}
	failureHandlingService := FailureHandlingService{notif: notif, metricService: metricService, logger: logger}
	beOpts := batch.Opts{MaxSize: alertBatchSize, MaxLinger: alertLinger}
	failureHandlingService.batcher = batch.New[*models.FailureMessage, int](beOpts, failureHandlingService.alert)
	return &failureHandlingService
}

func (f FailureHandlingService) Failure(ctx context.Context, msgBody string) error {
	failureMsg := new(models.FailureMessage)
	if err := json.Unmarshal([]byte(msgBody), failureMsg); err != nil {
		return err
	}
	f.metricService.Count(ctx, models.MetricName_FailureMessage, 1)
	f.logger.Debugw("failure: dequeued",
		"kind", failureMsg.Kind,
		"subject", failureMsg.Subject,
	)
	if numAlerted, err := f.batcher.Submit(ctx, failureMsg); err != nil {
		return err
	} else {
		f.logger.Debugf("failure: alerted %s failure for %s with %d other(s)", failureMsg.Kind, failureMsg.Subject, numAlerted-1)
		return nil
	}
}

func (f FailureHandlingService) alert(failureMsgs []*models.FailureMessage) ([]results.Result[int], error) {
	desc := models.AlertDesc_Failures
	texts := make([]string, len(failureMsgs))
	for idx, failureMsg := range failureMsgs {
		errs := strings.Join(failureMsg.Errors, "\n")
		switch failureMsg.Kind {
		case models.FailureKind_Publish:
			texts[idx] = fmt.Sprintf(models.AlertFmt_TotalFailure, failureMsg.Subject, failureMsg.Targets, errs)
		default:
			texts[idx] = fmt.Sprintf(models.AlertFmt_DeliveryFailure, failureMsg.Subject, errs)
		}
	}
	if len(failureMsgs) == 1 {
		if failureMsgs[0].Kind == models.FailureKind_Publish {
			desc = models.AlertDesc_TotalFailure
		} else {
			desc = models.AlertDesc_DeliveryFailure
		}
	}
	if err := f.notif.SendAlert(models.AlertTitle, desc, strings.Join(texts, "\n\n")); err != nil {
		f.logger.Errorf("failure: error sending alert for %d failure(s): %v", len(failureMsgs), err)
		return nil, err
	}
	batchResults := make([]results.Result[int], len(failureMsgs))
	for idx := range failureMsgs {
		batchResults[idx] = results.New[int](len(failureMsgs), nil)
	}
	return batchResults, nil
}

// DLQ handles failure messages that could not be alerted after repeated attempts.
func (f FailureHandlingService) DLQ(ctx context.Context, msgBody string) error {
	f.metricService.Count(ctx, models.MetricName_FailureDlqMessage, 1)
	kind := "Unknown"
	failureMsg := new(models.FailureMessage)
	if err := json.Unmarshal([]byte(msgBody), failureMsg); err == nil {
		kind = string(failureMsg.Kind)
		f.logger.Debugw("dlq: dequeued",
			"kind", failureMsg.Kind,
			"subject", failureMsg.Subject,
		)
	}
	return f.notif.SendAlert(
		models.AlertTitle,
		models.AlertDesc_DeadLetterQueue,
		fmt.Sprintf(models.AlertFmt_DeadLetterQueue, kind, msgBody),
	)
}
