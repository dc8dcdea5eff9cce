package queue

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/abevier/go-sqs/gosqs"

	"github.com/ceramicnetwork/go-fanout/models"
)

var _ models.Queue = &queue{}

const maxLinger = 250 * time.Millisecond
const defaultNumConsumerWorkers = 10

type RedriveOpts struct {
	DlqId           string
	MaxReceiveCount int
}

type Opts struct {
	QueueType         Type
	VisibilityTimeout *time.Duration
	RedriveOpts       *RedriveOpts
	NumWorkers        *int
}

type queue struct {
	queueType Type
	publisher *gosqs.SQSPublisher
	consumer  *gosqs.SQSConsumer
	monitor   models.QueueMonitor
	logger    models.Logger
}

// NewQueue creates the SQS queue if needed and returns a handle that can both publish to it and, once started,
// consume from it with the given callback.
func NewQueue(
	ctx context.Context,
	metricService models.MetricService,
	logger models.Logger,
	sqsClient *sqs.Client,
	opts Opts,
	callback gosqs.MessageCallbackFunc,
) (models.Queue, string, error) {
	if url, arn, name, err := CreateQueue(ctx, sqsClient, opts); err != nil {
		return nil, "", err
	} else {
		monitor := NewMonitor(url, sqsClient)
		if err = metricService.QueueGauge(ctx, name, monitor); err != nil {
			logger.Errorf("error creating gauge for %s queue: %v", name, err)
		}
		publisher := gosqs.NewPublisher(
			sqsClient,
			url,
			maxLinger,
		)
		var maxWorkers float64 = defaultNumConsumerWorkers
		if opts.NumWorkers != nil {
			maxWorkers = math.Max(maxWorkers, float64(*opts.NumWorkers))
		}
		maxReceivedMessages := math.Ceil(maxWorkers * 1.2)
		maxInflightRequests := math.Ceil(maxReceivedMessages / 10)
		qOpts := gosqs.Opts{
			MaxReceivedMessages:               int(maxReceivedMessages),
			MaxWorkers:                        int(maxWorkers),
			MaxInflightReceiveMessageRequests: int(maxInflightRequests),
		}
		return &queue{
			opts.QueueType,
			publisher,
			gosqs.NewConsumer(qOpts, publisher, callback),
			monitor,
			logger,
		}, arn, nil
	}
}

func (q queue) SendMessage(ctx context.Context, event any) (string, error) {
	if eventBody, err := json.Marshal(event); err != nil {
		return "", err
	} else if msgId, err := q.publisher.SendMessage(ctx, string(eventBody)); err != nil {
		return "", err
	} else {
		return msgId, nil
	}
}

func (q queue) Start() {
	q.consumer.Start()
	q.logger.Infof("%s: started", q.queueType)
}

func (q queue) Shutdown() {
	q.consumer.Shutdown()
	q.logger.Infof("%s: stopped", q.queueType)
}

func (q queue) Monitor() models.QueueMonitor {
	return q.monitor
}
