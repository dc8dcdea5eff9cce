package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ceramicnetwork/go-fanout"
	"github.com/ceramicnetwork/go-fanout/common"
	"github.com/ceramicnetwork/go-fanout/common/aws/config"
	"github.com/ceramicnetwork/go-fanout/common/aws/ddb"
	"github.com/ceramicnetwork/go-fanout/common/aws/queue"
	"github.com/ceramicnetwork/go-fanout/common/aws/storage"
	"github.com/ceramicnetwork/go-fanout/common/db"
	"github.com/ceramicnetwork/go-fanout/common/ipfs"
	"github.com/ceramicnetwork/go-fanout/common/loggers"
	"github.com/ceramicnetwork/go-fanout/common/metrics"
	"github.com/ceramicnetwork/go-fanout/common/notifs"
	"github.com/ceramicnetwork/go-fanout/common/signer"
	"github.com/ceramicnetwork/go-fanout/common/transport"
	"github.com/ceramicnetwork/go-fanout/models"
	"github.com/ceramicnetwork/go-fanout/services"
)

type publishCmd struct {
	Key     string `arg:"-k,--key,required" help:"stable key of the record"`
	Payload string `arg:"positional,required" help:"file holding the record payload"`
}

type uploadCmd struct {
	Files []string `arg:"positional,required" help:"files to upload, in order"`
}

type syncCmd struct {
	Owner string `arg:"positional,required" help:"owner of the collection to reconcile"`
}

type deliverCmd struct {
	Intent string `arg:"positional,required" help:"file holding a JSON delivery intent"`
}

type serveCmd struct{}

type cliArgs struct {
	Publish *publishCmd   `arg:"subcommand:publish" help:"sign and publish a record to the configured relays"`
	Upload  *uploadCmd    `arg:"subcommand:upload" help:"upload files to blob storage"`
	Sync    *syncCmd      `arg:"subcommand:sync" help:"reconcile the local and remote copies of a collection"`
	Deliver *deliverCmd   `arg:"subcommand:deliver" help:"send encrypted deliveries to counterparties"`
	Serve   *serveCmd     `arg:"subcommand:serve" help:"consume the failure queues and send alerts"`
	EnvFile string        `arg:"--env-file,env:ENV_FILE" default:"env/.env" help:"optional .env file"`
	Timeout time.Duration `arg:"--timeout" default:"2m" help:"deadline for a single command"`
}

func (cliArgs) Description() string {
	return "publishes signed records to unreliable relays and reconciles collections"
}

// logObserver reports upload progress on the command line
type logObserver struct {
	logger models.Logger
}

func (o logObserver) OnProgress(progress models.BatchProgress, analytics models.Analytics) {
	o.logger.Infof(
		"upload: %d%% (%d completed, %d failed of %d), %.2f files/s, %s remaining",
		progress.OverallProgressPct, progress.CompletedCount, progress.FailedCount, progress.Total,
		analytics.Throughput, analytics.EstimatedTimeRemaining.Round(time.Second),
	)
}

func main() {
	var args cliArgs
	p := arg.MustParse(&args)
	if p.Subcommand() == nil {
		p.Fail("missing command")
	}
	envErr := godotenv.Load(args.EnvFile)

	logger := loggers.NewLogger()
	defer logger.Sync()
	if envErr != nil {
		logger.Debugf("main: not loading env file %s: %v", args.EnvFile, envErr)
	}

	serverCtx, serverCtxCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer serverCtxCancel()

	metricService, err := metrics.NewOtelMetricService(serverCtx, logger)
	if err != nil {
		logger.Fatalf("main: failed to create metric service: %v", err)
	}
	defer metricService.Shutdown(context.Background())

	awsCfg, err := config.AwsConfig(serverCtx)
	if err != nil {
		logger.Fatalf("main: error creating aws cfg: %v", err)
	}

	discordHandler, err := notifs.NewDiscordHandler(logger)
	if err != nil {
		logger.Fatalf("main: failed to create discord handler: %v", err)
	}

	// Failure messages that can't be alerted after a few attempts land in the dead-letter queue
	sqsClient := sqs.NewFromConfig(awsCfg)
	failureHandlingService := services.NewFailureHandlingService(discordHandler, metricService, logger)
	dlq, dlqArn, err := queue.NewQueue(
		serverCtx,
		metricService,
		logger,
		sqsClient,
		queue.Opts{QueueType: queue.Type_DLQ},
		failureHandlingService.DLQ,
	)
	if err != nil {
		logger.Fatalf("main: failed to create dead-letter queue: %v", err)
	}
	failureQueue, _, err := queue.NewQueue(
		serverCtx,
		metricService,
		logger,
		sqsClient,
		queue.Opts{
			QueueType:   queue.Type_Failure,
			RedriveOpts: &queue.RedriveOpts{DlqId: dlqArn, MaxReceiveCount: queue.DefaultMaxReceiveCount},
		},
		failureHandlingService.Failure,
	)
	if err != nil {
		logger.Fatalf("main: failed to create failure queue: %v", err)
	}

	if args.Serve != nil {
		dlq.Start()
		failureQueue.Start()
		<-serverCtx.Done()
		logger.Infof("main: shutting down")
		failureQueue.Shutdown()
		dlq.Shutdown()
		return
	}

	ctx, cancel := context.WithTimeout(serverCtx, args.Timeout)
	defer cancel()
	clock := services.NewSystemClock()
	switch {
	case args.Publish != nil:
		err = runPublish(ctx, args.Publish, awsCfg, failureQueue, metricService, logger, clock)
	case args.Upload != nil:
		err = runUpload(ctx, args.Upload, awsCfg, metricService, logger, clock)
	case args.Sync != nil:
		err = runSync(ctx, args.Sync, awsCfg, failureQueue, metricService, logger, clock)
	case args.Deliver != nil:
		err = runDeliver(ctx, args.Deliver, failureQueue, metricService, logger, clock)
	}
	if err != nil {
		logger.Errorf("main: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func newPublishingService(
	ctx context.Context,
	awsCfg aws.Config,
	failureQueue models.QueuePublisher,
	metricService models.MetricService,
	logger models.Logger,
	clock models.Clock,
) (*services.PublishingService, error) {
	// Use override endpoint, if specified, for the state DB so that the revision ledger can live locally while other
	// operations hit regular AWS endpoints.
	dbAwsCfg := awsCfg
	if dbEndpoint := os.Getenv(fanout.Env_DbEndpoint); len(dbEndpoint) > 0 {
		logger.Infof("main: using custom state db endpoint: %s", dbEndpoint)
		var err error
		if dbAwsCfg, err = config.AwsConfigWithOverride(ctx, dbEndpoint); err != nil {
			return nil, fmt.Errorf("failed to create db aws cfg: %w", err)
		}
	}
	stateDb := ddb.NewStateDb(ctx, logger, dynamodb.NewFromConfig(dbAwsCfg))
	router := transport.NewRouter(
		transport.NewHttpTransport(&http.Client{Timeout: common.DefaultRpcWaitTime}, logger),
		ipfs.NewRelayTransport(logger, metricService),
	)
	publisher := services.NewRelayPublisher(router, metricService, logger, clock, failureQueue)
	return services.NewPublishingService(publisher, stateDb, logger), nil
}

func authorId(s *signer.AgeSigner) string {
	if configAuthorId, found := os.LookupEnv(fanout.Env_AuthorId); found {
		return configAuthorId
	}
	return hex.EncodeToString(s.PublicKey())
}

func runPublish(
	ctx context.Context,
	cmd *publishCmd,
	awsCfg aws.Config,
	failureQueue models.QueuePublisher,
	metricService models.MetricService,
	logger models.Logger,
	clock models.Clock,
) error {
	payload, err := os.ReadFile(cmd.Payload)
	if err != nil {
		return err
	}
	ageSigner, err := signer.NewAgeSignerFromEnv()
	if err != nil {
		return err
	}
	publishingService, err := newPublishingService(ctx, awsCfg, failureQueue, metricService, logger, clock)
	if err != nil {
		return err
	}
	record, err := services.SignRecord(ageSigner, models.RecordDraft{
		StableKey: cmd.Key,
		AuthorId:  authorId(ageSigner),
		CreatedAt: clock.Now(),
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	report, err := publishingService.PublishRecord(ctx, record)
	if report != nil {
		for _, outcome := range report.Outcomes {
			logger.Infof("publish: %s succeeded=%t attempt=%d latency=%s err=%v", outcome.Target.Address, outcome.Succeeded, outcome.Attempt, outcome.Latency, outcome.Err)
		}
		logger.Infof("publish: record %s success ratio %.2f, %d retries in %s", record.Id, report.SuccessRatio, report.RetryCount, report.TotalDuration)
	}
	return err
}

func runUpload(
	ctx context.Context,
	cmd *uploadCmd,
	awsCfg aws.Config,
	metricService models.MetricService,
	logger models.Logger,
	clock models.Clock,
) error {
	requests := make([]*models.UploadRequest, 0, len(cmd.Files))
	for _, path := range cmd.Files {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		requests = append(requests, &models.UploadRequest{Name: filepath.Base(path), SizeBytes: info.Size(), Body: f})
	}
	uploadService := services.NewUploadService(storage.NewS3Store(logger, s3.NewFromConfig(awsCfg)), metricService, logger, clock)
	uploadResults, tracker := uploadService.UploadBatch(ctx, requests, logObserver{logger})
	failed := 0
	for idx, result := range uploadResults {
		if result.Err != nil {
			failed++
			logger.Errorf("upload: %s failed: %v", requests[idx].Name, result.Err)
		} else {
			logger.Infof("upload: %s stored at %s", requests[idx].Name, result.Blob.Url)
		}
	}
	if progress, _ := tracker.Snapshot(); failed > 0 {
		return fmt.Errorf("%d of %d uploads did not complete", failed, progress.Total)
	}
	return nil
}

func runSync(
	ctx context.Context,
	cmd *syncCmd,
	awsCfg aws.Config,
	failureQueue models.QueuePublisher,
	metricService models.MetricService,
	logger models.Logger,
	clock models.Clock,
) error {
	collectionDb, err := db.NewCollectionDb(ctx, logger, db.DbOpts{
		Host:     os.Getenv(common.Env_DbHost),
		Port:     os.Getenv(common.Env_DbPort),
		User:     os.Getenv(common.Env_DbUsername),
		Password: os.Getenv(common.Env_DbPassword),
		Name:     os.Getenv(common.Env_DbName),
	})
	if err != nil {
		return err
	}
	defer collectionDb.Close()
	ageSigner, err := signer.NewAgeSignerFromEnv()
	if err != nil {
		return err
	}
	publishingService, err := newPublishingService(ctx, awsCfg, failureQueue, metricService, logger, clock)
	if err != nil {
		return err
	}
	syncService := services.NewSyncService(
		collectionDb,
		storage.NewS3Store(logger, s3.NewFromConfig(awsCfg)),
		publishingService,
		ageSigner,
		authorId(ageSigner),
		metricService,
		logger,
		clock,
	)
	merged, conflicts, err := syncService.Reconcile(ctx, cmd.Owner)
	if err != nil {
		return err
	}
	logger.Infof("sync: %s has %d item(s), %d conflict(s) resolved", cmd.Owner, len(merged), conflicts)
	return nil
}

func runDeliver(
	ctx context.Context,
	cmd *deliverCmd,
	failureQueue models.QueuePublisher,
	metricService models.MetricService,
	logger models.Logger,
	clock models.Clock,
) error {
	intentBytes, err := os.ReadFile(cmd.Intent)
	if err != nil {
		return err
	}
	intent := models.DeliveryIntent{}
	if err = json.Unmarshal(intentBytes, &intent); err != nil {
		return err
	}
	ageSigner, err := signer.NewAgeSignerFromEnv()
	if err != nil {
		return err
	}
	inboxApi, err := ipfs.NewIpfsApi(logger, os.Getenv(fanout.Env_IpfsInboxAddress), metricService)
	if err != nil {
		return err
	}
	coordinator := services.NewGroupedDeliveryCoordinator(ipfs.NewInboxTransport(inboxApi), metricService, logger, clock, failureQueue)
	reports, allSucceeded, err := coordinator.Deliver(ctx, intent, ageSigner)
	if err != nil {
		return err
	}
	for _, report := range reports {
		logger.Infof("deliver: %s succeeded=%t err=%v", report.CounterpartyId, report.Succeeded, report.Err)
	}
	if !allSucceeded {
		return models.ErrDeliveryFailed
	}
	return nil
}
