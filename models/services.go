package models

import (
	"context"
	"io"
	"time"
)

// Signer is supplied by the host application.
type Signer interface {
	Sign(data []byte) ([]byte, error)
	Encrypt(recipientId string, data []byte) ([]byte, error)
}

// Transport sends a payload to a single address, returning once the endpoint accepted or rejected it.
type Transport interface {
	Send(ctx context.Context, address string, payload []byte) error
}

type BlobStore interface {
	Put(ctx context.Context, name string, body io.Reader, size int64, progress func(written int64)) (*BlobRef, error)
}

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type ProgressObserver interface {
	OnProgress(progress BatchProgress, analytics Analytics)
}

type RecordPublisher interface {
	PublishRecord(ctx context.Context, record *Record) (*PublishReport, error)
}

type StateRepository interface {
	UpdateTip(ctx context.Context, newTip *RecordTip) (bool, *RecordTip, error)
	StoreReport(ctx context.Context, entry *PublishLedgerEntry) error
}

type CollectionRepository interface {
	Load(ctx context.Context, ownerId string) (Collection, error)
	Save(ctx context.Context, ownerId string, collection Collection) error
}

type QueuePublisher interface {
	SendMessage(ctx context.Context, event any) (string, error)
}

type QueueMonitor interface {
	GetUtilization(ctx context.Context) (int, int, error)
}

type Notifier interface {
	SendAlert(title, desc, content string) error
}

type MetricService interface {
	Count(ctx context.Context, name MetricName, val int) error
	Distribution(ctx context.Context, name MetricName, val int) error
	QueueGauge(ctx context.Context, queueName string, monitor QueueMonitor) error
	Shutdown(ctx context.Context)
}

type Logger interface {
	Debugf(template string, args ...interface{})
	Debugw(msg string, args ...interface{})
	Errorf(template string, args ...interface{})
	Fatalf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Sync() error
}

type Queue interface {
	QueuePublisher
	Start()
	Shutdown()
	Monitor() QueueMonitor
}
