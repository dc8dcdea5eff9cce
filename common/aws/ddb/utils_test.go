package ddb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ceramicnetwork/go-fanout/common/loggers"
	"github.com/ceramicnetwork/go-fanout/models"
)

// fakeTableClient returns the scripted statuses from successive DescribeTable calls, an empty status meaning the table
// does not exist. The last status repeats once the script runs out.
type fakeTableClient struct {
	lock        sync.Mutex
	statuses    []types.TableStatus
	describeErr error
	describes   int
	creates     int
}

func (f *fakeTableClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.creates++
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeTableClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	idx := f.describes
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.describes++
	if f.statuses[idx] == "" {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableStatus: f.statuses[idx]}}, nil
}

func TestCreateActiveTable(t *testing.T) {
	client := &fakeTableClient{statuses: []types.TableStatus{types.TableStatusActive}}
	if err := createTable(context.Background(), loggers.NewTestLogger(), client, &dynamodb.CreateTableInput{TableName: aws.String("tip")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.creates != 0 {
		t.Errorf("existing table should not be created again: creates=%d", client.creates)
	}
}

func TestCreateTableDescribeError(t *testing.T) {
	client := &fakeTableClient{describeErr: errors.New("access denied")}
	if err := createTable(context.Background(), loggers.NewTestLogger(), client, &dynamodb.CreateTableInput{TableName: aws.String("tip")}); err == nil {
		t.Fatalf("describe failure should be returned")
	}
	if client.creates != 0 {
		t.Errorf("table should not be created after a describe failure: creates=%d", client.creates)
	}
}

func TestWaitForTable(t *testing.T) {
	tests := map[string]struct {
		statuses          []types.TableStatus
		expectedErr       bool
		expectedDescribes int
	}{
		"active after creating": {
			statuses:          []types.TableStatus{types.TableStatusCreating, types.TableStatusActive},
			expectedDescribes: 2,
		},
		"never active": {
			statuses:          []types.TableStatus{types.TableStatusCreating},
			expectedErr:       true,
			expectedDescribes: 3,
		},
		"not yet visible": {
			statuses:          []types.TableStatus{"", types.TableStatusActive},
			expectedDescribes: 2,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			client := &fakeTableClient{statuses: test.statuses}
			err := waitForTable(context.Background(), client, "ledger", 3, time.Millisecond)
			if (err != nil) != test.expectedErr {
				t.Errorf("incorrect error: %v", err)
			}
			if client.describes != test.expectedDescribes {
				t.Errorf("incorrect number of polls: found=%d, expected=%d", client.describes, test.expectedDescribes)
			}
		})
	}
}

func TestWaitForTableCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakeTableClient{statuses: []types.TableStatus{types.TableStatusActive}}
	if err := waitForTable(ctx, client, "ledger", 3, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
	if client.describes != 0 {
		t.Errorf("cancelled wait should not poll: describes=%d", client.describes)
	}
}

func TestLedgerEntryMilliseconds(t *testing.T) {
	first := time.Date(2023, 6, 1, 12, 0, 0, 100*int(time.Millisecond), time.UTC)
	second := first.Add(300 * time.Millisecond)

	firstItem, err := marshalItem(&models.PublishLedgerEntry{RecordId: "rid", PublishedAt: first})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	secondItem, err := marshalItem(&models.PublishLedgerEntry{RecordId: "rid", PublishedAt: second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstTs := firstItem["ts"].(*types.AttributeValueMemberN).Value
	secondTs := secondItem["ts"].(*types.AttributeValueMemberN).Value
	if firstTs != tsEncode(first) {
		t.Errorf("incorrect range key: found=%s, expected=%s", firstTs, tsEncode(first))
	}
	if firstTs == secondTs {
		t.Errorf("publishes within the same second should have distinct range keys: %s", firstTs)
	}

	decoded := new(models.PublishLedgerEntry)
	if err = unmarshalItem(secondItem, decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decoded.PublishedAt.Equal(second) {
		t.Errorf("incorrect decoded timestamp: found=%v, expected=%v", decoded.PublishedAt, second)
	}
}
