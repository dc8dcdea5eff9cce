package ddb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ceramicnetwork/go-fanout"
	"github.com/ceramicnetwork/go-fanout/common"
	"github.com/ceramicnetwork/go-fanout/models"
)

var _ models.StateRepository = &StateDatabase{}

// StateDatabase tracks the newest revision of every logical record and keeps a ledger of publish reports.
type StateDatabase struct {
	client      *dynamodb.Client
	logger      models.Logger
	tipTable    string
	ledgerTable string
}

func NewStateDb(ctx context.Context, logger models.Logger, client *dynamodb.Client) *StateDatabase {
	tablePfx := "fanout-" + fanout.EnvTag() + "-"
	sdb := StateDatabase{
		client,
		logger,
		tablePfx + "tip",
		tablePfx + "ledger",
	}
	if err := sdb.createTipTable(ctx); err != nil {
		logger.Fatalf("state: tip table creation failed: %v", err)
	} else if err = sdb.createLedgerTable(ctx); err != nil {
		logger.Fatalf("state: ledger table creation failed: %v", err)
	}
	return &sdb
}

func (sdb *StateDatabase) createTipTable(ctx context.Context) error {
	createTableInput := dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("author"),
				AttributeType: "S",
			},
			{
				AttributeName: aws.String("key"),
				AttributeType: "S",
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("author"),
				KeyType:       "HASH",
			},
			{
				AttributeName: aws.String("key"),
				KeyType:       "RANGE",
			},
		},
		TableName:   aws.String(sdb.tipTable),
		BillingMode: types.BillingModePayPerRequest,
	}
	return createTable(ctx, sdb.logger, sdb.client, &createTableInput)
}

func (sdb *StateDatabase) createLedgerTable(ctx context.Context) error {
	createTableInput := dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("rid"),
				AttributeType: "S",
			},
			{
				AttributeName: aws.String("ts"),
				AttributeType: "N",
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("rid"),
				KeyType:       "HASH",
			},
			{
				AttributeName: aws.String("ts"),
				KeyType:       "RANGE",
			},
		},
		TableName:   aws.String(sdb.ledgerTable),
		BillingMode: types.BillingModePayPerRequest,
	}
	return createTable(ctx, sdb.logger, sdb.client, &createTableInput)
}

// UpdateTip stores newTip if no revision exists for its author and key, or if it is at least as new as the stored
// one. The previous tip is returned when one was replaced.
func (sdb *StateDatabase) UpdateTip(ctx context.Context, newTip *models.RecordTip) (bool, *models.RecordTip, error) {
	if attributeValues, err := marshalItem(newTip); err != nil {
		return false, nil, err
	} else {
		putItemIn := dynamodb.PutItemInput{
			TableName:                aws.String(sdb.tipTable),
			ConditionExpression:      aws.String("attribute_not_exists(#author) OR (#ts <= :ts)"),
			ExpressionAttributeNames: map[string]string{"#author": "author", "#ts": "ts"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":ts": &types.AttributeValueMemberN{Value: tsEncode(newTip.CreatedAt)},
			},
			Item:         attributeValues,
			ReturnValues: types.ReturnValueAllOld,
		}

		httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
		defer httpCancel()

		if putItemOut, err := sdb.client.PutItem(httpCtx, &putItemIn); err != nil {
			var condUpdErr *types.ConditionalCheckFailedException
			if errors.As(err, &condUpdErr) {
				// A newer revision is already stored
				return false, nil, nil
			}
			sdb.logger.Errorf("updateTip: error writing to db: %v", err)
			return false, nil, err
		} else if len(putItemOut.Attributes) > 0 {
			oldTip := new(models.RecordTip)
			if err = unmarshalItem(putItemOut.Attributes, oldTip); err != nil {
				sdb.logger.Errorf("updateTip: error unmarshaling old tip: %v", err)
				return true, nil, err
			}
			return true, oldTip, nil
		}
		return true, nil, nil
	}
}

func (sdb *StateDatabase) StoreReport(ctx context.Context, entry *models.PublishLedgerEntry) error {
	attributeValues, err := marshalItem(entry)
	if err != nil {
		return err
	}
	putItemIn := dynamodb.PutItemInput{
		TableName: aws.String(sdb.ledgerTable),
		Item:      attributeValues,
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	if _, err = sdb.client.PutItem(httpCtx, &putItemIn); err != nil {
		sdb.logger.Errorf("storeReport: error writing to db: %v", err)
		return err
	}
	return nil
}
