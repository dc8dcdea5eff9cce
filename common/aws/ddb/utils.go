package ddb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ceramicnetwork/go-fanout/common"
	"github.com/ceramicnetwork/go-fanout/models"
)

const tableActivePolls = 5
const tableActiveWait = time.Second

type tableClient interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

var _ tableClient = &dynamodb.Client{}

func createTable(ctx context.Context, logger models.Logger, client tableClient, createTableIn *dynamodb.CreateTableInput) error {
	table := *createTableIn.TableName
	if found, active, err := describeTable(ctx, client, table); err != nil {
		return err
	} else if active {
		return nil
	} else if !found {
		logger.Infof("table: creating %s", table)
		httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
		defer httpCancel()

		if _, err = client.CreateTable(httpCtx, createTableIn); err != nil {
			return err
		}
	}
	return waitForTable(ctx, client, table, tableActivePolls, tableActiveWait)
}

// waitForTable polls until the table is active, doubling the wait after every poll.
func waitForTable(ctx context.Context, client tableClient, table string, polls int, wait time.Duration) error {
	for i := 0; i < polls; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if _, active, err := describeTable(ctx, client, table); err != nil {
			return err
		} else if active {
			return nil
		}
		wait *= 2
	}
	return fmt.Errorf("table %s not active after %d polls", table, polls)
}

// describeTable reports whether the table exists and whether it is ready for use. A missing table is not an error.
func describeTable(ctx context.Context, client tableClient, table string) (bool, bool, error) {
	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	if output, err := client.DescribeTable(httpCtx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}); err != nil {
		var notFoundErr *types.ResourceNotFoundException
		if errors.As(err, &notFoundErr) {
			return false, false, nil
		}
		return false, false, err
	} else {
		return true, output.Table.TableStatus == types.TableStatusActive, nil
	}
}

// marshalItem encodes timestamps as epoch milliseconds so that range keys and conditions keep sub-second order
func marshalItem(in any) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMapWithOptions(in, func(options *attributevalue.EncoderOptions) {
		options.EncodeTime = func(ts time.Time) (types.AttributeValue, error) {
			return &types.AttributeValueMemberN{Value: tsEncode(ts)}, nil
		}
	})
}

func unmarshalItem(item map[string]types.AttributeValue, out any) error {
	return attributevalue.UnmarshalMapWithOptions(item, out, func(options *attributevalue.DecoderOptions) {
		options.DecodeTime = attributevalue.DecodeTimeAttributes{
			S: tsDecode,
			N: tsDecode,
		}
	})
}

func tsEncode(ts time.Time) string {
	return strconv.FormatInt(ts.UnixMilli(), 10)
}

func tsDecode(ts string) (time.Time, error) {
	msec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(msec), nil
}
