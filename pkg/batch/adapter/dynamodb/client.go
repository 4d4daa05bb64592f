// Package dynamodb wires the AWS SDK DynamoDB client used by the importer and
// classifies the errors it returns.
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const moduleName = "dynamodb"

// API is the subset of the DynamoDB client the importer calls.
// *dynamodb.Client satisfies it; tests substitute a mock.
type API interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// NewClient loads the AWS configuration for cfg and returns an instrumented client.
// The SDK retryer is limited to cfg.SDKMaxAttempts so that retries stay with the writer.
func NewClient(ctx context.Context, cfg config.AWSConfig) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.SDKMaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(cfg.SDKMaxAttempts))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, exception.NewPreconditionError(moduleName, "failed to load AWS configuration", errors.Join(exception.ErrStoreUnavailable, err))
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	logger.Debugf("DynamoDB client created (region=%q, profile=%q, endpoint=%q).", awsCfg.Region, cfg.Profile, cfg.Endpoint)
	return client, nil
}

// KeySchema names the primary key attributes of a table.
type KeySchema struct {
	HashKey  string
	RangeKey string
}

// DescribeKeys reads the key schema of table. Any failure means the table is
// unusable for this run and is reported as a precondition error.
func DescribeKeys(ctx context.Context, api API, table string) (KeySchema, error) {
	out, err := api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err != nil {
		return KeySchema{}, exception.NewPreconditionError(moduleName,
			fmt.Sprintf("cannot describe table %s", table), errors.Join(exception.ErrStoreUnavailable, err))
	}
	if out == nil || out.Table == nil {
		return KeySchema{}, exception.NewPreconditionError(moduleName,
			fmt.Sprintf("table %s returned no description", table), exception.ErrStoreUnavailable)
	}

	var keys KeySchema
	for _, element := range out.Table.KeySchema {
		switch element.KeyType {
		case types.KeyTypeHash:
			keys.HashKey = aws.ToString(element.AttributeName)
		case types.KeyTypeRange:
			keys.RangeKey = aws.ToString(element.AttributeName)
		}
	}
	if keys.HashKey == "" {
		return KeySchema{}, exception.NewPreconditionError(moduleName,
			fmt.Sprintf("table %s has no hash key in its key schema", table), exception.ErrStoreUnavailable)
	}
	if status := out.Table.TableStatus; status != "" && status != types.TableStatusActive && status != types.TableStatusUpdating {
		logger.Warnf("Table %s is in status %s; writes may be rejected.", table, status)
	}
	logger.Debugf("Table %s keys: hash=%s range=%s.", table, keys.HashKey, keys.RangeKey)
	return keys, nil
}
