package dynamodb

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
)

// NewAPIProvider builds the DynamoDB API from the AWS configuration section.
func NewAPIProvider(cfg *config.AWSConfig) (API, error) {
	return NewClient(context.Background(), *cfg)
}

// Module provides API to fx.
var Module = fx.Options(
	fx.Provide(NewAPIProvider),
)
