package observe

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
)

// NewCloudWatchMetricsClient builds a CloudWatch client for the given region.
// endpointURL is optional and supports LocalStack-style endpoints.
func NewCloudWatchMetricsClient(ctx context.Context, region, endpointURL string) (*cloudwatch.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	client := cloudwatch.NewFromConfig(cfg, func(o *cloudwatch.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
		}
	})

	return client, nil
}
