// Package storage builds the S3-compatible client backing the operator
// blocklist. Works against AWS proper or any S3-compatible endpoint
// (Tigris, MinIO) via a custom base endpoint.
package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/leadgrid/leadgrid-api/internal/config"
)

// NewClient constructs an S3 client from the app configuration.
func NewClient(ctx context.Context, cfg *appconfig.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.StorageRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.StorageEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
			// Required for some S3-compatible services
			o.UsePathStyle = true
		}
	})
	return client, nil
}
