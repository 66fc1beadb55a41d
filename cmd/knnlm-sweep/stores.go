package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/knnlm/blobstore"
	"github.com/hupe1980/knnlm/blobstore/minio"
	"github.com/hupe1980/knnlm/blobstore/s3"
	"github.com/hupe1980/knnlm/internal/config"
	"github.com/hupe1980/knnlm/sweep"
)

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

func newOutputStore(ctx context.Context, cfg config.OutputConfig) (blobstore.BlobStore, error) {
	switch cfg.Kind {
	case config.OutputS3:
		awsCfg, err := loadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
		return s3.NewStore(client, cfg.Bucket, cfg.Prefix), nil
	case config.OutputMinIO:
		client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.Secure,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, err
		}
		store := minio.NewStore(client, cfg.Bucket, cfg.Prefix)
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return blobstore.NewLocalStore(cfg.Dir), nil
	}
}

func newCommitLog(ctx context.Context, cfg *config.Config, out blobstore.BlobStore) (blobstore.CommitLog, error) {
	if cfg.CommitLog.Kind != config.CommitLogDynamoDB {
		return blobstore.NewBlobCommitLog(out, sweep.CommitPrefix(cfg.Sweep.Name)), nil
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.Output.Region)
	if err != nil {
		return nil, err
	}
	return s3.NewDDBCommitLog(dynamodb.NewFromConfig(awsCfg), cfg.CommitLog.Table, cfg.Sweep.Name), nil
}
