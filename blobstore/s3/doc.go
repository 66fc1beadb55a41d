// Package s3 stores sweep artifacts in Amazon S3 and records sweep progress
// in DynamoDB.
//
// # Usage
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "sweeps/wiki103/")
//	commits := s3.NewDDBCommitLog(dynamodb.NewFromConfig(cfg), "knnlm-sweeps", "wiki103")
//
// # Features
//
//   - Streaming multipart uploads through the S3 transfer manager
//   - CRC32C checksums on atomic puts
//   - Range reads and automatic pagination for listing
//   - Conditional DynamoDB writes so two workers never both claim a sweep point
package s3
