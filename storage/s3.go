package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"crc-news/config"
	"crc-news/models"
)

// ObjectPutter is the part of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client creates a client for an S3-compatible endpoint. An empty endpoint means AWS.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ReportArchive uploads run reports as JSON objects.
type ReportArchive struct {
	Client   ObjectPutter
	Bucket   string
	Endpoint string
}

// NewReportArchive wires an archive to an S3 client.
func NewReportArchive(client ObjectPutter, cfg *config.Config) *ReportArchive {
	return &ReportArchive{Client: client, Bucket: cfg.S3Bucket, Endpoint: cfg.S3Endpoint}
}

// ReportKey is the object key of a report: reports/YYYY/MM/DD/<run id>.json.
func ReportKey(report *models.RunReport) string {
	return fmt.Sprintf("reports/%s/%s.json", report.StartedAt.UTC().Format("2006/01/02"), report.RunID)
}

// Archive uploads report and returns its location.
func (a *ReportArchive) Archive(ctx context.Context, report *models.RunReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	return a.UploadFile(ctx, ReportKey(report), data, "application/json")
}

// UploadFile stores data under key and returns a link to it.
func (a *ReportArchive) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	if a.Endpoint == "" {
		return fmt.Sprintf("s3://%s/%s", a.Bucket, key), nil
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(a.Endpoint, "/"), a.Bucket, key), nil
}
