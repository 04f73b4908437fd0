package provider

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Credentials is the credentials blob for S3-compatible object stores.
// Endpoint is optional; setting it switches the client to path-style
// addressing for MinIO and friends.
type S3Credentials struct {
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Endpoint  string `json:"endpoint,omitempty"`
}

// S3 syncs against an S3-compatible bucket. Object keys are the
// vault-relative paths; content tags are the S3-assigned ETags, which for
// single-part uploads equal the MD5 of the object bytes.
type S3 struct {
	client *s3.Client
	bucket string
}

func NewS3(ctx context.Context, creds S3Credentials) (*S3, error) {
	if creds.Bucket == "" {
		return nil, fmt.Errorf("s3 credentials: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, ""),
		),
		awsconfig.WithRegion(creds.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if creds.Endpoint != "" {
			o.BaseEndpoint = aws.String(creds.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{client: client, bucket: creds.Bucket}, nil
}

func (p *S3) Name() string { return "s3" }

func (p *S3) List(ctx context.Context) ([]RemoteObject, error) {
	var objects []RemoteObject

	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: &p.bucket,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, remoteErr("s3", "list objects", 0, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, RemoteObject{
				Key:        aws.ToString(obj.Key),
				ContentTag: strings.Trim(aws.ToString(obj.ETag), `"`),
				Modified:   aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

func (p *S3) Upload(ctx context.Context, relPath string, data []byte) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &p.bucket,
		Key:           &relPath,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return remoteErr("s3", "put "+relPath, 0, err)
	}
	return nil
}

func (p *S3) Download(ctx context.Context, key string) ([]byte, error) {
	resp, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &p.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, remoteErr("s3", "get "+key, 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, remoteErr("s3", "read "+key, 0, err)
	}
	return data, nil
}

// LocalTag returns the single-part ETag S3 would assign to data.
func (p *S3) LocalTag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
