// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/funnel-etl/internal/clock"
	"github.com/javajoker/funnel-etl/internal/config"
	"github.com/javajoker/funnel-etl/internal/models"
	"github.com/javajoker/funnel-etl/internal/utils"
)

const maxNameCollisions = 1000

// StorageService writes fetched payloads to the raw data lake. Files are never overwritten.
type StorageService struct {
	lakePath string
	s3Client s3iface.S3API
	bucket   string
	prefix   string
	clock    clock.Clock
	log      *logrus.Entry
}

func NewStorageService(cfg *config.Config, clk clock.Clock, log logrus.FieldLogger) (*StorageService, error) {
	s := &StorageService{
		lakePath: cfg.Lake.Path,
		clock:    clk,
		log:      log.WithField("component", "storage"),
	}

	if cfg.AWS.S3Bucket == "" {
		// Local data lake only
		return s, nil
	}

	awsConfig := &aws.Config{Region: aws.String(cfg.AWS.Region)}
	if cfg.AWS.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return s.WithS3(s3.New(sess), cfg.AWS.S3Bucket, cfg.AWS.S3Prefix), nil
}

// WithS3 mirrors every raw file to bucket under prefix.
func (s *StorageService) WithS3(client s3iface.S3API, bucket, prefix string) *StorageService {
	s.s3Client = client
	s.bucket = bucket
	s.prefix = prefix
	return s
}

// SaveRaw writes records to <entity>_<YYYYmmdd_HHMMSS>.json and returns the file path.
// A same-second collision gets a numeric suffix instead of replacing the earlier file.
func (s *StorageService) SaveRaw(ctx context.Context, entity string, records []models.RawRecord) (string, error) {
	data, err := utils.MarshalJSON(records, true)
	if err != nil {
		return "", fmt.Errorf("failed to encode raw %s: %w", entity, err)
	}

	if err := os.MkdirAll(s.lakePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data lake directory: %w", err)
	}

	timestamp := s.clock.Now().UTC().Format("20060102_150405")
	filePath, err := s.writeExclusive(entity, timestamp, data)
	if err != nil {
		return "", err
	}

	s.log.WithFields(logrus.Fields{
		"entity": entity,
		"path":   filePath,
		"bytes":  len(data),
	}).Debug("Raw data saved")

	if s.s3Client != nil {
		s.mirror(ctx, filepath.Base(filePath), data)
	}
	return filePath, nil
}

func (s *StorageService) writeExclusive(entity, timestamp string, data []byte) (string, error) {
	for n := 0; n < maxNameCollisions; n++ {
		name := fmt.Sprintf("%s_%s.json", entity, timestamp)
		if n > 0 {
			name = fmt.Sprintf("%s_%s_%d.json", entity, timestamp, n)
		}
		filePath := filepath.Join(s.lakePath, name)

		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create raw file: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write raw file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close raw file: %w", err)
		}
		return filePath, nil
	}
	return "", fmt.Errorf("no free raw file name for %s at %s", entity, timestamp)
}

// mirror copies a raw file to S3. The local file stays authoritative, so failures only warn.
func (s *StorageService) mirror(ctx context.Context, name string, data []byte) {
	key := path.Join(s.prefix, name)
	checksum := utils.SHA256Hex(data)
	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      map[string]*string{"sha256": aws.String(checksum)},
	})
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Failed to upload raw file to S3")
		return
	}
	s.log.WithFields(logrus.Fields{
		"bucket": s.bucket,
		"key":    key,
		"sha256": checksum,
	}).Debug("Raw data mirrored to S3")
}
