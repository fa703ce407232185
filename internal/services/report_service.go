// internal/services/report_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/funnel-etl/internal/utils"
)

// Reporter delivers a finished run result somewhere outside the process.
type Reporter interface {
	Report(ctx context.Context, result RunResult) error
}

// FileReporter writes each result to its own JSON file.
type FileReporter struct {
	dir string
	log *logrus.Entry
}

func NewFileReporter(dir string, log logrus.FieldLogger) *FileReporter {
	return &FileReporter{dir: dir, log: log.WithField("component", "reporter")}
}

func (r *FileReporter) Report(_ context.Context, result RunResult) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	name := fmt.Sprintf("run_%s_%s.json", result.RunAt.UTC().Format("20060102_150405"), result.RunID)
	path := filepath.Join(r.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := utils.WriteJSON(f, result, true); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}

	r.log.WithField("path", path).Debug("Run report written")
	return nil
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter publishes each result keyed by run id.
type KafkaReporter struct {
	writer kafkaMessageWriter
}

func NewKafkaReporter(brokers []string, topic string) *KafkaReporter {
	return &KafkaReporter{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

// NewKafkaReporterWith injects a writer, for tests.
func NewKafkaReporterWith(w kafkaMessageWriter) *KafkaReporter {
	return &KafkaReporter{writer: w}
}

func (r *KafkaReporter) Report(ctx context.Context, result RunResult) error {
	value, err := utils.MarshalJSON(result, false)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(result.RunID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(result.Status)},
		},
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish run result: %w", err)
	}
	return nil
}

func (r *KafkaReporter) Close() error {
	return r.writer.Close()
}

// MultiReporter fans a result out to every reporter and joins their errors.
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, result RunResult) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
