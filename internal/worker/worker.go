// Package worker runs the background job loop: recording transfers from the
// provider egress to S3, and post-session archive writes.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/internal/recordings"
	"github.com/kurban-cebimde/live-backend/pkg/queue"
	"github.com/kurban-cebimde/live-backend/pkg/storage"
)

// Processor consumes jobs from the queue and executes them.
type Processor struct {
	recRepo *recordings.Repository
	s3      *storage.S3
	queue   *queue.Queue
	logger  *zap.Logger
}

// NewProcessor creates the job processor.
func NewProcessor(recRepo *recordings.Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{recRepo: recRepo, s3: s3, queue: q, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeRecordingUpload:
		return p.processRecordingUpload(ctx, job)
	case queue.JobTypeSessionArchive:
		return p.processSessionArchive(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// processRecordingUpload downloads from the provider URL, streams to S3 and
// updates the DB row.
func (p *Processor) processRecordingUpload(ctx context.Context, job *queue.Job) error {
	var payload queue.RecordingUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	rec, err := p.recRepo.GetByID(ctx, payload.RecordingID)
	if err != nil || rec == nil {
		return fmt.Errorf("recording not found: %s", payload.RecordingID)
	}
	if rec.Status == "completed" {
		p.logger.Info("recording already completed", zap.String("recording_id", rec.ID.String()))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.OriginalURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	key := storage.RecordingKey(payload.SessionID.String(), payload.RecordingID.String())

	// Stream upload to S3 (no full buffer)
	s3URL, err := p.s3.Upload(ctx, p.s3.RecordingsBucket(), key, contentType, resp.Body, resp.ContentLength)
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.recRepo.UpdateS3Result(ctx, payload.RecordingID, s3URL, key, resp.ContentLength, rec.Duration); err != nil {
		p.logger.Error("update recording S3 result failed", zap.Error(err), zap.String("recording_id", payload.RecordingID.String()))
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("recording upload completed", zap.String("recording_id", payload.RecordingID.String()), zap.String("s3_key", key))
	return nil
}

// processSessionArchive writes the post-mortem document to S3.
func (p *Processor) processSessionArchive(ctx context.Context, job *queue.Job) error {
	var payload queue.SessionArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	doc, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	key := storage.ArchiveKey(payload.SessionID.String())
	if _, err := p.s3.Upload(ctx, p.s3.RecordingsBucket(), key, "application/json", bytes.NewReader(doc), int64(len(doc))); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	p.logger.Info("session archive written", zap.String("session_id", payload.SessionID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, key, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job, key); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
