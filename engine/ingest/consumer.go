package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/ciudadano-digital/civica/pkg/natsutil"
)

const (
	// JobSubject carries document ingestion jobs.
	JobSubject = "civica.ingest"
	// DLQSubject receives jobs that exhausted their retries.
	DLQSubject = "civica.ingest.dlq"
	// MaxRetries before a job lands in the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// PublishJob enqueues one document for background ingestion. Each job covers
// a whole document, so processing stays batch-per-document.
func PublishJob(ctx context.Context, nc *nats.Conn, req Request) error {
	return natsutil.Publish(ctx, nc, JobSubject, req)
}

// dlqMessage wraps a failed job with its final error.
type dlqMessage struct {
	Request Request `json:"request"`
	Error   string  `json:"error"`
	Retries int     `json:"retries"`
}

// StartConsumer subscribes to the job subject and runs each document through
// the pipeline, re-publishing failures with an incremented retry count and
// dead-lettering after MaxRetries.
func StartConsumer(nc *nats.Conn, p *Pipeline, logger *slog.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}

	return nc.Subscribe(JobSubject, func(msg *nats.Msg) {
		var req Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			logger.Error("ingest consumer: unmarshal failed", "err", err)
			return
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		ctx := natsutil.ExtractContext(msg)
		result, err := p.ProcessAndIndex(ctx, req)
		if err == nil {
			logger.Info("ingest consumer: document indexed",
				"document_id", req.DocumentID, "category", result.Category)
			return
		}

		retries++
		logger.Error("ingest consumer: job failed",
			"document_id", req.DocumentID, "retry", retries, "err", err)

		if retries >= MaxRetries {
			dlq := dlqMessage{Request: req, Error: err.Error(), Retries: retries}
			data, _ := json.Marshal(dlq)
			if err := nc.Publish(DLQSubject, data); err != nil {
				logger.Error("ingest consumer: DLQ publish failed", "err", err)
			}
			return
		}

		retryMsg := nats.NewMsg(JobSubject)
		retryMsg.Data = msg.Data
		retryMsg.Header = nats.Header{}
		retryMsg.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
		if err := nc.PublishMsg(retryMsg); err != nil {
			logger.Error("ingest consumer: retry publish failed", "err", err)
		}
	})
}
