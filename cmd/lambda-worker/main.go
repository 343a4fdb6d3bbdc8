package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"paper-backend/internal/bootstrap"
	"paper-backend/internal/jobs"
	"paper-backend/internal/shared/config"
	"paper-backend/internal/shared/metrics"
	"paper-backend/internal/shared/telemetry"
	"paper-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	telemetry.SetLevel(cfg.LogLevel)
	built, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": initErr.Error()})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return processRecords(ctx, app.DocumentsService, event), nil
}

// processRecords reports only retryable failures so SQS redelivers them.
// Unparseable bodies and permanent job errors are acknowledged.
func processRecords(ctx context.Context, h jobs.Handler, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncJobsReceived("lambda")
		err := workerproc.HandleMessage(ctx, h, record.Body)
		if err == nil {
			metrics.IncJobsCompleted("lambda")
			continue
		}

		fields := map[string]any{"sqs_message_id": record.MessageId, "error": err.Error()}
		var procErr workerproc.ErrProcess
		if errors.As(err, &procErr) {
			fields["document_id"] = procErr.DocumentID
			if !procErr.Permanent() {
				telemetry.Error("lambda.job.failed", fields)
				metrics.IncJobsFailed("lambda")
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
				continue
			}
		}
		telemetry.Warn("lambda.job.dropped", fields)
		metrics.IncJobsDropped("lambda")
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
