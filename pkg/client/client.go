// Package client provides a simple high-level API for submitting and
// managing jobs against one named queue, for host processes that don't
// need the full Manager (e.g. a CLI or a lightweight producer service).
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/autoweave/jobqueue/internal/job"
	"github.com/autoweave/jobqueue/internal/metrics"
	"github.com/autoweave/jobqueue/internal/queue"
	"github.com/autoweave/jobqueue/internal/result"
	"github.com/autoweave/jobqueue/internal/serialization"
	"github.com/redis/go-redis/v9"
)

// Client provides a simple API for submitting and managing jobs on a
// single named queue.
type Client struct {
	queue         *queue.Queue
	redisClient   *redis.Client
	resultBackend result.Backend
}

// NewClient connects to Redis and returns a Client bound to the named
// queue, with a result backend enabled using standard TTLs (1h success,
// 24h failure).
func NewClient(redisURL, queueName string) (*Client, error) {
	return NewClientWithConfig(redisURL, queueName, time.Hour, 24*time.Hour)
}

// NewClientWithConfig is NewClient with custom result-backend TTLs.
func NewClientWithConfig(redisURL, queueName string, successTTL, failureTTL time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	q := queue.New(redisClient, queueName, queue.DefaultOptions(), metrics.NewRegistry())
	resultBackend := result.NewRedisBackend(redisClient, successTTL, failureTTL)

	return &Client{
		queue:         q,
		redisClient:   redisClient,
		resultBackend: resultBackend,
	}, nil
}

// SubmitJob marshals payload to JSON and enqueues a job of the given
// kind, returning its ID.
func (c *Client) SubmitJob(ctx context.Context, kind job.JobKind, payload interface{}, opts job.Options) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	j, err := c.queue.Enqueue(ctx, kind, payloadBytes, opts)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return j.ID, nil
}

// SubmitJobProto marshals payload through the protobuf-struct transport
// (internal/serialization) instead of plain JSON, for producers that
// speak protobuf natively. The receiving worker decodes it transparently
// since job.DecodePayload detects the format tag.
func (c *Client) SubmitJobProto(ctx context.Context, kind job.JobKind, payload interface{}, opts job.Options) (string, error) {
	asJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	tagged, err := serialization.MarshalPayloadProto(asJSON)
	if err != nil {
		return "", fmt.Errorf("failed to encode protobuf payload: %w", err)
	}

	j, err := c.queue.Enqueue(ctx, kind, tagged, opts)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return j.ID, nil
}

// BulkItem is one job specification within a SubmitBulk call.
type BulkItem struct {
	Kind    job.JobKind
	Payload interface{}
	Options job.Options
}

// SubmitBulk enqueues every item atomically: either all jobs are
// accepted or none are.
func (c *Client) SubmitBulk(ctx context.Context, items []BulkItem) ([]string, error) {
	specs := make([]queue.BulkSpec, 0, len(items))
	for _, item := range items {
		payloadBytes, err := json.Marshal(item.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		specs = append(specs, queue.BulkSpec{Kind: item.Kind, Payload: payloadBytes, Options: item.Options})
	}

	jobs, err := c.queue.EnqueueBulk(ctx, specs)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue bulk jobs: %w", err)
	}

	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids, nil
}

// GetJob retrieves a job by its ID.
func (c *Client) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := c.queue.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// CancelJob cancels a waiting or delayed job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	return c.queue.CancelJob(ctx, jobID)
}

// RetryJob re-enqueues a failed or dead-lettered job for another attempt.
func (c *Client) RetryJob(ctx context.Context, jobID string) error {
	return c.queue.RetryJob(ctx, jobID)
}

// GetResult retrieves the result of a completed job. Returns nil, nil if
// the job hasn't completed yet or its result has expired.
func (c *Client) GetResult(ctx context.Context, jobID string) (*job.JobResult, error) {
	r, err := c.resultBackend.GetResult(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return r, nil
}

// WaitForResult blocks until jobID's result is available or timeout
// elapses, whichever comes first.
func (c *Client) WaitForResult(ctx context.Context, jobID string, timeout time.Duration) (*job.JobResult, error) {
	r, err := c.resultBackend.WaitForResult(ctx, jobID, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for result: %w", err)
	}
	return r, nil
}

// SubmitAndWait submits a job and blocks for its result, for RPC-style
// task execution.
func (c *Client) SubmitAndWait(ctx context.Context, kind job.JobKind, payload interface{}, opts job.Options, timeout time.Duration) (*job.JobResult, error) {
	jobID, err := c.SubmitJob(ctx, kind, payload, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to submit job: %w", err)
	}

	r, err := c.WaitForResult(ctx, jobID, timeout)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("job %s did not complete within timeout of %v", jobID, timeout)
	}
	return r, nil
}

// Close closes the underlying Redis connection shared by the queue and
// result backend.
func (c *Client) Close() error {
	if c.redisClient != nil {
		return c.redisClient.Close()
	}
	return nil
}
