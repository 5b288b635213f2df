// Package queue wraps asynq for background task delivery. The only producer
// today is the notification fan-out, which hands push payloads for offline
// recipients to the worker acting as the boundary to the OS push sink.
package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TypePushNotification tasks carry a notify.PushPayload.
const TypePushNotification = "push:notification"

// Enqueuer is the producer-side surface; tests substitute a recorder.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload []byte) error
}

type Client struct {
	client *asynq.Client
}

// NewClient builds an asynq client from a redis:// URL.
func NewClient(redisURL string) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &Client{client: asynq.NewClient(opt)}, nil
}

func (c *Client) Enqueue(ctx context.Context, taskType string, payload []byte) error {
	_, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskType, payload), asynq.MaxRetry(3))
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Handler processes one task payload.
type Handler func(ctx context.Context, payload []byte) error

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewServer builds the worker side with a small fixed concurrency; push
// dispatch is not latency-sensitive.
func NewServer(redisURL string, log *zap.Logger) (*Server, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 4,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})
	return &Server{server: srv, mux: asynq.NewServeMux()}, nil
}

func (s *Server) Register(taskType string, h Handler) {
	s.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, t.Payload())
	})
}

// Run starts the worker and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	<-ctx.Done()
	s.server.Shutdown()
	return nil
}
