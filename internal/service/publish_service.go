// Package service contains the service layer for the Bhavcopy API
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nsvirk/bhavcopyapi/internal/bhavcopy"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
	"github.com/redis/go-redis/v9"
)

// ReloadChannel is the Redis channel reload outcomes are published on
var ReloadChannel = "CH:BHAVCOPY:RELOAD"

// ReloadNotifier is told about every finished reload
type ReloadNotifier interface {
	Notify(ctx context.Context, result ReloadResult, err error)
}

// ReloadEvent is the message published for a finished reload
type ReloadEvent struct {
	ReloadResult
	ErrorKind string `json:"error_kind,omitempty"`
	Retryable bool   `json:"retryable"`
}

// PublishService publishes reload outcomes to a Redis channel
type PublishService struct {
	redisClient *redis.Client
	channel     string
}

// NewPublishService creates a new PublishService. A nil client makes Notify a no-op.
func NewPublishService(redisClient *redis.Client) *PublishService {
	return &PublishService{
		redisClient: redisClient,
		channel:     ReloadChannel,
	}
}

// Notify publishes the outcome of a reload; publish failures are only logged
func (s *PublishService) Notify(ctx context.Context, result ReloadResult, err error) {
	if s.redisClient == nil {
		return
	}

	payload, mErr := json.Marshal(newReloadEvent(result, err))
	if mErr != nil {
		zaplogger.Error("Failed to encode reload event", zaplogger.Fields{"run_id": result.RunID, "error": mErr.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if pErr := s.redisClient.Publish(ctx, s.channel, payload).Err(); pErr != nil {
		zaplogger.Error("Failed to publish to Redis", zaplogger.Fields{
			"channel": s.channel,
			"run_id":  result.RunID,
			"error":   pErr.Error(),
		})
	}
}

func newReloadEvent(result ReloadResult, err error) ReloadEvent {
	event := ReloadEvent{ReloadResult: result}
	// row errors stay in the reload log
	event.RowErrors = nil
	if err != nil {
		e := bhavcopy.AsError(err)
		event.Success = false
		event.Message = e.Error()
		event.ErrorKind = string(e.Kind)
		event.Retryable = e.Retryable()
	}
	return event
}
