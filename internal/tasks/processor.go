// Package tasks executes maintenance tasks delivered over the redis stream or
// triggered inline by the scheduler.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TypeSessionSweep  = "session_sweep"
	TypeConfigRefresh = "config_refresh"
)

type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

type Refresher interface {
	Refresh(ctx context.Context) error
}

type Processor struct {
	sweeper   Sweeper
	refresher Refresher
	logger    zerolog.Logger
}

type TaskPayload struct {
	Type       string `json:"type"`
	EnqueuedAt string `json:"enqueuedAt"`
}

func NewProcessor(sweeper Sweeper, refresher Refresher, logger zerolog.Logger) *Processor {
	if sweeper == nil || refresher == nil {
		panic("tasks: nil dependency")
	}
	return &Processor{
		sweeper:   sweeper,
		refresher: refresher,
		logger:    logger,
	}
}

// Handle decodes a stream entry and runs it. Unknown task types are logged
// and acknowledged.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	p.logger.Debug().
		Str("message_id", msg.ID).
		Str("type", payload.Type).
		Str("enqueued_at", payload.EnqueuedAt).
		Msg("task received")
	return p.Run(ctx, payload.Type)
}

func (p *Processor) Run(ctx context.Context, taskType string) error {
	switch taskType {
	case TypeSessionSweep:
		return p.handleSessionSweep(ctx)
	case TypeConfigRefresh:
		return p.handleConfigRefresh(ctx)
	default:
		p.logger.Warn().Str("type", taskType).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleSessionSweep(ctx context.Context) error {
	n, err := p.sweeper.SweepExpired(ctx)
	if err != nil {
		return err
	}
	p.logger.Info().Int("expired", n).Msg("session sweep task done")
	return nil
}

func (p *Processor) handleConfigRefresh(ctx context.Context) error {
	if err := p.refresher.Refresh(ctx); err != nil {
		return err
	}
	p.logger.Info().Msg("config refresh task done")
	return nil
}
