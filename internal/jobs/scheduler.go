// Package jobs triggers periodic maintenance. With redis configured tasks are
// published to the maintenance stream for the worker; without it they run in
// the API process.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner executes a task in process.
type Runner interface {
	Run(ctx context.Context, taskType string) error
}

type Schedule struct {
	Spec string
	Task string
}

type Scheduler struct {
	cron    *cron.Cron
	queue   *redis.Client
	stream  string
	runner  Runner
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

func NewScheduler(queue *redis.Client, stream string, runner Runner, log zerolog.Logger) *Scheduler {
	if queue == nil && runner == nil {
		panic("jobs: need a queue or a runner")
	}
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return &Scheduler{
		cron:    c,
		queue:   queue,
		stream:  stream,
		runner:  runner,
		timeout: 5 * time.Minute,
		now:     time.Now,
		log:     log,
	}
}

func (s *Scheduler) Start(schedules ...Schedule) error {
	for _, sched := range schedules {
		task := sched.Task
		if _, err := s.cron.AddFunc(sched.Spec, func() { s.fire(task) }); err != nil {
			return fmt.Errorf("schedule %s %q: %w", task, sched.Spec, err)
		}
		s.log.Info().Str("task", task).Str("spec", sched.Spec).Msg("task scheduled")
	}

	s.cron.Start()
	return nil
}

// Stop halts the schedule and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Dispatch publishes task to the stream, or runs it inline when there is no
// queue.
func (s *Scheduler) Dispatch(ctx context.Context, task string) error {
	if s.queue == nil {
		return s.runner.Run(ctx, task)
	}
	return s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"type":       task,
			"enqueuedAt": s.now().UTC().Format(time.RFC3339),
		},
	}).Err()
}

func (s *Scheduler) fire(task string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.Dispatch(ctx, task); err != nil {
		s.log.Error().Err(err).Str("task", task).Msg("dispatch task failed")
	}
}
