package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler triggers cycles on a cron schedule. A tick that arrives while a
// run is still going is dropped.
type Scheduler struct {
	cycle *Cycle
	cron  *cron.Cron
	log   *logrus.Logger
	ctx   context.Context
	wg    sync.WaitGroup
}

func NewScheduler(cycle *Cycle, schedule string, log *logrus.Logger) (*Scheduler, error) {
	s := &Scheduler{cycle: cycle, log: log, ctx: context.Background()}
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))))
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	if _, err := s.cycle.Run(s.ctx); err != nil {
		s.log.Errorf("scheduled cycle failed: %v", err)
	}
}

// Start runs cycles until ctx is cancelled. With runNow the first cycle
// starts immediately instead of on the first tick.
func (s *Scheduler) Start(ctx context.Context, runNow bool) {
	s.ctx = ctx
	s.cron.Start()
	if runNow {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		s.log.Info("scheduler stopping")
		<-s.cron.Stop().Done()
	}()
}

// Wait blocks until the ctx given to Start is done and every cycle the
// scheduler started has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
