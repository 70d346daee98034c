package project

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultAutosaveSchedule = "@every 30s"

// Autosave periodically writes the timeline when it has unsaved changes.
type Autosave struct {
	service *Service
	logger  *slog.Logger
	cron    *cron.Cron
	timeout time.Duration

	mu    sync.Mutex
	saves int
}

func NewAutosave(service *Service, schedule string, logger *slog.Logger) (*Autosave, error) {
	if schedule == "" {
		schedule = DefaultAutosaveSchedule
	}
	a := &Autosave{
		service: service,
		logger:  logger,
		cron:    cron.New(),
		timeout: 10 * time.Second,
	}
	if _, err := a.cron.AddFunc(schedule, a.run); err != nil {
		return nil, fmt.Errorf("invalid autosave schedule %q: %w", schedule, err)
	}
	return a, nil
}

func (a *Autosave) Start() {
	a.cron.Start()
	a.logger.Info("autosave started")
}

// Stop halts the schedule and waits for a running save to finish.
func (a *Autosave) Stop() {
	<-a.cron.Stop().Done()
	a.logger.Info("autosave stopped")
}

func (a *Autosave) Saves() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saves
}

func (a *Autosave) run() {
	if !a.service.Dirty() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.service.Save(ctx); err != nil {
		a.logger.Error("autosave failed", "error", err)
		return
	}
	a.mu.Lock()
	a.saves++
	a.mu.Unlock()
}
