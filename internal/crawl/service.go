package crawl

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/frontier"
	"github.com/teamindigo/ragline/internal/pipeline"
)

// RunState is the lifecycle of one crawl run.
type RunState string

// Run states reported by the service.
const (
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateCancelled RunState = "cancelled"
	RunStateFailed    RunState = "failed"
)

// RunStatus is the queryable view of a run.
type RunStatus struct {
	RunID   string                `json:"run_id"`
	State   RunState              `json:"state"`
	Summary pipeline.CrawlSummary `json:"summary"`
}

// ErrRunNotFound reports an unknown run ID.
var ErrRunNotFound = errors.New("crawl run not found")

// ErrRunInProgress reports that a crawl is already running.
var ErrRunInProgress = errors.New("a crawl run is already in progress")

// CrawlerFactory builds a fresh crawler and frontier per run; runs must not
// share visited state.
type CrawlerFactory func() (*Crawler, *frontier.Frontier)

// Service launches and tracks crawl runs. At most one run is active at a
// time; overlapping full crawls of the same seeds would only fight over
// politeness budgets.
type Service struct {
	factory CrawlerFactory
	idGen   pipeline.IDGenerator
	logger  *zap.Logger

	mu      sync.Mutex
	runs    map[string]*run
	current string
}

type run struct {
	id      string
	state   RunState
	summary pipeline.CrawlSummary
	cancel  context.CancelFunc
}

// NewService builds a Service.
func NewService(factory CrawlerFactory, idGen pipeline.IDGenerator, logger *zap.Logger) *Service {
	return &Service{
		factory: factory,
		idGen:   idGen,
		logger:  logger,
		runs:    make(map[string]*run),
	}
}

// Start launches a crawl in the background and returns its run ID.
func (s *Service) Start(seeds []pipeline.Seed) (string, error) {
	s.mu.Lock()
	if r, ok := s.runs[s.current]; ok && r.state == RunStateRunning {
		s.mu.Unlock()
		return "", ErrRunInProgress
	}

	crawler, _ := s.factory()
	ctx, cancel := context.WithCancel(context.Background())

	id := s.idGen.NewID()
	crawler.SetRunID(id)
	s.runs[id] = &run{id: id, state: RunStateRunning, cancel: cancel}
	s.current = id
	s.mu.Unlock()

	go func() {
		defer cancel()
		summary, err := crawler.Run(ctx, seeds)
		s.finish(id, summary, err)
	}()

	s.logger.Info("crawl run started", zap.String("run_id", id))
	return id, nil
}

func (s *Service) finish(id string, summary pipeline.CrawlSummary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return
	}
	summary.RunID = id
	r.summary = summary
	switch {
	case err != nil:
		r.state = RunStateFailed
	case summary.Cancelled:
		r.state = RunStateCancelled
	default:
		r.state = RunStateSucceeded
	}
	if s.current == id {
		s.current = ""
	}
}

// Cancel requests a run stop; in-flight fetches finish, no further targets
// are drained.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	r.cancel()
	return nil
}

// Status reports the current view of a run.
func (s *Service) Status(id string) (RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return RunStatus{}, ErrRunNotFound
	}
	return RunStatus{RunID: r.id, State: r.state, Summary: r.summary}, nil
}
