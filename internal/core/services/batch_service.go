package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/northfin/recon_backend/internal/apperrors"
	portssvc "github.com/northfin/recon_backend/internal/core/ports/services"
	"github.com/northfin/recon_backend/internal/dto"
	"github.com/northfin/recon_backend/internal/matching"
)

// batchService fans a bounded id set out over a small worker pool. Each item
// is evaluated in isolation: one failing transaction never aborts the batch,
// it is counted and the rest proceed.
type batchService struct {
	BaseService
	engine portssvc.MatchingEngineSvc

	workers     int
	itemTimeout time.Duration
}

// BatchOption is a functional option for configuring the batch service
type BatchOption func(*batchService)

// WithWorkers sets the number of concurrent evaluations.
func WithWorkers(n int) BatchOption {
	return func(s *batchService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithItemTimeout bounds how long a single evaluation may run.
func WithItemTimeout(d time.Duration) BatchOption {
	return func(s *batchService) {
		if d > 0 {
			s.itemTimeout = d
		}
	}
}

// NewBatchService creates the batch evaluation service
func NewBatchService(engine portssvc.MatchingEngineSvc, options ...BatchOption) portssvc.BatchSvcFacade {
	svc := &batchService{
		engine:      engine,
		workers:     5,
		itemTimeout: 30 * time.Second,
	}

	for _, option := range options {
		option(svc)
	}

	return svc
}

var _ portssvc.BatchSvcFacade = (*batchService)(nil)

type batchOutcome struct {
	action string
	err    error
}

// BatchEvaluate evaluates every transaction id with bounded concurrency and
// aggregates the outcomes.
func (s *batchService) BatchEvaluate(ctx context.Context, teamID string, transactionIDs []string) (*dto.BatchEvaluateResponse, error) {
	if len(transactionIDs) == 0 {
		return nil, fmt.Errorf("batch evaluation requires at least one transaction: %w", apperrors.ErrValidation)
	}

	ids := make(chan string)
	outcomes := make(chan batchOutcome, len(transactionIDs))

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				outcomes <- s.evaluateOne(ctx, teamID, id)
			}
		}()
	}

feed:
	for _, id := range transactionIDs {
		select {
		case <-ctx.Done():
			break feed
		case ids <- id:
		}
	}
	close(ids)
	wg.Wait()
	close(outcomes)

	resp := &dto.BatchEvaluateResponse{}
	for outcome := range outcomes {
		resp.Processed++
		switch {
		case outcome.err != nil:
			resp.Errors++
		case outcome.action == string(matching.ActionAutoMatch):
			resp.AutoMatched++
		case outcome.action == string(matching.ActionSuggest):
			resp.Suggestions++
		default:
			resp.NoMatches++
		}
	}

	if err := ctx.Err(); err != nil {
		s.LogWarn(ctx, "Batch evaluation ended early",
			slog.Int("processed", resp.Processed),
			slog.Int("requested", len(transactionIDs)))
		return resp, fmt.Errorf("batch evaluation interrupted: %w", err)
	}

	s.LogInfo(ctx, "Batch evaluation finished",
		slog.Int("processed", resp.Processed),
		slog.Int("auto_matched", resp.AutoMatched),
		slog.Int("suggestions", resp.Suggestions),
		slog.Int("errors", resp.Errors))
	return resp, nil
}

func (s *batchService) evaluateOne(ctx context.Context, teamID, transactionID string) batchOutcome {
	itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	result, err := s.engine.EvaluateMatch(itemCtx, teamID, transactionID)
	if err != nil {
		s.LogError(ctx, err, "Batch item evaluation failed",
			slog.String("transaction_id", transactionID))
		return batchOutcome{err: err}
	}
	return batchOutcome{action: result.Action}
}
