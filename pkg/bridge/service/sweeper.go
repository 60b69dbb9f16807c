package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/semilla-platform/bridge-engine/internal/metrics"
	"github.com/semilla-platform/bridge-engine/pkg/bridge"
	"github.com/semilla-platform/bridge-engine/pkg/bridgestore"
	"github.com/semilla-platform/bridge-engine/pkg/config"
	"github.com/semilla-platform/bridge-engine/pkg/security"
)

// Sweeper fails bridge transactions stuck in a non-terminal state past the
// staleness threshold. A stale LOCK still holds the user's debit, so failing
// it refunds; a stale UNLOCK has credited nothing yet and just fails, which
// frees the burn hash for a retry.
type Sweeper struct {
	store   bridgestore.Store
	monitor securityRecorder
	cfg     config.BridgeConfig
	logger  *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper creates a stale-transaction sweeper
func NewSweeper(store bridgestore.Store, monitor securityRecorder, cfg config.BridgeConfig, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:   store,
		monitor: monitor,
		cfg:     cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start starts the background sweep loop
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		s.logger.Info("Started stale transaction sweeper",
			zap.Duration("interval", s.cfg.SweepInterval),
			zap.Duration("threshold", s.cfg.StalePendingThreshold))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				if err := s.Sweep(ctx); err != nil {
					s.logger.Error("Stale transaction sweep failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				s.logger.Info("Stopping stale transaction sweeper")
				return
			}
		}
	}()
}

// Stop stops the sweep loop
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Sweep runs one pass over stale transactions.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.StalePendingThreshold)
	stale, err := s.store.ListStaleTransactions(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, txn := range stale {
		if err := s.failStale(ctx, txn); err != nil {
			// A concurrent worker may have moved the transaction between
			// the list and the update; skip and move on.
			s.logger.Warn("Failed to sweep stale transaction",
				zap.String("transaction_id", txn.ID),
				zap.Error(err))
			continue
		}

		metrics.StaleTransactions.WithLabelValues(string(txn.Direction)).Inc()
		if _, err := s.monitor.Record(ctx, security.TypeStaleTransaction, security.SeverityMedium, &security.StaleTransactionDetails{
			TransactionID: txn.ID,
			Direction:     string(txn.Direction),
			Status:        string(txn.Status),
			Age:           time.Since(txn.CreatedAt).Round(time.Second).String(),
		}); err != nil {
			s.logger.Error("Failed to record stale transaction event", zap.Error(err))
		}
	}

	if len(stale) > 0 {
		s.logger.Info("Stale transaction sweep completed", zap.Int("swept", len(stale)))
	}
	return nil
}

func (s *Sweeper) failStale(ctx context.Context, txn *bridge.Transaction) error {
	if txn.Direction == bridge.DirectionLock {
		// The debit happened at creation and no mint completed.
		refund := txn.Amount.Add(txn.Fee)
		return s.store.FailWithRefund(ctx, txn.ID, txn.Direction, txn.Status,
			bridge.ReasonStale, txn.UserID, refund)
	}

	fields := bridgestore.TransitionFields{FailureReason: bridge.ReasonStale, Completed: true}
	return s.store.Transition(ctx, txn.ID, txn.Direction, txn.Status, bridge.StatusFailed, fields)
}
