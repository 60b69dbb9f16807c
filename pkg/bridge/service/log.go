package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/semilla-platform/bridge-engine/pkg/bridge"
)

const serviceName = "bridge"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the bridge Service.
// It logs method entry/exit, duration, and errors.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

// Lock wraps the service method with logging
func (ls *logService) Lock(ctx context.Context, userID string, req *bridge.LockRequest) (txn *bridge.Transaction, err error) {
	start := time.Now()

	ls.logger.Info("Lock started",
		zap.String("service", serviceName),
		zap.String("method", "Lock"),
		zap.String("user_id", userID),
		zap.String("chain_code", req.ChainCode),
		zap.String("amount", req.Amount),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("Lock failed",
				zap.String("service", serviceName),
				zap.String("method", "Lock"),
				zap.String("user_id", userID),
				zap.String("chain_code", req.ChainCode),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("Lock completed",
				zap.String("service", serviceName),
				zap.String("method", "Lock"),
				zap.String("transaction_id", txn.ID),
				zap.String("status", string(txn.Status)),
				zap.String("mint_tx_hash", txn.MintTxHash),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.Lock(ctx, userID, req)
}

// Unlock wraps the service method with logging
func (ls *logService) Unlock(ctx context.Context, userID string, req *bridge.UnlockRequest) (txn *bridge.Transaction, err error) {
	start := time.Now()

	ls.logger.Info("Unlock started",
		zap.String("service", serviceName),
		zap.String("method", "Unlock"),
		zap.String("user_id", userID),
		zap.String("chain_code", req.ChainCode),
		zap.String("amount", req.Amount),
		zap.String("external_tx_hash", req.ExternalTxHash),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("Unlock failed",
				zap.String("service", serviceName),
				zap.String("method", "Unlock"),
				zap.String("user_id", userID),
				zap.String("external_tx_hash", req.ExternalTxHash),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("Unlock completed",
				zap.String("service", serviceName),
				zap.String("method", "Unlock"),
				zap.String("transaction_id", txn.ID),
				zap.String("status", string(txn.Status)),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.Unlock(ctx, userID, req)
}

// Chains wraps the service method with logging
func (ls *logService) Chains(ctx context.Context) ([]*bridge.SupportedChain, error) {
	return ls.svc.Chains(ctx)
}

// History wraps the service method with logging
func (ls *logService) History(ctx context.Context, userID string) (txns []*bridge.Transaction, err error) {
	start := time.Now()

	defer func() {
		if err != nil {
			ls.logger.Error("History failed",
				zap.String("service", serviceName),
				zap.String("method", "History"),
				zap.String("user_id", userID),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		}
	}()

	return ls.svc.History(ctx, userID)
}
