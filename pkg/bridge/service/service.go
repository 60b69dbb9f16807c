// Package service implements the bridge settlement orchestrator: the
// validation pipeline, the LOCK and UNLOCK flows, and the refund path for
// failed mints.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/semilla-platform/bridge-engine/internal/metrics"
	apperrors "github.com/semilla-platform/bridge-engine/pkg/app/errors"
	"github.com/semilla-platform/bridge-engine/pkg/blacklist"
	"github.com/semilla-platform/bridge-engine/pkg/breaker"
	"github.com/semilla-platform/bridge-engine/pkg/bridge"
	"github.com/semilla-platform/bridge-engine/pkg/bridgestore"
	"github.com/semilla-platform/bridge-engine/pkg/chains"
	"github.com/semilla-platform/bridge-engine/pkg/config"
	"github.com/semilla-platform/bridge-engine/pkg/ledger"
	"github.com/semilla-platform/bridge-engine/pkg/security"
)

// Service defines the interface for the bridge settlement business logic
type Service interface {
	Lock(ctx context.Context, userID string, req *bridge.LockRequest) (*bridge.Transaction, error)
	Unlock(ctx context.Context, userID string, req *bridge.UnlockRequest) (*bridge.Transaction, error)
	Chains(ctx context.Context) ([]*bridge.SupportedChain, error)
	History(ctx context.Context, userID string) ([]*bridge.Transaction, error)
}

// securityRecorder is the slice of the security monitor the orchestrator
// needs.
type securityRecorder interface {
	Record(ctx context.Context, eventType security.EventType, severity security.Severity, details security.Details) (*security.Event, error)
	NoteUnlockFailure(ctx context.Context, userID, chainCode string)
}

type service struct {
	store    bridgestore.Store
	registry *chains.Registry
	enforcer *blacklist.Enforcer
	breaker  *breaker.Breaker
	monitor  securityRecorder
	adapter  bridge.ChainAdapter
	cfg      config.BridgeConfig
	logger   *zap.Logger

	// sleepFn is swapped out in tests to skip refund backoff delays.
	sleepFn func(time.Duration)
}

// New creates the bridge settlement orchestrator
func New(
	store bridgestore.Store,
	registry *chains.Registry,
	enforcer *blacklist.Enforcer,
	brk *breaker.Breaker,
	monitor securityRecorder,
	adapter bridge.ChainAdapter,
	cfg config.BridgeConfig,
	logger *zap.Logger,
) Service {
	return &service{
		store:    store,
		registry: registry,
		enforcer: enforcer,
		breaker:  brk,
		monitor:  monitor,
		adapter:  adapter,
		cfg:      cfg,
		logger:   logger,
		sleepFn:  time.Sleep,
	}
}

// gate runs the shared validation pipeline in its fixed order: breaker,
// blacklist, chain support, minimum amount. The first failing gate rejects
// the request without touching any state.
func (s *service) gate(ctx context.Context, userID, chainCode, rawAmount, externalAddress string) (*bridge.SupportedChain, decimal.Decimal, error) {
	if s.breaker.IsOpen() {
		state := s.breaker.State()
		metrics.RejectionsTotal.WithLabelValues(string(apperrors.CodeCircuitBreakerOpen)).Inc()
		return nil, decimal.Zero, apperrors.RejectedError(apperrors.CodeCircuitBreakerOpen, nil,
			fmt.Sprintf("bridge operations are suspended: %s", state.Reason))
	}

	if entry, hit := s.enforcer.Match(userID, externalAddress); hit {
		metrics.RejectionsTotal.WithLabelValues(string(apperrors.CodeBlacklisted)).Inc()
		if _, err := s.monitor.Record(ctx, security.TypeBlacklistHit, security.SeverityHigh, &security.BlacklistHitDetails{
			UserID:    userID,
			EntryType: string(entry.Type),
			Value:     entry.Value,
			Reason:    entry.Reason,
		}); err != nil {
			s.logger.Error("Failed to record blacklist hit", zap.Error(err))
		}
		return nil, decimal.Zero, apperrors.RejectedError(apperrors.CodeBlacklisted, nil,
			"operation not permitted")
	}

	chain, err := s.registry.Lookup(chainCode)
	if err != nil {
		metrics.RejectionsTotal.WithLabelValues(string(apperrors.CodeUnsupportedChain)).Inc()
		return nil, decimal.Zero, apperrors.RejectedError(apperrors.CodeUnsupportedChain, err,
			fmt.Sprintf("chain %s is not supported", chainCode))
	}

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return nil, decimal.Zero, apperrors.BadRequestError(err, "amount must be a decimal number")
	}
	if !amount.IsPositive() {
		return nil, decimal.Zero, apperrors.BadRequestError(nil, "amount must be positive")
	}
	if amount.LessThan(chain.MinAmount) {
		metrics.RejectionsTotal.WithLabelValues(string(apperrors.CodeBelowMinimumAmount)).Inc()
		return nil, decimal.Zero, apperrors.RejectedError(apperrors.CodeBelowMinimumAmount, nil,
			fmt.Sprintf("amount %s is below the minimum %s for %s", amount, chain.MinAmount, chain.ChainCode))
	}

	return chain, amount, nil
}

func (s *service) Lock(ctx context.Context, userID string, req *bridge.LockRequest) (*bridge.Transaction, error) {
	chain, amount, err := s.gate(ctx, userID, req.ChainCode, req.Amount, req.ExternalAddress)
	if err != nil {
		return nil, err
	}

	total := amount.Add(chain.Fee)
	txn := &bridge.Transaction{
		ID:              uuid.NewString(),
		UserID:          userID,
		Direction:       bridge.DirectionLock,
		ChainCode:       chain.ChainCode,
		Amount:          amount,
		Fee:             chain.Fee,
		ExternalAddress: req.ExternalAddress,
		Status:          bridge.StatusPending,
	}

	// Debit and PENDING row land in one transaction: the user's balance is
	// never reduced without a settlement record to account for it.
	if err := s.store.CreateLockPending(ctx, txn, total); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) || errors.Is(err, ledger.ErrAccountNotFound) {
			metrics.RejectionsTotal.WithLabelValues(string(apperrors.CodeInsufficientBalance)).Inc()
			return nil, apperrors.RejectedError(apperrors.CodeInsufficientBalance, err,
				fmt.Sprintf("balance is below %s (amount plus %s fee)", total, chain.Fee))
		}
		return nil, apperrors.GeneralError(err)
	}

	if err := s.transition(ctx, txn, bridge.StatusLocked, bridgestore.TransitionFields{}); err != nil {
		return nil, err
	}

	receipt, err := s.submitMint(ctx, txn)
	if err != nil {
		reason := bridge.ReasonMintFailed
		if errors.Is(err, context.DeadlineExceeded) {
			reason = bridge.ReasonAdapterTimeout
		}
		s.refundLock(ctx, txn, total, reason)
		metrics.TransactionsTotal.WithLabelValues(string(bridge.DirectionLock), string(bridge.StatusFailed)).Inc()
		return nil, apperrors.DependencyError(apperrors.CodeMintSubmissionFailed, err,
			"mint submission failed, the debited amount has been refunded")
	}

	fields := bridgestore.TransitionFields{MintTxHash: receipt.TxHash, Completed: true}
	if err := s.transition(ctx, txn, bridge.StatusMinted, fields); err != nil {
		return nil, err
	}
	txn.MintTxHash = receipt.TxHash

	amountFloat, _ := amount.Float64()
	metrics.TransactionsTotal.WithLabelValues(string(bridge.DirectionLock), string(bridge.StatusMinted)).Inc()
	metrics.TransactionAmount.WithLabelValues(string(bridge.DirectionLock)).Observe(amountFloat)

	return s.store.GetTransaction(ctx, txn.ID)
}

func (s *service) Unlock(ctx context.Context, userID string, req *bridge.UnlockRequest) (*bridge.Transaction, error) {
	chain, amount, err := s.gate(ctx, userID, req.ChainCode, req.Amount, "")
	if err != nil {
		return nil, err
	}

	txn := &bridge.Transaction{
		ID:             uuid.NewString(),
		UserID:         userID,
		Direction:      bridge.DirectionUnlock,
		ChainCode:      chain.ChainCode,
		Amount:         amount,
		Fee:            decimal.Zero,
		ExternalTxHash: req.ExternalTxHash,
		Status:         bridge.StatusPending,
	}

	if err := s.store.CreateUnlockPending(ctx, txn); err != nil {
		if errors.Is(err, bridgestore.ErrDuplicateTxHash) {
			metrics.RejectionsTotal.WithLabelValues(string(apperrors.CodeDuplicateTxHash)).Inc()
			return nil, apperrors.ConflictError(apperrors.CodeDuplicateTxHash, err,
				fmt.Sprintf("burn transaction %s is already claimed", req.ExternalTxHash))
		}
		return nil, apperrors.GeneralError(err)
	}

	verification, err := s.verifyBurn(ctx, chain.ChainCode, req.ExternalTxHash, amount)
	if err != nil || !verification.Confirmed || verification.Amount.LessThan(amount) {
		fields := bridgestore.TransitionFields{FailureReason: bridge.ReasonBurnNotVerified, Completed: true}
		if trErr := s.transition(ctx, txn, bridge.StatusFailed, fields); trErr != nil {
			return nil, trErr
		}
		s.monitor.NoteUnlockFailure(ctx, userID, chain.ChainCode)
		metrics.RejectionsTotal.WithLabelValues(string(apperrors.CodeBurnNotVerified)).Inc()
		metrics.TransactionsTotal.WithLabelValues(string(bridge.DirectionUnlock), string(bridge.StatusFailed)).Inc()
		return nil, apperrors.RejectedError(apperrors.CodeBurnNotVerified, err,
			fmt.Sprintf("burn transaction %s could not be verified", req.ExternalTxHash))
	}

	if err := s.transition(ctx, txn, bridge.StatusVerified, bridgestore.TransitionFields{}); err != nil {
		return nil, err
	}

	// Credit and UNLOCKED land in one transaction.
	if err := s.store.CompleteUnlockWithCredit(ctx, txn.ID, userID, amount); err != nil {
		return nil, s.mapStoreError(err)
	}

	amountFloat, _ := amount.Float64()
	metrics.TransactionsTotal.WithLabelValues(string(bridge.DirectionUnlock), string(bridge.StatusUnlocked)).Inc()
	metrics.TransactionAmount.WithLabelValues(string(bridge.DirectionUnlock)).Observe(amountFloat)

	return s.store.GetTransaction(ctx, txn.ID)
}

func (s *service) Chains(ctx context.Context) ([]*bridge.SupportedChain, error) {
	return s.registry.List(), nil
}

func (s *service) History(ctx context.Context, userID string) ([]*bridge.Transaction, error) {
	history, err := s.store.ListUserTransactions(ctx, userID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return history, nil
}

// transition moves txn forward and keeps the in-memory copy in sync. A lost
// write race is retried a bounded number of times against the re-read row
// before the conflict surfaces to the caller.
func (s *service) transition(ctx context.Context, txn *bridge.Transaction, to bridge.Status, fields bridgestore.TransitionFields) error {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxStorageRetries; attempt++ {
		lastErr = s.store.Transition(ctx, txn.ID, txn.Direction, txn.Status, to, fields)
		if lastErr == nil {
			txn.Status = to
			return nil
		}
		if !errors.Is(lastErr, bridgestore.ErrStorageConflict) {
			return s.mapStoreError(lastErr)
		}

		current, err := s.store.GetTransaction(ctx, txn.ID)
		if err != nil {
			return s.mapStoreError(lastErr)
		}
		if current.Status == to {
			// A concurrent writer already applied this transition.
			txn.Status = to
			return nil
		}
		txn.Status = current.Status
		if !bridge.CanTransition(txn.Direction, txn.Status, to) {
			return s.mapStoreError(bridgestore.ErrInvalidStateTransition)
		}
	}
	return s.mapStoreError(lastErr)
}

func (s *service) mapStoreError(err error) error {
	switch {
	case errors.Is(err, bridgestore.ErrInvalidStateTransition):
		return apperrors.ConflictError(apperrors.CodeInvalidStateTransition, err,
			"transaction is not in a state that permits this operation")
	case errors.Is(err, bridgestore.ErrStorageConflict):
		return apperrors.ConflictError(apperrors.CodeStorageConflict, err,
			"transaction was modified concurrently, please retry")
	default:
		return apperrors.GeneralError(err)
	}
}

func (s *service) submitMint(ctx context.Context, txn *bridge.Transaction) (*bridge.MintReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := s.adapter.SubmitMint(ctx, txn.ChainCode, txn.ExternalAddress, txn.Amount)
	metrics.AdapterCallDuration.WithLabelValues("submit_mint").Observe(time.Since(start).Seconds())
	return receipt, err
}

func (s *service) verifyBurn(ctx context.Context, chainCode, txHash string, amount decimal.Decimal) (*bridge.BurnVerification, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout)
	defer cancel()

	start := time.Now()
	verification, err := s.adapter.VerifyBurn(ctx, chainCode, txHash, amount)
	metrics.AdapterCallDuration.WithLabelValues("verify_burn").Observe(time.Since(start).Seconds())
	if verification == nil {
		verification = &bridge.BurnVerification{}
	}
	return verification, err
}

// refundLock returns the debited amount after a failed mint. The refund must
// not be lost to a transient storage error, so it retries; exhausting the
// budget leaves funds debited with no mint and escalates a CRITICAL event.
func (s *service) refundLock(ctx context.Context, txn *bridge.Transaction, total decimal.Decimal, reason string) {
	// The request context may already be canceled or past its deadline;
	// the refund still has to happen.
	ctx = context.WithoutCancel(ctx)

	lastErr := errors.New("refund retry budget is zero")
	for attempt := 1; attempt <= s.cfg.RefundMaxRetries; attempt++ {
		lastErr = s.store.FailWithRefund(ctx, txn.ID, txn.Direction, txn.Status, reason, txn.UserID, total)
		if lastErr == nil {
			txn.Status = bridge.StatusFailed
			return
		}
		metrics.RefundRetries.Inc()
		s.logger.Error("Refund attempt failed",
			zap.String("transaction_id", txn.ID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		s.sleepFn(s.cfg.RefundRetryDelay)
	}

	if _, err := s.monitor.Record(ctx, security.TypeRefundFailed, security.SeverityCritical, &security.RefundFailedDetails{
		TransactionID: txn.ID,
		UserID:        txn.UserID,
		Amount:        total.String(),
		Attempts:      s.cfg.RefundMaxRetries,
		LastError:     lastErr.Error(),
	}); err != nil {
		s.logger.Error("Failed to record refund failure", zap.Error(err))
	}
}
