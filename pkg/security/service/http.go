// Package service exposes the operator surface: security event queries,
// blacklist management, chain policy edits, and manual circuit breaker
// control.
package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/semilla-platform/bridge-engine/pkg/app/errors"
	apphttp "github.com/semilla-platform/bridge-engine/pkg/app/http"
	"github.com/semilla-platform/bridge-engine/pkg/blacklist"
	"github.com/semilla-platform/bridge-engine/pkg/breaker"
	"github.com/semilla-platform/bridge-engine/pkg/bridge"
	"github.com/semilla-platform/bridge-engine/pkg/chains"
	"github.com/semilla-platform/bridge-engine/pkg/security"
)

const defaultEventLimit = 100

// HTTP wires the admin endpoints to the security monitor, the blacklist, the
// chain registry, and the circuit breaker.
type HTTP struct {
	monitor   *security.Monitor
	events    security.Store
	blacklist blacklist.Store
	enforcer  *blacklist.Enforcer
	chains    chains.Store
	registry  *chains.Registry
	breaker   *breaker.Breaker
	logger    *zap.Logger
}

// RegisterRoutes registers admin HTTP endpoints on the given chi router
func RegisterRoutes(
	r chi.Router,
	monitor *security.Monitor,
	events security.Store,
	blacklistStore blacklist.Store,
	enforcer *blacklist.Enforcer,
	chainStore chains.Store,
	registry *chains.Registry,
	brk *breaker.Breaker,
	logger *zap.Logger,
) {
	h := &HTTP{
		monitor:   monitor,
		events:    events,
		blacklist: blacklistStore,
		enforcer:  enforcer,
		chains:    chainStore,
		registry:  registry,
		breaker:   brk,
		logger:    logger,
	}

	r.Get("/security/stats", apphttp.HandleError(h.stats))
	r.Get("/security/events", apphttp.HandleError(h.listEvents))
	r.Post("/security/events/{id}/resolve", apphttp.HandleError(h.resolveEvent))

	r.Get("/blacklist", apphttp.HandleError(h.listBlacklist))
	r.Post("/blacklist", apphttp.HandleError(h.addBlacklistEntry))
	r.Delete("/blacklist/{id}", apphttp.HandleError(h.removeBlacklistEntry))

	r.Get("/chains", apphttp.HandleError(h.listChains))
	r.Put("/chains/{code}", apphttp.HandleError(h.upsertChain))
	r.Post("/chains/{code}/enable", apphttp.HandleError(h.enableChain))
	r.Post("/chains/{code}/disable", apphttp.HandleError(h.disableChain))

	r.Get("/breaker", apphttp.HandleError(h.breakerState))
	r.Post("/breaker/open", apphttp.HandleError(h.openBreaker))
	r.Post("/breaker/close", apphttp.HandleError(h.closeBreaker))
}

func (h *HTTP) stats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.monitor.Stats(r.Context())
	if err != nil {
		return apperrors.GeneralError(err)
	}
	apphttp.WriteJSON(w, http.StatusOK, stats)
	return nil
}

func (h *HTTP) listEvents(w http.ResponseWriter, r *http.Request) error {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return apperrors.BadRequestError(err, "limit must be a positive integer")
		}
		limit = parsed
	}

	events, err := h.events.ListEvents(r.Context(), limit)
	if err != nil {
		return apperrors.GeneralError(err)
	}

	resp := make([]*eventResponse, 0, len(events))
	for _, e := range events {
		er, err := toEventResponse(e)
		if err != nil {
			return apperrors.GeneralError(err)
		}
		resp = append(resp, er)
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) resolveEvent(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := h.events.ResolveEvent(r.Context(), id); err != nil {
		if errors.Is(err, security.ErrEventNotFound) {
			return apperrors.NotFoundError(err, "security event not found")
		}
		return apperrors.GeneralError(err)
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "resolved": "true"})
	return nil
}

func (h *HTTP) listBlacklist(w http.ResponseWriter, r *http.Request) error {
	activeOnly := r.URL.Query().Get("all") != "true"
	entries, err := h.blacklist.ListEntries(r.Context(), activeOnly)
	if err != nil {
		return apperrors.GeneralError(err)
	}

	resp := make([]*blacklistEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toBlacklistEntryResponse(e))
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

type addBlacklistRequest struct {
	EntryType string `json:"entry_type"`
	Value     string `json:"value"`
	Reason    string `json:"reason"`
}

func (h *HTTP) addBlacklistEntry(w http.ResponseWriter, r *http.Request) error {
	var req addBlacklistRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	entryType := blacklist.EntryType(req.EntryType)
	if entryType != blacklist.TypeDID && entryType != blacklist.TypeAddress {
		return apperrors.BadRequestError(nil, "entry_type must be DID or ADDRESS")
	}
	if req.Value == "" || req.Reason == "" {
		return apperrors.BadRequestError(nil, "value and reason are required")
	}

	entry, err := h.blacklist.AddEntry(r.Context(), entryType, req.Value, req.Reason)
	if err != nil {
		return apperrors.GeneralError(err)
	}
	if err := h.enforcer.Reload(r.Context()); err != nil {
		return apperrors.GeneralError(err)
	}

	h.logger.Info("Blacklist entry added",
		zap.String("entry_type", req.EntryType),
		zap.String("value", req.Value))

	apphttp.WriteJSON(w, http.StatusCreated, toBlacklistEntryResponse(entry))
	return nil
}

func (h *HTTP) removeBlacklistEntry(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := h.blacklist.DeactivateEntry(r.Context(), id); err != nil {
		if errors.Is(err, blacklist.ErrEntryNotFound) {
			return apperrors.NotFoundError(err, "blacklist entry not found")
		}
		return apperrors.GeneralError(err)
	}
	if err := h.enforcer.Reload(r.Context()); err != nil {
		return apperrors.GeneralError(err)
	}

	h.logger.Info("Blacklist entry deactivated", zap.String("id", id))

	apphttp.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "active": "false"})
	return nil
}

func (h *HTTP) listChains(w http.ResponseWriter, r *http.Request) error {
	// the operator view includes disabled chains
	list, err := h.chains.ListChains(r.Context())
	if err != nil {
		return apperrors.GeneralError(err)
	}

	resp := make([]*chainResponse, 0, len(list))
	for _, c := range list {
		resp = append(resp, toChainResponse(c))
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

type upsertChainRequest struct {
	DisplayName string `json:"display_name"`
	MinAmount   string `json:"min_amount"`
	Fee         string `json:"fee"`
	Enabled     bool   `json:"enabled"`
}

func (h *HTTP) upsertChain(w http.ResponseWriter, r *http.Request) error {
	code := chi.URLParam(r, "code")
	var req upsertChainRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if req.DisplayName == "" {
		return apperrors.BadRequestError(nil, "display_name is required")
	}

	minAmount, err := decimal.NewFromString(req.MinAmount)
	if err != nil || !minAmount.IsPositive() {
		return apperrors.BadRequestError(err, "min_amount must be a positive decimal number")
	}
	fee, err := decimal.NewFromString(req.Fee)
	if err != nil || fee.IsNegative() {
		return apperrors.BadRequestError(err, "fee must be a non-negative decimal number")
	}

	chain := &bridge.SupportedChain{
		ChainCode:   code,
		DisplayName: req.DisplayName,
		MinAmount:   minAmount,
		Fee:         fee,
		Enabled:     req.Enabled,
	}
	if err := h.chains.UpsertChain(r.Context(), chain); err != nil {
		return apperrors.GeneralError(err)
	}
	if err := h.registry.Reload(r.Context()); err != nil {
		return apperrors.GeneralError(err)
	}

	h.logger.Info("Chain policy updated",
		zap.String("chain_code", code),
		zap.String("min_amount", minAmount.String()),
		zap.String("fee", fee.String()),
		zap.Bool("enabled", req.Enabled))

	apphttp.WriteJSON(w, http.StatusOK, toChainResponse(chain))
	return nil
}

func (h *HTTP) enableChain(w http.ResponseWriter, r *http.Request) error {
	return h.setChainEnabled(w, r, true)
}

func (h *HTTP) disableChain(w http.ResponseWriter, r *http.Request) error {
	return h.setChainEnabled(w, r, false)
}

// setChainEnabled flips the drain flag for one chain. Disabling drains that
// chain without tripping the global breaker.
func (h *HTTP) setChainEnabled(w http.ResponseWriter, r *http.Request, enabled bool) error {
	code := chi.URLParam(r, "code")
	if err := h.chains.SetChainEnabled(r.Context(), code, enabled); err != nil {
		if errors.Is(err, chains.ErrChainNotFound) {
			return apperrors.NotFoundError(err, "chain not found")
		}
		return apperrors.GeneralError(err)
	}
	if err := h.registry.Reload(r.Context()); err != nil {
		return apperrors.GeneralError(err)
	}

	h.logger.Info("Chain enabled flag changed",
		zap.String("chain_code", code),
		zap.Bool("enabled", enabled))

	apphttp.WriteJSON(w, http.StatusOK, map[string]any{"chain_code": code, "enabled": enabled})
	return nil
}

func (h *HTTP) breakerState(w http.ResponseWriter, r *http.Request) error {
	apphttp.WriteJSON(w, http.StatusOK, toBreakerResponse(h.breaker.State()))
	return nil
}

type openBreakerRequest struct {
	Reason string `json:"reason"`
}

func (h *HTTP) openBreaker(w http.ResponseWriter, r *http.Request) error {
	var req openBreakerRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if req.Reason == "" {
		return apperrors.BadRequestError(nil, "reason is required")
	}

	if err := h.breaker.Open(r.Context(), req.Reason); err != nil {
		return apperrors.GeneralError(err)
	}
	apphttp.WriteJSON(w, http.StatusOK, toBreakerResponse(h.breaker.State()))
	return nil
}

type closeBreakerRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *HTTP) closeBreaker(w http.ResponseWriter, r *http.Request) error {
	var req closeBreakerRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	// Closing resumes real fund movement; an explicit confirmation keeps a
	// fat-fingered request from doing it.
	if !req.Confirm {
		return apperrors.BadRequestError(nil, "closing the breaker requires confirm=true")
	}

	previous := h.breaker.State()
	if err := h.breaker.Close(r.Context()); err != nil {
		if errors.Is(err, breaker.ErrAlreadyClosed) {
			return apperrors.ConflictError(apperrors.CodeInvalidStateTransition, err, "circuit breaker is not open")
		}
		return apperrors.GeneralError(err)
	}

	if _, err := h.monitor.Record(r.Context(), security.TypeBreakerClosed, security.SeverityMedium, &security.BreakerClosedDetails{
		PreviousReason: previous.Reason,
	}); err != nil {
		h.logger.Error("Failed to record breaker close event", zap.Error(err))
	}

	apphttp.WriteJSON(w, http.StatusOK, toBreakerResponse(h.breaker.State()))
	return nil
}

func decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

type eventResponse struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Severity   string          `json:"severity"`
	Details    json.RawMessage `json:"details"`
	CreatedAt  time.Time       `json:"created_at"`
	Resolved   bool            `json:"resolved"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

func toEventResponse(e *security.Event) (*eventResponse, error) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return nil, err
	}
	return &eventResponse{
		ID:         e.ID,
		Type:       string(e.Type),
		Severity:   string(e.Severity),
		Details:    details,
		CreatedAt:  e.CreatedAt,
		Resolved:   e.Resolved,
		ResolvedAt: e.ResolvedAt,
	}, nil
}

type blacklistEntryResponse struct {
	ID        string     `json:"id"`
	EntryType string     `json:"entry_type"`
	Value     string     `json:"value"`
	Reason    string     `json:"reason"`
	Active    bool       `json:"active"`
	AddedAt   time.Time  `json:"added_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

func toBlacklistEntryResponse(e *blacklist.Entry) *blacklistEntryResponse {
	return &blacklistEntryResponse{
		ID:        e.ID,
		EntryType: string(e.Type),
		Value:     e.Value,
		Reason:    e.Reason,
		Active:    e.Active,
		AddedAt:   e.AddedAt,
		RemovedAt: e.RemovedAt,
	}
}

type chainResponse struct {
	ChainCode   string `json:"chain_code"`
	DisplayName string `json:"display_name"`
	MinAmount   string `json:"min_amount"`
	Fee         string `json:"fee"`
	Enabled     bool   `json:"enabled"`
}

func toChainResponse(c *bridge.SupportedChain) *chainResponse {
	return &chainResponse{
		ChainCode:   c.ChainCode,
		DisplayName: c.DisplayName,
		MinAmount:   c.MinAmount.String(),
		Fee:         c.Fee.String(),
		Enabled:     c.Enabled,
	}
}

type breakerResponse struct {
	Open     bool       `json:"open"`
	Reason   string     `json:"reason,omitempty"`
	OpenedAt *time.Time `json:"opened_at,omitempty"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

func toBreakerResponse(state breaker.State) *breakerResponse {
	return &breakerResponse{
		Open:     state.Open,
		Reason:   state.Reason,
		OpenedAt: state.OpenedAt,
		ClosedAt: state.ClosedAt,
	}
}
