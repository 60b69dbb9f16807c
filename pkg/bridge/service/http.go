package service

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/semilla-platform/bridge-engine/pkg/app/errors"
	apphttp "github.com/semilla-platform/bridge-engine/pkg/app/http"
	"github.com/semilla-platform/bridge-engine/pkg/bridge"
)

// userIDHeader carries the authenticated platform identity. The gateway in
// front of this service sets it after verifying the user's credential.
const userIDHeader = "X-User-ID"

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service  Service
	validate *validator.Validate
	logger   *zap.Logger
}

// RegisterRoutes registers HTTP endpoints for the bridge service on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}

	r.Post("/bridge/lock", apphttp.HandleError(h.lock))
	r.Post("/bridge/unlock", apphttp.HandleError(h.unlock))
	r.Get("/bridge/chains", apphttp.HandleError(h.chains))
	r.Get("/bridge/history", apphttp.HandleError(h.history))
}

func (h *HTTP) lock(w http.ResponseWriter, r *http.Request) error {
	userID, err := requireUserID(r)
	if err != nil {
		return err
	}

	var req bridge.LockRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	txn, err := h.service.Lock(r.Context(), userID, &req)
	if err != nil {
		return err
	}

	apphttp.WriteJSON(w, http.StatusCreated, toTransactionResponse(txn))
	return nil
}

func (h *HTTP) unlock(w http.ResponseWriter, r *http.Request) error {
	userID, err := requireUserID(r)
	if err != nil {
		return err
	}

	var req bridge.UnlockRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	txn, err := h.service.Unlock(r.Context(), userID, &req)
	if err != nil {
		return err
	}

	apphttp.WriteJSON(w, http.StatusCreated, toTransactionResponse(txn))
	return nil
}

func (h *HTTP) chains(w http.ResponseWriter, r *http.Request) error {
	supported, err := h.service.Chains(r.Context())
	if err != nil {
		return err
	}

	resp := make([]*chainResponse, 0, len(supported))
	for _, c := range supported {
		resp = append(resp, &chainResponse{
			ChainCode:   c.ChainCode,
			DisplayName: c.DisplayName,
			MinAmount:   c.MinAmount.String(),
			Fee:         c.Fee.String(),
		})
	}

	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) history(w http.ResponseWriter, r *http.Request) error {
	userID, err := requireUserID(r)
	if err != nil {
		return err
	}

	txns, err := h.service.History(r.Context(), userID)
	if err != nil {
		return err
	}

	resp := make([]*transactionResponse, 0, len(txns))
	for _, txn := range txns {
		resp = append(resp, toTransactionResponse(txn))
	}

	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperrors.BadRequestError(err, "missing or invalid request fields")
	}
	return nil
}

func requireUserID(r *http.Request) (string, error) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		return "", apperrors.BadRequestError(nil, userIDHeader+" header is required")
	}
	return userID, nil
}

type transactionResponse struct {
	ID              string `json:"id"`
	Direction       string `json:"direction"`
	ChainCode       string `json:"chain_code"`
	Amount          string `json:"amount"`
	Fee             string `json:"fee"`
	ExternalAddress string `json:"external_address,omitempty"`
	ExternalTxHash  string `json:"external_tx_hash,omitempty"`
	MintTxHash      string `json:"mint_tx_hash,omitempty"`
	Status          string `json:"status"`
	FailureReason   string `json:"failure_reason,omitempty"`
	CreatedAt       string `json:"created_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

type chainResponse struct {
	ChainCode   string `json:"chain_code"`
	DisplayName string `json:"display_name"`
	MinAmount   string `json:"min_amount"`
	Fee         string `json:"fee"`
}

func toTransactionResponse(txn *bridge.Transaction) *transactionResponse {
	resp := &transactionResponse{
		ID:              txn.ID,
		Direction:       string(txn.Direction),
		ChainCode:       txn.ChainCode,
		Amount:          txn.Amount.String(),
		Fee:             txn.Fee.String(),
		ExternalAddress: txn.ExternalAddress,
		ExternalTxHash:  txn.ExternalTxHash,
		MintTxHash:      txn.MintTxHash,
		Status:          string(txn.Status),
		FailureReason:   txn.FailureReason,
		CreatedAt:       txn.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if txn.CompletedAt != nil {
		resp.CompletedAt = txn.CompletedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}
