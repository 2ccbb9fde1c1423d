/*
handlers.go - HTTP API handlers for the wallet ledger

PURPOSE:
  Exposes the ledger engine over REST. Handlers parse the request,
  authorize the caller against every wallet involved, delegate to the engine
  and serialize the result.

ENDPOINTS:
  Wallets:
    GET    /api/wallets                     Owned and household wallets
    POST   /api/wallets                     Create wallet (initial balance entry)
    GET    /api/wallets/{id}                Wallet details
    PUT    /api/wallets/{id}                Edit wallet (adjustment entry on balance change)
    DELETE /api/wallets/{id}                Delete wallet
    GET    /api/wallets/{id}/transactions   Wallet history, newest first
    GET    /api/wallets/{id}/pockets        List pockets
    POST   /api/wallets/{id}/pockets        Create pocket

  Transactions:
    POST   /api/transactions                Create
    GET    /api/transactions/{id}           Get
    PUT    /api/transactions/{id}           Update (may move wallets)
    DELETE /api/transactions/{id}           Delete

  Transfers:
    POST   /api/transfers                   Create
    GET    /api/transfers/{id}              Get with both legs

  Reference data:
    GET    /api/categories
    GET    /api/exchange-rates/latest
    POST   /api/exchange-rates/refresh

ERROR HANDLING:
  The ledger error kind picks the status:
  - 400: invalid_input
  - 403: forbidden
  - 404: not_found
  - 409: conflict
  - 422: insufficient_funds
  - 503: transient, rate_unavailable (retry later)
  - 500: everything else
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/wallet-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// RateRefresher stores a fresh exchange-rate snapshot.
type RateRefresher interface {
	Refresh(ctx context.Context) (ledger.ExchangeRate, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *ledger.Engine
	Authz     Authorizer
	Refresher RateRefresher // optional
	Logger    *zap.Logger
}

func NewHandler(engine *ledger.Engine, refresher RateRefresher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:    engine,
		Authz:     Authorizer{Wallets: engine},
		Refresher: refresher,
		Logger:    logger,
	}
}

// =============================================================================
// WALLET HANDLERS
// =============================================================================

// ListWallets returns the caller's wallets.
// GET /api/wallets
func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	wallets, err := h.Engine.ListWallets(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]WalletDTO, len(wallets))
	for i, wl := range wallets {
		dtos[i] = toWalletDTO(wl)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateWallet opens a wallet owned by the caller.
// POST /api/wallets
func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFrom(ctx)

	var req CreateWalletRequest
	if !readJSON(w, r, &req) {
		return
	}
	in := ledger.CreateWalletInput{
		OwnerID:  user,
		Name:     req.Name,
		Platform: req.Platform,
		Currency: ledger.Currency(req.Currency),
		Balance:  req.Balance,
	}
	if req.Date != nil {
		in.Date = *req.Date
	}
	if req.HouseholdID != nil {
		hid := ledger.HouseholdID(*req.HouseholdID)
		if err := h.Authz.Household(ctx, user, hid); err != nil {
			h.fail(w, r, err)
			return
		}
		in.HouseholdID = &hid
	}

	wallet, initial, err := h.Engine.CreateWallet(ctx, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, WalletCreatedResponse{
		Wallet:             toWalletDTO(wallet),
		InitialTransaction: toTransactionDTO(initial),
	})
}

// GetWallet returns one wallet.
// GET /api/wallets/{id}
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.authorizeWallet(w, r, ledger.WalletID(chi.URLParam(r, "id")))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toWalletDTO(wallet))
}

// UpdateWallet edits a wallet; a new balance is booked as an adjustment.
// PUT /api/wallets/{id}
func (h *Handler) UpdateWallet(w http.ResponseWriter, r *http.Request) {
	id := ledger.WalletID(chi.URLParam(r, "id"))
	if _, ok := h.authorizeWallet(w, r, id); !ok {
		return
	}
	var req UpdateWalletRequest
	if !readJSON(w, r, &req) {
		return
	}

	wallet, adj, err := h.Engine.UpdateWallet(r.Context(), ledger.UpdateWalletInput{
		ID:       id,
		Name:     req.Name,
		Platform: req.Platform,
		Currency: ledger.Currency(req.Currency),
		Balance:  req.Balance,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := WalletUpdatedResponse{Wallet: toWalletDTO(wallet)}
	if adj != nil {
		dto := toTransactionDTO(*adj)
		resp.Adjustment = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteWallet removes a wallet and its history.
// DELETE /api/wallets/{id}
func (h *Handler) DeleteWallet(w http.ResponseWriter, r *http.Request) {
	id := ledger.WalletID(chi.URLParam(r, "id"))
	if _, ok := h.authorizeWallet(w, r, id); !ok {
		return
	}
	wallet, err := h.Engine.DeleteWallet(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletDTO(wallet))
}

// ListTransactions returns a wallet's entries.
// GET /api/wallets/{id}/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id := ledger.WalletID(chi.URLParam(r, "id"))
	if _, ok := h.authorizeWallet(w, r, id); !ok {
		return
	}
	txs, err := h.Engine.ListTransactions(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// POCKET HANDLERS
// =============================================================================

// GET /api/wallets/{id}/pockets
func (h *Handler) ListPockets(w http.ResponseWriter, r *http.Request) {
	id := ledger.WalletID(chi.URLParam(r, "id"))
	if _, ok := h.authorizeWallet(w, r, id); !ok {
		return
	}
	pockets, err := h.Engine.ListPockets(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]PocketDTO, len(pockets))
	for i, p := range pockets {
		dtos[i] = toPocketDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// POST /api/wallets/{id}/pockets
func (h *Handler) CreatePocket(w http.ResponseWriter, r *http.Request) {
	id := ledger.WalletID(chi.URLParam(r, "id"))
	if _, ok := h.authorizeWallet(w, r, id); !ok {
		return
	}
	var req CreatePocketRequest
	if !readJSON(w, r, &req) {
		return
	}
	p, err := h.Engine.CreatePocket(r.Context(), id, req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPocketDTO(p))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// POST /api/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if !readJSON(w, r, &req) {
		return
	}
	if _, ok := h.authorizeWallet(w, r, ledger.WalletID(req.WalletID)); !ok {
		return
	}
	t, err := h.Engine.CreateTransaction(r.Context(), req.toInput())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(t))
}

// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	t, ok := h.authorizeTransaction(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(t))
}

// UpdateTransaction rewrites an entry. The caller needs access to both the
// current and the target wallet.
// PUT /api/transactions/{id}
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	prev, ok := h.authorizeTransaction(w, r)
	if !ok {
		return
	}
	var req TransactionRequest
	if !readJSON(w, r, &req) {
		return
	}
	if ledger.WalletID(req.WalletID) != prev.WalletID {
		if _, ok := h.authorizeWallet(w, r, ledger.WalletID(req.WalletID)); !ok {
			return
		}
	}
	t, err := h.Engine.UpdateTransaction(r.Context(), ledger.UpdateTransactionInput{
		ID:                     prev.ID,
		CreateTransactionInput: req.toInput(),
		ExpectedWalletID:       prev.WalletID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(t))
}

// DELETE /api/transactions/{id}
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	prev, ok := h.authorizeTransaction(w, r)
	if !ok {
		return
	}
	t, err := h.Engine.DeleteTransaction(r.Context(), prev.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(t))
}

// =============================================================================
// TRANSFER HANDLERS
// =============================================================================

// POST /api/transfers
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if !readJSON(w, r, &req) {
		return
	}
	for _, id := range []string{req.FromWalletID, req.ToWalletID} {
		if _, ok := h.authorizeWallet(w, r, ledger.WalletID(id)); !ok {
			return
		}
	}
	d, err := h.Engine.CreateTransfer(r.Context(), ledger.CreateTransferInput{
		FromWalletID: ledger.WalletID(req.FromWalletID),
		ToWalletID:   ledger.WalletID(req.ToWalletID),
		FromAmount:   req.FromAmount,
		ToAmount:     req.ToAmount,
		Fee:          req.Fee,
		Date:         req.Date,
		Description:  req.Description,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransferDTO(d))
}

// GetTransfer is visible to callers with access to either side.
// GET /api/transfers/{id}
func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFrom(ctx)
	d, err := h.Engine.GetTransfer(ctx, ledger.TransferID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_, errDebit := h.Authz.Wallet(ctx, user, d.Debit.WalletID)
	_, errCredit := h.Authz.Wallet(ctx, user, d.Credit.WalletID)
	if errDebit != nil && errCredit != nil {
		h.fail(w, r, ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, toTransferDTO(d))
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// GET /api/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Engine.ListCategories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = toCategoryDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GET /api/exchange-rates/latest
func (h *Handler) LatestExchangeRate(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Engine.LatestExchangeRate(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExchangeRateDTO(snap))
}

// POST /api/exchange-rates/refresh
func (h *Handler) RefreshExchangeRates(w http.ResponseWriter, r *http.Request) {
	if h.Refresher == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "exchange rate refresh is not configured",
			Kind:  string(ledger.KindRateUnavailable),
		})
		return
	}
	snap, err := h.Refresher.Refresh(r.Context())
	if err != nil {
		h.Logger.Error("exchange rate refresh failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "failed to refresh exchange rates",
			Kind:    string(ledger.KindRateUnavailable),
			Details: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusCreated, toExchangeRateDTO(snap))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) authorizeWallet(w http.ResponseWriter, r *http.Request, id ledger.WalletID) (ledger.Wallet, bool) {
	user, _ := UserFrom(r.Context())
	wallet, err := h.Authz.Wallet(r.Context(), user, id)
	if err != nil {
		h.fail(w, r, err)
		return ledger.Wallet{}, false
	}
	return wallet, true
}

func (h *Handler) authorizeTransaction(w http.ResponseWriter, r *http.Request) (ledger.Transaction, bool) {
	t, err := h.Engine.GetTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return ledger.Transaction{}, false
	}
	if _, ok := h.authorizeWallet(w, r, t.WalletID); !ok {
		return ledger.Transaction{}, false
	}
	return t, true
}

// fail writes err with the status of its kind.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusOf(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, status, kind, "internal error", nil)
		return
	}
	writeError(w, status, kind, messageOf(kind), err)
}

func statusOf(err error) (int, string) {
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden, "forbidden"
	}
	kind := ledger.KindOf(err)
	switch kind {
	case ledger.KindNotFound:
		return http.StatusNotFound, string(kind)
	case ledger.KindInsufficientFunds:
		return http.StatusUnprocessableEntity, string(kind)
	case ledger.KindInvalidInput:
		return http.StatusBadRequest, string(kind)
	case ledger.KindConflict:
		return http.StatusConflict, string(kind)
	case ledger.KindTransient, ledger.KindRateUnavailable:
		return http.StatusServiceUnavailable, string(kind)
	}
	return http.StatusInternalServerError, string(kind)
}

func messageOf(kind string) string {
	switch kind {
	case "forbidden":
		return "Access to this wallet is not allowed"
	case string(ledger.KindNotFound):
		return "Resource not found"
	case string(ledger.KindInsufficientFunds):
		return "Insufficient funds"
	case string(ledger.KindInvalidInput):
		return "Invalid request"
	case string(ledger.KindConflict):
		return "Operation conflicts with linked records"
	case string(ledger.KindTransient):
		return "Concurrent modification, please retry"
	case string(ledger.KindRateUnavailable):
		return "Exchange rate unavailable"
	}
	return "Request failed"
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(ledger.KindInvalidInput), "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, kind, message string, err error) {
	resp := ErrorResponse{Error: message, Kind: kind}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
