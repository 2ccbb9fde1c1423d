/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

AMOUNTS:
  Amounts travel as decimal strings ("-200.5") and are accepted as strings
  or JSON numbers. *_display fields carry a currency-formatted copy for
  humans and are never parsed back.

VALIDATION:
  Validation is done by the ledger engine, not in DTOs.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/wallet-ledger/ledger"
)

// =============================================================================
// RESPONSES
// =============================================================================

type WalletDTO struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	HouseholdID    *string         `json:"household_id,omitempty"`
	Name           string          `json:"name"`
	Platform       string          `json:"platform"`
	Currency       string          `json:"currency"`
	Balance        decimal.Decimal `json:"balance"`
	BalanceDisplay string          `json:"balance_display"`
	CreatedAt      time.Time       `json:"created_at"`
}

type TransactionDTO struct {
	ID              string           `json:"id"`
	WalletID        string           `json:"wallet_id"`
	Type            string           `json:"type"`
	Amount          decimal.Decimal  `json:"amount"`
	AmountUSD       decimal.Decimal  `json:"amount_usd"`
	CategoryID      string           `json:"category_id"`
	SubcategoryID   string           `json:"subcategory_id"`
	Entity          string           `json:"entity,omitempty"`
	Description     string           `json:"description,omitempty"`
	Date            time.Time        `json:"date"`
	TransferID      *string          `json:"transfer_id,omitempty"`
	PreviousBalance *decimal.Decimal `json:"previous_balance,omitempty"`
	NewBalance      *decimal.Decimal `json:"new_balance,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

type TransferDTO struct {
	ID               string          `json:"id"`
	Fee              decimal.Decimal `json:"fee"`
	FeeUSD           decimal.Decimal `json:"fee_usd"`
	FeeTransactionID *string         `json:"fee_transaction_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	Debit            TransactionDTO  `json:"debit"`
	Credit           TransactionDTO  `json:"credit"`
}

type PocketDTO struct {
	ID        string          `json:"id"`
	WalletID  string          `json:"wallet_id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

type SubcategoryDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CategoryDTO struct {
	ID            string           `json:"id"`
	Type          string           `json:"type"`
	Name          string           `json:"name"`
	Subcategories []SubcategoryDTO `json:"subcategories"`
}

type ExchangeRateDTO struct {
	ID        string                     `json:"id"`
	CreatedAt time.Time                  `json:"created_at"`
	Rates     map[string]decimal.Decimal `json:"rates"`
}

type WalletCreatedResponse struct {
	Wallet             WalletDTO      `json:"wallet"`
	InitialTransaction TransactionDTO `json:"initial_transaction"`
}

type WalletUpdatedResponse struct {
	Wallet     WalletDTO       `json:"wallet"`
	Adjustment *TransactionDTO `json:"adjustment,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// REQUESTS
// =============================================================================

type CreateWalletRequest struct {
	Name        string          `json:"name"`
	Platform    string          `json:"platform"`
	Currency    string          `json:"currency"`
	Balance     decimal.Decimal `json:"balance"`
	Date        *time.Time      `json:"date,omitempty"`
	HouseholdID *string         `json:"household_id,omitempty"`
}

type UpdateWalletRequest struct {
	Name     string          `json:"name"`
	Platform string          `json:"platform"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

type TransactionRequest struct {
	WalletID      string          `json:"wallet_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	CategoryID    string          `json:"category_id"`
	SubcategoryID string          `json:"subcategory_id"`
	Date          time.Time       `json:"date"`
	Entity        *string         `json:"entity,omitempty"`
	Description   *string         `json:"description,omitempty"`
}

type CreateTransferRequest struct {
	FromWalletID string           `json:"from_wallet_id"`
	ToWalletID   string           `json:"to_wallet_id"`
	FromAmount   decimal.Decimal  `json:"from_amount"`
	ToAmount     decimal.Decimal  `json:"to_amount"`
	Fee          *decimal.Decimal `json:"fee,omitempty"`
	Date         time.Time        `json:"date"`
	Description  *string          `json:"description,omitempty"`
}

type CreatePocketRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toWalletDTO(w ledger.Wallet) WalletDTO {
	dto := WalletDTO{
		ID:             string(w.ID),
		OwnerID:        string(w.OwnerID),
		Name:           w.Name,
		Platform:       w.Platform,
		Currency:       string(w.Currency),
		Balance:        w.Balance,
		BalanceDisplay: ledger.FormatAmount(w.Balance, w.Currency),
		CreatedAt:      w.CreatedAt,
	}
	if w.HouseholdID != nil {
		h := string(*w.HouseholdID)
		dto.HouseholdID = &h
	}
	return dto
}

func toTransactionDTO(t ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:              string(t.ID),
		WalletID:        string(t.WalletID),
		Type:            string(t.Type),
		Amount:          t.Amount,
		AmountUSD:       t.AmountUSD,
		CategoryID:      string(t.CategoryID),
		SubcategoryID:   string(t.SubcategoryID),
		Entity:          t.Entity,
		Description:     t.Description,
		Date:            t.Date,
		PreviousBalance: t.PreviousBalance,
		NewBalance:      t.NewBalance,
		CreatedAt:       t.CreatedAt,
	}
	if t.TransferID != nil {
		id := string(*t.TransferID)
		dto.TransferID = &id
	}
	return dto
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	out := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		out[i] = toTransactionDTO(t)
	}
	return out
}

func toTransferDTO(d ledger.TransferDetail) TransferDTO {
	dto := TransferDTO{
		ID:        string(d.ID),
		Fee:       d.Fee,
		FeeUSD:    d.FeeUSD,
		CreatedAt: d.CreatedAt,
		Debit:     toTransactionDTO(d.Debit),
		Credit:    toTransactionDTO(d.Credit),
	}
	if d.FeeTransactionID != nil {
		id := string(*d.FeeTransactionID)
		dto.FeeTransactionID = &id
	}
	return dto
}

func toPocketDTO(p ledger.Pocket) PocketDTO {
	return PocketDTO{
		ID:        string(p.ID),
		WalletID:  string(p.WalletID),
		Name:      p.Name,
		Balance:   p.Balance,
		CreatedAt: p.CreatedAt,
	}
}

func toCategoryDTO(c ledger.Category) CategoryDTO {
	dto := CategoryDTO{ID: string(c.ID), Type: string(c.Type), Name: c.Name, Subcategories: []SubcategoryDTO{}}
	for _, s := range c.Subcategories {
		dto.Subcategories = append(dto.Subcategories, SubcategoryDTO{ID: string(s.ID), Name: s.Name})
	}
	return dto
}

func toExchangeRateDTO(r ledger.ExchangeRate) ExchangeRateDTO {
	dto := ExchangeRateDTO{ID: string(r.ID), CreatedAt: r.CreatedAt, Rates: make(map[string]decimal.Decimal, len(r.Rates))}
	for c, v := range r.Rates {
		dto.Rates[string(c)] = v
	}
	return dto
}

func (req TransactionRequest) toInput() ledger.CreateTransactionInput {
	return ledger.CreateTransactionInput{
		WalletID:      ledger.WalletID(req.WalletID),
		Type:          ledger.TransactionType(req.Type),
		Amount:        req.Amount,
		CategoryID:    ledger.CategoryID(req.CategoryID),
		SubcategoryID: ledger.SubcategoryID(req.SubcategoryID),
		Date:          req.Date,
		Entity:        req.Entity,
		Description:   req.Description,
	}
}
