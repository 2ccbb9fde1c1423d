// Package store provides an in-memory ledger.Store.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/wallet-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every table in maps guarded by one RWMutex. Units of work
// hold the write lock for their whole duration, which serializes them.
type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	wallets       map[ledger.WalletID]ledger.Wallet
	transactions  map[ledger.TransactionID]ledger.Transaction
	transfers     map[ledger.TransferID]ledger.Transfer
	categories    map[ledger.CategoryID]ledger.Category // without subcategories
	subcategories map[ledger.SubcategoryID]ledger.Subcategory
	rates         []ledger.ExchangeRate
	pockets       map[ledger.PocketID]ledger.Pocket
	members       map[ledger.HouseholdID]map[ledger.UserID]bool
}

func newState() *state {
	return &state{
		wallets:       make(map[ledger.WalletID]ledger.Wallet),
		transactions:  make(map[ledger.TransactionID]ledger.Transaction),
		transfers:     make(map[ledger.TransferID]ledger.Transfer),
		categories:    make(map[ledger.CategoryID]ledger.Category),
		subcategories: make(map[ledger.SubcategoryID]ledger.Subcategory),
		pockets:       make(map[ledger.PocketID]ledger.Pocket),
		members:       make(map[ledger.HouseholdID]map[ledger.UserID]bool),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

var _ ledger.Store = (*Memory)(nil)

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := m.st.clone()
	if err := fn(&txView{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.transfers {
		c.transfers[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.subcategories {
		c.subcategories[k] = v
	}
	for k, v := range s.pockets {
		c.pockets[k] = v
	}
	for h, users := range s.members {
		c.members[h] = make(map[ledger.UserID]bool, len(users))
		for u := range users {
			c.members[h][u] = true
		}
	}
	c.rates = append([]ledger.ExchangeRate(nil), s.rates...)
	return c
}

// txView is the ledger.Tx handed to WithTx callbacks. The parent's write
// lock is held, so it touches state directly.
type txView struct {
	st *state
}

var _ ledger.Tx = (*txView)(nil)

// =============================================================================
// STANDALONE WRITES
// =============================================================================

func (m *Memory) InsertExchangeRate(_ context.Context, r ledger.ExchangeRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rates := make(map[ledger.Currency]decimal.Decimal, len(r.Rates))
	for c, v := range r.Rates {
		rates[c] = v
	}
	r.Rates = rates
	m.st.rates = append(m.st.rates, r)
	return nil
}

func (m *Memory) SaveCategory(_ context.Context, c ledger.Category) (ledger.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.saveCategory(c), nil
}

// AddHouseholdMember grants user visibility of the household's wallets.
func (m *Memory) AddHouseholdMember(_ context.Context, h ledger.HouseholdID, u ledger.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.members[h] == nil {
		m.st.members[h] = make(map[ledger.UserID]bool)
	}
	m.st.members[h][u] = true
	return nil
}

func (s *state) saveCategory(c ledger.Category) ledger.Category {
	var stored *ledger.Category
	for _, existing := range s.categories {
		if existing.Type == c.Type && existing.Name == c.Name {
			e := existing
			stored = &e
			break
		}
	}
	if stored == nil {
		id := c.ID
		if id == "" {
			id = ledger.CategoryID(uuid.NewString())
		}
		stored = &ledger.Category{ID: id, Type: c.Type, Name: c.Name}
		s.categories[id] = *stored
	}

	for _, sub := range c.Subcategories {
		found := false
		for _, existing := range s.subcategories {
			if existing.CategoryID == stored.ID && existing.Name == sub.Name {
				found = true
				break
			}
		}
		if found {
			continue
		}
		id := sub.ID
		if id == "" {
			id = ledger.SubcategoryID(uuid.NewString())
		}
		s.subcategories[id] = ledger.Subcategory{ID: id, CategoryID: stored.ID, Name: sub.Name}
	}
	return s.category(stored.ID)
}

// =============================================================================
// READER - locked wrappers
// =============================================================================

func (m *Memory) GetWallet(_ context.Context, id ledger.WalletID) (ledger.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getWallet(id)
}

func (m *Memory) ListWallets(_ context.Context, user ledger.UserID) ([]ledger.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listWallets(user), nil
}

func (m *Memory) ListAllWallets(_ context.Context) ([]ledger.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listAllWallets(), nil
}

func (m *Memory) GetTransaction(_ context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getTransaction(id)
}

func (m *Memory) ListTransactions(_ context.Context, w ledger.WalletID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listTransactions(w), nil
}

func (m *Memory) SumTransactions(_ context.Context, w ledger.WalletID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.sumTransactions(w), nil
}

func (m *Memory) GetTransfer(_ context.Context, id ledger.TransferID) (ledger.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getTransfer(id)
}

func (m *Memory) ListTransfers(_ context.Context) ([]ledger.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listTransfers(), nil
}

func (m *Memory) TransferLegs(_ context.Context, id ledger.TransferID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.transferLegs(id), nil
}

func (m *Memory) GetSubcategory(_ context.Context, id ledger.SubcategoryID) (ledger.Subcategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getSubcategory(id)
}

func (m *Memory) FindSubcategory(_ context.Context, typ ledger.TransactionType, name string) (ledger.Subcategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.findSubcategory(typ, name)
}

func (m *Memory) GetCategory(_ context.Context, id ledger.CategoryID) (ledger.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getCategory(id)
}

func (m *Memory) ListCategories(_ context.Context) ([]ledger.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listCategories(), nil
}

func (m *Memory) LatestExchangeRate(_ context.Context, at time.Time) (ledger.ExchangeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.latestExchangeRate(at)
}

func (m *Memory) ListPockets(_ context.Context, w ledger.WalletID) ([]ledger.Pocket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listPockets(w), nil
}

func (m *Memory) IsHouseholdMember(_ context.Context, h ledger.HouseholdID, u ledger.UserID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.members[h][u], nil
}

// =============================================================================
// READER - tx view (lock already held)
// =============================================================================

func (tv *txView) GetWallet(_ context.Context, id ledger.WalletID) (ledger.Wallet, error) {
	return tv.st.getWallet(id)
}

func (tv *txView) ListWallets(_ context.Context, user ledger.UserID) ([]ledger.Wallet, error) {
	return tv.st.listWallets(user), nil
}

func (tv *txView) ListAllWallets(_ context.Context) ([]ledger.Wallet, error) {
	return tv.st.listAllWallets(), nil
}

func (tv *txView) GetTransaction(_ context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	return tv.st.getTransaction(id)
}

func (tv *txView) ListTransactions(_ context.Context, w ledger.WalletID) ([]ledger.Transaction, error) {
	return tv.st.listTransactions(w), nil
}

func (tv *txView) SumTransactions(_ context.Context, w ledger.WalletID) (decimal.Decimal, error) {
	return tv.st.sumTransactions(w), nil
}

func (tv *txView) GetTransfer(_ context.Context, id ledger.TransferID) (ledger.Transfer, error) {
	return tv.st.getTransfer(id)
}

func (tv *txView) ListTransfers(_ context.Context) ([]ledger.Transfer, error) {
	return tv.st.listTransfers(), nil
}

func (tv *txView) TransferLegs(_ context.Context, id ledger.TransferID) ([]ledger.Transaction, error) {
	return tv.st.transferLegs(id), nil
}

func (tv *txView) GetSubcategory(_ context.Context, id ledger.SubcategoryID) (ledger.Subcategory, error) {
	return tv.st.getSubcategory(id)
}

func (tv *txView) FindSubcategory(_ context.Context, typ ledger.TransactionType, name string) (ledger.Subcategory, error) {
	return tv.st.findSubcategory(typ, name)
}

func (tv *txView) GetCategory(_ context.Context, id ledger.CategoryID) (ledger.Category, error) {
	return tv.st.getCategory(id)
}

func (tv *txView) ListCategories(_ context.Context) ([]ledger.Category, error) {
	return tv.st.listCategories(), nil
}

func (tv *txView) LatestExchangeRate(_ context.Context, at time.Time) (ledger.ExchangeRate, error) {
	return tv.st.latestExchangeRate(at)
}

func (tv *txView) ListPockets(_ context.Context, w ledger.WalletID) ([]ledger.Pocket, error) {
	return tv.st.listPockets(w), nil
}

func (tv *txView) IsHouseholdMember(_ context.Context, h ledger.HouseholdID, u ledger.UserID) (bool, error) {
	return tv.st.members[h][u], nil
}

// =============================================================================
// WRITES - tx view
// =============================================================================

func (tv *txView) LockWallet(_ context.Context, id ledger.WalletID) (ledger.Wallet, error) {
	return tv.st.getWallet(id)
}

func (tv *txView) InsertWallet(_ context.Context, w ledger.Wallet) error {
	if _, ok := tv.st.wallets[w.ID]; ok {
		return ledger.ErrConflict
	}
	tv.st.wallets[w.ID] = w
	return nil
}

func (tv *txView) UpdateWallet(_ context.Context, w ledger.Wallet) error {
	cur, err := tv.st.getWallet(w.ID)
	if err != nil {
		return err
	}
	cur.Name, cur.Platform, cur.Currency, cur.Balance = w.Name, w.Platform, w.Currency, w.Balance
	tv.st.wallets[w.ID] = cur
	return nil
}

func (tv *txView) SetWalletBalance(_ context.Context, id ledger.WalletID, balance decimal.Decimal) error {
	cur, err := tv.st.getWallet(id)
	if err != nil {
		return err
	}
	cur.Balance = balance
	tv.st.wallets[id] = cur
	return nil
}

func (tv *txView) DeleteWallet(_ context.Context, id ledger.WalletID) error {
	if _, err := tv.st.getWallet(id); err != nil {
		return err
	}
	for tid, t := range tv.st.transactions {
		if t.WalletID == id {
			delete(tv.st.transactions, tid)
		}
	}
	for pid, p := range tv.st.pockets {
		if p.WalletID == id {
			delete(tv.st.pockets, pid)
		}
	}
	delete(tv.st.wallets, id)
	return nil
}

func (tv *txView) CountTransferLegs(_ context.Context, w ledger.WalletID) (int, error) {
	n := 0
	for _, t := range tv.st.transactions {
		if t.WalletID == w && t.TransferID != nil {
			n++
		}
	}
	return n, nil
}

func (tv *txView) InsertTransaction(_ context.Context, t ledger.Transaction) error {
	if _, ok := tv.st.transactions[t.ID]; ok {
		return ledger.ErrConflict
	}
	if _, ok := tv.st.wallets[t.WalletID]; !ok {
		return &ledger.NotFoundError{Resource: "wallet", ID: string(t.WalletID)}
	}
	if t.TransferID != nil {
		if _, ok := tv.st.transfers[*t.TransferID]; !ok {
			return &ledger.NotFoundError{Resource: "transfer", ID: string(*t.TransferID)}
		}
	}
	tv.st.transactions[t.ID] = t
	return nil
}

func (tv *txView) UpdateTransaction(_ context.Context, t ledger.Transaction) error {
	if _, err := tv.st.getTransaction(t.ID); err != nil {
		return err
	}
	tv.st.transactions[t.ID] = t
	return nil
}

func (tv *txView) DeleteTransaction(_ context.Context, id ledger.TransactionID) error {
	if _, err := tv.st.getTransaction(id); err != nil {
		return err
	}
	delete(tv.st.transactions, id)
	return nil
}

func (tv *txView) InsertTransfer(_ context.Context, t ledger.Transfer) error {
	if _, ok := tv.st.transfers[t.ID]; ok {
		return ledger.ErrConflict
	}
	tv.st.transfers[t.ID] = t
	return nil
}

func (tv *txView) InsertPocket(_ context.Context, p ledger.Pocket) error {
	if _, ok := tv.st.wallets[p.WalletID]; !ok {
		return &ledger.NotFoundError{Resource: "wallet", ID: string(p.WalletID)}
	}
	tv.st.pockets[p.ID] = p
	return nil
}

// =============================================================================
// STATE QUERIES
// =============================================================================

func (s *state) getWallet(id ledger.WalletID) (ledger.Wallet, error) {
	w, ok := s.wallets[id]
	if !ok {
		return ledger.Wallet{}, &ledger.NotFoundError{Resource: "wallet", ID: string(id)}
	}
	return w, nil
}

func (s *state) listWallets(user ledger.UserID) []ledger.Wallet {
	var out []ledger.Wallet
	for _, w := range s.wallets {
		if w.OwnerID == user || (w.HouseholdID != nil && s.members[*w.HouseholdID][user]) {
			out = append(out, w)
		}
	}
	sortWallets(out)
	return out
}

func (s *state) listAllWallets() []ledger.Wallet {
	out := make([]ledger.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w)
	}
	sortWallets(out)
	return out
}

func sortWallets(ws []ledger.Wallet) {
	sort.Slice(ws, func(i, j int) bool {
		if !ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			return ws[i].CreatedAt.Before(ws[j].CreatedAt)
		}
		return ws[i].ID < ws[j].ID
	})
}

func (s *state) getTransaction(id ledger.TransactionID) (ledger.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok {
		return ledger.Transaction{}, &ledger.NotFoundError{Resource: "transaction", ID: string(id)}
	}
	return t, nil
}

func (s *state) listTransactions(w ledger.WalletID) []ledger.Transaction {
	var out []ledger.Transaction
	for _, t := range s.transactions {
		if t.WalletID == w {
			out = append(out, t)
		}
	}
	sortTransactions(out)
	return out
}

// newest date first, then newest id first
func sortTransactions(ts []ledger.Transaction) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].Date.Equal(ts[j].Date) {
			return ts[i].Date.After(ts[j].Date)
		}
		return ts[i].ID > ts[j].ID
	})
}

func (s *state) sumTransactions(w ledger.WalletID) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range s.transactions {
		if t.WalletID == w {
			sum = sum.Add(t.Amount)
		}
	}
	return sum
}

func (s *state) getTransfer(id ledger.TransferID) (ledger.Transfer, error) {
	t, ok := s.transfers[id]
	if !ok {
		return ledger.Transfer{}, &ledger.NotFoundError{Resource: "transfer", ID: string(id)}
	}
	return t, nil
}

func (s *state) listTransfers() []ledger.Transfer {
	out := make([]ledger.Transfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) transferLegs(id ledger.TransferID) []ledger.Transaction {
	var out []ledger.Transaction
	for _, t := range s.transactions {
		if t.TransferID != nil && *t.TransferID == id {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) getSubcategory(id ledger.SubcategoryID) (ledger.Subcategory, error) {
	sub, ok := s.subcategories[id]
	if !ok {
		return ledger.Subcategory{}, &ledger.NotFoundError{Resource: "subcategory", ID: string(id)}
	}
	return sub, nil
}

func (s *state) findSubcategory(typ ledger.TransactionType, name string) (ledger.Subcategory, error) {
	for _, sub := range s.subcategories {
		if sub.Name != name {
			continue
		}
		if c, ok := s.categories[sub.CategoryID]; ok && c.Type == typ {
			return sub, nil
		}
	}
	return ledger.Subcategory{}, &ledger.NotFoundError{Resource: "subcategory", ID: string(typ) + "/" + name}
}

func (s *state) getCategory(id ledger.CategoryID) (ledger.Category, error) {
	if _, ok := s.categories[id]; !ok {
		return ledger.Category{}, &ledger.NotFoundError{Resource: "category", ID: string(id)}
	}
	return s.category(id), nil
}

// category assembles a category with its subcategories sorted by name.
func (s *state) category(id ledger.CategoryID) ledger.Category {
	c := s.categories[id]
	c.Subcategories = nil
	for _, sub := range s.subcategories {
		if sub.CategoryID == id {
			c.Subcategories = append(c.Subcategories, sub)
		}
	}
	sort.Slice(c.Subcategories, func(i, j int) bool { return c.Subcategories[i].Name < c.Subcategories[j].Name })
	return c
}

func (s *state) listCategories() []ledger.Category {
	out := make([]ledger.Category, 0, len(s.categories))
	for id := range s.categories {
		out = append(out, s.category(id))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *state) latestExchangeRate(at time.Time) (ledger.ExchangeRate, error) {
	var (
		best  ledger.ExchangeRate
		found bool
	)
	for _, r := range s.rates {
		if r.CreatedAt.After(at) {
			continue
		}
		if !found || r.CreatedAt.After(best.CreatedAt) || r.CreatedAt.Equal(best.CreatedAt) {
			best, found = r, true
		}
	}
	if !found {
		return ledger.ExchangeRate{}, &ledger.NotFoundError{Resource: "exchange rate", ID: at.Format(time.RFC3339)}
	}
	return best, nil
}

func (s *state) listPockets(w ledger.WalletID) []ledger.Pocket {
	var out []ledger.Pocket
	for _, p := range s.pockets {
		if p.WalletID == w {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
