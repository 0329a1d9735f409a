// Package ledgertest provides an in-memory ledger store for service and
// workflow tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rethread-erp/rethread-erp/internal/ledger"
)

// Store implements ledger.Repository and ledger.TxRepository over maps.
// WithTx snapshots state and restores it when the callback fails, so tests
// can assert all-or-nothing behaviour.
type Store struct {
	mu           sync.Mutex
	Accounts     map[int64]ledger.Account
	Transactions map[int64]ledger.Transaction
	Entries      map[int64][]ledger.Entry
	Archives     []ledger.ArchivedTransaction
	Mappings     map[string]ledger.AccountMapping

	nextAccountID int64
	nextTxnID     int64
	nextNumber    int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		Accounts:     make(map[int64]ledger.Account),
		Transactions: make(map[int64]ledger.Transaction),
		Entries:      make(map[int64][]ledger.Entry),
		Mappings:     make(map[string]ledger.AccountMapping),
	}
}

// SeedAccount registers an account and returns it.
func (s *Store) SeedAccount(code, name string, accountType ledger.AccountType, balance decimal.Decimal) ledger.Account {
	s.nextAccountID++
	account := ledger.Account{
		ID:       s.nextAccountID,
		Code:     code,
		Name:     name,
		Type:     accountType,
		Balance:  balance,
		IsActive: true,
	}
	s.Accounts[account.ID] = account
	return account
}

// SeedMapping registers an account mapping.
func (s *Store) SeedMapping(module, key string, accountID int64) {
	s.Mappings[module+"/"+key] = ledger.AccountMapping{Module: module, Key: key, AccountID: accountID}
}

// Get implements the mapping lookup used by posting workflows.
func (s *Store) Get(_ context.Context, module, key string) (ledger.AccountMapping, error) {
	mapping, ok := s.Mappings[module+"/"+key]
	if !ok {
		return ledger.AccountMapping{}, fmt.Errorf("%w: %s/%s", ledger.ErrMappingNotFound, module, key)
	}
	return mapping, nil
}

// Snapshot captures the mutable state so WithTx can roll back.
func (s *Store) Snapshot() func() {
	accounts := make(map[int64]ledger.Account, len(s.Accounts))
	for id, a := range s.Accounts {
		accounts[id] = a
	}
	transactions := make(map[int64]ledger.Transaction, len(s.Transactions))
	for id, t := range s.Transactions {
		transactions[id] = t
	}
	entries := make(map[int64][]ledger.Entry, len(s.Entries))
	for id, list := range s.Entries {
		entries[id] = append([]ledger.Entry(nil), list...)
	}
	archives := append([]ledger.ArchivedTransaction(nil), s.Archives...)
	nextAccountID, nextTxnID, nextNumber := s.nextAccountID, s.nextTxnID, s.nextNumber
	return func() {
		s.Accounts = accounts
		s.Transactions = transactions
		s.Entries = entries
		s.Archives = archives
		s.nextAccountID, s.nextTxnID, s.nextNumber = nextAccountID, nextTxnID, nextNumber
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	restore := s.Snapshot()
	if err := fn(ctx, s); err != nil {
		restore()
		return err
	}
	return nil
}

func (s *Store) GetAccount(_ context.Context, id int64) (ledger.Account, error) {
	account, ok := s.Accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return account, nil
}

func (s *Store) GetAccountByCode(_ context.Context, code string) (ledger.Account, error) {
	for _, account := range s.Accounts {
		if account.Code == code {
			return account, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	out := make([]ledger.Account, 0, len(s.Accounts))
	for _, account := range s.Accounts {
		out = append(out, account)
	}
	return out, nil
}

func (s *Store) CreateAccount(_ context.Context, account ledger.Account) (ledger.Account, error) {
	for _, existing := range s.Accounts {
		if existing.Code == account.Code {
			return ledger.Account{}, ledger.ErrDuplicateCode
		}
	}
	s.nextAccountID++
	account.ID = s.nextAccountID
	account.CreatedAt = time.Now()
	s.Accounts[account.ID] = account
	return account, nil
}

func (s *Store) SetAccountActive(_ context.Context, id int64, active bool) error {
	account, ok := s.Accounts[id]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	account.IsActive = active
	s.Accounts[id] = account
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (ledger.Transaction, error) {
	txn, ok := s.Transactions[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	txn.Entries = append([]ledger.Entry(nil), s.Entries[id]...)
	return txn, nil
}

func (s *Store) TrialBalanceRows(_ context.Context) ([]ledger.TrialBalanceRow, error) {
	out := make([]ledger.TrialBalanceRow, 0, len(s.Accounts))
	for _, account := range s.Accounts {
		row := ledger.TrialBalanceRow{
			AccountID: account.ID,
			Code:      account.Code,
			Name:      account.Name,
			Type:      account.Type,
			Balance:   account.Balance,
		}
		for _, entries := range s.Entries {
			for _, entry := range entries {
				if entry.AccountID == account.ID {
					row.TotalDebit = row.TotalDebit.Add(entry.Debit)
					row.TotalCredit = row.TotalCredit.Add(entry.Credit)
				}
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) InsertTransaction(_ context.Context, txn ledger.Transaction) (int64, int64, error) {
	s.nextTxnID++
	s.nextNumber++
	txn.ID = s.nextTxnID
	txn.Number = s.nextNumber
	txn.Entries = nil
	s.Transactions[txn.ID] = txn
	return txn.ID, txn.Number, nil
}

func (s *Store) InsertEntries(_ context.Context, txnID int64, entries []ledger.Entry) error {
	for _, entry := range entries {
		entry.TransactionID = txnID
		s.Entries[txnID] = append(s.Entries[txnID], entry)
	}
	return nil
}

func (s *Store) GetAccountForUpdate(ctx context.Context, id int64) (ledger.Account, error) {
	return s.GetAccount(ctx, id)
}

func (s *Store) UpdateAccountBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	account, ok := s.Accounts[id]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	account.Balance = balance
	s.Accounts[id] = account
	return nil
}

func (s *Store) GetTransactionWithEntries(_ context.Context, id int64) (ledger.Transaction, []ledger.Entry, error) {
	txn, ok := s.Transactions[id]
	if !ok {
		return ledger.Transaction{}, nil, ledger.ErrTransactionNotFound
	}
	return txn, append([]ledger.Entry(nil), s.Entries[id]...), nil
}

func (s *Store) UpdateTransactionStatus(_ context.Context, id int64, status ledger.TransactionStatus) error {
	txn, ok := s.Transactions[id]
	if !ok {
		return ledger.ErrTransactionNotFound
	}
	txn.Status = status
	s.Transactions[id] = txn
	return nil
}

func (s *Store) HasReversal(_ context.Context, id int64) (bool, error) {
	for _, txn := range s.Transactions {
		if txn.ReversalOf != nil && *txn.ReversalOf == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) InsertArchivedTransaction(_ context.Context, archive ledger.ArchivedTransaction) error {
	archive.ID = int64(len(s.Archives) + 1)
	s.Archives = append(s.Archives, archive)
	return nil
}
