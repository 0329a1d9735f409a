package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rethread-erp/rethread-erp/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts committed postings and reversals.
type MetricsPort interface {
	CountPosting(txnType string)
	CountReversal()
}

// Service is the ledger poster: it turns validated posting inputs into
// committed legs and balance updates, all-or-nothing.
type Service struct {
	repo    Repository
	audit   AuditPort
	metrics MetricsPort
	now     func() time.Time
}

// NewService builds the ledger service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches posting counters.
func (s *Service) WithMetrics(metrics MetricsPort) {
	s.metrics = metrics
}

// Post validates and commits a transaction in its own database transaction.
func (s *Service) Post(ctx context.Context, input PostingInput) (Transaction, error) {
	if err := input.Validate(); err != nil {
		return Transaction{}, err
	}
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txn, err = s.postTx(ctx, tx, input, nil)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, input.PostedBy, "ledger.post", txn.ID, map[string]any{
		"number":        txn.Number,
		"type":          string(txn.Type),
		"source_module": input.SourceModule,
	})
	return txn, nil
}

// PostTx commits a posting inside a caller-owned transaction. The purchase and
// invoice workflows use this so stock movements and ledger legs share one
// atomic boundary.
func (s *Service) PostTx(ctx context.Context, tx TxRepository, input PostingInput) (Transaction, error) {
	if err := input.Validate(); err != nil {
		return Transaction{}, err
	}
	return s.postTx(ctx, tx, input, nil)
}

func (s *Service) postTx(ctx context.Context, tx TxRepository, input PostingInput, reversalOf *int64) (Transaction, error) {
	// Lock referenced accounts in ascending id order so concurrent postings
	// touching overlapping accounts serialize instead of deadlocking.
	ids := accountIDs(input.Entries)
	accounts := make(map[int64]Account, len(ids))
	for _, id := range ids {
		account, err := tx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return Transaction{}, fmt.Errorf("account %d: %w", id, err)
		}
		if !account.IsActive {
			return Transaction{}, fmt.Errorf("%w: %s", ErrAccountInactive, account.Code)
		}
		accounts[id] = account
	}

	postedAt := input.Date
	if postedAt.IsZero() {
		postedAt = s.now().UTC()
	}
	header := Transaction{
		Type:         input.Type,
		SourceModule: input.SourceModule,
		SourceID:     input.SourceID,
		Memo:         input.Memo,
		PostedBy:     input.PostedBy,
		PostedAt:     postedAt,
		Status:       TxnStatusPosted,
		ReversalOf:   reversalOf,
	}
	id, number, err := tx.InsertTransaction(ctx, header)
	if err != nil {
		return Transaction{}, err
	}

	entries := make([]Entry, 0, len(input.Entries))
	deltas := make(map[int64]decimal.Decimal, len(ids))
	for _, in := range input.Entries {
		entry := Entry{
			TransactionID: id,
			AccountID:     in.AccountID,
			Currency:      in.Currency,
			Rate:          in.Rate,
			FCYAmount:     in.FCYAmount,
			Debit:         RoundMoney(in.Debit),
			Credit:        RoundMoney(in.Credit),
			Narration:     in.Narration,
		}
		entries = append(entries, entry)
		deltas[in.AccountID] = deltas[in.AccountID].Add(entry.Debit).Sub(entry.Credit)
	}
	if err := tx.InsertEntries(ctx, id, entries); err != nil {
		return Transaction{}, err
	}

	for _, accountID := range ids {
		account := accounts[accountID]
		delta := deltas[accountID]
		if !account.Type.DebitNormal() {
			delta = delta.Neg()
		}
		if err := tx.UpdateAccountBalance(ctx, accountID, account.Balance.Add(delta)); err != nil {
			return Transaction{}, err
		}
	}

	header.ID = id
	header.Number = number
	header.Entries = entries
	if s.metrics != nil {
		s.metrics.CountPosting(string(header.Type))
	}
	return header, nil
}

// Reverse archives a committed transaction and posts equal-and-opposite legs
// under a new transaction id, restoring every affected balance.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (Transaction, error) {
	var reversal Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, err = s.ReverseTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger.reverse", input.TransactionID, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
		"reason":          input.Reason,
	})
	return reversal, nil
}

// ReverseTx performs the reversal inside a caller-owned transaction.
func (s *Service) ReverseTx(ctx context.Context, tx TxRepository, input ReverseInput) (Transaction, error) {
	if input.TransactionID == 0 {
		return Transaction{}, errors.New("ledger: transaction id required")
	}
	original, entries, err := tx.GetTransactionWithEntries(ctx, input.TransactionID)
	if err != nil {
		return Transaction{}, err
	}
	if original.Status == TxnStatusReversed {
		return Transaction{}, fmt.Errorf("%w: transaction %d", ErrAlreadyReversed, original.ID)
	}
	reversed, err := tx.HasReversal(ctx, original.ID)
	if err != nil {
		return Transaction{}, err
	}
	if reversed {
		return Transaction{}, fmt.Errorf("%w: transaction %d", ErrAlreadyReversed, original.ID)
	}

	archive := ArchivedTransaction{
		TransactionID: original.ID,
		Type:          original.Type,
		Memo:          original.Memo,
		Reason:        input.Reason,
		ActorID:       input.ActorID,
		ArchivedAt:    s.now().UTC(),
		Entries:       entries,
	}
	if err := tx.InsertArchivedTransaction(ctx, archive); err != nil {
		return Transaction{}, err
	}

	posting := PostingInput{
		Type:         original.Type,
		SourceModule: original.SourceModule + ":REVERSAL",
		SourceID:     uuid.New(),
		Memo:         defaultReversalMemo(input.Reason, original.Number),
		PostedBy:     input.ActorID,
		Entries:      swapEntries(entries),
	}
	if err := posting.Validate(); err != nil {
		return Transaction{}, err
	}
	reversal, err := s.postTx(ctx, tx, posting, &original.ID)
	if err != nil {
		return Transaction{}, err
	}
	if err := tx.UpdateTransactionStatus(ctx, original.ID, TxnStatusReversed); err != nil {
		return Transaction{}, err
	}
	if s.metrics != nil {
		s.metrics.CountReversal()
	}
	return reversal, nil
}

// PostOpeningBalance seeds account balances, offsetting any imbalance against
// the given equity account.
func (s *Service) PostOpeningBalance(ctx context.Context, input OpeningBalanceInput) (Transaction, error) {
	if len(input.Lines) == 0 {
		return Transaction{}, errors.New("ledger: opening balance requires at least one line")
	}
	if input.OffsetAccountID == 0 {
		return Transaction{}, errors.New("ledger: offset account required")
	}
	memo := input.Memo
	if memo == "" {
		memo = "Opening balances"
	}
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Account sides are resolved under the same row locks the posting
		// holds, so a concurrent type change or deactivation cannot slip in
		// between resolution and posting.
		lockIDs := make([]int64, 0, len(input.Lines)+1)
		for _, line := range input.Lines {
			lockIDs = append(lockIDs, line.AccountID)
		}
		lockIDs = append(lockIDs, input.OffsetAccountID)
		accounts := make(map[int64]Account, len(lockIDs))
		for _, id := range sortedUniqueIDs(lockIDs) {
			account, err := tx.GetAccountForUpdate(ctx, id)
			if err != nil {
				return fmt.Errorf("account %d: %w", id, err)
			}
			accounts[id] = account
		}

		entries := make([]EntryInput, 0, len(input.Lines)+1)
		var debit, credit decimal.Decimal
		for _, line := range input.Lines {
			amount := RoundMoney(line.Amount)
			if amount.Sign() == 0 {
				continue
			}
			entry := EntryInput{AccountID: line.AccountID, Narration: "Opening balance"}
			onDebit := accounts[line.AccountID].Type.DebitNormal()
			if amount.Sign() < 0 {
				onDebit = !onDebit
				amount = amount.Neg()
			}
			if onDebit {
				entry.Debit = amount
				debit = debit.Add(amount)
			} else {
				entry.Credit = amount
				credit = credit.Add(amount)
			}
			entries = append(entries, entry)
		}
		imbalance := debit.Sub(credit)
		offset := EntryInput{AccountID: input.OffsetAccountID, Narration: "Opening balance offset"}
		switch {
		case imbalance.Sign() > 0:
			offset.Credit = imbalance
		case imbalance.Sign() < 0:
			offset.Debit = imbalance.Neg()
		}
		if imbalance.Sign() != 0 {
			entries = append(entries, offset)
		}
		posting := PostingInput{
			Type:         TxnTypeOpeningBalance,
			SourceModule: "LEDGER.OPENING",
			SourceID:     uuid.New(),
			Memo:         memo,
			PostedBy:     input.ActorID,
			Date:         input.Date,
			Entries:      entries,
		}
		if err := posting.Validate(); err != nil {
			return err
		}
		var err error
		txn, err = s.postTx(ctx, tx, posting, nil)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger.post", txn.ID, map[string]any{
		"number":        txn.Number,
		"type":          string(txn.Type),
		"source_module": "LEDGER.OPENING",
	})
	return txn, nil
}

// CreateAccount adds a chart-of-accounts entry.
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error) {
	if !input.Type.Valid() {
		return Account{}, fmt.Errorf("ledger: invalid account type %q", input.Type)
	}
	if input.Code == "" || input.Name == "" {
		return Account{}, errors.New("ledger: account code and name required")
	}
	return s.repo.CreateAccount(ctx, Account{Code: input.Code, Name: input.Name, Type: input.Type, IsActive: true})
}

// DeactivateAccount retires an account from posting. Balances and history stay.
func (s *Service) DeactivateAccount(ctx context.Context, accountID int64, actorID int64) error {
	if err := s.repo.SetAccountActive(ctx, accountID, false); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ledger.account.deactivate", accountID, nil)
	return nil
}

// GetAccount fetches one account.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// ListAccounts returns the chart of accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// GetTransaction fetches a transaction with its legs.
func (s *Service) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "ledger_transaction",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}

func accountIDs(entries []EntryInput) []int64 {
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.AccountID)
	}
	return sortedUniqueIDs(ids)
}

func sortedUniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func swapEntries(entries []Entry) []EntryInput {
	out := make([]EntryInput, 0, len(entries))
	for _, entry := range entries {
		out = append(out, EntryInput{
			AccountID: entry.AccountID,
			Debit:     entry.Credit,
			Credit:    entry.Debit,
			Currency:  entry.Currency,
			Rate:      entry.Rate,
			FCYAmount: entry.FCYAmount,
			Narration: entry.Narration,
		})
	}
	return out
}

func defaultReversalMemo(reason string, number int64) string {
	if reason != "" {
		return fmt.Sprintf("Reversal of TXN %d: %s", number, reason)
	}
	return fmt.Sprintf("Reversal of TXN %d", number)
}
