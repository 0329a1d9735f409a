package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rethread-erp/rethread-erp/internal/fx"
	"github.com/rethread-erp/rethread-erp/internal/inventory"
	"github.com/rethread-erp/rethread-erp/internal/ledger"
	"github.com/rethread-erp/rethread-erp/internal/shared"
)

// Mapping keys resolved through the account mapping table.
const (
	mappingModule   = "PROCUREMENT"
	keyPayable      = "procurement.payable"
	keyCostsPayable = "procurement.costs.payable"
	stockModule     = "INVENTORY"
	keyStock        = "inventory.stock"
	treasuryModule  = "TREASURY"
	keyCash         = "treasury.cash"
)

// Tx groups purchase persistence with stock and ledger operations so posting
// runs inside one transaction boundary.
type Tx interface {
	inventory.TxRepository
	ledger.TxRepository
	GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error)
	MarkPurchasePosted(ctx context.Context, id int64, txnID int64, postedAt time.Time, lines []PurchaseLine) error
}

// RepositoryPort abstracts purchase persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	CreatePurchase(ctx context.Context, purchase Purchase) (Purchase, error)
	GetPurchase(ctx context.Context, id int64) (Purchase, error)
	ListPurchases(ctx context.Context) ([]Purchase, error)
}

// StockPort is the slice of the inventory service posting needs.
type StockPort interface {
	LockItemsTx(ctx context.Context, tx inventory.TxRepository, itemIDs []int64) error
	ReceiveStockTx(ctx context.Context, tx inventory.TxRepository, input inventory.ReceiveInput) (inventory.Item, error)
}

// LedgerPort is the slice of the ledger service posting needs.
type LedgerPort interface {
	PostTx(ctx context.Context, tx ledger.TxRepository, input ledger.PostingInput) (ledger.Transaction, error)
	Post(ctx context.Context, input ledger.PostingInput) (ledger.Transaction, error)
}

// MappingPort resolves account mappings.
type MappingPort interface {
	Get(ctx context.Context, module, key string) (ledger.AccountMapping, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the purchase lifecycle: capture as draft, then post with
// landed cost allocation, stock receipt and ledger legs in one transaction.
type Service struct {
	repo     RepositoryPort
	stock    StockPort
	ledger   LedgerPort
	mappings MappingPort
	audit    AuditPort
	now      func() time.Time
}

// NewService builds the procurement service.
func NewService(repo RepositoryPort, stock StockPort, ledgerPort LedgerPort, mappings MappingPort, audit AuditPort) *Service {
	return &Service{repo: repo, stock: stock, ledger: ledgerPort, mappings: mappings, audit: audit, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PurchaseLineInput is one original-type lot on a new purchase.
type PurchaseLineInput struct {
	ItemID       int64           `json:"item_id" validate:"required"`
	OriginalType string          `json:"original_type" validate:"required,max=100"`
	WeightKg     decimal.Decimal `json:"weight_kg"`
	Qty          decimal.Decimal `json:"qty"`
	CostPerKg    decimal.Decimal `json:"cost_per_kg"`
}

// AdditionalCostInput is one freight/clearing/commission charge.
type AdditionalCostInput struct {
	Provider  string          `json:"provider" validate:"max=200"`
	Kind      string          `json:"kind" validate:"required,max=50"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"required,len=3"`
	Rate      decimal.Decimal `json:"rate"`
	LineIndex *int            `json:"line_index,omitempty"`
}

// CreatePurchaseInput captures a draft purchase.
type CreatePurchaseInput struct {
	Supplier        string                `json:"supplier" validate:"required,max=200"`
	Currency        string                `json:"currency" validate:"required,len=3"`
	Rate            decimal.Decimal       `json:"rate"`
	Memo            string                `json:"memo" validate:"max=500"`
	Lines           []PurchaseLineInput   `json:"lines" validate:"required,min=1,dive"`
	AdditionalCosts []AdditionalCostInput `json:"additional_costs" validate:"dive"`
}

// CreatePurchase stores a draft. Rates and weights are checked up front so a
// draft can always be posted without re-keying.
func (s *Service) CreatePurchase(ctx context.Context, input CreatePurchaseInput, actorID int64) (Purchase, error) {
	if len(input.Lines) == 0 {
		return Purchase{}, ErrNoLines
	}
	if input.Rate.Sign() <= 0 {
		return Purchase{}, fmt.Errorf("%w: purchase rate %s", fx.ErrInvalidRate, input.Rate)
	}
	purchase := Purchase{
		Supplier:  input.Supplier,
		Currency:  input.Currency,
		Rate:      input.Rate,
		Status:    PurchaseStatusDraft,
		Memo:      input.Memo,
		CreatedBy: actorID,
	}
	for i, line := range input.Lines {
		if line.WeightKg.Sign() <= 0 {
			return Purchase{}, fmt.Errorf("%w: line %d", ErrZeroWeight, i)
		}
		if line.Qty.Sign() <= 0 {
			return Purchase{}, fmt.Errorf("%w: line %d", inventory.ErrInvalidQuantity, i)
		}
		if line.CostPerKg.Sign() < 0 {
			return Purchase{}, fmt.Errorf("procurement: line %d negative cost per kg", i)
		}
		purchase.Lines = append(purchase.Lines, PurchaseLine{
			ItemID:       line.ItemID,
			OriginalType: line.OriginalType,
			WeightKg:     line.WeightKg,
			Qty:          line.Qty,
			CostPerKg:    line.CostPerKg,
		})
	}
	for i, cost := range input.AdditionalCosts {
		if cost.Rate.Sign() <= 0 {
			return Purchase{}, fmt.Errorf("%w: additional cost %d rate %s", fx.ErrInvalidRate, i, cost.Rate)
		}
		if cost.Amount.Sign() < 0 {
			return Purchase{}, fmt.Errorf("procurement: additional cost %d negative amount", i)
		}
		if cost.LineIndex != nil && (*cost.LineIndex < 0 || *cost.LineIndex >= len(input.Lines)) {
			return Purchase{}, fmt.Errorf("%w: index %d", ErrBadLineTag, *cost.LineIndex)
		}
		purchase.AdditionalCosts = append(purchase.AdditionalCosts, AdditionalCost{
			Provider:  cost.Provider,
			Kind:      cost.Kind,
			Amount:    cost.Amount,
			Currency:  cost.Currency,
			Rate:      cost.Rate,
			LineIndex: cost.LineIndex,
		})
	}
	created, err := s.repo.CreatePurchase(ctx, purchase)
	if err != nil {
		return Purchase{}, err
	}
	s.recordAudit(ctx, actorID, "procurement.create", created.ID, map[string]any{"number": created.Number})
	return created, nil
}

// GetPurchase fetches one purchase with lines and costs.
func (s *Service) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	return s.repo.GetPurchase(ctx, id)
}

// ListPurchases returns all purchases.
func (s *Service) ListPurchases(ctx context.Context) ([]Purchase, error) {
	return s.repo.ListPurchases(ctx)
}

// PostPurchase allocates landed cost, receives stock per line at the landed
// unit cost and posts Inventory vs Accounts Payable legs, atomically. A draft
// that fails posting stays a draft with no stock or ledger effects.
func (s *Service) PostPurchase(ctx context.Context, purchaseID, actorID int64) (Purchase, ledger.Transaction, error) {
	stockMapping, err := s.mappings.Get(ctx, stockModule, keyStock)
	if err != nil {
		return Purchase{}, ledger.Transaction{}, err
	}
	payableMapping, err := s.mappings.Get(ctx, mappingModule, keyPayable)
	if err != nil {
		return Purchase{}, ledger.Transaction{}, err
	}
	costsMapping, err := s.mappings.Get(ctx, mappingModule, keyCostsPayable)
	if err != nil {
		return Purchase{}, ledger.Transaction{}, err
	}

	var purchase Purchase
	var txn ledger.Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		purchase, err = tx.GetPurchaseForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if purchase.Status == PurchaseStatusPosted {
			return fmt.Errorf("%w: purchase %s", ErrAlreadyPosted, purchase.Number)
		}
		alloc, err := AllocateLandedCost(purchase.Rate, purchase.Lines, purchase.AdditionalCosts)
		if err != nil {
			return err
		}

		// Ascending item lock order keeps concurrent postings that share
		// items from deadlocking.
		itemIDs := make([]int64, 0, len(purchase.Lines))
		for _, line := range purchase.Lines {
			itemIDs = append(itemIDs, line.ItemID)
		}
		if err := s.stock.LockItemsTx(ctx, tx, itemIDs); err != nil {
			return err
		}

		postedAt := s.now().UTC()
		var fcyMaterial decimal.Decimal
		for i := range purchase.Lines {
			line := &purchase.Lines[i]
			la := alloc.Lines[i]
			line.MaterialBase = la.MaterialBase
			line.LandedBase = la.LandedBase
			line.LandedUnitCost = la.LandedUnitCost
			fcyMaterial = fcyMaterial.Add(line.WeightKg.Mul(line.CostPerKg))
			if _, err := s.stock.ReceiveStockTx(ctx, tx, inventory.ReceiveInput{
				ItemID:    line.ItemID,
				Qty:       line.Qty,
				UnitCost:  la.LandedUnitCost,
				RefModule: "PROCUREMENT",
				RefID:     purchase.Number,
				Note:      line.OriginalType,
				ActorID:   actorID,
				At:        postedAt,
			}); err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}
		}

		// Credits are rounded individually; the inventory debit is their sum
		// so the posting balances exactly.
		entries := make([]ledger.EntryInput, 0, len(alloc.Costs)+2)
		var totalCredit decimal.Decimal
		apCredit := ledger.RoundMoney(alloc.MaterialBase)
		if apCredit.Sign() != 0 {
			entries = append(entries, ledger.EntryInput{
				AccountID: payableMapping.AccountID,
				Credit:    apCredit,
				Currency:  purchase.Currency,
				Rate:      purchase.Rate,
				FCYAmount: fcyMaterial,
				Narration: fmt.Sprintf("Supplier %s / %s", purchase.Supplier, purchase.Number),
			})
			totalCredit = totalCredit.Add(apCredit)
		}
		for _, cost := range alloc.Costs {
			credit := ledger.RoundMoney(cost.Base)
			if credit.Sign() == 0 {
				continue
			}
			entries = append(entries, ledger.EntryInput{
				AccountID: costsMapping.AccountID,
				Credit:    credit,
				Currency:  cost.Cost.Currency,
				Rate:      cost.Cost.Rate,
				FCYAmount: cost.Cost.Amount,
				Narration: fmt.Sprintf("%s / %s", cost.Cost.Kind, purchase.Number),
			})
			totalCredit = totalCredit.Add(credit)
		}
		entries = append([]ledger.EntryInput{{
			AccountID: stockMapping.AccountID,
			Debit:     totalCredit,
			Narration: fmt.Sprintf("Landed stock / %s", purchase.Number),
		}}, entries...)

		txn, err = s.ledger.PostTx(ctx, tx, ledger.PostingInput{
			Type:         ledger.TxnTypePurchase,
			SourceModule: "PROCUREMENT.PURCHASE",
			SourceID:     uuid.New(),
			Memo:         fmt.Sprintf("Purchase %s (%s)", purchase.Number, purchase.Supplier),
			PostedBy:     actorID,
			Date:         postedAt,
			Entries:      entries,
		})
		if err != nil {
			return err
		}
		purchase.Status = PurchaseStatusPosted
		purchase.LedgerTxnID = &txn.ID
		purchase.PostedAt = &postedAt
		return tx.MarkPurchasePosted(ctx, purchase.ID, txn.ID, postedAt, purchase.Lines)
	})
	if err != nil {
		return Purchase{}, ledger.Transaction{}, err
	}
	s.recordAudit(ctx, actorID, "procurement.post", purchase.ID, map[string]any{
		"number": purchase.Number,
		"txn_id": txn.ID,
	})
	return purchase, txn, nil
}

// PaymentInput describes a supplier payment.
type PaymentInput struct {
	Supplier string          `json:"supplier" validate:"required,max=200"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,len=3"`
	Rate     decimal.Decimal `json:"rate"`
	Memo     string          `json:"memo" validate:"max=500"`
	ActorID  int64           `json:"-"`
}

// PaySupplier posts a PAYMENT transaction: debit Accounts Payable, credit
// Cash/Bank, converted at the given rate.
func (s *Service) PaySupplier(ctx context.Context, input PaymentInput) (ledger.Transaction, error) {
	if input.Amount.Sign() <= 0 {
		return ledger.Transaction{}, errors.New("procurement: payment amount must be positive")
	}
	base, err := fx.ToBase(input.Amount, input.Rate)
	if err != nil {
		return ledger.Transaction{}, err
	}
	payableMapping, err := s.mappings.Get(ctx, mappingModule, keyPayable)
	if err != nil {
		return ledger.Transaction{}, err
	}
	cashMapping, err := s.mappings.Get(ctx, treasuryModule, keyCash)
	if err != nil {
		return ledger.Transaction{}, err
	}
	amount := ledger.RoundMoney(base)
	narration := fmt.Sprintf("Payment to %s", input.Supplier)
	txn, err := s.ledger.Post(ctx, ledger.PostingInput{
		Type:         ledger.TxnTypePayment,
		SourceModule: "PROCUREMENT.PAYMENT",
		SourceID:     uuid.New(),
		Memo:         input.Memo,
		PostedBy:     input.ActorID,
		Entries: []ledger.EntryInput{
			{AccountID: payableMapping.AccountID, Debit: amount, Currency: input.Currency, Rate: input.Rate, FCYAmount: input.Amount, Narration: narration},
			{AccountID: cashMapping.AccountID, Credit: amount, Currency: input.Currency, Rate: input.Rate, FCYAmount: input.Amount, Narration: narration},
		},
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.recordAudit(ctx, input.ActorID, "procurement.pay", txn.ID, map[string]any{"supplier": input.Supplier})
	return txn, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
