package sales

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

const (
	mappingModule  = "SALES"
	keyReceivable  = "sales.receivable"
	keyRevenue     = "sales.revenue"
	keyCOGS        = "sales.cogs"
	keyCostPayable = "sales.costs.payable"
	stockModule    = "INVENTORY"
	keyStock       = "inventory.stock"
	treasuryModule = "TREASURY"
	keyCash        = "treasury.cash"
)

// Tx groups invoice persistence with stock and ledger operations so posting
// and reversal run inside one transaction boundary.
type Tx interface {
	inventory.TxRepository
	ledger.TxRepository
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	MarkInvoicePosted(ctx context.Context, invoice Invoice) error
	MarkInvoiceReversed(ctx context.Context, id int64, reversalTxnID int64) error
}

// RepositoryPort abstracts invoice persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	CreateInvoice(ctx context.Context, invoice Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, limit, offset int) ([]Invoice, int, error)
}

// StockPort is the slice of the inventory service posting needs.
type StockPort interface {
	LockItemsTx(ctx context.Context, tx inventory.TxRepository, itemIDs []int64) error
	IssueStockTx(ctx context.Context, tx inventory.TxRepository, input inventory.IssueInput) (inventory.Item, decimal.Decimal, error)
	ReceiveStockTx(ctx context.Context, tx inventory.TxRepository, input inventory.ReceiveInput) (inventory.Item, error)
}

// LedgerPort is the slice of the ledger service posting needs.
type LedgerPort interface {
	PostTx(ctx context.Context, tx ledger.TxRepository, input ledger.PostingInput) (ledger.Transaction, error)
	ReverseTx(ctx context.Context, tx ledger.TxRepository, input ledger.ReverseInput) (ledger.Transaction, error)
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

// Service owns the invoice lifecycle: capture unposted, post with stock issue
// and balanced ledger legs, reverse with stock return and ledger reversal.
// Any posting failure leaves the invoice unposted with no partial state.
type Service struct {
	repo     RepositoryPort
	stock    StockPort
	ledger   LedgerPort
	mappings MappingPort
	audit    AuditPort
	now      func() time.Time
}

// NewService builds the sales service.
func NewService(repo RepositoryPort, stock StockPort, ledgerPort LedgerPort, mappings MappingPort, audit AuditPort) *Service {
	return &Service{repo: repo, stock: stock, ledger: ledgerPort, mappings: mappings, audit: audit, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// InvoiceLineInput is one sold item on a new invoice.
type InvoiceLineInput struct {
	ItemID int64           `json:"item_id" validate:"required"`
	Qty    decimal.Decimal `json:"qty"`
	Price  decimal.Decimal `json:"price"`
}

// InvoiceCostInput is one pass-through charge.
type InvoiceCostInput struct {
	Kind     string          `json:"kind" validate:"required,max=50"`
	Provider string          `json:"provider" validate:"max=200"`
	Amount   decimal.Decimal `json:"amount"`
}

// CreateInvoiceInput captures an unposted invoice.
type CreateInvoiceInput struct {
	Customer        string             `json:"customer" validate:"required,max=200"`
	Currency        string             `json:"currency" validate:"required,len=3"`
	Rate            decimal.Decimal    `json:"rate"`
	CashSale        bool               `json:"cash_sale"`
	Discount        decimal.Decimal    `json:"discount"`
	Surcharge       decimal.Decimal    `json:"surcharge"`
	Memo            string             `json:"memo" validate:"max=500"`
	Lines           []InvoiceLineInput `json:"lines" validate:"required,min=1,dive"`
	AdditionalCosts []InvoiceCostInput `json:"additional_costs" validate:"dive"`
}

// Totals recomputes gross and net from the document fields:
// gross = sum(qty*price), net = gross - discount + surcharge + costs.
func Totals(lines []InvoiceLine, discount, surcharge decimal.Decimal, costs []InvoiceCost) (gross, net decimal.Decimal) {
	for _, line := range lines {
		gross = gross.Add(line.Qty.Mul(line.Price))
	}
	net = gross.Sub(discount).Add(surcharge)
	for _, cost := range costs {
		net = net.Add(cost.Amount)
	}
	return gross, net
}

// CreateInvoice stores an unposted invoice after structural validation.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput, actorID int64) (Invoice, error) {
	if len(input.Lines) == 0 {
		return Invoice{}, ErrNoLines
	}
	if input.Rate.Sign() <= 0 {
		return Invoice{}, fmt.Errorf("%w: invoice rate %s", fx.ErrInvalidRate, input.Rate)
	}
	if input.Discount.Sign() < 0 || input.Surcharge.Sign() < 0 {
		return Invoice{}, errors.New("sales: discount and surcharge must be >= 0")
	}
	invoice := Invoice{
		Customer:  input.Customer,
		Currency:  input.Currency,
		Rate:      input.Rate,
		Status:    InvoiceStatusUnposted,
		CashSale:  input.CashSale,
		Discount:  input.Discount,
		Surcharge: input.Surcharge,
		Memo:      input.Memo,
		CreatedBy: actorID,
	}
	for i, line := range input.Lines {
		if line.Qty.Sign() <= 0 {
			return Invoice{}, fmt.Errorf("%w: line %d qty %s", inventory.ErrInvalidQuantity, i, line.Qty)
		}
		if line.Price.Sign() <= 0 {
			return Invoice{}, fmt.Errorf("%w: line %d price %s", ErrInvalidPrice, i, line.Price)
		}
		invoice.Lines = append(invoice.Lines, InvoiceLine{
			ItemID: line.ItemID,
			Qty:    line.Qty,
			Price:  line.Price,
			Amount: line.Qty.Mul(line.Price),
		})
	}
	for i, cost := range input.AdditionalCosts {
		if cost.Amount.Sign() < 0 {
			return Invoice{}, fmt.Errorf("sales: additional cost %d negative amount", i)
		}
		invoice.AdditionalCosts = append(invoice.AdditionalCosts, InvoiceCost{
			Kind:     cost.Kind,
			Provider: cost.Provider,
			Amount:   cost.Amount,
		})
	}
	invoice.Gross, invoice.Net = Totals(invoice.Lines, invoice.Discount, invoice.Surcharge, invoice.AdditionalCosts)

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, actorID, "sales.invoice.create", created.ID, map[string]any{"number": created.Number})
	return created, nil
}

// GetInvoice fetches one invoice with lines and costs.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices returns one page of invoices, newest first.
func (s *Service) ListInvoices(ctx context.Context, page, perPage int) ([]Invoice, shared.Pagination, error) {
	if perPage <= 0 || perPage > 200 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	invoices, total, err := s.repo.ListInvoices(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return invoices, shared.NewPagination(page, perPage, total), nil
}

// PostInvoice moves an invoice from Unposted to Posted: totals are
// recomputed, stock is issued per line capturing COGS at the current average
// cost, and one balanced transaction carries the receivable, revenue,
// pass-through payable and COGS legs. Stock, ledger and status share one
// database transaction.
func (s *Service) PostInvoice(ctx context.Context, invoiceID, actorID int64) (Invoice, ledger.Transaction, error) {
	revenueMapping, err := s.mappings.Get(ctx, mappingModule, keyRevenue)
	if err != nil {
		return Invoice{}, ledger.Transaction{}, err
	}
	cogsMapping, err := s.mappings.Get(ctx, mappingModule, keyCOGS)
	if err != nil {
		return Invoice{}, ledger.Transaction{}, err
	}
	stockMapping, err := s.mappings.Get(ctx, stockModule, keyStock)
	if err != nil {
		return Invoice{}, ledger.Transaction{}, err
	}

	var invoice Invoice
	var txn ledger.Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		invoice, err = tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != InvoiceStatusUnposted {
			return fmt.Errorf("%w: invoice %s is %s", ErrAlreadyPosted, invoice.Number, invoice.Status)
		}
		if invoice.Rate.Sign() <= 0 {
			return fmt.Errorf("%w: invoice rate %s", fx.ErrInvalidRate, invoice.Rate)
		}

		debitMapping, err := s.debitMapping(ctx, invoice.CashSale)
		if err != nil {
			return err
		}

		// Item locks are taken in ascending id order before the per-line
		// issues so concurrent postings cannot deadlock on overlapping items.
		if err := s.stock.LockItemsTx(ctx, tx, lineItemIDs(invoice.Lines)); err != nil {
			return err
		}

		postedAt := s.now().UTC()
		var totalCOGS decimal.Decimal
		for i := range invoice.Lines {
			line := &invoice.Lines[i]
			if line.Price.Sign() <= 0 {
				return fmt.Errorf("%w: line %d price %s", ErrInvalidPrice, i, line.Price)
			}
			_, unitCost, err := s.stock.IssueStockTx(ctx, tx, inventory.IssueInput{
				ItemID:    line.ItemID,
				Qty:       line.Qty,
				RefModule: "SALES",
				RefID:     invoice.Number,
				ActorID:   actorID,
				At:        postedAt,
			})
			if err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}
			line.UnitCost = unitCost
			line.Amount = line.Qty.Mul(line.Price)
			totalCOGS = totalCOGS.Add(line.Qty.Mul(unitCost))
		}
		invoice.Gross, invoice.Net = Totals(invoice.Lines, invoice.Discount, invoice.Surcharge, invoice.AdditionalCosts)

		// Credits are rounded individually and the debit is their sum so the
		// document legs balance exactly.
		fcyRevenue := invoice.Gross.Sub(invoice.Discount).Add(invoice.Surcharge)
		revenueBase, err := fx.ToBase(fcyRevenue, invoice.Rate)
		if err != nil {
			return err
		}
		revenueCredit := ledger.RoundMoney(revenueBase)
		entries := make([]ledger.EntryInput, 0, len(invoice.AdditionalCosts)+4)
		totalDebit := revenueCredit
		entries = append(entries, ledger.EntryInput{
			AccountID: revenueMapping.AccountID,
			Credit:    revenueCredit,
			Currency:  invoice.Currency,
			Rate:      invoice.Rate,
			FCYAmount: fcyRevenue,
			Narration: fmt.Sprintf("Sale %s / %s", invoice.Number, invoice.Customer),
		})
		var costsMapping ledger.AccountMapping
		if len(invoice.AdditionalCosts) > 0 {
			costsMapping, err = s.mappings.Get(ctx, mappingModule, keyCostPayable)
			if err != nil {
				return err
			}
		}
		for _, cost := range invoice.AdditionalCosts {
			base, err := fx.ToBase(cost.Amount, invoice.Rate)
			if err != nil {
				return err
			}
			credit := ledger.RoundMoney(base)
			if credit.Sign() == 0 {
				continue
			}
			entries = append(entries, ledger.EntryInput{
				AccountID: costsMapping.AccountID,
				Credit:    credit,
				Currency:  invoice.Currency,
				Rate:      invoice.Rate,
				FCYAmount: cost.Amount,
				Narration: fmt.Sprintf("%s / %s", cost.Kind, invoice.Number),
			})
			totalDebit = totalDebit.Add(credit)
		}
		entries = append([]ledger.EntryInput{{
			AccountID: debitMapping.AccountID,
			Debit:     totalDebit,
			Currency:  invoice.Currency,
			Rate:      invoice.Rate,
			FCYAmount: invoice.Net,
			Narration: fmt.Sprintf("Invoice %s / %s", invoice.Number, invoice.Customer),
		}}, entries...)

		cogsValue := ledger.RoundMoney(totalCOGS)
		if cogsValue.Sign() != 0 {
			narration := fmt.Sprintf("COGS / %s", invoice.Number)
			entries = append(entries,
				ledger.EntryInput{AccountID: cogsMapping.AccountID, Debit: cogsValue, Narration: narration},
				ledger.EntryInput{AccountID: stockMapping.AccountID, Credit: cogsValue, Narration: narration},
			)
		}

		txn, err = s.ledger.PostTx(ctx, tx, ledger.PostingInput{
			Type:         ledger.TxnTypeSalesInvoice,
			SourceModule: "SALES.INVOICE",
			SourceID:     uuid.New(),
			Memo:         fmt.Sprintf("Invoice %s (%s)", invoice.Number, invoice.Customer),
			PostedBy:     actorID,
			Date:         postedAt,
			Entries:      entries,
		})
		if err != nil {
			return err
		}
		invoice.Status = InvoiceStatusPosted
		invoice.LedgerTxnID = &txn.ID
		invoice.PostedAt = &postedAt
		return tx.MarkInvoicePosted(ctx, invoice)
	})
	if err != nil {
		return Invoice{}, ledger.Transaction{}, err
	}
	s.recordAudit(ctx, actorID, "sales.invoice.post", invoice.ID, map[string]any{
		"number": invoice.Number,
		"txn_id": txn.ID,
		"net":    invoice.Net.String(),
	})
	return invoice, txn, nil
}

// ReverseInvoice undoes a posted invoice: the ledger transaction is reversed
// through the archive path and the issued stock comes back at the unit cost
// captured at posting.
func (s *Service) ReverseInvoice(ctx context.Context, invoiceID int64, reason string, actorID int64) (Invoice, ledger.Transaction, error) {
	var invoice Invoice
	var reversal ledger.Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		invoice, err = tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != InvoiceStatusPosted || invoice.LedgerTxnID == nil {
			return fmt.Errorf("%w: invoice %s is %s", ErrNotPosted, invoice.Number, invoice.Status)
		}
		// Items are locked before the ledger reversal so lock order matches
		// posting: items first, then accounts.
		if err := s.stock.LockItemsTx(ctx, tx, lineItemIDs(invoice.Lines)); err != nil {
			return err
		}
		reversal, err = s.ledger.ReverseTx(ctx, tx, ledger.ReverseInput{
			TransactionID: *invoice.LedgerTxnID,
			Reason:        reason,
			ActorID:       actorID,
		})
		if err != nil {
			return err
		}
		postedAt := s.now().UTC()
		for i, line := range invoice.Lines {
			if _, err := s.stock.ReceiveStockTx(ctx, tx, inventory.ReceiveInput{
				ItemID:    line.ItemID,
				Qty:       line.Qty,
				UnitCost:  line.UnitCost,
				RefModule: "SALES.REVERSAL",
				RefID:     invoice.Number,
				Note:      reason,
				ActorID:   actorID,
				At:        postedAt,
			}); err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}
		}
		invoice.Status = InvoiceStatusReversed
		invoice.ReversalTxnID = &reversal.ID
		return tx.MarkInvoiceReversed(ctx, invoice.ID, reversal.ID)
	})
	if err != nil {
		return Invoice{}, ledger.Transaction{}, err
	}
	s.recordAudit(ctx, actorID, "sales.invoice.reverse", invoice.ID, map[string]any{
		"number": invoice.Number,
		"reason": reason,
	})
	return invoice, reversal, nil
}

// ReceiptInput describes a customer receipt against a posted invoice.
type ReceiptInput struct {
	InvoiceID int64           `json:"-"`
	Amount    decimal.Decimal `json:"amount"`
	Rate      decimal.Decimal `json:"rate"`
	Memo      string          `json:"memo" validate:"max=500"`
	ActorID   int64           `json:"-"`
}

// RecordReceipt posts a RECEIPT transaction: debit Cash/Bank, credit
// Accounts Receivable, converted at the rate of the day.
func (s *Service) RecordReceipt(ctx context.Context, input ReceiptInput) (ledger.Transaction, error) {
	if input.Amount.Sign() <= 0 {
		return ledger.Transaction{}, errors.New("sales: receipt amount must be positive")
	}
	invoice, err := s.repo.GetInvoice(ctx, input.InvoiceID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if invoice.Status != InvoiceStatusPosted {
		return ledger.Transaction{}, fmt.Errorf("%w: invoice %s is %s", ErrNotPosted, invoice.Number, invoice.Status)
	}
	base, err := fx.ToBase(input.Amount, input.Rate)
	if err != nil {
		return ledger.Transaction{}, err
	}
	receivableMapping, err := s.mappings.Get(ctx, mappingModule, keyReceivable)
	if err != nil {
		return ledger.Transaction{}, err
	}
	cashMapping, err := s.mappings.Get(ctx, treasuryModule, keyCash)
	if err != nil {
		return ledger.Transaction{}, err
	}
	amount := ledger.RoundMoney(base)
	narration := fmt.Sprintf("Receipt / %s", invoice.Number)
	txn, err := s.ledger.Post(ctx, ledger.PostingInput{
		Type:         ledger.TxnTypeReceipt,
		SourceModule: "SALES.RECEIPT",
		SourceID:     uuid.New(),
		Memo:         input.Memo,
		PostedBy:     input.ActorID,
		Entries: []ledger.EntryInput{
			{AccountID: cashMapping.AccountID, Debit: amount, Currency: invoice.Currency, Rate: input.Rate, FCYAmount: input.Amount, Narration: narration},
			{AccountID: receivableMapping.AccountID, Credit: amount, Currency: invoice.Currency, Rate: input.Rate, FCYAmount: input.Amount, Narration: narration},
		},
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.recordAudit(ctx, input.ActorID, "sales.receipt", invoice.ID, map[string]any{"amount": input.Amount.String()})
	return txn, nil
}

func lineItemIDs(lines []InvoiceLine) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ItemID)
	}
	return ids
}

func (s *Service) debitMapping(ctx context.Context, cashSale bool) (ledger.AccountMapping, error) {
	if cashSale {
		return s.mappings.Get(ctx, treasuryModule, keyCash)
	}
	return s.mappings.Get(ctx, mappingModule, keyReceivable)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales_invoice",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
