package sales_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rethread-erp/rethread-erp/internal/fx"
	"github.com/rethread-erp/rethread-erp/internal/inventory"
	"github.com/rethread-erp/rethread-erp/internal/inventory/inventorytest"
	"github.com/rethread-erp/rethread-erp/internal/ledger"
	"github.com/rethread-erp/rethread-erp/internal/ledger/ledgertest"
	"github.com/rethread-erp/rethread-erp/internal/sales"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type memRepo struct {
	inv      *inventorytest.Store
	invoices map[int64]sales.Invoice
	nextID   int64
}

func newMemRepo(inv *inventorytest.Store) *memRepo {
	return &memRepo{inv: inv, invoices: make(map[int64]sales.Invoice)}
}

type memTx struct {
	inventory.Tx
	repo *memRepo
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, sales.Tx) error) error {
	snapshot := make(map[int64]sales.Invoice, len(m.invoices))
	for id, inv := range m.invoices {
		snapshot[id] = inv
	}
	err := m.inv.WithTx(ctx, func(ctx context.Context, invTx inventory.Tx) error {
		return fn(ctx, memTx{Tx: invTx, repo: m})
	})
	if err != nil {
		m.invoices = snapshot
	}
	return err
}

func (m *memRepo) CreateInvoice(_ context.Context, invoice sales.Invoice) (sales.Invoice, error) {
	m.nextID++
	invoice.ID = m.nextID
	invoice.Number = fmt.Sprintf("INV-%05d", m.nextID)
	invoice.CreatedAt = time.Now()
	for i := range invoice.Lines {
		invoice.Lines[i].ID = int64(i + 1)
		invoice.Lines[i].InvoiceID = invoice.ID
	}
	m.invoices[invoice.ID] = invoice
	return invoice, nil
}

func (m *memRepo) GetInvoice(_ context.Context, id int64) (sales.Invoice, error) {
	invoice, ok := m.invoices[id]
	if !ok {
		return sales.Invoice{}, sales.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (m *memRepo) ListInvoices(_ context.Context, limit, offset int) ([]sales.Invoice, int, error) {
	out := make([]sales.Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		out = append(out, inv)
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (t memTx) GetInvoiceForUpdate(ctx context.Context, id int64) (sales.Invoice, error) {
	return t.repo.GetInvoice(ctx, id)
}

func (t memTx) MarkInvoicePosted(_ context.Context, invoice sales.Invoice) error {
	if _, ok := t.repo.invoices[invoice.ID]; !ok {
		return sales.ErrInvoiceNotFound
	}
	t.repo.invoices[invoice.ID] = invoice
	return nil
}

func (t memTx) MarkInvoiceReversed(_ context.Context, id int64, reversalTxnID int64) error {
	invoice, ok := t.repo.invoices[id]
	if !ok {
		return sales.ErrInvoiceNotFound
	}
	invoice.Status = sales.InvoiceStatusReversed
	invoice.ReversalTxnID = &reversalTxnID
	t.repo.invoices[id] = invoice
	return nil
}

type fixture struct {
	svc         *sales.Service
	repo        *memRepo
	inv         *inventorytest.Store
	ledgerStore *ledgertest.Store
	arAcc       ledger.Account
	revenueAcc  ledger.Account
	cogsAcc     ledger.Account
	stockAcc    ledger.Account
	cashAcc     ledger.Account
	costsAcc    ledger.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledgerStore := ledgertest.NewStore()
	inv := inventorytest.NewStore(ledgerStore)
	repo := newMemRepo(inv)

	f := &fixture{
		repo:        repo,
		inv:         inv,
		ledgerStore: ledgerStore,
		arAcc:       ledgerStore.SeedAccount("1100", "Accounts Receivable", ledger.AccountTypeAsset, decimal.Zero),
		revenueAcc:  ledgerStore.SeedAccount("4000", "Sales Revenue", ledger.AccountTypeRevenue, decimal.Zero),
		cogsAcc:     ledgerStore.SeedAccount("5000", "Cost of Goods Sold", ledger.AccountTypeExpense, decimal.Zero),
		stockAcc:    ledgerStore.SeedAccount("1200", "Inventory", ledger.AccountTypeAsset, d("1800")),
		cashAcc:     ledgerStore.SeedAccount("1000", "Cash", ledger.AccountTypeAsset, decimal.Zero),
		costsAcc:    ledgerStore.SeedAccount("2200", "Pass-through Payables", ledger.AccountTypeLiability, decimal.Zero),
	}
	ledgerStore.SeedMapping("SALES", "sales.receivable", f.arAcc.ID)
	ledgerStore.SeedMapping("SALES", "sales.revenue", f.revenueAcc.ID)
	ledgerStore.SeedMapping("SALES", "sales.cogs", f.cogsAcc.ID)
	ledgerStore.SeedMapping("SALES", "sales.costs.payable", f.costsAcc.ID)
	ledgerStore.SeedMapping("INVENTORY", "inventory.stock", f.stockAcc.ID)
	ledgerStore.SeedMapping("TREASURY", "treasury.cash", f.cashAcc.ID)

	ledgerSvc := ledger.NewService(ledgerStore, nil)
	stockSvc := inventory.NewService(inv, ledgerSvc, ledgerStore, nil, inventory.ServiceConfig{})
	f.svc = sales.NewService(repo, stockSvc, ledgerSvc, ledgerStore, nil)
	f.svc.WithNow(func() time.Time { return time.Date(2026, 6, 10, 11, 0, 0, 0, time.UTC) })
	return f
}

func (f *fixture) createInvoice(t *testing.T, input sales.CreateInvoiceInput) sales.Invoice {
	t.Helper()
	invoice, err := f.svc.CreateInvoice(context.Background(), input, 7)
	require.NoError(t, err)
	return invoice
}

func TestPostInvoiceComputesTotalsAndLegs(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("BALE-MIX", inventory.PackingBale, d("150"), d("12"))

	invoice := f.createInvoice(t, sales.CreateInvoiceInput{
		Customer:  "Lagos Importers Ltd",
		Currency:  "USD",
		Rate:      d("1"),
		Discount:  d("5"),
		Surcharge: d("2"),
		Lines: []sales.InvoiceLineInput{
			{ItemID: item.ID, Qty: d("10"), Price: d("15")},
		},
	})
	require.Equal(t, sales.InvoiceStatusUnposted, invoice.Status)
	require.True(t, invoice.Gross.Equal(d("150")))
	require.True(t, invoice.Net.Equal(d("147")))

	posted, txn, err := f.svc.PostInvoice(context.Background(), invoice.ID, 7)
	require.NoError(t, err)
	require.Equal(t, sales.InvoiceStatusPosted, posted.Status)
	require.NotNil(t, posted.LedgerTxnID)
	require.Equal(t, ledger.TxnTypeSalesInvoice, txn.Type)
	require.True(t, posted.Lines[0].UnitCost.Equal(d("12")))

	// Stock: 10 issued at avg 12, average unchanged.
	stockItem := f.inv.Items[item.ID]
	require.True(t, stockItem.StockQty.Equal(d("140")))
	require.True(t, stockItem.AvgCost.Equal(d("12")))

	// AR 147, revenue 147, COGS 120 against inventory.
	require.True(t, f.ledgerStore.Accounts[f.arAcc.ID].Balance.Equal(d("147")))
	require.True(t, f.ledgerStore.Accounts[f.revenueAcc.ID].Balance.Equal(d("147")))
	require.True(t, f.ledgerStore.Accounts[f.cogsAcc.ID].Balance.Equal(d("120")))
	require.True(t, f.ledgerStore.Accounts[f.stockAcc.ID].Balance.Equal(d("1680")))
}

func TestPostInvoicePassThroughCosts(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("BALE-MIX", inventory.PackingBale, d("150"), d("12"))

	invoice := f.createInvoice(t, sales.CreateInvoiceInput{
		Customer: "Lagos Importers Ltd",
		Currency: "USD",
		Rate:     d("1"),
		Lines: []sales.InvoiceLineInput{
			{ItemID: item.ID, Qty: d("10"), Price: d("15")},
		},
		AdditionalCosts: []sales.InvoiceCostInput{
			{Kind: "FREIGHT", Provider: "Bollore", Amount: d("10")},
		},
	})
	require.True(t, invoice.Net.Equal(d("160")))

	_, _, err := f.svc.PostInvoice(context.Background(), invoice.ID, 7)
	require.NoError(t, err)

	require.True(t, f.ledgerStore.Accounts[f.arAcc.ID].Balance.Equal(d("160")))
	require.True(t, f.ledgerStore.Accounts[f.revenueAcc.ID].Balance.Equal(d("150")))
	require.True(t, f.ledgerStore.Accounts[f.costsAcc.ID].Balance.Equal(d("10")))
}

func TestPostInvoiceForeignCurrencyConvertsAtRate(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("BALE-MIX", inventory.PackingBale, d("150"), d("12"))

	// 600 foreign units at 4 per base unit = 150 base.
	invoice := f.createInvoice(t, sales.CreateInvoiceInput{
		Customer: "Cotonou Traders",
		Currency: "XOF",
		Rate:     d("4"),
		Lines: []sales.InvoiceLineInput{
			{ItemID: item.ID, Qty: d("10"), Price: d("60")},
		},
	})

	_, txn, err := f.svc.PostInvoice(context.Background(), invoice.ID, 7)
	require.NoError(t, err)
	require.True(t, f.ledgerStore.Accounts[f.arAcc.ID].Balance.Equal(d("150")))

	// The receivable leg carries the document currency alongside base.
	debit := txn.Entries[0]
	require.Equal(t, "XOF", debit.Currency)
	require.True(t, debit.FCYAmount.Equal(d("600")))
}

func TestPostInvoiceInsufficientStockLeavesUnposted(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("BALE-MIX", inventory.PackingBale, d("5"), d("12"))

	invoice := f.createInvoice(t, sales.CreateInvoiceInput{
		Customer: "Lagos Importers Ltd",
		Currency: "USD",
		Rate:     d("1"),
		Lines: []sales.InvoiceLineInput{
			{ItemID: item.ID, Qty: d("10"), Price: d("15")},
		},
	})

	_, _, err := f.svc.PostInvoice(context.Background(), invoice.ID, 7)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	after, err := f.svc.GetInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	require.Equal(t, sales.InvoiceStatusUnposted, after.Status)
	require.Nil(t, after.LedgerTxnID)
	require.True(t, f.inv.Items[item.ID].StockQty.Equal(d("5")))
	require.Empty(t, f.ledgerStore.Transactions)
}

func TestPostInvoiceTwiceFails(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("BALE-MIX", inventory.PackingBale, d("150"), d("12"))

	invoice := f.createInvoice(t, sales.CreateInvoiceInput{
		Customer: "Lagos Importers Ltd",
		Currency: "USD",
		Rate:     d("1"),
		Lines:    []sales.InvoiceLineInput{{ItemID: item.ID, Qty: d("10"), Price: d("15")}},
	})

	_, _, err := f.svc.PostInvoice(context.Background(), invoice.ID, 7)
	require.NoError(t, err)

	_, _, err = f.svc.PostInvoice(context.Background(), invoice.ID, 7)
	require.ErrorIs(t, err, sales.ErrAlreadyPosted)
}

func TestCashSaleDebitsCash(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("BALE-MIX", inventory.PackingBale, d("150"), d("12"))

	invoice := f.createInvoice(t, sales.CreateInvoiceInput{
		Customer: "Walk-in",
		Currency: "USD",
		Rate:     d("1"),
		CashSale: true,
		Lines:    []sales.InvoiceLineInput{{ItemID: item.ID, Qty: d("2"), Price: d("20")}},
	})

	_, _, err := f.svc.PostInvoice(context.Background(), invoice.ID, 7)
	require.NoError(t, err)
	require.True(t, f.ledgerStore.Accounts[f.cashAcc.ID].Balance.Equal(d("40")))
	require.True(t, f.ledgerStore.Accounts[f.arAcc.ID].Balance.IsZero())
}

func TestReverseInvoiceRestoresStockAndBalances(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("BALE-MIX", inventory.PackingBale, d("150"), d("12"))

	invoice := f.createInvoice(t, sales.CreateInvoiceInput{
		Customer:  "Lagos Importers Ltd",
		Currency:  "USD",
		Rate:      d("1"),
		Discount:  d("5"),
		Surcharge: d("2"),
		Lines:     []sales.InvoiceLineInput{{ItemID: item.ID, Qty: d("10"), Price: d("15")}},
	})

	_, _, err := f.svc.PostInvoice(context.Background(), invoice.ID, 7)
	require.NoError(t, err)

	reversed, reversal, err := f.svc.ReverseInvoice(context.Background(), invoice.ID, "short shipped", 9)
	require.NoError(t, err)
	require.Equal(t, sales.InvoiceStatusReversed, reversed.Status)
	require.NotNil(t, reversed.ReversalTxnID)
	require.NotNil(t, reversal.ReversalOf)

	// Stock and every balance return to the pre-posting position.
	require.True(t, f.inv.Items[item.ID].StockQty.Equal(d("150")))
	require.True(t, f.inv.Items[item.ID].AvgCost.Equal(d("12")))
	require.True(t, f.ledgerStore.Accounts[f.arAcc.ID].Balance.IsZero())
	require.True(t, f.ledgerStore.Accounts[f.revenueAcc.ID].Balance.IsZero())
	require.True(t, f.ledgerStore.Accounts[f.cogsAcc.ID].Balance.IsZero())
	require.True(t, f.ledgerStore.Accounts[f.stockAcc.ID].Balance.Equal(d("1800")))
	require.Len(t, f.ledgerStore.Archives, 1)

	// A reversed invoice cannot be reversed again.
	_, _, err = f.svc.ReverseInvoice(context.Background(), invoice.ID, "again", 9)
	require.ErrorIs(t, err, sales.ErrNotPosted)
}

func TestRecordReceiptAgainstPostedInvoice(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("BALE-MIX", inventory.PackingBale, d("150"), d("12"))

	invoice := f.createInvoice(t, sales.CreateInvoiceInput{
		Customer: "Lagos Importers Ltd",
		Currency: "USD",
		Rate:     d("1"),
		Lines:    []sales.InvoiceLineInput{{ItemID: item.ID, Qty: d("10"), Price: d("15")}},
	})
	_, _, err := f.svc.PostInvoice(context.Background(), invoice.ID, 7)
	require.NoError(t, err)

	txn, err := f.svc.RecordReceipt(context.Background(), sales.ReceiptInput{
		InvoiceID: invoice.ID,
		Amount:    d("150"),
		Rate:      d("1"),
		ActorID:   7,
	})
	require.NoError(t, err)
	require.Equal(t, ledger.TxnTypeReceipt, txn.Type)
	require.True(t, f.ledgerStore.Accounts[f.cashAcc.ID].Balance.Equal(d("150")))
	require.True(t, f.ledgerStore.Accounts[f.arAcc.ID].Balance.IsZero())
}

func TestRecordReceiptRequiresPostedInvoice(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("BALE-MIX", inventory.PackingBale, d("150"), d("12"))

	invoice := f.createInvoice(t, sales.CreateInvoiceInput{
		Customer: "Lagos Importers Ltd",
		Currency: "USD",
		Rate:     d("1"),
		Lines:    []sales.InvoiceLineInput{{ItemID: item.ID, Qty: d("10"), Price: d("15")}},
	})

	_, err := f.svc.RecordReceipt(context.Background(), sales.ReceiptInput{
		InvoiceID: invoice.ID,
		Amount:    d("150"),
		Rate:      d("1"),
		ActorID:   7,
	})
	require.ErrorIs(t, err, sales.ErrNotPosted)
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("BALE-MIX", inventory.PackingBale, d("150"), d("12"))

	_, err := f.svc.CreateInvoice(context.Background(), sales.CreateInvoiceInput{
		Customer: "X", Currency: "USD", Rate: decimal.Zero,
		Lines: []sales.InvoiceLineInput{{ItemID: item.ID, Qty: d("1"), Price: d("1")}},
	}, 7)
	require.ErrorIs(t, err, fx.ErrInvalidRate)

	_, err = f.svc.CreateInvoice(context.Background(), sales.CreateInvoiceInput{
		Customer: "X", Currency: "USD", Rate: d("1"),
		Lines: []sales.InvoiceLineInput{{ItemID: item.ID, Qty: d("1"), Price: decimal.Zero}},
	}, 7)
	require.ErrorIs(t, err, sales.ErrInvalidPrice)

	_, err = f.svc.CreateInvoice(context.Background(), sales.CreateInvoiceInput{
		Customer: "X", Currency: "USD", Rate: d("1"),
	}, 7)
	require.ErrorIs(t, err, sales.ErrNoLines)
}
