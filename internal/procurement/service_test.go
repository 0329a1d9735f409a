package procurement_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rethread-erp/rethread-erp/internal/inventory"
	"github.com/rethread-erp/rethread-erp/internal/inventory/inventorytest"
	"github.com/rethread-erp/rethread-erp/internal/ledger"
	"github.com/rethread-erp/rethread-erp/internal/ledger/ledgertest"
	"github.com/rethread-erp/rethread-erp/internal/procurement"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// memRepo keeps purchases in memory on top of the shared stock/ledger stores.
type memRepo struct {
	inv       *inventorytest.Store
	purchases map[int64]procurement.Purchase
	nextID    int64
}

func newMemRepo(inv *inventorytest.Store) *memRepo {
	return &memRepo{inv: inv, purchases: make(map[int64]procurement.Purchase)}
}

type memTx struct {
	inventory.Tx
	repo *memRepo
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, procurement.Tx) error) error {
	snapshot := make(map[int64]procurement.Purchase, len(m.purchases))
	for id, p := range m.purchases {
		snapshot[id] = p
	}
	err := m.inv.WithTx(ctx, func(ctx context.Context, invTx inventory.Tx) error {
		return fn(ctx, memTx{Tx: invTx, repo: m})
	})
	if err != nil {
		m.purchases = snapshot
	}
	return err
}

func (m *memRepo) CreatePurchase(_ context.Context, purchase procurement.Purchase) (procurement.Purchase, error) {
	m.nextID++
	purchase.ID = m.nextID
	purchase.Number = fmt.Sprintf("PUR-%05d", m.nextID)
	purchase.CreatedAt = time.Now()
	for i := range purchase.Lines {
		purchase.Lines[i].ID = int64(i + 1)
		purchase.Lines[i].PurchaseID = purchase.ID
	}
	m.purchases[purchase.ID] = purchase
	return purchase, nil
}

func (m *memRepo) GetPurchase(_ context.Context, id int64) (procurement.Purchase, error) {
	purchase, ok := m.purchases[id]
	if !ok {
		return procurement.Purchase{}, procurement.ErrPurchaseNotFound
	}
	return purchase, nil
}

func (m *memRepo) ListPurchases(_ context.Context) ([]procurement.Purchase, error) {
	out := make([]procurement.Purchase, 0, len(m.purchases))
	for _, p := range m.purchases {
		out = append(out, p)
	}
	return out, nil
}

func (t memTx) GetPurchaseForUpdate(ctx context.Context, id int64) (procurement.Purchase, error) {
	return t.repo.GetPurchase(ctx, id)
}

func (t memTx) MarkPurchasePosted(_ context.Context, id int64, txnID int64, postedAt time.Time, lines []procurement.PurchaseLine) error {
	purchase, ok := t.repo.purchases[id]
	if !ok {
		return procurement.ErrPurchaseNotFound
	}
	purchase.Status = procurement.PurchaseStatusPosted
	purchase.LedgerTxnID = &txnID
	purchase.PostedAt = &postedAt
	purchase.Lines = lines
	t.repo.purchases[id] = purchase
	return nil
}

type fixture struct {
	svc         *procurement.Service
	repo        *memRepo
	inv         *inventorytest.Store
	ledgerStore *ledgertest.Store
	stockAcc    ledger.Account
	payableAcc  ledger.Account
	costsAcc    ledger.Account
	cashAcc     ledger.Account
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
		stockAcc:    ledgerStore.SeedAccount("1200", "Inventory", ledger.AccountTypeAsset, decimal.Zero),
		payableAcc:  ledgerStore.SeedAccount("2000", "Accounts Payable", ledger.AccountTypeLiability, decimal.Zero),
		costsAcc:    ledgerStore.SeedAccount("2100", "Landed Cost Payables", ledger.AccountTypeLiability, decimal.Zero),
		cashAcc:     ledgerStore.SeedAccount("1000", "Cash", ledger.AccountTypeAsset, d("10000")),
	}
	ledgerStore.SeedMapping("INVENTORY", "inventory.stock", f.stockAcc.ID)
	ledgerStore.SeedMapping("PROCUREMENT", "procurement.payable", f.payableAcc.ID)
	ledgerStore.SeedMapping("PROCUREMENT", "procurement.costs.payable", f.costsAcc.ID)
	ledgerStore.SeedMapping("TREASURY", "treasury.cash", f.cashAcc.ID)

	ledgerSvc := ledger.NewService(ledgerStore, nil)
	stockSvc := inventory.NewService(inv, ledgerSvc, ledgerStore, nil, inventory.ServiceConfig{})
	f.svc = procurement.NewService(repo, stockSvc, ledgerSvc, ledgerStore, nil)
	f.svc.WithNow(func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) })
	return f
}

func TestPostPurchaseReceivesStockAtLandedCost(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("ORIG-MIX", inventory.PackingBale, decimal.Zero, decimal.Zero)

	purchase, err := f.svc.CreatePurchase(context.Background(), procurement.CreatePurchaseInput{
		Supplier: "Kansai Trading",
		Currency: "JPY",
		Rate:     d("4"),
		Lines: []procurement.PurchaseLineInput{
			{ItemID: item.ID, OriginalType: "Mixed original", WeightKg: d("1000"), Qty: d("20"), CostPerKg: d("1.2")},
		},
		AdditionalCosts: []procurement.AdditionalCostInput{
			{Kind: "FREIGHT", Provider: "Maersk", Amount: d("300"), Currency: "USD", Rate: d("1")},
		},
	}, 5)
	require.NoError(t, err)
	require.Equal(t, procurement.PurchaseStatusDraft, purchase.Status)

	posted, txn, err := f.svc.PostPurchase(context.Background(), purchase.ID, 5)
	require.NoError(t, err)
	require.Equal(t, procurement.PurchaseStatusPosted, posted.Status)
	require.NotNil(t, posted.LedgerTxnID)
	require.Equal(t, ledger.TxnTypePurchase, txn.Type)

	// Material 1200 JPY at 4/base = 300; freight 300; landed 600 over 20 units.
	stockItem := f.inv.Items[item.ID]
	require.True(t, stockItem.StockQty.Equal(d("20")))
	require.True(t, stockItem.AvgCost.Equal(d("30")), "avg %s", stockItem.AvgCost)

	require.True(t, f.ledgerStore.Accounts[f.stockAcc.ID].Balance.Equal(d("600")))
	require.True(t, f.ledgerStore.Accounts[f.payableAcc.ID].Balance.Equal(d("300")))
	require.True(t, f.ledgerStore.Accounts[f.costsAcc.ID].Balance.Equal(d("300")))

	require.True(t, posted.Lines[0].LandedUnitCost.Equal(d("30")))
	require.True(t, posted.Lines[0].LandedBase.Equal(d("600")))
}

func TestPostPurchaseTwiceFails(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("ORIG-MIX", inventory.PackingBale, decimal.Zero, decimal.Zero)

	purchase, err := f.svc.CreatePurchase(context.Background(), procurement.CreatePurchaseInput{
		Supplier: "Kansai Trading",
		Currency: "USD",
		Rate:     d("1"),
		Lines: []procurement.PurchaseLineInput{
			{ItemID: item.ID, OriginalType: "Mixed", WeightKg: d("100"), Qty: d("2"), CostPerKg: d("1")},
		},
	}, 5)
	require.NoError(t, err)

	_, _, err = f.svc.PostPurchase(context.Background(), purchase.ID, 5)
	require.NoError(t, err)

	_, _, err = f.svc.PostPurchase(context.Background(), purchase.ID, 5)
	require.ErrorIs(t, err, procurement.ErrAlreadyPosted)
}

func TestPostPurchaseRollsBackOnUnknownItem(t *testing.T) {
	f := newFixture(t)

	purchase, err := f.svc.CreatePurchase(context.Background(), procurement.CreatePurchaseInput{
		Supplier: "Kansai Trading",
		Currency: "USD",
		Rate:     d("1"),
		Lines: []procurement.PurchaseLineInput{
			{ItemID: 404, OriginalType: "Mixed", WeightKg: d("100"), Qty: d("2"), CostPerKg: d("1")},
		},
	}, 5)
	require.NoError(t, err)

	_, _, err = f.svc.PostPurchase(context.Background(), purchase.ID, 5)
	require.ErrorIs(t, err, inventory.ErrItemNotFound)

	after, err := f.svc.GetPurchase(context.Background(), purchase.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.PurchaseStatusDraft, after.Status)
	require.Empty(t, f.ledgerStore.Transactions)
	require.True(t, f.ledgerStore.Accounts[f.stockAcc.ID].Balance.IsZero())
}

func TestCreatePurchaseRejectsBadRate(t *testing.T) {
	f := newFixture(t)
	item := f.inv.SeedItem("ORIG-MIX", inventory.PackingBale, decimal.Zero, decimal.Zero)

	_, err := f.svc.CreatePurchase(context.Background(), procurement.CreatePurchaseInput{
		Supplier: "Kansai Trading",
		Currency: "JPY",
		Rate:     decimal.Zero,
		Lines: []procurement.PurchaseLineInput{
			{ItemID: item.ID, OriginalType: "Mixed", WeightKg: d("100"), Qty: d("2"), CostPerKg: d("1")},
		},
	}, 5)
	require.Error(t, err)
}

func TestPaySupplierPostsPayment(t *testing.T) {
	f := newFixture(t)

	txn, err := f.svc.PaySupplier(context.Background(), procurement.PaymentInput{
		Supplier: "Kansai Trading",
		Amount:   d("400"),
		Currency: "JPY",
		Rate:     d("4"),
		ActorID:  5,
	})
	require.NoError(t, err)
	require.Equal(t, ledger.TxnTypePayment, txn.Type)

	require.True(t, f.ledgerStore.Accounts[f.payableAcc.ID].Balance.Equal(d("-100")))
	require.True(t, f.ledgerStore.Accounts[f.cashAcc.ID].Balance.Equal(d("9900")))
}
