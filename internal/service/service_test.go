package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gudangku/backend/internal/cache"
	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopCatalogCache{}, time.Minute, "main-warehouse")
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func operatorCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "budi", Role: "operator"})
}

func TestCreateSKUNormalizesCode(t *testing.T) {
	svc := newTestService()

	sku, err := svc.CreateSKU(adminCtx(), domain.SKUCreateRequest{
		Code:          "  sku-wire-02 ",
		Description:   "Kawat Las 2.6mm",
		Category:      "electrical",
		UnitCostCents: 1500000,
	})
	if err != nil {
		t.Fatalf("create sku: %v", err)
	}
	if sku.Code != "SKU-WIRE-02" {
		t.Fatalf("expected normalized code SKU-WIRE-02, got %s", sku.Code)
	}
	if !sku.Active {
		t.Fatalf("expected new sku to be active")
	}
}

func TestCreateSKURequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSKU(operatorCtx(), domain.SKUCreateRequest{
		Code:        "SKU-X-01",
		Description: "x",
	})
	if err == nil || !strings.Contains(err.Error(), "admin role required") {
		t.Fatalf("expected admin gate, got %v", err)
	}
}

func TestReceiveStockCreatesInstances(t *testing.T) {
	svc := newTestService()

	resp, err := svc.ReceiveStock(adminCtx(), domain.StockReceiptRequest{
		SKUCode:      "sku-pipe-01",
		Quantity:     5,
		AcquireCents: 3100000,
	})
	if err != nil {
		t.Fatalf("receive stock: %v", err)
	}
	if len(resp.Instances) != 5 {
		t.Fatalf("expected 5 instances, got %d", len(resp.Instances))
	}
	for _, inst := range resp.Instances {
		if inst.SKUCode != "SKU-PIPE-01" {
			t.Fatalf("expected normalized sku code, got %s", inst.SKUCode)
		}
		if !inst.Available || inst.HeldByTagID != "" {
			t.Fatalf("new instance must start available and unheld: %+v", inst)
		}
		if inst.Location != "main-warehouse" {
			t.Fatalf("expected default location, got %s", inst.Location)
		}
	}
}

func TestReceiveStockRejectsUnknownSKU(t *testing.T) {
	svc := newTestService()

	_, err := svc.ReceiveStock(adminCtx(), domain.StockReceiptRequest{SKUCode: "SKU-NOPE-99", Quantity: 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateTagFIFOSelectsOldestInstances(t *testing.T) {
	svc := newTestService()

	resp, err := svc.CreateTag(operatorCtx(), domain.TagCreateRequest{
		TagType:      "reserved",
		CustomerName: "PT Sinar",
		Items: []domain.TagItemRequest{
			{ItemID: "SKU-CEMENT-01", Quantity: 3, SelectionMethod: "fifo"},
		},
	})
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}

	line := resp.Tag.SKUItems[0]
	if line.Quantity() != 3 {
		t.Fatalf("expected 3 committed instances, got %d", line.Quantity())
	}

	held, err := svc.repo.GetInstancesByIDs(context.Background(), line.SelectedInstanceIDs)
	if err != nil {
		t.Fatalf("lookup held: %v", err)
	}
	var newest time.Time
	for _, inst := range held {
		if inst.HeldByTagID != resp.Tag.ID {
			t.Fatalf("instance %s not held by tag", inst.ID)
		}
		if inst.ReceivedAt.After(newest) {
			newest = inst.ReceivedAt
		}
	}

	remaining, err := svc.repo.ListInstancesBySKU(context.Background(), "SKU-CEMENT-01", true, 0)
	if err != nil {
		t.Fatalf("list remaining: %v", err)
	}
	for _, inst := range remaining {
		if inst.ReceivedAt.Before(newest) {
			t.Fatalf("fifo left older instance %s unselected", inst.ID)
		}
	}
}

func TestCreateTagCostBasedSelectsCheapest(t *testing.T) {
	svc := newTestService()

	// Add one expensive batch so the cheap seeded instances must win.
	if _, err := svc.ReceiveStock(adminCtx(), domain.StockReceiptRequest{
		SKUCode:      "SKU-BOLT-01",
		Quantity:     3,
		AcquireCents: 99000000,
	}); err != nil {
		t.Fatalf("receive stock: %v", err)
	}

	resp, err := svc.CreateTag(operatorCtx(), domain.TagCreateRequest{
		TagType:      "stock",
		CustomerName: "Gudang",
		Items: []domain.TagItemRequest{
			{ItemID: "SKU-BOLT-01", Quantity: 2, SelectionMethod: "cost_based"},
		},
	})
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}

	held, err := svc.repo.GetInstancesByIDs(context.Background(), resp.Tag.SKUItems[0].SelectedInstanceIDs)
	if err != nil {
		t.Fatalf("lookup held: %v", err)
	}
	for _, inst := range held {
		if inst.AcquireCents == 99000000 {
			t.Fatalf("cost_based selected an expensive instance %s", inst.ID)
		}
	}
}

func TestCreateTagManualRejectsHeldInstance(t *testing.T) {
	svc := newTestService()

	first, err := svc.CreateTag(operatorCtx(), domain.TagCreateRequest{
		TagType:      "reserved",
		CustomerName: "A",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-PAINT-01", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("first tag: %v", err)
	}
	takenID := first.Tag.SKUItems[0].SelectedInstanceIDs[0]

	_, err = svc.CreateTag(operatorCtx(), domain.TagCreateRequest{
		TagType:      "reserved",
		CustomerName: "B",
		Items: []domain.TagItemRequest{
			{ItemID: "SKU-PAINT-01", SelectionMethod: "manual", InstanceIDs: []string{takenID}},
		},
	})
	if !errors.Is(err, store.ErrInstanceConflict) {
		t.Fatalf("expected instance conflict, got %v", err)
	}
}

func TestCreateTagReleasesHoldsOnLaterLineFailure(t *testing.T) {
	svc := newTestService()

	before, err := svc.repo.ListInstancesBySKU(context.Background(), "SKU-GLOVE-01", true, 0)
	if err != nil {
		t.Fatalf("list before: %v", err)
	}

	_, err = svc.CreateTag(operatorCtx(), domain.TagCreateRequest{
		TagType:      "stock",
		CustomerName: "C",
		Items: []domain.TagItemRequest{
			{ItemID: "SKU-GLOVE-01", Quantity: 2},
			{ItemID: "SKU-MISSING-01", Quantity: 1},
		},
	})
	if err == nil {
		t.Fatalf("expected failure for unknown sku")
	}

	after, err := svc.repo.ListInstancesBySKU(context.Background(), "SKU-GLOVE-01", true, 0)
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("aborted tag leaked holds: %d available before, %d after", len(before), len(after))
	}
}

func TestCreateTagRejectsInsufficientStock(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateTag(operatorCtx(), domain.TagCreateRequest{
		TagType:      "stock",
		CustomerName: "D",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-CABLE-01", Quantity: 500}},
	})
	if !errors.Is(err, store.ErrInstanceConflict) {
		t.Fatalf("expected conflict on over-request, got %v", err)
	}
}

func TestCheckoutToolsRejectsNonTool(t *testing.T) {
	svc := newTestService()

	_, err := svc.CheckoutTools(operatorCtx(), domain.ToolCheckoutRequest{
		CustomerName: "Tim B",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-CEMENT-01", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected invalid request for non-tool, got %v", err)
	}
}

func TestFulfillTagPartialThenFull(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	created, err := svc.CreateTag(ctx, domain.TagCreateRequest{
		TagType:      "reserved",
		CustomerName: "PT Karya",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-CEMENT-01", Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}

	partial, err := svc.FulfillTag(ctx, created.Tag.ID, domain.FulfillRequest{
		Items: []domain.FulfillItem{{ItemID: "SKU-CEMENT-01", QuantityFulfilled: 3}},
	})
	if err != nil {
		t.Fatalf("partial fulfill: %v", err)
	}
	if partial.InstancesDeleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", partial.InstancesDeleted)
	}

	mid, err := svc.GetTag(ctx, created.Tag.ID, false)
	if err != nil {
		t.Fatalf("get tag: %v", err)
	}
	if mid.Tag.Status != domain.TagStatusActive {
		t.Fatalf("tag must stay active while instances remain, got %s", mid.Tag.Status)
	}
	if mid.Tag.SKUItems[0].Quantity() != 1 {
		t.Fatalf("expected 1 committed instance left, got %d", mid.Tag.SKUItems[0].Quantity())
	}

	final, err := svc.FulfillTag(ctx, created.Tag.ID, domain.FulfillRequest{
		Items: []domain.FulfillItem{{ItemID: "SKU-CEMENT-01", QuantityFulfilled: 1}},
	})
	if err != nil {
		t.Fatalf("final fulfill: %v", err)
	}
	if len(final.FulfilledTags) != 1 {
		t.Fatalf("expected fulfilled tag, got %+v", final)
	}

	done, err := svc.GetTag(ctx, created.Tag.ID, false)
	if err != nil {
		t.Fatalf("get tag: %v", err)
	}
	if done.Tag.Status != domain.TagStatusFulfilled {
		t.Fatalf("expected fulfilled status, got %s", done.Tag.Status)
	}
	if done.Tag.FulfilledAt == nil {
		t.Fatalf("expected fulfilled_at to be set")
	}
}

func TestFulfillTagOverCommitmentItemizedFailure(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	created, err := svc.CreateTag(ctx, domain.TagCreateRequest{
		TagType:      "stock",
		CustomerName: "E",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-PAINT-01", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}

	result, err := svc.FulfillTag(ctx, created.Tag.ID, domain.FulfillRequest{
		Items: []domain.FulfillItem{{ItemID: "SKU-PAINT-01", QuantityFulfilled: 3}},
	})
	if err != nil {
		t.Fatalf("business failure must not be a transport error: %v", err)
	}
	if len(result.FailedTags) != 1 || result.InstancesDeleted != 0 {
		t.Fatalf("expected itemized failure with nothing consumed, got %+v", result)
	}

	// Nothing consumed: the tag still carries its full commitment.
	after, err := svc.GetTag(ctx, created.Tag.ID, false)
	if err != nil {
		t.Fatalf("get tag: %v", err)
	}
	if after.Tag.SKUItems[0].Quantity() != 2 {
		t.Fatalf("expected commitment untouched, got %d", after.Tag.SKUItems[0].Quantity())
	}
}

func TestFulfillTagSumsRepeatedItemEntries(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	created, err := svc.CreateTag(ctx, domain.TagCreateRequest{
		TagType:      "reserved",
		CustomerName: "PT Dua Baris",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-CEMENT-01", Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}

	// 2+2 across two entries for the same sku must consume all 4.
	result, err := svc.FulfillTag(ctx, created.Tag.ID, domain.FulfillRequest{
		Items: []domain.FulfillItem{
			{ItemID: "SKU-CEMENT-01", QuantityFulfilled: 2},
			{ItemID: "SKU-CEMENT-01", QuantityFulfilled: 2},
		},
	})
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if len(result.FailedTags) != 0 || result.InstancesDeleted != 4 {
		t.Fatalf("expected all 4 units consumed, got %+v", result)
	}

	done, err := svc.GetTag(ctx, created.Tag.ID, false)
	if err != nil {
		t.Fatalf("get tag: %v", err)
	}
	if done.Tag.Status != domain.TagStatusFulfilled {
		t.Fatalf("expected fulfilled after summed consumption, got %s", done.Tag.Status)
	}
}

func TestFulfillTagRepeatedEntriesOverCommitmentFails(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	created, err := svc.CreateTag(ctx, domain.TagCreateRequest{
		TagType:      "stock",
		CustomerName: "PT Lebih",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-BOLT-01", Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}

	// 3+2 sums past the 4 committed: itemized failure, nothing consumed.
	result, err := svc.FulfillTag(ctx, created.Tag.ID, domain.FulfillRequest{
		Items: []domain.FulfillItem{
			{ItemID: "SKU-BOLT-01", QuantityFulfilled: 3},
			{ItemID: "SKU-BOLT-01", QuantityFulfilled: 2},
		},
	})
	if err != nil {
		t.Fatalf("business failure must not be a transport error: %v", err)
	}
	if len(result.FailedTags) != 1 || result.InstancesDeleted != 0 {
		t.Fatalf("expected itemized failure with nothing consumed, got %+v", result)
	}
	if !strings.Contains(result.FailedTags[0].Error, "5 requested") {
		t.Fatalf("failure must report the summed request, got %q", result.FailedTags[0].Error)
	}

	after, err := svc.GetTag(ctx, created.Tag.ID, false)
	if err != nil {
		t.Fatalf("get tag: %v", err)
	}
	if after.Tag.SKUItems[0].Quantity() != 4 {
		t.Fatalf("expected commitment untouched, got %d", after.Tag.SKUItems[0].Quantity())
	}
}

func TestFulfillInactiveTagItemizedFailure(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	created, err := svc.CreateTag(ctx, domain.TagCreateRequest{
		TagType:      "stock",
		CustomerName: "F",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-GLOVE-01", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}
	if _, err := svc.CancelTag(ctx, created.Tag.ID); err != nil {
		t.Fatalf("cancel tag: %v", err)
	}

	result, err := svc.FulfillTag(ctx, created.Tag.ID, domain.FulfillRequest{
		Items: []domain.FulfillItem{{ItemID: "SKU-GLOVE-01", QuantityFulfilled: 1}},
	})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if len(result.FailedTags) != 1 || !strings.Contains(result.FailedTags[0].Error, "cancelled") {
		t.Fatalf("expected cancelled-tag failure, got %+v", result)
	}
}

func TestMarkTagsUsedContinuesPastFailures(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	good, err := svc.CreateTag(ctx, domain.TagCreateRequest{
		TagType:      "broken",
		CustomerName: "QC",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-BOLT-01", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}

	result, err := svc.MarkTagsUsed(ctx, domain.MarkUsedRequest{
		TagIDs: []string{"tag-does-not-exist", good.Tag.ID},
	})
	if err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if len(result.FulfilledTags) != 1 || result.FulfilledTags[0] != good.Tag.ID {
		t.Fatalf("expected %s fulfilled, got %v", good.Tag.ID, result.FulfilledTags)
	}
	if len(result.FailedTags) != 1 || result.FailedTags[0].TagID != "tag-does-not-exist" {
		t.Fatalf("expected missing tag failure, got %v", result.FailedTags)
	}
	if result.InstancesDeleted != 2 {
		t.Fatalf("expected 2 instances deleted, got %d", result.InstancesDeleted)
	}
}

func TestPartialReturnConditions(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	loan, err := svc.CheckoutTools(ctx, domain.ToolCheckoutRequest{
		CustomerName: "Tim Proyek",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-LADDER-01", Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	ids := loan.Tag.SKUItems[0].SelectedInstanceIDs

	// functional: back to the available pool
	r1, err := svc.PartialReturn(ctx, loan.Tag.ID, domain.PartialReturnRequest{
		ReturnedCondition: domain.ConditionFunctional,
		Items:             []domain.ReturnItem{{SKUCode: "SKU-LADDER-01", InstanceIDs: ids[:1]}},
	})
	if err != nil {
		t.Fatalf("functional return: %v", err)
	}
	if r1.LoanClosed || r1.InstancesRemaining != 2 {
		t.Fatalf("expected open loan with 2 remaining, got %+v", r1)
	}

	// needs_maintenance: parked, not available
	if _, err := svc.PartialReturn(ctx, loan.Tag.ID, domain.PartialReturnRequest{
		ReturnedCondition: domain.ConditionNeedsMaintenance,
		Items:             []domain.ReturnItem{{SKUCode: "SKU-LADDER-01", InstanceIDs: ids[1:2]}},
	}); err != nil {
		t.Fatalf("maintenance return: %v", err)
	}

	parked, err := svc.repo.GetInstancesByIDs(ctx, ids[1:2])
	if err != nil {
		t.Fatalf("lookup parked: %v", err)
	}
	inst, ok := parked[ids[1]]
	if !ok || inst.Available || inst.MaintenanceAt == nil {
		t.Fatalf("expected parked maintenance instance, got %+v", inst)
	}

	// broken: consumed, loan closes with the last unit back
	r3, err := svc.PartialReturn(ctx, loan.Tag.ID, domain.PartialReturnRequest{
		ReturnedCondition: domain.ConditionBroken,
		Items:             []domain.ReturnItem{{SKUCode: "SKU-LADDER-01", InstanceIDs: ids[2:]}},
	})
	if err != nil {
		t.Fatalf("broken return: %v", err)
	}
	if !r3.LoanClosed || r3.InstancesRemaining != 0 {
		t.Fatalf("expected closed loan, got %+v", r3)
	}

	gone, err := svc.repo.GetInstancesByIDs(ctx, ids[2:])
	if err != nil {
		t.Fatalf("lookup consumed: %v", err)
	}
	if len(gone) != 0 {
		t.Fatalf("broken instance must be deleted, got %+v", gone)
	}
}

func TestPartialReturnRejectsForeignInstance(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	loan, err := svc.CheckoutTools(ctx, domain.ToolCheckoutRequest{
		CustomerName: "Tim C",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-GRINDER-01", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	_, err = svc.PartialReturn(ctx, loan.Tag.ID, domain.PartialReturnRequest{
		ReturnedCondition: domain.ConditionFunctional,
		Items:             []domain.ReturnItem{{SKUCode: "SKU-GRINDER-01", InstanceIDs: []string{"inst-not-on-loan"}}},
	})
	if !errors.Is(err, store.ErrInstanceConflict) {
		t.Fatalf("expected conflict for foreign instance, got %v", err)
	}
}

func TestCancelTagReleasesHolds(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	before, _ := svc.repo.ListInstancesBySKU(ctx, "SKU-CABLE-01", true, 0)

	created, err := svc.CreateTag(ctx, domain.TagCreateRequest{
		TagType:      "reserved",
		CustomerName: "G",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-CABLE-01", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}
	if _, err := svc.CancelTag(ctx, created.Tag.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	after, _ := svc.repo.ListInstancesBySKU(ctx, "SKU-CABLE-01", true, 0)
	if len(after) != len(before) {
		t.Fatalf("cancel must restore availability: %d before, %d after", len(before), len(after))
	}
}

func TestBatchScanFallsBackToCodeMatch(t *testing.T) {
	svc := newTestService()

	resp, err := svc.BatchScan(context.Background(), domain.BarcodeBatchRequest{
		Barcodes: []string{"8991002001020", "sku-cable-01", "no-such-barcode"},
	})
	if err != nil {
		t.Fatalf("batch scan: %v", err)
	}
	if len(resp.Found) != 2 {
		t.Fatalf("expected 2 found, got %d", len(resp.Found))
	}
	if resp.Found[0].SKU.Code != "SKU-PIPE-01" {
		t.Fatalf("expected barcode match first, got %s", resp.Found[0].SKU.Code)
	}
	if resp.Found[1].SKU.Code != "SKU-CABLE-01" {
		t.Fatalf("expected code fallback match, got %s", resp.Found[1].SKU.Code)
	}
	if len(resp.NotFound) != 1 || resp.NotFound[0] != "no-such-barcode" {
		t.Fatalf("unexpected not_found %v", resp.NotFound)
	}
}

func TestBatchScanUsesCatalogCache(t *testing.T) {
	repo := memory.NewSeeded()
	catalog := &countingCache{entries: map[string]*domain.SKU{}}
	svc := New(repo, catalog, time.Minute, "main-warehouse")

	for i := 0; i < 2; i++ {
		if _, err := svc.BatchScan(context.Background(), domain.BarcodeBatchRequest{
			Barcodes: []string{"8991002001013"},
		}); err != nil {
			t.Fatalf("batch scan %d: %v", i, err)
		}
	}

	if catalog.hits != 1 {
		t.Fatalf("expected second scan to hit the cache once, got %d hits", catalog.hits)
	}
}

type countingCache struct {
	entries map[string]*domain.SKU
	hits    int
}

func (c *countingCache) Get(_ context.Context, barcode string) (*domain.SKU, bool, error) {
	sku, ok := c.entries[barcode]
	if ok {
		c.hits++
	}
	return sku, ok, nil
}

func (c *countingCache) Set(_ context.Context, barcode string, sku *domain.SKU, _ time.Duration) error {
	c.entries[barcode] = sku
	return nil
}

func TestStockSummaryDerivesFromInstances(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	created, err := svc.CreateTag(ctx, domain.TagCreateRequest{
		TagType:      "reserved",
		CustomerName: "H",
		Items:        []domain.TagItemRequest{{ItemID: "SKU-CEMENT-01", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}
	_ = created

	summary, err := svc.StockSummary(ctx)
	if err != nil {
		t.Fatalf("stock summary: %v", err)
	}

	for _, item := range summary.Items {
		if item.SKU.Code != "SKU-CEMENT-01" {
			continue
		}
		if item.OnHand != 8 {
			t.Fatalf("expected 8 on hand, got %d", item.OnHand)
		}
		if item.Held != 2 || item.Available != 6 {
			t.Fatalf("expected 2 held / 6 available, got %d / %d", item.Held, item.Available)
		}
		return
	}
	t.Fatalf("SKU-CEMENT-01 missing from summary")
}

func TestListAuditLogsFiltersByDate(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateSKU(adminCtx(), domain.SKUCreateRequest{
		Code:        "SKU-TAPE-01",
		Description: "Isolasi Listrik",
		Category:    "electrical",
	}); err != nil {
		t.Fatalf("create sku: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	logs, err := svc.ListAuditLogs(context.Background(), today, 50)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) == 0 {
		t.Fatalf("expected at least one audit entry for today")
	}

	old, err := svc.ListAuditLogs(context.Background(), "2001-01-01", 50)
	if err != nil {
		t.Fatalf("list old logs: %v", err)
	}
	if len(old) != 0 {
		t.Fatalf("expected no entries for an ancient date, got %d", len(old))
	}
}
