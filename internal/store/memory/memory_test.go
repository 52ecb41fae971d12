package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
)

func seedInstances(t *testing.T, s *Store, code string, n int) []string {
	t.Helper()

	if _, err := s.CreateSKU(context.Background(), domain.SKU{Code: code, Description: "test sku", Active: true}); err != nil {
		t.Fatalf("create sku: %v", err)
	}

	ids := make([]string, 0, n)
	instances := make([]domain.InventoryInstance, 0, n)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < n; i++ {
		id := code + "-inst-" + string(rune('a'+i))
		ids = append(ids, id)
		instances = append(instances, domain.InventoryInstance{
			ID:         id,
			SKUCode:    code,
			Location:   "main-warehouse",
			Available:  true,
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	if err := s.CreateInstances(context.Background(), instances); err != nil {
		t.Fatalf("create instances: %v", err)
	}
	return ids
}

func TestHoldInstancesIsAllOrNothing(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	ids := seedInstances(t, s, "SKU-T1", 3)

	if err := s.HoldInstances(ctx, "tag-1", ids[:2]); err != nil {
		t.Fatalf("hold: %v", err)
	}

	// One id already held: the whole call must fail and leave ids[2] free.
	err := s.HoldInstances(ctx, "tag-2", []string{ids[1], ids[2]})
	if !errors.Is(err, store.ErrInstanceConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, err := s.GetInstancesByIDs(ctx, ids)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if inst := got[ids[2]]; !inst.Available || inst.HeldByTagID != "" {
		t.Fatalf("failed hold must not touch any instance, got %+v", inst)
	}
	if inst := got[ids[1]]; inst.HeldByTagID != "tag-1" {
		t.Fatalf("existing hold must survive, got %+v", inst)
	}
}

func TestReleaseInstancesMaintenancePath(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	ids := seedInstances(t, s, "SKU-T2", 2)

	if err := s.HoldInstances(ctx, "tag-1", ids); err != nil {
		t.Fatalf("hold: %v", err)
	}

	now := time.Now().UTC()
	if err := s.ReleaseInstances(ctx, ids[:1], &now); err != nil {
		t.Fatalf("release to maintenance: %v", err)
	}
	if err := s.ReleaseInstances(ctx, ids[1:], nil); err != nil {
		t.Fatalf("release to pool: %v", err)
	}

	got, _ := s.GetInstancesByIDs(ctx, ids)
	parked := got[ids[0]]
	if parked.Available || parked.MaintenanceAt == nil || parked.HeldByTagID != "" {
		t.Fatalf("maintenance release wrong: %+v", parked)
	}
	free := got[ids[1]]
	if !free.Available || free.MaintenanceAt != nil || free.HeldByTagID != "" {
		t.Fatalf("pool release wrong: %+v", free)
	}

	// Servicing done: a plain release clears the maintenance mark.
	if err := s.ReleaseInstances(ctx, ids[:1], nil); err != nil {
		t.Fatalf("release after service: %v", err)
	}
	got, _ = s.GetInstancesByIDs(ctx, ids[:1])
	if inst := got[ids[0]]; !inst.Available || inst.MaintenanceAt != nil {
		t.Fatalf("serviced instance must rejoin pool, got %+v", inst)
	}
}

func TestStockCountsDeriveFromInstanceStates(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	ids := seedInstances(t, s, "SKU-T3", 5)

	if err := s.HoldInstances(ctx, "tag-1", ids[:2]); err != nil {
		t.Fatalf("hold: %v", err)
	}
	now := time.Now().UTC()
	if err := s.ReleaseInstances(ctx, ids[2:3], &now); err != nil {
		t.Fatalf("park: %v", err)
	}
	if n, err := s.DeleteInstances(ctx, ids[3:4]); err != nil || n != 1 {
		t.Fatalf("delete: n=%d err=%v", n, err)
	}

	counts, err := s.GetStockCounts(ctx, []string{"SKU-T3", "SKU-NONE"})
	if err != nil {
		t.Fatalf("counts: %v", err)
	}

	got := counts["SKU-T3"]
	want := domain.StockCounts{OnHand: 4, Held: 2, InMaintenance: 1, Available: 1}
	if got != want {
		t.Fatalf("counts mismatch: got %+v want %+v", got, want)
	}
	if zero := counts["SKU-NONE"]; zero != (domain.StockCounts{}) {
		t.Fatalf("unknown sku must report zero counts, got %+v", zero)
	}
}

func TestDeleteInstancesCountsOnlyExisting(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	ids := seedInstances(t, s, "SKU-T4", 2)

	n, err := s.DeleteInstances(ctx, append(ids, "inst-ghost"))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
}

func TestListInstancesOrdersByReceiptTime(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedInstances(t, s, "SKU-T5", 4)

	out, err := s.ListInstancesBySKU(ctx, "SKU-T5", true, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := 1; i < len(out); i++ {
		if out[i].ReceivedAt.Before(out[i-1].ReceivedAt) {
			t.Fatalf("instances out of order at %d", i)
		}
	}

	limited, err := s.ListInstancesBySKU(ctx, "SKU-T5", true, 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit not applied, got %d", len(limited))
	}
}

func TestTagDeepCopyIsolation(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	ids := seedInstances(t, s, "SKU-T6", 2)

	tag := domain.Tag{
		ID:           "tag-copy",
		CustomerName: "X",
		TagType:      domain.TagTypeStock,
		Status:       domain.TagStatusActive,
		SKUItems: []domain.SKUItemLine{
			{SKU: domain.SKURef{Code: "SKU-T6"}, SelectedInstanceIDs: ids},
		},
		CreatedAt: time.Now().UTC(),
	}
	created, err := s.CreateTag(ctx, tag)
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}

	// Mutating the returned copy must not leak into the store.
	created.SKUItems[0].SelectedInstanceIDs[0] = "inst-tampered"

	fetched, err := s.GetTagByID(ctx, "tag-copy")
	if err != nil {
		t.Fatalf("get tag: %v", err)
	}
	if fetched.SKUItems[0].SelectedInstanceIDs[0] != ids[0] {
		t.Fatalf("store leaked a shared slice")
	}
}

func TestSeededStoreShape(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	skus, err := s.ListSKUs(ctx, false)
	if err != nil {
		t.Fatalf("list skus: %v", err)
	}
	if len(skus) != 9 {
		t.Fatalf("expected 9 seeded skus, got %d", len(skus))
	}

	tools := 0
	for _, sku := range skus {
		counts, err := s.GetStockCounts(ctx, []string{sku.Code})
		if err != nil {
			t.Fatalf("counts: %v", err)
		}
		want := 8
		if sku.IsTool {
			want = 3
			tools++
		}
		if counts[sku.Code].Available != want {
			t.Fatalf("sku %s: expected %d available, got %d", sku.Code, want, counts[sku.Code].Available)
		}
	}
	if tools != 3 {
		t.Fatalf("expected 3 tool skus, got %d", tools)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected seeded admin and operator, got %d users", len(users))
	}
}
