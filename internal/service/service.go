package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"gudangku/backend/internal/cache"
	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/fulfillment"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo            store.Repository
	catalog         cache.CatalogCache
	catalogTTL      time.Duration
	defaultLocation string
}

func New(repo store.Repository, catalog cache.CatalogCache, catalogTTL time.Duration, defaultLocation string) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if catalogTTL <= 0 {
		catalogTTL = time.Minute
	}
	if defaultLocation == "" {
		defaultLocation = "main-warehouse"
	}

	return &Service{
		repo:            repo,
		catalog:         catalog,
		catalogTTL:      catalogTTL,
		defaultLocation: defaultLocation,
	}
}

// --- SKU catalog ---

func (s *Service) ListSKUs(ctx context.Context, includeInactive bool) ([]domain.SKU, error) {
	return s.repo.ListSKUs(ctx, includeInactive)
}

// AvailableItems satisfies the tag wizard's catalog loader: every active SKU.
func (s *Service) AvailableItems(ctx context.Context) ([]domain.SKU, error) {
	return s.repo.ListSKUs(ctx, false)
}

func (s *Service) CreateSKU(ctx context.Context, req domain.SKUCreateRequest) (domain.SKU, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.SKU{}, fmt.Errorf("admin role required")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.TrimSpace(req.Category)
	req.Barcode = strings.TrimSpace(req.Barcode)

	if req.Code == "" || req.Description == "" {
		return domain.SKU{}, store.ErrInvalidRequest
	}
	if req.UnitCostCents < 0 {
		return domain.SKU{}, store.ErrInvalidRequest
	}

	sku := domain.SKU{
		Code:          req.Code,
		Description:   req.Description,
		Category:      req.Category,
		Barcode:       req.Barcode,
		UnitCostCents: req.UnitCostCents,
		IsTool:        req.IsTool,
		Active:        true,
	}

	created, err := s.repo.CreateSKU(ctx, sku)
	if err != nil {
		return domain.SKU{}, err
	}

	s.logAudit(ctx, "sku_create", "sku", created.Code, fmt.Sprintf("description=%s,is_tool=%t", created.Description, created.IsTool))
	return *created, nil
}

func (s *Service) UpdateSKU(ctx context.Context, code string, req domain.SKUUpdateRequest) (domain.SKU, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.SKU{}, fmt.Errorf("admin role required")
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.SKU{}, store.ErrInvalidRequest
	}

	existing, err := s.repo.GetSKUByCode(ctx, code)
	if err != nil {
		return domain.SKU{}, err
	}

	updated := *existing
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if description == "" {
			return domain.SKU{}, store.ErrInvalidRequest
		}
		updated.Description = description
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.UnitCostCents != nil {
		if *req.UnitCostCents < 0 {
			return domain.SKU{}, store.ErrInvalidRequest
		}
		updated.UnitCostCents = *req.UnitCostCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateSKU(ctx, updated)
	if err != nil {
		return domain.SKU{}, err
	}

	s.logAudit(ctx, "sku_update", "sku", saved.Code, fmt.Sprintf("active=%t,cost=%d", saved.Active, saved.UnitCostCents))
	return *saved, nil
}

// ExportSKUsCSV renders the catalog with derived instance counts. The counts
// come from the instance pool, never from a stored quantity field.
func (s *Service) ExportSKUsCSV(ctx context.Context) (string, error) {
	skus, err := s.repo.ListSKUs(ctx, true)
	if err != nil {
		return "", err
	}

	codes := make([]string, 0, len(skus))
	for _, sku := range skus {
		codes = append(codes, sku.Code)
	}
	counts, err := s.repo.GetStockCounts(ctx, codes)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write([]string{"sku_code", "description", "category", "barcode", "unit_cost_cents", "is_tool", "active", "on_hand", "available"})
	for _, sku := range skus {
		count := counts[sku.Code]
		_ = w.Write([]string{
			sku.Code,
			sku.Description,
			sku.Category,
			sku.Barcode,
			fmt.Sprintf("%d", sku.UnitCostCents),
			fmt.Sprintf("%t", sku.IsTool),
			fmt.Sprintf("%t", sku.Active),
			fmt.Sprintf("%d", count.OnHand),
			fmt.Sprintf("%d", count.Available),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// --- Categories ---

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Category{}, fmt.Errorf("admin role required")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, store.ErrInvalidRequest
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		ID:        xid.New("cat"),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", "category", created.ID, name)
	return *created, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

// --- Stock receipts and instances ---

func (s *Service) ReceiveStock(ctx context.Context, req domain.StockReceiptRequest) (domain.StockReceiptResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.StockReceiptResponse{}, fmt.Errorf("admin role required")
	}

	req.SKUCode = strings.ToUpper(strings.TrimSpace(req.SKUCode))
	req.Location = strings.TrimSpace(req.Location)
	if req.Location == "" {
		req.Location = s.defaultLocation
	}
	if req.SKUCode == "" || req.Quantity < 1 || req.Quantity > 1000 || req.AcquireCents < 0 {
		return domain.StockReceiptResponse{}, store.ErrInvalidRequest
	}

	if _, err := s.repo.GetSKUByCode(ctx, req.SKUCode); err != nil {
		return domain.StockReceiptResponse{}, err
	}

	now := time.Now().UTC()
	instances := make([]domain.InventoryInstance, 0, req.Quantity)
	for i := 0; i < req.Quantity; i++ {
		instances = append(instances, domain.InventoryInstance{
			ID:           xid.New("inst"),
			SKUCode:      req.SKUCode,
			Location:     req.Location,
			AcquireCents: req.AcquireCents,
			Available:    true,
			ReceivedAt:   now,
		})
	}
	if err := s.repo.CreateInstances(ctx, instances); err != nil {
		return domain.StockReceiptResponse{}, err
	}

	receiptID := xid.New("rcpt")
	s.logAudit(ctx, "stock_receive", "receipt", receiptID, fmt.Sprintf("sku=%s,qty=%d,location=%s", req.SKUCode, req.Quantity, req.Location))

	return domain.StockReceiptResponse{ReceiptID: receiptID, Instances: instances}, nil
}

func (s *Service) ListInstances(ctx context.Context, skuCode string, availableOnly bool, limit int) (domain.InstanceListResponse, error) {
	skuCode = strings.ToUpper(strings.TrimSpace(skuCode))
	if skuCode == "" {
		return domain.InstanceListResponse{}, store.ErrInvalidRequest
	}
	instances, err := s.repo.ListInstancesBySKU(ctx, skuCode, availableOnly, limit)
	if err != nil {
		return domain.InstanceListResponse{}, err
	}
	return domain.InstanceListResponse{Instances: instances}, nil
}

func (s *Service) StockSummary(ctx context.Context) (domain.StockSummaryResponse, error) {
	skus, err := s.repo.ListSKUs(ctx, false)
	if err != nil {
		return domain.StockSummaryResponse{}, err
	}
	codes := make([]string, 0, len(skus))
	for _, sku := range skus {
		codes = append(codes, sku.Code)
	}
	counts, err := s.repo.GetStockCounts(ctx, codes)
	if err != nil {
		return domain.StockSummaryResponse{}, err
	}

	items := make([]domain.StockSummary, 0, len(skus))
	for _, sku := range skus {
		count := counts[sku.Code]
		items = append(items, domain.StockSummary{
			SKU:           sku,
			OnHand:        count.OnHand,
			Held:          count.Held,
			InMaintenance: count.InMaintenance,
			Available:     count.Available,
		})
	}
	return domain.StockSummaryResponse{Items: items}, nil
}

// --- Tags ---

func isKnownTagType(tagType string) bool {
	switch tagType {
	case domain.TagTypeStock, domain.TagTypeReserved, domain.TagTypeBroken, domain.TagTypeImperfect:
		return true
	}
	return false
}

func (s *Service) CreateTag(ctx context.Context, req domain.TagCreateRequest) (domain.TagResponse, error) {
	req.TagType = strings.ToLower(strings.TrimSpace(req.TagType))
	if req.TagType == "" {
		req.TagType = domain.TagTypeStock
	}
	if !isKnownTagType(req.TagType) {
		return domain.TagResponse{}, store.ErrInvalidRequest
	}
	return s.createTagOfType(ctx, req.TagType, req.CustomerName, req.Notes, req.DueDate, req.ProjectName, req.Items, false)
}

// CheckoutTools opens a loan tag. Every line must reference a tool SKU.
func (s *Service) CheckoutTools(ctx context.Context, req domain.ToolCheckoutRequest) (domain.TagResponse, error) {
	return s.createTagOfType(ctx, domain.TagTypeLoan, req.CustomerName, req.Notes, req.DueDate, req.ProjectName, req.Items, true)
}

func (s *Service) createTagOfType(ctx context.Context, tagType, customerName, notes, dueDate, projectName string, items []domain.TagItemRequest, toolsOnly bool) (domain.TagResponse, error) {
	customerName = strings.TrimSpace(customerName)
	if customerName == "" || len(items) == 0 {
		return domain.TagResponse{}, store.ErrInvalidRequest
	}

	var due *time.Time
	if strings.TrimSpace(dueDate) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(dueDate))
		if err != nil {
			return domain.TagResponse{}, store.ErrInvalidRequest
		}
		d := parsed.UTC()
		due = &d
	}

	tagID := xid.New("tag")
	lines := make([]domain.SKUItemLine, 0, len(items))
	held := make([]string, 0, 16)

	release := func() {
		if len(held) > 0 {
			if err := s.repo.ReleaseInstances(ctx, held, nil); err != nil {
				log.Printf("[service] WARN: failed to release instances for aborted tag %s: %v", tagID, err)
			}
		}
	}

	for _, item := range items {
		code := strings.ToUpper(strings.TrimSpace(item.ItemID))
		if code == "" {
			release()
			return domain.TagResponse{}, store.ErrInvalidRequest
		}
		sku, err := s.repo.GetSKUByCode(ctx, code)
		if err != nil {
			release()
			return domain.TagResponse{}, fmt.Errorf("sku %s: %w", code, err)
		}
		if !sku.Active {
			release()
			return domain.TagResponse{}, fmt.Errorf("%w: sku %s is inactive", store.ErrInvalidRequest, code)
		}
		if toolsOnly && !sku.IsTool {
			release()
			return domain.TagResponse{}, fmt.Errorf("%w: sku %s is not a tool", store.ErrInvalidRequest, code)
		}

		method := strings.ToLower(strings.TrimSpace(item.SelectionMethod))
		if method == "" {
			if len(item.InstanceIDs) > 0 {
				method = domain.SelectionManual
			} else {
				method = domain.SelectionAuto
			}
		}

		ids, err := s.resolveInstances(ctx, *sku, method, item.Quantity, item.InstanceIDs)
		if err != nil {
			release()
			return domain.TagResponse{}, err
		}
		if err := s.repo.HoldInstances(ctx, tagID, ids); err != nil {
			release()
			return domain.TagResponse{}, err
		}
		held = append(held, ids...)

		lines = append(lines, domain.SKUItemLine{
			SKU: domain.SKURef{
				Code:        sku.Code,
				Description: sku.Description,
				Category:    sku.Category,
				Populated:   true,
			},
			SelectedInstanceIDs: ids,
			SelectionMethod:     method,
			Notes:               strings.TrimSpace(item.Notes),
		})
	}

	actor, _ := ActorFromContext(ctx)
	tag := domain.Tag{
		ID:           tagID,
		CustomerName: customerName,
		TagType:      tagType,
		Status:       domain.TagStatusActive,
		Notes:        strings.TrimSpace(notes),
		DueDate:      due,
		ProjectName:  strings.TrimSpace(projectName),
		SKUItems:     lines,
		CreatedBy:    actor.Username,
		CreatedAt:    time.Now().UTC(),
	}

	created, err := s.repo.CreateTag(ctx, tag)
	if err != nil {
		release()
		return domain.TagResponse{}, err
	}

	s.logAudit(ctx, "tag_create", "tag", created.ID, fmt.Sprintf("type=%s,customer=%s,lines=%d,committed=%d", tagType, customerName, len(lines), fulfillment.CommittedCount(*created)))
	return domain.TagResponse{Tag: *created}, nil
}

// resolveInstances picks the concrete instances for one tag line according
// to the selection method. Manual selections are validated against the pool;
// the rest draw from available instances ordered by receipt time (fifo/auto)
// or acquisition cost (cost_based).
func (s *Service) resolveInstances(ctx context.Context, sku domain.SKU, method string, quantity int, manualIDs []string) ([]string, error) {
	if method == domain.SelectionManual {
		if len(manualIDs) == 0 {
			return nil, store.ErrInvalidRequest
		}
		found, err := s.repo.GetInstancesByIDs(ctx, manualIDs)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(manualIDs))
		for _, id := range manualIDs {
			inst, ok := found[id]
			if !ok {
				return nil, fmt.Errorf("%w: instance %s not found", store.ErrInstanceConflict, id)
			}
			if inst.SKUCode != sku.Code {
				return nil, fmt.Errorf("%w: instance %s belongs to %s", store.ErrInstanceConflict, id, inst.SKUCode)
			}
			if !inst.Available || inst.HeldByTagID != "" {
				return nil, fmt.Errorf("%w: instance %s is not available", store.ErrInstanceConflict, id)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	if quantity < 1 {
		return nil, store.ErrInvalidRequest
	}

	available, err := s.repo.ListInstancesBySKU(ctx, sku.Code, true, 0)
	if err != nil {
		return nil, err
	}
	if len(available) < quantity {
		return nil, fmt.Errorf("%w: sku %s has %d available, %d requested", store.ErrInstanceConflict, sku.Code, len(available), quantity)
	}

	switch method {
	case domain.SelectionAuto, domain.SelectionFIFO:
		sort.SliceStable(available, func(i, j int) bool {
			return available[i].ReceivedAt.Before(available[j].ReceivedAt)
		})
	case domain.SelectionCostBased:
		sort.SliceStable(available, func(i, j int) bool {
			return available[i].AcquireCents < available[j].AcquireCents
		})
	default:
		return nil, store.ErrInvalidRequest
	}

	ids := make([]string, 0, quantity)
	for _, inst := range available[:quantity] {
		ids = append(ids, inst.ID)
	}
	return ids, nil
}

// GetTag returns the tag with sku_items either populated or reduced to bare
// code references, matching both shapes the read contract allows.
func (s *Service) GetTag(ctx context.Context, tagID string, populate bool) (domain.TagResponse, error) {
	tagID = strings.TrimSpace(tagID)
	if tagID == "" {
		return domain.TagResponse{}, store.ErrInvalidRequest
	}
	tag, err := s.repo.GetTagByID(ctx, tagID)
	if err != nil {
		return domain.TagResponse{}, err
	}

	result := *tag
	if !populate {
		stripped := make([]domain.SKUItemLine, len(result.SKUItems))
		copy(stripped, result.SKUItems)
		for i := range stripped {
			stripped[i].SKU = domain.SKURef{Code: stripped[i].SKU.Code}
		}
		result.SKUItems = stripped
	}
	return domain.TagResponse{Tag: result}, nil
}

func (s *Service) ListTags(ctx context.Context, status string, tagType string, limit int) (domain.TagListResponse, error) {
	if limit < 1 {
		limit = 200
	}
	tags, err := s.repo.ListTags(ctx, strings.ToLower(strings.TrimSpace(status)), strings.ToLower(strings.TrimSpace(tagType)), limit)
	if err != nil {
		return domain.TagListResponse{}, err
	}
	return domain.TagListResponse{Tags: tags}, nil
}

func (s *Service) UpdateTag(ctx context.Context, tagID string, req domain.TagUpdateRequest) (domain.TagResponse, error) {
	tagID = strings.TrimSpace(tagID)
	if tagID == "" {
		return domain.TagResponse{}, store.ErrInvalidRequest
	}

	tag, err := s.repo.GetTagByID(ctx, tagID)
	if err != nil {
		return domain.TagResponse{}, err
	}
	if tag.Status != domain.TagStatusActive {
		return domain.TagResponse{}, fmt.Errorf("%w: tag %s is %s", store.ErrInvalidRequest, tagID, tag.Status)
	}

	updated := *tag
	if req.CustomerName != nil {
		name := strings.TrimSpace(*req.CustomerName)
		if name == "" {
			return domain.TagResponse{}, store.ErrInvalidRequest
		}
		updated.CustomerName = name
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.ProjectName != nil {
		updated.ProjectName = strings.TrimSpace(*req.ProjectName)
	}
	if req.DueDate != nil {
		if strings.TrimSpace(*req.DueDate) == "" {
			updated.DueDate = nil
		} else {
			parsed, err := time.Parse("2006-01-02", strings.TrimSpace(*req.DueDate))
			if err != nil {
				return domain.TagResponse{}, store.ErrInvalidRequest
			}
			d := parsed.UTC()
			updated.DueDate = &d
		}
	}

	if len(req.Items) > 0 {
		// Replacing lines releases the old holds first; the committed
		// quantity is whatever instance set the new lines resolve to.
		oldIDs := make([]string, 0, 16)
		for _, ids := range fulfillment.LineInstances(*tag) {
			oldIDs = append(oldIDs, ids...)
		}
		if len(oldIDs) > 0 {
			if err := s.repo.ReleaseInstances(ctx, oldIDs, nil); err != nil {
				return domain.TagResponse{}, err
			}
		}

		lines := make([]domain.SKUItemLine, 0, len(req.Items))
		for _, item := range req.Items {
			code := strings.ToUpper(strings.TrimSpace(item.ItemID))
			sku, err := s.repo.GetSKUByCode(ctx, code)
			if err != nil {
				return domain.TagResponse{}, fmt.Errorf("sku %s: %w", code, err)
			}
			method := strings.ToLower(strings.TrimSpace(item.SelectionMethod))
			if method == "" {
				if len(item.InstanceIDs) > 0 {
					method = domain.SelectionManual
				} else {
					method = domain.SelectionAuto
				}
			}
			ids, err := s.resolveInstances(ctx, *sku, method, item.Quantity, item.InstanceIDs)
			if err != nil {
				return domain.TagResponse{}, err
			}
			if err := s.repo.HoldInstances(ctx, tagID, ids); err != nil {
				return domain.TagResponse{}, err
			}
			lines = append(lines, domain.SKUItemLine{
				SKU: domain.SKURef{
					Code:        sku.Code,
					Description: sku.Description,
					Category:    sku.Category,
					Populated:   true,
				},
				SelectedInstanceIDs: ids,
				SelectionMethod:     method,
				Notes:               strings.TrimSpace(item.Notes),
			})
		}
		updated.SKUItems = lines
	}

	saved, err := s.repo.UpdateTag(ctx, updated)
	if err != nil {
		return domain.TagResponse{}, err
	}

	s.logAudit(ctx, "tag_update", "tag", saved.ID, fmt.Sprintf("lines=%d,committed=%d", len(saved.SKUItems), fulfillment.CommittedCount(*saved)))
	return domain.TagResponse{Tag: *saved}, nil
}

func (s *Service) CancelTag(ctx context.Context, tagID string) (domain.TagResponse, error) {
	tagID = strings.TrimSpace(tagID)
	if tagID == "" {
		return domain.TagResponse{}, store.ErrInvalidRequest
	}

	tag, err := s.repo.GetTagByID(ctx, tagID)
	if err != nil {
		return domain.TagResponse{}, err
	}
	if tag.Status != domain.TagStatusActive {
		return domain.TagResponse{}, fmt.Errorf("%w: tag %s is %s", store.ErrInvalidRequest, tagID, tag.Status)
	}

	ids := make([]string, 0, 16)
	for _, lineIDs := range fulfillment.LineInstances(*tag) {
		ids = append(ids, lineIDs...)
	}
	if len(ids) > 0 {
		if err := s.repo.ReleaseInstances(ctx, ids, nil); err != nil {
			return domain.TagResponse{}, err
		}
	}

	updated := *tag
	updated.Status = domain.TagStatusCancelled
	saved, err := s.repo.UpdateTag(ctx, updated)
	if err != nil {
		return domain.TagResponse{}, err
	}

	s.logAudit(ctx, "tag_cancel", "tag", saved.ID, fmt.Sprintf("released=%d", len(ids)))
	return domain.TagResponse{Tag: *saved}, nil
}

// --- Fulfillment reconciliation ---

// FulfillTag consumes the committed instances for the requested quantities.
// Per-tag business failures (wrong status, over-fulfillment) come back as
// itemized failed_tags entries on a transport-successful result; only
// malformed requests are errors.
func (s *Service) FulfillTag(ctx context.Context, tagID string, req domain.FulfillRequest) (domain.FulfillmentResult, error) {
	tagID = strings.TrimSpace(tagID)
	if tagID == "" || len(req.Items) == 0 {
		return domain.FulfillmentResult{}, store.ErrInvalidRequest
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ItemID) == "" || item.QuantityFulfilled < 1 {
			return domain.FulfillmentResult{}, store.ErrInvalidRequest
		}
	}

	result := domain.FulfillmentResult{
		FulfilledTags:    []string{},
		FailedTags:       []domain.FailedTag{},
		UpdatedInventory: []domain.InventoryUpdate{},
	}

	tag, err := s.repo.GetTagByID(ctx, tagID)
	if err != nil {
		return domain.FulfillmentResult{}, err
	}
	if tag.Status != domain.TagStatusActive {
		result.FailedTags = append(result.FailedTags, domain.FailedTag{TagID: tagID, Error: fmt.Sprintf("tag is %s", tag.Status)})
		return result, nil
	}

	// Validate every requested line before touching anything: fulfillment
	// of one tag is all-or-nothing.
	lineByCode := make(map[string]*domain.SKUItemLine, len(tag.SKUItems))
	for i := range tag.SKUItems {
		lineByCode[tag.SKUItems[i].SKU.Code] = &tag.SKUItems[i]
	}

	// Repeated item ids in one request are summed, so the total per SKU is
	// what gets checked against the committed count.
	requested := make(map[string]int, len(req.Items))
	for _, item := range req.Items {
		code := strings.ToUpper(strings.TrimSpace(item.ItemID))
		line, ok := lineByCode[code]
		if !ok {
			result.FailedTags = append(result.FailedTags, domain.FailedTag{TagID: tagID, Error: fmt.Sprintf("sku %s is not on this tag", code)})
			return result, nil
		}
		requested[code] += item.QuantityFulfilled
		committed := len(line.SelectedInstanceIDs)
		if requested[code] > committed {
			result.FailedTags = append(result.FailedTags, domain.FailedTag{TagID: tagID, Error: fmt.Sprintf("sku %s: %d requested, %d committed", code, requested[code], committed)})
			return result, nil
		}
	}

	consumeBySKU := make(map[string][]string, len(requested))
	for code, quantity := range requested {
		consumeBySKU[code] = lineByCode[code].SelectedInstanceIDs[:quantity]
	}

	deleted := 0
	for code, ids := range consumeBySKU {
		n, err := s.repo.DeleteInstances(ctx, ids)
		if err != nil {
			return domain.FulfillmentResult{}, err
		}
		deleted += n

		line := lineByCode[code]
		line.SelectedInstanceIDs = line.SelectedInstanceIDs[len(ids):]
	}

	remainingLines := make([]domain.SKUItemLine, 0, len(tag.SKUItems))
	for _, line := range tag.SKUItems {
		if len(line.SelectedInstanceIDs) > 0 {
			remainingLines = append(remainingLines, line)
		}
	}
	tag.SKUItems = remainingLines
	if len(remainingLines) == 0 {
		now := time.Now().UTC()
		tag.Status = domain.TagStatusFulfilled
		tag.FulfilledAt = &now
	}
	if _, err := s.repo.UpdateTag(ctx, *tag); err != nil {
		return domain.FulfillmentResult{}, err
	}

	updates, err := s.inventoryUpdates(ctx, consumeBySKU)
	if err != nil {
		return domain.FulfillmentResult{}, err
	}
	result.FulfilledTags = append(result.FulfilledTags, tagID)
	result.UpdatedInventory = updates
	result.InstancesDeleted = deleted

	s.logAudit(ctx, "tag_fulfill", "tag", tagID, fmt.Sprintf("instances_deleted=%d,notes=%s", deleted, req.Notes))
	return result, nil
}

// MarkTagsUsed is the coarse bulk path: whole tags, not per-instance.
// Failures are collected per tag and never abort the batch.
func (s *Service) MarkTagsUsed(ctx context.Context, req domain.MarkUsedRequest) (domain.FulfillmentResult, error) {
	if len(req.TagIDs) == 0 {
		return domain.FulfillmentResult{}, store.ErrInvalidRequest
	}

	result := domain.FulfillmentResult{
		FulfilledTags:    []string{},
		FailedTags:       []domain.FailedTag{},
		UpdatedInventory: []domain.InventoryUpdate{},
	}
	consumedBySKU := make(map[string][]string)

	for _, rawID := range req.TagIDs {
		tagID := strings.TrimSpace(rawID)
		if tagID == "" {
			continue
		}
		tag, err := s.repo.GetTagByID(ctx, tagID)
		if err != nil {
			result.FailedTags = append(result.FailedTags, domain.FailedTag{TagID: tagID, Error: "tag not found"})
			continue
		}
		if tag.Status != domain.TagStatusActive {
			result.FailedTags = append(result.FailedTags, domain.FailedTag{TagID: tagID, Error: fmt.Sprintf("tag is %s", tag.Status)})
			continue
		}

		tagDeleted := 0
		failed := false
		for code, ids := range fulfillment.LineInstances(*tag) {
			n, err := s.repo.DeleteInstances(ctx, ids)
			if err != nil {
				result.FailedTags = append(result.FailedTags, domain.FailedTag{TagID: tagID, Error: err.Error()})
				failed = true
				break
			}
			tagDeleted += n
			consumedBySKU[code] = append(consumedBySKU[code], ids...)
		}
		if failed {
			continue
		}

		now := time.Now().UTC()
		tag.Status = domain.TagStatusFulfilled
		tag.FulfilledAt = &now
		tag.SKUItems = nil
		if _, err := s.repo.UpdateTag(ctx, *tag); err != nil {
			result.FailedTags = append(result.FailedTags, domain.FailedTag{TagID: tagID, Error: err.Error()})
			continue
		}

		result.FulfilledTags = append(result.FulfilledTags, tagID)
		result.InstancesDeleted += tagDeleted
	}

	updates, err := s.inventoryUpdates(ctx, consumedBySKU)
	if err != nil {
		return domain.FulfillmentResult{}, err
	}
	result.UpdatedInventory = updates

	s.logAudit(ctx, "tags_mark_used", "tag", strings.Join(result.FulfilledTags, ","), fmt.Sprintf("fulfilled=%d,failed=%d,notes=%s", len(result.FulfilledTags), len(result.FailedTags), req.Notes))
	return result, nil
}

// PartialReturn hands a subset of a loan's instances back. Functional units
// rejoin the available pool, needs_maintenance units are parked until
// serviced, broken units are consumed. The loan closes when its last
// instance comes back.
func (s *Service) PartialReturn(ctx context.Context, loanTagID string, req domain.PartialReturnRequest) (domain.PartialReturnResponse, error) {
	loanTagID = strings.TrimSpace(loanTagID)
	condition := strings.ToLower(strings.TrimSpace(req.ReturnedCondition))
	if loanTagID == "" || len(req.Items) == 0 {
		return domain.PartialReturnResponse{}, store.ErrInvalidRequest
	}
	switch condition {
	case domain.ConditionFunctional, domain.ConditionNeedsMaintenance, domain.ConditionBroken:
	default:
		return domain.PartialReturnResponse{}, store.ErrInvalidRequest
	}

	tag, err := s.repo.GetTagByID(ctx, loanTagID)
	if err != nil {
		return domain.PartialReturnResponse{}, err
	}
	if tag.TagType != domain.TagTypeLoan {
		return domain.PartialReturnResponse{}, fmt.Errorf("%w: tag %s is not a loan", store.ErrInvalidRequest, loanTagID)
	}
	if tag.Status != domain.TagStatusActive {
		return domain.PartialReturnResponse{}, fmt.Errorf("%w: loan %s is %s", store.ErrInvalidRequest, loanTagID, tag.Status)
	}

	pool := fulfillment.LineInstances(*tag)
	returnIDs := make([]string, 0, 16)
	returnBySKU := make(map[string][]string, len(req.Items))
	for _, item := range req.Items {
		code := strings.ToUpper(strings.TrimSpace(item.SKUCode))
		if code == "" || len(item.InstanceIDs) == 0 {
			return domain.PartialReturnResponse{}, store.ErrInvalidRequest
		}
		onLoan := make(map[string]struct{}, len(pool[code]))
		for _, id := range pool[code] {
			onLoan[id] = struct{}{}
		}
		for _, id := range item.InstanceIDs {
			if _, ok := onLoan[id]; !ok {
				return domain.PartialReturnResponse{}, fmt.Errorf("%w: instance %s is not on loan %s under sku %s", store.ErrInstanceConflict, id, loanTagID, code)
			}
			returnIDs = append(returnIDs, id)
			returnBySKU[code] = append(returnBySKU[code], id)
		}
	}

	switch condition {
	case domain.ConditionFunctional:
		if err := s.repo.ReleaseInstances(ctx, returnIDs, nil); err != nil {
			return domain.PartialReturnResponse{}, err
		}
	case domain.ConditionNeedsMaintenance:
		now := time.Now().UTC()
		if err := s.repo.ReleaseInstances(ctx, returnIDs, &now); err != nil {
			return domain.PartialReturnResponse{}, err
		}
	case domain.ConditionBroken:
		if _, err := s.repo.DeleteInstances(ctx, returnIDs); err != nil {
			return domain.PartialReturnResponse{}, err
		}
	}

	returned := make(map[string]struct{}, len(returnIDs))
	for _, id := range returnIDs {
		returned[id] = struct{}{}
	}
	remainingLines := make([]domain.SKUItemLine, 0, len(tag.SKUItems))
	for _, line := range tag.SKUItems {
		kept := make([]string, 0, len(line.SelectedInstanceIDs))
		for _, id := range line.SelectedInstanceIDs {
			if _, gone := returned[id]; !gone {
				kept = append(kept, id)
			}
		}
		if len(kept) > 0 {
			line.SelectedInstanceIDs = kept
			remainingLines = append(remainingLines, line)
		}
	}
	tag.SKUItems = remainingLines

	closed := len(remainingLines) == 0
	if closed {
		now := time.Now().UTC()
		tag.Status = domain.TagStatusFulfilled
		tag.FulfilledAt = &now
	}
	if _, err := s.repo.UpdateTag(ctx, *tag); err != nil {
		return domain.PartialReturnResponse{}, err
	}

	updates, err := s.inventoryUpdates(ctx, returnBySKU)
	if err != nil {
		return domain.PartialReturnResponse{}, err
	}

	s.logAudit(ctx, "tool_partial_return", "tag", loanTagID, fmt.Sprintf("returned=%d,condition=%s,closed=%t,notes=%s", len(returnIDs), condition, closed, req.ReturnNotes))

	return domain.PartialReturnResponse{
		LoanTagID:          loanTagID,
		InstancesReturned:  len(returnIDs),
		InstancesRemaining: fulfillment.CommittedCount(*tag),
		LoanClosed:         closed,
		UpdatedInventory:   updates,
	}, nil
}

func (s *Service) inventoryUpdates(ctx context.Context, touchedBySKU map[string][]string) ([]domain.InventoryUpdate, error) {
	codes := make([]string, 0, len(touchedBySKU))
	for code := range touchedBySKU {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	counts, err := s.repo.GetStockCounts(ctx, codes)
	if err != nil {
		return nil, err
	}

	updates := make([]domain.InventoryUpdate, 0, len(codes))
	for _, code := range codes {
		updates = append(updates, domain.InventoryUpdate{
			SKUCode:          code,
			QuantityReduced:  len(touchedBySKU[code]),
			QuantityOnHand:   counts[code].OnHand,
			InstancesDeleted: len(touchedBySKU[code]),
		})
	}
	return updates, nil
}

// --- Barcode scanning ---

func (s *Service) BatchScan(ctx context.Context, req domain.BarcodeBatchRequest) (domain.BarcodeBatchResponse, error) {
	if len(req.Barcodes) == 0 {
		return domain.BarcodeBatchResponse{}, store.ErrInvalidRequest
	}

	resp := domain.BarcodeBatchResponse{
		Found:    []domain.BarcodeMatch{},
		NotFound: []string{},
	}

	for _, raw := range req.Barcodes {
		barcode := strings.TrimSpace(raw)
		if barcode == "" {
			continue
		}

		if cached, hit, err := s.catalog.Get(ctx, barcode); err == nil && hit {
			resp.Found = append(resp.Found, domain.BarcodeMatch{Barcode: barcode, SKU: *cached})
			continue
		}

		sku, err := s.repo.GetSKUByBarcode(ctx, barcode)
		if err != nil {
			// Scan guns sometimes read the SKU code label instead of the
			// EAN, so fall back to a direct code match.
			sku, err = s.repo.GetSKUByCode(ctx, strings.ToUpper(barcode))
		}
		if err != nil {
			resp.NotFound = append(resp.NotFound, barcode)
			continue
		}

		if err := s.catalog.Set(ctx, barcode, sku, s.catalogTTL); err != nil {
			log.Printf("[service] WARN: failed to cache barcode %s: %v", barcode, err)
		}
		resp.Found = append(resp.Found, domain.BarcodeMatch{Barcode: barcode, SKU: *sku})
	}

	return resp, nil
}

// --- Audit ---

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidRequest
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}
