package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	skusByCode      map[string]domain.SKU
	instancesByID   map[string]domain.InventoryInstance
	tagsByID        map[string]domain.Tag
	categoriesByID  map[string]domain.Category
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"operator", operatorPwd, "operator"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	skus := []domain.SKU{
		{Code: "SKU-CABLE-01", Description: "Kabel NYM 3x2.5mm 50m", Category: "electrical", Barcode: "8991002001013", UnitCostCents: 68500000, Active: true},
		{Code: "SKU-PIPE-01", Description: "Pipa PVC 3/4in 4m", Category: "plumbing", Barcode: "8991002001020", UnitCostCents: 3200000, Active: true},
		{Code: "SKU-CEMENT-01", Description: "Semen 40kg", Category: "material", Barcode: "8991002001037", UnitCostCents: 5800000, Active: true},
		{Code: "SKU-PAINT-01", Description: "Cat Tembok 5kg", Category: "material", Barcode: "8991002001044", UnitCostCents: 9400000, Active: true},
		{Code: "SKU-BOLT-01", Description: "Baut M8x40 (100 pcs)", Category: "fastener", Barcode: "8991002001051", UnitCostCents: 4500000, Active: true},
		{Code: "SKU-GLOVE-01", Description: "Sarung Tangan Kerja", Category: "safety", Barcode: "8991002001068", UnitCostCents: 1800000, Active: true},
		{Code: "SKU-DRILL-01", Description: "Bor Listrik 650W", Category: "tools", Barcode: "8991002001075", UnitCostCents: 42000000, IsTool: true, Active: true},
		{Code: "SKU-LADDER-01", Description: "Tangga Aluminium 3m", Category: "tools", Barcode: "8991002001082", UnitCostCents: 65000000, IsTool: true, Active: true},
		{Code: "SKU-GRINDER-01", Description: "Gerinda Tangan 4in", Category: "tools", Barcode: "8991002001099", UnitCostCents: 31500000, IsTool: true, Active: true},
	}

	skuMap := make(map[string]domain.SKU, len(skus))
	instances := make(map[string]domain.InventoryInstance)
	base := time.Now().UTC().Add(-30 * 24 * time.Hour)
	for _, sku := range skus {
		skuMap[sku.Code] = sku
		perSKU := 8
		if sku.IsTool {
			perSKU = 3
		}
		for i := 0; i < perSKU; i++ {
			inst := domain.InventoryInstance{
				ID:           fmt.Sprintf("inst-seed-%s-%02d", strings.ToLower(sku.Code), i+1),
				SKUCode:      sku.Code,
				Location:     "main-warehouse",
				AcquireCents: sku.UnitCostCents,
				Available:    true,
				ReceivedAt:   base.Add(time.Duration(i) * 24 * time.Hour),
			}
			instances[inst.ID] = inst
		}
	}

	now := time.Now().UTC()
	categories := map[string]domain.Category{}
	for _, name := range []string{"electrical", "plumbing", "material", "fastener", "safety", "tools"} {
		id := xid.New("cat")
		categories[id] = domain.Category{ID: id, Name: name, CreatedAt: now}
	}

	return &Store{
		skusByCode:      skuMap,
		instancesByID:   instances,
		tagsByID:        make(map[string]domain.Tag),
		categoriesByID:  categories,
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

// NewEmpty returns a store with no seed data. Used by tests that want a
// blank pool.
func NewEmpty() *Store {
	return &Store{
		skusByCode:      make(map[string]domain.SKU),
		instancesByID:   make(map[string]domain.InventoryInstance),
		tagsByID:        make(map[string]domain.Tag),
		categoriesByID:  make(map[string]domain.Category),
		auditLogs:       make([]domain.AuditLog, 0, 16),
		usersByUsername: seedUsers(),
	}
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}

// --- SKUs ---

func (s *Store) ListSKUs(_ context.Context, includeInactive bool) ([]domain.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	skus := make([]domain.SKU, 0, len(s.skusByCode))
	for _, sku := range s.skusByCode {
		if !sku.Active && !includeInactive {
			continue
		}
		skus = append(skus, sku)
	}

	slices.SortFunc(skus, func(a, b domain.SKU) int {
		if a.Category == b.Category {
			return cmpString(a.Code, b.Code)
		}
		return cmpString(a.Category, b.Category)
	})

	return skus, nil
}

func (s *Store) CreateSKU(_ context.Context, sku domain.SKU) (*domain.SKU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sku.Code == "" || sku.Description == "" {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.skusByCode[sku.Code]; exists {
		return nil, store.ErrInvalidRequest
	}

	sku.Active = true
	s.skusByCode[sku.Code] = sku
	created := sku
	return &created, nil
}

func (s *Store) GetSKUByCode(_ context.Context, code string) (*domain.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sku, exists := s.skusByCode[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySKU := sku
	return &copySKU, nil
}

func (s *Store) UpdateSKU(_ context.Context, sku domain.SKU) (*domain.SKU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sku.Code == "" || sku.Description == "" {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.skusByCode[sku.Code]; !exists {
		return nil, store.ErrNotFound
	}

	s.skusByCode[sku.Code] = sku
	updated := sku
	return &updated, nil
}

func (s *Store) GetSKUsByCodes(_ context.Context, codes []string) (map[string]domain.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.SKU, len(codes))
	for _, code := range codes {
		if sku, exists := s.skusByCode[code]; exists {
			result[code] = sku
		}
	}
	return result, nil
}

func (s *Store) GetSKUByBarcode(_ context.Context, barcode string) (*domain.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sku := range s.skusByCode {
		if sku.Barcode != "" && sku.Barcode == barcode {
			copySKU := sku
			return &copySKU, nil
		}
	}
	return nil, store.ErrNotFound
}

// --- Instances ---

func (s *Store) CreateInstances(_ context.Context, instances []domain.InventoryInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inst := range instances {
		if inst.ID == "" || inst.SKUCode == "" {
			return store.ErrInvalidRequest
		}
		if _, exists := s.instancesByID[inst.ID]; exists {
			return fmt.Errorf("%w: instance %s already exists", store.ErrInstanceConflict, inst.ID)
		}
	}
	for _, inst := range instances {
		s.instancesByID[inst.ID] = inst
	}
	return nil
}

func (s *Store) ListInstancesBySKU(_ context.Context, code string, availableOnly bool, limit int) ([]domain.InventoryInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryInstance, 0, 16)
	for _, inst := range s.instancesByID {
		if inst.SKUCode != code {
			continue
		}
		if availableOnly && (!inst.Available || inst.HeldByTagID != "") {
			continue
		}
		result = append(result, inst)
	}

	slices.SortFunc(result, func(a, b domain.InventoryInstance) int {
		if a.ReceivedAt.Equal(b.ReceivedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.ReceivedAt.Before(b.ReceivedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetInstancesByIDs(_ context.Context, ids []string) (map[string]domain.InventoryInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.InventoryInstance, len(ids))
	for _, id := range ids {
		if inst, exists := s.instancesByID[id]; exists {
			result[id] = inst
		}
	}
	return result, nil
}

func (s *Store) HoldInstances(_ context.Context, tagID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tagID == "" || len(ids) == 0 {
		return store.ErrInvalidRequest
	}
	for _, id := range ids {
		inst, exists := s.instancesByID[id]
		if !exists {
			return fmt.Errorf("%w: instance %s not found", store.ErrInstanceConflict, id)
		}
		if !inst.Available || inst.HeldByTagID != "" {
			return fmt.Errorf("%w: instance %s is not available", store.ErrInstanceConflict, id)
		}
	}
	for _, id := range ids {
		inst := s.instancesByID[id]
		inst.Available = false
		inst.HeldByTagID = tagID
		s.instancesByID[id] = inst
	}
	return nil
}

func (s *Store) ReleaseInstances(_ context.Context, ids []string, maintenanceAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, exists := s.instancesByID[id]; !exists {
			return fmt.Errorf("%w: instance %s not found", store.ErrInstanceConflict, id)
		}
	}
	for _, id := range ids {
		inst := s.instancesByID[id]
		inst.HeldByTagID = ""
		if maintenanceAt != nil {
			at := *maintenanceAt
			inst.Available = false
			inst.MaintenanceAt = &at
		} else {
			inst.Available = true
			inst.MaintenanceAt = nil
		}
		s.instancesByID[id] = inst
	}
	return nil
}

func (s *Store) DeleteInstances(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, exists := s.instancesByID[id]; exists {
			delete(s.instancesByID, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) GetStockCounts(_ context.Context, codes []string) (map[string]domain.StockCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		wanted[code] = struct{}{}
	}

	result := make(map[string]domain.StockCounts, len(codes))
	for code := range wanted {
		result[code] = domain.StockCounts{}
	}
	for _, inst := range s.instancesByID {
		if _, ok := wanted[inst.SKUCode]; !ok {
			continue
		}
		count := result[inst.SKUCode]
		count.OnHand++
		if inst.HeldByTagID != "" {
			count.Held++
		}
		if inst.MaintenanceAt != nil {
			count.InMaintenance++
		}
		if inst.Available && inst.HeldByTagID == "" {
			count.Available++
		}
		result[inst.SKUCode] = count
	}
	return result, nil
}

// --- Tags ---

func (s *Store) CreateTag(_ context.Context, tag domain.Tag) (*domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tag.ID == "" || tag.CustomerName == "" {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.tagsByID[tag.ID]; exists {
		return nil, store.ErrInvalidRequest
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = time.Now().UTC()
	}

	s.tagsByID[tag.ID] = cloneTag(tag)
	created := cloneTag(tag)
	return &created, nil
}

func (s *Store) GetTagByID(_ context.Context, id string) (*domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tag, exists := s.tagsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyTag := cloneTag(tag)
	return &copyTag, nil
}

func (s *Store) UpdateTag(_ context.Context, tag domain.Tag) (*domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tagsByID[tag.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.tagsByID[tag.ID] = cloneTag(tag)
	updated := cloneTag(tag)
	return &updated, nil
}

func (s *Store) ListTags(_ context.Context, status string, tagType string, limit int) ([]domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Tag, 0, len(s.tagsByID))
	for _, tag := range s.tagsByID {
		if status != "" && tag.Status != status {
			continue
		}
		if tagType != "" && tag.TagType != tagType {
			continue
		}
		result = append(result, cloneTag(tag))
	}

	slices.SortFunc(result, func(a, b domain.Tag) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// cloneTag deep-copies the line slices so callers can't mutate stored state.
func cloneTag(tag domain.Tag) domain.Tag {
	copied := tag
	copied.SKUItems = make([]domain.SKUItemLine, len(tag.SKUItems))
	copy(copied.SKUItems, tag.SKUItems)
	for i := range copied.SKUItems {
		ids := make([]string, len(copied.SKUItems[i].SelectedInstanceIDs))
		copy(ids, copied.SKUItems[i].SelectedInstanceIDs)
		copied.SKUItems[i].SelectedInstanceIDs = ids
	}
	return copied
}

// --- Categories ---

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.ID == "" || category.Name == "" {
		return nil, store.ErrInvalidRequest
	}
	for _, existing := range s.categoriesByID {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrInvalidRequest
		}
	}

	s.categoriesByID[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categoriesByID))
	for _, category := range s.categoriesByID {
		result = append(result, category)
	}
	slices.SortFunc(result, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

// --- Audit logs ---

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 32)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- Users ---

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidRequest
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidRequest
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		result = append(result, user)
	}
	slices.SortFunc(result, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	if password == "" {
		return store.ErrInvalidRequest
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
