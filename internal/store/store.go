package store

import (
	"context"
	"errors"
	"time"

	"gudangku/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInstanceConflict = errors.New("instance conflict")
)

type Repository interface {
	ListSKUs(ctx context.Context, includeInactive bool) ([]domain.SKU, error)
	CreateSKU(ctx context.Context, sku domain.SKU) (*domain.SKU, error)
	GetSKUByCode(ctx context.Context, code string) (*domain.SKU, error)
	UpdateSKU(ctx context.Context, sku domain.SKU) (*domain.SKU, error)
	GetSKUsByCodes(ctx context.Context, codes []string) (map[string]domain.SKU, error)
	GetSKUByBarcode(ctx context.Context, barcode string) (*domain.SKU, error)

	CreateInstances(ctx context.Context, instances []domain.InventoryInstance) error
	ListInstancesBySKU(ctx context.Context, code string, availableOnly bool, limit int) ([]domain.InventoryInstance, error)
	GetInstancesByIDs(ctx context.Context, ids []string) (map[string]domain.InventoryInstance, error)
	HoldInstances(ctx context.Context, tagID string, ids []string) error
	ReleaseInstances(ctx context.Context, ids []string, maintenanceAt *time.Time) error
	DeleteInstances(ctx context.Context, ids []string) (int, error)
	GetStockCounts(ctx context.Context, codes []string) (map[string]domain.StockCounts, error)

	CreateTag(ctx context.Context, tag domain.Tag) (*domain.Tag, error)
	GetTagByID(ctx context.Context, id string) (*domain.Tag, error)
	UpdateTag(ctx context.Context, tag domain.Tag) (*domain.Tag, error)
	ListTags(ctx context.Context, status string, tagType string, limit int) ([]domain.Tag, error)

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
