package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- SKUs ---

func (s *Store) ListSKUs(ctx context.Context, includeInactive bool) ([]domain.SKU, error) {
	query := `
		SELECT code, description, category, barcode, unit_cost_cents, is_tool, active
		FROM skus
		WHERE active = true
		ORDER BY category, code
	`
	if includeInactive {
		query = `
			SELECT code, description, category, barcode, unit_cost_cents, is_tool, active
			FROM skus
			ORDER BY category, code
		`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	skus := make([]domain.SKU, 0, 128)
	for rows.Next() {
		sku, err := scanSKU(rows)
		if err != nil {
			return nil, err
		}
		skus = append(skus, sku)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return skus, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSKU(row rowScanner) (domain.SKU, error) {
	var sku domain.SKU
	var barcode sql.NullString
	if err := row.Scan(&sku.Code, &sku.Description, &sku.Category, &barcode, &sku.UnitCostCents, &sku.IsTool, &sku.Active); err != nil {
		return domain.SKU{}, err
	}
	if barcode.Valid {
		sku.Barcode = barcode.String
	}
	return sku, nil
}

func (s *Store) CreateSKU(ctx context.Context, sku domain.SKU) (*domain.SKU, error) {
	if sku.Code == "" || sku.Description == "" {
		return nil, store.ErrInvalidRequest
	}

	sku.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skus (code, description, category, barcode, unit_cost_cents, is_tool, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
	`, sku.Code, sku.Description, sku.Category, nullIfEmpty(sku.Barcode), sku.UnitCostCents, sku.IsTool, sku.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRequest
		}
		return nil, err
	}

	created := sku
	return &created, nil
}

func (s *Store) GetSKUByCode(ctx context.Context, code string) (*domain.SKU, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT code, description, category, barcode, unit_cost_cents, is_tool, active
		FROM skus
		WHERE code = $1
	`, code)
	sku, err := scanSKU(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sku, nil
}

func (s *Store) UpdateSKU(ctx context.Context, sku domain.SKU) (*domain.SKU, error) {
	if sku.Code == "" || sku.Description == "" {
		return nil, store.ErrInvalidRequest
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE skus
		SET description = $2, category = $3, barcode = $4, unit_cost_cents = $5, is_tool = $6, active = $7, updated_at = now()
		WHERE code = $1
	`, sku.Code, sku.Description, sku.Category, nullIfEmpty(sku.Barcode), sku.UnitCostCents, sku.IsTool, sku.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := sku
	return &updated, nil
}

func (s *Store) GetSKUsByCodes(ctx context.Context, codes []string) (map[string]domain.SKU, error) {
	result := make(map[string]domain.SKU, len(codes))
	if len(codes) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT code, description, category, barcode, unit_cost_cents, is_tool, active
		FROM skus
		WHERE code = ANY($1)
	`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		sku, err := scanSKU(rows)
		if err != nil {
			return nil, err
		}
		result[sku.Code] = sku
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) GetSKUByBarcode(ctx context.Context, barcode string) (*domain.SKU, error) {
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT code, description, category, barcode, unit_cost_cents, is_tool, active
		FROM skus
		WHERE barcode = $1
	`, barcode)
	sku, err := scanSKU(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sku, nil
}

// --- Instances ---

func (s *Store) CreateInstances(ctx context.Context, instances []domain.InventoryInstance) error {
	if len(instances) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, inst := range instances {
		if inst.ID == "" || inst.SKUCode == "" {
			return store.ErrInvalidRequest
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_instances (id, sku_code, location, acquire_cents, available, held_by_tag_id, received_at, maintenance_at)
			VALUES ($1,$2,$3,$4,$5,NULL,$6,NULL)
		`, inst.ID, inst.SKUCode, inst.Location, inst.AcquireCents, inst.Available, inst.ReceivedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: instance %s already exists", store.ErrInstanceConflict, inst.ID)
			}
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) ListInstancesBySKU(ctx context.Context, code string, availableOnly bool, limit int) ([]domain.InventoryInstance, error) {
	if limit < 1 {
		limit = 1000
	}

	query := `
		SELECT id, sku_code, location, acquire_cents, available, held_by_tag_id, received_at, maintenance_at
		FROM inventory_instances
		WHERE sku_code = $1
		ORDER BY received_at, id
		LIMIT $2
	`
	if availableOnly {
		query = `
			SELECT id, sku_code, location, acquire_cents, available, held_by_tag_id, received_at, maintenance_at
			FROM inventory_instances
			WHERE sku_code = $1 AND available = true AND held_by_tag_id IS NULL
			ORDER BY received_at, id
			LIMIT $2
		`
	}

	rows, err := s.db.QueryContext(ctx, query, code, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	instances := make([]domain.InventoryInstance, 0, limit)
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return instances, nil
}

func scanInstance(row rowScanner) (domain.InventoryInstance, error) {
	var inst domain.InventoryInstance
	var heldBy sql.NullString
	var maintenanceAt sql.NullTime
	if err := row.Scan(&inst.ID, &inst.SKUCode, &inst.Location, &inst.AcquireCents, &inst.Available, &heldBy, &inst.ReceivedAt, &maintenanceAt); err != nil {
		return domain.InventoryInstance{}, err
	}
	inst.ReceivedAt = inst.ReceivedAt.UTC()
	if heldBy.Valid {
		inst.HeldByTagID = heldBy.String
	}
	if maintenanceAt.Valid {
		at := maintenanceAt.Time.UTC()
		inst.MaintenanceAt = &at
	}
	return inst, nil
}

func (s *Store) GetInstancesByIDs(ctx context.Context, ids []string) (map[string]domain.InventoryInstance, error) {
	result := make(map[string]domain.InventoryInstance, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku_code, location, acquire_cents, available, held_by_tag_id, received_at, maintenance_at
		FROM inventory_instances
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		result[inst.ID] = inst
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// HoldInstances marks the instances as held by the tag. The update is
// guarded so an instance that is already held or unavailable fails the
// whole batch inside one transaction.
func (s *Store) HoldInstances(ctx context.Context, tagID string, ids []string) error {
	if tagID == "" || len(ids) == 0 {
		return store.ErrInvalidRequest
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE inventory_instances
		SET available = false, held_by_tag_id = $1
		WHERE id = ANY($2) AND available = true AND held_by_tag_id IS NULL
	`, tagID, ids)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != int64(len(ids)) {
		return fmt.Errorf("%w: %d of %d instances could not be held", store.ErrInstanceConflict, int64(len(ids))-affected, len(ids))
	}

	return tx.Commit()
}

func (s *Store) ReleaseInstances(ctx context.Context, ids []string, maintenanceAt *time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	var err error
	if maintenanceAt != nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE inventory_instances
			SET available = false, held_by_tag_id = NULL, maintenance_at = $2
			WHERE id = ANY($1)
		`, ids, maintenanceAt.UTC())
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE inventory_instances
			SET available = true, held_by_tag_id = NULL, maintenance_at = NULL
			WHERE id = ANY($1)
		`, ids)
	}
	return err
}

func (s *Store) DeleteInstances(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM inventory_instances
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) GetStockCounts(ctx context.Context, codes []string) (map[string]domain.StockCounts, error) {
	result := make(map[string]domain.StockCounts, len(codes))
	for _, code := range codes {
		result[code] = domain.StockCounts{}
	}
	if len(codes) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sku_code,
			COUNT(*),
			COUNT(*) FILTER (WHERE held_by_tag_id IS NOT NULL),
			COUNT(*) FILTER (WHERE maintenance_at IS NOT NULL),
			COUNT(*) FILTER (WHERE available = true AND held_by_tag_id IS NULL)
		FROM inventory_instances
		WHERE sku_code = ANY($1)
		GROUP BY sku_code
	`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		var count domain.StockCounts
		if err := rows.Scan(&code, &count.OnHand, &count.Held, &count.InMaintenance, &count.Available); err != nil {
			return nil, err
		}
		result[code] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// --- Tags ---

func (s *Store) CreateTag(ctx context.Context, tag domain.Tag) (*domain.Tag, error) {
	if tag.ID == "" || tag.CustomerName == "" {
		return nil, store.ErrInvalidRequest
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = time.Now().UTC()
	}

	itemsJSON, err := json.Marshal(tag.SKUItems)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tags (id, customer_name, tag_type, status, notes, due_date, project_name, sku_items, created_by, created_at, fulfilled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, tag.ID, tag.CustomerName, tag.TagType, tag.Status, tag.Notes, tag.DueDate, nullIfEmpty(tag.ProjectName),
		itemsJSON, nullIfEmpty(tag.CreatedBy), tag.CreatedAt, tag.FulfilledAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRequest
		}
		return nil, err
	}

	created := tag
	return &created, nil
}

func (s *Store) GetTagByID(ctx context.Context, id string) (*domain.Tag, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_name, tag_type, status, notes, due_date, project_name, sku_items, created_by, created_at, fulfilled_at
		FROM tags
		WHERE id = $1
	`, id)
	tag, err := scanTag(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tag, nil
}

func scanTag(row rowScanner) (domain.Tag, error) {
	var tag domain.Tag
	var notes sql.NullString
	var dueDate sql.NullTime
	var projectName sql.NullString
	var itemsRaw []byte
	var createdBy sql.NullString
	var fulfilledAt sql.NullTime
	if err := row.Scan(&tag.ID, &tag.CustomerName, &tag.TagType, &tag.Status, &notes, &dueDate, &projectName, &itemsRaw, &createdBy, &tag.CreatedAt, &fulfilledAt); err != nil {
		return domain.Tag{}, err
	}
	tag.CreatedAt = tag.CreatedAt.UTC()
	if notes.Valid {
		tag.Notes = notes.String
	}
	if dueDate.Valid {
		d := dueDate.Time.UTC()
		tag.DueDate = &d
	}
	if projectName.Valid {
		tag.ProjectName = projectName.String
	}
	if createdBy.Valid {
		tag.CreatedBy = createdBy.String
	}
	if fulfilledAt.Valid {
		at := fulfilledAt.Time.UTC()
		tag.FulfilledAt = &at
	}
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &tag.SKUItems); err != nil {
			return domain.Tag{}, err
		}
	}
	if tag.SKUItems == nil {
		tag.SKUItems = []domain.SKUItemLine{}
	}
	return tag, nil
}

func (s *Store) UpdateTag(ctx context.Context, tag domain.Tag) (*domain.Tag, error) {
	itemsJSON, err := json.Marshal(tag.SKUItems)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tags
		SET customer_name = $2, tag_type = $3, status = $4, notes = $5, due_date = $6,
			project_name = $7, sku_items = $8, fulfilled_at = $9, updated_at = now()
		WHERE id = $1
	`, tag.ID, tag.CustomerName, tag.TagType, tag.Status, tag.Notes, tag.DueDate,
		nullIfEmpty(tag.ProjectName), itemsJSON, tag.FulfilledAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := tag
	return &updated, nil
}

func (s *Store) ListTags(ctx context.Context, status string, tagType string, limit int) ([]domain.Tag, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, tag_type, status, notes, due_date, project_name, sku_items, created_by, created_at, fulfilled_at
		FROM tags
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR tag_type = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, status, tagType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := make([]domain.Tag, 0, limit)
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tags, nil
}

// --- Categories ---

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" || category.Name == "" {
		return nil, store.ErrInvalidRequest
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, created_at)
		VALUES ($1,$2,$3)
	`, category.ID, category.Name, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRequest
		}
		return nil, err
	}

	created := category
	return &created, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(&category.ID, &category.Name, &category.CreatedAt); err != nil {
			return nil, err
		}
		category.CreatedAt = category.CreatedAt.UTC()
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

// --- Audit logs ---

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidRequest
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRequest
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidRequest
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
