package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

type SKU struct {
	Code          string `json:"sku_code"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Barcode       string `json:"barcode,omitempty"`
	UnitCostCents int64  `json:"unit_cost_cents"`
	IsTool        bool   `json:"is_tool"`
	Active        bool   `json:"active"`
}

type SKUCreateRequest struct {
	Code          string `json:"sku_code"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Barcode       string `json:"barcode,omitempty"`
	UnitCostCents int64  `json:"unit_cost_cents"`
	IsTool        bool   `json:"is_tool"`
}

type SKUUpdateRequest struct {
	Description   *string `json:"description,omitempty"`
	Category      *string `json:"category,omitempty"`
	Barcode       *string `json:"barcode,omitempty"`
	UnitCostCents *int64  `json:"unit_cost_cents,omitempty"`
	Active        *bool   `json:"active,omitempty"`
}

// InventoryInstance is one physical unit of a SKU, tracked individually.
// Quantity is never stored on an instance; on-hand counts are always derived
// by counting instances.
type InventoryInstance struct {
	ID            string     `json:"id"`
	SKUCode       string     `json:"sku_code"`
	Location      string     `json:"location"`
	AcquireCents  int64      `json:"acquisition_cost_cents"`
	Available     bool       `json:"available"`
	HeldByTagID   string     `json:"held_by_tag_id,omitempty"`
	ReceivedAt    time.Time  `json:"received_at"`
	MaintenanceAt *time.Time `json:"maintenance_since,omitempty"`
}

// SKURef is either a bare SKU code or a populated reference carrying
// denormalized display fields. The wire shape is a string or an object;
// Populated reports which one was received so display code can fall back
// to a placeholder instead of dereferencing empty fields.
type SKURef struct {
	Code        string `json:"sku_id"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Populated   bool   `json:"-"`
}

func (r *SKURef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var code string
		if err := json.Unmarshal(trimmed, &code); err != nil {
			return err
		}
		r.Code = code
		r.Populated = false
		return nil
	}

	var populated struct {
		ID          string `json:"_id"`
		Code        string `json:"sku_code"`
		Description string `json:"description"`
		Category    string `json:"category"`
	}
	if err := json.Unmarshal(trimmed, &populated); err != nil {
		return err
	}
	r.Code = populated.Code
	if r.Code == "" {
		r.Code = populated.ID
	}
	r.Description = populated.Description
	r.Category = populated.Category
	r.Populated = true
	return nil
}

func (r SKURef) MarshalJSON() ([]byte, error) {
	if !r.Populated {
		return json.Marshal(r.Code)
	}
	return json.Marshal(struct {
		ID          string `json:"_id"`
		Code        string `json:"sku_code"`
		Description string `json:"description"`
		Category    string `json:"category,omitempty"`
	}{ID: r.Code, Code: r.Code, Description: r.Description, Category: r.Category})
}

// DisplayLabel falls back to the bare code when the reference was never
// populated with catalog data.
func (r SKURef) DisplayLabel() string {
	if r.Populated && r.Description != "" {
		return r.Code + " - " + r.Description
	}
	if r.Code == "" {
		return "(unknown SKU)"
	}
	return r.Code
}

// SKUItemLine is one product line of a tag. The committed quantity is
// len(SelectedInstanceIDs); no separate quantity field is trusted over it.
type SKUItemLine struct {
	SKU                 SKURef   `json:"sku_id"`
	SelectedInstanceIDs []string `json:"selected_instance_ids"`
	SelectionMethod     string   `json:"selection_method"`
	Notes               string   `json:"notes,omitempty"`
}

func (l SKUItemLine) Quantity() int {
	return len(l.SelectedInstanceIDs)
}

type Tag struct {
	ID           string        `json:"id"`
	CustomerName string        `json:"customer_name"`
	TagType      string        `json:"tag_type"`
	Status       string        `json:"status"`
	Notes        string        `json:"notes,omitempty"`
	DueDate      *time.Time    `json:"due_date,omitempty"`
	ProjectName  string        `json:"project_name,omitempty"`
	SKUItems     []SKUItemLine `json:"sku_items"`
	CreatedBy    string        `json:"created_by,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	FulfilledAt  *time.Time    `json:"fulfilled_at,omitempty"`
}

const (
	TagTypeStock     = "stock"
	TagTypeReserved  = "reserved"
	TagTypeBroken    = "broken"
	TagTypeImperfect = "imperfect"
	TagTypeLoan      = "loan"
)

const (
	TagStatusActive    = "active"
	TagStatusFulfilled = "fulfilled"
	TagStatusCancelled = "cancelled"
)

const (
	SelectionAuto      = "auto"
	SelectionManual    = "manual"
	SelectionFIFO      = "fifo"
	SelectionCostBased = "cost_based"
)

type TagItemRequest struct {
	ItemID          string   `json:"item_id"`
	Quantity        int      `json:"quantity"`
	SelectionMethod string   `json:"selection_method,omitempty"`
	InstanceIDs     []string `json:"instance_ids,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

type TagCreateRequest struct {
	TagType      string           `json:"tag_type"`
	CustomerName string           `json:"customer_name"`
	Notes        string           `json:"notes,omitempty"`
	DueDate      string           `json:"due_date,omitempty"`
	ProjectName  string           `json:"project_name,omitempty"`
	Items        []TagItemRequest `json:"items"`
}

type TagUpdateRequest struct {
	CustomerName *string          `json:"customer_name,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
	DueDate      *string          `json:"due_date,omitempty"`
	ProjectName  *string          `json:"project_name,omitempty"`
	Items        []TagItemRequest `json:"items,omitempty"`
}

type TagResponse struct {
	Tag Tag `json:"tag"`
}

type TagListResponse struct {
	Tags []Tag `json:"tags"`
}

type FulfillItem struct {
	ItemID            string `json:"item_id"`
	QuantityFulfilled int    `json:"quantity_fulfilled"`
}

type FulfillRequest struct {
	Items []FulfillItem `json:"items"`
	Notes string        `json:"notes,omitempty"`
}

type InventoryUpdate struct {
	SKUCode          string `json:"sku_code"`
	QuantityReduced  int    `json:"quantity_reduced"`
	QuantityOnHand   int    `json:"quantity_on_hand"`
	InstancesDeleted int    `json:"instances_deleted"`
}

type FailedTag struct {
	TagID string `json:"tag_id"`
	Error string `json:"error"`
}

// FulfillmentResult is the structured mutation outcome. Partial failure is a
// valid, transport-level-successful result: failed tags are itemized, never
// collapsed into a single error.
type FulfillmentResult struct {
	FulfilledTags    []string          `json:"fulfilled_tags"`
	FailedTags       []FailedTag       `json:"failed_tags"`
	UpdatedInventory []InventoryUpdate `json:"updated_inventory"`
	InstancesDeleted int               `json:"instances_deleted"`
}

type MarkUsedRequest struct {
	TagIDs []string `json:"tag_ids"`
	Notes  string   `json:"notes,omitempty"`
}

const (
	ConditionFunctional       = "functional"
	ConditionNeedsMaintenance = "needs_maintenance"
	ConditionBroken           = "broken"
)

type ReturnItem struct {
	SKUCode     string   `json:"sku_id"`
	InstanceIDs []string `json:"instance_ids"`
}

type PartialReturnRequest struct {
	Items             []ReturnItem `json:"items"`
	ReturnNotes       string       `json:"return_notes,omitempty"`
	ReturnedCondition string       `json:"returned_condition"`
}

type PartialReturnResponse struct {
	LoanTagID          string            `json:"loan_tag_id"`
	InstancesReturned  int               `json:"instances_returned"`
	InstancesRemaining int               `json:"instances_remaining"`
	LoanClosed         bool              `json:"loan_closed"`
	UpdatedInventory   []InventoryUpdate `json:"updated_inventory"`
}

type ToolCheckoutRequest struct {
	CustomerName string           `json:"customer_name"`
	ProjectName  string           `json:"project_name,omitempty"`
	DueDate      string           `json:"due_date,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	Items        []TagItemRequest `json:"items"`
}

type BarcodeBatchRequest struct {
	Barcodes []string `json:"barcodes"`
}

type BarcodeMatch struct {
	Barcode string `json:"barcode"`
	SKU     SKU    `json:"sku"`
}

type BarcodeBatchResponse struct {
	Found    []BarcodeMatch `json:"found"`
	NotFound []string       `json:"not_found"`
}

type StockReceiptRequest struct {
	SKUCode      string `json:"sku_code"`
	Quantity     int    `json:"quantity"`
	Location     string `json:"location"`
	AcquireCents int64  `json:"acquisition_cost_cents"`
	Notes        string `json:"notes,omitempty"`
}

type StockReceiptResponse struct {
	ReceiptID string              `json:"receipt_id"`
	Instances []InventoryInstance `json:"instances"`
}

type InstanceListResponse struct {
	Instances []InventoryInstance `json:"instances"`
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name string `json:"name"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type OperatorUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// StockCounts is a per-SKU aggregate derived entirely from instances.
type StockCounts struct {
	OnHand        int
	Held          int
	InMaintenance int
	Available     int
}

type StockSummary struct {
	SKU           SKU `json:"sku"`
	OnHand        int `json:"on_hand"`
	Held          int `json:"held"`
	InMaintenance int `json:"in_maintenance"`
	Available     int `json:"available"`
}

type StockSummaryResponse struct {
	Items []StockSummary `json:"items"`
}
