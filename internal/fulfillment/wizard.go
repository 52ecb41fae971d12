package fulfillment

import (
	"context"
	"errors"
	"strings"

	"gudangku/backend/internal/domain"
)

type WizardStep int

const (
	StepDetails WizardStep = iota + 1
	StepItems
	StepReview
)

// CatalogLoader supplies the available-items catalog. The wizard loads it at
// most once, on the first forward transition out of the details step.
type CatalogLoader interface {
	AvailableItems(ctx context.Context) ([]domain.SKU, error)
}

var ErrItemNotFound = errors.New("item not found")

// CanProceedToItems is the Step1 -> Step2 guard: the customer name must be
// non-empty after trimming.
func CanProceedToItems(customerName string) bool {
	return strings.TrimSpace(customerName) != ""
}

// CanProceedToReview is the Step2 -> Step3 guard: at least one tagged item
// with a positive quantity.
func CanProceedToReview(items []WizardItem) bool {
	for _, item := range items {
		if item.Quantity > 0 {
			return true
		}
	}
	return false
}

type WizardItem struct {
	ItemID      string
	Description string
	Quantity    int
}

// Wizard sequences tag creation through Details -> Items -> Review with
// guarded forward transitions and unconditional back transitions. All state
// is owned by a single dialog instance; discarding the wizard discards
// everything.
type Wizard struct {
	loader CatalogLoader
	step   WizardStep

	TagType      string
	CustomerName string
	Notes        string
	DueDate      string
	ProjectName  string

	items         []WizardItem
	catalog       map[string]domain.SKU
	catalogLoaded bool

	transientErr string
}

func NewWizard(loader CatalogLoader) *Wizard {
	return &Wizard{
		loader:  loader,
		step:    StepDetails,
		TagType: domain.TagTypeStock,
		catalog: make(map[string]domain.SKU),
	}
}

func (w *Wizard) Step() WizardStep { return w.step }

func (w *Wizard) Items() []WizardItem {
	out := make([]WizardItem, len(w.items))
	copy(out, w.items)
	return out
}

// CanProceed evaluates the forward guard for the current step.
func (w *Wizard) CanProceed() bool {
	switch w.step {
	case StepDetails:
		return CanProceedToItems(w.CustomerName)
	case StepItems:
		return CanProceedToReview(w.items)
	default:
		return false
	}
}

// Next advances one step when the guard holds. Leaving the details step
// triggers the one-time catalog load; a load failure blocks the transition
// so the items step never renders without its catalog.
func (w *Wizard) Next(ctx context.Context) error {
	if !w.CanProceed() {
		return errors.New("step requirements not met")
	}

	if w.step == StepDetails {
		if err := w.loadCatalogOnce(ctx); err != nil {
			return err
		}
	}
	w.step++
	return nil
}

// Back is unconditional.
func (w *Wizard) Back() {
	if w.step > StepDetails {
		w.step--
	}
}

func (w *Wizard) loadCatalogOnce(ctx context.Context) error {
	if w.catalogLoaded {
		return nil
	}
	skus, err := w.loader.AvailableItems(ctx)
	if err != nil {
		return err
	}
	for _, sku := range skus {
		w.catalog[sku.Code] = sku
	}
	w.catalogLoaded = true
	return nil
}

// AddItemByCode handles SKU-code text entry (typed or scanned). The code is
// trimmed and uppercased; a code already present increments that line's
// quantity instead of duplicating it; an unknown code records a transient
// error and leaves the wizard usable.
func (w *Wizard) AddItemByCode(ctx context.Context, rawCode string) error {
	code := strings.ToUpper(strings.TrimSpace(rawCode))
	if code == "" {
		return nil
	}

	for i := range w.items {
		if w.items[i].ItemID == code {
			w.items[i].Quantity++
			return nil
		}
	}

	if err := w.loadCatalogOnce(ctx); err != nil {
		return err
	}
	sku, ok := w.catalog[code]
	if !ok {
		w.transientErr = "SKU " + code + " not found"
		return ErrItemNotFound
	}

	w.items = append(w.items, WizardItem{
		ItemID:      sku.Code,
		Description: sku.Description,
		Quantity:    1,
	})
	return nil
}

func (w *Wizard) SetQuantity(code string, quantity int) {
	for i := range w.items {
		if w.items[i].ItemID == code {
			if quantity < 1 {
				w.items = append(w.items[:i], w.items[i+1:]...)
				return
			}
			w.items[i].Quantity = quantity
			return
		}
	}
}

func (w *Wizard) RemoveItem(code string) {
	w.SetQuantity(code, 0)
}

// ConsumeTransientError returns and clears the last auto-dismissing error.
func (w *Wizard) ConsumeTransientError() string {
	msg := w.transientErr
	w.transientErr = ""
	return msg
}

// Payload assembles the creation request. It is only available while the
// items gate still holds.
func (w *Wizard) Payload() (domain.TagCreateRequest, error) {
	if !CanProceedToReview(w.items) {
		return domain.TagCreateRequest{}, errors.New("no items tagged")
	}
	if !CanProceedToItems(w.CustomerName) {
		return domain.TagCreateRequest{}, errors.New("customer name required")
	}

	items := make([]domain.TagItemRequest, 0, len(w.items))
	for _, item := range w.items {
		if item.Quantity < 1 {
			continue
		}
		items = append(items, domain.TagItemRequest{
			ItemID:   item.ItemID,
			Quantity: item.Quantity,
		})
	}

	return domain.TagCreateRequest{
		TagType:      w.TagType,
		CustomerName: strings.TrimSpace(w.CustomerName),
		Notes:        strings.TrimSpace(w.Notes),
		DueDate:      strings.TrimSpace(w.DueDate),
		ProjectName:  strings.TrimSpace(w.ProjectName),
		Items:        items,
	}, nil
}
