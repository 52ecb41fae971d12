package fulfillment

import "gudangku/backend/internal/domain"

// PlanItem is one line of a reconciliation request payload: the owning SKU
// and the instance ids selected under it.
type PlanItem struct {
	SKUCode     string   `json:"sku_id"`
	InstanceIDs []string `json:"instance_ids"`
}

// Plan groups the selection by owning SKU, using the tag's own lines to
// attribute each instance id. The grouping is a partition: every selected id
// that belongs to the tag appears in exactly one item, ids foreign to the
// tag are dropped, and a line left with zero selected instances is omitted
// entirely. An empty selection yields an empty plan; Plan never fails.
func Plan(tag domain.Tag, selection *Selection) []PlanItem {
	if selection == nil || selection.Size() == 0 {
		return []PlanItem{}
	}

	lines := LineInstances(tag)
	plan := make([]PlanItem, 0, len(lines))
	emitted := make(map[string]struct{}, len(lines))

	for _, line := range tag.SKUItems {
		code := line.SKU.Code
		if code == "" {
			continue
		}
		if _, done := emitted[code]; done {
			continue
		}
		emitted[code] = struct{}{}

		picked := make([]string, 0, len(lines[code]))
		for _, id := range lines[code] {
			if selection.Contains(id) {
				picked = append(picked, id)
			}
		}
		if len(picked) == 0 {
			continue
		}
		plan = append(plan, PlanItem{SKUCode: code, InstanceIDs: picked})
	}

	return plan
}

// FulfillItems derives the quantity-based fulfill payload from a plan:
// each planned item contributes its instance count.
func FulfillItems(plan []PlanItem) []domain.FulfillItem {
	items := make([]domain.FulfillItem, 0, len(plan))
	for _, p := range plan {
		items = append(items, domain.FulfillItem{
			ItemID:            p.SKUCode,
			QuantityFulfilled: len(p.InstanceIDs),
		})
	}
	return items
}

// ReturnItems converts a plan into the instance-granular partial return
// payload.
func ReturnItems(plan []PlanItem) []domain.ReturnItem {
	items := make([]domain.ReturnItem, 0, len(plan))
	for _, p := range plan {
		items = append(items, domain.ReturnItem{
			SKUCode:     p.SKUCode,
			InstanceIDs: p.InstanceIDs,
		})
	}
	return items
}
