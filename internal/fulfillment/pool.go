package fulfillment

import "gudangku/backend/internal/domain"

// LineInstances resolves, per SKU line of a tag, the instance ids currently
// committed to that line. Line order is preserved; an instance id claimed by
// more than one line is attributed to the first line only.
func LineInstances(tag domain.Tag) map[string][]string {
	result := make(map[string][]string, len(tag.SKUItems))
	seen := make(map[string]struct{})
	for _, line := range tag.SKUItems {
		code := line.SKU.Code
		if code == "" {
			continue
		}
		for _, id := range line.SelectedInstanceIDs {
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			result[code] = append(result[code], id)
		}
	}
	return result
}

// InstanceOwner reports which SKU line of the tag an instance id belongs to.
func InstanceOwner(tag domain.Tag, instanceID string) (string, bool) {
	for code, ids := range LineInstances(tag) {
		for _, id := range ids {
			if id == instanceID {
				return code, true
			}
		}
	}
	return "", false
}

// CommittedCount is the total quantity committed to a tag, derived by
// counting instances across all lines.
func CommittedCount(tag domain.Tag) int {
	total := 0
	for _, ids := range LineInstances(tag) {
		total += len(ids)
	}
	return total
}
