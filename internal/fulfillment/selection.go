package fulfillment

import "gudangku/backend/internal/domain"

// Selection is the transient set of instance ids an operator has chosen to
// act on. It is scoped to exactly one tag: initializing from a different tag
// discards everything, and ids that do not belong to the current tag are
// ignored rather than stored.
type Selection struct {
	tagID    string
	selected map[string]struct{}
	allowed  map[string]string // instance id -> owning SKU code
	bySKU    map[string][]string
}

func NewSelection() *Selection {
	return &Selection{
		selected: make(map[string]struct{}),
		allowed:  make(map[string]string),
		bySKU:    make(map[string][]string),
	}
}

// InitializeFromTag resets the selection and selects every instance found in
// every SKU line of the tag. This is the default when a tag is first chosen
// for return or fulfillment.
func (s *Selection) InitializeFromTag(tag domain.Tag) {
	s.tagID = tag.ID
	s.selected = make(map[string]struct{})
	s.allowed = make(map[string]string)
	s.bySKU = make(map[string][]string)

	for code, ids := range LineInstances(tag) {
		for _, id := range ids {
			s.allowed[id] = code
			s.bySKU[code] = append(s.bySKU[code], id)
			s.selected[id] = struct{}{}
		}
	}
}

// Toggle adds or removes one instance id. Ids that do not belong to the
// current tag are ignored.
func (s *Selection) Toggle(instanceID string, included bool) {
	if _, ok := s.allowed[instanceID]; !ok {
		return
	}
	if included {
		s.selected[instanceID] = struct{}{}
		return
	}
	delete(s.selected, instanceID)
}

func (s *Selection) SelectAllForSKU(skuCode string) {
	for _, id := range s.bySKU[skuCode] {
		s.selected[id] = struct{}{}
	}
}

func (s *Selection) DeselectAllForSKU(skuCode string) {
	for _, id := range s.bySKU[skuCode] {
		delete(s.selected, id)
	}
}

func (s *Selection) Contains(instanceID string) bool {
	_, ok := s.selected[instanceID]
	return ok
}

func (s *Selection) Size() int {
	return len(s.selected)
}

func (s *Selection) TagID() string {
	return s.tagID
}
