package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"gudangku/backend/internal/domain"
)

// Backend is the mutation surface the submitter reconciles against. The
// in-process service and the HTTP client both satisfy it.
type Backend interface {
	FulfillTag(ctx context.Context, tagID string, req domain.FulfillRequest) (domain.FulfillmentResult, error)
	PartialReturn(ctx context.Context, loanTagID string, req domain.PartialReturnRequest) (domain.PartialReturnResponse, error)
	MarkTagsUsed(ctx context.Context, req domain.MarkUsedRequest) (domain.FulfillmentResult, error)
}

const (
	StateIdle           = "idle"
	StateSubmitting     = "submitting"
	StateSuccess        = "success"
	StatePartialFailure = "partial_failure"
)

var (
	ErrEmptyPlan   = errors.New("nothing selected")
	ErrInFlight    = errors.New("submission already in flight")
	ErrAttemptDone = errors.New("attempt finished; reset before submitting again")
)

// Submitter runs one reconciliation attempt at a time against the backend
// and tracks its lifecycle: idle -> submitting -> success or
// partial_failure, with transport errors returning to idle and keeping the
// message for display. Success and partial failure are terminal for the
// attempt; Reset (dialog close/reopen) discards everything, and completions
// belonging to a previous generation are ignored.
type Submitter struct {
	backend    Backend
	state      string
	generation uint64
	errMessage string
	result     *domain.FulfillmentResult
	stock      StockView
}

func NewSubmitter(backend Backend) *Submitter {
	return &Submitter{
		backend: backend,
		state:   StateIdle,
		stock:   StockView{},
	}
}

func (s *Submitter) State() string { return s.state }

// Busy reports whether selection-mutating controls must stay disabled.
func (s *Submitter) Busy() bool { return s.state == StateSubmitting }

// ShouldClose reports whether the owning dialog may auto-close: only after a
// fully successful attempt. Partial failures keep the dialog open so the
// itemized outcome stays visible.
func (s *Submitter) ShouldClose() bool { return s.state == StateSuccess }

func (s *Submitter) ErrorMessage() string { return s.errMessage }

func (s *Submitter) Result() *domain.FulfillmentResult { return s.result }

func (s *Submitter) Stock() StockView { return s.stock }

// Reset discards all attempt state. Any completion still in flight for the
// previous generation will be dropped when it lands.
func (s *Submitter) Reset() {
	s.generation++
	s.state = StateIdle
	s.errMessage = ""
	s.result = nil
}

func (s *Submitter) begin(plan []PlanItem) error {
	if s.state == StateSubmitting {
		return ErrInFlight
	}
	if s.state == StateSuccess || s.state == StatePartialFailure {
		return ErrAttemptDone
	}
	if len(plan) == 0 {
		return ErrEmptyPlan
	}
	s.errMessage = ""
	s.state = StateSubmitting
	return nil
}

// finish applies a completed attempt unless the submitter was reset while
// the request was outstanding.
func (s *Submitter) finish(gen uint64, result domain.FulfillmentResult, err error) error {
	if gen != s.generation {
		// Stale completion from a closed dialog.
		return nil
	}
	if err != nil {
		s.state = StateIdle
		s.errMessage = err.Error()
		return err
	}

	s.result = &result
	s.stock.Apply(result.UpdatedInventory)
	if len(result.FailedTags) > 0 {
		s.state = StatePartialFailure
	} else {
		s.state = StateSuccess
	}
	return nil
}

// SubmitFulfillment sends the quantity-based fulfill payload derived from
// the plan's instance counts.
func (s *Submitter) SubmitFulfillment(ctx context.Context, tagID string, plan []PlanItem, notes string) error {
	if err := s.begin(plan); err != nil {
		return err
	}
	gen := s.generation

	result, err := s.backend.FulfillTag(ctx, tagID, domain.FulfillRequest{
		Items: FulfillItems(plan),
		Notes: notes,
	})
	return s.finish(gen, result, err)
}

// SubmitReturn sends the instance-granular partial return payload.
func (s *Submitter) SubmitReturn(ctx context.Context, loanTagID string, plan []PlanItem, condition string, notes string) error {
	if err := s.begin(plan); err != nil {
		return err
	}
	gen := s.generation

	resp, err := s.backend.PartialReturn(ctx, loanTagID, domain.PartialReturnRequest{
		Items:             ReturnItems(plan),
		ReturnedCondition: condition,
		ReturnNotes:       notes,
	})

	result := domain.FulfillmentResult{
		UpdatedInventory: resp.UpdatedInventory,
	}
	if err == nil && resp.LoanClosed {
		result.FulfilledTags = []string{loanTagID}
	}
	return s.finish(gen, result, err)
}

// SubmitMarkUsed sends the bulk whole-tag mark-used request. Tag-level
// granularity means no plan is involved; the tag id list stands in for it.
func (s *Submitter) SubmitMarkUsed(ctx context.Context, tagIDs []string, notes string) error {
	if s.state == StateSubmitting {
		return ErrInFlight
	}
	if s.state == StateSuccess || s.state == StatePartialFailure {
		return ErrAttemptDone
	}
	if len(tagIDs) == 0 {
		return ErrEmptyPlan
	}
	s.errMessage = ""
	s.state = StateSubmitting
	gen := s.generation

	result, err := s.backend.MarkTagsUsed(ctx, domain.MarkUsedRequest{TagIDs: tagIDs, Notes: notes})
	return s.finish(gen, result, err)
}

// Summary renders the human-readable outcome counts for the result banner.
func (s *Submitter) Summary() string {
	if s.result == nil {
		return ""
	}
	return fmt.Sprintf("%d tags fulfilled, %d failed, %d inventory lines updated, %d instances removed",
		len(s.result.FulfilledTags), len(s.result.FailedTags),
		len(s.result.UpdatedInventory), s.result.InstancesDeleted)
}

// StockView is a local cache of on-hand counts that fulfillment results are
// merged into.
type StockView map[string]int

func (v StockView) Apply(updates []domain.InventoryUpdate) {
	for _, update := range updates {
		v[update.SKUCode] = update.QuantityOnHand
	}
}
