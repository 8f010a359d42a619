package ledger

import (
	"context"
	"errors"
	"fmt"
)

// MaxBulkIDs bounds the id list of a bulk operation.
const MaxBulkIDs = 1000

// BulkFailure explains why one id of a bulk operation was not applied.
type BulkFailure struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// BulkResult is the per-id outcome of BulkUpdate or BulkDelete.
type BulkResult struct {
	Succeeded []int64       `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
	Requested int           `json:"total_requested"`
	Cleanup   CleanupReport `json:"cleanup"`
}

func validateBulkIDs(ids []int64) error {
	if len(ids) == 0 {
		return &ValidationError{Field: "transaction_ids", Message: "must not be empty"}
	}
	if len(ids) > MaxBulkIDs {
		return &ValidationError{Field: "transaction_ids", Message: fmt.Sprintf("must contain at most %d ids", MaxBulkIDs)}
	}
	return nil
}

func failureReason(err error) string {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		return "transaction not found"
	case errors.As(err, &verr):
		return "validation error: " + verr.Error()
	default:
		return err.Error()
	}
}

func (r *BulkResult) record(id int64, report CleanupReport, err error) {
	if err != nil {
		r.Failed = append(r.Failed, BulkFailure{ID: id, Reason: failureReason(err)})
		return
	}
	r.Succeeded = append(r.Succeeded, id)
	r.Cleanup.Items = append(r.Cleanup.Items, report.Items...)
}

// BulkUpdate applies the same patch to every id. Each id is its own unit
// of work, so one failing id does not undo the others.
func (s *Service) BulkUpdate(ctx context.Context, ids []int64, patch TransactionPatch) (BulkResult, error) {
	if err := validateBulkIDs(ids); err != nil {
		return BulkResult{}, err
	}
	if patch.Empty() {
		return BulkResult{}, &ValidationError{Field: "update_data", Message: "must change at least one field"}
	}
	if _, err := patch.normalize(); err != nil {
		return BulkResult{}, err
	}

	res := BulkResult{Requested: len(ids), Succeeded: []int64{}, Failed: []BulkFailure{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, report, err := s.Update(ctx, id, patch)
		res.record(id, report, err)
	}
	s.logger.Info("bulk update finished", "requested", res.Requested, "updated", len(res.Succeeded), "failed", len(res.Failed))
	return res, nil
}

// BulkDelete deletes every id, each in its own unit of work.
func (s *Service) BulkDelete(ctx context.Context, ids []int64) (BulkResult, error) {
	if err := validateBulkIDs(ids); err != nil {
		return BulkResult{}, err
	}

	res := BulkResult{Requested: len(ids), Succeeded: []int64{}, Failed: []BulkFailure{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		report, err := s.Delete(ctx, id)
		res.record(id, report, err)
	}
	s.logger.Info("bulk delete finished", "requested", res.Requested, "deleted", len(res.Succeeded), "failed", len(res.Failed))
	return res, nil
}
