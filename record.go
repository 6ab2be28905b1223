package breathe

import "time"

// ExistingRecord is the bookkeeping carried by every persisted row. Timestamps
// are kept at whole second resolution, matching what the journal stores.
type ExistingRecord[T ~string] struct {
	ID        T
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewExistingRecord[T ~string](id T, now time.Time) ExistingRecord[T] {
	now = now.Truncate(time.Second)
	return ExistingRecord[T]{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch marks the record as modified at now.
func (r *ExistingRecord[T]) Touch(now time.Time) {
	r.UpdatedAt = now.Truncate(time.Second)
}
