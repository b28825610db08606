package vectorindex

import "finsight/pkg/model"

// Filter is the small typed query tree spec.md §4.3 calls the "Filter
// DSL": equality, $in, numeric range ($gte/$lte), and a top-level $and.
// No corpus example ships a query-filter compiler, and the shape here is
// small enough that a third-party query engine would add indirection
// without adding capability — this is the one deliberately stdlib-only
// piece of the retrieval substrate (see DESIGN.md).
type Filter struct {
	UploadID      *EqualFilter
	UserID        *EqualFilter
	Kind          *EqualFilter
	Category      *InFilter
	DateRange     *RangeFilter // over Metadata.DateTimestamp
	AmountRange   *RangeFilter // over Metadata.Amount
	And           []Filter
}

type EqualFilter struct{ Value string }

type InFilter struct{ Values []string }

type RangeFilter struct {
	GTE *float64
	LTE *float64
}

// WithUploadID returns a copy of f with UploadID constrained to id. The
// orchestrator uses this to inject the workspace scope into every
// retrieval path (spec.md §4.3's "principal correctness bug" clause).
func (f Filter) WithUploadID(id string) Filter {
	f.UploadID = &EqualFilter{Value: id}
	return f
}

// Match reports whether a VectorDoc's metadata satisfies the filter.
func (f Filter) Match(doc model.VectorDoc) bool {
	if f.UploadID != nil && doc.Metadata.UploadID != f.UploadID.Value {
		return false
	}
	if f.UserID != nil && doc.Metadata.UserID != f.UserID.Value {
		return false
	}
	if f.Kind != nil && doc.Metadata.Kind != f.Kind.Value {
		return false
	}
	if f.Category != nil {
		found := false
		for _, v := range f.Category.Values {
			if v == doc.Metadata.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DateRange != nil && !inRange(float64(doc.Metadata.DateTimestamp), f.DateRange) {
		return false
	}
	if f.AmountRange != nil && !inRange(doc.Metadata.Amount, f.AmountRange) {
		return false
	}
	for _, sub := range f.And {
		if !sub.Match(doc) {
			return false
		}
	}
	return true
}

func inRange(v float64, r *RangeFilter) bool {
	if r.GTE != nil && v < *r.GTE {
		return false
	}
	if r.LTE != nil && v > *r.LTE {
		return false
	}
	return true
}

// RequiresUploadID reports whether this filter (or any of its $and
// branches) pins an upload_id. ScopedRetriever does not call it; it
// pins upload_id itself (see retriever.go).
func (f Filter) RequiresUploadID() bool {
	if f.UploadID != nil {
		return true
	}
	for _, sub := range f.And {
		if sub.RequiresUploadID() {
			return true
		}
	}
	return false
}
