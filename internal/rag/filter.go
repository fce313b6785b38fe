package rag

import "time"

// Filter is the attribute predicate applied to searches and deletions.
//
// The set fields form one conjunctive clause. When OrPermanent is true a
// record also matches if it is permanent, regardless of the clause.
type Filter struct {
	// ScopeID restricts the clause to one scope when non-empty.
	ScopeID string
	// Permanence restricts the clause to one permanence when non-empty.
	Permanence Permanence
	// UploadedBefore restricts the clause to records strictly older than it
	// when non-zero.
	UploadedBefore time.Time
	// OrPermanent widens the match to every permanent record.
	OrPermanent bool
}

// VisibleTo is the retrieval predicate for a caller: its own scope plus every
// permanent record.
func VisibleTo(scopeID string) Filter {
	return Filter{ScopeID: scopeID, OrPermanent: true}
}

// InScope matches records of one scope and permanence.
func InScope(scopeID string, p Permanence) Filter {
	return Filter{ScopeID: scopeID, Permanence: p}
}

// AllPermanent matches every permanent record.
func AllPermanent() Filter {
	return Filter{Permanence: Permanent}
}

// ExpiredBefore matches temporary records uploaded before cutoff.
func ExpiredBefore(cutoff time.Time) Filter {
	return Filter{Permanence: Temporary, UploadedBefore: cutoff}
}

// IsZero reports whether the filter has no constraints and would match
// every record.
func (f Filter) IsZero() bool {
	return f.ScopeID == "" && f.Permanence == "" && f.UploadedBefore.IsZero()
}

// Matches evaluates the filter against rec.
func (f Filter) Matches(rec ChunkRecord) bool {
	if f.OrPermanent && rec.Permanence == Permanent {
		return true
	}
	if f.ScopeID != "" && rec.ScopeID != f.ScopeID {
		return false
	}
	if f.Permanence != "" && rec.Permanence != f.Permanence {
		return false
	}
	if !f.UploadedBefore.IsZero() && !rec.UploadedAt.Before(f.UploadedBefore) {
		return false
	}
	return true
}
