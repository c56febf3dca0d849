package resync

import (
	"time"

	"huddle/pkg/models"
)

// Reconciler merges a reconnecting client's locally cached state with
// the authoritative snapshot served on join. The authoritative side
// sets the freshness baseline per entity type: local rows lagging more
// than the tolerance behind the newest authoritative row are treated as
// stale replays and dropped, the rest merge last-writer-wins.
type Reconciler struct {
	tolerance time.Duration
}

// NewReconciler builds a reconciler; zero or negative tolerance falls
// back to DefaultTolerance.
func NewReconciler(tolerance time.Duration) *Reconciler {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Reconciler{tolerance: tolerance}
}

// Reconcile merges every entity type present on either side. Types the
// server has never stored keep the client's rows unfiltered, since no
// baseline exists to judge them against.
func (r *Reconciler) Reconcile(local, authoritative models.InitState) models.InitState {
	out := make(models.InitState, len(authoritative)+len(local))
	for typ, auth := range authoritative {
		gate := NewFreshnessGate(r.tolerance)
		for _, env := range auth {
			gate.Admit(env.ServerTimestamp)
		}
		loc := local[typ]
		fresh := make([]models.Envelope, 0, len(loc))
		for _, env := range loc {
			if gate.Admit(env.ServerTimestamp) {
				fresh = append(fresh, env)
			}
		}
		out[typ] = MergeSnapshot(fresh, auth)
	}
	for typ, loc := range local {
		if _, ok := out[typ]; !ok {
			out[typ] = append([]models.Envelope(nil), loc...)
		}
	}
	return out
}
