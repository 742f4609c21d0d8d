package longtermmemory

// State machine of a MemoryRecord (§4.7), documented rather than
// encoded as an explicit enum since the record's state is fully derived
// from its field values:
//
//	candidate   -> persisted_at == nil: produced by the pipeline, not yet
//	               visible to search.
//	persisted   -> persisted_at != nil, superseded_by == "": the normal,
//	               searchable state.
//	superseded  -> superseded_by != "": excluded from search results
//	               (invariant 4), but never deleted; Supersede is the only
//	               writer and enforces acyclicity (see Supersede).
//	deleted     -> deleted_at != nil: Forget's terminal state. Episodic
//	               records with a future event_date are never transitioned
//	               here (see internal/pipeline/forget.go).
//
// The one guard this package adds beyond what the interfaces already
// enforce is supersede acyclicity, walked explicitly in Supersede up to
// maxSupersedeChainDepth.
