// Package graph stores the proximity graph as fixed-capacity adjacency
// records indexed by slot.
//
// Memory keeps every neighbor list in one flat arena guarded by a mutex per
// slot. Mapped reads the same records straight out of a persisted index.
// Both implement Store, so the search code does not care where the graph
// lives.
package graph
