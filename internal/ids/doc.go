// Package ids maps stable external vector identifiers onto dense internal
// slots.
//
// Slots index every hot-path structure (vector arena, adjacency lists,
// visited sets). Released slots go onto a LIFO free-list and are handed out
// again by the next Allocate, so live slots stay packed at the low end of the
// range.
//
// Allocate and Release are serialized by the allocator's own lock. Releasing
// a slot while a query may still traverse it is a caller error: the index
// only releases slots after tombstoned nodes have been unlinked from the
// graph.
package ids
