// Package labels stores per-slot label sets and evaluates query filters.
//
// A filter passes a slot when the slot carries one of the filter's labels or
// the universal label (0 by default). Filtered search traverses every slot
// but only admits passing slots to its results; this package only answers
// the membership question.
//
// Each label also keeps a roaring posting bitmap, used to count label
// frequency, to pick per-label entry points and to restrict graph analysis
// to one label's subgraph.
//
// # File Formats
//
// Text label files hold one comma-separated label list per line, the same
// form used for per-query filter lists. CSR sparse matrices (.spmat) are
// converted by taking the column indices of each row as that row's labels.
package labels
