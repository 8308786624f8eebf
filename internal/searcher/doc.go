// Package searcher provides per-query scratch memory for graph search.
//
// A Scratch owns everything one traversal needs:
//   - the bounded frontier (search list) ordered by distance
//   - the visited set (bitset with a dirty list for cheap reset)
//   - a bounded result heap for filtered queries
//   - buffers for expanded nodes and neighbor copies
//
// Scratches are handed out by a Pool with a fixed upper size. Get blocks
// while every scratch is in use, until one is returned or the context ends.
package searcher
