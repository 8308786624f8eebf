// Package mmap maps persisted index files into memory read-only.
//
// The mapped vector and graph stores address fixed-stride slot records
// directly inside the mapping, so a saved index can be searched without
// first copying it onto the heap.
//
//	m, err := mmap.Open("index.vmn")
//	if err != nil { ... }
//	defer m.Close()
//	rec, _ := m.Region(off, recordSize)
//
// Unix uses mmap(2) and madvise(2); Windows uses MapViewOfFile and ignores
// access hints.
package mmap
