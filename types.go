package vamana

import (
	"github.com/hupe1980/vamana/internal/layout"
	"github.com/hupe1980/vamana/internal/resource"
)

// Compression selects the block codec of the record section in saved files.
// Only uncompressed files can be searched in place by OpenFile.
type Compression = layout.Compression

const (
	CompressionNone = layout.CompressionNone
	CompressionLZ4  = layout.CompressionLZ4
	CompressionZSTD = layout.CompressionZSTD
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	return layout.ParseCompression(s)
}

// ResourceController bounds memory, background work and IO throughput of
// one or more indexes.
type ResourceController = resource.Controller

// ResourceConfig holds the limits of a ResourceController.
type ResourceConfig = resource.Config

// NewResourceController creates a controller enforcing cfg.
func NewResourceController(cfg ResourceConfig) *ResourceController {
	return resource.NewController(cfg)
}

// DefaultResourceConfig grants percent of physical memory.
func DefaultResourceConfig(percent int) ResourceConfig {
	return resource.DefaultConfig(percent)
}
