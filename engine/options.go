package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arborstore/recordstore/internal/compression"
)

// FormatVersion is the only app-metadata format version this engine
// understands. Every table reports it from Table.AppMetadata; app
// metadata is not persisted, so a reopened table reports it as well.
const FormatVersion = 1

// TableConfig describes how a table (the engine's unit of an open
// collection) should be created. It mirrors the order-preserving creation
// string: type, memory_page_max, split_pct, leaf_value_max,
// checksum, optional prefix_compression, block_compressor, caller-supplied
// extra, key_format, value_format, app_metadata.
type TableConfig struct {
	// Oplog forces file-backed storage and records
	// oplogKeyExtractionVersion=1 in app_metadata.
	Oplog bool

	// BlockCompressor names the value compressor: "none", "snappy",
	// "zstd", or "lz4". Oplog tables default to "snappy" if unset.
	BlockCompressor string

	// PrefixCompression enables the optional prefix_compression key.
	PrefixCompression bool

	// Extra carries caller-supplied customization keys. Any key not in
	// knownExtraKeys is rejected with ErrInvalidOptions.
	Extra map[string]string
}

var knownExtraKeys = map[string]bool{
	"cache_size":      true,
	"bloom_bits":      true,
	"log_size_for_gc": true,
}

// Compressor resolves the configured block_compressor to a concrete
// compression.Type, applying the same default that BuildCreateConfig
// renders into the creation string.
func (c TableConfig) Compressor() (compression.Type, error) {
	name := c.BlockCompressor
	if name == "" {
		if c.Oplog {
			name = "snappy"
		} else {
			name = "none"
		}
	}
	switch strings.ToLower(name) {
	case "none":
		return compression.None, nil
	case "snappy":
		return compression.Snappy, nil
	case "zstd":
		return compression.Zstd, nil
	case "lz4":
		return compression.LZ4, nil
	default:
		return 0, fmt.Errorf("%w: unknown block_compressor %q", ErrInvalidOptions, name)
	}
}

// BuildCreateConfig renders the order-preserving creation string. It is diagnostic/administrative (e.g. for logging what a
// table was opened with); the engine itself is driven by the parsed
// TableConfig, not by re-parsing this string.
func BuildCreateConfig(c TableConfig) (string, error) {
	if err := validateExtra(c.Extra); err != nil {
		return "", err
	}

	tableType := "lsm-tree"
	memoryPageMax := "10mb"
	if c.Oplog {
		tableType = "file"
		memoryPageMax = "10m"
	}

	parts := []string{
		fmt.Sprintf("type=%s", tableType),
		fmt.Sprintf("memory_page_max=%s", memoryPageMax),
		"split_pct=90",
		"leaf_value_max=64mb",
		"checksum=on",
	}
	if c.PrefixCompression {
		parts = append(parts, "prefix_compression=true")
	}
	if _, err := c.Compressor(); err != nil {
		return "", err
	}
	comp := c.BlockCompressor
	if comp == "" {
		if c.Oplog {
			comp = "snappy"
		} else {
			comp = "none"
		}
	}
	parts = append(parts, fmt.Sprintf("block_compressor=%s", comp))

	if len(c.Extra) > 0 {
		keys := make([]string, 0, len(c.Extra))
		for k := range c.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		extraParts := make([]string, 0, len(keys))
		for _, k := range keys {
			extraParts = append(extraParts, fmt.Sprintf("%s=%s", k, c.Extra[k]))
		}
		parts = append(parts, fmt.Sprintf("extra=(%s)", strings.Join(extraParts, ",")))
	}

	parts = append(parts, "key_format=q", "value_format=u")

	appMeta := fmt.Sprintf("formatVersion=%d", FormatVersion)
	if c.Oplog {
		appMeta += ",oplogKeyExtractionVersion=1"
	}
	parts = append(parts, fmt.Sprintf("app_metadata=(%s)", appMeta))

	return strings.Join(parts, ","), nil
}

func validateExtra(extra map[string]string) error {
	for k := range extra {
		if !knownExtraKeys[k] {
			return fmt.Errorf("%w: unknown extra key %q", ErrInvalidOptions, k)
		}
	}
	return nil
}

// AppMetadata is the parsed app_metadata a table was created or opened
// with. A formatVersion outside [1,1] is fatal at open.
type AppMetadata struct {
	FormatVersion             int
	OplogKeyExtractionVersion int
}

// ValidateFormatVersion enforces the supported [min,max] range.
func ValidateFormatVersion(v int) error {
	const min, max = 1, 1
	if v < min || v > max {
		return fmt.Errorf("engine: format version %d unsupported (supported [%d,%d])", v, min, max)
	}
	return nil
}
