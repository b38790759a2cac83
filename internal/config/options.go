// Package config persists the per-index Options sidecar that travels
// alongside an index directory so a later open can recover how it was built
// without the caller having to remember the original construction flags.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/coblo/isccidx/internal/errors"
)

// optionsFile is the fixed sidecar filename written into an index directory.
const optionsFile = "options.yaml"

// Options controls what an Index stores and where. The three index_*
// toggles are tri-state (*bool): nil means "not specified by this
// Options value", letting Merge layer a partial override (e.g.
// Options{IndexFeatures: Bool(true)}) onto defaults without silently
// flipping the other two toggles back to their bool zero value.
type Options struct {
	// IndexRoot is the directory containing the named index subdirectory.
	IndexRoot string `yaml:"index_root"`
	// IndexComponents enables the inverted component -> ISCC index.
	// Defaults to true.
	IndexComponents *bool `yaml:"index_components"`
	// IndexFeatures enables per-kind granular feature sub-stores.
	// Defaults to false.
	IndexFeatures *bool `yaml:"index_features"`
	// IndexMetadata enables storage of metadata envelopes alongside ISCCs.
	// Defaults to false.
	IndexMetadata *bool `yaml:"index_metadata"`
	// InitialMapSize is the starting size, in bytes, of the backing store's
	// growable map. Defaults to 1 MiB, doubling on MapFull.
	InitialMapSize int64 `yaml:"initial_map_size"`
	// ANNBackend selects the match_component scanner: "cursor" (default,
	// exact) or "hnsw" (approximate, superset not guaranteed).
	ANNBackend string `yaml:"ann_backend"`
}

// Bool returns a pointer to b, for populating Options' tri-state toggles
// from a literal (e.g. Options{IndexFeatures: config.Bool(true)}).
func Bool(b bool) *bool { return &b }

// ComponentsEnabled reports whether component indexing is on (default true).
func (o Options) ComponentsEnabled() bool { return boolOr(o.IndexComponents, true) }

// FeaturesEnabled reports whether feature indexing is on (default false).
func (o Options) FeaturesEnabled() bool { return boolOr(o.IndexFeatures, false) }

// MetadataEnabled reports whether metadata storage is on (default false).
func (o Options) MetadataEnabled() bool { return boolOr(o.IndexMetadata, false) }

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// DefaultOptions returns the zero-value-safe defaults: component
// indexing on, features and metadata off.
func DefaultOptions() Options {
	home, err := os.UserHomeDir()
	root := filepath.Join(os.TempDir(), "iscc-idx")
	if err == nil {
		root = filepath.Join(home, ".iscc-idx", "indexes")
	}

	return Options{
		IndexRoot:       root,
		IndexComponents: Bool(true),
		IndexFeatures:   Bool(false),
		IndexMetadata:   Bool(false),
		InitialMapSize:  1 << 20,
		ANNBackend:      "cursor",
	}
}

// Merge applies only the explicitly-set fields of override onto a copy of
// the receiver (typically defaults), mirroring the Python side's
// **options kwargs-over-defaults construction. A nil toggle in override
// leaves the receiver's value untouched instead of resetting it to false.
func (o Options) Merge(override Options) Options {
	merged := o

	if override.IndexRoot != "" {
		merged.IndexRoot = override.IndexRoot
	}
	if override.IndexComponents != nil {
		merged.IndexComponents = override.IndexComponents
	}
	if override.IndexFeatures != nil {
		merged.IndexFeatures = override.IndexFeatures
	}
	if override.IndexMetadata != nil {
		merged.IndexMetadata = override.IndexMetadata
	}
	if override.InitialMapSize > 0 {
		merged.InitialMapSize = override.InitialMapSize
	}
	if override.ANNBackend != "" {
		merged.ANNBackend = override.ANNBackend
	}

	return merged
}

// Dir returns the on-disk directory this Options set implies for an index
// of the given name: <index_root>/<name>/.
func (o Options) Dir(name string) string {
	return filepath.Join(o.IndexRoot, name)
}

// Load reads the options.yaml sidecar from an index directory. A missing
// sidecar is not an error: the zero Options and ok=false are returned so
// callers can fall back to caller-supplied construction options.
func Load(dir string) (Options, bool, error) {
	path := filepath.Join(dir, optionsFile)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Options{}, false, nil
	}
	if err != nil {
		return Options{}, false, errors.IOErr("failed to read options sidecar", err)
	}

	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, false, errors.Wrap(errors.ErrCodeIOError, err).
			WithDetail("path", path)
	}

	return opts, true, nil
}

// Save writes the options.yaml sidecar into dir, creating dir if needed.
func Save(dir string, opts Options) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.IOErr("failed to create index directory", err)
	}

	data, err := yaml.Marshal(opts)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}

	path := filepath.Join(dir, optionsFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IOErr("failed to write options sidecar", err)
	}

	return nil
}
