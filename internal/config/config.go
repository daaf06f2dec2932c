// Package config loads cirgen.toml: the target triple, the emission
// policy thresholds and the result cache location.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"cirgen/internal/codegen"
	"cirgen/internal/constagg"
	"cirgen/internal/diag"
	"cirgen/internal/layout"
	"cirgen/internal/recordlayout"
	"cirgen/internal/source"
)

// FileName is the configuration file looked up by the CLI.
const FileName = "cirgen.toml"

type Config struct {
	Target TargetConfig `toml:"target"`
	Policy PolicyConfig `toml:"policy"`
	Cache  CacheConfig  `toml:"cache"`

	// Path is the file the configuration was read from, empty for the
	// defaults.
	Path string `toml:"-"`
}

type TargetConfig struct {
	Triple string `toml:"triple"`
}

type PolicyConfig struct {
	MemsetMinSize             int64 `toml:"memset_min_size"`
	MemsetNonzeroRatio        int64 `toml:"memset_nonzero_ratio"`
	ArrayTrailingZeroMin      int64 `toml:"array_trailing_zero_min"`
	FineGrainedBitFieldAccess bool  `toml:"fine_grained_bitfield_access"`
	PartialOrderingUnordered  int64 `toml:"partial_ordering_unordered"`
}

type CacheConfig struct {
	Dir     string `toml:"dir"`
	Enabled bool   `toml:"enabled"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	p := codegen.DefaultPolicy()
	return Config{
		Target: TargetConfig{Triple: layout.X86_64LinuxGNU().Triple},
		Policy: PolicyConfig{
			MemsetMinSize:            p.MemsetMinSize,
			MemsetNonzeroRatio:       p.MemsetNonzeroRatio,
			ArrayTrailingZeroMin:     constagg.DefaultTrailingZeroMin,
			PartialOrderingUnordered: p.PartialOrderingUnordered,
		},
		Cache: CacheConfig{Dir: ".cirgen-cache", Enabled: true},
	}
}

// Load reads and validates the file at path.
func Load(path string, r diag.Reporter) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Kind: ErrRead, Path: path, Err: err}
	}
	return Decode(path, string(data), r)
}

// LoadOrDefault loads path when it exists and returns the defaults
// otherwise.
func LoadOrDefault(path string, r diag.Reporter) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path, r)
}

// Decode parses data as a configuration file named path. Keys that are
// absent keep their default; unknown keys are reported as a warning.
func Decode(path, data string, r diag.Reporter) (Config, error) {
	if r == nil {
		r = diag.NopReporter{}
	}
	var raw Config
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, &Error{Kind: ErrDecode, Path: path, Err: err}
	}

	cfg := Default()
	cfg.Path = path
	if meta.IsDefined("target", "triple") {
		cfg.Target.Triple = strings.TrimSpace(raw.Target.Triple)
	}
	if meta.IsDefined("policy", "memset_min_size") {
		cfg.Policy.MemsetMinSize = raw.Policy.MemsetMinSize
	}
	if meta.IsDefined("policy", "memset_nonzero_ratio") {
		cfg.Policy.MemsetNonzeroRatio = raw.Policy.MemsetNonzeroRatio
	}
	if meta.IsDefined("policy", "array_trailing_zero_min") {
		cfg.Policy.ArrayTrailingZeroMin = raw.Policy.ArrayTrailingZeroMin
	}
	if meta.IsDefined("policy", "fine_grained_bitfield_access") {
		cfg.Policy.FineGrainedBitFieldAccess = raw.Policy.FineGrainedBitFieldAccess
	}
	if meta.IsDefined("policy", "partial_ordering_unordered") {
		cfg.Policy.PartialOrderingUnordered = raw.Policy.PartialOrderingUnordered
	}
	if meta.IsDefined("cache", "dir") {
		cfg.Cache.Dir = raw.Cache.Dir
	}
	if meta.IsDefined("cache", "enabled") {
		cfg.Cache.Enabled = raw.Cache.Enabled
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		diag.ReportWarning(r, diag.CfgUnknownKeys, source.Span{File: path},
			"unknown configuration keys: "+strings.Join(keys, ", ")).Emit()
	}

	if err := cfg.Validate(); err != nil {
		reportInvalid(r, path, err)
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field and joins the failures.
func (c Config) Validate() error {
	var errs []error
	if _, err := layout.ByTriple(c.Target.Triple); err != nil {
		errs = append(errs, &Error{Kind: ErrBadTarget, Path: c.Path, Key: "target.triple", Err: err})
	}
	positive := []struct {
		key string
		v   int64
	}{
		{"policy.memset_min_size", c.Policy.MemsetMinSize},
		{"policy.memset_nonzero_ratio", c.Policy.MemsetNonzeroRatio},
		{"policy.array_trailing_zero_min", c.Policy.ArrayTrailingZeroMin},
	}
	for _, p := range positive {
		if p.v <= 0 {
			errs = append(errs, &Error{Kind: ErrBadPolicy, Path: c.Path, Key: p.key, Err: fmt.Errorf("must be positive, got %d", p.v)})
		}
	}
	if v := c.Policy.PartialOrderingUnordered; v >= -1 && v <= 1 {
		errs = append(errs, &Error{Kind: ErrBadPolicy, Path: c.Path, Key: "policy.partial_ordering_unordered",
			Err: fmt.Errorf("%d collides with an ordered result", v)})
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Dir) == "" {
		errs = append(errs, &Error{Kind: ErrBadPolicy, Path: c.Path, Key: "cache.dir", Err: errors.New("empty directory with cache enabled")})
	}
	return errors.Join(errs...)
}

func reportInvalid(r diag.Reporter, path string, err error) {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		var ce *Error
		if !errors.As(e, &ce) {
			continue
		}
		code := diag.CfgBadPolicy
		if ce.Kind == ErrBadTarget {
			code = diag.CfgBadTarget
		}
		diag.ReportError(r, code, source.Span{File: path, Decl: ce.Key}, ce.Error()).Emit()
	}
}

// ResolveTarget resolves the configured triple.
func (c Config) ResolveTarget() (layout.Target, error) {
	return layout.ByTriple(c.Target.Triple)
}

// WithTriple returns a copy targeting triple, for command-line overrides.
func (c Config) WithTriple(triple string) Config {
	if triple != "" {
		c.Target.Triple = triple
	}
	return c
}

func (c Config) CodegenPolicy() codegen.Policy {
	return codegen.Policy{
		MemsetMinSize:            c.Policy.MemsetMinSize,
		MemsetNonzeroRatio:       c.Policy.MemsetNonzeroRatio,
		PartialOrderingUnordered: c.Policy.PartialOrderingUnordered,
	}
}

func (c Config) ConstOptions() constagg.Options {
	return constagg.Options{TrailingZeroMin: c.Policy.ArrayTrailingZeroMin}
}

func (c Config) LayoutOptions() recordlayout.Options {
	return recordlayout.Options{FineGrainedBitFieldAccess: c.Policy.FineGrainedBitFieldAccess}
}

// Fingerprint identifies every setting that changes emitted output.
func (c Config) Fingerprint() string {
	p := c.Policy
	return fmt.Sprintf("%s|%d|%d|%d|%t|%d", c.Target.Triple,
		p.MemsetMinSize, p.MemsetNonzeroRatio, p.ArrayTrailingZeroMin, p.FineGrainedBitFieldAccess, p.PartialOrderingUnordered)
}
