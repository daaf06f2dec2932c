package driver

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"cirgen/internal/diag"
	"cirgen/internal/observ"
	"cirgen/internal/source"
)

// Current schema version - increment when DiskPayload format changes
const diskCacheSchemaVersion uint16 = 1

// DiskCache stores emitted units by UnitKey. Thread-safe for concurrent
// access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// CachedNote is the serializable form of a diag.Note.
type CachedNote struct {
	File string
	Decl string
	Msg  string
}

// CachedDiagnostic is the serializable form of a diag.Diagnostic.
type CachedDiagnostic struct {
	Severity uint8
	Code     uint16
	Message  string
	File     string
	Decl     string
	Notes    []CachedNote
}

// DiskPayload is one emitted unit.
type DiskPayload struct {
	Schema      uint16
	Path        string
	Fingerprint string
	// IR is the printed module.
	IR          string
	Diagnostics []CachedDiagnostic
	Timing      observ.Report
}

// OpenDiskCache creates dir if needed and returns a cache rooted there.
func OpenDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// Dir is the cache root.
func (c *DiskCache) Dir() string { return c.dir }

func (c *DiskCache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "units", key.String()+".mp")
}

// Put serializes and writes a payload to the disk cache.
func (c *DiskCache) Put(key Digest, payload *DiskPayload) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		// after a successful rename the temp file is gone
		_ = os.Remove(tmp)
	}()

	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Get reads a payload. A missing entry or one written under another
// schema is a miss.
func (c *DiskCache) Get(key Digest, out *DiskPayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, err
	}
	if out.Schema != diskCacheSchemaVersion {
		*out = DiskPayload{}
		return false, nil
	}
	return true, nil
}

// DropAll removes every cached unit.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "units"))
}

func toCached(items []diag.Diagnostic) []CachedDiagnostic {
	if len(items) == 0 {
		return nil
	}
	out := make([]CachedDiagnostic, len(items))
	for i, d := range items {
		cd := CachedDiagnostic{
			Severity: uint8(d.Severity),
			Code:     uint16(d.Code),
			Message:  d.Message,
			File:     d.Primary.File,
			Decl:     d.Primary.Decl,
		}
		for _, n := range d.Notes {
			cd.Notes = append(cd.Notes, CachedNote{File: n.Span.File, Decl: n.Span.Decl, Msg: n.Msg})
		}
		out[i] = cd
	}
	return out
}

// replay adds the cached diagnostics to bag.
func replay(bag *diag.Bag, items []CachedDiagnostic) {
	for _, cd := range items {
		d := diag.Diagnostic{
			Severity: diag.Severity(cd.Severity),
			Code:     diag.Code(cd.Code),
			Message:  cd.Message,
			Primary:  source.Span{File: cd.File, Decl: cd.Decl},
		}
		for _, n := range cd.Notes {
			d.Notes = append(d.Notes, diag.Note{Span: source.Span{File: n.File, Decl: n.Decl}, Msg: n.Msg})
		}
		bag.Add(d)
	}
}
