package prof

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProfiler_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	p := Paths{
		CPU:   filepath.Join(dir, "cpu.out"),
		Heap:  filepath.Join(dir, "heap.out"),
		Trace: filepath.Join(dir, "trace.out"),
	}
	pr, err := Start(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := pr.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := pr.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	for _, path := range []string{p.CPU, p.Heap, p.Trace} {
		if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
			t.Fatalf("%s: %v", path, err)
		}
	}
}

func TestStart_BadPath(t *testing.T) {
	dir := t.TempDir()
	_, err := Start(Paths{CPU: filepath.Join(dir, "cpu.out"), Trace: filepath.Join(dir, "missing", "trace.out")})
	if err == nil {
		t.Fatal("expected an error")
	}
	// The CPU profile must have been stopped again.
	pr, err := Start(Paths{CPU: filepath.Join(dir, "cpu2.out")})
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := pr.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestPaths_Empty(t *testing.T) {
	if !(Paths{}).Empty() || (Paths{Heap: "h"}).Empty() {
		t.Fatal("Empty is wrong")
	}
	var pr *Profiler
	if err := pr.Stop(); err != nil {
		t.Fatal(err)
	}
}
