package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleUnit = `
[[record]]
name = "S"
fields = [{ name = "c", type = "char" }, { name = "i", type = "int" }]

[[global]]
name = "a"
type = "int[4]"
init = [1, 2]

[[global]]
name = "s"
type = "S"
init = [7, 9]

[[function]]
name = "sum"
returns = "int"
body = [{ return = { op = "+", lhs = { ref = "s", field = "c" }, rhs = { ref = "s", field = "i" } } }]
`

type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "cirgen.toml")
	body := "[cache]\ndir = " + quote(filepath.Join(dir, "cache")) + "\n"
	if err := os.WriteFile(cfg, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return workspace{dir: dir, config: cfg}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (w workspace) unit(t *testing.T, name, src string) string {
	t.Helper()
	p := filepath.Join(w.dir, name)
	if err := os.WriteFile(p, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func (w workspace) run(args ...string) (string, string, error) {
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--color", "off", "--config", w.config}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestLayoutCommand(t *testing.T) {
	w := newWorkspace(t)
	path := w.unit(t, "s.toml", sampleUnit)

	out, errOut, err := w.run("layout", path)
	if err != nil {
		t.Fatalf("layout: %v\n%s", err, errOut)
	}
	if !strings.Contains(out, "struct S  size=8 align=4") || !strings.Contains(out, "pad") {
		t.Fatalf("output:\n%s", out)
	}

	out, _, err = w.run("layout", path, "--target", "powerpc64-linux-gnu", "--record", "S", "--llvm")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "llvm: ") || !strings.Contains(out, "i32") {
		t.Fatalf("output:\n%s", out)
	}

	if _, _, err := w.run("layout", path, "--record", "Nope"); err == nil {
		t.Fatal("unknown record accepted")
	}
	if _, _, err := w.run("layout", path, "--target", "z80"); err == nil {
		t.Fatal("unknown target accepted")
	}
}

func TestConstCommand(t *testing.T) {
	w := newWorkspace(t)
	path := w.unit(t, "s.toml", sampleUnit)

	out, errOut, err := w.run("const", path)
	if err != nil {
		t.Fatalf("const: %v\n%s", err, errOut)
	}
	if !strings.Contains(out, "@a = #cir.const_array") || !strings.Contains(out, "@s = ") {
		t.Fatalf("output:\n%s", out)
	}

	out, _, err = w.run("const", path, "--llvm")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "@a = [4 x i32]") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestEmitCommand(t *testing.T) {
	w := newWorkspace(t)
	good := w.unit(t, "s.toml", sampleUnit)

	out, errOut, err := w.run("--timings", "emit", good)
	if err != nil {
		t.Fatalf("emit: %v\n%s", err, errOut)
	}
	if !strings.Contains(out, "sum") || !strings.Contains(errOut, "timings (1 unit)") {
		t.Fatalf("stdout:\n%s\nstderr:\n%s", out, errOut)
	}
	if _, err := os.Stat(filepath.Join(w.dir, "cache", "units")); err != nil {
		t.Fatalf("cache not written: %v", err)
	}

	again, _, err := w.run("emit", good)
	if err != nil || again != out {
		t.Fatalf("cached emit differs: %v", err)
	}

	out, _, err = w.run("emit", "--llvm", good)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "declare") && !strings.Contains(out, "define") {
		t.Fatalf("llvm output:\n%s", out)
	}
}

func TestEmitCommand_Diagnostics(t *testing.T) {
	w := newWorkspace(t)
	bad := w.unit(t, "r.toml", "[[record]]\nname = \"A\"\nfields = [{ name = \"a\", type = \"A\" }]\n")
	_, errOut, err := w.run("emit", "--no-cache", bad)
	if !errors.Is(err, errDiagnostics) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(errOut, "error[LAY1002]") || !strings.Contains(errOut, "record A") {
		t.Fatalf("stderr:\n%s", errOut)
	}
}

func TestTargetsCommand(t *testing.T) {
	w := newWorkspace(t)
	out, _, err := w.run("targets")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"x86_64-linux-gnu", "i386-linux-gnu", "big"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	w := newWorkspace(t)
	out, _, err := w.run("version", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var payload versionPayload
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("%v in %q", err, out)
	}
	if payload.Tool != "cirgen" || payload.Version == "" {
		t.Fatalf("payload = %+v", payload)
	}
	if _, _, err := w.run("version", "--format", "yaml"); err == nil {
		t.Fatal("yaml accepted")
	}
}

func TestApplyColor(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{"auto", false},
		{"on", false},
		{"off", false},
		{"always", true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			if err := applyColor(tt.mode, false); (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestWriteTable_WideRunes(t *testing.T) {
	var buf bytes.Buffer
	writeTable(&buf, "", [][]string{{"名前", "x"}, {"ab", "y"}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || lines[0] != "名前  x" || lines[1] != "ab    y" {
		t.Fatalf("table:\n%s", buf.String())
	}
}

func TestReadUIMode(t *testing.T) {
	tests := []struct {
		in   string
		want uiMode
		err  bool
	}{
		{"", uiModeAuto, false},
		{" Auto ", uiModeAuto, false},
		{"on", uiModeOn, false},
		{"OFF", uiModeOff, false},
		{"maybe", "", true},
	}
	for _, tt := range tests {
		got, err := readUIMode(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Fatalf("readUIMode(%q) = %q, %v", tt.in, got, err)
		}
	}
	if shouldUseTUI(uiModeOff, 4) || !shouldUseTUI(uiModeOn, 1) {
		t.Fatal("explicit modes ignored")
	}
}

func TestEmitCommand_Profiles(t *testing.T) {
	w := newWorkspace(t)
	path := w.unit(t, "s.toml", sampleUnit)
	cpu := filepath.Join(w.dir, "cpu.out")
	heap := filepath.Join(w.dir, "heap.out")
	if _, stderr, err := w.run("emit", "--ui", "off", "--cpu-profile", cpu, "--mem-profile", heap, path); err != nil {
		t.Fatalf("emit: %v\n%s", err, stderr)
	}
	for _, p := range []string{cpu, heap} {
		if fi, err := os.Stat(p); err != nil || fi.Size() == 0 {
			t.Fatalf("%s: %v", p, err)
		}
	}
	if _, _, err := w.run("emit", "--ui", "sideways", path); err == nil {
		t.Fatal("bad --ui accepted")
	}
}
