package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cirgen/internal/diag"
)

func TestDecode_MissingKeysKeepDefaults(t *testing.T) {
	bag := diag.NewBag(8)
	cfg, err := Decode("cirgen.toml", "[policy]\nmemset_min_size = 32\n", diag.BagReporter{Bag: bag})
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.Policy.MemsetMinSize != 32 {
		t.Fatalf("memset_min_size = %d", cfg.Policy.MemsetMinSize)
	}
	if cfg.Policy.MemsetNonzeroRatio != def.Policy.MemsetNonzeroRatio || cfg.Target.Triple != def.Target.Triple {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Dir != ".cirgen-cache" {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if bag.Len() != 0 {
		t.Fatalf("unexpected diagnostics:\n%s", bag.Format())
	}
}

func TestDecode_ExplicitFalseOverridesDefault(t *testing.T) {
	cfg, err := Decode("c.toml", "[cache]\nenabled = false\ndir = \"\"\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Enabled {
		t.Fatal("cache should be disabled")
	}
}

func TestDecode_UnknownKeysWarn(t *testing.T) {
	bag := diag.NewBag(8)
	_, err := Decode("c.toml", "[policy]\nmemset_min = 3\n[extra]\nx = 1\n", diag.BagReporter{Bag: bag})
	if err != nil {
		t.Fatal(err)
	}
	items := bag.Items()
	if len(items) != 1 || items[0].Code != diag.CfgUnknownKeys {
		t.Fatalf("diagnostics:\n%s", bag.Format())
	}
	if !strings.Contains(items[0].Message, "policy.memset_min") {
		t.Fatalf("message = %q", items[0].Message)
	}
	if bag.HasErrors() {
		t.Fatal("unknown keys must not be errors")
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		code diag.Code
		kind ErrorKind
	}{
		{"bad triple", "[target]\ntriple = \"mips-elf\"\n", diag.CfgBadTarget, ErrBadTarget},
		{"zero ratio", "[policy]\nmemset_nonzero_ratio = 0\n", diag.CfgBadPolicy, ErrBadPolicy},
		{"ordered unordered", "[policy]\npartial_ordering_unordered = 1\n", diag.CfgBadPolicy, ErrBadPolicy},
		{"empty cache dir", "[cache]\ndir = \" \"\n", diag.CfgBadPolicy, ErrBadPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bag := diag.NewBag(8)
			_, err := Decode("c.toml", tt.data, diag.BagReporter{Bag: bag})
			var ce *Error
			if !errors.As(err, &ce) || ce.Kind != tt.kind {
				t.Fatalf("err = %v", err)
			}
			if !bag.HasErrors() || bag.Items()[0].Code != tt.code {
				t.Fatalf("diagnostics:\n%s", bag.Format())
			}
		})
	}
}

func TestDecode_SyntaxError(t *testing.T) {
	_, err := Decode("c.toml", "[policy\n", nil)
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != ErrDecode {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(filepath.Join(dir, FileName), nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Fingerprint() != Default().Fingerprint() {
		t.Fatalf("fingerprint = %s", cfg.Fingerprint())
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("[target]\ntriple = \"i386-linux-gnu\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOrDefault(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	tg, err := cfg.ResolveTarget()
	if err != nil || tg.PtrSize != 4 {
		t.Fatalf("target = %+v, %v", tg, err)
	}
	if cfg.Fingerprint() == Default().Fingerprint() {
		t.Fatal("fingerprint ignores the target")
	}
}

func TestConfig_Projections(t *testing.T) {
	cfg := Default()
	cfg.Policy.FineGrainedBitFieldAccess = true
	cfg.Policy.ArrayTrailingZeroMin = 3
	if !cfg.LayoutOptions().FineGrainedBitFieldAccess {
		t.Fatal("layout options")
	}
	if cfg.ConstOptions().TrailingZeroMin != 3 {
		t.Fatal("const options")
	}
	if p := cfg.CodegenPolicy(); p.PartialOrderingUnordered != -127 || p.MemsetMinSize != 16 {
		t.Fatalf("policy = %+v", p)
	}
	if got := cfg.WithTriple("").Target.Triple; got != cfg.Target.Triple {
		t.Fatalf("empty override changed triple to %q", got)
	}
}
