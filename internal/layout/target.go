package layout

import (
	"fmt"

	"cirgen/internal/types"
)

// Target describes the data-layout rules of an ABI target.
type Target struct {
	Triple    string
	PtrSize   int64 // bytes
	PtrAlign  int64 // bytes
	BigEndian bool
	Model     types.Model

	Int64Align  int64 // alignment of 64-bit integers inside records
	DoubleAlign int64
	Int128Align int64
	MaxVecAlign int64

	// RegisterWidth bounds bit-field access units, in bits.
	RegisterWidth int64

	// UseBitFieldTypeAlignment: a bit-field may not straddle a boundary of
	// its declared type, and zero-length bit-fields align to that type.
	UseBitFieldTypeAlignment bool
	// UseZeroLengthBitfieldAlignment: zero-length bit-fields align the next
	// field even when UseBitFieldTypeAlignment is off.
	UseZeroLengthBitfieldAlignment bool

	// OverlappingVBaseABI allows virtual bases to start before the
	// non-virtual size (Itanium).
	OverlappingVBaseABI bool

	// NullPointerIsZero holds when the null pointer is all-zero bits.
	NullPointerIsZero bool
}

func X86_64LinuxGNU() Target {
	return Target{
		Triple:                   "x86_64-linux-gnu",
		PtrSize:                  8,
		PtrAlign:                 8,
		Model:                    types.LP64,
		Int64Align:               8,
		DoubleAlign:              8,
		Int128Align:              16,
		MaxVecAlign:              16,
		RegisterWidth:            64,
		UseBitFieldTypeAlignment: true,
		OverlappingVBaseABI:      true,
		NullPointerIsZero:        true,
	}
}

func AArch64LinuxGNU() Target {
	t := X86_64LinuxGNU()
	t.Triple = "aarch64-linux-gnu"
	t.Model.CharSigned = false
	return t
}

func I386LinuxGNU() Target {
	return Target{
		Triple:                   "i386-linux-gnu",
		PtrSize:                  4,
		PtrAlign:                 4,
		Model:                    types.ILP32,
		Int64Align:               4,
		DoubleAlign:              4,
		Int128Align:              4,
		MaxVecAlign:              16,
		RegisterWidth:            32,
		UseBitFieldTypeAlignment: true,
		OverlappingVBaseABI:      true,
		NullPointerIsZero:        true,
	}
}

func PPC64LinuxGNU() Target {
	t := X86_64LinuxGNU()
	t.Triple = "powerpc64-linux-gnu"
	t.BigEndian = true
	t.Model.CharSigned = false
	return t
}

// ByTriple returns the built-in target for triple.
func ByTriple(triple string) (Target, error) {
	switch triple {
	case "", "x86_64-linux-gnu", "x86_64-unknown-linux-gnu":
		return X86_64LinuxGNU(), nil
	case "aarch64-linux-gnu", "aarch64-unknown-linux-gnu":
		return AArch64LinuxGNU(), nil
	case "i386-linux-gnu", "i686-linux-gnu":
		return I386LinuxGNU(), nil
	case "powerpc64-linux-gnu", "ppc64-linux-gnu":
		return PPC64LinuxGNU(), nil
	}
	return Target{}, fmt.Errorf("unknown target triple %q", triple)
}

// Triples lists the built-in targets.
func Triples() []string {
	return []string{"x86_64-linux-gnu", "aarch64-linux-gnu", "i386-linux-gnu", "powerpc64-linux-gnu"}
}
