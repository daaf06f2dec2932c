package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	// record layout
	LayInfo                Code = 1000
	LayIncompleteRecord    Code = 1001
	LayRecursiveRecord     Code = 1002
	LayUnsupportedBitfield Code = 1003

	// constant emission
	CstInfo             Code = 2000
	CstFlexibleArrayDyn Code = 2001 // flexible array initializer needs a constant
	CstFallbackDynamic  Code = 2002 // initializer not foldable, emitted as code

	// aggregate and scalar emission
	EmtInfo               Code = 3000
	EmtUnsupportedCast    Code = 3001
	EmtAggregateCompare   Code = 3002
	EmtUnknownDecl        Code = 3003
	EmtTypeMismatch       Code = 3004
	EmtNotAggregate       Code = 3005
	EmtCallNeedsPrototype Code = 3006

	// translation-unit input
	UntInfo          Code = 4000
	UntBadType       Code = 4001
	UntUnknownRecord Code = 4002
	UntBadInit       Code = 4003
	UntDuplicateDecl Code = 4004
	UntBadField      Code = 4005

	// configuration
	CfgInfo        Code = 5000
	CfgBadTarget   Code = 5001
	CfgBadPolicy   Code = 5002
	CfgUnknownKeys Code = 5003

	// recognised but not implemented; each code names one feature
	NYIInfo              Code = 9000
	NYIAtomicAggregate   Code = 9001
	NYIVariableArray     Code = 9002
	NYIStmtExpr          Code = 9003
	NYILambda            Code = 9004
	NYIArrayConstructor  Code = 9005
	NYIDerivedToBase     Code = 9006
	NYIGCBarriers        Code = 9007
	NYIMemberPointer     Code = 9008
	NYIComplex           Code = 9009
	NYIVAArg             Code = 9010
	NYIReferenceMember   Code = 9011
	NYIVirtualBaseInit   Code = 9012
	NYIArrayEHCleanup    Code = 9013
	NYIVTablePointer     Code = 9014
	NYIVectorElement     Code = 9015
	NYIAddrLabelDiff     Code = 9016
	NYINonTrivialCopy    Code = 9017
	NYIGlobalDestructor  Code = 9018
	NYIScalarConditional Code = 9019
)

var codeDescription = map[Code]string{
	UnknownCode:            "Unknown error",
	LayInfo:                "Record layout information",
	LayIncompleteRecord:    "Record layout requested for an incomplete record",
	LayRecursiveRecord:     "Record contains itself by value",
	LayUnsupportedBitfield: "Bit-field type cannot be laid out",
	CstInfo:                "Constant emission information",
	CstFlexibleArrayDyn:    "Flexible array member initializer is not a constant",
	CstFallbackDynamic:     "Initializer is emitted as code",
	EmtInfo:                "Emission information",
	EmtUnsupportedCast:     "Cast kind cannot produce an aggregate",
	EmtAggregateCompare:    "Three-way comparison of aggregate operands",
	EmtUnknownDecl:         "Reference to an undeclared variable",
	EmtTypeMismatch:        "Expression type does not match destination",
	EmtNotAggregate:        "Expression is not of aggregate type",
	EmtCallNeedsPrototype:  "Call to an undeclared function",
	UntInfo:                "Unit information",
	UntBadType:             "Malformed type",
	UntUnknownRecord:       "Unknown record",
	UntBadInit:             "Malformed initializer",
	UntDuplicateDecl:       "Duplicate declaration",
	UntBadField:            "Malformed field",
	CfgInfo:                "Configuration information",
	CfgBadTarget:           "Unknown target",
	CfgBadPolicy:           "Invalid policy value",
	CfgUnknownKeys:         "Unknown configuration keys",
	NYIInfo:                "Not yet implemented",
	NYIAtomicAggregate:     "atomic aggregate assignment",
	NYIVariableArray:       "variable length array",
	NYIStmtExpr:            "statement expression",
	NYILambda:              "lambda expression",
	NYIArrayConstructor:    "array constructor call",
	NYIDerivedToBase:       "derived-to-base conversion of an aggregate rvalue",
	NYIGCBarriers:          "garbage-collected aggregate copy",
	NYIMemberPointer:       "member pointer constant",
	NYIComplex:             "complex value",
	NYIVAArg:               "va_arg of aggregate type",
	NYIReferenceMember:     "reference member initialization",
	NYIVirtualBaseInit:     "virtual base in initializer list",
	NYIArrayEHCleanup:      "exception cleanup for partially initialized array",
	NYIVTablePointer:       "vtable pointer in constant record",
	NYIVectorElement:       "vector element constant",
	NYIAddrLabelDiff:       "address-of-label difference",
	NYINonTrivialCopy:      "non-trivial primitive copy",
	NYIGlobalDestructor:    "destructor registration for global",
	NYIScalarConditional:   "scalar conditional expression",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("LAY%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("CST%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("EMT%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("UNT%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("CFG%04d", ic)
	case ic >= 9000 && ic < 10000:
		return fmt.Sprintf("NYI%04d", ic)
	}
	return "E0000"
}

// IsNYI reports whether c marks an unimplemented feature.
func (c Code) IsNYI() bool { return c >= NYIInfo && c < 10000 }

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}

// AllNYI lists every feature marker, in code order.
func AllNYI() []Code {
	var out []Code
	for c := NYIAtomicAggregate; c <= NYIScalarConditional; c++ {
		out = append(out, c)
	}
	return out
}
