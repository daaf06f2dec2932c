package types

// TagKind distinguishes struct, class and union records.
type TagKind uint8

const (
	TagStruct TagKind = iota
	TagClass
	TagUnion
)

func (k TagKind) String() string {
	switch k {
	case TagClass:
		return "class"
	case TagUnion:
		return "union"
	default:
		return "struct"
	}
}

// FieldDecl is a non-static data member.
type FieldDecl struct {
	Name            string
	Type            TypeID
	BitWidth        int // -1 when the field is not a bit-field
	NoUniqueAddress bool
	Index           int // position in Parent.Fields
	Parent          *RecordDecl
}

func (f *FieldDecl) IsBitField() bool        { return f.BitWidth >= 0 }
func (f *FieldDecl) IsUnnamedBitField() bool { return f.IsBitField() && f.Name == "" }
func (f *FieldDecl) IsZeroLengthBitField() bool {
	return f.BitWidth == 0
}

func (f *FieldDecl) String() string {
	if f.Parent == nil {
		return f.Name
	}
	return f.Parent.Name + "::" + f.Name
}

// BaseSpec is one entry of a base-specifier list.
type BaseSpec struct {
	Type    TypeID
	Virtual bool
}

// CtorDecl describes a constructor the emitter may call.
type CtorDecl struct {
	Name    string
	Record  *RecordDecl
	Params  []TypeID
	Trivial bool
	Default bool // callable with no arguments
	Copy    bool
	Move    bool
}

// RecordDecl is a struct, class or union definition.
type RecordDecl struct {
	Name   string
	Tag    TagKind
	CXX    bool // declared in C++ (gets bases, vptrs, empty-class rules)
	Fields []*FieldDecl
	Bases  []BaseSpec

	Packed      bool
	AlignAttr   int  // explicit alignment in bytes, 0 when absent
	Polymorphic bool // declares virtual functions
	Final       bool

	UserDeclaredCtor bool
	NonTrivialDtor   bool // C++ destructor must run
	NonTrivialCDtor  bool // C struct with non-trivial destruction
	NonTrivialCopy   bool

	Ctors []*CtorDecl

	Self     TypeID
	complete bool
	in       *Interner
}

func (r *RecordDecl) IsUnion() bool    { return r.Tag == TagUnion }
func (r *RecordDecl) IsComplete() bool { return r.complete }

// AddField appends a field; must be called before Complete.
func (r *RecordDecl) AddField(name string, typ TypeID) *FieldDecl {
	return r.addField(name, typ, -1)
}

// AddBitField appends a bit-field of the given width. An empty name
// declares an unnamed bit-field.
func (r *RecordDecl) AddBitField(name string, typ TypeID, width int) *FieldDecl {
	return r.addField(name, typ, width)
}

func (r *RecordDecl) addField(name string, typ TypeID, width int) *FieldDecl {
	if r.complete {
		panic("types: field added to completed record " + r.Name)
	}
	f := &FieldDecl{Name: name, Type: typ, BitWidth: width, Index: len(r.Fields), Parent: r}
	r.Fields = append(r.Fields, f)
	return f
}

// AddBase appends a base specifier; the record becomes a C++ record.
func (r *RecordDecl) AddBase(base TypeID, virtual bool) {
	r.CXX = true
	r.Bases = append(r.Bases, BaseSpec{Type: base, Virtual: virtual})
}

// AddCtor registers a constructor.
func (r *RecordDecl) AddCtor(c *CtorDecl) *CtorDecl {
	c.Record = r
	if c.Name == "" {
		c.Name = r.Name
	}
	if !c.Trivial {
		r.UserDeclaredCtor = true
	}
	r.Ctors = append(r.Ctors, c)
	return c
}

// Complete freezes the definition.
func (r *RecordDecl) Complete() { r.complete = true }

// Field looks a field up by name.
func (r *RecordDecl) Field(name string) *FieldDecl {
	for _, f := range r.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// HasFlexibleArrayMember reports whether the last field is an array
// without a bound.
func (r *RecordDecl) HasFlexibleArrayMember() bool {
	if len(r.Fields) == 0 || r.in == nil {
		return false
	}
	t := r.in.MustLookup(r.Fields[len(r.Fields)-1].Type)
	return t.Kind == KindArray && t.Count == IncompleteLength
}

// IsDynamic reports whether objects need a vtable pointer somewhere.
func (r *RecordDecl) IsDynamic() bool {
	if r.Polymorphic {
		return true
	}
	for _, b := range r.Bases {
		if b.Virtual {
			return true
		}
		if br := r.in.Record(b.Type); br != nil && br.IsDynamic() {
			return true
		}
	}
	return false
}

// IsEmpty implements the C++ empty-class rule: no non-static data members
// other than zero-length bit-fields, no virtual functions or virtual bases,
// and only empty bases. C records are never empty.
func (r *RecordDecl) IsEmpty() bool {
	if !r.CXX || r.IsDynamic() {
		return false
	}
	for _, f := range r.Fields {
		if f.IsBitField() && f.BitWidth == 0 {
			continue
		}
		return false
	}
	for _, b := range r.Bases {
		if br := r.in.Record(b.Type); br == nil || !br.IsEmpty() {
			return false
		}
	}
	return true
}

// IsPOD approximates the Itanium "POD for the purpose of layout" rule.
func (r *RecordDecl) IsPOD() bool {
	if !r.CXX {
		return true
	}
	if r.IsDynamic() || r.UserDeclaredCtor || r.NonTrivialDtor || r.NonTrivialCopy || len(r.Bases) > 0 {
		return false
	}
	for _, f := range r.Fields {
		if fr := r.in.Record(f.Type); fr != nil && !fr.IsPOD() {
			return false
		}
	}
	return true
}

// FindFirstNamedDataMember walks anonymous members looking for a name.
func (r *RecordDecl) FindFirstNamedDataMember() *FieldDecl {
	for _, f := range r.Fields {
		if f.Name != "" {
			return f
		}
		if sub := r.in.Record(f.Type); sub != nil {
			if nf := sub.FindFirstNamedDataMember(); nf != nil {
				return nf
			}
		}
	}
	return nil
}

// VirtualBases returns every virtual base reachable from r, in the
// depth-first left-to-right order of the inheritance graph.
func (r *RecordDecl) VirtualBases() []*RecordDecl {
	var out []*RecordDecl
	seen := make(map[*RecordDecl]bool)
	var walk func(*RecordDecl)
	walk = func(cur *RecordDecl) {
		for _, b := range cur.Bases {
			br := r.in.Record(b.Type)
			if br == nil {
				continue
			}
			walk(br)
			if b.Virtual && !seen[br] {
				seen[br] = true
				out = append(out, br)
			}
		}
	}
	walk(r)
	return out
}

// FindCtor returns the constructor with the given name, or nil.
func (r *RecordDecl) FindCtor(name string) *CtorDecl {
	for _, c := range r.Ctors {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// HasTrivialCopy reports whether an aggregate copy may be a raw copy.
func (r *RecordDecl) HasTrivialCopy() bool { return !r.NonTrivialCopy }
