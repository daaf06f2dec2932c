package unit

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"fortio.org/safecast"

	"cirgen/internal/source"
	"cirgen/internal/types"
)

type tokKind uint8

const (
	tokIdent tokKind = iota + 1
	tokNumber
	tokPunct
)

type tok struct {
	kind tokKind
	text string
}

func tokenizeType(s string) ([]tok, error) {
	var out []tok
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '_' || isLetter(c):
			j := i + 1
			for j < len(s) && (s[j] == '_' || isLetter(s[j]) || isDigit(s[j])) {
				j++
			}
			out = append(out, tok{tokIdent, s[i:j]})
			i = j
		case isDigit(c):
			j := i + 1
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			out = append(out, tok{tokNumber, s[i:j]})
			i = j
		case strings.HasPrefix(s[i:], "::"):
			out = append(out, tok{tokPunct, "::"})
			i += 2
		case strings.IndexByte("*[]()", c) >= 0:
			out = append(out, tok{tokPunct, string(c)})
			i++
		default:
			return nil, fmt.Errorf("unexpected %q", c)
		}
	}
	return out, nil
}

// isLetter accepts any non-ASCII byte, so UTF-8 identifiers tokenize whole.
func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= utf8.RuneSelf
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// intWords are the keywords that combine into a builtin integer spelling.
var intWords = []string{"signed", "unsigned", "char", "short", "int", "long", "__int128"}

var qualWords = map[string]types.Qual{
	"const":    types.QualConst,
	"volatile": types.QualVolatile,
	"_Atomic":  types.QualAtomic,
}

type typeParser struct {
	in   *types.Interner
	toks []tok
	pos  int
}

func (tp *typeParser) peek() tok {
	if tp.pos < len(tp.toks) {
		return tp.toks[tp.pos]
	}
	return tok{}
}

func (tp *typeParser) next() tok {
	t := tp.peek()
	tp.pos++
	return t
}

func (tp *typeParser) expect(text string) error {
	if t := tp.next(); t.text != text {
		return fmt.Errorf("expected %q, found %q", text, t.text)
	}
	return nil
}

func (tp *typeParser) count() (int64, error) {
	t := tp.next()
	if t.kind != tokNumber {
		return 0, fmt.Errorf("expected a count, found %q", t.text)
	}
	return strconv.ParseInt(t.text, 10, 64)
}

// parseType resolves a type spelling such as "const int[2][3]",
// "float __vector(4)", "S*" or "int S::*".
func (p *parser) parseType(s string, sp source.Span) (types.TypeID, error) {
	toks, err := tokenizeType(s)
	if err != nil || len(toks) == 0 {
		if err == nil {
			err = fmt.Errorf("empty type")
		}
		return types.NoTypeID, p.fail(ParseErrBadType, sp, fmt.Sprintf("%q: %v", s, err))
	}
	tp := &typeParser{in: p.in, toks: toks}
	t, unknown, err := tp.parse()
	switch {
	case unknown != "":
		return types.NoTypeID, p.fail(ParseErrUnknownRecord, sp, unknown)
	case err != nil:
		return types.NoTypeID, p.fail(ParseErrBadType, sp, fmt.Sprintf("%q: %v", s, err))
	}
	return t, nil
}

// parse returns the type, or the name of an unknown record.
func (tp *typeParser) parse() (types.TypeID, string, error) {
	var quals types.Qual
	for {
		q, ok := qualWords[tp.peek().text]
		if !ok {
			break
		}
		quals |= q
		tp.pos++
	}

	t, unknown, err := tp.base()
	if err != nil || unknown != "" {
		return types.NoTypeID, unknown, err
	}
	if quals != 0 {
		t = tp.in.Qualified(t, quals)
	}

	for tp.pos < len(tp.toks) {
		cur := tp.next()
		switch {
		case cur.text == "*":
			t = tp.in.Pointer(t)
		case qualWords[cur.text] != 0:
			t = tp.in.Qualified(t, qualWords[cur.text])
		case cur.text == "[":
			// C declarators bind the leftmost bound outermost.
			var dims []int64
			for {
				n := types.IncompleteLength
				if tp.peek().text != "]" {
					if n, err = tp.count(); err != nil {
						return types.NoTypeID, "", err
					}
				}
				if err := tp.expect("]"); err != nil {
					return types.NoTypeID, "", err
				}
				dims = append(dims, n)
				if tp.peek().text != "[" {
					break
				}
				tp.pos++
			}
			for _, n := range slices.Backward(dims) {
				t = tp.in.Array(t, n)
			}
		case cur.text == "__vector":
			if err := tp.expect("("); err != nil {
				return types.NoTypeID, "", err
			}
			n, err := tp.count()
			if err != nil {
				return types.NoTypeID, "", err
			}
			if err := tp.expect(")"); err != nil {
				return types.NoTypeID, "", err
			}
			t = tp.in.Vector(t, n)
		case cur.kind == tokIdent && tp.peek().text == "::":
			rd := tp.in.RecordByName(cur.text)
			if rd == nil {
				return types.NoTypeID, cur.text, nil
			}
			tp.pos++
			if err := tp.expect("*"); err != nil {
				return types.NoTypeID, "", err
			}
			t = tp.in.MemberPointer(t, rd.Self)
		default:
			return types.NoTypeID, "", fmt.Errorf("unexpected %q", cur.text)
		}
	}
	return t, "", nil
}

func (tp *typeParser) base() (types.TypeID, string, error) {
	b := tp.in.Builtins()
	first := tp.peek()
	if first.kind != tokIdent {
		return types.NoTypeID, "", fmt.Errorf("expected a type name, found %q", first.text)
	}

	var words []string
	for slices.Contains(intWords, tp.peek().text) {
		words = append(words, tp.next().text)
	}
	if tp.peek().text == "_BitInt" {
		tp.pos++
		signed := !slices.Contains(words, "unsigned")
		if len(words) > 1 || (len(words) == 1 && words[0] != "signed" && words[0] != "unsigned") {
			return types.NoTypeID, "", fmt.Errorf("_BitInt combined with %s", strings.Join(words, " "))
		}
		if err := tp.expect("("); err != nil {
			return types.NoTypeID, "", err
		}
		n, err := tp.count()
		if err != nil {
			return types.NoTypeID, "", err
		}
		if err := tp.expect(")"); err != nil {
			return types.NoTypeID, "", err
		}
		w, err := safecast.Conv[uint16](n)
		if err != nil || w == 0 {
			return types.NoTypeID, "", fmt.Errorf("bad _BitInt width %d", n)
		}
		return tp.in.Int(w, signed), "", nil
	}
	if len(words) > 0 {
		t, err := intSpelling(b, words)
		return t, "", err
	}

	tp.pos++
	switch first.text {
	case "void":
		return b.Void, "", nil
	case "bool", "_Bool":
		return b.Bool, "", nil
	case "float":
		return b.Float, "", nil
	case "double":
		return b.Double, "", nil
	case "nullptr_t":
		return b.NullPtr, "", nil
	case "size_t":
		return b.SizeT, "", nil
	case "ptrdiff_t":
		return b.PtrDiff, "", nil
	}
	rd := tp.in.RecordByName(first.text)
	if rd == nil {
		return types.NoTypeID, first.text, nil
	}
	return rd.Self, "", nil
}

// intSpelling maps a keyword multiset such as [unsigned long int] to its
// builtin integer.
func intSpelling(b types.Builtins, words []string) (types.TypeID, error) {
	var signed, unsigned, char, short, int128 bool
	long := 0
	for _, w := range words {
		switch w {
		case "signed":
			signed = true
		case "unsigned":
			unsigned = true
		case "char":
			char = true
		case "short":
			short = true
		case "long":
			long++
		case "__int128":
			int128 = true
		}
	}
	bad := fmt.Errorf("invalid integer spelling %q", strings.Join(words, " "))
	if signed && unsigned {
		return types.NoTypeID, bad
	}
	pick := func(s, u types.TypeID) types.TypeID {
		if unsigned {
			return u
		}
		return s
	}
	switch {
	case char:
		if short || long > 0 || int128 || slices.Contains(words, "int") {
			return types.NoTypeID, bad
		}
		if signed {
			return b.SChar, nil
		}
		return pick(b.Char, b.UChar), nil
	case int128:
		if short || long > 0 {
			return types.NoTypeID, bad
		}
		return pick(b.Int128, b.UInt128), nil
	case short:
		if long > 0 {
			return types.NoTypeID, bad
		}
		return pick(b.Short, b.UShort), nil
	case long == 1:
		return pick(b.Long, b.ULong), nil
	case long == 2:
		return pick(b.LongLong, b.ULongLong), nil
	case long > 2:
		return types.NoTypeID, bad
	}
	return pick(b.Int, b.UInt), nil
}
