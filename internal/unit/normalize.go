package unit

import "golang.org/x/text/unicode/norm"

// Identifiers and type spellings are compared in NFC, so names that differ
// only in Unicode composition denote the same declaration. String literal
// contents ("str" values) keep their bytes.

func ident(s string) string { return norm.NFC.String(s) }

func (f *fileSpec) normalize() {
	for i := range f.Records {
		rs := &f.Records[i]
		rs.Name = ident(rs.Name)
		for j := range rs.Bases {
			rs.Bases[j].Type = ident(rs.Bases[j].Type)
		}
		for j := range rs.Fields {
			rs.Fields[j].Name = ident(rs.Fields[j].Name)
			rs.Fields[j].Type = ident(rs.Fields[j].Type)
		}
		for j := range rs.Ctors {
			c := &rs.Ctors[j]
			c.Name = ident(c.Name)
			for k := range c.Params {
				c.Params[k] = ident(c.Params[k])
			}
		}
	}
	for i := range f.Globals {
		g := &f.Globals[i]
		g.Name, g.Type = ident(g.Name), ident(g.Type)
		g.Init = normalizeTree(g.Init)
	}
	for i := range f.Functions {
		fs := &f.Functions[i]
		fs.Name, fs.Returns = ident(fs.Name), ident(fs.Returns)
		for j := range fs.Params {
			fs.Params[j].Name = ident(fs.Params[j].Name)
			fs.Params[j].Type = ident(fs.Params[j].Type)
		}
		for j, st := range fs.Body {
			fs.Body[j], _ = normalizeTree(st).(map[string]any)
		}
	}
}

func normalizeTree(v any) any {
	switch v := v.(type) {
	case string:
		return ident(v)
	case []any:
		for i := range v {
			v[i] = normalizeTree(v[i])
		}
		return v
	case []map[string]any:
		for i := range v {
			v[i], _ = normalizeTree(v[i]).(map[string]any)
		}
		return v
	case map[string]any:
		for k, e := range v {
			if k == "str" {
				continue
			}
			v[k] = normalizeTree(e)
		}
		return v
	}
	return v
}
