package source

import "testing"

func TestSpanString(t *testing.T) {
	cases := []struct {
		span Span
		want string
	}{
		{Span{}, "<unknown>"},
		{Span{File: "a.toml"}, "a.toml"},
		{Span{Decl: "record A"}, "[record A]"},
		{Span{File: "a.toml", Decl: "global x"}, "a.toml [global x]"},
		{Span{File: "a.toml", Decl: "global x"}.Child("init[%d]", 2), "a.toml [global x.init[2]]"},
	}
	for _, tc := range cases {
		if got := tc.span.String(); got != tc.want {
			t.Fatalf("%#v: got %q want %q", tc.span, got, tc.want)
		}
	}
}
