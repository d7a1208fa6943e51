package query

import "testing"

func hasForm(forms []string, want string) bool {
	for _, f := range forms {
		if f == want {
			return true
		}
	}
	return false
}

func TestExpandPluralsRegular(t *testing.T) {
	cases := []struct{ in, want string }{
		{"car", "cars"}, {"cars", "car"},
		{"battery", "batteries"}, {"batteries", "battery"},
		{"church", "churches"}, {"churches", "church"},
		{"box", "boxes"}, {"boxes", "box"},
		{"city", "cities"}, {"cities", "city"},
	}
	for _, c := range cases {
		forms := ExpandPlurals(c.in)
		if !hasForm(forms, c.want) {
			t.Errorf("ExpandPlurals(%q) = %v, missing %q", c.in, forms, c.want)
		}
	}
}

func TestExpandPluralsIrregular(t *testing.T) {
	cases := []struct{ in, want string }{
		{"child", "children"}, {"children", "child"},
		{"person", "people"}, {"mouse", "mice"},
		{"ox", "oxen"}, {"knife", "knives"}, {"wolf", "wolves"},
	}
	for _, c := range cases {
		forms := ExpandPlurals(c.in)
		if !hasForm(forms, c.want) {
			t.Errorf("ExpandPlurals(%q) = %v, missing %q", c.in, forms, c.want)
		}
	}
}

func TestExpandPluralsInvariant(t *testing.T) {
	for _, w := range []string{"sheep", "aircraft", "moose"} {
		forms := ExpandPlurals(w)
		if len(forms) != 1 {
			t.Errorf("ExpandPlurals(%q) should be invariant, got %v", w, forms)
		}
	}
}

func TestExpandPluralsNoFalsePositiveVe(t *testing.T) {
	for _, w := range []string{"stove", "archive", "curve"} {
		forms := ExpandPlurals(w)
		badStem := w[:len(w)-2] + "f"
		if hasForm(forms, badStem) {
			t.Errorf("ExpandPlurals(%q) incorrectly produced %q: %v", w, badStem, forms)
		}
	}
}

func TestTokenizeASCII(t *testing.T) {
	toks := Tokenize("red couch")
	if len(toks) != 2 || toks[0].Text != "red" || toks[1].Text != "couch" {
		t.Fatalf("unexpected tokens: %+v", toks)
	}
	if !toks[1].IsLast {
		t.Fatalf("expected last token flagged")
	}
}

func TestTokenizeCJKPerCodepoint(t *testing.T) {
	toks := Tokenize("東京tower")
	if len(toks) != 3 {
		t.Fatalf("expected 3 tokens (東,京,tower), got %+v", toks)
	}
	if toks[0].Text != "東" || toks[1].Text != "京" || toks[2].Text != "tower" {
		t.Fatalf("unexpected tokens: %+v", toks)
	}
}

func TestTokenizeTrailingSpace(t *testing.T) {
	toks := Tokenize("hello ")
	if len(toks) != 1 || !toks[0].TrailSpace {
		t.Fatalf("expected trailing space flagged: %+v", toks)
	}
}
