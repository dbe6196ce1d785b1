package post

import "testing"

func TestTableOfContents(t *testing.T) {
	content := `<h1>Intro</h1><p>x</p><h2>Set Up</h2><h4>skipped</h4><h3>Intro</h3><h2>Intro</h2><h2>급식 안내</h2>`

	got := TableOfContents(content)
	want := []Heading{
		{ID: "intro", Text: "Intro", Level: 1},
		{ID: "set-up", Text: "Set Up", Level: 2},
		{ID: "intro-1", Text: "Intro", Level: 3},
		{ID: "intro-2", Text: "Intro", Level: 2},
		{ID: "-", Text: "급식 안내", Level: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d headings, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("heading %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestTableOfContentsEmpty(t *testing.T) {
	if got := TableOfContents("<p>no headings</p>"); len(got) != 0 {
		t.Fatalf("expected no headings, got %+v", got)
	}
}
