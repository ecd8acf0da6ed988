package extract

import "testing"

func TestActionBlockRoundTrip(t *testing.T) {
	for _, s := range []string{"A", "moveTo(target)", "chat(hello) ; follow(steve)", ""} {
		if got := ActionBlock("<code>" + s + "</code>"); got != s {
			t.Fatalf("round trip %q: got %q", s, got)
		}
	}
}

func TestActionBlockNoDelimiters(t *testing.T) {
	for _, s := range []string{"", "just talking", "<code>unterminated", "</code>reversed<code>"} {
		if got := ActionBlock(s); got != "" {
			t.Fatalf("ActionBlock(%q)=%q want empty", s, got)
		}
	}
}

func TestActionBlockFirstMatchOnly(t *testing.T) {
	if got := ActionBlock("<code>A</code>middle<code>B</code>"); got != "A" {
		t.Fatalf("got %q want A", got)
	}
}

func TestActionBlockKeepsLineBreaks(t *testing.T) {
	text := "Sure!\n<code>\nmoveTo(target)\nchat(\"on my way\")\n</code>\nDone."
	want := "\nmoveTo(target)\nchat(\"on my way\")\n"
	if got := ActionBlock(text); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestExtractorCustomDelimitersAndFence(t *testing.T) {
	e := New("[act]", "[/act]", true)
	if got := e.Extract("x [act]stop()[/act] y"); got != "stop()" {
		t.Fatalf("custom delimiters: %q", got)
	}
	if got := e.Extract("Here:\n```js\nfollow(steve)\n```\n"); got != "follow(steve)\n" {
		t.Fatalf("fence fallback: %q", got)
	}
	if got := New(DefaultOpen, DefaultClose, false).Extract("```\nfollow(steve)\n```"); got != "" {
		t.Fatalf("fence fallback should be off: %q", got)
	}
}
