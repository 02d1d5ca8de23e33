package textutil

import "testing"

func TestPlainTextStripsMarkup(t *testing.T) {
	got := PlainText("  <b>Wireless</b> Mouse<script>alert(1)</script> ")
	if got != "Wireless Mouse" {
		t.Fatalf("unexpected sanitised text %q", got)
	}
	if got := PlainText("Tom &amp; Jerry"); got != "Tom & Jerry" {
		t.Fatalf("expected entities to be unescaped, got %q", got)
	}
}

func TestRichTextKeepsSafeMarkup(t *testing.T) {
	got := RichText(`<p onclick="x()">Fast <em>charging</em></p><script>bad()</script>`)
	if got != "<p>Fast <em>charging</em></p>" {
		t.Fatalf("unexpected rich text %q", got)
	}
}

func TestContainsFold(t *testing.T) {
	cases := []struct {
		haystack, needle string
		want             bool
	}{
		{"USB-C Charger", "usb-c", true},
		{"Straße Adapter", "STRASSE", true},
		{"Keyboard", "mouse", false},
		{"anything", "  ", true},
	}
	for _, tc := range cases {
		if got := ContainsFold(tc.haystack, tc.needle); got != tc.want {
			t.Errorf("ContainsFold(%q, %q) = %v, want %v", tc.haystack, tc.needle, got, tc.want)
		}
	}
}
