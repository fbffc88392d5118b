package util_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ghettovoice/qsip/internal/util"
)

func TestSplitQuoted(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		sep  byte
		want []string
	}{
		{"empty", "", ';', []string{""}},
		{"plain", "a;b=1;c", ';', []string{"a", "b=1", "c"}},
		{"quoted", `"a;b" <sip:x>;tag=1`, ';', []string{`"a;b" <sip:x>`, "tag=1"}},
		{"angle", "<sip:proxy;lr>;foo", ';', []string{"<sip:proxy;lr>", "foo"}},
		{"escaped quote", `"a\";b";c`, ';', []string{`"a\";b"`, "c"}},
		{"comma", "text/plain, text/html", ',', []string{"text/plain", " text/html"}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			got := util.SplitQuoted(c.in, c.sep)
			if diff := cmp.Diff(got, c.want); diff != "" {
				t.Errorf("SplitQuoted(%q, %q) = %q, want %q\ndiff (-got +want):\n%v", c.in, c.sep, got, c.want, diff)
			}
		})
	}
}

func TestEllipsis(t *testing.T) {
	t.Parallel()

	if got := util.Ellipsis("hello", 10); got != "hello" {
		t.Errorf("Ellipsis(\"hello\", 10) = %q, want %q", got, "hello")
	}
	if got := util.Ellipsis("hello", 2); got != "he..." {
		t.Errorf("Ellipsis(\"hello\", 2) = %q, want %q", got, "he...")
	}
}
