package header_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ghettovoice/qsip/header"
	"github.com/ghettovoice/qsip/internal/util"
)

func TestParse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		in        string
		wantKind  header.Kind
		wantShape header.Shape
		want      string
		wantErr   error
	}{
		{
			"compact via",
			"v: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK776asdhds\r\n",
			header.KindVia,
			header.ShapeSimple,
			"Via: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK776asdhds",
			nil,
		},
		{
			"compact from",
			`f: "Alice" <sip:alice@atlanta.com>;tag=1928301774`,
			header.KindFrom,
			header.ShapeNameAddr,
			`From: "Alice" <sip:alice@atlanta.com>;tag=1928301774`,
			nil,
		},
		{
			"from with unquoted display name",
			"f: Alice <sip:alice@atlanta.com>;tag=1928301774",
			header.KindFrom,
			header.ShapeSimple,
			"From: Alice <sip:alice@atlanta.com>;tag=1928301774",
			nil,
		},
		{
			"to addr-spec",
			"To: sip:bob@biloxi.com;tag=a6c85cf",
			header.KindTo,
			header.ShapeSimple,
			"To: sip:bob@biloxi.com;tag=a6c85cf",
			nil,
		},
		{
			"cseq",
			"CSeq:314159 invite",
			header.KindCSeq,
			header.ShapeCSeq,
			"CSeq: 314159 INVITE",
			nil,
		},
		{
			"cseq with params",
			"CSeq: 7 INVITE;x=1",
			header.KindCSeq,
			header.ShapeCSeq,
			"CSeq: 7 INVITE;x=1",
			nil,
		},
		{
			"contact wildcard",
			"Contact: *",
			header.KindContact,
			header.ShapeSimple,
			"Contact: *",
			nil,
		},
		{
			"custom",
			"x-foo:  a, \"b, c\"",
			header.KindCustom,
			header.ShapeCustom,
			`X-Foo: a, "b, c"`,
			nil,
		},
		{"no colon", "Via SIP/2.0/UDP h", 0, 0, "", header.ErrMalformedHeader},
		{"bad cseq", "CSeq: abc INVITE", 0, 0, "", header.ErrMalformedHeader},
		{"cseq overflow", "CSeq: 4294967296 INVITE", 0, 0, "", header.ErrMalformedHeader},
		{"unclosed bracket", "To: <sip:bob@biloxi.com", 0, 0, "", header.ErrMalformedHeader},
		{"duplicate param", "To: <sip:bob@biloxi.com>;tag=1;TAG=2", 0, 0, "", header.ErrMalformedHeader},
		{"unquoted comma in param", "To: <sip:bob@biloxi.com>;x=1,2", 0, 0, "", header.ErrMalformedHeader},
		{"cseq bad param", "CSeq: 7 INVITE;x=<1>", 0, 0, "", header.ErrMalformedHeader},
		{"two addresses", "Route: <sip:a@b>, <sip:c@d>", 0, 0, "", header.ErrMalformedHeader},
		{"empty custom", "X-Foo:", 0, 0, "", header.ErrMalformedHeader},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			h, err := header.Parse(c.in)
			if diff := cmp.Diff(err, c.wantErr, cmpopts.EquateErrors()); diff != "" {
				t.Fatalf("Parse(%q) error = %v, want %v\ndiff (-got +want):\n%v", c.in, err, c.wantErr, diff)
			}
			if err != nil {
				return
			}
			if h.Kind() != c.wantKind {
				t.Errorf("Kind() = %v, want %v", h.Kind(), c.wantKind)
			}
			if h.Shape() != c.wantShape {
				t.Errorf("Shape() = %v, want %v", h.Shape(), c.wantShape)
			}
			if got := h.Render(); got != c.want {
				t.Errorf("Render() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestParse_Params(t *testing.T) {
	t.Parallel()

	h, err := header.Parse(`Contact: "Bob" <sip:bob@192.0.2.4>;expires=3600;q=0.7;+sip.instance="<urn:uuid:1>"`)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}

	type kv struct{ K, V string }
	var got []kv
	for k, v := range h.Params().All() {
		got = append(got, kv{k, v})
	}
	want := []kv{{"expires", "3600"}, {"q", "0.7"}, {"+sip.instance", `"<urn:uuid:1>"`}}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("params = %+v, want %+v\ndiff (-got +want):\n%v", got, want, diff)
	}
	if h.DisplayName() != "Bob" || h.URI() != "sip:bob@192.0.2.4" {
		t.Errorf("DisplayName(), URI() = %q, %q, want %q, %q", h.DisplayName(), h.URI(), "Bob", "sip:bob@192.0.2.4")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	hdrs := []*header.Header{
		util.Must2(header.NewSimple(header.KindCallID, "a84b4c76e66710@pc33.atlanta.com")),
		util.Must2(header.NewSimple(header.KindVia, "SIP/2.0/UDP 10.0.0.1:5060;rport;branch=z9hG4bK74bf9")),
		util.Must2(header.NewSimple(header.KindMaxForwards, "70")),
		util.Must2(header.NewSimple(header.KindContentLength, "0")),
		util.Must2(header.NewSimple(header.KindAccept, "application/sdp;level=1, text/plain")),
		util.Must2(header.NewSimple(header.KindWarning, `370 devnull "Choose a bigger pipe"`)),
		util.Must2(header.NewSimple(header.KindSupported, "100rel, timer")),
		util.Must2(header.NewNameAddr(header.KindTo, `Bob "the" builder`, "sip:bob@biloxi.com")),
		util.Must2(header.NewNameAddr(header.KindContact, "", "sip:alice@10.0.0.1:5060")),
		util.Must2(header.NewNameAddr(header.KindRecordRoute, "", "sip:p1.example.com;lr")),
		util.Must2(header.NewNameAddr(header.KindFrom, "Анна", "sips:anna@example.ru")),
		util.Must2(header.NewCSeq("OPTIONS", 4294967295)),
		util.Must2(header.NewCustom("X-Trace", "one", "two, three")),
		util.Must2(header.NewCustomNameAddr("P-Asserted-Identity", "Carol", "sip:carol@chicago.com")),
	}
	withParam := func(h *header.Header, name, value string) *header.Header {
		if err := h.AddParam(name, value, false); err != nil {
			t.Fatalf("AddParam(%q, %q) error = %v, want nil", name, value, err)
		}
		return h
	}
	hdrs = append(hdrs,
		withParam(util.Must2(header.NewNameAddr(header.KindFrom, "Alice", "alice@atlanta.com")), "tag", "1928301774"),
		withParam(util.Must2(header.NewCSeq("INVITE", 7)), "x", "1"),
		withParam(util.Must2(header.NewNameAddr(header.KindTo, "", "sip:a@b")), "x", `"1,2"`),
		util.Must2(header.NewSimple(header.KindFrom, "sip:a@b;tag=1")),
		util.Must2(header.NewSimple(header.KindTo, "Bob <sip:bob@biloxi.com>")),
		util.Must2(header.NewSimple(header.KindContact, "*")),
	)

	for _, h := range hdrs {
		want := h.Render()
		got, err := header.Parse(want)
		if err != nil {
			t.Errorf("Parse(%q) error = %v, want nil", want, err)
			continue
		}
		if got.Render() != want {
			t.Errorf("Parse(%q).Render() = %q, want %q", want, got.Render(), want)
		}
		if got.Name() != h.Name() {
			t.Errorf("Parse(%q).Name() = %q, want %q", want, got.Name(), h.Name())
		}
	}
}
