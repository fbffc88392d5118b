// Package header implements the SIP header model: a closed set of header kinds,
// a single tagged header value with ordered parameters, and an ordered header list.
//
// # Shapes
//
// Every [Header] has one of four shapes:
//
//   - [ShapeSimple]: a single raw value, e.g. "Call-ID: 843817637684230@998sdasdh09".
//   - [ShapeNameAddr]: an optional display name and a URI, e.g. `From: "Bob" <sip:bob@biloxi.com>;tag=a73kszlfl`.
//   - [ShapeCSeq]: a sequence number and a method, e.g. "CSeq: 1826 REGISTER".
//   - [ShapeCustom]: an extension header with one or more values joined by ", ".
//
// Parameters are kept in insertion order and looked up case-insensitively.
//
// # Parsing
//
// [Parse] turns a header line back into a [Header]. For any header h built with
// the constructors of this package the round trip holds:
//
//	hdr, _ := header.Parse(h.Render())
//	hdr.Render() == h.Render()
package header
