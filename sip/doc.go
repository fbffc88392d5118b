// Package sip assembles SIP requests and responses on top of the [header] model
// and implements RFC 2617 digest authentication.
//
// Requests are built in two phases. [Builder.BuildRequest] produces a
// [RequestDraft] with every header that does not depend on the local transport
// binding. Once the transport knows the local address, [RequestDraft.Finalize]
// adds Via, Contact and Content-Length and returns a complete [Request]:
//
//	draft, err := b.BuildRequest(sip.RequestMethodOptions, "", from, to, nil)
//	...
//	req, err := draft.Finalize(sip.Binding{Host: "192.0.2.10", Port: 5060})
//	...
//	payload := req.Bytes()
//
// Drafts cannot be rendered, so a message with a half populated Via never
// reaches the wire.
package sip
