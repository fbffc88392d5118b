package main

import (
	"fmt"

	"braces.dev/errtrace"
	"github.com/spf13/cobra"

	"github.com/ghettovoice/qsip/internal/errorutil"
	"github.com/ghettovoice/qsip/internal/randutil"
	"github.com/ghettovoice/qsip/sip"
)

func newDigestCmd() *cobra.Command {
	var (
		creds     sip.DigestCredentials
		challenge string
		realm     string
		nonce     string
		method    string
		uri       string
		nc        uint32
		cnonce    string
	)
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Compute a digest authentication response",
		Long: `Compute the RFC 2617 digest response (qop=auth, MD5).

With --challenge the WWW-Authenticate or Proxy-Authenticate value is parsed
and the complete authorization header is printed.

Examples:
  qsip digest -u bob -p bob --realm biloxi.com --nonce dcd98b7102dd2f0e8b11d0f600bfb0c093 \
    --method REGISTER --uri sip:bob@biloxi.com --cnonce 0a4f113b
  qsip digest -u bob -p bob --method REGISTER --uri sip:biloxi.com \
    --challenge 'Digest realm="biloxi.com", nonce="abc", qop="auth"'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cnonce == "" {
				cnonce = randutil.String(8)
			}
			out := cmd.OutOrStdout()

			if challenge != "" {
				ch, err := sip.ParseDigestChallenge(challenge)
				if err != nil {
					return errtrace.Wrap(err)
				}
				hdr, err := creds.Authorize(ch, sip.RequestMethod(method), uri, nc, cnonce)
				if err != nil {
					return errtrace.Wrap(err)
				}
				fmt.Fprintln(out, hdr.Render())
				return nil
			}

			if realm == "" || nonce == "" {
				return errtrace.Wrap(errorutil.NewInvalidArgumentError("--realm and --nonce are required without --challenge"))
			}
			ncs := fmt.Sprintf("%08x", nc)
			fmt.Fprintln(out, sip.DigestResponse(creds.Username, realm, creds.Password,
				string(sip.RequestMethod(method).ToUpper()), uri, nonce, ncs, cnonce))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&creds.Username, "username", "u", "", "user name")
	f.StringVarP(&creds.Password, "password", "p", "", "password")
	f.StringVar(&challenge, "challenge", "", "authenticate header value")
	f.StringVar(&realm, "realm", "", "realm")
	f.StringVar(&nonce, "nonce", "", "server nonce")
	f.StringVar(&method, "method", string(sip.RequestMethodRegister), "request method")
	f.StringVar(&uri, "uri", "", "digest URI")
	f.Uint32Var(&nc, "nc", 1, "nonce count")
	f.StringVar(&cnonce, "cnonce", "", "client nonce, random when empty")
	cmd.MarkFlagRequired("username") //nolint:errcheck
	cmd.MarkFlagRequired("uri")      //nolint:errcheck
	return cmd
}
