package header

import (
	"io"
	"iter"
	"slices"
	"strings"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/internal/errorutil"
	"github.com/ghettovoice/qsip/internal/grammar"
	"github.com/ghettovoice/qsip/internal/ioutil"
	"github.com/ghettovoice/qsip/internal/util"
)

type param struct {
	name, value string
}

// Params is an insertion ordered set of header parameters.
// Names are compared case-insensitively and rendered as given on first insertion.
// The zero value is ready to use.
type Params struct {
	entries []param
}

func (p *Params) index(name string) int {
	if p == nil {
		return -1
	}
	return slices.IndexFunc(p.entries, func(e param) bool { return util.EqFold(e.name, name) })
}

// Add adds the parameter name with value.
// An existing parameter is updated in place when allowUpdate is true,
// otherwise [ErrParameterExists] is returned.
// An empty value renders as a bare flag, e.g. ";lr".
// The value must be a token-like string or a quoted string.
func (p *Params) Add(name, value string, allowUpdate bool) error {
	name = util.TrimSP(name)
	if !grammar.IsToken(name) {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid parameter name %q", name))
	}
	if !isParamValue(value) {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid value of parameter %q", name))
	}

	if i := p.index(name); i >= 0 {
		if !allowUpdate {
			return errtrace.Wrap(errorutil.NewWrapperError(ErrParameterExists, name))
		}
		p.entries[i].value = value
		return nil
	}
	p.entries = append(p.entries, param{name, value})
	return nil
}

// isParamValue reports whether v is empty, a quoted string, or free of
// separators, whitespace and quotes.
func isParamValue(v string) bool {
	if v == "" {
		return true
	}
	if v[0] != '"' {
		return !strings.ContainsAny(v, " \t\r\n,;<>\"")
	}
	for i := 1; i < len(v); i++ {
		switch v[i] {
		case '\\':
			i++
		case '\r', '\n':
			return false
		case '"':
			return i == len(v)-1
		}
	}
	return false
}

// Get returns the value of the named parameter.
func (p *Params) Get(name string) (string, bool) {
	if i := p.index(name); i >= 0 {
		return p.entries[i].value, true
	}
	return "", false
}

// Has checks whether the named parameter exists.
func (p *Params) Has(name string) bool { return p.index(name) >= 0 }

// Del removes the named parameter.
func (p *Params) Del(name string) {
	if i := p.index(name); i >= 0 {
		p.entries = slices.Delete(p.entries, i, i+1)
	}
}

// Len returns the number of parameters.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// All iterates over parameters in insertion order.
func (p *Params) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if p == nil {
			return
		}
		for _, e := range p.entries {
			if !yield(e.name, e.value) {
				return
			}
		}
	}
}

// Clone returns a deep copy of the parameters.
func (p *Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return Params{entries: slices.Clone(p.entries)}
}

// RenderTo writes parameters as ";name=value" pairs.
func (p *Params) RenderTo(w io.Writer) (num int, err error) {
	if p.Len() == 0 {
		return 0, nil
	}

	cw := ioutil.GetCountingWriter(w)
	defer ioutil.FreeCountingWriter(cw)
	for _, e := range p.entries {
		cw.Fprint(";", e.name)
		if e.value != "" {
			cw.Fprint("=", e.value)
		}
	}
	return errtrace.Wrap2(cw.Result())
}

// String returns the rendered parameters.
func (p *Params) String() string {
	sb := util.GetStringBuilder()
	defer util.FreeStringBuilder(sb)
	p.RenderTo(sb) //nolint:errcheck
	return sb.String()
}

func parseParams(s string) (Params, error) {
	var p Params
	for _, part := range util.SplitQuoted(s, ';') {
		part = util.TrimSP(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		if err := p.Add(util.TrimSP(name), util.TrimSP(value), false); err != nil {
			return p, errtrace.Wrap(err)
		}
	}
	return p, nil
}
