package header

import (
	"io"
	"iter"
	"slices"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/internal/ioutil"
	"github.com/ghettovoice/qsip/internal/util"
)

// List is an ordered collection of headers grouped by canonical name.
// Groups keep the order in which their name was first added;
// headers inside a group keep insertion order unless added to the top.
// The zero value is an empty list ready to use.
type List struct {
	names []Name
	hdrs  map[Name][]*Header
}

// NewList creates a list with the given headers appended in order.
func NewList(hdrs ...*Header) *List {
	l := new(List)
	for _, h := range hdrs {
		l.Add(h, false)
	}
	return l
}

// Add adds h to the group of its name.
// When toTop is true h becomes the first header of the group, otherwise the last.
// Nil headers are ignored.
func (l *List) Add(h *Header, toTop bool) *List {
	if h == nil {
		return l
	}
	if l.hdrs == nil {
		l.hdrs = make(map[Name][]*Header)
	}

	n := CanonicName(h.Name())
	grp, ok := l.hdrs[n]
	if !ok {
		l.names = append(l.names, n)
	}
	if toTop {
		grp = slices.Insert(grp, 0, h)
	} else {
		grp = append(grp, h)
	}
	l.hdrs[n] = grp
	return l
}

// Set replaces all headers named like h with h.
// The group keeps its position in the list.
func (l *List) Set(h *Header) *List {
	if h == nil {
		return l
	}
	n := CanonicName(h.Name())
	if _, ok := l.hdrs[n]; ok {
		l.hdrs[n] = []*Header{h}
		return l
	}
	return l.Add(h, false)
}

// Get returns all headers with the given name.
func (l *List) Get(name Name) []*Header {
	if l == nil {
		return nil
	}
	return l.hdrs[CanonicName(name)]
}

// First returns the first header with the given name.
func (l *List) First(name Name) (*Header, bool) {
	hs := l.Get(name)
	if len(hs) == 0 {
		return nil, false
	}
	return hs[0], true
}

// Has checks whether the list contains a header with the given name.
func (l *List) Has(name Name) bool { return len(l.Get(name)) > 0 }

// Del removes all headers with the given name.
func (l *List) Del(name Name) *List {
	if l == nil {
		return l
	}
	n := CanonicName(name)
	if _, ok := l.hdrs[n]; !ok {
		return l
	}
	delete(l.hdrs, n)
	l.names = slices.DeleteFunc(l.names, func(v Name) bool { return v == n })
	return l
}

// Names returns the header names in list order.
func (l *List) Names() []Name {
	if l == nil {
		return nil
	}
	return slices.Clone(l.names)
}

// Len returns the total number of headers.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	var n int
	for _, hs := range l.hdrs {
		n += len(hs)
	}
	return n
}

// All iterates over all headers in list order.
func (l *List) All() iter.Seq[*Header] {
	return func(yield func(*Header) bool) {
		if l == nil {
			return
		}
		for _, n := range l.names {
			for _, h := range l.hdrs[n] {
				if !yield(h) {
					return
				}
			}
		}
	}
}

// Clone returns a deep copy of the list.
func (l *List) Clone() *List {
	if l == nil {
		return nil
	}
	l2 := &List{
		names: slices.Clone(l.names),
		hdrs:  make(map[Name][]*Header, len(l.hdrs)),
	}
	for n, hs := range l.hdrs {
		cp := make([]*Header, len(hs))
		for i, h := range hs {
			cp[i] = h.Clone()
		}
		l2.hdrs[n] = cp
	}
	return l2
}

// RenderTo writes every header followed by CRLF.
func (l *List) RenderTo(w io.Writer) (num int, err error) {
	cw := ioutil.GetCountingWriter(w)
	defer ioutil.FreeCountingWriter(cw)
	for h := range l.All() {
		cw.Call(h.RenderTo)
		cw.Fprint("\r\n")
	}
	return errtrace.Wrap2(cw.Result())
}

// Render returns the rendered headers.
func (l *List) Render() string {
	sb := util.GetStringBuilder()
	defer util.FreeStringBuilder(sb)
	l.RenderTo(sb) //nolint:errcheck
	return sb.String()
}
