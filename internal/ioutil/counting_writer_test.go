package ioutil_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ghettovoice/qsip/internal/ioutil"
)

type failWriter struct {
	limit int
	err   error
}

func (w *failWriter) Write(p []byte) (int, error) {
	if len(p) > w.limit {
		n := w.limit
		w.limit = 0
		return n, w.err
	}
	w.limit -= len(p)
	return len(p), nil
}

func TestCountingWriter(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	cw := ioutil.GetCountingWriter(&sb)
	defer ioutil.FreeCountingWriter(cw)

	cw.Fprint("CSeq", ": ")
	cw.WriteString("1 ")
	cw.Call(func(w io.Writer) (int, error) { return io.WriteString(w, "INVITE") })

	num, err := cw.Result()
	if err != nil {
		t.Fatalf("cw.Result() error = %v, want nil", err)
	}
	if want := "CSeq: 1 INVITE"; sb.String() != want || num != len(want) {
		t.Errorf("cw wrote (%q, %d), want (%q, %d)", sb.String(), num, want, len(want))
	}
}

func TestCountingWriter_StopsOnError(t *testing.T) {
	t.Parallel()

	errWrite := errors.New("short write")
	cw := ioutil.GetCountingWriter(&failWriter{limit: 3, err: errWrite})
	defer ioutil.FreeCountingWriter(cw)

	cw.WriteString("abcdef")
	cw.WriteString("ghi")

	num, err := cw.Result()
	if diff := cmp.Diff(err, errWrite, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("cw.Result() error = %v, want %v\ndiff (-got +want):\n%v", err, errWrite, diff)
	}
	if num != 3 {
		t.Errorf("cw.Result() num = %d, want 3", num)
	}
}
