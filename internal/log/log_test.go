package log_test

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ghettovoice/qsip/internal/log"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, c := range cases {
		got, err := log.ParseLevel(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, want error %v", c.in, err, c.wantErr)
			continue
		}
		if got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := log.New(&buf, "json", slog.LevelInfo)
	l.Debug("hidden")
	l.Info("shown",
		slog.Any("payload", log.PayloadValue([]byte("INVITE"), 100)),
		slog.Any("cut", log.PayloadValue("OPTIONS sip:bob@biloxi.com SIP/2.0", 7)),
	)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %q", out)
	}
	if !strings.Contains(out, `"payload":"INVITE"`) {
		t.Errorf("output = %q, want payload attribute", out)
	}
	if !strings.Contains(out, `"cut":"OPTIONS..."`) {
		t.Errorf("output = %q, want truncated attribute", out)
	}
}

func TestNew_Noop(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := log.New(&buf, "none", slog.LevelDebug)
	l.Error("dropped")
	if buf.Len() != 0 {
		t.Errorf("noop logger wrote %q", buf.String())
	}
}

func TestNewFileWriter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "qsip.log")
	w := log.NewFileWriter(log.FileOptions{Path: path, MaxSizeMB: 1})
	l := log.NewJSON(w, slog.LevelInfo)
	l.Info("to file")
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v, want nil", err)
	}
}
