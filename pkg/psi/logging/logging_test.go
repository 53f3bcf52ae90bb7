package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/coinbase/cb-psi-go/pkg/psi/logging"
)

func capture() (*bytes.Buffer, logging.Logger) {
	var buf bytes.Buffer
	return &buf, logging.New(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func TestRedactedAttribute(t *testing.T) {
	buf, l := capture()
	l.With("role", "p2").Info(context.Background(), "key generated", logging.Redacted("decryption_key"))

	out := buf.String()
	if !strings.Contains(out, "decryption_key=[redacted]") {
		t.Fatalf("missing redaction marker: %s", out)
	}
	if !strings.Contains(out, "role=p2") {
		t.Fatalf("missing bound attribute: %s", out)
	}
}

func TestSecretsNeverReachSink(t *testing.T) {
	buf, l := capture()
	ctx := context.Background()
	l.With("identifier", "alice@example.com").Debug(ctx, "bound")
	l.Info(ctx, "record", "value", 4242, "element", []byte("secret-bytes"))
	l.Warn(ctx, "batch", slog.Group("input", "identifiers", []string{"bob"}, "raw", [][]byte{[]byte("carol")}))

	out := buf.String()
	for _, leak := range []string{"alice", "4242", "secret-bytes", "bob", "carol"} {
		if strings.Contains(out, leak) {
			t.Fatalf("log output contains %q: %s", leak, out)
		}
	}
	for _, want := range []string{"identifier=[redacted]", "value=[redacted]", `element="[12 bytes]"`, "input.identifiers=[redacted]", `input.raw="[1 byte strings]"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q: %s", want, out)
		}
	}
}

func TestLevelsPassThrough(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	l.Info(context.Background(), "quiet", "set_size", 3)
	l.Error(context.Background(), "loud", "set_size", 3)
	out := buf.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "loud") || !strings.Contains(out, "set_size=3") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestDiscard(t *testing.T) {
	logging.Discard().Error(context.Background(), "dropped", "identifier", "x")
}
