package notifier

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/amishk599/jobdigest/internal/model"
)

func TestLogMailer_Send(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewTextHandler(&buf, nil)))

	msg := model.Message{
		To:      "dev@example.com",
		Subject: "Job digest: 2 new",
		Body:    "Hi,\n\nNew matches:\n- A — X — https://x.io/1\n- B — Y — https://y.io/2\n",
	}
	if err := m.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() = %v, want nil", err)
	}

	out := buf.String()
	if strings.Count(out, "digest item") != 2 {
		t.Errorf("expected two item lines, got:\n%s", out)
	}
	if !strings.Contains(out, "dev@example.com") {
		t.Errorf("recipient missing from log output:\n%s", out)
	}
}
