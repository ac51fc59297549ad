package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

// Ensure SlackMailer implements model.Mailer.
var _ model.Mailer = (*SlackMailer)(nil)

// slackTextLimit is Slack's cap on a section block's text.
const slackTextLimit = 3000

// SlackMailer posts digests to a Slack channel via Incoming Webhooks.
type SlackMailer struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackMailer returns a mailer that posts each digest to Slack.
func NewSlackMailer(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackMailer {
	return &SlackMailer{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Send posts msg as one Block Kit message. A 429 is retried once after the
// Retry-After delay.
func (s *SlackMailer) Send(ctx context.Context, msg model.Message) error {
	body, err := json.Marshal(buildPayload(msg))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(ctx, body)
	if err != nil {
		return err
	}

	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter)
		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return ctx.Err()
		}
		status, _, err = s.post(ctx, body)
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", status)
		}
		s.logger.Info("slack digest sent", "to", msg.To, "retried", true)
		return nil
	}

	if status != http.StatusOK {
		return fmt.Errorf("slack returned %d", status)
	}
	s.logger.Info("slack digest sent", "to", msg.To)
	return nil
}

func (s *SlackMailer) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
	if secs <= 0 {
		secs = 1
	}
	return resp.StatusCode, time.Duration(secs) * time.Second, nil
}

// Block Kit payload types.

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func buildPayload(msg model.Message) slackPayload {
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: msg.Subject},
		},
	}
	for _, chunk := range chunkText(msg.Body, slackTextLimit) {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: chunk},
		})
	}
	blocks = append(blocks,
		slackBlock{
			Type:     "context",
			Elements: []slackText{{Type: "mrkdwn", Text: "Digest for " + msg.To}},
		},
		slackBlock{Type: "divider"},
	)
	return slackPayload{Text: msg.Subject, Blocks: blocks}
}

// chunkText splits s on line boundaries into pieces of at most limit bytes.
func chunkText(s string, limit int) []string {
	var out []string
	var cur bytes.Buffer
	for _, line := range bytes.SplitAfter([]byte(s), []byte("\n")) {
		if cur.Len()+len(line) > limit && cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.Write(line)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// SendTestMessage sends a sample digest to verify the integration works.
func SendTestMessage(ctx context.Context, m model.Mailer, to string) error {
	return m.Send(ctx, model.Message{
		To:      to,
		Subject: "Job digest: test message",
		Body: "Hi,\n\nThis is a test digest.\n\nNew matches:\n" +
			"- Test Notification — jobdigest — https://example.com/jobs/test\n",
	})
}
