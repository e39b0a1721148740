package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// Stored webhook URLs reach this process from user input, so they are
// checked against the official incoming-webhook shape before any request
// leaves the box. Anything else is treated as an SSRF attempt.
var slackWebhookRe = regexp.MustCompile(`^https://hooks\.slack\.com/services/T[A-Z0-9]+/B[A-Z0-9]+/[A-Za-z0-9]+$`)

func ValidSlackWebhookURL(u string) bool { return slackWebhookRe.MatchString(u) }

type SlackMessage struct {
	CheckName string
	Status    string
	LastPing  *time.Time
	Interval  time.Duration
	Grace     time.Duration
}

type SlackSender interface {
	Send(ctx context.Context, webhookURL string, msg SlackMessage) error
}

type SlackNotifier struct {
	client *http.Client
	log    *zap.Logger
}

func NewSlackNotifier(timeout time.Duration, log *zap.Logger) *SlackNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SlackNotifier{
		client: &http.Client{Timeout: timeout},
		log:    log.With(zap.String("component", "notifier.slack")),
	}
}

type slackPayload struct {
	Text   string       `json:"text,omitempty"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type   string           `json:"type"`
	Text   *slackBlockText  `json:"text,omitempty"`
	Fields []slackBlockText `json:"fields,omitempty"`
}

type slackBlockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (n *SlackNotifier) Send(ctx context.Context, webhookURL string, msg SlackMessage) error {
	lastPing := "never"
	if msg.LastPing != nil {
		lastPing = msg.LastPing.UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(slackPayload{
		Text: fmt.Sprintf("[%s] %s", msg.Status, msg.CheckName),
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackBlockText{Type: "plain_text", Text: fmt.Sprintf("[%s] %s", msg.Status, msg.CheckName)},
			},
			{
				Type: "section",
				Fields: []slackBlockText{
					{Type: "mrkdwn", Text: fmt.Sprintf("*Status*: %s", msg.Status)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Last ping*: %s", lastPing)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Interval*: %s", msg.Interval)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Grace*: %s", msg.Grace)},
				},
			},
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack status %d", resp.StatusCode)
	}
	n.log.Debug("slack notification sent", zap.String("check", msg.CheckName))
	return nil
}
