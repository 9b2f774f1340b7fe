package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/pathwise/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// maxListedFailures bounds how many failed keys one message lists.
const maxListedFailures = 20

// SlackNotifier posts refresh summaries to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL   string
	httpClient   *http.Client
	logger       *slog.Logger
	onlyFailures bool
}

// NewSlackNotifier returns a notifier that posts refresh summaries to Slack.
// With onlyFailures set, clean cycles are not posted.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, onlyFailures bool, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL:   webhookURL,
		httpClient:   httpClient,
		logger:       logger,
		onlyFailures: onlyFailures,
	}
}

// Notify sends the report as one Block Kit message. A 429 is retried once
// after the Retry-After delay.
func (s *SlackNotifier) Notify(ctx context.Context, r model.RefreshReport) error {
	if s.onlyFailures && r.Err == nil && len(r.Failed) == 0 {
		return nil
	}

	body, err := json.Marshal(buildPayload(r))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(ctx, body)
	if err != nil {
		return err
	}

	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}

		status, _, err = s.post(ctx, body)
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", status)
		}
		s.logger.Info("slack message sent", "retried", true)
		return nil
	}

	if status != http.StatusOK {
		return fmt.Errorf("slack returned %d", status)
	}
	s.logger.Info("slack message sent")
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) (int, time.Duration, error) {
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
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendTestMessage sends a sample refresh summary to verify the integration works.
func SendTestMessage(ctx context.Context, n model.Notifier) error {
	return n.Notify(ctx, model.RefreshReport{
		Stale:     2,
		Refreshed: 1,
		Failed:    []string{"pathwise-test-notification"},
		StartedAt: time.Now(),
		Duration:  1500 * time.Millisecond,
	})
}

func buildPayload(r model.RefreshReport) slackPayload {
	if r.Err != nil {
		return slackPayload{Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: "Insight refresh failed"},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: "```" + r.Err.Error() + "```"},
			},
		}}
	}

	title := "Insight refresh complete"
	if len(r.Failed) > 0 {
		title = "Insight refresh finished with failures"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: title},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Stale:*\n" + strconv.Itoa(r.Stale)},
				{Type: "mrkdwn", Text: "*Refreshed:*\n" + strconv.Itoa(r.Refreshed)},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Failed:*\n" + strconv.Itoa(len(r.Failed))},
				{Type: "mrkdwn", Text: "*Duration:*\n" + r.Duration.Round(time.Millisecond).String()},
			},
		},
	}

	if len(r.Failed) > 0 {
		listed := r.Failed
		more := ""
		if len(listed) > maxListedFailures {
			more = fmt.Sprintf("\n_and %d more_", len(listed)-maxListedFailures)
			listed = listed[:maxListedFailures]
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "• " + strings.Join(listed, "\n• ") + more},
		})
	}

	blocks = append(blocks, slackBlock{Type: "divider"})
	return slackPayload{Blocks: blocks}
}
