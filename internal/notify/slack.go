package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultSlackBaseURL = "https://slack.com/api"

// Slack sends the brief as a direct message through the Web API.
type Slack struct {
	token   string
	userID  string
	baseURL string
	client  *http.Client
}

// NewSlack builds the notifier. baseURL may be empty.
func NewSlack(token, userID, baseURL string, client *http.Client) (*Slack, error) {
	if token == "" || userID == "" {
		return nil, fmt.Errorf("slack bot token and user id are required")
	}
	if baseURL == "" {
		baseURL = defaultSlackBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Slack{
		token:   token,
		userID:  userID,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}, nil
}

func (s *Slack) Name() string { return "slack" }

type slackResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
}

// Notify opens a DM channel with the user and posts the formatted brief.
func (s *Slack) Notify(ctx context.Context, msg Message) error {
	opened, err := s.call(ctx, "conversations.open", url.Values{"users": {s.userID}})
	if err != nil {
		return err
	}
	if opened.Channel.ID == "" {
		return fmt.Errorf("conversations.open returned no channel")
	}

	_, err = s.call(ctx, "chat.postMessage", url.Values{
		"channel": {opened.Channel.ID},
		"text":    {FormatText(msg)},
		"mrkdwn":  {"true"},
	})
	return err
}

func (s *Slack) call(ctx context.Context, method string, params url.Values) (*slackResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("slack %s rate limited", method)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("slack %s returned status %d", method, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read slack %s response: %w", method, err)
	}
	var out slackResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse slack %s response: %w", method, err)
	}
	if !out.OK {
		return nil, fmt.Errorf("slack %s error: %s", method, out.Error)
	}
	return &out, nil
}
