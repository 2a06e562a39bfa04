package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fractalmind-ai/topoml/internal/config"
	"github.com/slack-go/slack"
)

// Notifier reports the outcome of a run.
type Notifier interface {
	Notify(ctx context.Context, source, message string) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }

// New returns the notifier configured in cfg, or Nop.
func New(cfg *config.NotifyConfig) (Notifier, error) {
	if cfg == nil || cfg.Slack == nil || !cfg.Slack.Enabled {
		return Nop{}, nil
	}
	return NewSlackNotifier(cfg.Slack.BotToken, cfg.Slack.Channel, cfg.Slack.APIURL)
}

// SlackNotifier posts run summaries to a Slack channel.
type SlackNotifier struct {
	channelID string
	apiClient *slack.Client

	telemetryMu  sync.RWMutex
	lastActivity time.Time
	lastError    time.Time
}

// NewSlackNotifier creates a notifier for channelID. apiURL overrides the
// Slack API base URL when set.
func NewSlackNotifier(botToken, channelID, apiURL string) (*SlackNotifier, error) {
	trimmedBot := strings.TrimSpace(botToken)
	trimmedChannel := strings.TrimSpace(channelID)
	if trimmedBot == "" || trimmedChannel == "" {
		return nil, errors.New("slack botToken and channel are required")
	}

	var opts []slack.Option
	if base := strings.TrimSpace(apiURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, slack.OptionAPIURL(base))
	}

	return &SlackNotifier{
		channelID: trimmedChannel,
		apiClient: slack.New(trimmedBot, opts...),
	}, nil
}

// Notify posts "source: message" to the configured channel.
func (n *SlackNotifier) Notify(ctx context.Context, source, message string) error {
	if n == nil || n.apiClient == nil {
		return errors.New("slack api client not initialized")
	}
	text := message
	if s := strings.TrimSpace(source); s != "" {
		text = fmt.Sprintf("*%s*: %s", s, message)
	}
	_, _, err := n.apiClient.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		n.markError()
		log.Printf("slack notify failed: %v", err)
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	n.markActivity()
	return nil
}

func (n *SlackNotifier) lastActivityAt() time.Time {
	n.telemetryMu.RLock()
	defer n.telemetryMu.RUnlock()
	return n.lastActivity
}

func (n *SlackNotifier) lastErrorAt() time.Time {
	n.telemetryMu.RLock()
	defer n.telemetryMu.RUnlock()
	return n.lastError
}

func (n *SlackNotifier) markActivity() {
	n.telemetryMu.Lock()
	n.lastActivity = time.Now()
	n.telemetryMu.Unlock()
}

func (n *SlackNotifier) markError() {
	n.telemetryMu.Lock()
	n.lastError = time.Now()
	n.telemetryMu.Unlock()
}
