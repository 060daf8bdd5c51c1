package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/optiontrack/internal/httputil"
)

const defaultBotName = "OptionTrack"

// Sender posts operator alerts to a Slack or Discord webhook. Without a URL it
// only logs.
type Sender struct {
	webhookURL string
	botName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	log        *logrus.Entry
}

func NewSender(webhookURL, botName string, httpClient *http.Client) *Sender {
	if botName == "" {
		botName = defaultBotName
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Sender{
		webhookURL: webhookURL,
		botName:    botName,
		httpClient: httpClient,
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
		log: logrus.WithField("component", "notifications"),
	}
}

func (s *Sender) Send(msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.botName, msg)
	s.log.Info(formatted)

	if s.webhookURL == "" {
		return
	}

	body, err := json.Marshal(s.formatPayload(formatted))
	if err != nil {
		s.log.WithError(err).Error("marshal webhook payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		s.log.WithError(err).Error("webhook delivery failed after retries")
		return
	}
	resp.Body.Close()
}

// FetchFailing reports a run of consecutive failed fetch cycles.
func (s *Sender) FetchFailing(symbol, kind string, consecutive int, err error) {
	s.Send(fmt.Sprintf("%s %s chain: %d consecutive fetch failures, last: %v", symbol, kind, consecutive, err))
}

// FetchRecovered reports the first success after an alerted failure run.
func (s *Sender) FetchRecovered(symbol, kind string, after int) {
	s.Send(fmt.Sprintf("%s %s chain: fetch recovered after %d failures", symbol, kind, after))
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.botName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}
