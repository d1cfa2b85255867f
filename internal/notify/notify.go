// Package notify delivers low scorer messages to members.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/leaguewallet/pkg/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerContentType  = "Content-Type"
	headerServiceToken = "X-Service-Token"
	contentTypeJSON    = "application/json"
	errorBodyLimit     = 1024
	defaultTimeout     = 5 * time.Second
)

var (
	// ErrInvalidWebhookConfig reports a sender built without a usable endpoint.
	ErrInvalidWebhookConfig = errors.New("notify: invalid webhook configuration")
	// ErrEmptyDestination reports a send without a destination.
	ErrEmptyDestination = errors.New("notify: destination is empty")
)

// WebhookConfig configures WebhookSender.
type WebhookConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// WebhookSender posts messages to an SMS gateway webhook.
type WebhookSender struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewWebhookSender validates the config and returns a sender.
func NewWebhookSender(config WebhookConfig) (*WebhookSender, error) {
	endpoint := strings.TrimSpace(config.URL)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidWebhookConfig)
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &WebhookSender{
		url:        endpoint,
		token:      strings.TrimSpace(config.Token),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type webhookRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type webhookResponse struct {
	ID string `json:"id"`
}

// Send posts the message. Any non-2xx response is an error.
func (sender *WebhookSender) Send(ctx context.Context, destination string, message string) (ledger.NotificationReceipt, error) {
	if strings.TrimSpace(destination) == "" {
		return ledger.NotificationReceipt{}, ErrEmptyDestination
	}
	payload, err := json.Marshal(webhookRequest{To: destination, Message: message})
	if err != nil {
		return ledger.NotificationReceipt{}, fmt.Errorf("encode webhook payload: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, sender.url, bytes.NewReader(payload))
	if err != nil {
		return ledger.NotificationReceipt{}, fmt.Errorf("create webhook request: %w", err)
	}
	request.Header.Set(headerContentType, contentTypeJSON)
	if sender.token != "" {
		request.Header.Set(headerServiceToken, sender.token)
	}
	response, err := sender.httpClient.Do(request)
	if err != nil {
		return ledger.NotificationReceipt{}, fmt.Errorf("call webhook: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(response.Body, errorBodyLimit))
		return ledger.NotificationReceipt{}, fmt.Errorf("webhook returned status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}
	var decoded webhookResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil && !errors.Is(err, io.EOF) {
		return ledger.NotificationReceipt{}, fmt.Errorf("decode webhook response: %w", err)
	}
	return ledger.NotificationReceipt{MessageID: decoded.ID}, nil
}

// LogSender writes messages to the log instead of delivering them. It is
// used when no webhook is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a LogSender; a nil logger discards output.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (sender *LogSender) Send(_ context.Context, destination string, message string) (ledger.NotificationReceipt, error) {
	if strings.TrimSpace(destination) == "" {
		return ledger.NotificationReceipt{}, ErrEmptyDestination
	}
	messageID := "log_" + uuid.NewString()
	sender.logger.Info("notification",
		zap.String("message_id", messageID),
		zap.String("destination", destination),
		zap.String("message", message),
	)
	return ledger.NotificationReceipt{MessageID: messageID}, nil
}
