// CLAUDE:SUMMARY HMAC-signed webhook notifier — fires a POST whenever a mark set takes a new revision.
package synchub

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bakharlabs/blurshield/guard"
)

// RevisionEvent is the webhook payload sent on every accepted mark-set write.
type RevisionEvent struct {
	AccountID string `json:"account_id"`
	Identity  string `json:"identity"`
	Revision  int64  `json:"revision"`
	Marks     int    `json:"marks"`
	UpdatedAt int64  `json:"updated_at"`
}

// Notifier posts revision events to a configured URL, signing each body with
// an X-Signature-256 HMAC header (sha256= prefix, GitHub style). A nil
// Notifier is inert.
type Notifier struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

// NewNotifier creates a Notifier. Returns nil (inert) when url is empty;
// rejects URLs pointing at private or loopback addresses.
func NewNotifier(url, secret string, logger *slog.Logger) (*Notifier, error) {
	if url == "" {
		return nil, nil
	}
	if err := guard.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("synchub: webhook url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}, nil
}

// Notify posts the event. Failures are logged, not returned: a slow or down
// webhook must never delay a mark-set write.
func (n *Notifier) Notify(ctx context.Context, ev RevisionEvent) {
	if n == nil {
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		n.logger.Warn("synchub: webhook marshal failed", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("synchub: webhook request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	if n.secret != "" {
		mac := hmac.New(sha256.New, []byte(n.secret))
		mac.Write(body)
		req.Header.Set("X-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("synchub: webhook POST failed", "url", n.url, "error", err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		n.logger.Warn("synchub: webhook rejected",
			"url", n.url, "status", resp.StatusCode, "identity", ev.Identity)
	}
}
