package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bakharlabs/blurshield/guard"
	"github.com/bakharlabs/blurshield/mark"
)

// Remote is the authoritative tier: the sync hub's mark-set API. All calls
// carry the device's bearer token; an unenrolled device has no token and the
// tier reports !SignedIn(), which the gateway treats as "tier absent".
type Remote struct {
	base   string
	token  string
	client *http.Client
}

// NewRemote creates a Remote against the hub at base (for example
// "https://hub.example.com"). token may be empty; the tier then reports
// signed-out and every call fails.
func NewRemote(base, token string, client *http.Client) *Remote {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Remote{base: base, token: token, client: client}
}

// SignedIn reports whether the device holds a hub token.
func (r *Remote) SignedIn() bool { return r.token != "" }

// SetToken swaps the bearer token after enrollment or sign-out.
func (r *Remote) SetToken(token string) { r.token = token }

type markSetPayload struct {
	Identity string       `json:"identity"`
	Revision int64        `json:"revision"`
	Marks    []*mark.Mark `json:"marks"`
}

// Load fetches the hub's set for identity. A 404 means the hub has no set
// yet and is not an error.
func (r *Remote) Load(ctx context.Context, identity string) ([]*mark.Mark, error) {
	if !r.SignedIn() {
		return nil, fmt.Errorf("%w: remote load: not signed in", ErrPersistenceFailed)
	}
	u := r.base + "/v1/marks?identity=" + url.QueryEscape(identity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: remote load: %w", ErrPersistenceFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: remote load: %w", ErrPersistenceFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: remote load: hub returned %d", ErrPersistenceFailed, resp.StatusCode)
	}

	body, err := guard.LimitedReadAll(resp.Body, guard.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("%w: remote load: %w", ErrPersistenceFailed, err)
	}
	var payload markSetPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: remote load: %w", ErrPersistenceFailed, err)
	}
	for _, m := range payload.Marks {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%w: remote load: %w", ErrPersistenceFailed, err)
		}
	}
	return payload.Marks, nil
}

// Save pushes the full set for identity to the hub.
func (r *Remote) Save(ctx context.Context, identity string, marks []*mark.Mark) error {
	if !r.SignedIn() {
		return fmt.Errorf("%w: remote save: not signed in", ErrPersistenceFailed)
	}
	body, err := json.Marshal(markSetPayload{Identity: identity, Marks: marks})
	if err != nil {
		return fmt.Errorf("%w: remote save: %w", ErrPersistenceFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.base+"/v1/marks", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: remote save: %w", ErrPersistenceFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: remote save: %w", ErrPersistenceFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: remote save: hub returned %d", ErrPersistenceFailed, resp.StatusCode)
	}
	return nil
}

var _ RemoteTier = (*Remote)(nil)
