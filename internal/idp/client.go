// Package idp resolves employee identities against the directory's HTTP API.
// The client performs a search by lookup key followed by a group membership
// fetch, and normalizes every failure into the lookup error taxonomy so the
// onboarding service can drive retries without inspecting transport details.
package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"roster/internal/onboarding/models"
	"roster/pkg/platform/sentinel"
)

// DefaultTimeout bounds every directory call.
const DefaultTimeout = 10 * time.Second

// Client talks to an Okta-compatible directory API. It keeps no state between
// calls beyond the underlying HTTP connection pool.
type Client struct {
	baseURL      string
	token        string
	http         *http.Client
	logger       *slog.Logger
	entitlements EntitlementSource
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

func WithEntitlements(source EntitlementSource) Option {
	return func(c *Client) {
		c.entitlements = source
	}
}

// New constructs a directory client. The token is sent as an SSWS credential
// on every request.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:      baseURL,
		token:        token,
		http:         &http.Client{Timeout: DefaultTimeout},
		logger:       slog.Default(),
		entitlements: DefaultEntitlements(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// directoryUser is the wire shape of a search result.
type directoryUser struct {
	ID      string         `json:"id"`
	Profile map[string]any `json:"profile"`
}

// directoryGroup is the wire shape of a group membership entry.
type directoryGroup struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// ResolveIdentity searches the directory for key and returns the identity
// together with its group memberships and application entitlements.
//
// Zero search matches map to sentinel.ErrNotFound. Multiple matches resolve
// deterministically to the first result; the directory defines no tie-break
// rule, so the ambiguity is logged as a warning rather than guessed around.
func (c *Client) ResolveIdentity(ctx context.Context, key string) (*models.IdentityRecord, error) {
	if key == "" {
		return nil, newLookupError(CategoryBadRequest, "search", errors.New("lookup key is empty"))
	}

	var users []directoryUser
	searchURL := fmt.Sprintf("%s/api/v1/users?q=%s", c.baseURL, url.QueryEscape(key))
	if err := c.getJSON(ctx, "search", searchURL, &users); err != nil {
		return nil, err
	}

	if len(users) == 0 {
		return nil, fmt.Errorf("no directory user matches %q: %w", key, sentinel.ErrNotFound)
	}
	if len(users) > 1 {
		c.logger.WarnContext(ctx, "ambiguous directory search, using first match",
			"key", key, "matches", len(users))
	}
	user := users[0]

	var groupEntries []directoryGroup
	groupsURL := fmt.Sprintf("%s/api/v1/users/%s/groups", c.baseURL, url.PathEscape(user.ID))
	if err := c.getJSON(ctx, "groups", groupsURL, &groupEntries); err != nil {
		return nil, err
	}

	applications, err := c.entitlements.Applications(ctx, key)
	if err != nil {
		return nil, newLookupError(CategoryInternal, "entitlements", err)
	}

	return &models.IdentityRecord{
		Profile:      user.Profile,
		Groups:       dedupeGroups(groupEntries),
		Applications: applications,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, op, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return newLookupError(CategoryBadRequest, op, err)
	}
	req.Header.Set("Authorization", "SSWS "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.classifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(op, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return newLookupError(CategoryBadData, op, err)
	}
	return nil
}

// classifyTransport maps client-side request failures. Caller cancellation is
// passed through untouched so the service can distinguish it from directory
// slowness.
func (c *Client) classifyTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("idp %s: %w", op, err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return newLookupError(CategoryTimeout, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newLookupError(CategoryTimeout, op, err)
	}
	return newLookupError(CategoryOutage, op, err)
}

func classifyStatus(op string, status int) error {
	err := fmt.Errorf("unexpected status %d", status)
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("idp %s: %w", op, sentinel.ErrNotFound)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newLookupError(CategoryAuthentication, op, err)
	case status == http.StatusTooManyRequests:
		return newLookupError(CategoryRateLimited, op, err)
	case status >= 500:
		return newLookupError(CategoryOutage, op, err)
	default:
		return newLookupError(CategoryBadRequest, op, err)
	}
}

func dedupeGroups(entries []directoryGroup) []string {
	seen := make(map[string]struct{}, len(entries))
	groups := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Profile.Name
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		groups = append(groups, name)
	}
	return groups
}
