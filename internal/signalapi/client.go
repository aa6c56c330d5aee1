// Package signalapi is the HTTP client for the signal-cli-rest-api gateway:
// health checks, group metadata, attachment retrieval, and outbound send.
package signalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sigbridge/internal/domain"
)

// Client talks to one signal-cli-rest-api instance on behalf of one account.
// It implements domain.GroupFetcher and domain.AttachmentFetcher.
type Client struct {
	baseURL        string
	number         string
	attachmentsDir string
	publicBaseURL  string
	client         *http.Client
	logger         *slog.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	APIURL         string
	PhoneNumber    string
	AttachmentsDir string
	PublicBaseURL  string // base for consumer-addressable attachment URLs
	Timeout        time.Duration
	Logger         *slog.Logger
}

// NewClient creates a gateway API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.APIURL, "/"),
		number:         cfg.PhoneNumber,
		attachmentsDir: cfg.AttachmentsDir,
		publicBaseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		client:         &http.Client{Timeout: cfg.Timeout},
		logger:         cfg.Logger,
	}
}

// Health checks the gateway's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("gateway health: HTTP %d", resp.StatusCode)
	}
	return nil
}

// groupResponse is the gateway's group detail payload.
type groupResponse struct {
	Name            string   `json:"name"`
	Members         []string `json:"members"`
	Admins          []string `json:"admins"`
	Blocked         bool     `json:"blocked"`
	PendingInvites  []string `json:"pending_invites"`
	PendingRequests []string `json:"pending_requests"`
	InviteLink      string   `json:"invite_link"`
}

// GroupMetadata fetches group details for the given group id.
func (c *Client) GroupMetadata(ctx context.Context, groupID string) (*domain.GroupMetadata, error) {
	url := fmt.Sprintf("%s/v1/groups/%s/%s", c.baseURL, c.number, groupID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch group %s: %w", groupID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch group %s: HTTP %d", groupID, resp.StatusCode)
	}

	var gr groupResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decode group %s: %w", groupID, err)
	}

	return &domain.GroupMetadata{
		ID:              groupID,
		Name:            gr.Name,
		Members:         gr.Members,
		Admins:          gr.Admins,
		Blocked:         gr.Blocked,
		PendingInvites:  gr.PendingInvites,
		PendingRequests: gr.PendingRequests,
		InviteLink:      gr.InviteLink,
	}, nil
}

// FetchAttachment downloads an attachment binary, stores it under the
// attachments directory, and returns the consumer-addressable URL for it.
func (c *Client) FetchAttachment(ctx context.Context, attachmentID, filename string) (string, error) {
	url := fmt.Sprintf("%s/v1/attachments/%s", c.baseURL, attachmentID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch attachment %s: %w", attachmentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch attachment %s: HTTP %d", attachmentID, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read attachment %s: %w", attachmentID, err)
	}

	// Strip any path components from gateway-supplied filenames.
	filename = filepath.Base(filename)

	if err := os.MkdirAll(c.attachmentsDir, 0o755); err != nil {
		return "", fmt.Errorf("create attachments dir: %w", err)
	}
	path := filepath.Join(c.attachmentsDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save attachment %s: %w", attachmentID, err)
	}

	c.logger.Debug("attachment saved", "id", attachmentID, "path", path)
	return c.PublicURL(filename), nil
}

// PublicURL maps a stored attachment filename to the URL consumers use to
// retrieve it. Without a configured public base the local path is returned.
func (c *Client) PublicURL(filename string) string {
	if c.publicBaseURL == "" {
		return filepath.Join(c.attachmentsDir, filename)
	}
	return c.publicBaseURL + "/" + filename
}

// SendRequest is one outbound message.
type SendRequest struct {
	Recipient         string
	Message           string
	IsGroup           bool
	Attachments       []string
	Base64Attachments []string
}

// sendPayload is the gateway's v2/send body.
type sendPayload struct {
	Message           string   `json:"message"`
	Number            string   `json:"number"`
	Recipients        []string `json:"recipients,omitempty"`
	GroupID           string   `json:"group_id,omitempty"`
	Attachments       []string `json:"attachments,omitempty"`
	Base64Attachments []string `json:"base64_attachments,omitempty"`
}

// Send posts an outbound message to the gateway. Group messages address the
// group id; direct messages address a single recipient.
func (c *Client) Send(ctx context.Context, sr SendRequest) error {
	payload := sendPayload{
		Message:           sr.Message,
		Number:            c.number,
		Attachments:       sr.Attachments,
		Base64Attachments: sr.Base64Attachments,
	}
	if sr.IsGroup {
		payload.GroupID = sr.Recipient
	} else {
		payload.Recipients = []string{sr.Recipient}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v2/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway send HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Info("message sent", "recipient", sr.Recipient, "group", sr.IsGroup)
	return nil
}
