package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/amishk599/pathwise/internal/model"
)

// DefaultClerkBaseURL is the Clerk backend API root.
const DefaultClerkBaseURL = "https://api.clerk.com/v1"

var _ model.IdentityDirectory = (*ClerkDirectory)(nil)

// clerkUser is the subset of the Clerk user object we read.
type clerkUser struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	ImageURL       string `json:"image_url"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// ClerkDirectory looks users up in the Clerk backend API.
type ClerkDirectory struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewClerkDirectory creates a directory backed by the Clerk API at baseURL.
func NewClerkDirectory(baseURL, secretKey string, client *http.Client) *ClerkDirectory {
	if baseURL == "" {
		baseURL = DefaultClerkBaseURL
	}
	return &ClerkDirectory{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    client,
	}
}

// Lookup fetches the user identified by subject. An unknown subject is
// ErrUnauthorized; other non-200 responses are returned as *model.HTTPError.
func (d *ClerkDirectory) Lookup(ctx context.Context, subject string) (model.Identity, error) {
	if subject == "" {
		return model.Identity{}, model.ErrUnauthorized
	}

	reqURL := fmt.Sprintf("%s/users/%s", d.baseURL, url.PathEscape(subject))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Identity{}, fmt.Errorf("clerk lookup for %s: %w", subject, err)
	}
	req.Header.Set("Authorization", "Bearer "+d.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return model.Identity{}, fmt.Errorf("clerk lookup for %s: %w", subject, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		httpErr := &model.HTTPError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("clerk lookup for %s: %s", subject, strings.TrimSpace(string(body))),
		}
		if resp.StatusCode == http.StatusNotFound {
			return model.Identity{}, fmt.Errorf("%w: unknown subject %s: %w", model.ErrUnauthorized, subject, httpErr)
		}
		return model.Identity{}, httpErr
	}

	var u clerkUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return model.Identity{}, fmt.Errorf("clerk lookup for %s: %w", subject, err)
	}

	id := model.Identity{
		Subject:  subject,
		Name:     strings.TrimSpace(u.FirstName + " " + u.LastName),
		ImageURL: u.ImageURL,
	}
	if len(u.EmailAddresses) > 0 {
		id.Email = u.EmailAddresses[0].EmailAddress
	}
	return id, nil
}
