package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// CredentialProvider supplies the bearer token for gateway calls.
type CredentialProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// DarajaTokenProvider fetches a fresh client-credentials token on every call.
type DarajaTokenProvider struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	client         *http.Client
}

func NewDarajaTokenProvider(baseURL, consumerKey, consumerSecret string, client *http.Client) *DarajaTokenProvider {
	return &DarajaTokenProvider{
		baseURL:        baseURL,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		client:         client,
	}
}

func (p *DarajaTokenProvider) AccessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(p.consumerKey, p.consumerSecret)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}
	return tokenResp.AccessToken, nil
}
