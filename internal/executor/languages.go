package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"livecode/internal/protocol"
)

// LanguagesURL derives the GET /languages address from the execute
// websocket endpoint.
func LanguagesURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	u.Path = "/languages"
	u.RawQuery = ""
	return u.String(), nil
}

// FetchLanguages asks the executor behind endpoint which languages it
// supports.
func FetchLanguages(ctx context.Context, client *http.Client, endpoint string) ([]protocol.Language, error) {
	if client == nil {
		client = http.DefaultClient
	}
	target, err := LanguagesURL(endpoint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get languages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get languages: unexpected status %s", resp.Status)
	}

	var body protocol.LanguagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode languages: %w", err)
	}
	return body.Languages, nil
}
