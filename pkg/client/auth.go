package client

import (
	"encoding/base64"
	"fmt"
	"net/http"
)

// AuthMethod selects how requests authenticate against the API.
type AuthMethod string

const (
	// AuthBasic authenticates with username and password.
	AuthBasic AuthMethod = "basic"

	// AuthToken authenticates with username and an API token, sent as basic
	// auth with "{username}/token" as the user.
	AuthToken AuthMethod = "token"

	// AuthOAuth authenticates with an OAuth access token as a bearer header.
	AuthOAuth AuthMethod = "oauth"
)

// Zendesk marketplace headers, set when the client runs as a marketplace app.
const (
	headerMarketplaceName  = "X-Zendesk-Marketplace-Name"
	headerMarketplaceOrgID = "X-Zendesk-Marketplace-Organization-Id"
	headerMarketplaceAppID = "X-Zendesk-Marketplace-App-Id"
)

// validateCredentials checks that the credential set for the chosen auth
// method is complete. It runs once in New, before the first request.
func (cfg *Config) validateCredentials() error {
	switch cfg.AuthMethod {
	case AuthBasic:
		if cfg.Username == "" || cfg.Password == "" {
			return &ConfigError{Message: "auth method 'basic' requires username and password"}
		}
	case AuthToken:
		if cfg.Username == "" || cfg.Token == "" {
			return &ConfigError{Message: "auth method 'token' requires username and token"}
		}
	case AuthOAuth:
		if cfg.AccessToken == "" {
			return &ConfigError{Message: "auth method 'oauth' requires access_token"}
		}
	default:
		return &ConfigError{Message: fmt.Sprintf("unknown auth method '%s', pick one of 'basic', 'token' or 'oauth'", cfg.AuthMethod)}
	}
	return nil
}

// authorization builds the Authorization header value for the configured
// method. Credentials are validated before this is ever called.
func (cfg *Config) authorization() string {
	switch cfg.AuthMethod {
	case AuthBasic:
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Username+":"+cfg.Password))
	case AuthToken:
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Username+"/token:"+cfg.Token))
	case AuthOAuth:
		return "Bearer " + cfg.AccessToken
	}
	return ""
}

// applyHeaders sets the auth and common headers on an outgoing request.
func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Authorization", c.config.authorization())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.config.MarketplaceName != "" {
		req.Header.Set(headerMarketplaceName, c.config.MarketplaceName)
	}
	if c.config.MarketplaceOrgID != "" {
		req.Header.Set(headerMarketplaceOrgID, c.config.MarketplaceOrgID)
	}
	if c.config.MarketplaceAppID != "" {
		req.Header.Set(headerMarketplaceAppID, c.config.MarketplaceAppID)
	}
}
