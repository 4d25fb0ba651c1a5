package tokenkit

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultAuthURL  = "https://api.login.yahoo.com/oauth2/request_auth"
	defaultTokenURL = "https://api.login.yahoo.com/oauth2/get_token"

	// DefaultStateTTL bounds how long an issued callback state stays valid.
	DefaultStateTTL = 10 * time.Minute
	// DefaultCodeTTL bounds how long a staged authorization code stays exchangeable.
	DefaultCodeTTL = 5 * time.Minute
)

var (
	// ErrMissingClientID indicates the provider client identifier is not configured.
	ErrMissingClientID = errors.New("config.missing_client_id")
	// ErrMissingClientSecret indicates the provider client secret is not configured.
	ErrMissingClientSecret = errors.New("config.missing_client_secret")
	// ErrMissingRedirectURI indicates the callback URI is not configured.
	ErrMissingRedirectURI = errors.New("config.missing_redirect_uri")
	// ErrInsecureRedirectURI indicates the callback URI uses a scheme that cannot be upgraded to TLS.
	ErrInsecureRedirectURI = errors.New("config.insecure_redirect_uri")
)

// ProviderConfig carries the provider client credentials and endpoints.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	Language     string
	AuthURL      string
	TokenURL     string
	StateTTL     time.Duration
	CodeTTL      time.Duration
}

// Validate checks the credentials and normalizes the callback URI to TLS.
// A plain http callback is upgraded to https; any other scheme is rejected.
func (config *ProviderConfig) Validate() error {
	if strings.TrimSpace(config.ClientID) == "" {
		return ErrMissingClientID
	}
	if strings.TrimSpace(config.ClientSecret) == "" {
		return ErrMissingClientSecret
	}
	if strings.TrimSpace(config.RedirectURI) == "" {
		return ErrMissingRedirectURI
	}
	secureRedirect, redirectErr := forceSecureRedirect(config.RedirectURI)
	if redirectErr != nil {
		return redirectErr
	}
	config.RedirectURI = secureRedirect
	if config.AuthURL == "" {
		config.AuthURL = defaultAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.StateTTL <= 0 {
		config.StateTTL = DefaultStateTTL
	}
	if config.CodeTTL <= 0 {
		config.CodeTTL = DefaultCodeTTL
	}
	return nil
}

// OAuth2Config materializes the oauth2 client configuration. Basic client
// authentication on the token endpoint is selected explicitly; the provider
// rejects credentials passed as form parameters.
func (config *ProviderConfig) OAuth2Config() *oauth2.Config {
	oauthConfig := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   config.AuthURL,
			TokenURL:  config.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	if config.Scope != "" {
		oauthConfig.Scopes = strings.Split(config.Scope, " ")
	}
	return oauthConfig
}

func forceSecureRedirect(redirectURI string) (string, error) {
	parsed, parseErr := url.Parse(redirectURI)
	if parseErr != nil {
		return "", fmt.Errorf("config.redirect_uri_parse: %w", parseErr)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "https":
		return parsed.String(), nil
	case "http":
		parsed.Scheme = "https"
		return parsed.String(), nil
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrInsecureRedirectURI, parsed.Scheme)
	}
}
