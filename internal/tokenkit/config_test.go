package tokenkit

import (
	"errors"
	"testing"
)

func validTestConfig() ProviderConfig {
	return ProviderConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/auth/provider/callback",
		Scope:        "fspt-r",
	}
}

func TestProviderConfigValidateRequiresCredentials(t *testing.T) {
	t.Parallel()

	config := validTestConfig()
	config.ClientID = ""
	if err := config.Validate(); !errors.Is(err, ErrMissingClientID) {
		t.Fatalf("expected ErrMissingClientID, got %v", err)
	}

	config = validTestConfig()
	config.ClientSecret = "   "
	if err := config.Validate(); !errors.Is(err, ErrMissingClientSecret) {
		t.Fatalf("expected ErrMissingClientSecret, got %v", err)
	}

	config = validTestConfig()
	config.RedirectURI = ""
	if err := config.Validate(); !errors.Is(err, ErrMissingRedirectURI) {
		t.Fatalf("expected ErrMissingRedirectURI, got %v", err)
	}
}

func TestProviderConfigValidateUpgradesHTTPRedirect(t *testing.T) {
	t.Parallel()

	config := validTestConfig()
	config.RedirectURI = "http://app.example.com/callback"
	if err := config.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.RedirectURI != "https://app.example.com/callback" {
		t.Fatalf("expected https upgrade, got %s", config.RedirectURI)
	}
}

func TestProviderConfigValidateRejectsNonHTTPScheme(t *testing.T) {
	t.Parallel()

	config := validTestConfig()
	config.RedirectURI = "ftp://app.example.com/callback"
	if err := config.Validate(); !errors.Is(err, ErrInsecureRedirectURI) {
		t.Fatalf("expected ErrInsecureRedirectURI, got %v", err)
	}
}

func TestProviderConfigValidateAppliesDefaults(t *testing.T) {
	t.Parallel()

	config := validTestConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.AuthURL == "" || config.TokenURL == "" {
		t.Fatalf("expected default endpoints, got %+v", config)
	}
	if config.StateTTL != DefaultStateTTL || config.CodeTTL != DefaultCodeTTL {
		t.Fatalf("expected default TTLs, got %+v", config)
	}
}

func TestOAuth2ConfigCarriesScopes(t *testing.T) {
	t.Parallel()

	config := validTestConfig()
	config.Scope = "fspt-r fspt-w"
	if err := config.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	oauthConfig := config.OAuth2Config()
	if len(oauthConfig.Scopes) != 2 || oauthConfig.Scopes[0] != "fspt-r" || oauthConfig.Scopes[1] != "fspt-w" {
		t.Fatalf("expected split scopes, got %v", oauthConfig.Scopes)
	}
}
