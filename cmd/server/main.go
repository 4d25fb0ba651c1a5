package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rosterlab/leaguelink/internal/fantasy"
	"github.com/rosterlab/leaguelink/internal/tokenkit"
	"github.com/rosterlab/leaguelink/internal/tokenkitpg"
	"github.com/rosterlab/leaguelink/internal/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "leaguelink",
		Short:   "Fantasy provider link service: OAuth token lifecycle and normalized league/team data",
		PreRunE: prepareSettings,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("environment", "development", "Deployment posture (development or production)")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for the session JWT")
	rootCmd.Flags().Duration("session_ttl", 15*time.Minute, "Session token TTL")
	rootCmd.Flags().String("provider_client_id", "", "Provider OAuth client identifier")
	rootCmd.Flags().String("provider_client_secret", "", "Provider OAuth client secret")
	rootCmd.Flags().String("provider_redirect_uri", "", "Callback URI registered with the provider")
	rootCmd.Flags().String("provider_scope", "fspt-r", "Requested provider access scope")
	rootCmd.Flags().String("provider_language", "en-us", "Language hint appended to the authorization URL")
	rootCmd.Flags().String("provider_auth_url", "", "Provider authorization endpoint override")
	rootCmd.Flags().String("provider_token_url", "", "Provider token endpoint override")
	rootCmd.Flags().String("provider_api_base_url", "", "Provider data API base URL override")
	rootCmd.Flags().Duration("state_ttl", tokenkit.DefaultStateTTL, "Anti-forgery state lifetime")
	rootCmd.Flags().Duration("code_ttl", tokenkit.DefaultCodeTTL, "Staged authorization code lifetime")
	rootCmd.Flags().String("database_url", "", "Database URL for provider tokens (postgres:// or sqlite://; leave empty for in-memory store)")
	rootCmd.Flags().Bool("pgx_pool", false, "Use a raw pgx pool instead of GORM for a postgres database_url")
	rootCmd.Flags().Bool("dev_insecure_tls", false, "Relax provider TLS verification for local development")
	rootCmd.Flags().Bool("dev_login", false, "Mount the dev session mint endpoint")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")
	rootCmd.Flags().String("connect_success_redirect", "", "Browser target after a successful provider callback")
	rootCmd.Flags().String("connect_failure_redirect", "", "Browser target after a rejected provider callback")

	for _, flagName := range []string{
		"listen_addr", "environment", "cookie_domain", "jwt_signing_key", "session_ttl",
		"provider_client_id", "provider_client_secret", "provider_redirect_uri",
		"provider_scope", "provider_language", "provider_auth_url", "provider_token_url",
		"provider_api_base_url", "state_ttl", "code_ttl", "database_url", "pgx_pool",
		"dev_insecure_tls", "dev_login", "enable_cors", "cors_allowed_origins",
		"connect_success_redirect", "connect_failure_redirect",
	} {
		_ = viper.BindPFlag(flagName, rootCmd.Flags().Lookup(flagName))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingClientID     = "config.missing_provider_client_id"
	configCodeMissingClientSecret = "config.missing_provider_client_secret"
	configCodeMissingRedirectURI  = "config.missing_provider_redirect_uri"
	configCodeMissingSigningKey   = "config.missing_jwt_signing_key"
	configCodeInvalidSessionTTL   = "config.invalid_session_ttl"
	configCodeInsecureProduction  = "config.insecure_tls_in_production"
	configCodeUninitialized       = "config.uninitialized_settings"
)

type serverSettings struct {
	Provider        tokenkit.ProviderConfig
	Session         web.SessionConfig
	CookieDomain    string
	APIBaseURL      string
	Environment     string
	DevInsecureTLS  bool
	DevLogin        bool
	SuccessRedirect string
	FailureRedirect string
}

type contextKey string

const settingsContextKey contextKey = "serverSettings"

func prepareSettings(command *cobra.Command, arguments []string) error {
	settings, loadErr := loadSettings()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, settingsContextKey, settings))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func loadSettings() (serverSettings, error) {
	clientID := viper.GetString("provider_client_id")
	if clientID == "" {
		return serverSettings{}, configError(configCodeMissingClientID, "provider_client_id must be provided")
	}
	clientSecret := viper.GetString("provider_client_secret")
	if clientSecret == "" {
		return serverSettings{}, configError(configCodeMissingClientSecret, "provider_client_secret must be provided")
	}
	redirectURI := viper.GetString("provider_redirect_uri")
	if redirectURI == "" {
		return serverSettings{}, configError(configCodeMissingRedirectURI, "provider_redirect_uri must be provided")
	}
	signingKey := viper.GetString("jwt_signing_key")
	if signingKey == "" {
		return serverSettings{}, configError(configCodeMissingSigningKey, "jwt_signing_key must be provided")
	}
	sessionTTL := viper.GetDuration("session_ttl")
	if sessionTTL <= 0 {
		return serverSettings{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}

	environment := viper.GetString("environment")
	devInsecureTLS := viper.GetBool("dev_insecure_tls")
	if devInsecureTLS && environment == "production" {
		return serverSettings{}, configError(configCodeInsecureProduction, "dev_insecure_tls must never be enabled in production")
	}

	settings := serverSettings{
		Provider: tokenkit.ProviderConfig{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURI:  redirectURI,
			Scope:        viper.GetString("provider_scope"),
			Language:     viper.GetString("provider_language"),
			AuthURL:      viper.GetString("provider_auth_url"),
			TokenURL:     viper.GetString("provider_token_url"),
			StateTTL:     viper.GetDuration("state_ttl"),
			CodeTTL:      viper.GetDuration("code_ttl"),
		},
		Session: web.SessionConfig{
			SigningKey: []byte(signingKey),
			Issuer:     "leaguelink",
			TTL:        sessionTTL,
		},
		CookieDomain:    viper.GetString("cookie_domain"),
		APIBaseURL:      viper.GetString("provider_api_base_url"),
		Environment:     environment,
		DevInsecureTLS:  devInsecureTLS,
		DevLogin:        viper.GetBool("dev_login"),
		SuccessRedirect: viper.GetString("connect_success_redirect"),
		FailureRedirect: viper.GetString("connect_failure_redirect"),
	}
	if validateErr := settings.Provider.Validate(); validateErr != nil {
		return serverSettings{}, validateErr
	}
	return settings, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(settingsContextKey)
	}
	settings, ok := contextValue.(serverSettings)
	if !ok {
		return configError(configCodeUninitialized, "server settings not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	usePgxPool := viper.GetBool("pgx_pool")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(web.RequestID())
	router.Use(web.AccessLog(logger))

	sameSite := http.SameSiteStrictMode
	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
		sameSite = http.SameSiteNoneMode
	}

	clock := tokenkit.NewSystemClock()

	tokenStore, storeErr := buildTokenStore(command.Context(), logger, clock, databaseURL, usePgxPool)
	if storeErr != nil {
		return storeErr
	}

	providerHTTPClient := &http.Client{Timeout: 30 * time.Second}
	if settings.DevInsecureTLS {
		logger.Warn("provider TLS verification relaxed for local development")
		providerHTTPClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	stateStore := tokenkit.NewMemoryStateStore(settings.Provider.StateTTL)
	codeStore := tokenkit.NewMemoryCodeStore(settings.Provider.CodeTTL)
	authorizer := tokenkit.NewAuthorizer(settings.Provider, stateStore, codeStore, tokenStore, clock, logger, providerHTTPClient)
	refresher := tokenkit.NewRefresher(settings.Provider, tokenStore, clock, logger, providerHTTPClient)

	fantasyClient := fantasy.NewClient(settings.APIBaseURL, tokenStore, refresher, clock, logger, providerHTTPClient)
	fantasyService := fantasy.NewService(fantasyClient, logger)

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if settings.DevLogin {
		router.POST("/session/dev", web.HandleDevLogin(settings.Session, settings.CookieDomain, sameSite))
	}

	tokenkit.MountConnectRoutes(router, tokenkit.ConnectRouteConfig{
		SuccessRedirect: settings.SuccessRedirect,
		FailureRedirect: settings.FailureRedirect,
	}, authorizer, refresher, tokenStore, tokenkit.UserIDResolver(web.ResolveUser(settings.Session)), logger)

	protected := router.Group("/api")
	protected.Use(web.RequireSession(settings.Session))
	web.MountFantasyRoutes(protected, fantasyService, logger)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

// buildTokenStore selects the token store backend: in-memory when no URL is
// configured, a raw pgx pool when requested, GORM otherwise.
func buildTokenStore(ctx context.Context, logger *zap.Logger, clock tokenkit.Clock, databaseURL string, usePgxPool bool) (tokenkit.TokenStore, error) {
	if databaseURL == "" {
		logger.Info("using in-memory token store")
		return tokenkit.NewMemoryTokenStore(), nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if usePgxPool {
		pool, poolErr := tokenkitpg.BuildPool(ctx, databaseURL)
		if poolErr != nil {
			return nil, poolErr
		}
		if schemaErr := tokenkitpg.EnsureSchema(ctx, pool); schemaErr != nil {
			return nil, schemaErr
		}
		logger.Info("using pgx token store")
		return tokenkitpg.NewPostgresTokenStore(pool, clock), nil
	}
	store, storeErr := tokenkit.NewDatabaseTokenStore(ctx, databaseURL, clock)
	if storeErr != nil {
		return nil, storeErr
	}
	logger.Info("using persistent token store", zap.String("driver", store.Driver()))
	return store, nil
}
