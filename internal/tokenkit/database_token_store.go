package tokenkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("token_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("token_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("token_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("token_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("token_store.unsupported_no_scheme")
)

// DatabaseTokenStore persists provider token pairs using GORM.
type DatabaseTokenStore struct {
	db          *gorm.DB
	driverLabel string
	clock       Clock
}

// Driver exposes the selected database driver label.
func (store *DatabaseTokenStore) Driver() string {
	return store.driverLabel
}

type providerTokenRecord struct {
	UserID       string `gorm:"column:user_id;primaryKey"`
	AccessToken  string `gorm:"column:access_token;not null;default:''"`
	RefreshToken string `gorm:"column:refresh_token;not null;default:''"`
	ExpiresAtNS  int64  `gorm:"column:expires_at_ns;not null;default:0"`
	UpdatedAtNS  int64  `gorm:"column:updated_at_ns;not null;default:0"`
	Connected    bool   `gorm:"column:connected;not null;default:false"`
}

func (providerTokenRecord) TableName() string {
	return "provider_tokens"
}

// NewDatabaseTokenStore constructs a GORM-backed store from a database URL
// (postgres:// or sqlite://).
func NewDatabaseTokenStore(ctx context.Context, databaseURL string, clock Clock) (*DatabaseTokenStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("token_store.open: %w", errEmptyDatabaseURL)
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("token_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&providerTokenRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("token_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseTokenStore{
		db:          gormDB,
		driverLabel: driverLabel,
		clock:       clock,
	}, nil
}

// Get returns the stored pair or ErrTokenNotFound.
func (store *DatabaseTokenStore) Get(ctx context.Context, userID string) (TokenPair, error) {
	var record providerTokenRecord
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenPair{}, fmt.Errorf("token_store.get.%s: %w", store.driverLabel, ErrTokenNotFound)
		}
		return TokenPair{}, fmt.Errorf("token_store.get.%s: %w", store.driverLabel, err)
	}
	return pairFromRecord(record), nil
}

// Put upserts the full pair for the user. The conflict clause restricts the
// update to token columns so unrelated columns added later are not clobbered.
func (store *DatabaseTokenStore) Put(ctx context.Context, userID string, pair TokenPair) error {
	record := recordFromPair(userID, pair)
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "expires_at_ns", "updated_at_ns", "connected",
		}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("token_store.put.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Clear empties the token columns and marks the user disconnected. Clearing a
// user that was never stored writes a disconnected record, keeping the
// operation idempotent.
func (store *DatabaseTokenStore) Clear(ctx context.Context, userID string) error {
	record := providerTokenRecord{
		UserID:      userID,
		UpdatedAtNS: store.clock.Now().UnixNano(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "expires_at_ns", "updated_at_ns", "connected",
		}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("token_store.clear.%s: %w", store.driverLabel, err)
	}
	return nil
}

func recordFromPair(userID string, pair TokenPair) providerTokenRecord {
	record := providerTokenRecord{
		UserID:       userID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Connected:    pair.Connected,
	}
	if !pair.ExpiresAt.IsZero() {
		record.ExpiresAtNS = pair.ExpiresAt.UnixNano()
	}
	if !pair.UpdatedAt.IsZero() {
		record.UpdatedAtNS = pair.UpdatedAt.UnixNano()
	}
	return record
}

func pairFromRecord(record providerTokenRecord) TokenPair {
	pair := TokenPair{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		Connected:    record.Connected,
	}
	if record.ExpiresAtNS != 0 {
		pair.ExpiresAt = time.Unix(0, record.ExpiresAtNS).UTC()
	}
	if record.UpdatedAtNS != 0 {
		pair.UpdatedAt = time.Unix(0, record.UpdatedAtNS).UTC()
	}
	return pair
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("token_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("token_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("token_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("token_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
