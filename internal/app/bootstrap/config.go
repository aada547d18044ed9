// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for the identity service.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_key, etc.
//   - Environment variables: MK8IDENTITY_MONGO_URI, MK8IDENTITY_SESSION_KEY, etc.
//   - Command-line flags: --mongo_uri, --session_key, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "mk8_identity", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size"},

	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},

	{Name: "daily_job_interval", Default: "24h", Desc: "Interval between daily maintenance job runs"},
	{Name: "daily_job_timeout", Default: "10m", Desc: "Deadline for a single daily job pass"},
	{Name: "notification_retention_days", Default: 90, Desc: "Days to keep read, completed notifications before purge"},

	{Name: "matrix_homeserver", Default: "matrix.example.org", Desc: "Homeserver name recorded in Matrix account ids"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
// WAFFLE's config.LoadWithAppConfig merges flags > env > files > defaults,
// with MK8IDENTITY_* as the environment prefix for app keys.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "MK8IDENTITY", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionDomain: appValues.String("session_domain"),

		DailyJobInterval:          appValues.Duration("daily_job_interval", 24*time.Hour),
		DailyJobTimeout:           appValues.Duration("daily_job_timeout", 10*time.Minute),
		NotificationRetentionDays: appValues.Int("notification_retention_days"),

		MatrixHomeserver: appValues.String("matrix_homeserver"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI is validated here to catch configuration errors before
// attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.DailyJobInterval <= 0 {
		return fmt.Errorf("daily_job_interval must be positive, got %s", appCfg.DailyJobInterval)
	}
	if appCfg.NotificationRetentionDays <= 0 {
		return fmt.Errorf("notification_retention_days must be positive, got %d", appCfg.NotificationRetentionDays)
	}
	if appCfg.MatrixHomeserver == "" {
		return fmt.Errorf("matrix_homeserver must not be empty")
	}

	return nil
}
