// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig handles framework-level settings (HTTP ports, TLS,
// logging level, timeouts). AppConfig is everything specific to the
// identity service. Values come from environment variables, config files,
// or command-line flags, loaded in LoadConfig, and the struct is passed
// explicitly to the lifecycle hooks that need it.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connection pool size
	MongoMinPoolSize uint64 // Min connection pool size

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionDomain string // Cookie domain (blank means current host)

	// Daily job configuration
	DailyJobInterval time.Duration // How often the daily job runs (default 24h)
	DailyJobTimeout  time.Duration // Per-run deadline for one daily job pass

	// NotificationRetentionDays controls how long read, completed
	// notifications are kept before the daily purge removes them.
	NotificationRetentionDays int

	// MatrixHomeserver is the homeserver name used when recording chat
	// account ids (@username:homeserver). Records only; this service
	// never talks to the homeserver.
	MatrixHomeserver string
}
