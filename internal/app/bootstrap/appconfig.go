// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig handles framework-level settings (ports, TLS,
// logging, CORS); AppConfig is everything specific to Guildhall. Values
// come from config files, GUILDHALL_* environment variables, or flags,
// merged in LoadConfig.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // How long a sign-in lasts

	// Site identity
	SiteName string // Shown in the header and page titles
	BaseURL  string // e.g., "https://guildhall.example"; OAuth callbacks hang off this

	// Google OAuth configuration
	GoogleClientID     string
	GoogleClientSecret string

	// Microsoft OAuth configuration
	MicrosoftClientID     string
	MicrosoftClientSecret string

	// Bootstrap admin: a password account created (or promoted) at
	// startup so a fresh deployment has someone who can grant roles.
	AdminEmail    string
	AdminPassword string

	// Live updates
	LivePollInterval time.Duration // Poll cadence when change streams are unavailable
}
