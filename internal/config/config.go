// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxNavAttempts       = 10
	maxReconnectAttempts = 10
	maxCacheTime         = 24 * time.Hour
	maxNavTimeout        = 10 * time.Minute
	maxChallengeWait     = 2 * time.Minute
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Browser settings
	Headless    bool
	NoSandbox   bool
	BrowserPath string
	UserDataDir string

	// Tab identity
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int

	// Proxy
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string

	// Fetch behavior
	DefaultCacheTime  time.Duration // TTL for cached responses
	NavTimeout        time.Duration // per-navigation deadline
	NavAttempts       int           // page-level navigation retries
	ChallengeWait     time.Duration // stage-one interstitial wait
	ReconnectBackoff  time.Duration // initial backoff after browser loss
	ReconnectAttempts int           // full-operation retries after browser loss

	// Cookie persistence
	CookieDBPath      string
	CookieExemptSites []string // site identities never seeded or persisted

	// Caching exemptions
	IgnoredURLs []string

	// Request filtering
	BlocklistPath      string // external blocklist override file
	BlocklistHotReload bool   // watch the override file for changes

	// Alerting
	AlertWebhookURL string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		// Server - default to localhost for security (prevents accidental exposure)
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 8192),

		// Browser
		Headless:    getEnvBool("HEADLESS", true),
		NoSandbox:   getEnvBool("NO_SANDBOX", true),
		BrowserPath: getEnvString("BROWSER_PATH", ""),
		UserDataDir: getEnvString("USER_DATA_DIR", "browser_data"),

		// Tab identity
		UserAgent: getEnvString("USER_AGENT",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) "+
				"Chrome/114.0.0.0 Safari/537.36 Edg/114.0.1823.43"),
		ViewportWidth:  getEnvInt("VIEWPORT_WIDTH", 1280),
		ViewportHeight: getEnvInt("VIEWPORT_HEIGHT", 800),

		// Proxy
		ProxyURL:      getEnvString("PROXY_URL", ""),
		ProxyUsername: getEnvString("PROXY_USERNAME", ""),
		ProxyPassword: getEnvString("PROXY_PASSWORD", ""),

		// Fetch behavior
		DefaultCacheTime:  getEnvDuration("DEFAULT_CACHE_TIME", 5*time.Second),
		NavTimeout:        getEnvDuration("NAV_TIMEOUT", 30*time.Second),
		NavAttempts:       getEnvInt("NAV_ATTEMPTS", 3),
		ChallengeWait:     getEnvDuration("CHALLENGE_WAIT", 10*time.Second),
		ReconnectBackoff:  getEnvDuration("RECONNECT_BACKOFF", 10*time.Second),
		ReconnectAttempts: getEnvInt("RECONNECT_ATTEMPTS", 3),

		// Cookies
		CookieDBPath:      getEnvString("COOKIE_DB_PATH", "cookies.db"),
		CookieExemptSites: getEnvStringSlice("COOKIE_EXEMPT_SITES", nil),

		// Caching
		IgnoredURLs: getEnvStringSlice("IGNORED_URLS", nil),

		// Request filtering
		BlocklistPath:      getEnvString("BLOCKLIST_PATH", ""),
		BlocklistHotReload: getEnvBool("BLOCKLIST_HOT_RELOAD", false),

		// Alerting
		AlertWebhookURL: getEnvString("ALERT_WEBHOOK_URL", ""),

		// Logging
		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}
}

// HasProxy returns true if an upstream proxy is configured.
func (c *Config) HasProxy() bool {
	return c.ProxyURL != ""
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults rather than failing startup.
func (c *Config) Validate() {
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8192")
		c.Port = 8192
	}

	if c.BrowserPath != "" && strings.Contains(c.BrowserPath, "..") {
		log.Error().
			Str("path", c.BrowserPath).
			Msg("BrowserPath contains path traversal sequence (..), ignoring")
		c.BrowserPath = ""
	}

	if c.UserDataDir == "" {
		log.Warn().Msg("USER_DATA_DIR empty, using 'browser_data'")
		c.UserDataDir = "browser_data"
	}

	if c.ViewportWidth < 320 || c.ViewportHeight < 240 {
		log.Warn().
			Int("width", c.ViewportWidth).
			Int("height", c.ViewportHeight).
			Msg("Viewport too small, using 1280x800")
		c.ViewportWidth = 1280
		c.ViewportHeight = 800
	}

	if c.DefaultCacheTime < time.Second {
		log.Warn().Dur("ttl", c.DefaultCacheTime).Msg("Cache time too short, using 5s")
		c.DefaultCacheTime = 5 * time.Second
	} else if c.DefaultCacheTime > maxCacheTime {
		log.Warn().
			Dur("ttl", c.DefaultCacheTime).
			Dur("max", maxCacheTime).
			Msg("Cache time too long, capping to maximum")
		c.DefaultCacheTime = maxCacheTime
	}

	if c.NavTimeout < time.Second {
		log.Warn().Dur("timeout", c.NavTimeout).Msg("Navigation timeout too short, using 30s")
		c.NavTimeout = 30 * time.Second
	} else if c.NavTimeout > maxNavTimeout {
		log.Warn().
			Dur("timeout", c.NavTimeout).
			Dur("max", maxNavTimeout).
			Msg("Navigation timeout too long, capping to maximum")
		c.NavTimeout = maxNavTimeout
	}

	if c.NavAttempts < 1 {
		log.Warn().Int("attempts", c.NavAttempts).Msg("Invalid navigation attempts, using 3")
		c.NavAttempts = 3
	} else if c.NavAttempts > maxNavAttempts {
		log.Warn().
			Int("attempts", c.NavAttempts).
			Int("max", maxNavAttempts).
			Msg("Too many navigation attempts, capping to maximum")
		c.NavAttempts = maxNavAttempts
	}

	if c.ChallengeWait < time.Second {
		log.Warn().Dur("wait", c.ChallengeWait).Msg("Challenge wait too short, using 10s")
		c.ChallengeWait = 10 * time.Second
	} else if c.ChallengeWait > maxChallengeWait {
		log.Warn().
			Dur("wait", c.ChallengeWait).
			Dur("max", maxChallengeWait).
			Msg("Challenge wait too long, capping to maximum")
		c.ChallengeWait = maxChallengeWait
	}

	if c.ReconnectBackoff < time.Second {
		log.Warn().Dur("backoff", c.ReconnectBackoff).Msg("Reconnect backoff too short, using 10s")
		c.ReconnectBackoff = 10 * time.Second
	}

	if c.ReconnectAttempts < 1 {
		log.Warn().Int("attempts", c.ReconnectAttempts).Msg("Invalid reconnect attempts, using 3")
		c.ReconnectAttempts = 3
	} else if c.ReconnectAttempts > maxReconnectAttempts {
		log.Warn().
			Int("attempts", c.ReconnectAttempts).
			Int("max", maxReconnectAttempts).
			Msg("Too many reconnect attempts, capping to maximum")
		c.ReconnectAttempts = maxReconnectAttempts
	}

	// Log level validation
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	// Proxy URL and credential validation
	if c.ProxyURL != "" {
		if !strings.Contains(c.ProxyURL, "://") {
			log.Error().
				Str("proxy_url", c.ProxyURL).
				Msg("ProxyURL missing scheme (should be http://, https://, socks4://, or socks5://)")
		} else {
			scheme := strings.ToLower(strings.Split(c.ProxyURL, "://")[0])
			validSchemes := map[string]bool{"http": true, "https": true, "socks4": true, "socks5": true}
			if !validSchemes[scheme] {
				log.Error().
					Str("proxy_url", c.ProxyURL).
					Str("scheme", scheme).
					Msg("ProxyURL has invalid scheme (must be http, https, socks4, or socks5)")
			}
			if strings.Contains(c.ProxyURL, "@") {
				log.Warn().Msg("ProxyURL contains embedded credentials (@) - use PROXY_USERNAME and PROXY_PASSWORD environment variables instead for better security")
			}
		}
	}
	if c.ProxyUsername != "" && c.ProxyPassword == "" {
		log.Warn().Msg("PROXY_USERNAME set but PROXY_PASSWORD is empty - authentication may fail")
	}
	if c.ProxyPassword != "" && c.ProxyUsername == "" {
		log.Warn().Msg("PROXY_PASSWORD set but PROXY_USERNAME is empty - authentication may fail")
	}
	if (c.ProxyUsername != "" || c.ProxyPassword != "") && c.ProxyURL == "" {
		log.Warn().Msg("Proxy credentials set but PROXY_URL is empty - credentials will not be used")
	}

	// Blocklist path validation
	if c.BlocklistPath != "" && strings.Contains(c.BlocklistPath, "..") {
		log.Error().
			Str("path", c.BlocklistPath).
			Msg("BlocklistPath contains path traversal sequence (..), ignoring")
		c.BlocklistPath = ""
	}
	if c.BlocklistHotReload && c.BlocklistPath == "" {
		log.Warn().Msg("BLOCKLIST_HOT_RELOAD enabled but BLOCKLIST_PATH not set - hot-reload disabled")
		c.BlocklistHotReload = false
	}

	// Alert webhook validation
	if c.AlertWebhookURL != "" && !strings.HasPrefix(c.AlertWebhookURL, "https://") {
		log.Warn().Msg("ALERT_WEBHOOK_URL is not HTTPS - alert payloads may be intercepted")
	}
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
