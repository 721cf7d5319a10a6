package cfg

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"flathound" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" description:"Database password (required)" required:"true"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"flathound" description:"Database name"`
	DBSSLMode  string `long:"db-sslmode" env:"DB_SSLMODE" default:"disable" description:"Database SSL mode"`

	// HTTP control surface
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	PublicURL    string `long:"public-url" env:"PUBLIC_URL" description:"Public base URL used in unsubscribe links (optional)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for the control endpoints (optional)"`

	// Harvesting
	RegionsDir     string `long:"regions-dir" env:"REGIONS_DIR" default:"./regions" description:"Directory containing region source configuration files"`
	HarvestMinutes int    `long:"harvest-interval" env:"HARVEST_INTERVAL" default:"30" description:"Base harvest interval in minutes, jittered per cycle"`
	RegionDelaySec int    `long:"region-delay" env:"REGION_DELAY" default:"5" description:"Delay between region fetches in seconds"`
	RecencyMinutes int    `long:"recency-minutes" env:"RECENCY_MINUTES" default:"60" description:"Default recency window for harvested postings in minutes"`
	DetailDepth    string `long:"detail-depth" env:"DETAIL_DEPTH" default:"shallow" choice:"shallow" choice:"enhanced" description:"Default harvest detail depth"`

	// Normalization heuristics
	PriceFloor   int    `long:"price-floor" env:"PRICE_FLOOR" default:"200" description:"Lowest believable monthly price"`
	PriceCeiling int    `long:"price-ceiling" env:"PRICE_CEILING" default:"10000" description:"Highest believable monthly price"`
	MaxBedrooms  int    `long:"max-bedrooms" env:"MAX_BEDROOMS" default:"10" description:"Highest believable bedroom count"`
	MetroBounds  string `long:"metro-bounds" env:"METRO_BOUNDS" default:"47.20,-122.70,48.05,-121.80" description:"Metro bounding box as minLat,minLon,maxLat,maxLon"`

	// Matching
	MatchLookbackMinutes int `long:"match-lookback" env:"MATCH_LOOKBACK" default:"1440" description:"How far back the matcher looks for harvested listings, in minutes"`
	MatchCapPerAlert     int `long:"match-cap" env:"MATCH_CAP" default:"25" description:"Maximum notifications generated per alert per run"`

	// Notification delivery
	MaxNotifications    int    `long:"max-notifications" env:"MAX_NOTIFICATIONS" default:"100" description:"Maximum pending notifications processed per notifier run"`
	NotifyDelaySec      int    `long:"notify-delay" env:"NOTIFY_DELAY" default:"2" description:"Delay between recipient sends in seconds"`
	RetryAgeMinutes     int    `long:"retry-age" env:"RETRY_AGE" default:"60" description:"Age in minutes before a failed notification is retried"`
	RetrySweepLimit     int    `long:"retry-sweep-limit" env:"RETRY_SWEEP_LIMIT" default:"50" description:"Maximum failed notifications reset per sweep"`
	MaxDeliveryAttempts int    `long:"max-delivery-attempts" env:"MAX_DELIVERY_ATTEMPTS" default:"3" description:"Delivery attempts before a notification is abandoned"`
	MailerURL           string `long:"mailer-url" env:"MAILER_URL" description:"Outbound mail API endpoint"`
	MailerAPIKey        string `long:"mailer-api-key" env:"MAILER_API_KEY" description:"Outbound mail API key"`
	MailerFrom          string `long:"mailer-from" env:"MAILER_FROM" default:"alerts@flathound.io" description:"From address for outbound mail"`
	AllowNoMailer       bool   `long:"allow-no-mailer" env:"ALLOW_NO_MAILER" description:"Run without a mail endpoint; deliveries are skipped"`

	// Retention
	DisableCleanup    bool `long:"disable-cleanup" env:"DISABLE_CLEANUP" description:"Disable the scheduled retention job"`
	CleanupMinutes    int  `long:"cleanup-interval" env:"CLEANUP_INTERVAL" default:"360" description:"Retention interval in minutes"`
	ListingActiveDays int  `long:"listing-active-days" env:"LISTING_ACTIVE_DAYS" default:"14" description:"Days before a listing stops matching"`
	ListingPurgeDays  int  `long:"listing-purge-days" env:"LISTING_PURGE_DAYS" default:"90" description:"Days before a listing is deleted"`
	NotificationDays  int  `long:"notification-days" env:"NOTIFICATION_DAYS" default:"30" description:"Days before delivered notification history is deleted"`
	TokenDays         int  `long:"token-days" env:"TOKEN_DAYS" default:"30" description:"Days before auth tokens are deleted"`
	AlertStaleDays    int  `long:"alert-stale-days" env:"ALERT_STALE_DAYS" default:"180" description:"Days before deactivated alerts are deleted"`
	RetentionChunk    int  `long:"retention-chunk" env:"RETENTION_CHUNK" default:"500" description:"Rows deleted per retention chunk"`

	// Health checks
	DisableHealthChecks bool `long:"disable-health-checks" env:"DISABLE_HEALTH_CHECKS" description:"Disable the scheduled health check job"`
	HealthMinutes       int  `long:"health-interval" env:"HEALTH_INTERVAL" default:"15" description:"Health check interval in minutes"`

	// Optional collaborators
	RoutingURL string `long:"routing-url" env:"ROUTING_URL" description:"Travel-time routing service endpoint (optional, enables commute filters)"`
	RedisAddr  string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the commute estimate cache (optional)"`

	// Application metadata
	UserAgent        string `long:"user-agent" env:"USER_AGENT" default:"Flathound/1.0" description:"User agent string for outbound HTTP requests"`
	Timezone         string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	LogLevel         string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	ShutdownGraceSec int    `long:"shutdown-grace" env:"SHUTDOWN_GRACE" default:"30" description:"Seconds to wait for in-flight jobs on shutdown"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	bounds, err := parseMetroBounds(raw.MetroBounds)
	if err != nil {
		return nil, fmt.Errorf("invalid metro bounds %q: %w", raw.MetroBounds, err)
	}

	cfg := &Cfg{
		DBHost:               raw.DBHost,
		DBPort:               raw.DBPort,
		DBUser:               raw.DBUser,
		DBPassword:           raw.DBPassword,
		DBName:               raw.DBName,
		DBSSLMode:            raw.DBSSLMode,
		Port:                 raw.Port,
		PublicURL:            raw.PublicURL,
		APIAccessKey:         raw.APIAccessKey,
		RegionsDir:           raw.RegionsDir,
		HarvestMinutes:       raw.HarvestMinutes,
		RegionDelaySec:       raw.RegionDelaySec,
		RecencyMinutes:       raw.RecencyMinutes,
		DetailDepth:          raw.DetailDepth,
		PriceFloor:           raw.PriceFloor,
		PriceCeiling:         raw.PriceCeiling,
		MaxBedrooms:          raw.MaxBedrooms,
		MetroBounds:          bounds,
		MatchLookbackMinutes: raw.MatchLookbackMinutes,
		MatchCapPerAlert:     raw.MatchCapPerAlert,
		MaxNotifications:     raw.MaxNotifications,
		NotifyDelaySec:       raw.NotifyDelaySec,
		RetryAgeMinutes:      raw.RetryAgeMinutes,
		RetrySweepLimit:      raw.RetrySweepLimit,
		MaxDeliveryAttempts:  raw.MaxDeliveryAttempts,
		MailerURL:            raw.MailerURL,
		MailerAPIKey:         raw.MailerAPIKey,
		MailerFrom:           raw.MailerFrom,
		AllowNoMailer:        raw.AllowNoMailer,
		CleanupMinutes:       raw.CleanupMinutes,
		EnableCleanup:        !raw.DisableCleanup,
		ListingActiveDays:    raw.ListingActiveDays,
		ListingPurgeDays:     raw.ListingPurgeDays,
		NotificationDays:     raw.NotificationDays,
		TokenDays:            raw.TokenDays,
		AlertStaleDays:       raw.AlertStaleDays,
		RetentionChunk:       raw.RetentionChunk,
		HealthMinutes:        raw.HealthMinutes,
		EnableHealthChecks:   !raw.DisableHealthChecks,
		RoutingURL:           raw.RoutingURL,
		RedisAddr:            raw.RedisAddr,
		UserAgent:            raw.UserAgent,
		Timezone:             raw.Timezone,
		LogLevel:             raw.LogLevel,
		ShutdownGraceSec:     raw.ShutdownGraceSec,
		Version:              GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// parseMetroBounds parses "minLat,minLon,maxLat,maxLon" into a Bounds
func parseMetroBounds(s string) (Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Bounds{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}

	vals := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Bounds{}, fmt.Errorf("value %d is not a number: %w", i+1, err)
		}
		vals[i] = v
	}

	b := Bounds{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if b.MinLat >= b.MaxLat {
		return Bounds{}, fmt.Errorf("minLat must be less than maxLat")
	}
	if b.MinLon >= b.MaxLon {
		return Bounds{}, fmt.Errorf("minLon must be less than maxLon")
	}

	return b, nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
