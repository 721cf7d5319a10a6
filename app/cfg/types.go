package cfg

// Bounds is the metro bounding box used to validate extracted coordinates
type Bounds struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// HTTP control surface
	Port         string
	PublicURL    string
	APIAccessKey string

	// Harvesting
	RegionsDir     string
	HarvestMinutes int
	RegionDelaySec int
	RecencyMinutes int
	DetailDepth    string

	// Normalization heuristics
	PriceFloor   int
	PriceCeiling int
	MaxBedrooms  int
	MetroBounds  Bounds

	// Matching
	MatchLookbackMinutes int
	MatchCapPerAlert     int

	// Notification delivery
	MaxNotifications    int
	NotifyDelaySec      int
	RetryAgeMinutes     int
	RetrySweepLimit     int
	MaxDeliveryAttempts int
	MailerURL           string
	MailerAPIKey        string
	MailerFrom          string
	AllowNoMailer       bool

	// Retention
	CleanupMinutes    int
	EnableCleanup     bool
	ListingActiveDays int
	ListingPurgeDays  int
	NotificationDays  int
	TokenDays         int
	AlertStaleDays    int
	RetentionChunk    int

	// Health checks
	HealthMinutes      int
	EnableHealthChecks bool

	// Optional collaborators
	RoutingURL string
	RedisAddr  string

	// Application metadata
	UserAgent        string
	Timezone         string
	LogLevel         string
	ShutdownGraceSec int
	Version          string
}
