package cfg

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Application configuration
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string
	ModelsFile        string
	DefaultLanguage   string

	// Provider configuration
	AIBaseUrl            string
	AIAPIKey             string
	ScrapeBaseUrl        string
	ScrapeAPIKey         string
	VideoBaseUrl         string
	VideoAPIKey          string
	TranscriptionBaseUrl string
	TranscriptionAPIKey  string
	SearchBaseUrl        string
	SearchAPIKey         string
	WebhookSecret        string

	// Feed polling configuration
	FeedCredentialKey string
	NATSUrl           string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
