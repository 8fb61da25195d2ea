package config

// Default values applied before a configuration file is decoded over them.
const (
	defaultFetchTimeoutSeconds     = 30
	defaultRetryMaxAttempts        = 3
	defaultRetryInitialDelayMS     = 500
	defaultRetryMaxDelayMS         = 10_000
	defaultRatePerInterval         = 2
	defaultRateIntervalSeconds     = 10
	defaultBreakerThreshold        = 5
	defaultBreakerCooldownSeconds  = 300
	defaultFreshnessHorizonDays    = 7
	defaultMaxLedeChars            = 500
	defaultIncrementalBatchLimit   = 20
	defaultFetchConcurrency        = 4
	defaultClassifyConcurrency     = 3
	defaultClassifyPerMinute       = 30
	defaultGenerateConcurrency     = 1
	defaultPollIntervalSeconds     = 2
	defaultLeaseSeconds            = 120
	defaultFetchMaxAttempts        = 3
	defaultClassifyMaxAttempts     = 3
	defaultGenerateMaxAttempts     = 2
	defaultRetryBackoffBaseSeconds = 30
	defaultRelevanceThreshold      = 0.6
	defaultGenerateThreshold       = 0.75
	defaultNewTTLSeconds           = 600
	defaultExistsTTLDays           = 7
	defaultArticleRetentionDays    = 90
	defaultScanLogRetentionDays    = 30
	defaultSummaryRetentionDays    = 90
)

// Default returns a configuration populated with working defaults. Paths are
// left relative to the user's home and expanded during Load.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: "~/.local/share/newswatch",
			LogDir:  "~/.local/share/newswatch/logs",
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
		Redis: Redis{
			Addr:          "localhost:6379",
			NewTTLSeconds: defaultNewTTLSeconds,
			ExistsTTLDays: defaultExistsTTLDays,
		},
		Fetch: Fetch{
			TimeoutSeconds:       defaultFetchTimeoutSeconds,
			RetryMaxAttempts:     defaultRetryMaxAttempts,
			RetryInitialDelayMS:  defaultRetryInitialDelayMS,
			RetryMaxDelayMS:      defaultRetryMaxDelayMS,
			RatePerInterval:      defaultRatePerInterval,
			RateIntervalSeconds:  defaultRateIntervalSeconds,
			BreakerThreshold:     defaultBreakerThreshold,
			BreakerCooldownSecs:  defaultBreakerCooldownSeconds,
			FreshnessHorizonDays: defaultFreshnessHorizonDays,
			MaxLedeChars:         defaultMaxLedeChars,
		},
		Scan: Scan{
			IncrementalBatchLimit: defaultIncrementalBatchLimit,
			PriorityCategory:      "national",
		},
		Queues: Queues{
			FetchConcurrency:     defaultFetchConcurrency,
			ClassifyConcurrency:  defaultClassifyConcurrency,
			ClassifyPerMinute:    defaultClassifyPerMinute,
			GenerateConcurrency:  defaultGenerateConcurrency,
			PollIntervalSeconds:  defaultPollIntervalSeconds,
			LeaseSeconds:         defaultLeaseSeconds,
			FetchMaxAttempts:     defaultFetchMaxAttempts,
			ClassifyMaxAttempts:  defaultClassifyMaxAttempts,
			GenerateMaxAttempts:  defaultGenerateMaxAttempts,
			RetryBackoffBaseSecs: defaultRetryBackoffBaseSeconds,
		},
		Classifier: Classifier{
			TimeoutSeconds:     60,
			RelevanceThreshold: defaultRelevanceThreshold,
			GenerateThreshold:  defaultGenerateThreshold,
		},
		Generator: Generator{
			TimeoutSeconds: 120,
			Platforms:      []string{"twitter", "linkedin"},
		},
		Retention: Retention{
			ArticleDays: defaultArticleRetentionDays,
			ScanLogDays: defaultScanLogRetentionDays,
			SummaryDays: defaultSummaryRetentionDays,
		},
	}
}
