package store

import "time"

// Category classifies a feed source.
type Category string

const (
	CategoryNational Category = "national"
	CategoryRegional Category = "regional"
	CategorySocial   Category = "social"
)

// ArticleStatus represents the classification lifecycle of a stored article.
type ArticleStatus string

const (
	ArticlePending    ArticleStatus = "pending"
	ArticleAnalyzing  ArticleStatus = "analyzing"
	ArticleRelevant   ArticleStatus = "relevant"
	ArticleIrrelevant ArticleStatus = "irrelevant"
	ArticleError      ArticleStatus = "error"
)

// ScanType selects what an orchestration run does.
type ScanType string

const (
	ScanFull        ScanType = "full"
	ScanIncremental ScanType = "incremental"
	ScanCleanup     ScanType = "cleanup"
)

// ScanStatus represents the lifecycle of a scan log entry. completed, partial,
// and failed are terminal.
type ScanStatus string

const (
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanPartial   ScanStatus = "partial"
	ScanFailed    ScanStatus = "failed"
)

// Source is a configured feed endpoint.
type Source struct {
	ID                   int64
	Name                 string
	Category             Category
	FeedURL              string
	FetchIntervalSeconds int
	Active               bool
	LastFetchedAt        *time.Time
	ErrorCount           int
	LastError            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// FetchInterval returns the configured refresh interval.
func (s *Source) FetchInterval() time.Duration {
	return time.Duration(s.FetchIntervalSeconds) * time.Second
}

// Article is a durably persisted, uniquely-hashed article record.
type Article struct {
	ID          int64
	SourceID    int64
	ExternalID  string
	URL         string
	ContentHash string
	Title       string
	Lede        string
	Body        string
	Author      string
	PublishedAt *time.Time
	Status      ArticleStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Topic is a named relevance criterion: cheap keywords for pre-filtering plus
// a judgment prompt for the external classifier.
type Topic struct {
	ID        int64
	Name      string
	Keywords  []string
	Prompt    string
	Active    bool
	Builtin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TopicResult is the outcome of scoring one article against one topic.
type TopicResult struct {
	ArticleID  int64
	TopicID    int64
	Score      float64
	Reasoning  string
	Angle      string
	AnalyzedAt time.Time
}

// ScanLog tracks one orchestration run or one per-source fetch.
type ScanLog struct {
	ID          int64
	RunID       string
	ScanType    ScanType
	SourceID    *int64
	Status      ScanStatus
	Found       int
	NewArticles int
	Duplicates  int
	Analyzed    int
	Relevant    int
	ErrorDetail string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Terminal reports whether the scan log has reached a final state.
func (l *ScanLog) Terminal() bool {
	switch l.Status {
	case ScanCompleted, ScanPartial, ScanFailed:
		return true
	}
	return false
}

// DailySummary is a digest of one day's relevant articles.
type DailySummary struct {
	ID           int64
	SummaryDate  string
	ArticleCount int
	Body         string
	CreatedAt    time.Time
}

// SourceFetchUpdate is the allow-listed set of source fields the pipeline may
// mutate after a fetch attempt. Success resets the error counter; failure
// increments it and records the message.
type SourceFetchUpdate struct {
	FetchedAt time.Time
	Success   bool
	Error     string
}

// ScanLogClose is the allow-listed set of fields written when a scan log
// reaches a terminal state.
type ScanLogClose struct {
	Status      ScanStatus
	Found       int
	NewArticles int
	Duplicates  int
	Analyzed    int
	Relevant    int
	ErrorDetail string
}

// CleanupCounts reports how many rows a cleanup run deleted.
type CleanupCounts struct {
	Articles  int64
	ScanLogs  int64
	Summaries int64
}
