package constants

import "time"

const (
	// Application-level constants
	DefaultPipelineVer = "1.0"

	// Cache durations
	JobAnalysisCacheDuration = 24 * time.Hour
	GithubCacheDuration      = 24 * time.Hour

	// Scraper settings
	ScrapeTimeout   = 10 * time.Second
	ScrapeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	// GitHub repo selection
	MinForkContributions = 5          // fork仓库纳入候选所需的最少本人提交数
	RecentPushWindow     = 360 * 24 * time.Hour
	ReadmeTruncateLen    = 1000
	RawTextTruncateLen   = 500

	// Cover letter defaults
	DefaultLetterLength = "approximately 300-400 words"
)
