package types

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
	JSON  bool   `ini:"json"`
}

// FetchConf controls the single-attempt page fetcher.
type FetchConf struct {
	TimeoutSeconds int    `ini:"timeout_seconds"`
	UserAgent      string `ini:"user_agent"`
	MaxRedirects   int    `ini:"max_redirects"`
	DetectCharset  bool   `ini:"detect_charset"`
}

// EgressConf selects how outbound requests leave the host.
type EgressConf struct {
	Mode       string `ini:"mode"` // static, health or direct
	RelaysFile string `ini:"relays_file"`
}

// RelayPoolConf 包含 relay pool 的调度与验证参数
type RelayPoolConf struct {
	DataFile                   string `ini:"data_file"`
	SourcesFile                string `ini:"sources_file"`
	ScrapeIntervalHours        int    `ini:"scrape_interval_hours"`
	HealthCheckIntervalSeconds int    `ini:"health_check_interval_seconds"`
	RevalidationBatchSize      int    `ini:"revalidation_batch_size"`
	ValidationTimeoutSeconds   int    `ini:"validation_timeout_seconds"`
	ValidationConcurrency      int    `ini:"validation_concurrency"`
	ValidationTarget           string `ini:"validation_target"`
}

// WebConf 包含 web API 的监听与认证配置
type WebConf struct {
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`
}

// Config 是项目的统一配置结构体
type Config struct {
	LogConf       `ini:"log"`
	FetchConf     `ini:"fetch"`
	EgressConf    `ini:"egress"`
	RelayPoolConf `ini:"relay_pool"`
	WebConf       `ini:"web"`
}

// Egress modes.
const (
	EgressStatic = "static"
	EgressHealth = "health"
	EgressDirect = "direct"
)

// DefaultConfig returns the configuration used when no ini file overrides a key.
func DefaultConfig() *Config {
	return &Config{
		LogConf: LogConf{Level: "info"},
		FetchConf: FetchConf{
			TimeoutSeconds: 10,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			MaxRedirects:   20,
			DetectCharset:  true,
		},
		EgressConf: EgressConf{Mode: EgressDirect},
		RelayPoolConf: RelayPoolConf{
			DataFile:                   "relays.db.txt",
			ScrapeIntervalHours:        6,
			HealthCheckIntervalSeconds: 60,
			RevalidationBatchSize:      20,
			ValidationTimeoutSeconds:   10,
			ValidationConcurrency:      5,
			ValidationTarget:           "www.transfermarkt.com:443",
		},
		WebConf: WebConf{Port: 8000},
	}
}
