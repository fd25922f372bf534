package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone      = "UTC"
	configPathEnv        = "CHART_AGGREGATOR_CONFIG"
	outputDirEnv         = "CHART_OUTPUT_DIR"
	rawDirEnv            = "CHART_RAW_DIR"
	storeDriverEnv       = "CHART_STORE_DRIVER"
	storeDSNEnv          = "CHART_STORE_DSN"
	httpAddrEnv          = "CHART_HTTP_ADDR"
	logLevelEnv          = "LOG_LEVEL"
	logFormatEnv         = "LOG_FORMAT"
	chromeBinEnv         = "CHROME_BIN"
	blogIDEnv            = "BLOG_ID"
	bloggerTokenEnv      = "BLOGGER_ACCESS_TOKEN"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	chatGPTAPIKeyEnv     = "CHATGPT_API_KEY"
	chatGPTModelEnv      = "CHATGPT_MODEL"
	defaultStaticTimeout = 20 * time.Second
	defaultRenderTimeout = 30 * time.Second
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Output      OutputConfig      `yaml:"output"`
	Store       StoreConfig       `yaml:"store"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Browser     BrowserConfig     `yaml:"browser"`
	HTTP        HTTPConfig        `yaml:"http"`
	Publish     PublishConfig     `yaml:"publish"`
	ChatGPT     ChatGPTConfig     `yaml:"chatgpt"`
	Sources     []SourceConfig    `yaml:"sources"`
}

// LoggingConfig selects the slog level and handler format ("text" or "json").
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OutputConfig points at the artifact directory used by the file store.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// StoreConfig selects the artifact store backend: file, postgres or sqlite3.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AcquisitionConfig bounds one acquisition run.
type AcquisitionConfig struct {
	MaxConcurrency    int            `yaml:"maxConcurrency"`
	Timezone          string         `yaml:"timezone"`
	StaticTimeout     Duration       `yaml:"staticTimeout"`
	RenderTimeout     Duration       `yaml:"renderTimeout"`
	DefaultMaxEntries int            `yaml:"defaultMaxEntries"`
	UserAgent         string         `yaml:"userAgent"`
	RawDir            string         `yaml:"rawDir"`
	location          *time.Location `yaml:"-"`
}

// Location resolves the acquisition timezone used to derive period keys.
func (a AcquisitionConfig) Location() *time.Location {
	if a.location != nil {
		return a.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// SchedulerConfig defines the interval of the recurring acquisition loop.
type SchedulerConfig struct {
	Interval Duration `yaml:"interval"`
}

// BrowserConfig controls the headless browser used for rendered strategies.
type BrowserConfig struct {
	ChromeBin string `yaml:"chromeBin"`
	Headful   bool   `yaml:"headful"`
	UserAgent string `yaml:"userAgent"`
	DebugDir  string `yaml:"debugDir"`
}

// HTTPConfig exposes the read-only artifact API when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// PublishConfig groups outbound publication channels.
type PublishConfig struct {
	Blogger  BloggerConfig  `yaml:"blogger"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// BloggerConfig wires the Blogger v3 posts endpoint. Tokens are issued externally.
type BloggerConfig struct {
	Endpoint    string `yaml:"endpoint"`
	BlogID      string `yaml:"blogId"`
	AccessToken string `yaml:"accessToken"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	Endpoint string `yaml:"endpoint"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// SourceConfig describes one chart and its ordered fetch strategies.
type SourceConfig struct {
	ID                  string              `yaml:"id"`
	Title               string              `yaml:"title"`
	Region              string              `yaml:"region"`
	RegionParams        map[string]string   `yaml:"regionParams"`
	RegionNames         map[string]string   `yaml:"regionNames"`
	Period              string              `yaml:"period"`
	MaxEntries          int                 `yaml:"maxEntries"`
	RankBy              string              `yaml:"rankBy"`
	TitleDelimiter      string              `yaml:"titleDelimiter"`
	Required            []string            `yaml:"required"`
	Fields              map[string][]string `yaml:"fields"`
	ExternalRefTemplate string              `yaml:"externalRefTemplate"`
	PostTitle           string              `yaml:"postTitle"`
	Strategies          []StrategyConfig    `yaml:"strategies"`
}

// StrategyConfig is one candidate fetch; a substituteRegion entry re-runs an earlier strategy.
type StrategyConfig struct {
	Name             string            `yaml:"name"`
	Kind             string            `yaml:"kind"`
	URL              string            `yaml:"url"`
	Headers          map[string]string `yaml:"headers"`
	Timeout          Duration          `yaml:"timeout"`
	ReadySelector    string            `yaml:"readySelector"`
	DismissSelector  string            `yaml:"dismissSelector"`
	ScrollToBottom   bool              `yaml:"scrollToBottom"`
	FollowLink       string            `yaml:"followLink"`
	Parser           string            `yaml:"parser"`
	Scheme           SchemeConfig      `yaml:"scheme"`
	SubstituteRegion string            `yaml:"substituteRegion"`
	SubstituteOf     string            `yaml:"substituteOf"`
}

// SchemeConfig locates records inside a fetched document.
type SchemeConfig struct {
	Row      string            `yaml:"row"`
	Columns  map[string]string `yaml:"columns"`
	SkipRows int               `yaml:"skipRows"`
}

// Duration decodes YAML strings such as "20s" into time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads .env (if present), the YAML file (explicit path or CHART_AGGREGATOR_CONFIG)
// and applies environment overrides on top of defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load .env: %v (falling back to system env vars)", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	cfg.bindTimezone()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultSources()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that do not depend on the strategy plan of a source.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		id := strings.TrimSpace(src.ID)
		if id == "" {
			return fmt.Errorf("config: source #%d has no id", i+1)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("config: duplicate source id %s", id)
		}
		seen[id] = struct{}{}
	}

	switch c.Store.Driver {
	case "file", "postgres", "sqlite3":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{outputDirEnv, &c.Output.Dir},
		{rawDirEnv, &c.Acquisition.RawDir},
		{storeDriverEnv, &c.Store.Driver},
		{storeDSNEnv, &c.Store.DSN},
		{httpAddrEnv, &c.HTTP.Addr},
		{logLevelEnv, &c.Logging.Level},
		{logFormatEnv, &c.Logging.Format},
		{chromeBinEnv, &c.Browser.ChromeBin},
		{blogIDEnv, &c.Publish.Blogger.BlogID},
		{bloggerTokenEnv, &c.Publish.Blogger.AccessToken},
		{telegramTokenEnv, &c.Publish.Telegram.BotToken},
		{telegramChatIDEnv, &c.Publish.Telegram.ChatID},
		{chatGPTAPIKeyEnv, &c.ChatGPT.APIKey},
		{chatGPTModelEnv, &c.ChatGPT.Model},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Acquisition.MaxConcurrency <= 0 {
		c.Acquisition.MaxConcurrency = 1
	}
	if c.Acquisition.StaticTimeout <= 0 {
		c.Acquisition.StaticTimeout = Duration(defaultStaticTimeout)
	}
	if c.Acquisition.RenderTimeout <= 0 {
		c.Acquisition.RenderTimeout = Duration(defaultRenderTimeout)
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "file"
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = Duration(24 * time.Hour)
	}
}

func (c *Config) bindTimezone() {
	tz := c.Acquisition.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Acquisition.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Output:  OutputConfig{Dir: "./charts"},
		Store:   StoreConfig{Driver: "file"},
		Acquisition: AcquisitionConfig{
			MaxConcurrency:    4,
			Timezone:          defaultTimezone,
			StaticTimeout:     Duration(defaultStaticTimeout),
			RenderTimeout:     Duration(defaultRenderTimeout),
			DefaultMaxEntries: 20,
			location:          tz,
		},
		Scheduler: SchedulerConfig{Interval: Duration(24 * time.Hour)},
		Publish: PublishConfig{
			Blogger:  BloggerConfig{Endpoint: "https://www.googleapis.com/blogger/v3"},
		Telegram: TelegramConfig{Endpoint: "https://api.telegram.org"},
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You write one short, upbeat paragraph introducing this week's music chart.",
		},
	}
}
