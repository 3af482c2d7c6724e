package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// ErrConfiguration 配置错误（缺少必需的协作者），启动时直接失败
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Council   CouncilConfig   `yaml:"council"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Audit     AuditConfig     `yaml:"audit"`
	Prompts   PromptConfig    `yaml:"prompts"`
	Rules     RulesConfig     `yaml:"rules"`
	Presets   PresetConfig    `yaml:"presets"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql, none
	DSN  string `yaml:"dsn"`
}

type LLMConfig struct {
	Backend      string                `yaml:"backend"` // http, eino, mock
	APIURL       string                `yaml:"api_url"`
	APIKey       string                `yaml:"api_key"`
	Model        string                `yaml:"model"`
	MaxTokens    int                   `yaml:"max_tokens"`
	Temperature  float64               `yaml:"temperature"`
	MockFallback bool                  `yaml:"mock_fallback"` // 没有 API Key 时退化为 mock
	Prices       map[string]PriceEntry `yaml:"prices"`
}

// PriceEntry 每千 token 的美元价格
type PriceEntry struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

type CouncilConfig struct {
	Deadline          time.Duration   `yaml:"deadline"`
	RoleTimeoutRatio  float64         `yaml:"role_timeout_ratio"`
	MissingRolePolicy string          `yaml:"missing_role_policy"` // renormalize, ignore
	MaxWorkers        int             `yaml:"max_workers"`
	RoleRetries       int             `yaml:"role_retries"` // 角色调用失败后的额外重试次数，默认 0
	UseAdvisorDigest  bool            `yaml:"use_advisor_digest"`
	PackVersion       string          `yaml:"pack_version"`
	Locale            string          `yaml:"locale"`
	SchemaVersion     string          `yaml:"schema_version"`
	Weighting         WeightingConfig `yaml:"weighting"`
	Bullets           BulletConfig    `yaml:"bullets"`
}

type WeightingConfig struct {
	Cap        float64 `yaml:"cap"`
	PerRoleMax float64 `yaml:"per_role_max"`
	MaxHits    int     `yaml:"max_hits"`
}

type BulletConfig struct {
	Min    int `yaml:"min"`
	Max    int `yaml:"max"`
	MinLen int `yaml:"min_len"`
}

type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Store       string        `yaml:"store"` // memory, database, none
	ShortWindow time.Duration `yaml:"short_window"`
	ShortLimit  int           `yaml:"short_limit"`
	LongWindow  time.Duration `yaml:"long_window"`
	LongLimit   int           `yaml:"long_limit"`
}

type AuditConfig struct {
	Enabled   bool   `yaml:"enabled"`
	HMACKey   string `yaml:"hmac_key"`
	QueueSize int    `yaml:"queue_size"`
}

type PromptConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

type RulesConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type PresetConfig struct {
	Path string `yaml:"path"`
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = Load()
	})
	return cfg
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/council.db",
		},
		LLM: LLMConfig{
			Backend:      "http",
			APIURL:       "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			MaxTokens:    1200,
			Temperature:  0.3,
			MockFallback: true,
		},
		Council: CouncilConfig{
			Deadline:          45 * time.Second,
			RoleTimeoutRatio:  0.6,
			MissingRolePolicy: "renormalize",
			MaxWorkers:        16,
			UseAdvisorDigest:  true,
			PackVersion:       "v1",
			Locale:            "en",
			SchemaVersion:     "council.v1",
			Weighting: WeightingConfig{
				Cap:        0.25,
				PerRoleMax: 0.15,
			},
			Bullets: BulletConfig{
				Min:    3,
				Max:    5,
				MinLen: 4,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Store:       "memory",
			ShortWindow: time.Second,
			ShortLimit:  2,
			LongWindow:  600 * time.Second,
			LongLimit:   5,
		},
		Audit: AuditConfig{
			Enabled:   true,
			QueueSize: 256,
		},
		Prompts: PromptConfig{
			Dir:   "./prompts",
			Watch: true,
		},
		Rules: RulesConfig{
			Path:  "./rules.yaml",
			Watch: true,
		},
		Presets: PresetConfig{
			Path: "./presets.toml",
		},
	}
}

// Load 读取默认值、配置文件与环境变量
func Load() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	return LoadFile(configPath)
}

// LoadFile 从指定路径读取配置，文件不存在时只用默认值与环境变量
func LoadFile(configPath string) *Config {
	config := Default()

	data, err := os.ReadFile(configPath)
	if err == nil {
		fileConfig := Default()
		if err := yaml.Unmarshal(data, fileConfig); err != nil {
			klog.Warningf("[config] 配置文件解析失败，使用默认配置: path=%s, err=%v", configPath, err)
		} else {
			config = fileConfig
		}
	}

	// 环境变量优先级高于配置文件
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.APIURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL_NAME"); model != "" {
		config.LLM.Model = model
	}
	if backend := os.Getenv("COUNCIL_BACKEND"); backend != "" {
		config.LLM.Backend = backend
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	if key := os.Getenv("COUNCIL_AUDIT_KEY"); key != "" {
		config.Audit.HMACKey = key
	}
	if promptDir := os.Getenv("PROMPT_DIR"); promptDir != "" {
		config.Prompts.Dir = promptDir
	}
	if rulesPath := os.Getenv("RULES_PATH"); rulesPath != "" {
		config.Rules.Path = rulesPath
	}
	if presetsPath := os.Getenv("PRESETS_PATH"); presetsPath != "" {
		config.Presets.Path = presetsPath
	}

	return config
}

// EffectiveBackend 返回实际使用的生成后端
// 没有 API Key 时，只有允许 mock 兜底才退化为 mock
func (c *Config) EffectiveBackend() (string, error) {
	switch c.LLM.Backend {
	case "mock":
		return "mock", nil
	case "http", "eino", "":
		if c.LLM.APIKey != "" {
			if c.LLM.Backend == "" {
				return "http", nil
			}
			return c.LLM.Backend, nil
		}
		if c.LLM.MockFallback {
			return "mock", nil
		}
		return "", fmt.Errorf("%w: llm.api_key is empty and mock fallback is disabled", ErrConfiguration)
	default:
		return "", fmt.Errorf("%w: unknown llm backend %q", ErrConfiguration, c.LLM.Backend)
	}
}

// Validate 校验启动必需的配置
func (c *Config) Validate() error {
	if _, err := c.EffectiveBackend(); err != nil {
		return err
	}
	if c.Council.Deadline <= 0 {
		return fmt.Errorf("%w: council.deadline must be positive", ErrConfiguration)
	}
	if c.Council.RoleTimeoutRatio <= 0 || c.Council.RoleTimeoutRatio > 1 {
		return fmt.Errorf("%w: council.role_timeout_ratio must be in (0,1]", ErrConfiguration)
	}
	if c.Council.RoleRetries < 0 {
		return fmt.Errorf("%w: council.role_retries must not be negative", ErrConfiguration)
	}
	switch c.Council.MissingRolePolicy {
	case "renormalize", "ignore":
	default:
		return fmt.Errorf("%w: unknown missing_role_policy %q", ErrConfiguration, c.Council.MissingRolePolicy)
	}
	if c.Council.Bullets.Min <= 0 || c.Council.Bullets.Max < c.Council.Bullets.Min {
		return fmt.Errorf("%w: invalid bullet bounds %d..%d", ErrConfiguration, c.Council.Bullets.Min, c.Council.Bullets.Max)
	}
	if c.Audit.Enabled && c.Audit.HMACKey == "" {
		return fmt.Errorf("%w: audit.hmac_key is required when audit is enabled", ErrConfiguration)
	}
	return nil
}

// RoleTimeout 单个角色调用的子超时
func (c *Config) RoleTimeout() time.Duration {
	return time.Duration(float64(c.Council.Deadline) * c.Council.RoleTimeoutRatio)
}
