package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	OTPModeTerminal = "terminal"
	OTPModeBrowser  = "browser"
)

type Config struct {
	PortalURL string `yaml:"portal_url"`

	BrowserProfilePath string `yaml:"browser_profile_path"`

	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`

	Headless        bool `yaml:"headless"`
	KeepBrowserOpen bool `yaml:"keep_browser_open"`

	OTPMode           string  `yaml:"otp_mode"`
	OTPPollSeconds    float64 `yaml:"otp_poll_seconds"`
	OTPTimeoutMinutes int     `yaml:"otp_timeout_minutes"`

	// Selector probing runs candidates concurrently when set; the earliest
	// listed match still wins.
	ParallelProbe    bool `yaml:"parallel_probe"`
	AdaptiveTimeouts bool `yaml:"adaptive_timeouts"`

	TrackingFile   string `yaml:"tracking_file"`
	OutputDir      string `yaml:"output_dir"`
	LogsDir        string `yaml:"logs_dir"`
	OrderListFile  string `yaml:"order_list_file"`
	DefaultGuia    string `yaml:"default_guia_aerea"`
	StateCode      string `yaml:"state_code"`
	StateName      string `yaml:"state_name"`
	ScreenshotsOn  bool   `yaml:"screenshots"`
	ScreenshotDays int    `yaml:"screenshot_retention_days"`

	DebugMode bool `yaml:"debug_mode"`

	Timeouts TimeoutConfig `yaml:"timeouts"`
	Sleeps   SleepConfig   `yaml:"sleeps"`
	Tracing  TracingConfig `yaml:"tracing"`

	// Populated from the environment, never written to config.yaml.
	Shopify     ShopifyConfig `yaml:"-"`
	FDAUsername string        `yaml:"-"`
	FDAPassword string        `yaml:"-"`
}

// TimeoutConfig holds element wait bounds in seconds.
type TimeoutConfig struct {
	Default float64 `yaml:"default"`
	Short   float64 `yaml:"short"`
	Long    float64 `yaml:"long"`
	Table   float64 `yaml:"table"`
}

// SleepConfig holds fixed pauses in seconds.
type SleepConfig struct {
	FormLoad        float64 `yaml:"form_load"`
	SaveProcessing  float64 `yaml:"save_processing"`
	ModalAppear     float64 `yaml:"modal_appear"`
	ModalProcessing float64 `yaml:"modal_processing"`
	FinalProcessing float64 `yaml:"final_processing"`
	FieldUpdate     float64 `yaml:"field_update"`
	InputClear      float64 `yaml:"input_clear"`
	Scroll          float64 `yaml:"scroll"`
	BetweenSteps    float64 `yaml:"between_steps"`
	Navigation      float64 `yaml:"navigation"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type ShopifyConfig struct {
	Shop       string
	Token      string
	APIVersion string
}

func DefaultConfig() *Config {
	userDataDir := getUserDataDir()

	return &Config{
		PortalURL:          "https://www.access.fda.gov",
		BrowserProfilePath: filepath.Join(userDataDir, "browser-profile"),
		ViewportWidth:      1920,
		ViewportHeight:     1080,
		Headless:           false,
		KeepBrowserOpen:    false,
		OTPMode:            OTPModeTerminal,
		OTPPollSeconds:     2,
		OTPTimeoutMinutes:  30,
		ParallelProbe:      false,
		AdaptiveTimeouts:   true,
		TrackingFile:       filepath.Join("data", "order_sample.csv"),
		OutputDir:          "output",
		LogsDir:            "logs",
		OrderListFile:      filepath.Join("data", "orders.csv"),
		DefaultGuia:        "01",
		StateCode:          "TN",
		StateName:          "Tennessee",
		ScreenshotsOn:      true,
		ScreenshotDays:     7,
		DebugMode:          false,
		Timeouts: TimeoutConfig{
			Default: 10,
			Short:   5,
			Long:    15,
			Table:   20,
		},
		Sleeps: SleepConfig{
			FormLoad:        1.5,
			SaveProcessing:  3,
			ModalAppear:     1,
			ModalProcessing: 2,
			FinalProcessing: 5,
			FieldUpdate:     0.8,
			InputClear:      0.2,
			Scroll:          0.3,
			BetweenSteps:    2,
			Navigation:      2,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			ServiceName: "fdaprior",
			SampleRate:  1,
		},
		Shopify: ShopifyConfig{
			APIVersion: "2023-07",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	for _, dir := range []string{config.BrowserProfilePath, config.OutputDir, config.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	switch c.OTPMode {
	case OTPModeTerminal, OTPModeBrowser:
	default:
		return fmt.Errorf("invalid otp_mode %q (expected %q or %q)", c.OTPMode, OTPModeTerminal, OTPModeBrowser)
	}
	if c.Timeouts.Default <= 0 || c.Timeouts.Short <= 0 || c.Timeouts.Long <= 0 || c.Timeouts.Table <= 0 {
		return fmt.Errorf("element timeouts must be positive")
	}
	if c.OTPPollSeconds <= 0 || c.OTPTimeoutMinutes <= 0 {
		return fmt.Errorf("otp polling interval and timeout must be positive")
	}
	return nil
}

// LoadSecrets reads credentials from the environment, loading envFile first
// when it exists. Variables already set in the environment take precedence.
func (c *Config) LoadSecrets(envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	c.Shopify.Shop = strings.TrimSuffix(strings.TrimSpace(os.Getenv("SHOPIFY_SHOP")), ".myshopify.com")
	c.Shopify.Token = strings.TrimSpace(os.Getenv("SHOPIFY_TOKEN"))
	c.Shopify.APIVersion = getEnvOrDefault("SHOPIFY_API_VERSION", c.Shopify.APIVersion)
	c.FDAUsername = os.Getenv("FDA_USERNAME")
	c.FDAPassword = os.Getenv("FDA_PASSWORD")
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
