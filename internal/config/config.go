package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	TimeTracking  TimeTrackingConfig `toml:"timetracking"`
	AI            AIConfig           `toml:"ai"`
	Workday       WorkdayConfig      `toml:"workday"`
	Calendar      CalendarConfig     `toml:"calendar"`
	GitHub        GitHubConfig       `toml:"github"`
	Graph         GraphConfig        `toml:"graph"`
	Import        ImportConfig       `toml:"import"`
	Server        ServerConfig       `toml:"server"`
	Schedule      ScheduleConfig     `toml:"schedule"`
	Notifications NotifyConfig       `toml:"notifications"`
}

type TimeTrackingConfig struct {
	BaseURL                 string `toml:"base_url"`
	APIKey                  string `toml:"api_key"`
	Company                 string `toml:"company"`
	UserID                  string `toml:"user_id"`
	Mock                    bool   `toml:"mock"`
	CacheTTLMinutes         int    `toml:"cache_ttl_minutes"`
	PerProjectActivityTypes bool   `toml:"per_project_activity_types"`
}

type AIConfig struct {
	Provider       string `toml:"provider"` // "heuristic", "openai", "gemini" or "claude-cli"
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Language       string `toml:"language"`
	// SubmitEnglish submits the English description when the model writes
	// in another language.
	SubmitEnglish bool `toml:"submit_english"`
}

type WorkdayConfig struct {
	StartHour   int     `toml:"start_hour"`
	EndHour     int     `toml:"end_hour"`
	TargetHours float64 `toml:"target_hours"`
	Timezone    string  `toml:"timezone"`
}

type CalendarConfig struct {
	Enabled bool   `toml:"enabled"`
	Source  string `toml:"source"` // ICS URL or file path
}

type GitHubConfig struct {
	Enabled  bool   `toml:"enabled"`
	Token    string `toml:"token"`
	Username string `toml:"username"`
}

// GraphConfig enables Microsoft Graph as a calendar and mail source.
type GraphConfig struct {
	ClientID string `toml:"client_id"`
	TenantID string `toml:"tenant_id"`
	Calendar bool   `toml:"calendar"`
	Mail     bool   `toml:"mail"`
}

// ImportConfig points at a directory of exported activities laid out as
// <dir>/<source>/<YYYY-MM-DD>.json.
type ImportConfig struct {
	Dir string `toml:"dir"`
}

type ServerConfig struct {
	Addr           string   `toml:"addr"`
	APIToken       string   `toml:"api_token"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type ScheduleConfig struct {
	ReminderAt string `toml:"reminder_at"`
	WorkDays   []int  `toml:"work_days"`
}

type NotifyConfig struct {
	Enabled bool `toml:"enabled"`
}

func DefaultConfig() Config {
	return Config{
		TimeTracking: TimeTrackingConfig{
			CacheTTLMinutes: 60,
		},
		AI: AIConfig{
			Provider:       "heuristic",
			TimeoutSeconds: 60,
			Language:       "English",
		},
		Workday: WorkdayConfig{
			StartHour:   6,
			EndHour:     23,
			TargetHours: 7.5,
		},
		GitHub: GitHubConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8787",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Schedule: ScheduleConfig{
			ReminderAt: "16:30",
			WorkDays:   []int{1, 2, 3, 4, 5},
		},
		Notifications: NotifyConfig{
			Enabled: true,
		},
	}
}

// CacheTTL is the lifetime of cached time-tracking reference data.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.TimeTracking.CacheTTLMinutes) * time.Minute
}

func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

// Location resolves [workday] timezone, falling back to the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Workday.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Workday.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Workday.Timezone, err)
	}
	return loc, nil
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "daylog"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path over the defaults. A missing file
// yields the defaults. Environment overrides are applied last.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DAYLOG_TT_API_KEY"); v != "" {
		cfg.TimeTracking.APIKey = v
	}
	if v := os.Getenv("DAYLOG_TT_COMPANY"); v != "" {
		cfg.TimeTracking.Company = v
	}
	if v := os.Getenv("DAYLOG_TT_BASE_URL"); v != "" {
		cfg.TimeTracking.BaseURL = v
	}
	if v := os.Getenv("DAYLOG_API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("MSGRAPH_CLIENT_ID"); v != "" {
		cfg.Graph.ClientID = v
	}
	if v := os.Getenv("MSGRAPH_TENANT_ID"); v != "" {
		cfg.Graph.TenantID = v
	}
	if cfg.AI.APIKey == "" {
		switch cfg.AI.Provider {
		case "openai":
			cfg.AI.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			cfg.AI.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// WriteDefault writes a commented starter config to path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data := fmt.Sprintf(`[timetracking]
# base_url = "https://app.moment.team"
api_key = ""
company = ""
user_id = ""
mock = %t
cache_ttl_minutes = %d

[ai]
# heuristic, openai, gemini or claude-cli
provider = "%s"
model = ""
timeout_seconds = %d
language = "%s"
submit_english = false

[workday]
start_hour = %d
end_hour = %d
target_hours = %g
timezone = ""

[calendar]
enabled = false
source = ""

[github]
enabled = %t
username = ""

[graph]
client_id = ""
tenant_id = ""
calendar = false
mail = false

[import]
dir = ""

[server]
addr = "%s"
allowed_origins = ["http://localhost:3000"]

[schedule]
reminder_at = "%s"
work_days = [1, 2, 3, 4, 5]

[notifications]
enabled = %t
`,
		cfg.TimeTracking.Mock,
		cfg.TimeTracking.CacheTTLMinutes,
		cfg.AI.Provider,
		cfg.AI.TimeoutSeconds,
		cfg.AI.Language,
		cfg.Workday.StartHour,
		cfg.Workday.EndHour,
		cfg.Workday.TargetHours,
		cfg.GitHub.Enabled,
		cfg.Server.Addr,
		cfg.Schedule.ReminderAt,
		cfg.Notifications.Enabled,
	)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
