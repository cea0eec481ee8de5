package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ibeckermayer/pageprobe/internal/types"
)

// Environment variables holding the login credentials. Credentials never
// have a literal default and are never written to the config file.
const (
	EnvUsername = "PAGEPROBE_USERNAME"
	EnvPassword = "PAGEPROBE_PASSWORD"
)

// Driver names
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// Config holds all application configuration
type Config struct {
	Version int                 `toml:"version"`
	Site    SiteConfig          `toml:"site"`
	Browser BrowserConfig       `toml:"browser"`
	Login   LoginConfig         `toml:"login"`
	Output  OutputConfig        `toml:"output"`
	Targets []types.ProbeTarget `toml:"targets"`

	// Populated from env/flags only.
	Credentials types.Credentials `toml:"-"`
}

type SiteConfig struct {
	BaseURL string `toml:"base_url"`
}

type BrowserConfig struct {
	Driver     string   `toml:"driver"`
	Headless   bool     `toml:"headless"`
	SlowMotion Duration `toml:"slow_motion"`
	// NetworkIdleTimeout bounds every network-idle wait.
	NetworkIdleTimeout Duration `toml:"network_idle_timeout"`
	NavigationTimeout  Duration `toml:"navigation_timeout"`
	WindowWidth        int      `toml:"window_width"`
	WindowHeight       int      `toml:"window_height"`
}

type LoginConfig struct {
	Path              string   `toml:"path"`
	UsernameSelectors []string `toml:"username_selectors"`
	PasswordSelectors []string `toml:"password_selectors"`
	SubmitSelectors   []string `toml:"submit_selectors"`
	ErrorSelectors    []string `toml:"error_selectors"`
	// EndpointPattern is a glob matched against response URLs to find
	// the login API call.
	EndpointPattern string `toml:"endpoint_pattern"`
	// SuccessPattern is a glob the post-login URL is expected to match.
	SuccessPattern string   `toml:"success_pattern"`
	SessionCookie  string   `toml:"session_cookie"`
	Timeout        Duration `toml:"timeout"`
}

type OutputConfig struct {
	ScreenshotDir string `toml:"screenshot_dir"`
	History       bool   `toml:"history"`
}

// Duration is a time.Duration that reads and writes as "10s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Site: SiteConfig{
			BaseURL: "http://localhost:3000",
		},
		Browser: BrowserConfig{
			Driver:             DriverChromedp,
			Headless:           true,
			NetworkIdleTimeout: Duration{10 * time.Second},
			NavigationTimeout:  Duration{30 * time.Second},
			WindowWidth:        1280,
			WindowHeight:       720,
		},
		Login: LoginConfig{
			Path: "/login",
			UsernameSelectors: []string{
				`#username`,
				`input[name="username"]`,
				`input[type="email"]`,
				`input[id*="email"]`,
				`input[type="text"]`,
			},
			PasswordSelectors: []string{
				`#password`,
				`input[name="password"]`,
				`input[type="password"]`,
			},
			SubmitSelectors: []string{
				`button[type="submit"]`,
				`input[type="submit"]`,
			},
			ErrorSelectors: []string{
				`.bg-red-50`,
				`[role="alert"]`,
				`.error`,
				`.alert`,
			},
			EndpointPattern: "*/api/auth/login*",
			SessionCookie:   "auth-token",
			Timeout:         Duration{10 * time.Second},
		},
		Output: OutputConfig{
			ScreenshotDir: "screenshots",
			History:       true,
		},
		Targets: []types.ProbeTarget{
			{
				Name: "admin",
				Path: "/admin",
				Queries: []types.Query{
					{Name: "heading", Selector: "h1"},
					{Name: "error banner", Selector: `[role="alert"]`, Absent: true},
				},
			},
		},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "pageprobe"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "pageprobe"), nil
}

// Load reads config from the default path.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads config from path. Keys missing from the file keep their
// default values; a [[targets]] list replaces the default targets whole.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	defaults := cfg.Targets
	cfg.Targets = nil

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if !md.IsDefined("targets") {
		cfg.Targets = defaults
	}
	return cfg, nil
}

// LoadOrDefault loads path (or the default path when empty). A missing
// file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg, err = Load()
	} else {
		cfg, err = LoadFile(path)
	}
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// SaveFile writes config to path.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// ApplyEnv fills credentials from the environment when they are unset.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.Credentials.Username == "" {
		c.Credentials.Username = getenv(EnvUsername)
	}
	if c.Credentials.Password == "" {
		c.Credentials.Password = getenv(EnvPassword)
	}
}

// Validate checks the fields a run cannot do without.
func (c *Config) Validate() error {
	var problems []string
	if c.Site.BaseURL == "" {
		problems = append(problems, "site.base_url is empty")
	}
	if c.Credentials.Username == "" {
		problems = append(problems, fmt.Sprintf("username missing (set %s or --username)", EnvUsername))
	}
	if c.Credentials.Password == "" {
		problems = append(problems, fmt.Sprintf("password missing (set %s or --password)", EnvPassword))
	}
	switch c.Browser.Driver {
	case DriverChromedp, DriverPlaywright:
	default:
		problems = append(problems, fmt.Sprintf("unknown driver %q", c.Browser.Driver))
	}
	if len(c.Login.UsernameSelectors) == 0 || len(c.Login.PasswordSelectors) == 0 || len(c.Login.SubmitSelectors) == 0 {
		problems = append(problems, "login selectors must not be empty")
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"browser.navigation_timeout", c.Browser.NavigationTimeout.Duration},
		{"browser.network_idle_timeout", c.Browser.NetworkIdleTimeout.Duration},
		{"login.timeout", c.Login.Timeout.Duration},
	} {
		if d.value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %v", d.key, d.value))
		}
	}
	if c.Browser.SlowMotion.Duration < 0 {
		problems = append(problems, "browser.slow_motion must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
