package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	State       StateConfig       `toml:"state"`
	Database    DatabaseConfig    `toml:"database"`
	Schedule    ScheduleConfig    `toml:"schedule"`
	Blacklist   *PlaylistRef      `toml:"blacklist"`
	Archive     []ArchiveEntry    `toml:"archive"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// Map converts the Spotify credentials into the map form expected by the services package.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// ServerConfig contains HTTP server settings for the login/callback surface.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StateConfig locates the persisted state document.
type StateConfig struct {
	Path string `toml:"path"`
}

// DatabaseConfig contains run-history database settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ScheduleConfig holds the archival run cadence as a cron expression.
type ScheduleConfig struct {
	Cron string `toml:"cron"`
}

// PlaylistRef identifies a playlist by explicit ID or by display name.
type PlaylistRef struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// ArchiveEntry configures one source → target pair.
//
// The shorthand form sets only Name: the source is looked up by that
// name and the target defaults to "<name> (save)" with a
// persistence-first lookup.
type ArchiveEntry struct {
	Name   string          `toml:"name"`
	Source *SourceSelector `toml:"source"`
	Target *TargetSelector `toml:"target"`
}

// SourceSelector selects the upstream playlist of a pair.
type SourceSelector struct {
	ID                string `toml:"id"`
	Name              string `toml:"name"`
	FindByPersistence bool   `toml:"find_by_persistence"`
}

// TargetSelector selects (or names) the proxy playlist of a pair.
type TargetSelector struct {
	ID                    string `toml:"id"`
	Name                  string `toml:"name"`
	FindByPersistence     bool   `toml:"find_by_persistence"`
	ReplaceCoverOnRefresh bool   `toml:"replace_cover_on_refresh"`
}

// Validate checks that the entry selects a source playlist one way or another.
func (e ArchiveEntry) Validate() error {
	if e.Name != "" {
		return nil
	}
	if e.Source == nil || (e.Source.ID == "" && e.Source.Name == "") {
		return fmt.Errorf("%w: archive entry needs a name or a source id/name", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	for _, entry := range config.Archive {
		if err := entry.Validate(); err != nil {
			return nil, err
		}
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
