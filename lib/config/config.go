// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "SIGNAL_RELAY_CONFIG"

// VersionPlaceholder is replaced by the release version in download
// URL templates.
const VersionPlaceholder = "{version}"

// Config is the complete relay configuration.
type Config struct {
	// Account is the phone number the external client is registered
	// under, passed as its -a flag.
	Account string `yaml:"account" json:"account"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Paths   PathsConfig   `yaml:"paths" json:"paths"`
	Client  ClientConfig  `yaml:"client" json:"client"`
	Library LibraryConfig `yaml:"library" json:"library"`
	Relay   RelayConfig   `yaml:"relay" json:"relay"`
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Messages is the mailbox root holding to-send/, received/ and
	// failed/.
	Messages string `yaml:"messages" json:"messages"`

	// InstallRoot is where release bundles are extracted. The client
	// lands in <InstallRoot>/<product>-<version>/.
	InstallRoot string `yaml:"install_root" json:"install_root"`

	// State holds version records, the patch watchdog and scratch
	// downloads.
	State string `yaml:"state" json:"state"`

	// ClientConfig is the external client's data directory, passed as
	// its --config flag.
	ClientConfig string `yaml:"client_config" json:"client_config"`
}

// ArtifactConfig locates the releases of one tracked artifact.
type ArtifactConfig struct {
	// MetadataURL returns JSON with a tag_name field for the latest
	// release.
	MetadataURL string `yaml:"metadata_url" json:"metadata_url"`

	// DownloadURLTemplate is the tar+gzip bundle URL with {version}
	// placeholders.
	DownloadURLTemplate string `yaml:"download_url" json:"download_url"`
}

// DownloadURL returns the bundle URL for version.
func (a ArtifactConfig) DownloadURL(version string) string {
	return strings.ReplaceAll(a.DownloadURLTemplate, VersionPlaceholder, version)
}

// ClientConfig configures the external messaging client.
type ClientConfig struct {
	ArtifactConfig `yaml:",inline" json:",inline"`

	// Product is the release name: bundles extract to
	// <product>-<version>/bin/<product>.
	Product string `yaml:"product" json:"product"`

	// JSONOutput adds "-o json" to receive invocations. Without it the
	// client prints receive results as plain text.
	JSONOutput bool `yaml:"json_output" json:"json_output"`

	// AttachmentAttempts bounds attachment send attempts.
	AttachmentAttempts int `yaml:"attachment_attempts" json:"attachment_attempts"`

	// AttachmentRetryDelay is the fixed delay between attempts.
	AttachmentRetryDelay Duration `yaml:"attachment_retry_delay" json:"attachment_retry_delay"`

	// AttachmentFailureNotice is sent to the recipient once every
	// attachment attempt has failed.
	AttachmentFailureNotice string `yaml:"attachment_failure_notice" json:"attachment_failure_notice"`

	// RecheckInterval is how long a resolved binary path is reused
	// before release metadata is fetched again.
	RecheckInterval Duration `yaml:"recheck_interval" json:"recheck_interval"`
}

// LibraryConfig configures the native library bundle and its place
// inside the client.
type LibraryConfig struct {
	ArtifactConfig `yaml:",inline" json:",inline"`

	// JarPrefix matches the jar in the client's lib/ directory that
	// embeds the native library, compared against the first
	// len(JarPrefix) characters of each file name.
	JarPrefix string `yaml:"jar_prefix" json:"jar_prefix"`

	// Member is the native library's entry name inside the jar, and
	// the file name the library bundle extracts to under InstallRoot.
	Member string `yaml:"member" json:"member"`
}

// RelayConfig configures the control loop.
type RelayConfig struct {
	// PollInterval is the pause between cycles when nothing wakes the
	// loop earlier.
	PollInterval Duration `yaml:"poll_interval" json:"poll_interval"`

	// Watch enables inotify wake-ups on new outbox files.
	Watch bool `yaml:"watch" json:"watch"`

	// StaleLockAge is the claim age after which an outbox lock is
	// reclaimed. Zero disables reclaiming.
	StaleLockAge Duration `yaml:"stale_lock_age" json:"stale_lock_age"`

	// SweepInterval is the pause between stale-lock sweeps.
	SweepInterval Duration `yaml:"sweep_interval" json:"sweep_interval"`

	// MaxConsecutiveEscalations is how many cycles in a row may end in
	// a transport or archive failure before the relay exits.
	MaxConsecutiveEscalations int `yaml:"max_consecutive_escalations" json:"max_consecutive_escalations"`
}

// HTTPConfig configures release metadata and bundle fetches.
type HTTPConfig struct {
	// MetadataTimeout bounds each release metadata request.
	MetadataTimeout Duration `yaml:"metadata_timeout" json:"metadata_timeout"`

	// UserAgent is sent with every request. Release hosts such as the
	// GitHub API reject requests without one. Empty means
	// signal-relay/<version>.
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// Default returns the default configuration: signal-cli and the
// exquo/signal-libs-build aarch64 native library, installed under /opt.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	stateDir := filepath.Join(homeDir, ".local", "state", "signal-relay")

	return &Config{
		LogLevel: "info",
		Paths: PathsConfig{
			Messages:     filepath.Join(homeDir, "signal-messages"),
			InstallRoot:  "/opt",
			State:        stateDir,
			ClientConfig: filepath.Join(homeDir, ".local", "share", "signal-cli"),
		},
		Client: ClientConfig{
			ArtifactConfig: ArtifactConfig{
				MetadataURL:         "https://api.github.com/repos/AsamK/signal-cli/releases/latest",
				DownloadURLTemplate: "https://github.com/AsamK/signal-cli/releases/download/v{version}/signal-cli-{version}.tar.gz",
			},
			Product:                 "signal-cli",
			JSONOutput:              true,
			AttachmentAttempts:      5,
			AttachmentRetryDelay:    Duration(5 * time.Second),
			AttachmentFailureNotice: "Sending attachment keeps failing",
			RecheckInterval:         Duration(time.Hour),
		},
		Library: LibraryConfig{
			ArtifactConfig: ArtifactConfig{
				MetadataURL:         "https://api.github.com/repos/exquo/signal-libs-build/releases/latest",
				DownloadURLTemplate: "https://github.com/exquo/signal-libs-build/releases/download/libsignal_{version}/libsignal_jni.so-{version}-aarch64-unknown-linux-gnu.tar.gz",
			},
			JarPrefix: "libsignal-client",
			Member:    "libsignal_jni.so",
		},
		Relay: RelayConfig{
			PollInterval:              Duration(2 * time.Second),
			Watch:                     true,
			StaleLockAge:              Duration(15 * time.Minute),
			SweepInterval:             Duration(5 * time.Minute),
			MaxConsecutiveEscalations: 5,
		},
		HTTP: HTTPConfig{
			MetadataTimeout: Duration(60 * time.Second),
		},
	}
}

// Load loads the file named by SIGNAL_RELAY_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your relay config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads the configuration at path over the defaults and
// expands path variables. It does not validate; call Validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.expandVariables()
	return cfg, nil
}

// OutboxDir returns <messages>/to-send.
func (c *Config) OutboxDir() string { return filepath.Join(c.Paths.Messages, "to-send") }

// InboxDir returns <messages>/received.
func (c *Config) InboxDir() string { return filepath.Join(c.Paths.Messages, "received") }

// DeadLetterDir returns <messages>/failed.
func (c *Config) DeadLetterDir() string { return filepath.Join(c.Paths.Messages, "failed") }

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.Messages = expandVars(c.Paths.Messages, vars)
	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["MESSAGES_ROOT"] = c.Paths.Messages
	vars["STATE_DIR"] = c.Paths.State

	c.Paths.InstallRoot = expandVars(c.Paths.InstallRoot, vars)
	c.Paths.ClientConfig = expandVars(c.Paths.ClientConfig, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Account == "" {
		errs = append(errs, errors.New("account is required"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log_level: %q", c.LogLevel))
	}

	for name, value := range map[string]string{
		"paths.messages":      c.Paths.Messages,
		"paths.install_root":  c.Paths.InstallRoot,
		"paths.state":         c.Paths.State,
		"paths.client_config": c.Paths.ClientConfig,
	} {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		} else if !filepath.IsAbs(value) {
			errs = append(errs, fmt.Errorf("%s must be absolute, got %q", name, value))
		}
	}

	errs = append(errs, validateArtifact("client", c.Client.ArtifactConfig)...)
	errs = append(errs, validateArtifact("library", c.Library.ArtifactConfig)...)

	if c.Client.Product == "" {
		errs = append(errs, errors.New("client.product is required"))
	}
	if c.Client.AttachmentAttempts < 1 {
		errs = append(errs, fmt.Errorf("client.attachment_attempts must be at least 1, got %d", c.Client.AttachmentAttempts))
	}
	if c.Client.AttachmentRetryDelay < 0 {
		errs = append(errs, errors.New("client.attachment_retry_delay must not be negative"))
	}
	if c.Library.JarPrefix == "" {
		errs = append(errs, errors.New("library.jar_prefix is required"))
	}
	if c.Library.Member == "" || strings.ContainsRune(c.Library.Member, '/') {
		errs = append(errs, fmt.Errorf("library.member must be a plain file name, got %q", c.Library.Member))
	}

	if c.Relay.PollInterval <= 0 {
		errs = append(errs, errors.New("relay.poll_interval must be positive"))
	}
	if c.Relay.StaleLockAge < 0 {
		errs = append(errs, errors.New("relay.stale_lock_age must not be negative"))
	}
	if c.Relay.StaleLockAge > 0 && c.Relay.SweepInterval <= 0 {
		errs = append(errs, errors.New("relay.sweep_interval must be positive when stale_lock_age is set"))
	}
	if c.Relay.MaxConsecutiveEscalations < 1 {
		errs = append(errs, errors.New("relay.max_consecutive_escalations must be at least 1"))
	}
	if c.HTTP.MetadataTimeout <= 0 {
		errs = append(errs, errors.New("http.metadata_timeout must be positive"))
	}

	return errors.Join(errs...)
}

func validateArtifact(name string, artifact ArtifactConfig) []error {
	var errs []error
	if artifact.MetadataURL == "" {
		errs = append(errs, fmt.Errorf("%s.metadata_url is required", name))
	}
	if !strings.Contains(artifact.DownloadURLTemplate, VersionPlaceholder) {
		errs = append(errs, fmt.Errorf("%s.download_url must contain %s", name, VersionPlaceholder))
	}
	return errs
}
