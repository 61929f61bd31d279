package conf

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/proxyup/proxyup/internal/fsutil"
	"github.com/proxyup/proxyup/internal/schema"
)

// DaemonName is the name of the managed daemon. It names the default binary
// and configuration locations and the service unit.
const DaemonName = "mihomo"

// Settings represents the tool's own configuration. It is loaded once per
// invocation and read-only afterwards.
type Settings struct {
	RemoteBinaryURL string
	RemoteConfigURL string
	BinaryPath      string
	ConfigRoot      string
	ServiceUnitRoot string
	DaemonConfig    schema.Overrides
}

// DefaultSettings returns the scaffold written on first run. Both URLs are
// left empty so the user has to edit the file before it validates.
func DefaultSettings() Settings {
	return Settings{
		RemoteBinaryURL: "",
		RemoteConfigURL: "",
		BinaryPath:      "~/.local/bin/" + DaemonName,
		ConfigRoot:      "~/.config/" + DaemonName,
		ServiceUnitRoot: "~/.config/systemd/user",
		DaemonConfig: schema.Overrides{
			Port:               7890,
			SocksPort:          7891,
			AllowLAN:           schema.Bool(false),
			BindAddress:        schema.String("*"),
			Mode:               schema.ModeRule,
			LogLevel:           schema.LogInfo,
			IPv6:               schema.Bool(true),
			ExternalController: schema.String("0.0.0.0:9090"),
			ExternalUI:         schema.String("ui"),
			Secret:             nil,
		},
	}
}

// Validate checks that every required field is defined. Fields are checked
// in a fixed order and the first empty one is reported.
func (s Settings) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"remote_config_url", s.RemoteConfigURL},
		{"binary_path", s.BinaryPath},
		{"config_root", s.ConfigRoot},
		{"service_unit_root", s.ServiceUnitRoot},
	}
	for _, r := range required {
		if r.value == "" {
			return schema.Undefined(r.field)
		}
	}
	return nil
}

// RequireBinaryURL checks remote_binary_url. Only the commands that install
// the daemon binary need it, so Validate does not.
func (s Settings) RequireBinaryURL() error {
	if s.RemoteBinaryURL == "" {
		return schema.Undefined("remote_binary_url")
	}
	return nil
}

// Resolve returns a copy of s with a leading "~" in every path field
// replaced by home.
func (s Settings) Resolve(home string) Settings {
	s.BinaryPath = fsutil.ExpandHome(s.BinaryPath, home)
	s.ConfigRoot = fsutil.ExpandHome(s.ConfigRoot, home)
	s.ServiceUnitRoot = fsutil.ExpandHome(s.ServiceUnitRoot, home)
	return s
}

// DaemonConfigPath is the location of the remote document on disk.
func (s Settings) DaemonConfigPath() string {
	return filepath.Join(s.ConfigRoot, "config.yaml")
}

// ServiceUnitPath is the location of the generated service unit.
func (s Settings) ServiceUnitPath() string {
	return filepath.Join(s.ServiceUnitRoot, DaemonName+".service")
}

// BootstrapError is returned by Load when the settings file did not exist
// and a default one was created in its place.
type BootstrapError struct {
	Path string
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("created default config at `%s`, run again to finish setup", e.Path)
}

// Load reads and validates the settings file at path.
//
// A missing parent directory is created. A missing file is replaced by
// DefaultSettings and a *BootstrapError is returned. A malformed file
// results in a *schema.ParseError, an incomplete one in a
// *schema.ValidationError.
func Load(path string) (Settings, error) {
	if err := fsutil.EnsureParentDir(path); err != nil {
		return Settings{}, &schema.IOError{Op: "create directory for", Path: path, Err: err}
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return Settings{}, &schema.IOError{Op: "stat", Path: path, Err: err}
		}
		if err := Save(DefaultSettings(), path); err != nil {
			return Settings{}, err
		}
		slog.Info("created default settings", "path", path)
		return Settings{}, &BootstrapError{Path: path}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, &schema.IOError{Op: "read", Path: path, Err: err}
	}

	settings, err := parseSettings(string(data))
	if err != nil {
		// Existing but malformed file should result in failure (let's not hide
		// problems from the users).
		return Settings{}, &schema.ParseError{Path: path, Err: err}
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Save writes settings to path as TOML, replacing any existing file.
func Save(settings Settings, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(newSettingsDTO(settings)); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
		return &schema.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

type settingsDTO struct {
	RemoteBinaryURL string       `toml:"remote_binary_url"`
	RemoteConfigURL string       `toml:"remote_config_url"`
	BinaryPath      string       `toml:"binary_path"`
	ConfigRoot      string       `toml:"config_root"`
	ServiceUnitRoot string       `toml:"service_unit_root"`
	DaemonConfig    overridesDTO `toml:"daemon_config"`
}

// overridesDTO keeps enums as raw strings so that an unknown value is
// reported by field name instead of by the TOML decoder.
type overridesDTO struct {
	Port               uint16  `toml:"port"`
	SocksPort          uint16  `toml:"socks_port"`
	AllowLAN           *bool   `toml:"allow_lan"`
	BindAddress        *string `toml:"bind_address"`
	Mode               string  `toml:"mode"`
	LogLevel           string  `toml:"log_level"`
	IPv6               *bool   `toml:"ipv6"`
	ExternalController *string `toml:"external_controller"`
	ExternalUI         *string `toml:"external_ui"`
	Secret             *string `toml:"secret"`
}

func newSettingsDTO(s Settings) settingsDTO {
	o := s.DaemonConfig
	return settingsDTO{
		RemoteBinaryURL: s.RemoteBinaryURL,
		RemoteConfigURL: s.RemoteConfigURL,
		BinaryPath:      s.BinaryPath,
		ConfigRoot:      s.ConfigRoot,
		ServiceUnitRoot: s.ServiceUnitRoot,
		DaemonConfig: overridesDTO{
			Port:               o.Port,
			SocksPort:          o.SocksPort,
			AllowLAN:           o.AllowLAN,
			BindAddress:        o.BindAddress,
			Mode:               o.Mode.String(),
			LogLevel:           o.LogLevel.String(),
			IPv6:               o.IPv6,
			ExternalController: o.ExternalController,
			ExternalUI:         o.ExternalUI,
			Secret:             o.Secret,
		},
	}
}

// settings converts the DTO, validating the enum fields.
func (dto settingsDTO) settings() (Settings, error) {
	mode, err := schema.ParseMode(dto.DaemonConfig.Mode)
	if err != nil {
		return Settings{}, err
	}
	logLevel, err := schema.ParseLogLevel(dto.DaemonConfig.LogLevel)
	if err != nil {
		return Settings{}, err
	}

	o := dto.DaemonConfig
	return Settings{
		RemoteBinaryURL: dto.RemoteBinaryURL,
		RemoteConfigURL: dto.RemoteConfigURL,
		BinaryPath:      dto.BinaryPath,
		ConfigRoot:      dto.ConfigRoot,
		ServiceUnitRoot: dto.ServiceUnitRoot,
		DaemonConfig: schema.Overrides{
			Port:               o.Port,
			SocksPort:          o.SocksPort,
			AllowLAN:           o.AllowLAN,
			BindAddress:        o.BindAddress,
			Mode:               mode,
			LogLevel:           logLevel,
			IPv6:               o.IPv6,
			ExternalController: o.ExternalController,
			ExternalUI:         o.ExternalUI,
			Secret:             o.Secret,
		},
	}, nil
}

// parseSettings parses a TOML string into Settings.
func parseSettings(data string) (Settings, error) {
	var dto settingsDTO

	md, err := toml.Decode(data, &dto)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to parse TOML: %w", err)
	}

	// Required overrides have no meaningful empty value to validate later,
	// so their absence is a parse failure.
	for _, f := range schema.Fields {
		if !f.Optional && !md.IsDefined("daemon_config", f.Setting) {
			return Settings{}, fmt.Errorf("missing field `daemon_config.%s`", f.Setting)
		}
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		slog.Warn("ignoring unknown settings keys", "keys", strings.Join(keys, ", "))
	}

	return dto.settings()
}
