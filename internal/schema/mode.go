package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode is the daemon routing mode.
type Mode uint8

const (
	ModeGlobal Mode = iota
	ModeRule
	ModeDirect
)

var modeNames = map[Mode]string{
	ModeGlobal: "global",
	ModeRule:   "rule",
	ModeDirect: "direct",
}

var modeValues = map[string]Mode{
	"global": ModeGlobal,
	"rule":   ModeRule,
	"direct": ModeDirect,
}

// ParseMode returns the Mode named by s. Matching ignores case.
func ParseMode(s string) (Mode, error) {
	m, ok := modeValues[strings.ToLower(s)]
	if !ok {
		return 0, Invalid("mode", s)
	}
	return m, nil
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	name, ok := modeNames[m]
	if !ok {
		return nil, fmt.Errorf("unknown mode %d", uint8(m))
	}
	return []byte(name), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Mode) MarshalYAML() (interface{}, error) {
	b, err := m.MarshalText()
	return string(b), err
}

func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: mode must be a string", value.Line)
	}
	return m.UnmarshalText([]byte(value.Value))
}

// LogLevel is the daemon log verbosity.
type LogLevel uint8

const (
	LogSilent LogLevel = iota
	LogError
	LogWarning
	LogInfo
	LogDebug
)

var logLevelNames = map[LogLevel]string{
	LogSilent:  "silent",
	LogError:   "error",
	LogWarning: "warning",
	LogInfo:    "info",
	LogDebug:   "debug",
}

var logLevelValues = map[string]LogLevel{
	"silent":  LogSilent,
	"error":   LogError,
	"warning": LogWarning,
	"info":    LogInfo,
	"debug":   LogDebug,
}

// ParseLogLevel returns the LogLevel named by s. Matching ignores case.
func ParseLogLevel(s string) (LogLevel, error) {
	l, ok := logLevelValues[strings.ToLower(s)]
	if !ok {
		return 0, Invalid("log_level", s)
	}
	return l, nil
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LogLevel(%d)", uint8(l))
}

func (l LogLevel) MarshalText() ([]byte, error) {
	name, ok := logLevelNames[l]
	if !ok {
		return nil, fmt.Errorf("unknown log level %d", uint8(l))
	}
	return []byte(name), nil
}

func (l *LogLevel) UnmarshalText(text []byte) error {
	v, err := ParseLogLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

func (l LogLevel) MarshalYAML() (interface{}, error) {
	b, err := l.MarshalText()
	return string(b), err
}

func (l *LogLevel) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: log-level must be a string", value.Line)
	}
	return l.UnmarshalText([]byte(value.Value))
}
