package overlay

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/proxyup/proxyup/internal/schema"
)

const upstream = `mixed-port: 7893
proxies:
  - name: hk-01
    type: ss
    server: hk.example.com
    port: 443
    cipher: aes-128-gcm
    password: 'p@ss'
  - {name: jp-01, type: vmess, server: jp.example.com, port: 8443, uuid: 0000-1111}
proxy-groups:
  - name: auto
    type: url-test
    proxies: [hk-01, jp-01]
    url: http://www.gstatic.com/generate_204
    interval: 300
rules:
  - DOMAIN-SUFFIX,google.com,auto
  - GEOIP,CN,DIRECT
  - MATCH,auto
dns:
  enable: true
  nameserver:
    - 223.5.5.5
    - tls://1.1.1.1
`

func minimalOverrides() schema.Overrides {
	return schema.Overrides{
		Port:      7890,
		SocksPort: 7891,
		Mode:      schema.ModeRule,
		LogLevel:  schema.LogInfo,
	}
}

func fullOverrides() schema.Overrides {
	o := minimalOverrides()
	o.AllowLAN = schema.Bool(false)
	o.BindAddress = schema.String("*")
	o.IPv6 = schema.Bool(true)
	o.ExternalController = schema.String("0.0.0.0:9090")
	o.ExternalUI = schema.String("ui")
	o.Secret = schema.String("s3cret")
	return o
}

func decode(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid YAML: %v\n%s", err, data)
	}
	return m
}

func overlay(t *testing.T, input string, o schema.Overrides) []byte {
	t.Helper()
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc.Apply(o)
	out, err := doc.Marshal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return out
}

func TestApply_PreservesUnmanagedKeys(t *testing.T) {
	before := decode(t, []byte(upstream))
	after := decode(t, overlay(t, upstream, fullOverrides()))

	for key, value := range before {
		if diff := cmp.Diff(value, after[key]); diff != "" {
			t.Errorf("key %q changed (-want +got):\n%s", key, diff)
		}
	}

	expected := map[string]interface{}{
		"port":                7890,
		"socks-port":          7891,
		"allow-lan":           false,
		"bind-address":        "*",
		"mode":                "rule",
		"log-level":           "info",
		"ipv6":                true,
		"external-controller": "0.0.0.0:9090",
		"external-ui":         "ui",
		"secret":              "s3cret",
	}
	for key, value := range expected {
		if diff := cmp.Diff(value, after[key]); diff != "" {
			t.Errorf("key %q mismatch (-want +got):\n%s", key, diff)
		}
	}
	if len(after) != len(before)+len(expected) {
		t.Errorf("expected %d keys, got %d", len(before)+len(expected), len(after))
	}
}

func TestApply_PreservesOrderAndStyle(t *testing.T) {
	out := overlay(t, upstream, minimalOverrides())

	doc, err := Parse(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"mixed-port", "proxies", "proxy-groups", "rules", "dns"}
	if diff := cmp.Diff(expected, doc.Extra()); diff != "" {
		t.Errorf("Extra() mismatch (-want +got):\n%s", diff)
	}

	for _, fragment := range []string{"'p@ss'", "{name: jp-01", "[hk-01, jp-01]"} {
		if !strings.Contains(string(out), fragment) {
			t.Errorf("expected output to keep %q:\n%s", fragment, out)
		}
	}
}

func TestApply_RequiredFieldsOnEmptyDocument(t *testing.T) {
	out := overlay(t, "", minimalOverrides())

	expected := "port: 7890\nsocks-port: 7891\nmode: rule\nlog-level: info\n"
	if diff := cmp.Diff(expected, string(out)); diff != "" {
		t.Errorf("Marshal() mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_RemovesUnsetOptionalFields(t *testing.T) {
	input := `port: 1
socks-port: 2
allow-lan: true
bind-address: 127.0.0.1
mode: global
log-level: debug
ipv6: false
external-controller: 127.0.0.1:9090
external-ui: dashboard
secret: old
rules: []
`
	after := decode(t, overlay(t, input, minimalOverrides()))

	for _, key := range []string{"allow-lan", "bind-address", "ipv6", "external-controller", "external-ui", "secret"} {
		if _, ok := after[key]; ok {
			t.Errorf("expected %q to be removed", key)
		}
	}
	expected := map[string]interface{}{
		"port":       7890,
		"socks-port": 7891,
		"mode":       "rule",
		"log-level":  "info",
		"rules":      []interface{}{},
	}
	if diff := cmp.Diff(expected, after); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_OverridesExistingValues(t *testing.T) {
	input := "port: 1080\nmode: Global\nlog-level: silent\nsecret: old\n"
	o := minimalOverrides()
	o.Secret = schema.String("")

	after := decode(t, overlay(t, input, o))

	expected := map[string]interface{}{
		"port":       7890,
		"socks-port": 7891,
		"mode":       "rule",
		"log-level":  "info",
		"secret":     "",
	}
	if diff := cmp.Diff(expected, after); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_Idempotent(t *testing.T) {
	for name, o := range map[string]schema.Overrides{"minimal": minimalOverrides(), "full": fullOverrides()} {
		t.Run(name, func(t *testing.T) {
			once := overlay(t, upstream, o)
			twice := overlay(t, string(once), o)
			if diff := cmp.Diff(string(once), string(twice)); diff != "" {
				t.Errorf("second overlay changed the document (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestApply_DoesNotAliasOverrides(t *testing.T) {
	o := fullOverrides()
	doc, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc.Apply(o)

	*doc.Secret = "changed"
	if *o.Secret != "s3cret" {
		t.Errorf("overrides were modified through the document: %q", *o.Secret)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
		expected    *Document
	}{
		{
			name:     "empty document",
			input:    "",
			expected: &Document{},
		},
		{
			name:     "null document",
			input:    "~\n",
			expected: &Document{},
		},
		{
			name:  "managed fields",
			input: "port: 7890\nallow-lan: true\nmode: direct\nlog-level: warning\n",
			expected: &Document{
				Port:     ptr(uint16(7890)),
				AllowLAN: schema.Bool(true),
				Mode:     ptr(schema.ModeDirect),
				LogLevel: ptr(schema.LogWarning),
			},
		},
		{
			name:     "null managed field is absent",
			input:    "port: ~\nsecret: null\n",
			expected: &Document{},
		},
		{
			name:        "syntax error",
			input:       "port: [7890\n",
			expectError: true,
		},
		{
			name:        "top level sequence",
			input:       "- port\n- mode\n",
			expectError: true,
		},
		{
			name:        "port is not numeric",
			input:       "port: abc\n",
			expectError: true,
		},
		{
			name:        "socks-port out of range",
			input:       "socks-port: 65536\n",
			expectError: true,
		},
		{
			name:        "allow-lan is a mapping",
			input:       "allow-lan:\n  enabled: true\n",
			expectError: true,
		},
		{
			name:        "unknown mode",
			input:       "mode: script\n",
			expectError: true,
		},
		{
			name:        "multiple documents",
			input:       "rules: []\n---\nproxies: [a]\n",
			expectError: true,
		},
		{
			name:     "explicit document start",
			input:    "---\nport: 1\n",
			expected: &Document{Port: ptr(uint16(1))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Parse([]byte(tt.input))

			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.expectError {
				if diff := cmp.Diff(tt.expected, result, cmp.AllowUnexported(Document{})); diff != "" {
					t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestApply_ExpandsAliasesToManagedValues(t *testing.T) {
	input := "port: &p 7890\nproxies:\n  - {name: a, port: *p}\n"
	o := minimalOverrides()
	o.Port = 1080

	out := overlay(t, input, o)
	if strings.Contains(string(out), "*p") {
		t.Errorf("alias to a managed value survived:\n%s", out)
	}

	after := decode(t, out)
	expected := []interface{}{map[string]interface{}{"name": "a", "port": 7890}}
	if diff := cmp.Diff(expected, after["proxies"]); diff != "" {
		t.Errorf("proxies mismatch (-want +got):\n%s", diff)
	}
	if after["port"] != 1080 {
		t.Errorf("expected port 1080, got %v", after["port"])
	}

	if diff := cmp.Diff(string(out), string(overlay(t, string(out), o))); diff != "" {
		t.Errorf("second overlay changed the document (-once +twice):\n%s", diff)
	}
}

func TestApply_KeepsAnchorsOfUnmanagedValues(t *testing.T) {
	input := "base: &b {type: ss, port: 443}\nproxies:\n  - *b\n"

	out := overlay(t, input, minimalOverrides())

	after := decode(t, out)
	expected := []interface{}{map[string]interface{}{"type": "ss", "port": 443}}
	if diff := cmp.Diff(expected, after["proxies"]); diff != "" {
		t.Errorf("proxies mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(string(out), "&b") {
		t.Errorf("expected anchor to be kept:\n%s", out)
	}
}

func TestParse_UnmanagedValuesNotInterpreted(t *testing.T) {
	// tun.stack and rule-providers would fail any typed decode; they must
	// still pass through untouched.
	input := "tun:\n  enable: true\n  stack: !custom gvisor\nrule-providers: {a: {type: http}}\n"

	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"tun", "rule-providers"}, doc.Extra()); diff != "" {
		t.Errorf("Extra() mismatch (-want +got):\n%s", diff)
	}

	out, err := doc.Marshal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "!custom gvisor") {
		t.Errorf("expected custom tag to survive:\n%s", out)
	}
}

func TestApplyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(upstream), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if err := ApplyFile(path, fullOverrides()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := decode(t, data)
	if after["socks-port"] != 7891 || after["secret"] != "s3cret" {
		t.Errorf("overrides not applied:\n%s", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600 to be kept, got %o", info.Mode().Perm())
	}
}

func TestApplyFile_Missing(t *testing.T) {
	err := ApplyFile(filepath.Join(t.TempDir(), "config.yaml"), minimalOverrides())

	var ioErr *schema.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected cause to be ErrNotExist, got %v", err)
	}
}

func TestApplyFile_ParseErrorLeavesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "port: not-a-port\nrules: []\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	err := ApplyFile(path, minimalOverrides())
	var parseErr *schema.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Path != path {
		t.Errorf("expected Path=%s, got %s", path, parseErr.Path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != content {
		t.Errorf("file was modified:\n%s", data)
	}
}

func TestApplyFile_MultipleDocumentsLeavesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "rules: []\n---\nproxies: [a]\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	err := ApplyFile(path, minimalOverrides())
	var parseErr *schema.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != content {
		t.Errorf("file was modified:\n%s", data)
	}
}

func TestSave_EncodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "rules: []\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	// A node of unknown kind cannot be encoded.
	doc := &Document{extra: []entry{{
		key:   &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "broken"},
		value: &yaml.Node{Kind: yaml.Kind(0xff), Value: "broken"},
	}}}

	err := save(path, doc, 0644)
	var ioErr *schema.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if ioErr.Op != "encode" || ioErr.Path != path {
		t.Errorf("unexpected error: %+v", ioErr)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != content {
		t.Errorf("file was modified:\n%s", data)
	}
}
