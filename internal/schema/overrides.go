// Package schema declares the daemon fields managed by proxyup and the
// error types shared by the settings store and the overlay engine.
package schema

// Overrides is the subset of daemon configuration fields owned by the user.
// Required fields are always written to the remote document. A nil optional
// field means the key is removed from the remote document.
type Overrides struct {
	Port               uint16
	SocksPort          uint16
	AllowLAN           *bool
	BindAddress        *string
	Mode               Mode
	LogLevel           LogLevel
	IPv6               *bool
	ExternalController *string
	ExternalUI         *string
	Secret             *string
}

// Field names one managed field in both file formats.
type Field struct {
	// Setting is the key in the settings file.
	Setting string
	// Remote is the key in the remote daemon document.
	Remote string
	// Optional fields may be absent from Overrides.
	Optional bool
}

// Fields lists the managed fields in the order they are emitted.
var Fields = []Field{
	{Setting: "port", Remote: "port"},
	{Setting: "socks_port", Remote: "socks-port"},
	{Setting: "allow_lan", Remote: "allow-lan", Optional: true},
	{Setting: "bind_address", Remote: "bind-address", Optional: true},
	{Setting: "mode", Remote: "mode"},
	{Setting: "log_level", Remote: "log-level"},
	{Setting: "ipv6", Remote: "ipv6", Optional: true},
	{Setting: "external_controller", Remote: "external-controller", Optional: true},
	{Setting: "external_ui", Remote: "external-ui", Optional: true},
	{Setting: "secret", Remote: "secret", Optional: true},
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s.
func String(s string) *string { return &s }
