package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/proxyup/proxyup/internal/schema"
)

// Document is a parsed daemon configuration. Managed fields are decoded
// into typed slots; a nil slot means the key is absent. All other top-level
// keys are kept as raw YAML nodes in their original order.
type Document struct {
	Port               *uint16
	SocksPort          *uint16
	AllowLAN           *bool
	BindAddress        *string
	Mode               *schema.Mode
	LogLevel           *schema.LogLevel
	IPv6               *bool
	ExternalController *string
	ExternalUI         *string
	Secret             *string

	extra   []entry
	comment string
}

type entry struct {
	key   *yaml.Node
	value *yaml.Node
}

// slots maps every managed remote key to the address of its field.
func (d *Document) slots() map[string]interface{} {
	return map[string]interface{}{
		"port":                &d.Port,
		"socks-port":          &d.SocksPort,
		"allow-lan":           &d.AllowLAN,
		"bind-address":        &d.BindAddress,
		"mode":                &d.Mode,
		"log-level":           &d.LogLevel,
		"ipv6":                &d.IPv6,
		"external-controller": &d.ExternalController,
		"external-ui":         &d.ExternalUI,
		"secret":              &d.Secret,
	}
}

// Parse decodes a daemon configuration document. An empty document is an
// empty mapping and a stream of several documents is rejected. Values of
// unmanaged keys are not interpreted.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}

	var root yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return doc, nil
		}
		return nil, err
	}
	var next yaml.Node
	if err := dec.Decode(&next); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("line %d: multiple documents are not supported", next.Line)
	}

	if len(root.Content) == 0 {
		return doc, nil
	}
	doc.comment = root.HeadComment

	m := root.Content[0]
	if m.Kind == yaml.ScalarNode && m.ShortTag() == "!!null" {
		return doc, nil
	}
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top level must be a mapping", m.Line)
	}

	slots := doc.slots()
	dropped := map[*yaml.Node]bool{}
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, value := m.Content[i], m.Content[i+1]

		slot, managed := slots[key.Value]
		if key.Kind != yaml.ScalarNode || !managed {
			doc.extra = append(doc.extra, entry{key: key, value: value})
			continue
		}
		if err := value.Decode(slot); err != nil {
			return nil, fmt.Errorf("field `%s`: %w", key.Value, err)
		}
		collectAnchors(value, dropped)
	}

	// Managed values are re-encoded from their slots, so anchors defined
	// inside them disappear. Aliases to them are expanded in place.
	if len(dropped) > 0 {
		for i := range doc.extra {
			doc.extra[i].value = expandAliases(doc.extra[i].value, dropped)
		}
	}
	return doc, nil
}

func collectAnchors(n *yaml.Node, anchors map[*yaml.Node]bool) {
	if n.Anchor != "" {
		anchors[n] = true
	}
	for _, c := range n.Content {
		collectAnchors(c, anchors)
	}
}

// expandAliases returns n with every alias to one of anchors replaced by a
// copy of the anchored node.
func expandAliases(n *yaml.Node, anchors map[*yaml.Node]bool) *yaml.Node {
	if n.Kind == yaml.AliasNode && anchors[n.Alias] {
		return copyNode(n.Alias, anchors)
	}
	for i, c := range n.Content {
		n.Content[i] = expandAliases(c, anchors)
	}
	return n
}

func copyNode(n *yaml.Node, anchors map[*yaml.Node]bool) *yaml.Node {
	if n.Kind == yaml.AliasNode && anchors[n.Alias] {
		return copyNode(n.Alias, anchors)
	}
	c := *n
	c.Anchor = ""
	c.HeadComment, c.LineComment, c.FootComment = "", "", ""
	if n.Content != nil {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = copyNode(child, anchors)
		}
	}
	return &c
}

// Extra returns the unmanaged top-level keys in document order.
func (d *Document) Extra() []string {
	keys := make([]string, 0, len(d.extra))
	for _, e := range d.extra {
		keys = append(keys, e.key.Value)
	}
	return keys
}

// Apply overlays o onto d. Required fields are always set. Optional fields
// are set when present in o and removed otherwise.
func (d *Document) Apply(o schema.Overrides) {
	d.Port = ptr(o.Port)
	d.SocksPort = ptr(o.SocksPort)
	d.AllowLAN = clone(o.AllowLAN)
	d.BindAddress = clone(o.BindAddress)
	d.Mode = ptr(o.Mode)
	d.LogLevel = ptr(o.LogLevel)
	d.IPv6 = clone(o.IPv6)
	d.ExternalController = clone(o.ExternalController)
	d.ExternalUI = clone(o.ExternalUI)
	d.Secret = clone(o.Secret)
}

// Marshal encodes d. Managed keys come first, in schema.Fields order,
// followed by the unmanaged keys in their original order.
func (d *Document) Marshal() ([]byte, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	slots := d.slots()
	for _, f := range schema.Fields {
		field := reflect.ValueOf(slots[f.Remote]).Elem()
		if field.IsNil() {
			continue
		}

		var value yaml.Node
		if err := value.Encode(field.Interface()); err != nil {
			return nil, fmt.Errorf("failed to encode `%s`: %w", f.Remote, err)
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Remote}
		m.Content = append(m.Content, key, &value)
	}

	for _, e := range d.extra {
		m.Content = append(m.Content, e.key, e.value)
	}

	root := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: d.comment,
		Content:     []*yaml.Node{m},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return buf.Bytes(), nil
}

func ptr[T any](v T) *T {
	return &v
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
