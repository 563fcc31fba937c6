package queryrec

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/qerr"
)

// decodeYAML reads a YAML document through yaml.Node so mapping order
// survives.
func decodeYAML(data []byte) (ir.IRValue, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &qerr.LiteralSyntaxError{Reason: err.Error()}
	}
	if doc.Kind == 0 {
		return nil, &qerr.LiteralSyntaxError{Reason: "empty YAML document"}
	}
	return yamlValue(&doc)
}

func yamlValue(n *yaml.Node) (ir.IRValue, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return ir.IRNull{}, nil
		}
		return yamlValue(n.Content[0])
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.SequenceNode:
		arr := make(ir.IRArray, 0, len(n.Content))
		for i, c := range n.Content {
			v, err := yamlValue(c)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr = append(arr, v)
		}
		return arr, nil
	case yaml.MappingNode:
		obj := make(ir.IRObject, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode || k.ShortTag() == "!!merge" {
				return nil, yamlError(k, "mapping keys must be plain scalars")
			}
			v, err := yamlValue(n.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k.Value, err)
			}
			obj = append(obj, ir.O(k.Value, v))
		}
		v, err := ir.FromExtended(obj)
		if err != nil {
			return nil, yamlError(n, err.Error())
		}
		return v, nil
	case yaml.ScalarNode:
		return yamlScalar(n)
	}
	return nil, yamlError(n, "unexpected node")
}

func yamlScalar(n *yaml.Node) (ir.IRValue, error) {
	switch n.ShortTag() {
	case "!!null":
		return ir.IRNull{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, yamlError(n, err.Error())
		}
		return ir.IRBool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return ir.IRInt(i), nil
		}
		fallthrough
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, yamlError(n, err.Error())
		}
		return ir.IRFloat(f), nil
	case "!!timestamp":
		var t time.Time
		if err := n.Decode(&t); err != nil {
			return nil, yamlError(n, err.Error())
		}
		return ir.IRDate{Time: t.UTC()}, nil
	case "!!str":
		return ir.IRString(n.Value), nil
	}
	return nil, yamlError(n, fmt.Sprintf("unsupported tag %s", n.ShortTag()))
}

func yamlError(n *yaml.Node, reason string) error {
	return &qerr.LiteralSyntaxError{Reason: fmt.Sprintf("yaml line %d column %d: %s", n.Line, n.Column, reason)}
}

func encodeYAML(doc ir.IRValue) ([]byte, error) {
	n, err := yamlNode(doc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func yamlNode(v ir.IRValue) (*yaml.Node, error) {
	scalar := func(tag, value string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
	}
	switch val := v.(type) {
	case ir.IRNull:
		return scalar("!!null", "null"), nil
	case ir.IRString:
		return scalar("!!str", string(val)), nil
	case ir.IRInt:
		return scalar("!!int", ir.FormatNumber(val)), nil
	case ir.IRFloat:
		s := ir.FormatNumber(val)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return scalar("!!float", s), nil
	case ir.IRBool:
		if val {
			return scalar("!!bool", "true"), nil
		}
		return scalar("!!bool", "false"), nil
	case ir.IRDate, ir.IRObjectID, ir.IRRegex:
		return yamlNode(ir.ExtendedForm(val))
	case ir.IRArray:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if len(val) == 0 {
			n.Style = yaml.FlowStyle
		}
		for i, elem := range val {
			c, err := yamlNode(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			n.Content = append(n.Content, c)
		}
		return n, nil
	case ir.IRObject:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if len(val) == 0 {
			n.Style = yaml.FlowStyle
		}
		for _, p := range val {
			c, err := yamlNode(p.Value)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", p.Key, err)
			}
			n.Content = append(n.Content, scalar("!!str", p.Key), c)
		}
		return n, nil
	}
	return nil, fmt.Errorf("%s has no YAML form", ir.TypeName(v))
}
