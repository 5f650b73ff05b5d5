package document

import (
	"strconv"

	"github.com/hatlonely/qcore/value"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Decode 解析 JSON 或 YAML 参数文档，对象保持原始键顺序
func Decode(data []byte) (ParsedInputValue, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, errors.Wrap(err, "decode input document failed")
	}
	if node.Kind == 0 {
		return Single{Value: value.Null{}}, nil
	}
	return fromNode(&node)
}

// DecodeMap 解析顶层为对象的参数文档
func DecodeMap(data []byte) (*ParsedInputMap, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*ParsedInputMap)
	if !ok {
		return nil, errors.New("input document is not an object")
	}
	return m, nil
}

func fromNode(node *yaml.Node) (ParsedInputValue, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Single{Value: value.Null{}}, nil
		}
		return fromNode(node.Content[0])
	case yaml.AliasNode:
		return fromNode(node.Alias)
	case yaml.MappingNode:
		m := NewParsedInputMap()
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			v, err := fromNode(node.Content[i+1])
			if err != nil {
				return nil, errors.WithMessagef(err, "key %s", key)
			}
			m.Set(key, v)
		}
		return m, nil
	case yaml.SequenceNode:
		out := make(List, 0, len(node.Content))
		for _, child := range node.Content {
			v, err := fromNode(child)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		v, err := scalarFromNode(node)
		if err != nil {
			return nil, err
		}
		return Single{Value: v}, nil
	}
	return nil, errors.Errorf("unsupported node kind %d at line %d", node.Kind, node.Line)
}

func scalarFromNode(node *yaml.Node) (value.Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return value.Null{}, nil
	case "!!bool":
		b, err := strconv.ParseBool(node.Value)
		if err != nil {
			var out bool
			if err := node.Decode(&out); err != nil {
				return nil, errors.Wrapf(err, "invalid bool at line %d", node.Line)
			}
			return value.Bool(out), nil
		}
		return value.Bool(b), nil
	case "!!int":
		var n int64
		if err := node.Decode(&n); err != nil {
			return nil, errors.Wrapf(err, "invalid int at line %d", node.Line)
		}
		return value.Int(n), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return nil, errors.Wrapf(err, "invalid float at line %d", node.Line)
		}
		return value.Float(f), nil
	}
	return value.String(node.Value), nil
}
