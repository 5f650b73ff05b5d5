package cfg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Format 配置文件格式
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatINI  Format = "ini"
	FormatJSON Format = "json"
)

// FormatOf 按扩展名识别格式
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".ini":
		return FormatINI, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", errors.Errorf("unknown config format of %q", path)
}

// Load 读取并解码配置文件
func Load(path string) (*Map, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "os.ReadFile failed")
	}
	return Decode(data, format)
}

func Decode(data []byte, format Format) (*Map, error) {
	switch format {
	case FormatYAML:
		var v interface{}
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "yaml.Unmarshal failed")
		}
		return NewMap(v), nil
	case FormatTOML:
		var v map[string]interface{}
		if err := toml.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "toml.Unmarshal failed")
		}
		return NewMap(v), nil
	case FormatJSON:
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "json.Unmarshal failed")
		}
		return NewMap(v), nil
	case FormatINI:
		return decodeINI(data)
	}
	return nil, errors.Errorf("unsupported config format %q", format)
}

// decodeINI section 作为一级键，section 名中的点展开为嵌套
//
//	[datasource.options]
//	driver = sqlite3
//
// 等价于 {datasource: {options: {driver: "sqlite3"}}}，值保留字符串，转换时再解析
func decodeINI(data []byte) (*Map, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "ini.LoadSources failed")
	}

	root := map[string]interface{}{}
	for _, section := range file.Sections() {
		node := root
		if section.Name() != ini.DefaultSection {
			for _, key := range strings.Split(section.Name(), ".") {
				child, ok := node[key].(map[string]interface{})
				if !ok {
					child = map[string]interface{}{}
					node[key] = child
				}
				node = child
			}
		}
		for _, key := range section.Keys() {
			node[key.Name()] = key.String()
		}
	}
	return NewMap(root), nil
}
