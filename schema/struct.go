package schema

import (
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hatlonely/qcore/value"
	"github.com/pkg/errors"
)

// FromStruct 从结构体定义模型
//
// 支持的 tag 格式：
//   - `qcore:"column_name,type=String,id,unique,optional,list,default=autoincrement()"`
//   - `qcore:"posts,relation=Post,list"` 关系字段
//   - `qcore:"author,relation=User,fields=authorId,references=id,name=UserPosts"` 多个字段用 | 分隔
//   - `qcore:"-"` 忽略字段
//   - `table:"users"` 指定表名（任一字段上）
//
// 模型名为结构体类型名，指针类型的字段视为可选
func (b *Builder) FromStruct(v any) error {
	rt := reflect.TypeOf(v)
	for rt != nil && rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return errors.Errorf("expected struct, got %T", v)
	}

	var parseErr error
	b.Model(rt.Name(), func(m *ModelBuilder) {
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			if table := field.Tag.Get("table"); table != "" {
				m.DB(table)
			}
			tag := field.Tag.Get("qcore")
			if tag == "-" {
				continue
			}
			if err := parseFieldTag(m, field, tag); err != nil && parseErr == nil {
				parseErr = errors.WithMessagef(err, "field %s", field.Name)
			}
		}
	})
	return parseErr
}

func parseFieldTag(m *ModelBuilder, field reflect.StructField, tag string) error {
	name := lowerFirst(field.Name)
	parts := strings.Split(tag, ",")
	if parts[0] != "" && !strings.Contains(parts[0], "=") {
		name = parts[0]
		parts = parts[1:]
	}

	opts := map[string]string{}
	flags := map[string]bool{}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if kv := strings.SplitN(part, "=", 2); len(kv) == 2 {
			opts[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		} else {
			flags[part] = true
		}
	}

	goType := field.Type
	optional := flags["optional"]
	if goType.Kind() == reflect.Ptr {
		optional = true
		goType = goType.Elem()
	}
	list := flags["list"]

	if related, ok := opts["relation"]; ok {
		rb := m.Relation(name, related)
		if list || (goType.Kind() == reflect.Slice && goType.Elem().Kind() != reflect.Uint8) {
			rb.List()
		} else if optional {
			rb.Optional()
		}
		if rel := opts["name"]; rel != "" {
			rb.Name(rel)
		}
		if fields := opts["fields"]; fields != "" {
			rb.Fields(strings.Split(fields, "|")...)
			rb.References(strings.Split(opts["references"], "|")...)
		}
		if action := opts["onDelete"]; action != "" {
			rb.OnDelete(ReferentialAction(action))
		}
		return nil
	}

	var t value.TypeIdentifier
	if typeName, ok := opts["type"]; ok {
		parsed, ok := value.ParseTypeIdentifier(typeName)
		if !ok {
			return errors.Errorf("unknown type %q", typeName)
		}
		t = parsed
	} else {
		if goType.Kind() == reflect.Slice && goType.Elem().Kind() != reflect.Uint8 {
			list = true
			goType = goType.Elem()
		}
		t = inferType(goType)
	}

	sb := m.Scalar(name, t)
	if db := opts["db"]; db != "" {
		sb.DB(db)
	}
	if list {
		sb.List()
	} else if optional {
		sb.Optional()
	}
	if flags["id"] || flags["primary"] || flags["pk"] {
		sb.ID()
	}
	if flags["unique"] {
		sb.Unique()
	}
	if native := opts["native"]; native != "" {
		sb.Native(native)
	}
	if def, ok := opts["default"]; ok {
		d, err := ParseDefault(def, t)
		if err != nil {
			return err
		}
		sb.WithDefault(d)
	}
	return nil
}

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// inferType 从 Go 类型推断字段类型
func inferType(t reflect.Type) value.TypeIdentifier {
	switch t {
	case timeType:
		return value.TypeDateTime
	case uuidType:
		return value.TypeUUID
	}

	switch t.Kind() {
	case reflect.String:
		return value.TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return value.TypeInt
	case reflect.Float32, reflect.Float64:
		return value.TypeFloat
	case reflect.Bool:
		return value.TypeBoolean
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return value.TypeBytes
		}
	}
	// 其他复杂类型按 JSON 存储
	return value.TypeJson
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	if s == "ID" {
		return "id"
	}
	return strings.ToLower(s[:1]) + s[1:]
}
