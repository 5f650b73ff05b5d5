package cfg

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Convertable 可以转换为具体选项结构体的配置数据
type Convertable interface {
	ConvertTo(object interface{}) error
}

// Map 解码后的配置树，由 map[string]interface{}、[]interface{} 和标量组成
type Map struct {
	data interface{}
}

func NewMap(data interface{}) *Map {
	return &Map{data: data}
}

func (m *Map) Data() interface{} {
	if m == nil {
		return nil
	}
	return m.data
}

// Sub 按路径取子树，路径形如 "datasource.options" 或 "servers[0].host"
//
// 路径不存在时返回空 Map，ConvertTo 只填充默认值
func (m *Map) Sub(path string) *Map {
	if m == nil || path == "" {
		return m
	}
	cur := m.data
	for _, key := range splitPath(path) {
		switch node := cur.(type) {
		case map[string]interface{}:
			cur = node[key]
		case map[interface{}]interface{}:
			cur = node[key]
		case []interface{}:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return &Map{}
			}
			cur = node[idx]
		default:
			return &Map{}
		}
	}
	return &Map{data: cur}
}

func splitPath(path string) []string {
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	var keys []string
	for _, k := range strings.Split(path, ".") {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// ConvertTo 转换到 object，随后填充默认值并校验
func (m *Map) ConvertTo(object interface{}) error {
	rv := reflect.ValueOf(object)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	if m != nil && m.data != nil {
		if err := convert(m.data, rv.Elem()); err != nil {
			return err
		}
	}
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "SetDefaults failed")
	}
	if err := Validate(object); err != nil {
		return errors.WithMessage(err, "Validate failed")
	}
	return nil
}

func convert(src interface{}, dst reflect.Value) error {
	if src == nil {
		return nil
	}
	sv := reflect.ValueOf(src)

	if dst.Kind() == reflect.Interface {
		if !sv.Type().AssignableTo(dst.Type()) {
			return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
		}
		dst.Set(sv)
		return nil
	}
	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convert(src, dst.Elem())
	}

	switch dst.Type() {
	case durationType:
		return convertDuration(sv, dst)
	case timeType:
		if sv.Kind() == reflect.String {
			t, err := parseTime(sv.String())
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(t))
			return nil
		}
		if t, ok := src.(time.Time); ok {
			dst.Set(reflect.ValueOf(t))
			return nil
		}
	}

	switch dst.Kind() {
	case reflect.Struct:
		return convertStruct(sv, dst)
	case reflect.Map:
		return convertMap(sv, dst)
	case reflect.Slice:
		if sv.Kind() == reflect.String && dst.Type().Elem().Kind() != reflect.Uint8 {
			return parseInto(dst, sv.String())
		}
		if sv.Kind() != reflect.Slice && sv.Kind() != reflect.Array {
			return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
		}
		out := reflect.MakeSlice(dst.Type(), sv.Len(), sv.Len())
		for i := 0; i < sv.Len(); i++ {
			if err := convert(sv.Index(i).Interface(), out.Index(i)); err != nil {
				return errors.WithMessagef(err, "[%d]", i)
			}
		}
		dst.Set(out)
		return nil
	}

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	// 配置文件中的数字与字符串之间互相转换，INI 的值都是字符串
	if sv.Kind() == reflect.String && dst.Kind() != reflect.String {
		return parseInto(dst, sv.String())
	}
	if dst.Kind() == reflect.String {
		dst.SetString(toString(sv))
		return nil
	}
	if isNumber(sv.Kind()) && isNumber(dst.Kind()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
}

func isNumber(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uint64) || k == reflect.Float32 || k == reflect.Float64
}

func toString(sv reflect.Value) string {
	switch {
	case sv.Kind() == reflect.Bool:
		return strconv.FormatBool(sv.Bool())
	case sv.Kind() >= reflect.Int && sv.Kind() <= reflect.Int64:
		return strconv.FormatInt(sv.Int(), 10)
	case sv.Kind() >= reflect.Uint && sv.Kind() <= reflect.Uint64:
		return strconv.FormatUint(sv.Uint(), 10)
	case sv.Kind() == reflect.Float32 || sv.Kind() == reflect.Float64:
		return strconv.FormatFloat(sv.Float(), 'f', -1, 64)
	}
	return ""
}

// convertDuration 字符串按 "5s" 解析，整数按纳秒，浮点数按秒
func convertDuration(sv, dst reflect.Value) error {
	switch {
	case sv.Kind() == reflect.String:
		d, err := parseDuration(sv.String())
		if err != nil {
			return err
		}
		dst.SetInt(int64(d))
	case sv.Kind() >= reflect.Int && sv.Kind() <= reflect.Int64:
		dst.SetInt(sv.Int())
	case sv.Kind() >= reflect.Uint && sv.Kind() <= reflect.Uint64:
		dst.SetInt(int64(sv.Uint()))
	case sv.Kind() == reflect.Float32 || sv.Kind() == reflect.Float64:
		dst.SetInt(int64(sv.Float() * float64(time.Second)))
	default:
		return errors.Errorf("cannot convert %v to time.Duration", sv.Type())
	}
	return nil
}

func convertMap(sv, dst reflect.Value) error {
	if sv.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}
	for _, k := range sv.MapKeys() {
		elem := reflect.New(dst.Type().Elem()).Elem()
		if err := convert(sv.MapIndex(k).Interface(), elem); err != nil {
			return errors.WithMessagef(err, "key %v", k.Interface())
		}
		key := reflect.New(dst.Type().Key()).Elem()
		if err := convert(k.Interface(), key); err != nil {
			return errors.WithMessagef(err, "key %v", k.Interface())
		}
		dst.SetMapIndex(key, elem)
	}
	return nil
}

func convertStruct(sv, dst reflect.Value) error {
	if sv.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
	}
	values := make(map[string]reflect.Value, sv.Len())
	for _, k := range sv.MapKeys() {
		values[strings.ToLower(toKey(k))] = sv.MapIndex(k)
	}

	rt := dst.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fv := dst.Field(i)
		if !fv.CanSet() {
			continue
		}
		name := fieldName(field)
		if name == "-" {
			continue
		}
		v, ok := values[strings.ToLower(name)]
		if !ok {
			continue
		}
		if err := convert(v.Interface(), fv); err != nil {
			return errors.WithMessagef(err, "field %s", name)
		}
	}
	return nil
}

func toKey(k reflect.Value) string {
	if k.Kind() == reflect.Interface {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	return toString(k)
}

// fieldName 依次取 cfg、json、yaml、toml、ini tag，都没有时使用字段名
func fieldName(field reflect.StructField) string {
	for _, tag := range []string{"cfg", "json", "yaml", "toml", "ini"} {
		if v := field.Tag.Get(tag); v != "" {
			if name := strings.Split(v, ",")[0]; name != "" {
				return name
			}
		}
	}
	return field.Name
}
