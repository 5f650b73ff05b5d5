package value

import (
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hatlonely/qcore/qerror"
)

// ToAny 转换为 JSON 兼容的 Go 值，用于文档型后端和序列化
func ToAny(v Value) any {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(x)
	case Int:
		return int64(x)
	case Float:
		return float64(x)
	case String:
		return string(x)
	case Enum:
		return string(x)
	case Json:
		var out any
		if err := json.Unmarshal([]byte(x), &out); err != nil {
			return string(x)
		}
		return out
	case Bytes:
		return base64.StdEncoding.EncodeToString(x)
	case DateTime:
		return time.Time(x).Format(time.RFC3339Nano)
	case UUID:
		return uuid.UUID(x).String()
	case List:
		out := make([]any, 0, len(x))
		for _, e := range x {
			out = append(out, ToAny(e))
		}
		return out
	case Object:
		out := make(map[string]any, len(x))
		for _, p := range x {
			out[p.Key] = ToAny(p.Value)
		}
		return out
	}
	return nil
}

// FromAny 从通用 Go 值构造 Value，map 的键按字典序排列
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null{}
	case Value:
		return x
	case bool:
		return Bool(x)
	case int:
		return Int(x)
	case int8:
		return Int(x)
	case int16:
		return Int(x)
	case int32:
		return Int(x)
	case int64:
		return Int(x)
	case uint:
		return Int(x)
	case uint8:
		return Int(x)
	case uint16:
		return Int(x)
	case uint32:
		return Int(x)
	case uint64:
		return Int(x)
	case float32:
		return Float(x)
	case float64:
		return Float(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return Int(n)
		}
		f, _ := x.Float64()
		return Float(f)
	case string:
		return String(x)
	case []byte:
		return Bytes(x)
	case time.Time:
		return DateTime(x)
	case uuid.UUID:
		return UUID(x)
	case []any:
		out := make(List, 0, len(x))
		for _, e := range x {
			out = append(out, FromAny(e))
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Object, 0, len(x))
		for _, k := range keys {
			out = append(out, Pair{Key: k, Value: FromAny(x[k])})
		}
		return out
	}
	return String(fmt.Sprintf("%v", v))
}

// ToDriver 转换为 database/sql 可接受的参数
func ToDriver(v Value) driver.Value {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(x)
	case Int:
		return int64(x)
	case Float:
		return float64(x)
	case String:
		return string(x)
	case Enum:
		return string(x)
	case Json:
		return string(x)
	case Bytes:
		return []byte(x)
	case DateTime:
		return time.Time(x)
	case UUID:
		return uuid.UUID(x).String()
	case List, Object:
		data, _ := json.Marshal(ToAny(x))
		return string(data)
	}
	return nil
}

// FromDriver 将扫描得到的列值按字段类型转换为 Value
func FromDriver(raw any, t TypeIdentifier) (Value, error) {
	if raw == nil {
		return Null{}, nil
	}

	switch x := raw.(type) {
	case []byte:
		switch t {
		case TypeBytes:
			out := make([]byte, len(x))
			copy(out, x)
			return Bytes(out), nil
		case TypeUUID:
			if len(x) == 16 {
				u, err := uuid.FromBytes(x)
				if err != nil {
					return nil, qerror.NewConversion("Bytes", t.String())
				}
				return UUID(u), nil
			}
		}
		return FromDriver(string(x), t)
	case string:
		switch t {
		case TypeInt, TypeBigInt, TypeFloat, TypeDecimal, TypeBoolean, TypeDateTime, TypeUUID, TypeEnum:
			return Coerce(String(x), t)
		case TypeJson:
			return Json(x), nil
		case TypeBytes:
			return Bytes(x), nil
		}
		return String(x), nil
	case int64:
		switch t {
		case TypeBoolean:
			return Bool(x != 0), nil
		case TypeFloat, TypeDecimal:
			return Float(float64(x)), nil
		case TypeString:
			return String(strconv.FormatInt(x, 10)), nil
		}
		return Int(x), nil
	case float64:
		switch t {
		case TypeInt, TypeBigInt:
			if math.Trunc(x) == x {
				return Int(int64(x)), nil
			}
			return nil, qerror.NewConversion("Float", t.String())
		}
		return Float(x), nil
	case bool:
		return Bool(x), nil
	case time.Time:
		return DateTime(x), nil
	}

	return Coerce(FromAny(raw), t)
}
