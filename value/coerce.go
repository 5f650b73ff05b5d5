package value

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hatlonely/qcore/qerror"
)

// TypeIdentifier 字段声明的标量类型
type TypeIdentifier int

const (
	TypeUnsupported TypeIdentifier = iota
	TypeString
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDecimal
	TypeBoolean
	TypeDateTime
	TypeJson
	TypeBytes
	TypeUUID
	TypeEnum
)

var typeNames = map[TypeIdentifier]string{
	TypeUnsupported: "Unsupported",
	TypeString:      "String",
	TypeInt:         "Int",
	TypeBigInt:      "BigInt",
	TypeFloat:       "Float",
	TypeDecimal:     "Decimal",
	TypeBoolean:     "Boolean",
	TypeDateTime:    "DateTime",
	TypeJson:        "Json",
	TypeBytes:       "Bytes",
	TypeUUID:        "UUID",
	TypeEnum:        "Enum",
}

func (t TypeIdentifier) String() string {
	return typeNames[t]
}

// ParseTypeIdentifier 解析 schema 定义中的类型名，大小写不敏感
func ParseTypeIdentifier(name string) (TypeIdentifier, bool) {
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t, true
		}
	}
	switch strings.ToLower(name) {
	case "bool":
		return TypeBoolean, true
	case "int64", "integer":
		return TypeInt, true
	case "float64", "double":
		return TypeFloat, true
	case "time", "timestamp":
		return TypeDateTime, true
	}
	return TypeUnsupported, false
}

// TypeOf 返回值本身对应的类型标识
func TypeOf(v Value) TypeIdentifier {
	switch v.(type) {
	case Bool:
		return TypeBoolean
	case Int:
		return TypeInt
	case Float:
		return TypeFloat
	case String:
		return TypeString
	case Bytes:
		return TypeBytes
	case DateTime:
		return TypeDateTime
	case UUID:
		return TypeUUID
	case Enum:
		return TypeEnum
	case Json:
		return TypeJson
	}
	return TypeUnsupported
}

// Coerce 将值转换为字段声明的类型
//
// Null 原样返回；List 按元素逐个转换；已是目标类型的值原样返回
func Coerce(v Value, t TypeIdentifier) (Value, error) {
	if IsNull(v) {
		return Null{}, nil
	}
	if l, ok := v.(List); ok {
		out := make(List, 0, len(l))
		for _, e := range l {
			c, err := Coerce(e, t)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	}

	fail := func() (Value, error) {
		return nil, qerror.NewConversion(TypeName(v), t.String())
	}

	switch t {
	case TypeString:
		switch x := v.(type) {
		case String:
			return x, nil
		case Enum:
			return String(x), nil
		case UUID:
			return String(uuid.UUID(x).String()), nil
		}
		return fail()

	case TypeInt, TypeBigInt:
		switch x := v.(type) {
		case Int:
			return x, nil
		case Float:
			f := float64(x)
			// float64(math.MaxInt64) 等于 2^63，上界需要用 >=
			if math.Trunc(f) != f || f >= 1<<63 || f < -(1<<63) {
				return fail()
			}
			return Int(int64(f)), nil
		case Bool:
			if x {
				return Int(1), nil
			}
			return Int(0), nil
		case String:
			n, err := strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
			if err != nil {
				return fail()
			}
			return Int(n), nil
		}
		return fail()

	case TypeFloat, TypeDecimal:
		switch x := v.(type) {
		case Float:
			return x, nil
		case Int:
			return Float(float64(x)), nil
		case String:
			f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
			if err != nil {
				return fail()
			}
			return Float(f), nil
		}
		return fail()

	case TypeBoolean:
		switch x := v.(type) {
		case Bool:
			return x, nil
		case Int:
			if x == 0 || x == 1 {
				return Bool(x == 1), nil
			}
		case String:
			b, err := strconv.ParseBool(string(x))
			if err == nil {
				return Bool(b), nil
			}
		}
		return fail()

	case TypeDateTime:
		switch x := v.(type) {
		case DateTime:
			return x, nil
		case String:
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02"} {
				if ts, err := time.Parse(layout, string(x)); err == nil {
					return DateTime(ts), nil
				}
			}
		case Int:
			return DateTime(time.UnixMilli(int64(x)).UTC()), nil
		}
		return fail()

	case TypeUUID:
		switch x := v.(type) {
		case UUID:
			return x, nil
		case String:
			u, err := uuid.Parse(string(x))
			if err != nil {
				return fail()
			}
			return UUID(u), nil
		case Bytes:
			u, err := uuid.FromBytes(x)
			if err != nil {
				return fail()
			}
			return UUID(u), nil
		}
		return fail()

	case TypeEnum:
		switch x := v.(type) {
		case Enum:
			return x, nil
		case String:
			return Enum(x), nil
		}
		return fail()

	case TypeBytes:
		switch x := v.(type) {
		case Bytes:
			return x, nil
		case String:
			b, err := base64.StdEncoding.DecodeString(string(x))
			if err != nil {
				return fail()
			}
			return Bytes(b), nil
		}
		return fail()

	case TypeJson:
		switch x := v.(type) {
		case Json:
			return x, nil
		case String:
			if json.Valid([]byte(x)) {
				return Json(x), nil
			}
		}
		data, err := json.Marshal(ToAny(v))
		if err != nil {
			return fail()
		}
		return Json(data), nil
	}

	return fail()
}
