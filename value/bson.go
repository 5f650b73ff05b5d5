package value

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToBSON 转换为 mongo-driver 可以编码的值
//
// objectID 为 true 时，24 位十六进制字符串按 ObjectID 编码
func ToBSON(v Value, objectID bool) any {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case String:
		if objectID {
			if oid, err := primitive.ObjectIDFromHex(string(x)); err == nil {
				return oid
			}
		}
		return string(x)
	case Bytes:
		return primitive.Binary{Subtype: 0x00, Data: []byte(x)}
	case UUID:
		u := uuid.UUID(x)
		return primitive.Binary{Subtype: 0x04, Data: u[:]}
	case DateTime:
		return primitive.NewDateTimeFromTime(time.Time(x))
	case List:
		out := bson.A{}
		for _, e := range x {
			out = append(out, ToBSON(e, objectID))
		}
		return out
	case Object:
		out := bson.D{}
		for _, p := range x {
			out = append(out, bson.E{Key: p.Key, Value: ToBSON(p.Value, false)})
		}
		return out
	}
	return ToAny(v)
}

// FromBSON 将解码出的 BSON 值转换为 Value，再按字段类型转换
//
// t 为 TypeUnsupported 时不做类型转换，用于复合类型内部的值
func FromBSON(raw any, t TypeIdentifier) (Value, error) {
	coerce := func(v Value) (Value, error) {
		if t == TypeUnsupported {
			return v, nil
		}
		return Coerce(v, t)
	}

	switch x := raw.(type) {
	case nil:
		return Null{}, nil
	case primitive.ObjectID:
		return coerce(String(x.Hex()))
	case primitive.DateTime:
		return coerce(DateTime(x.Time().UTC()))
	case primitive.Binary:
		if x.Subtype == 0x04 && len(x.Data) == 16 {
			u, err := uuid.FromBytes(x.Data)
			if err == nil {
				return coerce(UUID(u))
			}
		}
		return coerce(Bytes(x.Data))
	case int32:
		return coerce(Int(x))
	case primitive.A:
		out := make(List, 0, len(x))
		for _, e := range x {
			c, err := FromBSON(e, t)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	case primitive.D:
		out := make(Object, 0, len(x))
		for _, e := range x {
			c, err := FromBSON(e.Value, TypeUnsupported)
			if err != nil {
				return nil, err
			}
			out = append(out, Pair{Key: e.Key, Value: c})
		}
		return out, nil
	}
	if t == TypeUnsupported {
		return FromAny(raw), nil
	}
	return FromDriver(raw, t)
}
