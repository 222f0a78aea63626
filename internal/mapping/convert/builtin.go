package convert

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type intConverter struct{}

func (intConverter) ToWire(v reflect.Value) (any, error) {
	if v.Kind() == reflect.Int64 || v.Kind() == reflect.Int {
		return v.Int(), nil
	}
	return int32(v.Int()), nil
}

func (intConverter) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	n, err := toInt64(raw)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(t).Elem()
	if out.OverflowInt(n) {
		return reflect.Value{}, ErrOverflow
	}
	out.SetInt(n)
	return out, nil
}

type uintConverter struct{}

func (uintConverter) ToWire(v reflect.Value) (any, error) {
	u := v.Uint()
	if u > math.MaxInt64 {
		return nil, ErrOverflow
	}
	return int64(u), nil
}

func (uintConverter) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	n, err := toInt64(raw)
	if err != nil {
		return reflect.Value{}, err
	}
	if n < 0 {
		return reflect.Value{}, ErrOverflow
	}
	out := reflect.New(t).Elem()
	if out.OverflowUint(uint64(n)) {
		return reflect.Value{}, ErrOverflow
	}
	out.SetUint(uint64(n))
	return out, nil
}

type floatConverter struct{}

func (floatConverter) ToWire(v reflect.Value) (any, error) {
	return v.Float(), nil
}

func (floatConverter) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	var f float64
	switch n := raw.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case int:
		f = float64(n)
	default:
		return reflect.Value{}, mismatch(raw, t)
	}
	out := reflect.New(t).Elem()
	if out.OverflowFloat(f) {
		return reflect.Value{}, ErrOverflow
	}
	out.SetFloat(f)
	return out, nil
}

type boolConverter struct{}

func (boolConverter) ToWire(v reflect.Value) (any, error) {
	return v.Bool(), nil
}

func (boolConverter) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	b, ok := raw.(bool)
	if !ok {
		return reflect.Value{}, mismatch(raw, t)
	}
	return reflect.ValueOf(b).Convert(t), nil
}

type stringConverter struct{}

func (stringConverter) ToWire(v reflect.Value) (any, error) {
	return v.String(), nil
}

func (stringConverter) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	switch s := raw.(type) {
	case string:
		return reflect.ValueOf(s).Convert(t), nil
	case primitive.Symbol:
		return reflect.ValueOf(string(s)).Convert(t), nil
	default:
		return reflect.Value{}, mismatch(raw, t)
	}
}

type bytesConverter struct{}

func (bytesConverter) ToWire(v reflect.Value) (any, error) {
	if v.IsNil() {
		return nil, nil
	}
	data := make([]byte, v.Len())
	copy(data, v.Bytes())
	return primitive.Binary{Data: data}, nil
}

func (bytesConverter) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	switch b := raw.(type) {
	case primitive.Binary:
		return reflect.ValueOf(append([]byte(nil), b.Data...)).Convert(t), nil
	case []byte:
		return reflect.ValueOf(append([]byte(nil), b...)).Convert(t), nil
	default:
		return reflect.Value{}, mismatch(raw, t)
	}
}

// timeConverter stores times as BSON datetimes, which keep millisecond precision in UTC.
type timeConverter struct{}

func (timeConverter) ToWire(v reflect.Value) (any, error) {
	return primitive.NewDateTimeFromTime(v.Interface().(time.Time)), nil
}

func (timeConverter) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	switch d := raw.(type) {
	case primitive.DateTime:
		return reflect.ValueOf(d.Time().UTC()), nil
	case time.Time:
		return reflect.ValueOf(d), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, d)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(parsed), nil
	default:
		return reflect.Value{}, mismatch(raw, t)
	}
}

type objectIDConverter struct{}

func (objectIDConverter) ToWire(v reflect.Value) (any, error) {
	return v.Interface().(primitive.ObjectID), nil
}

func (objectIDConverter) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	switch id := raw.(type) {
	case primitive.ObjectID:
		return reflect.ValueOf(id), nil
	case string:
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(oid), nil
	default:
		return reflect.Value{}, mismatch(raw, t)
	}
}

// uuidConverter writes UUIDs as binary subtype 4 and accepts their string form on read.
type uuidConverter struct{}

func (uuidConverter) ToWire(v reflect.Value) (any, error) {
	id := v.Interface().(uuid.UUID)
	return primitive.Binary{Subtype: 0x04, Data: id[:]}, nil
}

func (uuidConverter) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	switch b := raw.(type) {
	case primitive.Binary:
		id, err := uuid.FromBytes(b.Data)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(id), nil
	case string:
		id, err := uuid.Parse(b)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(id), nil
	default:
		return reflect.Value{}, mismatch(raw, t)
	}
}

// passthroughConverter serves the bson primitive types, which are already wire values.
type passthroughConverter struct{}

func (passthroughConverter) ToWire(v reflect.Value) (any, error) {
	return v.Interface(), nil
}

func (passthroughConverter) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	rv := reflect.ValueOf(raw)
	if !rv.Type().AssignableTo(t) {
		return reflect.Value{}, mismatch(raw, t)
	}
	return rv, nil
}

type textConverter struct{}

func (textConverter) ToWire(v reflect.Value) (any, error) {
	text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return nil, err
	}
	return string(text), nil
}

func (textConverter) FromWire(raw any, t reflect.Type) (reflect.Value, error) {
	s, ok := raw.(string)
	if !ok {
		return reflect.Value{}, mismatch(raw, t)
	}
	out := reflect.New(t)
	if err := out.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
		return reflect.Value{}, err
	}
	return out.Elem(), nil
}

func toInt64(raw any) (int64, error) {
	switch n := raw.(type) {
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, ErrOverflow
		}
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to an integer", raw)
	}
}
