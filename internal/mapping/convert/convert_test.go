package convert

import (
	"errors"
	"math"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Level int

type Status string

func TestRegistry_BuiltinRoundTrip(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()
	oid := primitive.NewObjectID()
	ip := net.ParseIP("10.0.0.1")

	tests := []struct {
		name  string
		value any
		wire  any
	}{
		{"int", 42, int64(42)},
		{"int8", int8(-3), int32(-3)},
		{"named int", Level(2), int64(2)},
		{"uint16", uint16(7), int64(7)},
		{"float32", float32(1.5), 1.5},
		{"bool", true, true},
		{"named string", Status("active"), "active"},
		{"bytes", []byte("raw"), primitive.Binary{Subtype: 0x00, Data: []byte("raw")}},
		{"object id", oid, oid},
		{"uuid", id, primitive.Binary{Subtype: 0x04, Data: id[:]}},
		{"decimal", primitive.NewDecimal128(1, 2), primitive.NewDecimal128(1, 2)},
		{"text marshaler", ip, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := r.ToWire(reflect.ValueOf(tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.wire, raw)

			back, err := r.FromWire(raw, reflect.TypeOf(tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.value, back.Interface())
		})
	}
}

func TestRegistry_TimeKeepsMilliseconds(t *testing.T) {
	r := NewRegistry()
	ts := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)

	raw, err := r.ToWire(reflect.ValueOf(ts))
	require.NoError(t, err)
	assert.IsType(t, primitive.DateTime(0), raw)

	back, err := r.FromWire(raw, reflect.TypeOf(ts))
	require.NoError(t, err)
	assert.Equal(t, ts.Truncate(time.Millisecond), back.Interface())
}

func TestRegistry_FromWireLenient(t *testing.T) {
	r := NewRegistry()

	v, err := r.FromWire(int32(5), reflect.TypeOf(int64(0)))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Interface())

	v, err = r.FromWire(float64(3), reflect.TypeOf(0))
	require.NoError(t, err)
	assert.Equal(t, 3, v.Interface())

	oid := primitive.NewObjectID()
	v, err = r.FromWire(oid.Hex(), reflect.TypeOf(primitive.ObjectID{}))
	require.NoError(t, err)
	assert.Equal(t, oid, v.Interface())

	id := uuid.New()
	v, err = r.FromWire(id.String(), reflect.TypeOf(uuid.UUID{}))
	require.NoError(t, err)
	assert.Equal(t, id, v.Interface())

	v, err = r.FromWire(nil, reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, "", v.Interface())
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()

	_, err := r.FromWire(int64(300), reflect.TypeOf(int8(0)))
	assert.True(t, IsConversion(err))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = r.ToWire(reflect.ValueOf(uint64(math.MaxUint64)))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = r.FromWire("nope", reflect.TypeOf(true))
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, reflect.TypeOf(true), convErr.Type)

	_, err = r.ToWire(reflect.ValueOf(struct{ A int }{}))
	assert.ErrorIs(t, err, ErrNoConverter)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	durationType := reflect.TypeOf(time.Duration(0))

	r.Register(durationType, Funcs{
		To: func(v reflect.Value) (any, error) {
			return v.Interface().(time.Duration).String(), nil
		},
		From: func(raw any, t reflect.Type) (reflect.Value, error) {
			s, ok := raw.(string)
			if !ok {
				return reflect.Value{}, errors.New("expected string")
			}
			d, err := time.ParseDuration(s)
			return reflect.ValueOf(d), err
		},
	})

	raw, err := r.ToWire(reflect.ValueOf(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "1m30s", raw)

	back, err := r.FromWire(raw, durationType)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, back.Interface())
}

func TestKeys(t *testing.T) {
	assert.True(t, StringConvertible(reflect.TypeOf(0)))
	assert.True(t, StringConvertible(reflect.TypeOf(Status(""))))
	assert.True(t, StringConvertible(reflect.TypeOf(uuid.UUID{})))
	assert.False(t, StringConvertible(reflect.TypeOf(struct{}{})))
	assert.False(t, StringConvertible(reflect.TypeOf([]string{})))

	s, err := KeyString(reflect.ValueOf(uint8(12)))
	require.NoError(t, err)
	assert.Equal(t, "12", s)

	k, err := ParseKey("12", reflect.TypeOf(uint8(0)))
	require.NoError(t, err)
	assert.Equal(t, uint8(12), k.Interface())

	_, err = ParseKey("x", reflect.TypeOf(0))
	assert.True(t, IsConversion(err))

	id := uuid.New()
	s, err = KeyString(reflect.ValueOf(id))
	require.NoError(t, err)
	k, err = ParseKey(s, reflect.TypeOf(uuid.UUID{}))
	require.NoError(t, err)
	assert.Equal(t, id, k.Interface())
}
