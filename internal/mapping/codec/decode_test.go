package codec

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/conduit-lang/docmap/internal/mapping/hooks"
)

func TestDecode_Polymorphic(t *testing.T) {
	m := newTestMapper(t, nil)
	ctx := context.Background()
	original := &Drawing{
		ID:     "d1",
		Main:   &Circle{Radius: 1},
		Shapes: []Shape{&Square{Side: 2}, &Circle{Radius: 3}},
	}

	doc, err := m.Encode(ctx, original)
	require.NoError(t, err)

	decoded, err := DecodeAs[Drawing](ctx, m, doc)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
	assert.InDelta(t, 4.0, decoded.Shapes[0].Area(), 0.0001)
}

func TestDecode_InterfaceTarget(t *testing.T) {
	m := newTestMapper(t, nil)
	ctx := context.Background()

	var shape Shape
	err := m.Decode(ctx, bson.D{{Key: "_t", Value: "codec.Square"}, {Key: "side", Value: 3.0}}, &shape)
	require.NoError(t, err)
	assert.Equal(t, &Square{Side: 3}, shape)
}

func TestDecode_UnknownDiscriminator(t *testing.T) {
	m := newTestMapper(t, nil)
	ctx := context.Background()

	doc := bson.D{{Key: "main", Value: bson.D{{Key: "_t", Value: "codec.Triangle"}}}}
	err := m.Decode(ctx, doc, &Drawing{})
	assert.ErrorIs(t, err, ErrUnknownDiscriminator)

	doc = bson.D{{Key: "main", Value: bson.D{{Key: "radius", Value: 1.0}}}}
	err = m.Decode(ctx, doc, &Drawing{})
	assert.ErrorIs(t, err, ErrUnknownDiscriminator)
}

func TestDecode_ConcreteTargetIgnoresDiscriminator(t *testing.T) {
	m := newTestMapper(t, nil)

	var author Author
	err := m.Decode(context.Background(), bson.D{{Key: "_t", Value: "legacy.Writer"}, {Key: "name", Value: "Ann"}}, &author)
	require.NoError(t, err)
	assert.Equal(t, "Ann", author.Name)
}

func TestDecode_DynamicValues(t *testing.T) {
	m := newTestMapper(t, nil)

	doc := bson.D{{Key: "extra", Value: bson.D{{Key: "k", Value: "v"}}}}
	var p Person
	require.NoError(t, m.Decode(context.Background(), doc, &p))
	assert.Equal(t, bson.D{{Key: "k", Value: "v"}}, p.Extra)

	doc = bson.D{{Key: "extra", Value: bson.A{"a", int32(1)}}}
	require.NoError(t, m.Decode(context.Background(), doc, &p))
	assert.Equal(t, []any{"a", int32(1)}, p.Extra)
}

func TestDecode_UnknownKeysIgnored(t *testing.T) {
	m := newTestMapper(t, nil)

	var author Author
	err := m.Decode(context.Background(), bson.D{{Key: "name", Value: "Ann"}, {Key: "retired", Value: true}}, &author)
	require.NoError(t, err)
	assert.Equal(t, Author{Name: "Ann"}, author)
}

func TestDecode_WrongShape(t *testing.T) {
	m := newTestMapper(t, nil)

	err := m.Decode(context.Background(), bson.D{{Key: "home", Value: "not a document"}}, &Person{})
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestDecode_InvalidTarget(t *testing.T) {
	m := newTestMapper(t, nil)
	ctx := context.Background()

	assert.Error(t, m.Decode(ctx, bson.D{}, Author{}))
	assert.Error(t, m.Decode(ctx, bson.D{}, nil))

	var n int
	assert.Error(t, m.Decode(ctx, bson.D{}, &n))
}

func TestDecode_PointerTarget(t *testing.T) {
	m := newTestMapper(t, nil)

	var author *Author
	require.NoError(t, m.Decode(context.Background(), bson.D{{Key: "name", Value: "Ann"}}, &author))
	require.NotNil(t, author)
	assert.Equal(t, "Ann", author.Name)
}

type recordingContainers struct {
	DefaultContainers
	slices []reflect.Type
	maps   []reflect.Type
}

func (r *recordingContainers) MakeSlice(t reflect.Type, n int) reflect.Value {
	r.slices = append(r.slices, t)
	return r.DefaultContainers.MakeSlice(t, n)
}

func (r *recordingContainers) MakeMap(t reflect.Type, n int) reflect.Value {
	r.maps = append(r.maps, t)
	return r.DefaultContainers.MakeMap(t, n)
}

func TestDecode_ContainerFactory(t *testing.T) {
	factory := &recordingContainers{}
	m := newTestMapper(t, nil, WithContainerFactory(factory))
	ctx := context.Background()

	doc, err := m.Encode(ctx, samplePerson())
	require.NoError(t, err)
	_, err = DecodeAs[Person](ctx, m, doc)
	require.NoError(t, err)

	assert.Contains(t, factory.slices, reflect.TypeOf([]string{}))
	assert.Contains(t, factory.maps, reflect.TypeOf(map[string]int{}))
	assert.Contains(t, factory.maps, reflect.TypeOf(map[string]struct{}{}))
}

func TestLifecycle_EncodeAndDecode(t *testing.T) {
	m := newTestMapper(t, nil)
	ctx := context.Background()

	doc, err := m.Encode(ctx, &Audited{ID: "a1", Name: "audit"})
	require.NoError(t, err)

	audited, ok := value(doc, "audited")
	require.True(t, ok)
	assert.Equal(t, true, audited)

	decoded, err := DecodeAs[Audited](ctx, m, doc)
	require.NoError(t, err)
	assert.True(t, decoded.loaded)
	assert.Equal(t, "audit", decoded.Name)
}

func TestLifecycle_InterceptorSeesEveryEvent(t *testing.T) {
	var events []string
	interceptor := hooks.InterceptorFunc(func(ctx context.Context, event hooks.Event, entity any, doc bson.D) (bson.D, error) {
		events = append(events, event.String())
		if event == hooks.PreSave {
			return append(doc, bson.E{Key: "version", Value: int32(1)}), nil
		}
		return nil, nil
	})
	m := newTestMapper(t, nil, WithInterceptor(interceptor))
	ctx := context.Background()

	doc, err := m.Encode(ctx, &Author{ID: "a1", Name: "Ann"})
	require.NoError(t, err)
	version, _ := value(doc, "version")
	assert.Equal(t, int32(1), version)

	_, err = DecodeAs[Author](ctx, m, doc)
	require.NoError(t, err)

	assert.Equal(t, []string{"pre_persist", "pre_save", "pre_load", "post_load"}, events)
}

func TestLifecycle_HookErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	interceptor := hooks.InterceptorFunc(func(ctx context.Context, event hooks.Event, entity any, doc bson.D) (bson.D, error) {
		return nil, boom
	})
	m := newTestMapper(t, nil, WithInterceptor(interceptor))

	_, err := m.Encode(context.Background(), &Author{ID: "a1"})
	assert.ErrorIs(t, err, boom)
}

func TestLifecycle_PanicBecomesAccessError(t *testing.T) {
	interceptor := hooks.InterceptorFunc(func(ctx context.Context, event hooks.Event, entity any, doc bson.D) (bson.D, error) {
		panic("reflect: call of reflect.Value.Set on zero Value")
	})
	m := newTestMapper(t, nil, WithInterceptor(interceptor))

	_, err := m.Encode(context.Background(), &Author{ID: "a1"})
	assert.ErrorIs(t, err, ErrAccess)
}
