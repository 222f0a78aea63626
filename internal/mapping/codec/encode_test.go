package codec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/conduit-lang/docmap/internal/mapping/convert"
)

func samplePerson() *Person {
	nick := "Al"
	return &Person{
		ID:       primitive.NewObjectID(),
		Name:     "Alice",
		Age:      42,
		Born:     time.Date(1982, 3, 4, 5, 6, 7, 0, time.UTC),
		Nickname: &nick,
		Tags:     []string{"admin", "ops"},
		Home:     Address{Street: "1 Main St", City: "Springfield"},
		Previous: []Address{{Street: "2 Elm St", City: "Shelbyville"}},
		Scores:   map[string]int{"math": 90, "art": 75},
		Roles:    map[string]struct{}{"owner": {}, "editor": {}},
		Dims:     [3]int{1, 2, 3},
		Extra:    "anything",
	}
}

func TestMapper_RoundTrip(t *testing.T) {
	m := newTestMapper(t, nil)
	ctx := context.Background()
	original := samplePerson()

	doc, err := m.Encode(ctx, original)
	require.NoError(t, err)

	decoded, err := DecodeAs[Person](ctx, m, doc)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestMapper_Encode_DocumentShape(t *testing.T) {
	m := newTestMapper(t, nil)
	p := samplePerson()

	doc, err := m.Encode(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, DefaultDiscriminatorKey, doc[0].Key)
	assert.Equal(t, "codec.Person", doc[0].Value)

	id, ok := value(doc, "_id")
	require.True(t, ok)
	assert.Equal(t, p.ID, id)

	age, _ := value(doc, "age")
	assert.Equal(t, int64(42), age)

	home, _ := value(doc, "home")
	assert.Equal(t, bson.D{{Key: "street", Value: "1 Main St"}, {Key: "city", Value: "Springfield"}}, home)

	scores, _ := value(doc, "scores")
	assert.Equal(t, bson.D{{Key: "art", Value: int64(75)}, {Key: "math", Value: int64(90)}}, scores)

	roles, _ := value(doc, "roles")
	assert.Equal(t, bson.A{"editor", "owner"}, roles)
}

func TestMapper_Encode_NoDiscriminator(t *testing.T) {
	m := newTestMapper(t, nil)

	doc, err := m.Encode(context.Background(), Plain{ID: "p1", Name: "plain"})
	require.NoError(t, err)

	assert.Equal(t, bson.D{{Key: "_id", Value: "p1"}, {Key: "name", Value: "plain"}}, doc)
}

func TestMapper_Encode_ZeroIdentityOmitted(t *testing.T) {
	m := newTestMapper(t, nil)

	doc, err := m.Encode(context.Background(), &Plain{Name: "new"})
	require.NoError(t, err)

	_, ok := value(doc, "_id")
	assert.False(t, ok)
}

func TestMapper_Encode_EmptyAndNullPolicy(t *testing.T) {
	ctx := context.Background()
	p := &Person{Name: "Bob", Tags: []string{}}

	t.Run("defaults omit", func(t *testing.T) {
		doc, err := newTestMapper(t, nil).Encode(ctx, p)
		require.NoError(t, err)

		_, hasTags := value(doc, "tags")
		_, hasNick := value(doc, "nickname")
		_, hasScores := value(doc, "scores")
		assert.False(t, hasTags)
		assert.False(t, hasNick)
		assert.False(t, hasScores)
	})

	t.Run("store empties", func(t *testing.T) {
		m := newTestMapper(t, nil, WithOptions(Options{StoreEmpties: true}))
		doc, err := m.Encode(ctx, p)
		require.NoError(t, err)

		tags, ok := value(doc, "tags")
		require.True(t, ok)
		assert.Equal(t, bson.A{}, tags)

		_, hasNick := value(doc, "nickname")
		assert.False(t, hasNick)
	})

	t.Run("store nulls", func(t *testing.T) {
		m := newTestMapper(t, nil, WithOptions(Options{StoreNulls: true}))
		doc, err := m.Encode(ctx, p)
		require.NoError(t, err)

		nick, ok := value(doc, "nickname")
		require.True(t, ok)
		assert.Nil(t, nick)
	})
}

func TestMapper_Encode_DiscriminatorOnlyWhenNeeded(t *testing.T) {
	m := newTestMapper(t, nil)

	doc, err := m.Encode(context.Background(), &Drawing{
		ID:     "d1",
		Main:   &Circle{Radius: 1},
		Shapes: []Shape{&Square{Side: 2}, &Circle{Radius: 3}},
	})
	require.NoError(t, err)

	main, _ := value(doc, "main")
	assert.Equal(t, bson.D{{Key: "_t", Value: "codec.Circle"}, {Key: "radius", Value: 1.0}}, main)

	shapes, _ := value(doc, "shapes")
	require.Len(t, shapes, 2)
	assert.Equal(t, bson.D{{Key: "_t", Value: "codec.Square"}, {Key: "side", Value: 2.0}}, shapes.(bson.A)[0])

	person, err := m.Encode(context.Background(), samplePerson())
	require.NoError(t, err)
	previous, _ := value(person, "previous")
	_, tagged := value(previous.(bson.A)[0].(bson.D), "_t")
	assert.False(t, tagged)
}

func TestMapper_Encode_CustomDiscriminatorKey(t *testing.T) {
	m := newTestMapper(t, nil, WithOptions(Options{DiscriminatorKey: "className"}))

	doc, err := m.Encode(context.Background(), &Author{ID: "a1", Name: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "className", doc[0].Key)
}

func TestMapper_Encode_EmbeddedCycle(t *testing.T) {
	m := newTestMapper(t, nil)
	loop := &Loop{Name: "ouroboros"}
	loop.Self = loop

	_, err := m.Encode(context.Background(), loop)
	assert.ErrorIs(t, err, ErrEmbeddedCycle)
}

func TestMapper_Encode_NonStruct(t *testing.T) {
	m := newTestMapper(t, nil)

	_, err := m.Encode(context.Background(), 42)
	assert.Error(t, err)

	_, err = m.Encode(context.Background(), nil)
	assert.Error(t, err)
}

func TestMapper_Serialized(t *testing.T) {
	m := newTestMapper(t, nil)
	ctx := context.Background()
	original := &Blob{ID: "b1", Meta: map[string]int{"a": 1, "b": 2}}

	doc, err := m.Encode(ctx, original)
	require.NoError(t, err)

	meta, _ := value(doc, "meta")
	assert.IsType(t, primitive.Binary{}, meta)

	decoded, err := DecodeAs[Blob](ctx, m, doc)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestMapper_KeyOf(t *testing.T) {
	m := newTestMapper(t, nil)

	key, err := m.KeyOf(&Author{ID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "author/a1", key.String())

	_, err = m.KeyOf(&Author{})
	assert.ErrorIs(t, err, ErrNullIdentity)

	_, err = m.KeyOf(&Address{})
	assert.ErrorIs(t, err, ErrNoIdentityField)
}

func TestMapper_Decode_ArrayOverflow(t *testing.T) {
	m := newTestMapper(t, nil)

	doc := bson.D{{Key: "dims", Value: bson.A{int64(1), int64(2), int64(3), int64(4)}}}
	err := m.Decode(context.Background(), doc, &Person{})
	assert.True(t, convert.IsConversion(err))
}

func TestMapper_RoundTrip_DynamicStructValue(t *testing.T) {
	m := newTestMapper(t, nil)
	ctx := context.Background()
	original := &Holder{ID: "h1", Extra: Address{Street: "s", City: "c"}}

	doc, err := m.Encode(ctx, original)
	require.NoError(t, err)

	extra, _ := value(doc, "extra")
	assert.Equal(t, bson.D{
		{Key: "_t", Value: "codec.Address"},
		{Key: "street", Value: "s"},
		{Key: "city", Value: "c"},
	}, extra)

	decoded, err := DecodeAs[Holder](ctx, m, doc)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestMapper_RoundTrip_Maps(t *testing.T) {
	m := newTestMapper(t, nil)
	ctx := context.Background()
	original := &Bag{
		ID:     "bag",
		Things: map[string]Thing{"a": {N: 1}, "b": {N: 2}},
		ByNum:  map[int]*Thing{1: {N: 10}, 20: {N: 200}},
	}

	doc, err := m.Encode(ctx, original)
	require.NoError(t, err)

	things, _ := value(doc, "things")
	assert.Equal(t, bson.D{
		{Key: "a", Value: bson.D{{Key: "n", Value: int64(1)}}},
		{Key: "b", Value: bson.D{{Key: "n", Value: int64(2)}}},
	}, things)

	byNum, _ := value(doc, "by_num")
	require.IsType(t, bson.D{}, byNum)
	assert.Equal(t, "1", byNum.(bson.D)[0].Key)
	assert.Equal(t, "20", byNum.(bson.D)[1].Key)

	decoded, err := DecodeAs[Bag](ctx, m, doc)
	require.NoError(t, err)
	assert.Equal(t, original.Things, decoded.Things)
	assert.Equal(t, original.ByNum, decoded.ByNum)
	assert.Empty(t, decoded.Owners)
}
