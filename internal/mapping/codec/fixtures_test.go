package codec

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/conduit-lang/docmap/internal/mapping/schema"
	"github.com/conduit-lang/docmap/internal/store"
)

type Address struct {
	Street string `doc:"street"`
	City   string `doc:"city"`
}

type Person struct {
	ID       primitive.ObjectID  `doc:",id"`
	Name     string              `doc:"name"`
	Age      int                 `doc:"age"`
	Born     time.Time           `doc:"born"`
	Nickname *string             `doc:"nickname"`
	Tags     []string            `doc:"tags"`
	Home     Address             `doc:"home"`
	Previous []Address           `doc:"previous"`
	Scores   map[string]int      `doc:"scores"`
	Roles    map[string]struct{} `doc:"roles"`
	Dims     [3]int              `doc:"dims"`
	Extra    any                 `doc:"extra"`
}

type Plain struct {
	_    struct{} `doc:"plains,nodiscriminator"`
	ID   string   `doc:",id"`
	Name string   `doc:"name"`
}

type Shape interface {
	Area() float64
}

type Circle struct {
	Radius float64 `doc:"radius"`
}

func (c *Circle) Area() float64 { return 3 * c.Radius * c.Radius }

type Square struct {
	Side float64 `doc:"side"`
}

func (s *Square) Area() float64 { return s.Side * s.Side }

type Drawing struct {
	ID     string  `doc:",id"`
	Main   Shape   `doc:"main"`
	Shapes []Shape `doc:"shapes"`
}

type Sticker interface {
	Label() string
}

type Star struct {
	ID     string `doc:",id"`
	Points int    `doc:"points"`
}

func (s *Star) Label() string { return "star" }

type Board struct {
	ID  string       `doc:",id"`
	Top Ref[Sticker] `doc:"top"`
}

type Holder struct {
	ID    string `doc:",id"`
	Extra any    `doc:"extra"`
}

type Thing struct {
	N int `doc:"n"`
}

type Bag struct {
	ID     string           `doc:",id"`
	Things map[string]Thing `doc:"things"`
	ByNum  map[int]*Thing   `doc:"by_num"`
	Owners map[int]*Author  `doc:"owners,ref"`
}

type Author struct {
	ID   string `doc:",id"`
	Name string `doc:"name"`
}

type Book struct {
	ID        string    `doc:",id"`
	Title     string    `doc:"title"`
	Author    *Author   `doc:"author,ref"`
	Editor    *Author   `doc:"editor,ref,idonly"`
	Reviewers []*Author `doc:"reviewers,ref,ignoremissing"`
}

type Node struct {
	ID    string `doc:",id"`
	Label string `doc:"label"`
	Next  *Node  `doc:"next,ref"`
}

type Post struct {
	ID     string                 `doc:",id"`
	Author Ref[Author]            `doc:"author"`
	Likes  []Ref[Author]          `doc:"likes"`
	Pinned map[string]Ref[Author] `doc:"pinned,ignoremissing"`
}

type Loop struct {
	Name string `doc:"name"`
	Self *Loop  `doc:"self"`
}

type Blob struct {
	ID   string         `doc:",id"`
	Meta map[string]int `doc:"meta,serialized"`
}

type Audited struct {
	ID     string `doc:",id"`
	Name   string `doc:"name"`
	loaded bool
}

func (a *Audited) PrePersist(ctx context.Context, doc bson.D) (bson.D, error) {
	return append(doc, bson.E{Key: "audited", Value: true}), nil
}

func (a *Audited) PostLoad(ctx context.Context, doc bson.D) error {
	a.loaded = true
	return nil
}

// countingStore records how often each key is fetched
type countingStore struct {
	store.Store
	mu      sync.Mutex
	fetches map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{Store: store.NewMemoryStore(), fetches: make(map[string]int)}
}

func (c *countingStore) Fetch(ctx context.Context, key store.Key) (bson.D, error) {
	c.mu.Lock()
	c.fetches[key.String()]++
	c.mu.Unlock()
	return c.Store.Fetch(ctx, key)
}

func (c *countingStore) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, count := range c.fetches {
		n += count
	}
	return n
}

func newTestMapper(t *testing.T, st store.Store, opts ...Option) *Mapper {
	t.Helper()
	registry := schema.NewRegistry(nil, schema.DefaultOptions(), nil)
	require.NoError(t, registry.Register(Circle{}, Square{}))
	return New(registry, st, opts...)
}

// save encodes entity and persists it into its collection
func save(t *testing.T, m *Mapper, st store.Store, entity any) {
	t.Helper()
	doc, err := m.Encode(context.Background(), entity)
	require.NoError(t, err)
	model, err := m.Registry().ModelOf(entity)
	require.NoError(t, err)
	require.NoError(t, st.Persist(context.Background(), model.Collection, doc))
}

func value(doc bson.D, key string) (any, bool) {
	return lookup(doc, key)
}
