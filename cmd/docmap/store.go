package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver "pgx"
	_ "github.com/lib/pq"              // PostgreSQL driver "postgres"
	_ "github.com/mattn/go-sqlite3"    // SQLite driver "sqlite3"

	"github.com/conduit-lang/docmap/internal/config"
	"github.com/conduit-lang/docmap/internal/datastore"
	"github.com/conduit-lang/docmap/internal/logging"
	"github.com/conduit-lang/docmap/internal/store"
)

const (
	idTypeString   = "string"
	idTypeObjectID = "objectid"
	idTypeInt      = "int"
	idTypeUUID     = "uuid"
)

// session is an opened store plus the resources backing it
type session struct {
	cfg       *config.Config
	store     store.Store
	datastore *datastore.Datastore
	logger    *zap.Logger
	close     func() error
}

func openSession(ctx context.Context, opts *options) (*session, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger, close: func() error { return nil }}

	switch cfg.Store.Driver {
	case config.DriverMemory:
		s.store = store.NewMemoryStore()

	case config.DriverRedis:
		rs, err := store.NewRedisStore(cfg.RedisOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Store.Redis.Addr, err)
		}
		s.store = rs
		s.close = rs.Close

	case config.DriverPostgres, config.DriverSQLite:
		db, err := sql.Open(cfg.SQLDriverName(), cfg.Store.SQL.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		ss := store.NewSQLStore(db, cfg.Store.SQL.Table, cfg.SQLDialect())
		if err := ss.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create documents table: %w", err)
		}
		s.store = ss
		s.close = db.Close

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	s.datastore = datastore.New(cfg.NewMapper(s.store, logger), s.store, logger)

	logger.Debug("opened store", zap.String("driver", cfg.Store.Driver))
	return s, nil
}

// parseID converts a command-line identity into its wire form
func parseID(raw, idType string) (any, error) {
	switch idType {
	case idTypeString, "":
		return raw, nil
	case idTypeObjectID:
		oid, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid object id %q: %w", raw, err)
		}
		return oid, nil
	case idTypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer id %q: %w", raw, err)
		}
		return n, nil
	case idTypeUUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid %q: %w", raw, err)
		}
		return primitive.Binary{Subtype: 0x04, Data: id[:]}, nil
	default:
		return nil, fmt.Errorf("unknown id type %q (want string, objectid, int or uuid)", idType)
	}
}
