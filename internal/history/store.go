// Package history persists completed materializations to PostgreSQL. The
// store is optional; when no database host is configured the service runs
// without it and nothing is recorded.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/lukasz26671/webaudioprov/internal/item"
	"github.com/lukasz26671/webaudioprov/pkg/logger"
	"github.com/pressly/goose/v3"
	sqldblogger "github.com/simukti/sqldb-logger"
)

const (
	sqlDialect          = "postgres"
	sqlConnectionString = "host=%s user=%s password=%s dbname=%s port=%s sslmode=disable"
)

var (
	//go:embed migrations/*.sql
	migrations embed.FS

	log = logger.Get("History")
)

// Config is the database portion of the service configuration. An empty
// host disables the history store entirely.
type Config struct {
	Host     string `env:"DB_HOST"`
	Port     string `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER" env-default:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" env-default:"webaudioprov"`
}

func (config Config) Enabled() bool {
	return config.Host != ""
}

// Entry is one recorded materialization.
type Entry struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ItemID       string    `db:"item_id" json:"item_id"`
	Title        string    `db:"title" json:"title"`
	Channel      string    `db:"channel" json:"channel"`
	Kind         string    `db:"kind" json:"kind"`
	CacheKey     string    `db:"cache_key" json:"cache_key"`
	DurationSecs float64   `db:"duration_secs" json:"duration_secs"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Store struct {
	rawDb *sql.DB
	db    *sqlx.DB
}

// Connect opens the database connection, retrying while the server comes
// up, and then applies any pending migrations.
func Connect(config Config) (*Store, error) {
	dsn := fmt.Sprintf(sqlConnectionString, config.Host, config.User, config.Password, config.Name, config.Port)
	rawDb, err := sql.Open(sqlDialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %s", err.Error())
	}

	rawDb = sqldblogger.OpenDriver(dsn, rawDb.Driver(), &sqlLogger{log})

	attempt := 1
	for {
		err := rawDb.Ping()
		if err != nil {
			if attempt >= 5 {
				log.Emit(logger.ERROR, "All attempts FAILED!\n")
				return nil, err
			}

			log.Emit(logger.WARNING, "Attempt (%v/5) failed... Retrying in 3s\n", attempt)
			attempt++
			time.Sleep(time.Second * 3)
			continue
		}

		break
	}

	store := &Store{rawDb: rawDb, db: sqlx.NewDb(rawDb, sqlDialect)}
	if err := store.executeMigrations(); err != nil {
		return nil, err
	}

	log.Emit(logger.SUCCESS, "Database connection complete!\n")
	return store, nil
}

// executeMigrations uses the comp-time embedded SQL migrations (found in the
// 'migrations' dir in this package) and runs them against the current DB
// instance.
func (store *Store) executeMigrations() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(log)
	if err := goose.SetDialect(sqlDialect); err != nil {
		return fmt.Errorf("failed to set dialect for DB migration: %s", err.Error())
	}

	log.Emit(logger.INFO, "Checking for pending DB migrations...\n")
	if err := goose.Up(store.rawDb, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate DB: %s", err.Error())
	}

	return nil
}

// Record inserts a row for the completed materialization.
func (store *Store) Record(ctx context.Context, metadata *item.Metadata, kind item.Kind, key string) error {
	entry := Entry{
		ID:           uuid.New(),
		ItemID:       string(metadata.ID),
		Title:        metadata.Title,
		Channel:      metadata.Channel,
		Kind:         kind.String(),
		CacheKey:     key,
		DurationSecs: metadata.DurationSecs,
	}

	_, err := store.db.NamedExecContext(ctx, `
		INSERT INTO fetch_history (id, item_id, title, channel, kind, cache_key, duration_secs)
		VALUES (:id, :item_id, :title, :channel, :kind, :cache_key, :duration_secs)`, entry)
	return err
}

// Recent returns the most recently recorded materializations, newest first.
func (store *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	entries := []Entry{}
	err := store.db.SelectContext(ctx, &entries, `
		SELECT id, item_id, title, channel, kind, cache_key, duration_secs, created_at
		FROM fetch_history
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	return entries, err
}

func (store *Store) Close() error {
	return store.rawDb.Close()
}

type sqlLogger struct {
	logger logger.Logger
}

func (l *sqlLogger) Log(_ context.Context, level sqldblogger.Level, msg string, data map[string]any) {
	template := "%s - %v\n"
	switch level {
	case sqldblogger.LevelTrace:
		l.logger.Verbosef(template, msg, data)
	case sqldblogger.LevelDebug, sqldblogger.LevelInfo:
		duration := data["duration"]
		query, ok := data["query"]
		if ok {
			l.logger.Infof("%s [%.2fms] -- %s\n", msg, duration, query)
		} else {
			l.logger.Infof("%s [%.2fms]\n", msg, duration)
		}
	case sqldblogger.LevelError:
		l.logger.Errorf(template, msg, data)
	}
}
