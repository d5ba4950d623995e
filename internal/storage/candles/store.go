// Package candles archives OHLCV bars in PostgreSQL.
package candles

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS candles (
		symbol     TEXT        NOT NULL,
		timeframe  TEXT        NOT NULL,
		open_time  TIMESTAMPTZ NOT NULL,
		open       NUMERIC     NOT NULL,
		high       NUMERIC     NOT NULL,
		low        NUMERIC     NOT NULL,
		close      NUMERIC     NOT NULL,
		volume     NUMERIC     NOT NULL,
		close_time TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (symbol, timeframe, open_time)
	);`

// Store reads and writes candles. It also serves as a market data source.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn, pings it and ensures the schema.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: parse config")
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres: ping")
	}

	s := NewStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the candles table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "postgres: create candles table")
	}
	return nil
}

// Close shuts down the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Store inserts bars, ignoring ones already archived.
func (s *Store) Store(ctx context.Context, symbol string, timeframe domain.Timeframe, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	const query = `
		INSERT INTO candles (
			symbol, timeframe, open_time, open, high, low, close, volume, close_time
		) VALUES (
			$1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9
		)
		ON CONFLICT (symbol, timeframe, open_time) DO NOTHING`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query,
			symbol, timeframe.String(), b.OpenTime.UTC(),
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String(),
			b.CloseTime.UTC(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range bars {
		if _, err := br.Exec(); err != nil {
			return errors.Wrapf(domain.ErrPersistenceFailure, "postgres: insert candle %s %d: %v", symbol, i, err)
		}
	}
	return nil
}

// Fetch returns the latest limit archived bars, oldest first.
func (s *Store) Fetch(ctx context.Context, symbol string, timeframe domain.Timeframe, limit int) ([]domain.Bar, error) {
	const query = `
		SELECT open_time, open::text, high::text, low::text, close::text, volume::text, close_time
		FROM candles
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY open_time DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, symbol, timeframe.String(), limit)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrDataUnavailable, "postgres: query candles: %v", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			openTime, closeTime        time.Time
			open, high, low, cls, volu string
		)
		if err := rows.Scan(&openTime, &open, &high, &low, &cls, &volu, &closeTime); err != nil {
			return nil, errors.Wrap(err, "postgres: scan candle")
		}

		bar, err := newBar(openTime, closeTime, open, high, low, cls, volu)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "postgres: candle rows")
	}

	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

func newBar(openTime, closeTime time.Time, values ...string) (domain.Bar, error) {
	parsed := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return domain.Bar{}, errors.Wrapf(err, "parse candle value %q", v)
		}
		parsed[i] = d
	}

	return domain.Bar{
		OpenTime:  openTime.UTC(),
		Open:      parsed[0],
		High:      parsed[1],
		Low:       parsed[2],
		Close:     parsed[3],
		Volume:    parsed[4],
		CloseTime: closeTime.UTC(),
	}, nil
}
