package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Rate is one row of the exchange-rate table: foreign units per base unit.
type Rate struct {
	Currency  string
	Rate      decimal.Decimal
	AsOf      time.Time
	UpdatedBy int64
}

// Repository provides rate table persistence.
type Repository interface {
	GetRate(ctx context.Context, currency string) (Rate, error)
	ListRates(ctx context.Context) ([]Rate, error)
	UpsertRate(ctx context.Context, rate Rate) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed rate repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetRate(ctx context.Context, currency string) (Rate, error) {
	var rate Rate
	err := r.db.QueryRow(ctx, `SELECT currency, rate, as_of, updated_by FROM exchange_rates WHERE currency=$1`, strings.ToUpper(currency)).
		Scan(&rate.Currency, &rate.Rate, &rate.AsOf, &rate.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rate{}, &MissingRateError{Currency: strings.ToUpper(currency)}
		}
		return Rate{}, err
	}
	return rate, nil
}

func (r *repository) ListRates(ctx context.Context) ([]Rate, error) {
	rows, err := r.db.Query(ctx, `SELECT currency, rate, as_of, updated_by FROM exchange_rates ORDER BY currency ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rates []Rate
	for rows.Next() {
		var rate Rate
		if err := rows.Scan(&rate.Currency, &rate.Rate, &rate.AsOf, &rate.UpdatedBy); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

func (r *repository) UpsertRate(ctx context.Context, rate Rate) error {
	if rate.Rate.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRate, rate.Rate)
	}
	_, err := r.db.Exec(ctx, `INSERT INTO exchange_rates (currency, rate, as_of, updated_by)
VALUES ($1,$2,$3,$4)
ON CONFLICT (currency) DO UPDATE SET rate=EXCLUDED.rate, as_of=EXCLUDED.as_of, updated_by=EXCLUDED.updated_by`,
		strings.ToUpper(rate.Currency), rate.Rate, rate.AsOf, rate.UpdatedBy)
	return err
}

const cacheKeyPrefix = "fx:rate:"

// Cache keeps rate lookups in Redis with a TTL so the posting path does not
// hit the rate table on every conversion.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) get(ctx context.Context, currency string) (Rate, bool, error) {
	if c == nil || c.client == nil {
		return Rate{}, false, nil
	}
	payload, err := c.client.Get(ctx, cacheKeyPrefix+currency).Bytes()
	if err == redis.Nil {
		return Rate{}, false, nil
	}
	if err != nil {
		return Rate{}, false, err
	}
	var rate Rate
	if err := json.Unmarshal(payload, &rate); err != nil {
		return Rate{}, false, err
	}
	return rate, true, nil
}

func (c *Cache) put(ctx context.Context, rate Rate) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(rate)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKeyPrefix+rate.Currency, payload, c.ttl).Err()
}

// Invalidate drops a cached rate after the table changes.
func (c *Cache) Invalidate(ctx context.Context, currency string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKeyPrefix+strings.ToUpper(currency)).Err()
}

// Source resolves rates through the cache, falling back to the repository.
type Source struct {
	repo  Repository
	cache *Cache
}

// NewSource wires a rate source.
func NewSource(repo Repository, cache *Cache) *Source {
	return &Source{repo: repo, cache: cache}
}

// Lookup returns the configured rate for a currency.
func (s *Source) Lookup(ctx context.Context, currency string) (Rate, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return Rate{}, errors.New("fx: currency required")
	}
	if rate, ok, err := s.cache.get(ctx, currency); err == nil && ok {
		return rate, nil
	}
	rate, err := s.repo.GetRate(ctx, currency)
	if err != nil {
		return Rate{}, err
	}
	_ = s.cache.put(ctx, rate)
	return rate, nil
}

// Invalidate drops a cached rate after the table row changes.
func (s *Source) Invalidate(ctx context.Context, currency string) error {
	return s.cache.Invalidate(ctx, currency)
}

// Warm primes the cache with every configured rate.
func (s *Source) Warm(ctx context.Context) (int, error) {
	rates, err := s.repo.ListRates(ctx)
	if err != nil {
		return 0, err
	}
	for _, rate := range rates {
		if err := s.cache.put(ctx, rate); err != nil {
			return 0, err
		}
	}
	return len(rates), nil
}
