package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CallerBusinessResolver finds the business an authenticated account acts for
type CallerBusinessResolver interface {
	Resolve(ctx context.Context, accountID uint) (uint, error)
}

// BusinessLookup lists the businesses an account is attached to, oldest attachment first
type BusinessLookup interface {
	BusinessIDsByAccount(ctx context.Context, accountID uint) ([]uint, error)
}

// CallerBusinessResolverImpl resolves through the attachment table with an optional redis cache
type CallerBusinessResolverImpl struct {
	lookup BusinessLookup
	rc     redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCallerBusinessResolver creates a resolver. rc may be nil, which disables caching.
func NewCallerBusinessResolver(lookup BusinessLookup, rc redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) CallerBusinessResolver {
	return &CallerBusinessResolverImpl{
		lookup: lookup,
		rc:     rc,
		prefix: prefix,
		ttl:    ttl,
		logger: nopIfNil(logger),
	}
}

func (r *CallerBusinessResolverImpl) Resolve(ctx context.Context, accountID uint) (uint, error) {
	key := r.cacheKey(accountID)

	if r.rc != nil {
		cached, err := r.rc.Get(ctx, key).Result()
		switch {
		case err == nil:
			if id, perr := strconv.ParseUint(cached, 10, 64); perr == nil && id > 0 {
				return uint(id), nil
			}
		case !errors.Is(err, redis.Nil):
			r.logger.Warn("caller business cache read failed", zap.Uint("account_id", accountID), zap.Error(err))
		}
	}

	ids, err := r.lookup.BusinessIDsByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrCallerHasNoBusiness
	}
	businessID := ids[0]

	if r.rc != nil && r.ttl > 0 {
		if err := r.rc.Set(ctx, key, strconv.FormatUint(uint64(businessID), 10), r.ttl).Err(); err != nil {
			r.logger.Warn("caller business cache write failed", zap.Uint("account_id", accountID), zap.Error(err))
		}
	}

	return businessID, nil
}

func (r *CallerBusinessResolverImpl) cacheKey(accountID uint) string {
	if r.prefix == "" {
		return fmt.Sprintf("caller_business:%d", accountID)
	}
	return fmt.Sprintf("%s:caller_business:%d", r.prefix, accountID)
}
