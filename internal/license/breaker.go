package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"automation-license-server/internal/device"
	"automation-license-server/internal/logging"
	"automation-license-server/internal/model"
)

// BreakerStore 为存储读取加熔断，连续失败达到阈值后直接返回 ErrStoreUnavailable。
// ErrNotFound 属于正常结果，不计入失败。
type BreakerStore struct {
	next    Store
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerStore(next Store, maxFailures uint32, cooldown time.Duration, logger *zap.Logger) *BreakerStore {
	logger = logging.OrNop(logger)
	if maxFailures == 0 {
		maxFailures = 5
	}

	settings := gobreaker.Settings{
		Name:        "license-store",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerStore{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (s *BreakerStore) FindByFingerprint(ctx context.Context, fp device.Fingerprint) (*model.Device, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.next.FindByFingerprint(ctx, fp)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, err
	}
	return res.(*model.Device), nil
}

// State 当前熔断状态，用于健康检查
func (s *BreakerStore) State() string {
	return s.breaker.State().String()
}
