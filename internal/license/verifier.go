package license

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"automation-license-server/internal/device"
	"automation-license-server/internal/logging"
	"automation-license-server/internal/metrics"
)

const (
	EndpointVerify = "verify"

	DefaultStoreTimeout = 5 * time.Second
	auditTimeout        = 5 * time.Second
)

// Result 验证结果。命中缓存时 Status 为空。
type Result struct {
	IsValid   bool
	Status    string
	ExpiresAt *time.Time
	Cached    bool
}

// Verifier 校验指纹 -> 查缓存 -> 回源存储 -> 写缓存。
// 存储错误和设备不存在都不写缓存。
type Verifier struct {
	store        Store
	cache        *Cache
	audit        AuditRecorder
	logger       *zap.Logger
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	now          func() time.Time
}

type VerifierOption func(*Verifier)

func WithAuditRecorder(r AuditRecorder) VerifierOption {
	return func(v *Verifier) { v.audit = r }
}

func WithLogger(l *zap.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = logging.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

func WithStoreTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.storeTimeout = d
		}
	}
}

func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

func NewVerifier(store Store, cache *Cache, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		store:        store,
		cache:        cache,
		logger:       zap.NewNop(),
		storeTimeout: DefaultStoreTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify 验证设备许可。返回的错误只可能是 device.ErrInvalidFormat、ErrNotFound 或包装后的 ErrStoreUnavailable。
func (v *Verifier) Verify(ctx context.Context, rawDeviceHash string) (*Result, error) {
	fp, err := device.Validate(rawDeviceHash)
	if err != nil {
		v.logger.Debug("rejected malformed device hash", zap.Int("length", len(rawDeviceHash)))
		v.metrics.ObserveVerification(OutcomeInvalidFormat)
		return nil, err
	}

	if entry, ok := v.cache.Get(fp); ok && v.cache.Usable(entry) {
		v.metrics.ObserveCacheLookup(true)
		v.metrics.ObserveVerification(OutcomeOf(entry.IsValid))
		v.record(fp, OutcomeOf(entry.IsValid), "cached")
		return &Result{
			IsValid:   entry.IsValid,
			ExpiresAt: copyTime(entry.ExpiresAt),
			Cached:    true,
		}, nil
	}
	v.metrics.ObserveCacheLookup(false)

	storeCtx, cancel := context.WithTimeout(ctx, v.storeTimeout)
	defer cancel()

	record, err := v.store.FindByFingerprint(storeCtx, fp)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			v.metrics.ObserveVerification(OutcomeNotFound)
			v.record(fp, OutcomeNotFound, "")
			return nil, ErrNotFound
		}
		v.logger.Error("license store lookup failed",
			zap.String("device_hash", fp.String()),
			zap.Error(err),
		)
		v.metrics.ObserveVerification(OutcomeStoreUnavailable)
		v.record(fp, OutcomeStoreUnavailable, err.Error())
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	verdict := Evaluate(record, v.now())
	v.cache.Put(fp, verdict.IsValid, verdict.ExpiresAt)
	v.metrics.SetCacheEntries(v.cache.Len())
	v.metrics.ObserveVerification(OutcomeOf(verdict.IsValid))
	v.record(fp, OutcomeOf(verdict.IsValid), "")

	return &Result{
		IsValid:   verdict.IsValid,
		Status:    verdict.Status,
		ExpiresAt: verdict.ExpiresAt,
		Cached:    false,
	}, nil
}

// Invalidate 管理端修改设备后调用
func (v *Verifier) Invalidate(fp device.Fingerprint) {
	v.cache.Invalidate(fp)
	v.metrics.SetCacheEntries(v.cache.Len())
}

func (v *Verifier) CacheStats() map[string]interface{} {
	return v.cache.GetStats()
}

func (v *Verifier) record(fp device.Fingerprint, outcome, detail string) {
	RecordAsync(v.audit, v.logger, NewAuditEvent(fp.String(), EndpointVerify, outcome, detail, v.now()))
}

// OutcomeOf 把有效性映射为审计结果
func OutcomeOf(valid bool) string {
	if valid {
		return OutcomeValid
	}
	return OutcomeInvalid
}
