package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"automation-license-server/internal/logging"
	"automation-license-server/internal/model"
)

// 审计结果
const (
	OutcomeValid            = "valid"
	OutcomeInvalid          = "invalid"
	OutcomeNotFound         = "not_found"
	OutcomeStoreUnavailable = "store_unavailable"
	OutcomeInvalidFormat    = "invalid_format"
)

// AuditEvent 一次设备接口访问的审计事件
type AuditEvent struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"device_hash"`
	Endpoint    string    `json:"endpoint"`
	Outcome     string    `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewAuditEvent(fingerprint, endpoint, outcome, detail string, at time.Time) AuditEvent {
	return AuditEvent{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		Endpoint:    endpoint,
		Outcome:     outcome,
		Detail:      detail,
		Timestamp:   at,
	}
}

// AuditRecorder 审计写入能力。调用方不等待结果，失败只记日志。
type AuditRecorder interface {
	Record(ctx context.Context, event AuditEvent) error
}

// RecordAsync 后台写入审计事件，不阻塞调用方。recorder 为 nil 时忽略。
func RecordAsync(recorder AuditRecorder, logger *zap.Logger, event AuditEvent) {
	if recorder == nil {
		return
	}
	logger = logging.OrNop(logger)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := recorder.Record(ctx, event); err != nil {
			logger.Warn("failed to record audit event",
				zap.String("device_hash", event.Fingerprint),
				zap.String("endpoint", event.Endpoint),
				zap.String("outcome", event.Outcome),
				zap.Error(err),
			)
		}
	}()
}

// DBAuditRecorder 写入 device_audits 表
type DBAuditRecorder struct {
	db *gorm.DB
}

func NewDBAuditRecorder(db *gorm.DB) *DBAuditRecorder {
	return &DBAuditRecorder{db: db}
}

func (r *DBAuditRecorder) Record(ctx context.Context, event AuditEvent) error {
	row := &model.DeviceAudit{
		EventID:     event.ID,
		Fingerprint: event.Fingerprint,
		Endpoint:    event.Endpoint,
		Outcome:     event.Outcome,
		Detail:      event.Detail,
		Timestamp:   event.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("write audit row: %w", err)
	}
	return nil
}

// RedisAuditRecorder 把事件推入定长 Redis 列表，最新的在最前
type RedisAuditRecorder struct {
	client *redis.Client
	key    string
	maxLen int64
}

func NewRedisAuditRecorder(client *redis.Client, key string, maxLen int64) *RedisAuditRecorder {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisAuditRecorder{client: client, key: key, maxLen: maxLen}
}

func (r *RedisAuditRecorder) Record(ctx context.Context, event AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, 0, r.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push audit event: %w", err)
	}
	return nil
}

// Recent 读取最近 n 条事件
func (r *RedisAuditRecorder) Recent(ctx context.Context, n int64) ([]AuditEvent, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]AuditEvent, 0, len(raw))
	for _, item := range raw {
		var e AuditEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// MultiRecorder 依次写入所有 recorder，单个失败不影响其他
type MultiRecorder []AuditRecorder

func (m MultiRecorder) Record(ctx context.Context, event AuditEvent) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
