package packager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"automation-license-server/internal/bundle"
	"automation-license-server/internal/device"
	"automation-license-server/internal/license"
	"automation-license-server/internal/logging"
	"automation-license-server/internal/metrics"
)

const (
	EndpointPackage = "package"
	ContentType     = "application/octet-stream"
	FileExtension   = ".pkg"

	OutcomeBuildFailed = "build_failed"

	configEntryName = "config.json"
)

var (
	ErrLicenseInactive = errors.New("license is not active")
	ErrScriptMissing   = errors.New("plan script missing")
)

// Package 可下载的加密包
type Package struct {
	Filename    string
	Data        []byte
	Size        int
	ContentType string
	PlanID      string
}

// deviceConfig 注入包内的设备配置，字段顺序固定，不包含生成时间
type deviceConfig struct {
	DeviceHash string     `json:"device_hash"`
	PlanID     string     `json:"plan_id"`
	PlanName   string     `json:"plan_name"`
	Features   []string   `json:"features"`
	Status     string     `json:"status"`
	IsValid    bool       `json:"is_valid"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

// Service 查设备 -> 选套餐 -> 打包脚本和配置 -> 加密
type Service struct {
	store        license.Store
	catalog      *Catalog
	scripts      fs.FS
	encryptor    *bundle.Encryptor
	password     string
	audit        license.AuditRecorder
	logger       *zap.Logger
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	now          func() time.Time
}

type Option func(*Service)

func WithAuditRecorder(r license.AuditRecorder) Option {
	return func(s *Service) { s.audit = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store license.Store, catalog *Catalog, scripts fs.FS, encryptor *bundle.Encryptor, password string, opts ...Option) *Service {
	s := &Service{
		store:        store,
		catalog:      catalog,
		scripts:      scripts,
		encryptor:    encryptor,
		password:     password,
		logger:       zap.NewNop(),
		storeTimeout: license.DefaultStoreTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build 为设备生成加密包。设备不存在或许可无效时在打包前返回。
func (s *Service) Build(ctx context.Context, rawDeviceHash string) (*Package, error) {
	fp, err := device.Validate(rawDeviceHash)
	if err != nil {
		s.metrics.ObservePackageBuild(license.OutcomeInvalidFormat, 0)
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	record, err := s.store.FindByFingerprint(storeCtx, fp)
	cancel()
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			s.finish(fp, license.OutcomeNotFound, "", 0)
			return nil, license.ErrNotFound
		}
		s.logger.Error("license store lookup failed",
			zap.String("device_hash", fp.String()),
			zap.String("endpoint", EndpointPackage),
			zap.Error(err),
		)
		s.finish(fp, license.OutcomeStoreUnavailable, err.Error(), 0)
		if errors.Is(err, license.ErrStoreUnavailable) {
			return nil, err
		}
		return nil, errors.Join(license.ErrStoreUnavailable, err)
	}

	verdict := license.Evaluate(record, s.now())
	if !verdict.IsValid {
		s.finish(fp, license.OutcomeInvalid, "license inactive", 0)
		return nil, ErrLicenseInactive
	}

	plan, err := s.catalog.Plan(verdict.PlanID)
	if err != nil {
		s.logger.Error("device plan missing from catalog",
			zap.String("device_hash", fp.String()),
			zap.String("plan_id", verdict.PlanID),
		)
		s.finish(fp, OutcomeBuildFailed, err.Error(), 0)
		return nil, err
	}

	entries, err := s.entries(fp, verdict, plan)
	if err != nil {
		s.logger.Error("failed to assemble package entries",
			zap.String("device_hash", fp.String()),
			zap.String("plan_id", verdict.PlanID),
			zap.Error(err),
		)
		s.finish(fp, OutcomeBuildFailed, err.Error(), 0)
		return nil, err
	}

	data, err := s.encryptor.Seal(entries, s.password)
	if err != nil {
		s.logger.Error("failed to seal package",
			zap.String("device_hash", fp.String()),
			zap.Error(err),
		)
		s.finish(fp, OutcomeBuildFailed, err.Error(), 0)
		return nil, fmt.Errorf("seal package: %w", err)
	}

	s.finish(fp, license.OutcomeValid, "", len(data))
	return &Package{
		Filename:    fp.String() + FileExtension,
		Data:        data,
		Size:        len(data),
		ContentType: ContentType,
		PlanID:      verdict.PlanID,
	}, nil
}

func (s *Service) entries(fp device.Fingerprint, verdict license.Verdict, plan Plan) ([]bundle.Entry, error) {
	entries := make([]bundle.Entry, 0, len(plan.Scripts)+1)
	for _, name := range plan.Scripts {
		data, err := fs.ReadFile(s.scripts, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrScriptMissing, name)
			}
			return nil, fmt.Errorf("read script %s: %w", name, err)
		}
		entries = append(entries, bundle.Entry{Name: name, Data: data})
	}

	features := plan.Features
	if features == nil {
		features = []string{}
	}
	cfg, err := json.Marshal(deviceConfig{
		DeviceHash: fp.String(),
		PlanID:     verdict.PlanID,
		PlanName:   plan.Name,
		Features:   features,
		Status:     verdict.Status,
		IsValid:    verdict.IsValid,
		ExpiresAt:  verdict.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	return append(entries, bundle.Entry{Name: configEntryName, Data: cfg}), nil
}

func (s *Service) finish(fp device.Fingerprint, outcome, detail string, size int) {
	s.metrics.ObservePackageBuild(outcome, size)
	license.RecordAsync(s.audit, s.logger, license.NewAuditEvent(fp.String(), EndpointPackage, outcome, detail, s.now()))
}
