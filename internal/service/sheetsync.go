package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"automation-license-server/internal/config"
	"automation-license-server/internal/logging"
	"automation-license-server/internal/model"
)

// 表格列：设备指纹 | 状态 | 套餐 | 试用结束 | 订阅状态 | 支付渠道 | 订阅周期结束 | 创建时间 | 更新时间
const sheetColumns = "A%d:I%d"

// SheetSyncService 把设备许可状态镜像到 Google Sheet，供运营查看。
// 数据库是权威数据，表格只写不读。nil 接收者表示未启用同步。
type SheetSyncService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *zap.Logger
}

func NewSheetSyncService(cfg config.SheetsConfig, logger *zap.Logger) (*SheetSyncService, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	ctx := context.Background()

	// 读取凭证文件
	b, err := os.ReadFile(cfg.CredentialPath)
	if err != nil {
		return nil, err
	}

	// 使用服务账号授权
	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("无法加载凭证: %w", err)
	}

	return NewSheetSyncServiceWithOptions(ctx, cfg.SpreadsheetID, cfg.SheetName, logger, option.WithCredentials(creds))
}

// NewSheetSyncServiceWithOptions 直接指定客户端选项，测试中用于指向本地服务
func NewSheetSyncServiceWithOptions(ctx context.Context, spreadsheetID, sheetName string, logger *zap.Logger, opts ...option.ClientOption) (*SheetSyncService, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &SheetSyncService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logging.OrNop(logger),
	}, nil
}

// SyncDevice 按指纹查找所在行，存在则更新，否则追加
func (s *SheetSyncService) SyncDevice(d *model.Device) error {
	if s == nil {
		return nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, fmt.Sprintf("%s!A2:A", s.sheetName)).Do()
	if err != nil {
		s.logger.Error("查询Sheet数据失败", zap.Error(err))
		return fmt.Errorf("查询Sheet数据失败: %w", err)
	}

	rowIndex := 0
	for i, row := range resp.Values {
		if len(row) > 0 && row[0] == d.Fingerprint {
			rowIndex = i + 2 // A2 开始
			break
		}
	}

	values := [][]interface{}{DeviceRow(d)}
	if rowIndex > 0 {
		_, err = s.service.Spreadsheets.Values.Update(
			s.spreadsheetID,
			s.sheetName+"!"+fmt.Sprintf(sheetColumns, rowIndex, rowIndex),
			&sheets.ValueRange{Values: values},
		).ValueInputOption("USER_ENTERED").Do()
	} else {
		_, err = s.service.Spreadsheets.Values.Append(
			s.spreadsheetID,
			s.sheetName+"!A2:I",
			&sheets.ValueRange{Values: values},
		).ValueInputOption("USER_ENTERED").Do()
	}
	if err != nil {
		s.logger.Error("同步到Google Sheet失败", zap.String("device_hash", d.Fingerprint), zap.Error(err))
		return fmt.Errorf("同步到Google Sheet失败: %w", err)
	}

	s.logger.Info("设备已同步到Google Sheet", zap.String("device_hash", d.Fingerprint), zap.Bool("updated", rowIndex > 0))
	return nil
}

// BatchSyncDevices 清空数据区后整表重写，启动时用于和数据库对齐
func (s *SheetSyncService) BatchSyncDevices(devices []model.Device) error {
	if s == nil {
		return nil
	}

	dataRange := s.sheetName + "!A2:I"
	if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, dataRange, &sheets.ClearValuesRequest{}).Do(); err != nil {
		s.logger.Error("清空Sheet数据失败", zap.Error(err))
		return fmt.Errorf("清空Sheet数据失败: %w", err)
	}
	if len(devices) == 0 {
		return nil
	}

	values := make([][]interface{}, 0, len(devices))
	for i := range devices {
		values = append(values, DeviceRow(&devices[i]))
	}

	end := len(devices) + 1
	_, err := s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		s.sheetName+"!"+fmt.Sprintf(sheetColumns, 2, end),
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Do()
	if err != nil {
		s.logger.Error("批量同步设备失败", zap.Int("count", len(devices)), zap.Error(err))
		return fmt.Errorf("批量同步设备失败: %w", err)
	}
	s.logger.Info("设备表已重写", zap.Int("count", len(devices)))
	return nil
}

// DeviceRow 一台设备对应的表格行
func DeviceRow(d *model.Device) []interface{} {
	subStatus := ""
	if d.SubscriptionStatus != nil {
		subStatus = *d.SubscriptionStatus
	}
	return []interface{}{
		d.Fingerprint,
		d.Status,
		d.PlanID,
		formatTime(d.TrialEndsAt),
		subStatus,
		d.SubscriptionProvider,
		formatTime(d.SubscriptionPeriodEnd),
		d.CreatedAt.UTC().Format(time.RFC3339),
		d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
