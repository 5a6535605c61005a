package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"automation-license-server/internal/database"
	"automation-license-server/internal/model"
)

func TestLogOperation(t *testing.T) {
	database.InitTestDB()
	t.Cleanup(database.CleanTestDB)

	require.NoError(t, LogOperation(1, ActionUpdateStatus, "00000000000000aa", map[string]string{"status": "suspended"}))
	require.NoError(t, LogOperation(1, ActionUpdateSubscription, "00000000000000bb", nil))
	require.NoError(t, LogOperation(2, ActionUpdateStatus, "00000000000000aa", nil))

	logs, total, err := GetOperationLogs(OperationLogFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, logs, 3)

	logs, total, err = GetOperationLogs(OperationLogFilter{Fingerprint: "00000000000000aa"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, l := range logs {
		assert.Equal(t, "00000000000000aa", l.Fingerprint)
	}

	logs, total, err = GetOperationLogs(OperationLogFilter{UserID: 1, Action: ActionUpdateStatus}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.JSONEq(t, `{"status":"suspended"}`, logs[0].Details)

	logs, _, err = GetOperationLogs(OperationLogFilter{}, 2, 2)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestNilSheetSyncIsNoop(t *testing.T) {
	var s *SheetSyncService
	assert.NoError(t, s.SyncDevice(&model.Device{Fingerprint: "00000000000000aa"}))
	assert.NoError(t, s.BatchSyncDevices([]model.Device{{}}))
}

func TestDeviceRow(t *testing.T) {
	trialEnd := time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)
	sub := model.SubscriptionActive
	row := DeviceRow(&model.Device{
		Fingerprint:        "00000000000000aa",
		Status:             model.DeviceStatusActive,
		PlanID:             model.PlanPro,
		TrialEndsAt:        &trialEnd,
		SubscriptionStatus: &sub,
		CreatedAt:          trialEnd,
		UpdatedAt:          trialEnd,
	})
	require.Len(t, row, 9)
	assert.Equal(t, "00000000000000aa", row[0])
	assert.Equal(t, "2026-01-04T00:00:00Z", row[3])
	assert.Equal(t, "active", row[4])
	assert.Equal(t, "", row[6])
}

// fakeSheets 记录收到的 Sheets API 请求
type fakeSheets struct {
	mu       sync.Mutex
	existing [][]string
	requests []string
	bodies   []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		json.NewEncoder(w).Encode(map[string]interface{}{"range": "Devices!A2:A", "values": f.existing})
		return
	}
	w.Write([]byte(`{}`))
}

func newFakeSheetSync(t *testing.T, existing [][]string) (*SheetSyncService, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{existing: existing}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewSheetSyncServiceWithOptions(context.Background(), "sheet-id", "Devices", nil,
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return s, fake
}

func TestSyncDeviceAppendsNewRow(t *testing.T) {
	s, fake := newFakeSheetSync(t, [][]string{{"1111111111111111"}})

	require.NoError(t, s.SyncDevice(&model.Device{Fingerprint: "00000000000000aa", Status: model.DeviceStatusTrial}))

	require.Len(t, fake.requests, 2)
	assert.True(t, strings.HasPrefix(fake.requests[0], "GET"))
	assert.Contains(t, fake.requests[1], ":append")
	assert.Contains(t, fake.bodies[1], "00000000000000aa")
}

func TestSyncDeviceUpdatesExistingRow(t *testing.T) {
	s, fake := newFakeSheetSync(t, [][]string{{"1111111111111111"}, {"00000000000000aa"}})

	require.NoError(t, s.SyncDevice(&model.Device{Fingerprint: "00000000000000aa", Status: model.DeviceStatusSuspended}))

	require.Len(t, fake.requests, 2)
	assert.True(t, strings.HasPrefix(fake.requests[1], "PUT"))
	assert.Contains(t, fake.requests[1], "A3:I3")
}

func TestBatchSyncDevicesRewritesSheet(t *testing.T) {
	s, fake := newFakeSheetSync(t, nil)

	require.NoError(t, s.BatchSyncDevices([]model.Device{
		{Fingerprint: "00000000000000aa", Status: model.DeviceStatusTrial},
		{Fingerprint: "00000000000000bb", Status: model.DeviceStatusActive},
	}))

	require.Len(t, fake.requests, 2)
	assert.Contains(t, fake.requests[0], ":clear")
	assert.True(t, strings.HasPrefix(fake.requests[1], "PUT"))
	assert.Contains(t, fake.requests[1], "A2:I3")
	assert.Contains(t, fake.bodies[1], "00000000000000bb")

	// 空列表只清空
	require.NoError(t, s.BatchSyncDevices(nil))
	assert.Len(t, fake.requests, 3)
}
