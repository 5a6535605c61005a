package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"automation-license-server/internal/database"
	"automation-license-server/internal/model"
	"automation-license-server/internal/util"
)

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	app := fiber.New()
	app.Get("/", rl.Handler(), func(c *fiber.Ctx) error { return c.SendString("ok") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	now = now.Add(time.Second)
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRateLimiterForgetsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	now := time.Now()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("1.1.1.1"))
	now = now.Add(limiterIdleTTL + time.Second)
	assert.True(t, rl.allow("2.2.2.2"))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.visitors, 1)
}

func TestRateLimiterSweepsAtMostOncePerInterval(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	start := time.Now()
	now := start
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("1.1.1.1"))
	rl.mu.Lock()
	rl.visitors["9.9.9.9"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: start.Add(-time.Hour)}
	rl.mu.Unlock()

	// 间隔内的新访客不触发扫描
	now = start.Add(limiterSweepInterval / 2)
	assert.True(t, rl.allow("2.2.2.2"))
	rl.mu.Lock()
	assert.Contains(t, rl.visitors, "9.9.9.9")
	rl.mu.Unlock()

	now = start.Add(limiterSweepInterval)
	assert.True(t, rl.allow("3.3.3.3"))
	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "9.9.9.9")
	assert.Len(t, rl.visitors, 3)
}

func TestAuthAndAdminOnly(t *testing.T) {
	database.InitTestDB()
	t.Cleanup(database.CleanTestDB)
	util.InitJWT("middleware-test", time.Hour)

	admin := model.User{Username: "root", Password: "x", Email: "root@example.com", Role: model.RoleAdmin}
	operator := model.User{Username: "ops", Password: "x", Email: "ops@example.com", Role: model.RoleOperator}
	require.NoError(t, database.DB.Create(&admin).Error)
	require.NoError(t, database.DB.Create(&operator).Error)

	app := fiber.New()
	app.Get("/admin", Auth(), AdminOnly(), func(c *fiber.Ctx) error { return c.SendString("ok") })

	adminToken, err := util.GenerateToken(admin.ID)
	require.NoError(t, err)
	operatorToken, err := util.GenerateToken(operator.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"bad scheme", "Basic abc", fiber.StatusUnauthorized},
		{"bad token", "Bearer abc", fiber.StatusUnauthorized},
		{"operator", "Bearer " + operatorToken, fiber.StatusForbidden},
		{"admin", "Bearer " + adminToken, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
