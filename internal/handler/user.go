package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"automation-license-server/internal/database"
	"automation-license-server/internal/model"
	"automation-license-server/internal/util"
)

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,nefield=CurrentPassword"`
}

type TokenInput struct {
	Token string `json:"token" validate:"required"`
}

// userView 对外展示的账户信息
type userView struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	LastLogin time.Time `json:"last_login"`
}

func newUserView(u *model.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, LastLogin: u.LastLogin}
}

// adminError 管理接口的错误响应
func adminError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// parseInput 宽松解析再做 validate 校验，管理接口使用
func parseInput(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// currentUser 读取 Auth 中间件写入的用户
func currentUser(c *fiber.Ctx) (*model.User, error) {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	var user model.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func HandleUserLogin(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := parseInput(c, input); err != nil {
		return adminError(c, fiber.StatusBadRequest, "无效的输入数据")
	}

	var user model.User
	if err := database.DB.Where("username = ?", input.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			recordLogin(c, &model.User{Username: input.Username}, model.LoginFailed)
		}
		return adminError(c, fiber.StatusUnauthorized, "用户名或密码错误")
	}

	// 被禁用的账户与密码错误返回相同提示
	if user.Disabled || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)) != nil {
		recordLogin(c, &user, model.LoginFailed)
		return adminError(c, fiber.StatusUnauthorized, "用户名或密码错误")
	}

	token, err := util.GenerateToken(user.ID)
	if err != nil {
		return adminError(c, fiber.StatusInternalServerError, "令牌生成失败")
	}

	user.LastLogin = time.Now()
	database.DB.Model(&user).Update("last_login", user.LastLogin)
	recordLogin(c, &user, model.LoginSuccess)

	return c.JSON(fiber.Map{
		"token": token,
		"user":  newUserView(&user),
	})
}

func recordLogin(c *fiber.Ctx, user *model.User, status string) {
	database.DB.Create(&model.LoginLog{
		UserID:    user.ID,
		Username:  user.Username,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Status:    status,
		CreatedAt: time.Now(),
	})
}

func HandleUserInfo(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return adminError(c, fiber.StatusNotFound, "用户不存在")
	}
	return c.JSON(newUserView(user))
}

func HandleGetLoginLogs(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	page, pageSize := pagination(c)

	var logs []model.LoginLog
	total, err := paginate(database.DB.Model(&model.LoginLog{}).Where("user_id = ?", userID), "created_at DESC", page, pageSize, &logs)
	if err != nil {
		return adminError(c, fiber.StatusInternalServerError, "获取登录日志失败")
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
		"page":  page,
		"size":  pageSize,
	})
}

func HandleChangePassword(c *fiber.Ctx) error {
	input := new(ChangePasswordInput)
	if err := parseInput(c, input); err != nil {
		return adminError(c, fiber.StatusBadRequest, "新密码至少8位且不能与当前密码相同")
	}

	user, err := currentUser(c)
	if err != nil {
		return adminError(c, fiber.StatusNotFound, "用户不存在")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.CurrentPassword)); err != nil {
		return adminError(c, fiber.StatusUnauthorized, "当前密码错误")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return adminError(c, fiber.StatusInternalServerError, "密码加密失败")
	}
	if err := database.DB.Model(user).Update("password", string(hashed)).Error; err != nil {
		return adminError(c, fiber.StatusInternalServerError, "密码更新失败")
	}

	return c.JSON(fiber.Map{
		"message": "密码修改成功",
	})
}

// HandleValidateToken 前端刷新页面时确认令牌仍然可用
func HandleValidateToken(c *fiber.Ctx) error {
	input := new(TokenInput)
	if err := parseInput(c, input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"valid": false,
			"error": "未提供token",
		})
	}

	invalid := func(msg string) error {
		return c.JSON(fiber.Map{"valid": false, "error": msg})
	}

	userID, err := util.ValidateToken(input.Token)
	if err != nil {
		return invalid("无效的token")
	}
	var user model.User
	if err := database.DB.First(&user, userID).Error; err != nil || user.Disabled {
		return invalid("用户不存在")
	}

	return c.JSON(fiber.Map{
		"valid": true,
		"user":  newUserView(&user),
	})
}

// pagination 读取 page/page_size 查询参数，page_size 上限 100
func pagination(c *fiber.Ctx) (int, int) {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return page, min(pageSize, 100)
}

// paginate 先计数再取一页，db 需已带 Model 和过滤条件
func paginate(db *gorm.DB, order string, page, pageSize int, out interface{}) (int64, error) {
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	offset := (page - 1) * pageSize
	if err := db.Order(order).Offset(offset).Limit(pageSize).Find(out).Error; err != nil {
		return 0, err
	}
	return total, nil
}
