package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/hash"
	"github.com/avdeevlv/erp_backend/internal/logging"
	authmw "github.com/avdeevlv/erp_backend/internal/middleware/auth"
	"github.com/avdeevlv/erp_backend/internal/models"
	"github.com/avdeevlv/erp_backend/internal/notify"
)

type AuthHandler struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
	Sink          notify.Sink
}

// Register creates a user with the customer role plus its customer
// profile in one transaction.
func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Username == "" || req.Password == "" || req.Email == "" {
		l.Warn("register_error", "status", 400, "reason", "missing fields")
		return echo.NewHTTPError(http.StatusBadRequest, "username, password and email required")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var userCheck models.User
	if err := h.DB.Where("username = ?", req.Username).First(&userCheck).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			l.Error("register_error", "status", 500, "reason", "db_error", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	} else {
		l.Warn("register_failed", "status", 409, "reason", "user_exists")
		return echo.NewHTTPError(http.StatusConflict, "user already exists")
	}

	user := models.User{
		Username:     req.Username,
		PasswordHash: pwHash,
		Role:         "customer",
	}
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		customer := models.Customer{
			UserID:    user.ID,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Active:    true,
		}
		return tx.Create(&customer).Error
	})
	if txErr != nil {
		l.Error("register_failed", "status", 500, "reason", "db_error", "error", txErr)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.Sink.Notify(ctx, notify.TopicUserEvents, notify.Event{
		Type:         "user_registered",
		TargetUserID: user.ID,
		Payload:      map[string]any{"user_id": user.ID, "username": user.Username},
	})

	l.Info("register_success", "user_id", user.ID)
	return c.JSON(http.StatusCreated, echo.Map{
		"id": user.ID, "username": user.Username, "role": user.Role,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var user models.User
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		l.Warn("login_failed", "status", 401, "reason", "invalid username or password")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		l.Warn("login_failed", "status", 401, "reason", "invalid username or password")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}

	accessToken, err := authmw.SignAccessToken(user.ID, user.Role, h.JWTSecret)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot create token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create token")
	}

	jti := authmw.NewJTI()
	refreshToken, err := authmw.SignRefreshToken(user.ID, user.Role, jti, h.RefreshSecret)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot create token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create token")
	}
	if err := authmw.SaveRefreshToken(h.DB, refreshToken, jti, user.Role, user.ID); err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot store refresh token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.SetCookie(authmw.CreateCookie("accessToken", accessToken, "/", time.Now().Add(authmw.AccessTTL)))
	c.SetCookie(authmw.CreateCookie("refreshToken", refreshToken, "/", time.Now().Add(authmw.RefreshTTL)))

	h.Sink.Notify(ctx, notify.TopicUserEvents, notify.Event{
		Type:         "user_logged_in",
		TargetUserID: user.ID,
		Payload:      map[string]any{"user_id": user.ID, "username": user.Username},
	})

	l.Info("login_successful", "user_id", user.ID)
	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"is_admin":      user.Role == "admin",
	})
}

func (h *AuthHandler) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	refreshCookie, err := c.Cookie("refreshToken")
	if err == nil {
		result := h.DB.Model(&models.RefreshToken{}).
			Where("token = ?", authmw.SHA256Hex(refreshCookie.Value)).
			Update("revoked", true)
		if result.Error != nil {
			l.Error("logout_failed", "status", 500, "reason", "cannot revoke refreshToken", "error", result.Error)
		}
	} else {
		l.Warn("logout", "reason", "missing_refresh_cookie")
	}

	c.SetCookie(authmw.DeleteCookie("refreshToken", "/"))
	c.SetCookie(authmw.DeleteCookie("accessToken", "/"))
	l.Info("successful_logout")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}
