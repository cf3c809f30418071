package auth

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/models"
)

func InitTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.RefreshToken{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func TestSignAccessToken(t *testing.T) {
	secret := []byte("secret")

	raw, err := SignAccessToken(42, "admin", secret)
	require.NoError(t, err)

	parsed, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) { return secret, nil })
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims := parsed.Claims.(jwt.MapClaims)
	require.EqualValues(t, 42, claims["sub"])
	require.Equal(t, "admin", claims["role"])
	require.NotContains(t, claims, "typ")
}

func TestValidateRefresh(t *testing.T) {
	db := InitTestDB(t)
	secret := []byte("refresh-secret")

	jti := NewJTI()
	raw, err := SignRefreshToken(7, "customer", jti, secret)
	require.NoError(t, err)
	require.NoError(t, SaveRefreshToken(db, raw, jti, "customer", 7))

	var stored models.RefreshToken
	require.NoError(t, db.First(&stored).Error)
	require.Equal(t, SHA256Hex(raw), stored.Token, "only the hash may be stored")

	claims, err := ValidateRefresh(raw, secret, db)
	require.NoError(t, err)
	require.EqualValues(t, 7, claims["sub"])
	require.Equal(t, jti, claims["jti"])
}

func TestValidateRefreshRejectsAccessToken(t *testing.T) {
	db := InitTestDB(t)
	secret := []byte("refresh-secret")

	raw, err := SignAccessToken(7, "customer", secret)
	require.NoError(t, err)

	_, err = ValidateRefresh(raw, secret, db)
	require.Error(t, err)
}

func TestValidateRefreshRevoked(t *testing.T) {
	db := InitTestDB(t)
	secret := []byte("refresh-secret")

	jti := NewJTI()
	raw, err := SignRefreshToken(7, "customer", jti, secret)
	require.NoError(t, err)
	require.NoError(t, SaveRefreshToken(db, raw, jti, "customer", 7))

	require.NoError(t, db.Model(&models.RefreshToken{}).
		Where("token = ?", SHA256Hex(raw)).
		Update("revoked", true).Error)

	_, err = ValidateRefresh(raw, secret, db)
	require.ErrorContains(t, err, "revoked")
}

func TestValidateRefreshUnknownToken(t *testing.T) {
	db := InitTestDB(t)
	secret := []byte("refresh-secret")

	raw, err := SignRefreshToken(7, "customer", NewJTI(), secret)
	require.NoError(t, err)

	_, err = ValidateRefresh(raw, secret, db)
	require.ErrorContains(t, err, "not found")
}
