package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatify-service/internal/auth"
	"chatify-service/internal/mocks"
	"chatify-service/internal/models"
	"chatify-service/internal/repositories"
)

func setupAuthRouter(handler *AuthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/register", handler.Register)
	r.POST("/auth/login", handler.Login)
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Next()
	})
	r.GET("/users/me", handler.Me)
	r.PUT("/users/me", handler.UpdateProfile)
	return r
}

func TestRegisterDefaultsProfile(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(userRepo, auth.NewTokenManager("test-secret", time.Hour), nil)
	router := setupAuthRouter(handler)

	userRepo.On("CreateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.Email == "new@x.dev" &&
			u.Username == "new@x.dev" &&
			u.ProfileImageURL == "none" &&
			u.AccountType == "free" &&
			u.Translator == "google" &&
			u.Language == nil &&
			u.ID != "" &&
			auth.CheckPassword(u.PasswordHash, "secret123")
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(`{"email":"new@x.dev","password":"secret123"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp["user_id"])

	userRepo.AssertExpectations(t)
}

func TestRegisterEmailTaken(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(userRepo, auth.NewTokenManager("test-secret", time.Hour), nil)
	router := setupAuthRouter(handler)

	userRepo.On("CreateUser", mock.Anything, mock.Anything).Return(repositories.ErrEmailTaken).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(`{"email":"dup@x.dev","password":"secret123"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestRegisterValidation(t *testing.T) {
	handler := NewAuthHandler(new(mocks.UserRepositoryMock), auth.NewTokenManager("test-secret", time.Hour), nil)
	router := setupAuthRouter(handler)

	for _, body := range []string{
		`{"email":"not-an-email","password":"secret123"}`,
		`{"email":"ok@x.dev","password":"short"}`,
		`{"email":"ok@x.dev"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestLoginSuccess(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	handler := NewAuthHandler(userRepo, tokens, nil)
	router := setupAuthRouter(handler)

	hash, err := auth.HashPassword("secret123")
	require.NoError(t, err)
	stored := models.User{ID: "alice", Username: "alice", Email: "alice@x.dev", PasswordHash: hash}

	userRepo.On("GetUserByEmail", mock.Anything, "alice@x.dev").Return(stored, nil).Once()
	userRepo.On("TouchLastLogin", mock.Anything, "alice").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"email":"alice@x.dev","password":"secret123"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.User.ID)

	subject, err := tokens.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)

	userRepo.AssertExpectations(t)
}

func TestLoginWrongPassword(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(userRepo, auth.NewTokenManager("test-secret", time.Hour), nil)
	router := setupAuthRouter(handler)

	hash, err := auth.HashPassword("secret123")
	require.NoError(t, err)
	userRepo.On("GetUserByEmail", mock.Anything, "alice@x.dev").
		Return(models.User{ID: "alice", PasswordHash: hash}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"email":"alice@x.dev","password":"wrong"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(userRepo, auth.NewTokenManager("test-secret", time.Hour), nil)
	router := setupAuthRouter(handler)

	userRepo.On("GetUserByEmail", mock.Anything, "ghost@x.dev").
		Return(models.User{}, repositories.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"email":"ghost@x.dev","password":"whatever"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeSuccess(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(userRepo, auth.NewTokenManager("test-secret", time.Hour), nil)
	router := setupAuthRouter(handler)

	userRepo.On("GetUser", mock.Anything, "alice").
		Return(models.User{ID: "alice", Username: "alice"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.ID)
}

func TestUpdateProfileSuccess(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(userRepo, auth.NewTokenManager("test-secret", time.Hour), nil)
	router := setupAuthRouter(handler)

	userRepo.On("UpdateProfile", mock.Anything, "alice", "Alice", "Spanish", "none").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/users/me", bytes.NewBufferString(`{"username":"Alice","language":"Spanish"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestUpdateProfileRequiresLanguage(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(userRepo, auth.NewTokenManager("test-secret", time.Hour), nil)
	router := setupAuthRouter(handler)

	req := httptest.NewRequest(http.MethodPut, "/users/me", bytes.NewBufferString(`{"username":"Alice"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	userRepo.AssertNumberOfCalls(t, "UpdateProfile", 0)
}
