package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"shopcart-api/internal/domain"
	"shopcart-api/internal/service"
)

type mockUserRepo struct {
	usersByID   map[string]domain.User
	emailIdx    map[string]string
	usernameIdx map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:   make(map[string]domain.User),
		emailIdx:    make(map[string]string),
		usernameIdx: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.usersByID[user.ID] = user
	m.emailIdx[user.Email] = user.ID
	if user.Username != "" {
		m.usernameIdx[user.Username] = user.ID
	}
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	id, ok := m.emailIdx[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (domain.User, error) {
	id, ok := m.usernameIdx[username]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockUserRepo) EmailExists(_ context.Context, email string) (bool, error) {
	_, ok := m.emailIdx[email]
	return ok, nil
}

func (m *mockUserRepo) SetEmailVerifyToken(_ context.Context, id, token string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.EmailVerifyToken = token
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) Verify(_ context.Context, id string, verifiedAt time.Time) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.VerifiedAt = &verifiedAt
	user.EmailVerifyToken = ""
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) SetForgotPasswordToken(_ context.Context, id, token string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.ForgotPasswordToken = token
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	user.ForgotPasswordToken = ""
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, id string, update domain.ProfileUpdate) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.DateOfBirth != nil {
		dob := *update.DateOfBirth
		user.DateOfBirth = &dob
	}
	if update.Bio != nil {
		user.Bio = *update.Bio
	}
	if update.Location != nil {
		user.Location = *update.Location
	}
	if update.Website != nil {
		user.Website = *update.Website
	}
	if update.Username != nil {
		if user.Username != "" {
			delete(m.usernameIdx, user.Username)
		}
		user.Username = *update.Username
		m.usernameIdx[user.Username] = id
	}
	if update.Avatar != nil {
		user.Avatar = *update.Avatar
	}
	if update.CoverPhoto != nil {
		user.CoverPhoto = *update.CoverPhoto
	}
	m.usersByID[id] = user
	return nil
}

type mockRefreshRepo struct {
	records map[string]domain.RefreshToken
}

func newMockRefreshRepo() *mockRefreshRepo {
	return &mockRefreshRepo{records: make(map[string]domain.RefreshToken)}
}

func (m *mockRefreshRepo) Create(_ context.Context, record domain.RefreshToken) error {
	m.records[record.Token] = record
	return nil
}

func (m *mockRefreshRepo) GetByToken(_ context.Context, token string) (domain.RefreshToken, error) {
	rec, ok := m.records[token]
	if !ok {
		return domain.RefreshToken{}, pgx.ErrNoRows
	}
	return rec, nil
}

func (m *mockRefreshRepo) Delete(_ context.Context, token string) (bool, error) {
	if _, ok := m.records[token]; !ok {
		return false, nil
	}
	delete(m.records, token)
	return true, nil
}

func (m *mockRefreshRepo) Rotate(_ context.Context, oldToken string, next domain.RefreshToken) error {
	if _, ok := m.records[oldToken]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.records, oldToken)
	m.records[next.Token] = next
	return nil
}

type mockSender struct{}

func (mockSender) SendVerifyEmail(context.Context, string, string, time.Time) error   { return nil }
func (mockSender) SendPasswordReset(context.Context, string, string, time.Time) error { return nil }

func setupRouter() (*gin.Engine, *service.UserService, *mockUserRepo) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService("secret", 15*time.Minute, 30*time.Minute, 24*time.Hour)
	users := newMockUserRepo()
	refresh := newMockRefreshRepo()
	svc := service.NewUserService(zap.NewNop(), users, refresh, tokens, mockSender{}, nil, "http://localhost:4000")
	handler := NewUserHandler(zap.NewNop(), svc)
	return NewRouter(zap.NewNop(), tokens, handler), svc, users
}

func doJSON(r *gin.Engine, method, path string, body any, accessToken string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, r *gin.Engine) (user map[string]any, tokens map[string]any) {
	t.Helper()
	rec := doJSON(r, http.MethodPost, "/users/register", gin.H{
		"name":             "A",
		"email":            "a@x.com",
		"password":         "Passw0rd!",
		"confirm_password": "Passw0rd!",
		"date_of_birth":    "1990-01-01",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		User   map[string]any `json:"user"`
		Tokens map[string]any `json:"tokens"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp.User, resp.Tokens
}

func TestRegisterLoginScenario(t *testing.T) {
	r, _, _ := setupRouter()
	user, tokens := registerUser(t, r)

	if user["email"] != "a@x.com" {
		t.Fatalf("unexpected user: %v", user)
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Fatalf("password hash leaked in response")
	}
	if _, present := user["verified_at"]; present {
		t.Fatalf("expected unverified user")
	}
	if tokens["access_token"] == "" || tokens["refresh_token"] == "" {
		t.Fatalf("expected token pair")
	}

	rec := doJSON(r, http.MethodPost, "/users/login", gin.H{
		"email":    "a@x.com",
		"password": "Passw0rd!",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}

	rec = doJSON(r, http.MethodGet, "/users/a", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown username: expected 404, got %d", rec.Code)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	r, _, _ := setupRouter()
	registerUser(t, r)

	rec := doJSON(r, http.MethodPost, "/users/register", gin.H{
		"name":             "B",
		"email":            "a@x.com",
		"password":         "OtherPass1",
		"confirm_password": "OtherPass1",
		"date_of_birth":    "1991-02-02",
	}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestRegisterValidationAccumulatesErrors(t *testing.T) {
	r, _, _ := setupRouter()

	rec := doJSON(r, http.MethodPost, "/users/register", gin.H{
		"email":            "not-an-email",
		"password":         "x",
		"confirm_password": "x",
		"date_of_birth":    "1990-01-01",
	}, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, field := range []string{"name", "email", "password"} {
		if _, ok := resp.Errors[field]; !ok {
			t.Fatalf("expected error for %q in full set, got %v", field, resp.Errors)
		}
	}
}

func TestRegisterPasswordMismatch(t *testing.T) {
	r, _, _ := setupRouter()

	rec := doJSON(r, http.MethodPost, "/users/register", gin.H{
		"name":             "A",
		"email":            "a@x.com",
		"password":         "Passw0rd!",
		"confirm_password": "Different1!",
		"date_of_birth":    "1990-01-01",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 mismatch, got %d", rec.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	r, _, _ := setupRouter()
	registerUser(t, r)

	rec := doJSON(r, http.MethodPost, "/users/login", gin.H{
		"email":    "a@x.com",
		"password": "wrong-pass",
	}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	r, _, _ := setupRouter()
	_, tokens := registerUser(t, r)
	access := tokens["access_token"].(string)

	rec := doJSON(r, http.MethodPut, "/users/change-password", gin.H{
		"old_password":     "wrong-pass",
		"password":         "NewPassw0rd!",
		"confirm_password": "NewPassw0rd!",
	}, access)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRefreshRotationOverHTTP(t *testing.T) {
	r, _, _ := setupRouter()
	_, tokens := registerUser(t, r)
	refresh := tokens["refresh_token"].(string)

	rec := doJSON(r, http.MethodPost, "/users/refresh-token", gin.H{"refresh_token": refresh}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", rec.Code)
	}

	rec = doJSON(r, http.MethodPost, "/users/refresh-token", gin.H{"refresh_token": refresh}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh: expected 401, got %d", rec.Code)
	}
}

func TestLogoutThenRefreshFails(t *testing.T) {
	r, _, _ := setupRouter()
	_, tokens := registerUser(t, r)
	access := tokens["access_token"].(string)
	refresh := tokens["refresh_token"].(string)

	rec := doJSON(r, http.MethodPost, "/users/logout", gin.H{"refresh_token": refresh}, access)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}

	rec = doJSON(r, http.MethodPost, "/users/refresh-token", gin.H{"refresh_token": refresh}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: expected 401, got %d", rec.Code)
	}
}

func TestAccessTokenRejectedAsRefreshToken(t *testing.T) {
	r, _, _ := setupRouter()
	_, tokens := registerUser(t, r)
	access := tokens["access_token"].(string)

	rec := doJSON(r, http.MethodPost, "/users/refresh-token", gin.H{"refresh_token": access}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for cross-type token, got %d", rec.Code)
	}
}

func TestVerifyEmailFlow(t *testing.T) {
	r, _, users := setupRouter()
	user, _ := registerUser(t, r)
	stored, err := users.GetByID(context.Background(), user["id"].(string))
	if err != nil {
		t.Fatalf("stored user: %v", err)
	}

	rec := doJSON(r, http.MethodGet, "/users/verify-email?email_verify_token="+stored.EmailVerifyToken, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Segundo clic sobre el mismo link: idempotente.
	rec = doJSON(r, http.MethodGet, "/users/verify-email?email_verify_token="+stored.EmailVerifyToken, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("second verify: expected 200, got %d", rec.Code)
	}

	rec = doJSON(r, http.MethodGet, "/users/verify-email", nil, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing token: expected 422, got %d", rec.Code)
	}
}

func TestUpdateMeDropsUnknownFields(t *testing.T) {
	r, _, users := setupRouter()
	user, tokens := registerUser(t, r)
	access := tokens["access_token"].(string)
	userID := user["id"].(string)

	stored, _ := users.GetByID(context.Background(), userID)
	rec := doJSON(r, http.MethodGet, "/users/verify-email?email_verify_token="+stored.EmailVerifyToken, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", rec.Code)
	}
	hashBefore := stored.PasswordHash

	rec = doJSON(r, http.MethodPatch, "/users/me", gin.H{
		"bio":      "hello there",
		"password": "injected-hash",
		"role":     "admin",
	}, access)
	if rec.Code != http.StatusOK {
		t.Fatalf("update me: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	after, _ := users.GetByID(context.Background(), userID)
	if after.Bio != "hello there" {
		t.Fatalf("expected bio updated, got %q", after.Bio)
	}
	if after.PasswordHash != hashBefore {
		t.Fatalf("filtered field reached persistence")
	}
}

func TestUpdateMeRequiresVerifiedUser(t *testing.T) {
	r, _, _ := setupRouter()
	_, tokens := registerUser(t, r)
	access := tokens["access_token"].(string)

	rec := doJSON(r, http.MethodPatch, "/users/me", gin.H{"bio": "hi"}, access)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unverified user, got %d", rec.Code)
	}
}

func TestGetMeRequiresToken(t *testing.T) {
	r, _, _ := setupRouter()

	rec := doJSON(r, http.MethodPost, "/users/me", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	_, tokens := registerUser(t, r)
	rec = doJSON(r, http.MethodPost, "/users/me", nil, tokens["access_token"].(string))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestPublicProfileOmitsSensitiveFields(t *testing.T) {
	r, svc, users := setupRouter()
	user, _ := registerUser(t, r)
	userID := user["id"].(string)

	stored, _ := users.GetByID(context.Background(), userID)
	if _, _, err := svc.VerifyEmail(context.Background(), stored.EmailVerifyToken); err != nil {
		t.Fatalf("verify: %v", err)
	}
	username := "user_a"
	if _, err := svc.UpdateMe(context.Background(), userID, domain.ProfileUpdate{Username: &username}); err != nil {
		t.Fatalf("update me: %v", err)
	}

	rec := doJSON(r, http.MethodGet, "/users/user_a", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		User map[string]any `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"password_hash", "email_verify_token", "forgot_password_token"} {
		if _, leaked := resp.User[key]; leaked {
			t.Fatalf("sensitive field %q leaked", key)
		}
	}
}

func TestForgotPasswordFlow(t *testing.T) {
	r, _, users := setupRouter()
	user, _ := registerUser(t, r)
	userID := user["id"].(string)

	rec := doJSON(r, http.MethodPost, "/users/forgot-password", gin.H{"email": "missing@x.com"}, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown email: expected 404, got %d", rec.Code)
	}

	rec = doJSON(r, http.MethodPost, "/users/forgot-password", gin.H{"email": "a@x.com"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot password: expected 200, got %d", rec.Code)
	}

	stored, _ := users.GetByID(context.Background(), userID)
	rec = doJSON(r, http.MethodPost, "/users/verify-forgot-password", gin.H{
		"forgot_password_token": stored.ForgotPasswordToken,
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify forgot token: expected 200, got %d", rec.Code)
	}

	rec = doJSON(r, http.MethodPost, "/users/reset-password", gin.H{
		"forgot_password_token": stored.ForgotPasswordToken,
		"password":              "NewPassw0rd!",
		"confirm_password":      "NewPassw0rd!",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset password: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(r, http.MethodPost, "/users/login", gin.H{"email": "a@x.com", "password": "NewPassw0rd!"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login with new password: expected 200, got %d", rec.Code)
	}
	rec = doJSON(r, http.MethodPost, "/users/login", gin.H{"email": "a@x.com", "password": "Passw0rd!"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login with old password: expected 401, got %d", rec.Code)
	}
}
