package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"foodnextdoor/internal/cache"
	"foodnextdoor/internal/eventbus"
	"foodnextdoor/internal/mailer"
	"foodnextdoor/internal/storage"
)

func newTestHandler() (*Handler, *storage.MemStore, *cache.MemoryCache, *eventbus.MemoryBus, *mailer.RecordingMailer) {
	store := storage.NewMemStore()
	tokens := cache.NewMemoryCache()
	bus := eventbus.NewMemoryBus()
	mail := mailer.NewRecordingMailer()
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret"
	h := NewHandler(store, store, tokens, bus, mail, cfg)
	return h, store, tokens, bus, mail
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	r := httptest.NewRequest(method, path, bytes.NewReader(data))
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func registerReceiver(t *testing.T, h *Handler, email string) authResponse {
	t.Helper()
	w := doJSON(t, h.Register, "POST", "/api/v1/auth/register", registerRequest{
		Email:           email,
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
		Role:            "Food Receiver",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp authResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestRegisterCreatesAccountAndProfile(t *testing.T) {
	h, store, _, _, _ := newTestHandler()

	resp := registerReceiver(t, h, "alice@example.com")
	if resp.User.ID == "" || resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("incomplete auth response: %+v", resp)
	}
	if resp.User.Role != "Food Receiver" {
		t.Errorf("role = %q", resp.User.Role)
	}
	if resp.User.ProfileCompleted {
		t.Error("fresh registration must not be profile-complete")
	}

	account, err := store.GetAccountByEmail(context.Background(), "alice@example.com")
	if err != nil || account == nil {
		t.Fatalf("account not stored: %v", err)
	}
	if account.PasswordHash == "hunter22" {
		t.Error("password stored in plaintext")
	}

	profile, err := store.GetProfile(context.Background(), resp.User.ID)
	if err != nil {
		t.Fatalf("initial profile not stored: %v", err)
	}
	if profile.ProfileCompleted {
		t.Error("initial profile must have profile_completed=false")
	}
	if profile.Email != "alice@example.com" || string(profile.Role) != "Food Receiver" {
		t.Errorf("initial profile fields: %+v", profile)
	}
	if profile.Receiver != nil || profile.Donor != nil {
		t.Error("initial profile must not carry role field groups")
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		req  registerRequest
		want int
	}{
		{"empty email", registerRequest{Password: "hunter22", ConfirmPassword: "hunter22", Role: "Food Donor"}, http.StatusBadRequest},
		{"empty password", registerRequest{Email: "a@b.co", ConfirmPassword: "x", Role: "Food Donor"}, http.StatusBadRequest},
		{"empty confirm", registerRequest{Email: "a@b.co", Password: "hunter22", Role: "Food Donor"}, http.StatusBadRequest},
		{"empty role", registerRequest{Email: "a@b.co", Password: "hunter22", ConfirmPassword: "hunter22"}, http.StatusBadRequest},
		{"password mismatch", registerRequest{Email: "a@b.co", Password: "hunter22", ConfirmPassword: "hunter23", Role: "Food Donor"}, http.StatusBadRequest},
		{"bogus role", registerRequest{Email: "a@b.co", Password: "hunter22", ConfirmPassword: "hunter22", Role: "Admin"}, http.StatusBadRequest},
		{"malformed email", registerRequest{Email: "not-an-email", Password: "hunter22", ConfirmPassword: "hunter22", Role: "Food Donor"}, http.StatusBadRequest},
		{"short password", registerRequest{Email: "a@b.co", Password: "abc", ConfirmPassword: "abc", Role: "Food Donor"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, _, _, _ := newTestHandler()
			w := doJSON(t, h.Register, "POST", "/api/v1/auth/register", tt.req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			// 校验失败不得触碰存储
			if tt.req.Email != "" {
				if acc, _ := store.GetAccountByEmail(context.Background(), tt.req.Email); acc != nil {
					t.Error("account created despite validation failure")
				}
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h, _, _, _, _ := newTestHandler()
	registerReceiver(t, h, "dup@example.com")

	w := doJSON(t, h.Register, "POST", "/api/v1/auth/register", registerRequest{
		Email:           "dup@example.com",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
		Role:            "Food Donor",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestRegisterDispatchesVerificationMail(t *testing.T) {
	h, _, _, _, mail := newTestHandler()
	registerReceiver(t, h, "verify@example.com")

	// 邮件发送是异步的
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(mail.Sent()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	sent := mail.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent mails = %d, want 1", len(sent))
	}
	if sent[0].To != "verify@example.com" || sent[0].Purpose != "verify" || sent[0].Token == "" {
		t.Errorf("unexpected mail: %+v", sent[0])
	}
}

func TestLogin(t *testing.T) {
	h, _, _, _, _ := newTestHandler()
	reg := registerReceiver(t, h, "bob@example.com")

	w := doJSON(t, h.Login, "POST", "/api/v1/auth/login", loginRequest{
		Email:    "bob@example.com",
		Password: "hunter22",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp authResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.User.ID != reg.User.ID {
		t.Errorf("identity mismatch: %q vs %q", resp.User.ID, reg.User.ID)
	}
	if resp.User.Role != "Food Receiver" || resp.User.ProfileCompleted {
		t.Errorf("profile state in login response: %+v", resp.User)
	}

	// 错误密码与未注册邮箱走同一条错误路径
	for _, body := range []loginRequest{
		{Email: "bob@example.com", Password: "wrong"},
		{Email: "nobody@example.com", Password: "hunter22"},
	} {
		w := doJSON(t, h.Login, "POST", "/api/v1/auth/login", body)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("login(%+v) status = %d, want 401", body, w.Code)
		}
	}
}

func TestRefresh(t *testing.T) {
	h, _, _, _, _ := newTestHandler()
	reg := registerReceiver(t, h, "carol@example.com")

	w := doJSON(t, h.Refresh, "POST", "/api/v1/auth/refresh", refreshRequest{RefreshToken: reg.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["access_token"] == "" {
		t.Fatal("no access token in refresh response")
	}

	// access token 不能当 refresh token 用
	w = doJSON(t, h.Refresh, "POST", "/api/v1/auth/refresh", refreshRequest{RefreshToken: reg.AccessToken})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh with access token: status = %d, want 401", w.Code)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	h, _, _, _, mail := newTestHandler()
	registerReceiver(t, h, "dave@example.com")

	// 未注册邮箱返回凭据错误
	w := doJSON(t, h.PasswordReset, "POST", "/api/v1/auth/password-reset", passwordResetRequest{Email: "ghost@example.com"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email: status = %d, want 401", w.Code)
	}

	// 发起重置
	w = doJSON(t, h.PasswordReset, "POST", "/api/v1/auth/password-reset", passwordResetRequest{Email: "dave@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("request reset: status = %d, body = %s", w.Code, w.Body.String())
	}

	var resetToken string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range mail.Sent() {
			if m.Purpose == "reset" {
				resetToken = m.Token
			}
		}
		if resetToken != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if resetToken == "" {
		t.Fatal("no reset mail dispatched")
	}

	// 消费令牌
	w = doJSON(t, h.PasswordReset, "POST", "/api/v1/auth/password-reset", passwordResetRequest{
		Token:       resetToken,
		NewPassword: "newpass99",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm reset: status = %d, body = %s", w.Code, w.Body.String())
	}

	// 新密码可登录，旧密码不行
	w = doJSON(t, h.Login, "POST", "/api/v1/auth/login", loginRequest{Email: "dave@example.com", Password: "newpass99"})
	if w.Code != http.StatusOK {
		t.Errorf("login with new password: status = %d", w.Code)
	}
	w = doJSON(t, h.Login, "POST", "/api/v1/auth/login", loginRequest{Email: "dave@example.com", Password: "hunter22"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("login with old password: status = %d, want 401", w.Code)
	}

	// 令牌一次性
	w = doJSON(t, h.PasswordReset, "POST", "/api/v1/auth/password-reset", passwordResetRequest{
		Token:       resetToken,
		NewPassword: "another99",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("reused token: status = %d, want 401", w.Code)
	}
}

func TestVerifyEmailFlow(t *testing.T) {
	h, store, _, _, mail := newTestHandler()
	reg := registerReceiver(t, h, "emma@example.com")

	var token string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sent := mail.Sent(); len(sent) > 0 {
			token = sent[0].Token
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if token == "" {
		t.Fatal("no verification mail dispatched")
	}

	w := doJSON(t, h.VerifyEmail, "POST", "/api/v1/auth/verify-email", verifyEmailRequest{Token: token})
	if w.Code != http.StatusOK {
		t.Fatalf("verify: status = %d, body = %s", w.Code, w.Body.String())
	}

	account, err := store.GetAccountByID(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !account.EmailVerified {
		t.Error("account not marked verified")
	}

	// 无效令牌
	w = doJSON(t, h.VerifyEmail, "POST", "/api/v1/auth/verify-email", verifyEmailRequest{Token: "vrf-bogus"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bogus token: status = %d, want 401", w.Code)
	}
}

func TestRegisterPublishesAuthEvent(t *testing.T) {
	h, _, _, bus, _ := newTestHandler()
	registerReceiver(t, h, "eve@example.com")

	events, err := bus.GetAuthEvents(context.Background(), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != eventbus.EventRegistered {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Email != "eve@example.com" {
		t.Errorf("event email = %q", events[0].Email)
	}
}
