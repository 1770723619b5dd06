package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"regexp"
	"time"

	"foodnextdoor/internal/cache"
	"foodnextdoor/internal/eventbus"
	"foodnextdoor/internal/mailer"
	"foodnextdoor/internal/model"
	"foodnextdoor/internal/storage"
)

// Handler 认证 HTTP 处理器
//
// 依赖接口说明（接口隔离原则）：
//   - accounts: 凭据存储
//   - profiles: 档案文档存储（注册时写入初始档案）
//   - tokens: 一次性令牌缓存（密码重置 / 邮箱验证）
//   - bus: 认证事件总线（WebSocket 推送登录/登出状态）
//   - mail: 邮件发送
type Handler struct {
	accounts storage.AccountStore
	profiles storage.ProfileStore
	tokens   cache.TokenCache
	bus      eventbus.AuthEventBus
	mail     mailer.Mailer
	cfg      Config
}

// NewHandler 创建认证处理器
func NewHandler(accounts storage.AccountStore, profiles storage.ProfileStore, tokens cache.TokenCache, bus eventbus.AuthEventBus, mail mailer.Mailer, cfg Config) *Handler {
	return &Handler{
		accounts: accounts,
		profiles: profiles,
		tokens:   tokens,
		bus:      bus,
		mail:     mail,
		cfg:      cfg,
	}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/auth/password-reset", h.PasswordReset)
	mux.HandleFunc("POST /api/v1/auth/verify-email", h.VerifyEmail)
	mux.HandleFunc("POST /api/v1/auth/signout", h.SignOut)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type passwordResetRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token,omitempty"`
	NewPassword string `json:"new_password,omitempty"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type identityView struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	ProfileCompleted bool   `json:"profile_completed"`
	EmailVerified    bool   `json:"email_verified"`
}

type authResponse struct {
	User         identityView `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
}

// ============================================================================
// Handlers
// ============================================================================

// Register 用户注册
//
// 先校验（不触存储），再创建凭据，再尽力写入初始档案文档。
// 档案写入失败不回滚凭据：凭据已生效，失败作为 profile_error 上报，
// 留待用户补全档案时重建。
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// 纯表单校验，不触存储
	if req.Email == "" || req.Password == "" || req.ConfirmPassword == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, "email, password, confirm_password, role are required")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "passwords do not match")
		return
	}
	role := model.Role(req.Role)
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "role must be \"Food Receiver\" or \"Food Donor\"")
		return
	}

	// 凭据校验，错误信息原样返回给客户端展示
	if !isValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "The email address is badly formatted.")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "Password should be at least 6 characters.")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		log.Printf("[auth.register] HashPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	account := &model.Account{
		ID:           generateID("acc"),
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.accounts.CreateAccount(r.Context(), account); err != nil {
		if err == storage.ErrDuplicate {
			writeError(w, http.StatusConflict, "The email address is already in use by another account.")
			return
		}
		log.Printf("[auth.register] CreateAccount error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	// 初始档案文档：尽力而为，失败不撤销凭据
	profile := &model.UserProfile{
		ID:               account.ID,
		Email:            account.Email,
		Role:             role,
		ProfileCompleted: false,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	var profileErr string
	if err := h.profiles.CreateProfile(r.Context(), profile); err != nil {
		log.Printf("[auth.register] CreateProfile error for %s: %v", account.ID, err)
		profileErr = "profile could not be initialized; it will be created on completion"
	}

	// 验证邮件：fire-and-forget
	h.dispatchVerificationMail(account)

	accessToken, refreshToken, err := h.issueTokens(account.ID, account.Email, string(role))
	if err != nil {
		log.Printf("[auth.register] token generation error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.publishEvent(eventbus.EventRegistered, account.ID, account.Email)

	log.Printf("[auth] Account registered: %s (%s, %s)", account.Email, account.ID, role)
	resp := struct {
		authResponse
		ProfileError string `json:"profile_error,omitempty"`
	}{
		authResponse: authResponse{
			User: identityView{
				ID:               account.ID,
				Email:            account.Email,
				Role:             string(role),
				ProfileCompleted: false,
			},
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		},
		ProfileError: profileErr,
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Login 用户登录
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	account, err := h.accounts.GetAccountByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[auth.login] GetAccountByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if account == nil || !CheckPassword(req.Password, account.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "The email or password is incorrect.")
		return
	}

	// 档案提供 role 和 profile_completed，客户端据此决定跳转目标
	role, completed := h.lookupProfileState(r, account.ID)

	accessToken, refreshToken, err := h.issueTokens(account.ID, account.Email, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.publishEvent(eventbus.EventSignedIn, account.ID, account.Email)

	log.Printf("[auth] Signed in: %s", account.Email)
	writeJSON(w, http.StatusOK, authResponse{
		User: identityView{
			ID:               account.ID,
			Email:            account.Email,
			Role:             role,
			ProfileCompleted: completed,
			EmailVerified:    account.EmailVerified,
		},
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// Refresh 刷新访问令牌
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	claims, err := ParseToken(h.cfg, req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if claims.Type != "refresh" {
		writeError(w, http.StatusUnauthorized, "invalid token type")
		return
	}

	// 查询凭据确保仍然存在
	account, err := h.accounts.GetAccountByID(r.Context(), claims.Subject)
	if err != nil || account == nil {
		writeError(w, http.StatusUnauthorized, "account not found")
		return
	}

	role, _ := h.lookupProfileState(r, account.ID)
	accessToken, err := GenerateAccessToken(h.cfg, account.ID, account.Email, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": accessToken,
	})
}

// SignOut 登出
//
// 无条件成功：令牌是无状态的，登出只发布状态事件供订阅方更新。
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if user := GetAuthUser(r.Context()); user != nil {
		h.publishEvent(eventbus.EventSignedOut, user.ID, user.Email)
		log.Printf("[auth] Signed out: %s", user.Email)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// PasswordReset 密码重置
//
// 两阶段共用一个端点：
//   - {email} → 发放重置令牌并发送邮件
//   - {token, new_password} → 消费令牌并更新密码
func (h *Handler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Token != "" {
		h.confirmPasswordReset(w, r, req)
		return
	}

	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	account, err := h.accounts.GetAccountByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[auth.reset] GetAccountByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if account == nil {
		writeError(w, http.StatusUnauthorized, "There is no user record corresponding to this identifier.")
		return
	}

	token := generateID("rst")
	if err := h.tokens.SetToken(r.Context(), cache.PurposeReset, token, account.ID, h.cfg.ResetTokenTTL); err != nil {
		log.Printf("[auth.reset] SetToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// 请求结束后 r.Context() 即取消，邮件发送用独立 context
	go func(email, token string) {
		if err := h.mail.SendPasswordResetMail(context.Background(), email, token); err != nil {
			log.Printf("[auth.reset] mail dispatch failed for %s: %v", email, err)
		}
	}(account.Email, token)

	log.Printf("[auth] Password reset mail dispatched: %s", account.Email)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset mail sent"})
}

// confirmPasswordReset 消费重置令牌并更新密码
func (h *Handler) confirmPasswordReset(w http.ResponseWriter, r *http.Request, req passwordResetRequest) {
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	if len(req.NewPassword) < 6 {
		writeError(w, http.StatusBadRequest, "Password should be at least 6 characters.")
		return
	}

	accountID, err := h.tokens.GetToken(r.Context(), cache.PurposeReset, req.Token)
	if err != nil {
		log.Printf("[auth.reset] GetToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "invalid or expired reset token")
		return
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.accounts.UpdateAccountPassword(r.Context(), accountID, hash); err != nil {
		log.Printf("[auth.reset] UpdateAccountPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	// 令牌一次性：消费后立即删除
	if err := h.tokens.DeleteToken(r.Context(), cache.PurposeReset, req.Token); err != nil {
		log.Printf("[auth.reset] DeleteToken error: %v", err)
	}

	log.Printf("[auth] Password reset completed: %s", accountID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// VerifyEmail 消费验证令牌，标记邮箱已验证
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	accountID, err := h.tokens.GetToken(r.Context(), cache.PurposeVerify, req.Token)
	if err != nil {
		log.Printf("[auth.verify] GetToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "invalid or expired verification token")
		return
	}

	if err := h.accounts.MarkEmailVerified(r.Context(), accountID); err != nil {
		log.Printf("[auth.verify] MarkEmailVerified error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to verify email")
		return
	}
	if err := h.tokens.DeleteToken(r.Context(), cache.PurposeVerify, req.Token); err != nil {
		log.Printf("[auth.verify] DeleteToken error: %v", err)
	}

	log.Printf("[auth] Email verified: %s", accountID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "email verified"})
}

// ============================================================================
// 内部辅助
// ============================================================================

// dispatchVerificationMail 发放验证令牌并异步发送邮件
func (h *Handler) dispatchVerificationMail(account *model.Account) {
	token := generateID("vrf")
	ctx := context.Background()
	if err := h.tokens.SetToken(ctx, cache.PurposeVerify, token, account.ID, h.cfg.VerifyTokenTTL); err != nil {
		log.Printf("[auth.register] verify token store error: %v", err)
		return
	}
	go func() {
		if err := h.mail.SendVerificationMail(ctx, account.Email, token); err != nil {
			log.Printf("[auth.register] verification mail failed for %s: %v", account.Email, err)
		}
	}()
}

// lookupProfileState 读取档案的角色与补全状态
// 档案缺失（孤儿凭据）时返回空角色，错误只记日志
func (h *Handler) lookupProfileState(r *http.Request, accountID string) (role string, completed bool) {
	profile, err := h.profiles.GetProfile(r.Context(), accountID)
	if err != nil {
		if err != storage.ErrNotFound {
			log.Printf("[auth] GetProfile error for %s: %v", accountID, err)
		}
		return "", false
	}
	return string(profile.Role), profile.ProfileCompleted
}

func (h *Handler) issueTokens(accountID, email, role string) (access, refresh string, err error) {
	access, err = GenerateAccessToken(h.cfg, accountID, email, role)
	if err != nil {
		return "", "", err
	}
	refresh, err = GenerateRefreshToken(h.cfg, accountID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (h *Handler) publishEvent(eventType, accountID, email string) {
	if h.bus == nil {
		return
	}
	event := &eventbus.AuthEvent{
		Type:      eventType,
		AccountID: accountID,
		Email:     email,
		Timestamp: time.Now(),
	}
	if err := h.bus.PublishAuthEvent(context.Background(), event); err != nil {
		log.Printf("[auth] publish %s event error: %v", eventType, err)
	}
}

// ============================================================================
// 工具函数
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// generateID 生成带前缀的唯一标识符
func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
