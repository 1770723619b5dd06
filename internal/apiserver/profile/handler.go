// Package profile 用户档案补全与展示
//
// 档案文档以凭据 ID 为 key。补全是合并写：只写给定字段组 +
// username + profile_completed，统计计数器从不在这里写入。
// username 唯一性由存储层唯一约束裁决，不做先查后写。
package profile

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"foodnextdoor/internal/apiserver/auth"
	"foodnextdoor/internal/model"
	"foodnextdoor/internal/storage"
)

// Handler 档案 HTTP 处理器
type Handler struct {
	profiles storage.ProfileStore
}

// NewHandler 创建档案处理器
func NewHandler(profiles storage.ProfileStore) *Handler {
	return &Handler{profiles: profiles}
}

// RegisterRoutes 注册档案相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/v1/profile/receiver", h.CompleteReceiver)
	mux.HandleFunc("PUT /api/v1/profile/donor", h.CompleteDonor)
	mux.HandleFunc("GET /api/v1/profile", h.Get)
	mux.HandleFunc("PATCH /api/v1/profile", h.Patch)
	mux.HandleFunc("GET /api/v1/profile/username/{username}", h.CheckUsername)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type receiverRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Allergens string `json:"allergens,omitempty"`
}

type donorRequest struct {
	BusinessType string `json:"business_type"`
	ABN          string `json:"abn"`
	ContactNo    string `json:"contact_no"`
	Address      string `json:"address"`
	OpeningTime  string `json:"opening_time"`
	ClosingTime  string `json:"closing_time"`
}

// profileView 角色条件化的展示视图
//
// 只携带当前角色的字段组，统计计数器按角色各取三项，缺省 0。
type profileView struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	Role             string                 `json:"role"`
	Username         string                 `json:"username,omitempty"`
	ProfileCompleted bool                   `json:"profile_completed"`
	Receiver         *model.ReceiverProfile `json:"receiver,omitempty"`
	Donor            *donorView             `json:"donor,omitempty"`
	Stats            map[string]interface{} `json:"stats"`
}

// donorView 捐赠方展示字段，附加格式化的营业时间
type donorView struct {
	model.DonorProfile
	OpeningHours string `json:"opening_hours"`
}

// ============================================================================
// Handlers
// ============================================================================

// CompleteReceiver 接收方档案补全
//
// 表单校验全部通过后才触存储。username 冲突由唯一约束在写入时
// 裁决：并发提交同名时恰有一个成功。相同表单重复提交幂等。
func (h *Handler) CompleteReceiver(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req receiverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FirstName == "" || req.LastName == "" || req.Username == "" || req.Address == "" || req.Phone == "" {
		writeError(w, http.StatusBadRequest, "first_name, last_name, username, address, phone are required")
		return
	}

	current, _ := h.loadProfile(w, r, user.ID)
	if current == nil {
		return
	}
	if current.Role != model.RoleReceiver {
		writeError(w, http.StatusConflict, "profile role is not Food Receiver")
		return
	}

	fields := &model.ReceiverProfile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Address:   req.Address,
		Phone:     req.Phone,
		Allergens: req.Allergens,
	}
	if err := h.profiles.CompleteReceiverProfile(r.Context(), user.ID, req.Username, fields); err != nil {
		if err == storage.ErrDuplicate {
			writeError(w, http.StatusConflict, "username is already taken")
			return
		}
		log.Printf("[profile.receiver] CompleteReceiverProfile error for %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}

	log.Printf("[profile] Receiver profile completed: %s (@%s)", user.ID, req.Username)
	h.respondWithView(w, r, user.ID)
}

// CompleteDonor 捐赠方档案补全
//
// 所有字段必填，营业时间须为 "HH:mm"。没有唯一性约束。
func (h *Handler) CompleteDonor(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req donorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BusinessType == "" || req.ABN == "" || req.ContactNo == "" || req.Address == "" ||
		req.OpeningTime == "" || req.ClosingTime == "" {
		writeError(w, http.StatusBadRequest, "business_type, abn, contact_no, address, opening_time, closing_time are required")
		return
	}
	if !validClockTime(req.OpeningTime) || !validClockTime(req.ClosingTime) {
		writeError(w, http.StatusBadRequest, "opening_time and closing_time must be HH:mm")
		return
	}

	current, _ := h.loadProfile(w, r, user.ID)
	if current == nil {
		return
	}
	if current.Role != model.RoleDonor {
		writeError(w, http.StatusConflict, "profile role is not Food Donor")
		return
	}

	fields := &model.DonorProfile{
		BusinessType: req.BusinessType,
		ABN:          req.ABN,
		ContactNo:    req.ContactNo,
		Address:      req.Address,
		OpeningTime:  req.OpeningTime,
		ClosingTime:  req.ClosingTime,
	}
	if err := h.profiles.CompleteDonorProfile(r.Context(), user.ID, fields); err != nil {
		log.Printf("[profile.donor] CompleteDonorProfile error for %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}

	log.Printf("[profile] Donor profile completed: %s (%s)", user.ID, req.BusinessType)
	h.respondWithView(w, r, user.ID)
}

// Get 档案展示
//
// 未认证 → 401；档案缺失（孤儿凭据）→ 404；
// 其余返回角色条件化视图。
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	h.respondWithView(w, r, user.ID)
}

// Patch 档案临时编辑
//
// 合并语义：未提供的字段保持不变。username 变更时走同一条
// 唯一约束路径。
func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	current, _ := h.loadProfile(w, r, user.ID)
	if current == nil {
		return
	}

	switch current.Role {
	case model.RoleReceiver:
		h.patchReceiver(w, r, current)
	case model.RoleDonor:
		h.patchDonor(w, r, current)
	default:
		writeError(w, http.StatusInternalServerError, "profile carries no valid role")
	}
}

func (h *Handler) patchReceiver(w http.ResponseWriter, r *http.Request, current *model.UserProfile) {
	var req receiverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	merged := model.ReceiverProfile{}
	if current.Receiver != nil {
		merged = *current.Receiver
	}
	if req.FirstName != "" {
		merged.FirstName = req.FirstName
	}
	if req.LastName != "" {
		merged.LastName = req.LastName
	}
	if req.Address != "" {
		merged.Address = req.Address
	}
	if req.Phone != "" {
		merged.Phone = req.Phone
	}
	if req.Allergens != "" {
		merged.Allergens = req.Allergens
	}
	username := current.Username
	if req.Username != "" {
		username = req.Username
	}
	if username == "" {
		// 档案尚未补全且 patch 未给 username —— 无法落盘
		writeError(w, http.StatusBadRequest, "username is required before profile edits")
		return
	}

	if err := h.profiles.CompleteReceiverProfile(r.Context(), current.ID, username, &merged); err != nil {
		if err == storage.ErrDuplicate {
			writeError(w, http.StatusConflict, "username is already taken")
			return
		}
		log.Printf("[profile.patch] receiver merge error for %s: %v", current.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	h.respondWithView(w, r, current.ID)
}

func (h *Handler) patchDonor(w http.ResponseWriter, r *http.Request, current *model.UserProfile) {
	var req donorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if (req.OpeningTime != "" && !validClockTime(req.OpeningTime)) ||
		(req.ClosingTime != "" && !validClockTime(req.ClosingTime)) {
		writeError(w, http.StatusBadRequest, "opening_time and closing_time must be HH:mm")
		return
	}

	merged := model.DonorProfile{}
	if current.Donor != nil {
		merged = *current.Donor
	}
	if req.BusinessType != "" {
		merged.BusinessType = req.BusinessType
	}
	if req.ABN != "" {
		merged.ABN = req.ABN
	}
	if req.ContactNo != "" {
		merged.ContactNo = req.ContactNo
	}
	if req.Address != "" {
		merged.Address = req.Address
	}
	if req.OpeningTime != "" {
		merged.OpeningTime = req.OpeningTime
	}
	if req.ClosingTime != "" {
		merged.ClosingTime = req.ClosingTime
	}

	if err := h.profiles.CompleteDonorProfile(r.Context(), current.ID, &merged); err != nil {
		log.Printf("[profile.patch] donor merge error for %s: %v", current.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	h.respondWithView(w, r, current.ID)
}

// CheckUsername 表单填写期间的可用性预检
//
// 仅供客户端提示用：最终裁决仍是补全写入时的唯一约束，
// 预检通过不保证随后的写入不冲突。
func (h *Handler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	username := r.PathValue("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	owner, err := h.profiles.FindProfileByUsername(r.Context(), username)
	if err != nil {
		log.Printf("[profile.username] FindProfileByUsername error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// 自己已持有的 username 视为可用（幂等重提交）
	available := owner == nil || owner.ID == user.ID
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username":  username,
		"available": available,
	})
}

// ============================================================================
// 内部辅助
// ============================================================================

// loadProfile 读取档案，缺失/出错时直接写响应并返回 nil
func (h *Handler) loadProfile(w http.ResponseWriter, r *http.Request, id string) (*model.UserProfile, error) {
	profile, err := h.profiles.GetProfile(r.Context(), id)
	if err == storage.ErrNotFound {
		writeError(w, http.StatusNotFound, "profile not found")
		return nil, err
	}
	if err != nil {
		log.Printf("[profile] GetProfile error for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, err
	}
	return profile, nil
}

// respondWithView 回读档案并以角色条件化视图响应
func (h *Handler) respondWithView(w http.ResponseWriter, r *http.Request, id string) {
	profile, _ := h.loadProfile(w, r, id)
	if profile == nil {
		return
	}
	writeJSON(w, http.StatusOK, buildView(profile))
}

// buildView 组装角色条件化视图
//
// 统计计数器按角色各取三项；档案工作流从不写它们，缺省 0。
func buildView(p *model.UserProfile) profileView {
	view := profileView{
		ID:               p.ID,
		Email:            p.Email,
		Role:             string(p.Role),
		Username:         p.Username,
		ProfileCompleted: p.ProfileCompleted,
	}

	switch p.Role {
	case model.RoleReceiver:
		view.Receiver = p.Receiver
		view.Stats = map[string]interface{}{
			"items_received":  p.Stats.ItemsReceived,
			"orders_received": p.Stats.OrdersReceived,
			"rating":          p.Stats.Rating,
		}
	case model.RoleDonor:
		if p.Donor != nil {
			view.Donor = &donorView{
				DonorProfile: *p.Donor,
				OpeningHours: p.Donor.OpeningHours(),
			}
		}
		view.Stats = map[string]interface{}{
			"items_donated": p.Stats.ItemsDonated,
			"people_helped": p.Stats.PeopleHelped,
			"rating":        p.Stats.Rating,
		}
	}
	return view
}

// validClockTime 校验 "HH:mm" 格式
func validClockTime(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
