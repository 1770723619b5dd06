// Package listing 食物分享信息流
package listing

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"foodnextdoor/internal/apiserver/auth"
	"foodnextdoor/internal/model"
	"foodnextdoor/internal/storage"
)

// defaultFeedLimit 信息流单页上限
const defaultFeedLimit = 50

// Handler 信息流 HTTP 处理器
type Handler struct {
	listings storage.ListingStore
}

// NewHandler 创建信息流处理器
func NewHandler(listings storage.ListingStore) *Handler {
	return &Handler{listings: listings}
}

// RegisterRoutes 注册信息流相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/listings", h.List)
	mux.HandleFunc("GET /api/v1/listings/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/listings", h.Create)
}

type createRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	IsFree      bool      `json:"is_free"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

// List 信息流，按创建时间倒序，?search= 做标题/描述子串过滤
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if auth.GetAuthUser(r.Context()) == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	search := r.URL.Query().Get("search")
	listings, err := h.listings.ListListings(r.Context(), search, defaultFeedLimit)
	if err != nil {
		log.Printf("[listing.list] ListListings error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load listings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listings": listings,
		"count":    len(listings),
	})
}

// Get 单条查询
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if auth.GetAuthUser(r.Context()) == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	listing, err := h.listings.GetListing(r.Context(), r.PathValue("id"))
	if err == storage.ErrNotFound {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		log.Printf("[listing.get] GetListing error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Create 发布分享，仅捐赠方可用
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if user.Role != string(model.RoleDonor) {
		writeError(w, http.StatusForbidden, "only donors can create listings")
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	listing := &model.Listing{
		ID:          generateID("lst"),
		DonorID:     user.ID,
		Title:       req.Title,
		Description: req.Description,
		Provider:    req.Provider,
		IsFree:      req.IsFree,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   time.Now(),
	}
	if err := h.listings.CreateListing(r.Context(), listing); err != nil {
		log.Printf("[listing.create] CreateListing error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create listing")
		return
	}

	log.Printf("[listing] Created: %s by %s", listing.ID, user.ID)
	writeJSON(w, http.StatusCreated, listing)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// generateID 生成带前缀的唯一标识符
func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
