package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"foodnextdoor/internal/apiserver/auth"
	"foodnextdoor/internal/model"
	"foodnextdoor/internal/storage"
)

func newTestHandler() (*Handler, *storage.MemStore) {
	store := storage.NewMemStore()
	return NewHandler(store), store
}

// seedProfile 写入注册工作流产出的初始档案文档
func seedProfile(t *testing.T, store *storage.MemStore, id string, role model.Role) {
	t.Helper()
	now := time.Now()
	err := store.CreateProfile(context.Background(), &model.UserProfile{
		ID:               id,
		Email:            id + "@example.com",
		Role:             role,
		ProfileCompleted: false,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

func authedRequest(method, path string, body interface{}, user *auth.AuthUser) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, path, &buf)
	if user != nil {
		r = r.WithContext(auth.WithAuthUser(r.Context(), user))
	}
	return r
}

func asUser(id string) *auth.AuthUser {
	return &auth.AuthUser{ID: id, Email: id + "@example.com"}
}

var receiverForm = receiverRequest{
	FirstName: "Alice",
	LastName:  "Nguyen",
	Username:  "alice_n",
	Address:   "12 Hill St",
	Phone:     "0400000001",
	Allergens: "peanuts",
}

func completeReceiver(t *testing.T, h *Handler, id string, form receiverRequest) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.CompleteReceiver(w, authedRequest("PUT", "/api/v1/profile/receiver", form, asUser(id)))
	return w
}

func TestCompleteReceiverRoundTrip(t *testing.T) {
	h, store := newTestHandler()
	seedProfile(t, store, "u1", model.RoleReceiver)

	w := completeReceiver(t, h, "u1", receiverForm)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var view profileView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if !view.ProfileCompleted {
		t.Error("profile not marked completed")
	}
	if view.Username != "alice_n" {
		t.Errorf("username = %q", view.Username)
	}
	// 补全写入的值与展示视图逐字一致
	want := model.ReceiverProfile{
		FirstName: "Alice", LastName: "Nguyen", Address: "12 Hill St",
		Phone: "0400000001", Allergens: "peanuts",
	}
	if view.Receiver == nil || *view.Receiver != want {
		t.Errorf("receiver fields = %+v, want %+v", view.Receiver, want)
	}
	if view.Donor != nil {
		t.Error("receiver view carries donor fields")
	}
	// 接收方三项统计，缺省 0
	wantStats := map[string]interface{}{"items_received": 0.0, "orders_received": 0.0, "rating": 0.0}
	if !reflect.DeepEqual(view.Stats, wantStats) {
		t.Errorf("stats = %v, want %v", view.Stats, wantStats)
	}
	// 合并写：创建期字段保持不变
	stored, _ := store.GetProfile(context.Background(), "u1")
	if stored.Email != "u1@example.com" || stored.Role != model.RoleReceiver {
		t.Errorf("creation-time fields clobbered: %+v", stored)
	}
}

func TestCompleteReceiverValidation(t *testing.T) {
	h, store := newTestHandler()
	seedProfile(t, store, "u1", model.RoleReceiver)

	mutations := []func(r *receiverRequest){
		func(r *receiverRequest) { r.FirstName = "" },
		func(r *receiverRequest) { r.LastName = "" },
		func(r *receiverRequest) { r.Username = "" },
		func(r *receiverRequest) { r.Address = "" },
		func(r *receiverRequest) { r.Phone = "" },
	}
	for _, mutate := range mutations {
		form := receiverForm
		mutate(&form)
		w := completeReceiver(t, h, "u1", form)
		if w.Code != http.StatusBadRequest {
			t.Errorf("form %+v: status = %d, want 400", form, w.Code)
		}
	}

	// 校验失败不触存储
	stored, _ := store.GetProfile(context.Background(), "u1")
	if stored.ProfileCompleted || stored.Username != "" {
		t.Errorf("profile written despite validation failures: %+v", stored)
	}

	// allergens 可选
	form := receiverForm
	form.Allergens = ""
	if w := completeReceiver(t, h, "u1", form); w.Code != http.StatusOK {
		t.Errorf("allergens omitted: status = %d", w.Code)
	}
}

func TestCompleteReceiverIdempotent(t *testing.T) {
	h, store := newTestHandler()
	seedProfile(t, store, "u1", model.RoleReceiver)

	if w := completeReceiver(t, h, "u1", receiverForm); w.Code != http.StatusOK {
		t.Fatalf("first submit: %d", w.Code)
	}
	first, _ := store.GetProfile(context.Background(), "u1")

	// 相同表单重复提交幂等
	if w := completeReceiver(t, h, "u1", receiverForm); w.Code != http.StatusOK {
		t.Fatalf("resubmit: %d", w.Code)
	}
	second, _ := store.GetProfile(context.Background(), "u1")
	if first.Username != second.Username || *first.Receiver != *second.Receiver {
		t.Errorf("resubmission changed stored state: %+v vs %+v", first, second)
	}
}

func TestUsernameTakenByAnotherIdentity(t *testing.T) {
	h, store := newTestHandler()
	seedProfile(t, store, "u1", model.RoleReceiver)
	seedProfile(t, store, "u2", model.RoleReceiver)

	if w := completeReceiver(t, h, "u1", receiverForm); w.Code != http.StatusOK {
		t.Fatalf("u1 completion: %d", w.Code)
	}

	// u2 抢占同名 → 409，且档案未被写入
	w := completeReceiver(t, h, "u2", receiverForm)
	if w.Code != http.StatusConflict {
		t.Fatalf("u2 completion with taken username: status = %d, want 409", w.Code)
	}
	stored, _ := store.GetProfile(context.Background(), "u2")
	if stored.ProfileCompleted || stored.Username != "" {
		t.Errorf("conflicting completion partially written: %+v", stored)
	}
}

func TestDonorScenario(t *testing.T) {
	h, store := newTestHandler()
	seedProfile(t, store, "d1", model.RoleDonor)

	form := donorRequest{
		BusinessType: "Bakery",
		ABN:          "51824753556",
		ContactNo:    "0298765432",
		Address:      "5 Baker Ln",
		OpeningTime:  "08:00",
		ClosingTime:  "17:30",
	}
	w := httptest.NewRecorder()
	h.CompleteDonor(w, authedRequest("PUT", "/api/v1/profile/donor", form, asUser("d1")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var view profileView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if !view.ProfileCompleted {
		t.Error("donor profile not marked completed")
	}
	if view.Donor == nil {
		t.Fatal("no donor fields in view")
	}
	if view.Donor.OpeningHours != "08:00 - 17:30" {
		t.Errorf("opening_hours = %q", view.Donor.OpeningHours)
	}
	if view.Receiver != nil {
		t.Error("donor view carries receiver fields")
	}
	wantStats := map[string]interface{}{"items_donated": 0.0, "people_helped": 0.0, "rating": 0.0}
	if !reflect.DeepEqual(view.Stats, wantStats) {
		t.Errorf("stats = %v, want %v", view.Stats, wantStats)
	}
	// 捐赠方补全不写 username
	stored, _ := store.GetProfile(context.Background(), "d1")
	if stored.Username != "" {
		t.Errorf("donor completion wrote username %q", stored.Username)
	}
}

func TestDonorValidation(t *testing.T) {
	h, store := newTestHandler()
	seedProfile(t, store, "d1", model.RoleDonor)

	base := donorRequest{
		BusinessType: "Bakery", ABN: "51824753556", ContactNo: "0298765432",
		Address: "5 Baker Ln", OpeningTime: "08:00", ClosingTime: "17:30",
	}

	tests := []struct {
		name   string
		mutate func(*donorRequest)
	}{
		{"empty business type", func(r *donorRequest) { r.BusinessType = "" }},
		{"empty abn", func(r *donorRequest) { r.ABN = "" }},
		{"empty contact", func(r *donorRequest) { r.ContactNo = "" }},
		{"empty address", func(r *donorRequest) { r.Address = "" }},
		{"empty opening time", func(r *donorRequest) { r.OpeningTime = "" }},
		{"empty closing time", func(r *donorRequest) { r.ClosingTime = "" }},
		{"malformed opening time", func(r *donorRequest) { r.OpeningTime = "8am" }},
		{"out of range", func(r *donorRequest) { r.ClosingTime = "25:99" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := base
			tt.mutate(&form)
			w := httptest.NewRecorder()
			h.CompleteDonor(w, authedRequest("PUT", "/api/v1/profile/donor", form, asUser("d1")))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}

	stored, _ := store.GetProfile(context.Background(), "d1")
	if stored.ProfileCompleted {
		t.Error("profile written despite validation failures")
	}
}

func TestRoleMismatch(t *testing.T) {
	h, store := newTestHandler()
	seedProfile(t, store, "d1", model.RoleDonor)
	seedProfile(t, store, "u1", model.RoleReceiver)

	// 捐赠方提交接收方表单
	if w := completeReceiver(t, h, "d1", receiverForm); w.Code != http.StatusConflict {
		t.Errorf("receiver form on donor profile: status = %d, want 409", w.Code)
	}

	// 接收方提交捐赠方表单
	form := donorRequest{
		BusinessType: "Bakery", ABN: "1", ContactNo: "2", Address: "3",
		OpeningTime: "08:00", ClosingTime: "17:00",
	}
	w := httptest.NewRecorder()
	h.CompleteDonor(w, authedRequest("PUT", "/api/v1/profile/donor", form, asUser("u1")))
	if w.Code != http.StatusConflict {
		t.Errorf("donor form on receiver profile: status = %d, want 409", w.Code)
	}
}

func TestGetProfile(t *testing.T) {
	h, store := newTestHandler()

	// 未认证
	w := httptest.NewRecorder()
	h.Get(w, authedRequest("GET", "/api/v1/profile", nil, nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated: status = %d, want 401", w.Code)
	}

	// 孤儿凭据：档案缺失
	w = httptest.NewRecorder()
	h.Get(w, authedRequest("GET", "/api/v1/profile", nil, asUser("ghost")))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing profile: status = %d, want 404", w.Code)
	}

	// 未补全档案也可展示
	seedProfile(t, store, "u1", model.RoleReceiver)
	w = httptest.NewRecorder()
	h.Get(w, authedRequest("GET", "/api/v1/profile", nil, asUser("u1")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var view profileView
	json.Unmarshal(w.Body.Bytes(), &view)
	if view.ProfileCompleted || view.Receiver != nil {
		t.Errorf("incomplete profile view: %+v", view)
	}
	if view.Stats["items_received"] != 0.0 {
		t.Errorf("stats not defaulted: %v", view.Stats)
	}
}

func TestPatchMergesFields(t *testing.T) {
	h, store := newTestHandler()
	seedProfile(t, store, "u1", model.RoleReceiver)
	if w := completeReceiver(t, h, "u1", receiverForm); w.Code != http.StatusOK {
		t.Fatal("setup completion failed")
	}

	// 只改 phone，其余字段保持
	w := httptest.NewRecorder()
	h.Patch(w, authedRequest("PATCH", "/api/v1/profile", receiverRequest{Phone: "0499999999"}, asUser("u1")))
	if w.Code != http.StatusOK {
		t.Fatalf("patch: status = %d, body = %s", w.Code, w.Body.String())
	}
	stored, _ := store.GetProfile(context.Background(), "u1")
	if stored.Receiver.Phone != "0499999999" {
		t.Errorf("phone not updated: %q", stored.Receiver.Phone)
	}
	if stored.Receiver.FirstName != "Alice" || stored.Username != "alice_n" {
		t.Errorf("merge clobbered other fields: %+v", stored)
	}
}

func TestPatchUsernameGuard(t *testing.T) {
	h, store := newTestHandler()
	seedProfile(t, store, "u1", model.RoleReceiver)
	seedProfile(t, store, "u2", model.RoleReceiver)
	completeReceiver(t, h, "u1", receiverForm)

	form := receiverForm
	form.Username = "bob_k"
	completeReceiver(t, h, "u2", form)

	// u2 改名到 u1 已占用的 username → 409
	w := httptest.NewRecorder()
	h.Patch(w, authedRequest("PATCH", "/api/v1/profile", receiverRequest{Username: "alice_n"}, asUser("u2")))
	if w.Code != http.StatusConflict {
		t.Fatalf("patch to taken username: status = %d, want 409", w.Code)
	}
	stored, _ := store.GetProfile(context.Background(), "u2")
	if stored.Username != "bob_k" {
		t.Errorf("username changed despite conflict: %q", stored.Username)
	}
}

func TestCheckUsername(t *testing.T) {
	h, store := newTestHandler()
	seedProfile(t, store, "u1", model.RoleReceiver)
	seedProfile(t, store, "u2", model.RoleReceiver)
	completeReceiver(t, h, "u1", receiverForm)

	check := func(user, username string) map[string]interface{} {
		t.Helper()
		r := authedRequest("GET", "/api/v1/profile/username/"+username, nil, asUser(user))
		r.SetPathValue("username", username)
		w := httptest.NewRecorder()
		h.CheckUsername(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &resp)
		return resp
	}

	if resp := check("u2", "alice_n"); resp["available"] != false {
		t.Errorf("taken username reported available: %v", resp)
	}
	if resp := check("u2", "fresh_name"); resp["available"] != true {
		t.Errorf("free username reported taken: %v", resp)
	}
	// 自己持有的 username 视为可用
	if resp := check("u1", "alice_n"); resp["available"] != true {
		t.Errorf("own username reported taken: %v", resp)
	}
}
