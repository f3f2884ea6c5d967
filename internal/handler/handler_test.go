package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"companion-go/internal/middleware"
	"companion-go/internal/model"
	"companion-go/internal/service"
	"companion-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

// fakeUsers 只实现鉴权需要的部分，其余方法返回固定值。
type fakeUsers struct {
	user        *model.User
	registerErr error
}

func (f *fakeUsers) Register(email, _ string) (*model.User, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &model.User{ID: 7, Email: email}, nil
}
func (f *fakeUsers) Login(string, string) (string, string, error) { return "a", "r", nil }
func (f *fakeUsers) GetProfile(userID uint) (*model.User, error) {
	if f.user == nil || f.user.ID != userID {
		return nil, service.ErrNotFound
	}
	return f.user, nil
}
func (f *fakeUsers) Logout(context.Context, string) error                 { return nil }
func (f *fakeUsers) IsTokenRevoked(context.Context, string) (bool, error) { return false, nil }
func (f *fakeUsers) RefreshToken(context.Context, string) (string, string, error) {
	return "", "", service.ErrInvalidToken
}

type fakeChat struct {
	ready    bool
	mu       sync.Mutex
	sessions []string
}

func (f *fakeChat) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...)
}

func (f *fakeChat) Respond(_ context.Context, _ *model.User, sessionID, message string) (*service.ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, service.ErrInvalidInput
	}
	if !f.ready {
		return nil, service.ErrServiceUnavailable
	}
	f.mu.Lock()
	f.sessions = append(f.sessions, sessionID)
	f.mu.Unlock()
	if sessionID == "" {
		sessionID = "generated"
	}
	return &service.ChatResult{Response: "echo: " + message, SessionID: sessionID}, nil
}
func (f *fakeChat) History(context.Context, uint) ([]model.ChatMessage, error) {
	return []model.ChatMessage{{Sender: model.SenderUser, Message: "hi"}}, nil
}
func (f *fakeChat) Search(context.Context, uint, string) ([]model.SearchHit, error) {
	return nil, service.ErrFeatureDisabled
}
func (f *fakeChat) Ready() bool { return f.ready }

func withUser(user *model.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUser, user)
		c.Next()
	}
}

func newChatRouter(chat *fakeChat) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(chat, &fakeUsers{}, token.NewJWTManager("secret", 1, 1))
	r := gin.New()
	r.Use(withUser(&model.User{ID: 1}))
	r.POST("/chat", h.Chat)
	r.GET("/chat/history", h.History)
	r.GET("/chat/search", h.Search)
	return r
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	return rec
}

func TestChatStatusCodes(t *testing.T) {
	cases := []struct {
		name  string
		ready bool
		body  string
		want  int
	}{
		{"ok", true, `{"message":"hello"}`, http.StatusOK},
		{"empty message", true, `{"message":"   "}`, http.StatusBadRequest},
		{"bad json", true, `{`, http.StatusBadRequest},
		{"not ready", false, `{"message":"hello"}`, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(newChatRouter(&fakeChat{ready: tc.ready}), "/chat", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status=%d, want %d, body=%s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestChatReturnsResponseAndSessionID(t *testing.T) {
	rec := postJSON(newChatRouter(&fakeChat{ready: true}), "/chat", `{"message":"hello","sessionId":"s1"}`)
	env := decode(t, rec)
	var result service.ChatResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("data: %v", err)
	}
	if result.Response != "echo: hello" || result.SessionID != "s1" {
		t.Fatalf("result=%+v", result)
	}
}

func TestSearchDisabledIsNotImplemented(t *testing.T) {
	rec := httptest.NewRecorder()
	newChatRouter(&fakeChat{ready: true}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/search?q=x", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", Health(&fakeChat{ready: false}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body struct {
		Status  string `json:"status"`
		AIReady bool   `json:"ai_ready"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || body.Status != "healthy" || body.AIReady {
		t.Fatalf("code=%d body=%+v", rec.Code, body)
	}
}

func TestRegisterConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/register", NewUserHandler(&fakeUsers{registerErr: service.ErrEmailTaken}).Register)

	if rec := postJSON(r, "/register", `{"email":"a@b.c","password":"pw"}`); rec.Code != http.StatusConflict {
		t.Fatalf("status=%d", rec.Code)
	}
	if rec := postJSON(r, "/register", `{"email":"a@b.c"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing password: status=%d", rec.Code)
	}
}

type fakePersonas struct{ updated *model.PersonaPatch }

func (f *fakePersonas) Get(uint) (*model.Persona, error) {
	p := model.DefaultPersona()
	return &p, nil
}
func (f *fakePersonas) Update(_ context.Context, _ uint, patch model.PersonaPatch) (*model.Persona, error) {
	f.updated = &patch
	p := model.DefaultPersona()
	patch.Apply(&p)
	return &p, nil
}

func TestPersonaUpdateValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	personas := &fakePersonas{}
	r := gin.New()
	r.Use(withUser(&model.User{ID: 1}))
	r.PUT("/persona", NewPersonaHandler(personas).Update)

	long := strings.Repeat("x", maxPersonaName+1)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/persona", strings.NewReader(`{"name":"`+long+`"}`))
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || personas.updated != nil {
		t.Fatalf("status=%d updated=%v", rec.Code, personas.updated)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/persona", strings.NewReader(`{"name":"  Sam  "}`))
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var p model.Persona
	if err := json.Unmarshal(decode(t, rec).Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Name != "Sam" || p.Relationship != model.DefaultPersonaRelationship {
		t.Fatalf("persona=%+v", p)
	}
}

type fakeAdmin struct{ deleted uint }

func (f *fakeAdmin) ListUsers(context.Context, int, int) (*service.UserListResponse, error) {
	return &service.UserListResponse{}, nil
}
func (f *fakeAdmin) GetUserTranscript(context.Context, uint) ([]model.ChatMessage, error) {
	return nil, service.ErrNotFound
}
func (f *fakeAdmin) DeleteUser(_ context.Context, userID uint) error {
	f.deleted = userID
	return nil
}

func TestAdminUserIDParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	admin := &fakeAdmin{}
	h := NewAdminHandler(admin)
	r := gin.New()
	r.GET("/admin/users/:userId/transcript", h.GetUserTranscript)
	r.DELETE("/admin/users/:userId", h.DeleteUser)

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodDelete, "/admin/users/abc", http.StatusBadRequest},
		{http.MethodDelete, "/admin/users/0", http.StatusBadRequest},
		{http.MethodGet, "/admin/users/3/transcript", http.StatusNotFound},
		{http.MethodDelete, "/admin/users/9", http.StatusOK},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.want {
			t.Fatalf("%s %s: status=%d, want %d", tc.method, tc.path, rec.Code, tc.want)
		}
	}
	if admin.deleted != 9 {
		t.Fatalf("deleted=%d", admin.deleted)
	}
}

func TestWebSocketChat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtManager := token.NewJWTManager("secret", 1, 1)
	users := &fakeUsers{user: &model.User{ID: 5, Email: "a@b.c", Role: model.RoleUser}}
	chat := &fakeChat{ready: true}
	r := gin.New()
	r.GET("/chat/ws/:token", NewChatHandler(chat, users, jwtManager).Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws/"

	// 无效 token 在握手阶段就被拒绝
	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"bogus", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake, err=%v resp=%v", err, resp)
	}

	tok, err := jwtManager.GenerateToken(5, "a@b.c", model.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+tok, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ChatRequest{Message: "hello"}); err != nil {
		t.Fatal(err)
	}
	var first service.ChatResult
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Response != "echo: hello" || first.SessionID != "generated" {
		t.Fatalf("first=%+v", first)
	}

	// 纯文本帧沿用同一连接上的会话
	if err := conn.WriteMessage(websocket.TextMessage, []byte("again")); err != nil {
		t.Fatal(err)
	}
	var second service.ChatResult
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	if seen := chat.seen(); second.SessionID != "generated" || seen[1] != "generated" {
		t.Fatalf("second=%+v sessions=%v", second, seen)
	}

	if err := conn.WriteJSON(ChatRequest{Message: " "}); err != nil {
		t.Fatal(err)
	}
	var errFrame map[string]string
	if err := conn.ReadJSON(&errFrame); err != nil {
		t.Fatal(err)
	}
	if errFrame["error"] == "" {
		t.Fatalf("expected error frame, got %v", errFrame)
	}
}
