package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/chepyr/go-task-api/internal/cache"
	"github.com/chepyr/go-task-api/internal/db"
	"github.com/chepyr/go-task-api/internal/models"
)

type MockUserRepository struct {
	users     map[string]*models.User
	createErr error
	getErr    error
	mutex     sync.Mutex
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*models.User)}
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.users[user.Email]; exists {
		return db.ErrDuplicate
	}
	m.users[user.Email] = user
	return nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	user, exists := m.users[email]
	if !exists {
		return nil, db.ErrNotFound
	}
	return user, nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, db.ErrNotFound
}

func SetupMockUser(email, password string) *MockUserRepository {
	repo := NewMockUserRepository()
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	repo.users[email] = &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	return repo
}

type MockSessionRepository struct {
	sessions  map[string]*models.Session
	createErr error
	getErr    error
	getCalls  int
	mutex     sync.Mutex
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{sessions: make(map[string]*models.Session)}
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.Session) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	session, ok := m.sessions[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return session, nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, id string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var n int64
	for id, session := range m.sessions {
		if session.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MockSessionRepository) has(id string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// fakeSessionCache keeps sessions in a map and can be told to fail lookups.
type fakeSessionCache struct {
	sessions  map[string]*models.Session
	getErr    error
	deleteErr error
	mutex     sync.Mutex
}

func newFakeSessionCache() *fakeSessionCache {
	return &fakeSessionCache{sessions: make(map[string]*models.Session)}
}

func (c *fakeSessionCache) Get(ctx context.Context, token string) (*models.Session, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.getErr != nil {
		return nil, c.getErr
	}
	session, ok := c.sessions[token]
	if !ok {
		return nil, cache.ErrMiss
	}
	return session, nil
}

func (c *fakeSessionCache) Set(ctx context.Context, session *models.Session) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.sessions[session.ID] = session
	return nil
}

func (c *fakeSessionCache) Delete(ctx context.Context, token string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	delete(c.sessions, token)
	return nil
}

func (c *fakeSessionCache) has(token string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.sessions[token]
	return ok
}

// testServer wires a Handler to an in-memory sqlite database.
type testServer struct {
	handler *Handler
	conn    *sql.DB
	routes  http.Handler
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Connect(ctx, "sqlite3", ":memory:", db.PoolConfig{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	h := &Handler{
		UserRepo:    db.NewUserRepository(conn),
		SessionRepo: db.NewSessionRepository(conn),
		TaskRepo:    db.NewTaskRepository(conn),
		TagRepo:     db.NewTagRepository(conn),
		WSHub:       NewWSHub(zerolog.Nop()),
		Logger:      zerolog.Nop(),
	}
	return &testServer{handler: h, conn: conn, routes: h.Routes()}
}

// createUser stores a user directly, hashing with the cheapest bcrypt cost.
func (s *testServer) createUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	user := &models.User{ID: uuid.New(), Email: email, PasswordHash: string(hash), CreatedAt: now, UpdatedAt: now}
	if err := s.handler.UserRepo.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// login goes through the real endpoint and returns the access token.
func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", rr.Code, rr.Body.String())
	}
	var resp loginResponse
	decodeBody(t, rr, &resp)
	return resp.AccessToken
}

// userWithToken creates a user and logs them in.
func (s *testServer) userWithToken(t *testing.T, email string) (*models.User, string) {
	t.Helper()
	user := s.createUser(t, email, "secret123")
	return user, s.login(t, email, "secret123")
}

// do sends body as JSON; a string body is sent verbatim.
func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.routes.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	decodeBody(t, rr, &resp)
	return resp.Error
}
