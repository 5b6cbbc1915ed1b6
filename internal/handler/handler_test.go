package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/matricula"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminEmail    = "admin@tutorias.test"
	adminPassword = "admin-password"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []domain.MailMessage
	err  error
}

func (m *fakeMailer) Publish(ctx context.Context, msg domain.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) last(t *testing.T) domain.MailMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail was queued")
	}
	return m.sent[len(m.sent)-1]
}

type testServer struct {
	handler *Handler
	repo    *repository.Repository
	mailer  *fakeMailer
	redis   *miniredis.Miniredis
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{}
	cfg.Environment = "test"
	cfg.Database.Driver = string(matricula.SQLite)
	cfg.Database.DSN = filepath.Join(t.TempDir(), "tutorias.db")
	cfg.Database.ConnectTimeout = 5
	cfg.Database.QueryTimeout = 10
	cfg.Database.TransactionTimeout = 60
	cfg.Database.LockTimeout = 30000
	cfg.Database.MaxIdleConns = 10
	cfg.Database.MaxIdleTime = 60
	cfg.InitialAdmin.Email = adminEmail
	cfg.InitialAdmin.FullName = "Administrador"
	cfg.InitialAdmin.Password = adminPassword
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.Expiration = 3600
	cfg.Redis.OperationExpiration = 5
	cfg.OTP.Expiration = 900
	cfg.NewUser.PasswordLength = 12
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	dbpool, err := repository.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = dbpool.Close() })

	repo, err := repository.NewRepository(cfg, dbpool)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mailer := &fakeMailer{}
	h, err := NewHandler(cfg, repo, mailer, rdb)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	h.RegisterRoutes()

	s := &testServer{handler: h, repo: repo, mailer: mailer, redis: mr}
	s.mustCreateUser(t, "Administrador", adminEmail, adminPassword, domain.RoleAdmin)
	return s
}

// mustCreateUser registers a user straight through the repository.
func (s *testServer) mustCreateUser(t *testing.T, fullName, email, password, role string) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := &domain.User{FullName: fullName, Email: email, PasswordHash: string(hash)}
	if err := s.repo.RegisterUser(context.Background(), user, role); err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookie *http.Cookie) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	s.handler.Mux.ServeHTTP(rec, req)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: decode response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, resp
}

func (s *testServer) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()

	rec, resp := s.do(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, nil)
	if !resp.Success {
		t.Fatalf("login %s: %s", email, resp.Message)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == tokenCookieName {
			return c
		}
	}
	t.Fatalf("login %s: no token cookie", email)
	return nil
}

// data re-decodes the envelope's data field into T.
func data[T any](t *testing.T, resp Response) T {
	t.Helper()

	var v T
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	return v
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	register := func(name, email, role string) Response {
		_, resp := s.do(t, http.MethodPost, "/auth/register", map[string]string{
			"fullName": name,
			"email":    email,
			"password": "contraseña-segura",
			"role":     role,
		}, nil)
		return resp
	}

	tests := []struct {
		name      string
		email     string
		role      string
		wantOK    bool
		matricula string
	}{
		{"first student", "ana@tutorias.test", domain.RoleStudent, true, "A001"},
		{"second student", "beto@tutorias.test", domain.RoleStudent, true, "A002"},
		{"first tutor", "carla@tutorias.test", domain.RoleTutor, true, "T001"},
		{"admin refused", "dario@tutorias.test", domain.RoleAdmin, false, ""},
		{"unknown role", "elena@tutorias.test", "Invitado", false, ""},
		{"duplicate email", "ana@tutorias.test", domain.RoleStudent, false, ""},
		{"invalid email", "not-an-email", domain.RoleStudent, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := register(tt.name, tt.email, tt.role)
			if resp.Success != tt.wantOK {
				t.Fatalf("success = %v (%s), want %v", resp.Success, resp.Message, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			user := data[domain.User](t, resp)
			if user.Matricula != tt.matricula {
				t.Fatalf("matricula = %s, want %s", user.Matricula, tt.matricula)
			}
			mail := s.mailer.last(t)
			if mail.Type != domain.MailWelcome || mail.To != tt.email {
				t.Fatalf("unexpected mail %+v", mail)
			}
		})
	}

	// a failed registration must not burn a number
	if resp := register("fer", "fer@tutorias.test", domain.RoleStudent); data[domain.User](t, resp).Matricula != "A003" {
		t.Fatalf("expected A003, got %+v", resp)
	}
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	s.mailer.err = errors.New("queue down")

	_, resp := s.do(t, http.MethodPost, "/auth/register", map[string]string{
		"fullName": "Gael", "email": "gael@tutorias.test", "password": "contraseña-segura", "role": domain.RoleStudent,
	}, nil)
	if !resp.Success || data[domain.User](t, resp).Matricula != "A001" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestRegisterConcurrent(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	const n = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, resp := s.do(t, http.MethodPost, "/auth/register", map[string]string{
				"fullName": "alumno",
				"email":    "alumno" + formatID(int64(i)) + "@tutorias.test",
				"password": "contraseña-segura",
				"role":     domain.RoleStudent,
			}, nil)
			if !resp.Success {
				t.Errorf("register %d: %s", i, resp.Message)
				return
			}
			mu.Lock()
			seen[data[domain.User](t, resp).Matricula] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	for i := int64(1); i <= n; i++ {
		if m := matricula.Format(matricula.PrefixStudent, i); !seen[m] {
			t.Fatalf("missing %s in %v", m, seen)
		}
	}
}

func TestRegisterContentionAnswers503(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.LockTimeout = 50
	s := newTestServer(t, cfg)

	// hold the writer lock
	tx, err := s.repo.DB().BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rec, resp := s.do(t, http.MethodPost, "/auth/register", map[string]string{
		"fullName": "Hugo", "email": "hugo@tutorias.test", "password": "contraseña-segura", "role": domain.RoleStudent,
	}, nil)
	if rec.Code != http.StatusServiceUnavailable || resp.Success {
		t.Fatalf("expected 503, got %d %+v", rec.Code, resp)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	student := s.mustCreateUser(t, "Iris", "iris@tutorias.test", "iris-password", domain.RoleStudent)

	tests := []struct {
		name   string
		body   map[string]string
		wantOK bool
	}{
		{"by email", map[string]string{"email": student.Email, "password": "iris-password"}, true},
		{"by matricula", map[string]string{"matricula": student.Matricula, "password": "iris-password"}, true},
		{"wrong password", map[string]string{"email": student.Email, "password": "nope"}, false},
		{"unknown matricula", map[string]string{"matricula": "A999", "password": "iris-password"}, false},
		{"no identifier", map[string]string{"password": "iris-password"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := s.do(t, http.MethodPost, "/auth/login", tt.body, nil)
			if resp.Success != tt.wantOK {
				t.Fatalf("success = %v (%s), want %v", resp.Success, resp.Message, tt.wantOK)
			}
			hasCookie := false
			for _, c := range rec.Result().Cookies() {
				if c.Name == tokenCookieName && c.HttpOnly {
					hasCookie = true
				}
			}
			if hasCookie != tt.wantOK {
				t.Fatalf("cookie set = %v, want %v", hasCookie, tt.wantOK)
			}
		})
	}

	student.IsActive = false
	if err := s.repo.UpdateUser(context.Background(), student); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, resp := s.do(t, http.MethodPost, "/auth/login", tests[0].body, nil); resp.Success {
		t.Fatal("inactive user logged in")
	}
}

func TestAuthAndRoles(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	s.mustCreateUser(t, "Juan", "juan@tutorias.test", "juan-password", domain.RoleStudent)
	student := s.login(t, "juan@tutorias.test", "juan-password")

	if rec, _ := s.do(t, http.MethodGet, "/my-info", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", rec.Code)
	}
	forged := &http.Cookie{Name: tokenCookieName, Value: "not-a-jwt"}
	if rec, _ := s.do(t, http.MethodGet, "/my-info", nil, forged); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with forged cookie, got %d", rec.Code)
	}

	rec, resp := s.do(t, http.MethodGet, "/my-info", nil, student)
	if rec.Code != http.StatusOK || data[domain.User](t, resp).Matricula != "A001" {
		t.Fatalf("unexpected my-info %d %+v", rec.Code, resp)
	}

	for _, path := range []string{"/users", "/matriculas/next?role=Alumno"} {
		if rec, _ := s.do(t, http.MethodGet, path, nil, student); rec.Code != http.StatusForbidden {
			t.Fatalf("GET %s as student: expected 403, got %d", path, rec.Code)
		}
	}

	if rec, _ := s.do(t, http.MethodPost, "/auth/logout", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
}

func TestPreviewMatricula(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	admin := s.login(t, adminEmail, adminPassword)

	_, resp := s.do(t, http.MethodGet, "/matriculas/next?role=Tutor", nil, admin)
	if got := data[map[string]string](t, resp); got["matricula"] != "T001" || got["prefix"] != "T" {
		t.Fatalf("unexpected preview %+v", resp)
	}

	s.mustCreateUser(t, "Karla", "karla@tutorias.test", "karla-password", domain.RoleTutor)
	_, resp = s.do(t, http.MethodGet, "/matriculas/next?role=Tutor", nil, admin)
	if got := data[map[string]string](t, resp); got["matricula"] != "T002" {
		t.Fatalf("unexpected preview %+v", resp)
	}

	// previewing twice reserves nothing
	_, resp = s.do(t, http.MethodGet, "/matriculas/next?role=Tutor", nil, admin)
	if got := data[map[string]string](t, resp); got["matricula"] != "T002" {
		t.Fatalf("unexpected preview %+v", resp)
	}

	if _, resp := s.do(t, http.MethodGet, "/matriculas/next?role=Invitado", nil, admin); resp.Success {
		t.Fatal("expected unknown role to fail")
	}
}

func TestAdminCreatesUsers(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	admin := s.login(t, adminEmail, adminPassword)

	_, resp := s.do(t, http.MethodPost, "/users", map[string]string{
		"fullName": "Laura", "email": "laura@tutorias.test", "role": domain.RoleAdmin,
	}, admin)
	if !resp.Success {
		t.Fatalf("create: %s", resp.Message)
	}
	if m := data[domain.User](t, resp).Matricula; m != "X002" {
		t.Fatalf("expected X002, got %s", m)
	}

	mail := s.mailer.last(t)
	account, ok := mail.Data.(domain.NewAccountMailData)
	if mail.Type != domain.MailNewAccount || !ok || account.Matricula != "X002" {
		t.Fatalf("unexpected mail %+v", mail)
	}

	// the mailed password works
	s.login(t, "laura@tutorias.test", account.Password)

	_, resp = s.do(t, http.MethodGet, "/users?role="+domain.RoleAdmin, nil, admin)
	if users := data[[]domain.User](t, resp); len(users) != 2 {
		t.Fatalf("expected 2 admins, got %+v", users)
	}
}

func TestDeactivatedAdminLosesAccess(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	admin := s.login(t, adminEmail, adminPassword)
	second := s.mustCreateUser(t, "Nora", "nora@tutorias.test", "nora-password", domain.RoleAdmin)
	secondCookie := s.login(t, second.Email, "nora-password")

	if rec, _ := s.do(t, http.MethodGet, "/users", nil, secondCookie); rec.Code != http.StatusOK {
		t.Fatalf("active admin: expected 200, got %d", rec.Code)
	}

	if _, resp := s.do(t, http.MethodPatch, "/users/"+formatID(second.ID), map[string]any{"isActive": false}, admin); !resp.Success {
		t.Fatalf("deactivate: %s", resp.Message)
	}
	for _, path := range []string{"/users", "/roles", "/matriculas/next?role=Alumno"} {
		if rec, _ := s.do(t, http.MethodGet, path, nil, secondCookie); rec.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s as deactivated admin: expected 401, got %d", path, rec.Code)
		}
	}

	if _, resp := s.do(t, http.MethodDelete, "/users/"+formatID(second.ID), nil, admin); !resp.Success {
		t.Fatalf("delete: %s", resp.Message)
	}
	if rec, _ := s.do(t, http.MethodGet, "/users", nil, secondCookie); rec.Code != http.StatusUnauthorized {
		t.Fatalf("deleted admin: expected 401, got %d", rec.Code)
	}
}

func TestUpdateUserKeepsMatricula(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	admin := s.login(t, adminEmail, adminPassword)
	student := s.mustCreateUser(t, "Mario", "mario@tutorias.test", "mario-password", domain.RoleStudent)

	_, resp := s.do(t, http.MethodPatch, "/users/"+formatID(student.ID), map[string]any{
		"fullName": "Mario Ruiz", "matricula": "A999",
	}, admin)
	if !resp.Success {
		t.Fatalf("update: %s", resp.Message)
	}
	got := data[domain.User](t, resp)
	if got.FullName != "Mario Ruiz" || got.Matricula != student.Matricula {
		t.Fatalf("unexpected user %+v", got)
	}

	initial, err := s.repo.GetUserByEmail(context.Background(), adminEmail)
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	if _, resp := s.do(t, http.MethodDelete, "/users/"+formatID(initial.ID), nil, admin); resp.Success {
		t.Fatal("initial admin was deleted")
	}

	if _, resp := s.do(t, http.MethodDelete, "/users/"+formatID(student.ID), nil, admin); !resp.Success {
		t.Fatalf("delete: %s", resp.Message)
	}
}

func TestResetPassword(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	user := s.mustCreateUser(t, "Nora", "nora@tutorias.test", "old-password", domain.RoleStudent)

	// unknown emails get the same answer
	if _, resp := s.do(t, http.MethodPost, "/auth/reset-password/require", map[string]string{"email": "ghost@tutorias.test"}, nil); !resp.Success {
		t.Fatalf("unknown email: %s", resp.Message)
	}

	if _, resp := s.do(t, http.MethodPost, "/auth/reset-password/require", map[string]string{"email": user.Email}, nil); !resp.Success {
		t.Fatalf("require: %s", resp.Message)
	}
	mail := s.mailer.last(t)
	reset, ok := mail.Data.(domain.ResetPasswordMailData)
	if !ok || mail.Type != domain.MailResetPassword || reset.Expiration != 15 {
		t.Fatalf("unexpected mail %+v", mail)
	}

	key := otpKey(user.Matricula, domain.MailResetPassword)
	if ttl := s.redis.TTL(key); ttl != 900*time.Second {
		t.Fatalf("unexpected otp ttl %v", ttl)
	}

	wrong := "000000"
	if reset.OTP == wrong {
		wrong = "111111"
	}
	confirm := func(otp string) Response {
		_, resp := s.do(t, http.MethodPost, "/auth/reset-password/confirm", map[string]string{
			"email": user.Email, "otp": otp, "password": "new-password",
		}, nil)
		return resp
	}
	if confirm(wrong).Success {
		t.Fatal("wrong otp accepted")
	}
	if resp := confirm(reset.OTP); !resp.Success {
		t.Fatalf("confirm: %s", resp.Message)
	}
	if s.redis.Exists(key) {
		t.Fatal("otp was not consumed")
	}

	s.login(t, user.Email, "new-password")
}

func TestResetPasswordOTPExpires(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	user := s.mustCreateUser(t, "Olga", "olga@tutorias.test", "old-password", domain.RoleStudent)

	s.do(t, http.MethodPost, "/auth/reset-password/require", map[string]string{"email": user.Email}, nil)
	reset := s.mailer.last(t).Data.(domain.ResetPasswordMailData)

	s.redis.FastForward(901 * time.Second)

	_, resp := s.do(t, http.MethodPost, "/auth/reset-password/confirm", map[string]string{
		"email": user.Email, "otp": reset.OTP, "password": "new-password",
	}, nil)
	if resp.Success {
		t.Fatal("expired otp accepted")
	}
}

func TestUpdateEmail(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	s.mustCreateUser(t, "Pablo", "pablo@tutorias.test", "pablo-password", domain.RoleStudent)
	cookie := s.login(t, "pablo@tutorias.test", "pablo-password")

	if _, resp := s.do(t, http.MethodPost, "/my-info/update-email/require", map[string]string{"newEmail": adminEmail}, cookie); resp.Success {
		t.Fatal("taken email accepted")
	}

	if _, resp := s.do(t, http.MethodPost, "/my-info/update-email/require", map[string]string{"newEmail": "pablo.nuevo@tutorias.test"}, cookie); !resp.Success {
		t.Fatalf("require: %s", resp.Message)
	}
	change := s.mailer.last(t).Data.(domain.ChangeEmailMailData)

	_, resp := s.do(t, http.MethodPost, "/my-info/update-email/confirm", map[string]string{
		"newEmail": "pablo.nuevo@tutorias.test", "otp": change.OTP,
	}, cookie)
	if !resp.Success || data[domain.User](t, resp).Email != "pablo.nuevo@tutorias.test" {
		t.Fatalf("confirm: %+v", resp)
	}
}
