// Package fakeservice is an in-process document service for tests. It speaks
// the same routes, JSON shapes and FastAPI-style error bodies as the real one.
package fakeservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/docsession/session"
)

// DefaultTTL is the lifetime of tokens the fake service issues.
const DefaultTTL = 30 * time.Minute

type account struct {
	user     session.User
	password string
	deleted  bool
}

type document struct {
	id          int64
	owner       int64
	filename    string
	version     int
	description *string
	data        []byte
	uploaded    time.Time
	deleted     bool
}

// Service is the fake document service. The zero value is not usable; call New.
type Service struct {
	secret []byte
	router chi.Router

	// TTL is the lifetime of newly issued tokens.
	TTL time.Duration

	mu       sync.Mutex
	accounts map[string]*account
	docs     map[int64]*document
	revoked  map[string]bool
	nextUser int64
	nextDoc  int64

	requests     atomic.Int64
	unauthorized atomic.Int64
	waiting      atomic.Int64
	// hold, when non-nil, blocks authenticated handlers until it is closed.
	hold chan struct{}
}

// New returns a Service with no accounts.
func New() *Service {
	s := &Service{
		secret:   []byte("fake-service-secret"),
		TTL:      DefaultTTL,
		accounts: make(map[string]*account),
		docs:     make(map[int64]*document),
		revoked:  make(map[string]bool),
	}
	s.router = s.routes()
	return s
}

// Start serves s on a loopback listener. The caller closes it.
func (s *Service) Start() *httptest.Server {
	return httptest.NewServer(s)
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	s.router.ServeHTTP(w, r)
}

// Requests reports how many requests were served.
func (s *Service) Requests() int64 { return s.requests.Load() }

// Unauthorized reports how many requests were answered with 401.
func (s *Service) Unauthorized() int64 { return s.unauthorized.Load() }

// AddUser registers an account and returns it.
func (s *Service) AddUser(email, password, fullName string, role session.Role) session.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUser++
	u := session.User{ID: s.nextUser, Email: email, FullName: fullName, Role: role}
	s.accounts[email] = &account{user: u, password: password}
	return u
}

// AddFile stores a document owned by the given user and returns its id.
func (s *Service) AddFile(owner int64, filename string, data []byte) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFileLocked(owner, filename, data)
}

func (s *Service) addFileLocked(owner int64, filename string, data []byte) int64 {
	s.nextDoc++
	s.docs[s.nextDoc] = &document{
		id:       s.nextDoc,
		owner:    owner,
		filename: filename,
		version:  1,
		data:     append([]byte(nil), data...),
		uploaded: time.Now().UTC(),
	}
	return s.nextDoc
}

// Waiting reports how many requests are blocked by Hold.
func (s *Service) Waiting() int64 { return s.waiting.Load() }

// Revoke makes the service reject token from now on.
func (s *Service) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// Hold blocks authenticated requests until the returned release func runs.
func (s *Service) Hold() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.hold = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Issue signs a token for u that expires after ttl.
func (s *Service) Issue(u session.User, ttl time.Duration) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": u.ID,
		"email":   u.Email,
		"role":    string(u.Role),
		"exp":     time.Now().Add(ttl).Unix(),
	}).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return tok
}

// FileContent returns the stored bytes of a document.
func (s *Service) FileContent(id int64) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), d.data...), true
}

func (s *Service) routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", s.handleLogin)
	r.Post("/register", s.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/upload", s.handleUpload)
		r.Route("/files", func(r chi.Router) {
			r.Get("/", s.handleListFiles)
			r.Put("/{id}", s.handleRename)
			r.Delete("/{id}", s.handleDelete)
			r.Put("/description/{id}", s.handleDescribe)
			r.Get("/download/{id}", s.handleContent("attachment"))
			r.Get("/preview/{id}", s.handleContent("inline"))
			r.Put("/upload/{id}", s.handleReplace)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/users", s.handleAdminUsers)
			r.Put("/users/{id}/{action}", s.handleAdminUser)
			r.Delete("/users/{id}/permanent", s.handleAdminPurgeUser)
			r.Get("/files", s.handleAdminFiles)
			r.Put("/files/{id}/{action}", s.handleAdminFile)
			r.Delete("/files/{id}/permanent", s.handleAdminPurgeFile)
		})
	})
	return r
}

type ctxKey struct{}

func contextWithClaims(r *http.Request, c claims) context.Context {
	return context.WithValue(r.Context(), ctxKey{}, c)
}

func claimsFrom(r *http.Request) claims {
	c, _ := r.Context().Value(ctxKey{}).(claims)
	return c
}

type claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func (s *Service) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			s.reject(w, "Not authenticated")
			return
		}
		var c claims
		_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return s.secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			s.reject(w, "Invalid or expired token")
			return
		}

		s.mu.Lock()
		hold := s.hold
		s.mu.Unlock()
		if hold != nil {
			s.waiting.Add(1)
			<-hold
			s.waiting.Add(-1)
		}
		s.mu.Lock()
		revoked := s.revoked[raw]
		s.mu.Unlock()
		if revoked {
			s.reject(w, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithClaims(r, c)))
	})
}

func (s *Service) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claimsFrom(r).Role != string(session.RoleAdmin) {
			writeDetail(w, http.StatusForbidden, "Admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) reject(w http.ResponseWriter, detail string) {
	s.unauthorized.Add(1)
	writeDetail(w, http.StatusUnauthorized, detail)
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	s.mu.Lock()
	acct, ok := s.accounts[in.Email]
	s.mu.Unlock()
	if !ok || acct.deleted || acct.password != in.Password {
		writeDetail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  acct.user,
		"token": s.Issue(acct.user, s.TTL),
	})
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	if in.Role == "" {
		in.Role = string(session.RoleUser)
	}
	if in.Role != string(session.RoleUser) && in.Role != string(session.RoleAdmin) {
		writeDetail(w, http.StatusBadRequest, "Invalid role")
		return
	}
	s.mu.Lock()
	_, exists := s.accounts[in.Email]
	s.mu.Unlock()
	if exists {
		writeDetail(w, http.StatusBadRequest, "User already exists")
		return
	}
	s.AddUser(in.Email, in.Password, in.FullName, session.Role(in.Role))
	writeJSON(w, http.StatusOK, map[string]any{"status": 200, "message": "User successfully registered"})
}

func (s *Service) handleListFiles(w http.ResponseWriter, r *http.Request) {
	owner := claimsFrom(r).UserID
	search := strings.ToLower(r.URL.Query().Get("search"))

	s.mu.Lock()
	out := []map[string]any{}
	for _, d := range s.sortedDocsLocked() {
		if d.owner != owner || d.deleted {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(d.filename), search) {
			continue
		}
		out = append(out, fileJSON(d))
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleRename(w http.ResponseWriter, r *http.Request) {
	var in struct {
		NewFilename string `json:"new_filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.NewFilename == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "new_filename required")
		return
	}
	s.withOwnedDoc(w, r, func(d *document) {
		d.filename = in.NewFilename
		writeJSON(w, http.StatusOK, fileJSON(d))
	})
}

func (s *Service) handleDescribe(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	s.withOwnedDoc(w, r, func(d *document) {
		d.description = in.Description
		writeJSON(w, http.StatusOK, fileJSON(d))
	})
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.withOwnedDoc(w, r, func(d *document) {
		delete(s.docs, d.id)
		writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
	})
}

func (s *Service) handleContent(disposition string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.withOwnedDoc(w, r, func(d *document) {
			ct := contentType(d.filename)
			w.Header().Set("Content-Type", ct)
			w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": d.filename}))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(d.data)
		})
	}
}

func (s *Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, data, err := readUpload(r)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	id := s.addFileLocked(claimsFrom(r).UserID, name, data)
	d := s.docs[id]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"filename": d.filename,
		"version":  d.version,
		"sha256":   "",
		"cid":      cid(d),
	})
}

func (s *Service) handleReplace(w http.ResponseWriter, r *http.Request) {
	_, data, err := readUpload(r)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.withOwnedDoc(w, r, func(d *document) {
		d.data = data
		d.version++
		writeJSON(w, http.StatusOK, fileJSON(d))
	})
}

func (s *Service) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := []map[string]any{}
	for _, a := range s.accounts {
		out = append(out, map[string]any{
			"id":        a.user.ID,
			"email":     a.user.Email,
			"full_name": a.user.FullName,
			"role":      a.user.Role,
			"deleted":   a.deleted,
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i]["id"].(int64) < out[j]["id"].(int64) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleAdminUser(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accountByIDLocked(id)
	if acct == nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	switch chi.URLParam(r, "action") {
	case "promote":
		acct.user.Role = session.RoleAdmin
	case "demote":
		acct.user.Role = session.RoleUser
	case "soft_delete":
		acct.deleted = true
	case "restore":
		acct.deleted = false
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (s *Service) handleAdminPurgeUser(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accountByIDLocked(id)
	if acct == nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	delete(s.accounts, acct.user.Email)
	writeJSON(w, http.StatusOK, map[string]string{"message": "User permanently deleted"})
}

func (s *Service) handleAdminFiles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := []map[string]any{}
	for _, d := range s.sortedDocsLocked() {
		out = append(out, map[string]any{
			"id":           d.id,
			"filename":     d.filename,
			"uploaded_by":  d.owner,
			"size":         len(d.data),
			"uploadedtime": d.uploaded.Format(time.RFC3339),
			"deleted":      d.deleted,
		})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleAdminFile(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "File not found")
		return
	}
	switch chi.URLParam(r, "action") {
	case "soft_delete":
		d.deleted = true
	case "restore":
		d.deleted = false
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (s *Service) handleAdminPurgeFile(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		writeDetail(w, http.StatusNotFound, "File not found")
		return
	}
	delete(s.docs, id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "File permanently deleted"})
}

// withOwnedDoc runs fn under the service lock with the caller's document
// named by the {id} URL parameter, or answers 404.
func (s *Service) withOwnedDoc(w http.ResponseWriter, r *http.Request, fn func(*document)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || d.deleted || d.owner != claimsFrom(r).UserID {
		writeDetail(w, http.StatusNotFound, "File not found or not owned by user")
		return
	}
	fn(d)
}

func (s *Service) accountByIDLocked(id int64) *account {
	for _, a := range s.accounts {
		if a.user.ID == id {
			return a
		}
	}
	return nil
}

func (s *Service) sortedDocsLocked() []*document {
	docs := make([]*document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].id < docs[j].id })
	return docs
}

func fileJSON(d *document) map[string]any {
	return map[string]any{
		"id":           d.id,
		"filename":     d.filename,
		"version":      d.version,
		"sha256":       "",
		"cid":          cid(d),
		"uploadedtime": d.uploaded.Format(time.RFC3339),
		"description":  d.description,
		"size":         len(d.data),
		"filetype":     nil,
	}
}

func contentType(filename string) string {
	switch ext := strings.ToLower(path.Ext(filename)); ext {
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

func cid(d *document) string {
	return fmt.Sprintf("fake-%d-%d", d.id, d.version)
}

func readUpload(r *http.Request) (string, []byte, error) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return "", nil, errors.New("file required")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, err
	}
	return hdr.Filename, data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
