package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/dirstore/internal/checksum"
	"github.com/starford/dirstore/internal/session"
	"github.com/starford/dirstore/internal/sse"
	"github.com/starford/dirstore/internal/tenant"
	"github.com/starford/dirstore/internal/testutil"
)

// testEnv sets up a temp catalog, tenant server and router. An empty token
// means disabled admin auth.
func testEnv(t *testing.T, authToken string) (*tenant.Server, http.Handler) {
	t.Helper()
	auth := AuthConfig{Mode: AuthDisabled}
	if authToken != "" {
		auth = AuthConfig{Mode: AuthToken, Token: authToken}
	}
	return testEnvFull(t, auth, nil)
}

func testEnvFull(t *testing.T, auth AuthConfig, broker *sse.Broker, opts ...tenant.Option) (*tenant.Server, http.Handler) {
	t.Helper()
	if broker != nil {
		opts = append(opts, tenant.WithSessionOptions(session.WithNotifier(broker.Notify)))
	}
	srv := testutil.TestServer(t, opts...)
	var events EventSource
	if broker != nil {
		events = broker
	}
	return srv, NewRouter(srv, auth, events)
}

func signUp(t *testing.T, router http.Handler, user, pass string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(SignUpRequest{Username: user, Password: pass})
	req := httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// tenantEnv returns a router with alice already provisioned.
func tenantEnv(t *testing.T) http.Handler {
	t.Helper()
	_, router := testEnv(t, "")
	if w := signUp(t, router, "alice", "pw"); w.Code != http.StatusCreated {
		t.Fatalf("sign up = %d, body = %s", w.Code, w.Body.String())
	}
	return router
}

func do(t *testing.T, router http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	return doAs(t, router, "alice", "pw", method, target, body)
}

func doAs(t *testing.T, router http.Handler, user, pass, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.SetBasicAuth(user, pass)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func listEntries(t *testing.T, router http.Handler, dir string) []string {
	t.Helper()
	w := do(t, router, http.MethodGet, "/fs/list"+dir, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list %s = %d, body = %s", dir, w.Code, w.Body.String())
	}
	var resp ListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return resp.Entries
}

func TestSignUpAndExists(t *testing.T) {
	_, router := testEnv(t, "")

	w := signUp(t, router, "alice", "pw")
	if w.Code != http.StatusCreated {
		t.Fatalf("sign up = %d, body = %s", w.Code, w.Body.String())
	}
	var created UserResponse
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.Partition != "alice_fs" {
		t.Errorf("partition = %q", created.Partition)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/users/alice", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var exists UserResponse
	_ = json.Unmarshal(w.Body.Bytes(), &exists)
	if w.Code != http.StatusOK || !exists.Exists {
		t.Errorf("exists = %d %+v", w.Code, exists)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/users/nobody", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	_ = json.Unmarshal(w.Body.Bytes(), &exists)
	if w.Code != http.StatusOK || exists.Exists {
		t.Errorf("exists nobody = %d %+v", w.Code, exists)
	}
}

func TestSignUpDuplicate(t *testing.T) {
	_, router := testEnv(t, "")
	signUp(t, router, "dup", "pw")
	if w := signUp(t, router, "dup", "pw"); w.Code != http.StatusConflict {
		t.Errorf("duplicate sign up = %d, want 409", w.Code)
	}
}

func TestSignUpInvalid(t *testing.T) {
	_, router := testEnv(t, "")
	if w := signUp(t, router, "bad/name", "pw"); w.Code != http.StatusBadRequest {
		t.Errorf("invalid username = %d, want 400", w.Code)
	}
	if w := signUp(t, router, "ok", ""); w.Code != http.StatusBadRequest {
		t.Errorf("empty password = %d, want 400", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/users", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestDropUser(t *testing.T) {
	_, router := testEnv(t, "")
	signUp(t, router, "bob", "pw")

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/bob", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("drop = %d, body = %s", w.Code, w.Body.String())
	}

	if w := doAs(t, router, "bob", "pw", http.MethodGet, "/fs/list/", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("login after drop = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/admin/users/bob", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("drop missing = %d, want 404", w.Code)
	}
}

func TestDownloadHeadersDescribeBody(t *testing.T) {
	router := tenantEnv(t)
	for _, body := range []string{"short", "a much longer second version"} {
		if w := do(t, router, http.MethodPut, "/fs/files/v.txt", strings.NewReader(body)); w.Code != http.StatusCreated {
			t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
		}
		w := do(t, router, http.MethodGet, "/fs/files/v.txt", nil)
		if w.Code != http.StatusOK || w.Body.String() != body {
			t.Fatalf("download = %d %q, want %q", w.Code, w.Body.String(), body)
		}
		if got, want := w.Header().Get("ETag"), `"`+checksum.Sum([]byte(body))+`"`; got != want {
			t.Errorf("ETag = %s, want %s", got, want)
		}
		if got := w.Header().Get("Content-Length"); got != strconv.Itoa(len(body)) {
			t.Errorf("Content-Length = %s, want %d", got, len(body))
		}
	}
	if w := do(t, router, http.MethodGet, "/fs/files/missing.txt", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing download = %d, want 404", w.Code)
	}
}

func TestDropAdminRefused(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/"+testutil.Admin.Username, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("drop admin = %d, want 400", w.Code)
	}

	// Provisioning still works afterwards.
	if w := signUp(t, router, "carol", "pw"); w.Code != http.StatusCreated {
		t.Errorf("sign up after refused drop = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	body, _ := json.Marshal(SignUpRequest{Username: "alice", Password: "pw"})
	req := httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed sign up = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/admin/users/alice", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/admin/users/alice", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func signJWT(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAuthMiddleware_JWT(t *testing.T) {
	secret := "hmac-secret"
	_, router := testEnvFull(t, AuthConfig{Mode: AuthJWT, JWTSecret: secret}, nil)
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"valid", signJWT(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "ops", "exp": exp}), http.StatusOK},
		{"wrong secret", signJWT(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "ops", "exp": exp}), http.StatusUnauthorized},
		{"expired", signJWT(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "ops", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"no expiry", signJWT(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "ops"}), http.StatusUnauthorized},
		{"no subject", signJWT(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"exp": exp}), http.StatusUnauthorized},
		{"other alg", signJWT(t, jwt.SigningMethodHS512, []byte(secret), jwt.MapClaims{"sub": "ops", "exp": exp}), http.StatusUnauthorized},
		{"garbage", "not.a.jwt", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/users/alice", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
		})
	}
}

func TestTenantAuthRequired(t *testing.T) {
	router := tenantEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/fs/list/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized || w.Header().Get("WWW-Authenticate") == "" {
		t.Errorf("no basic auth = %d", w.Code)
	}
	if w := doAs(t, router, "alice", "wrong", http.MethodGet, "/fs/list/", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad password = %d, want 401", w.Code)
	}
}

func TestUploadDownloadList(t *testing.T) {
	router := tenantEnv(t)

	w := do(t, router, http.MethodPut, "/fs/files/docs/a.txt", strings.NewReader("hello"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var up UploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &up)
	if up.Path != "/docs/a.txt" || up.Ref == "" {
		t.Errorf("upload response = %+v", up)
	}

	w = do(t, router, http.MethodGet, "/fs/files/docs/a.txt", nil)
	if w.Code != http.StatusOK || w.Body.String() != "hello" {
		t.Fatalf("download = %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") == "" {
		t.Error("download without ETag")
	}

	if got := listEntries(t, router, "/"); len(got) != 1 || got[0] != "/docs/" {
		t.Errorf("list / = %v", got)
	}
	if got := listEntries(t, router, "/docs"); len(got) != 1 || got[0] != "/docs/a.txt" {
		t.Errorf("list /docs = %v", got)
	}
}

func TestListEmptyRoot(t *testing.T) {
	router := tenantEnv(t)
	w := do(t, router, http.MethodGet, "/fs/list", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"entries":[]`) {
		t.Errorf("list root = %d %s", w.Code, w.Body.String())
	}
}

func TestUploadReplaceFalse(t *testing.T) {
	router := tenantEnv(t)
	do(t, router, http.MethodPut, "/fs/files/a.txt", strings.NewReader("v1"))

	if w := do(t, router, http.MethodPut, "/fs/files/a.txt?replace=false", strings.NewReader("v2")); w.Code != http.StatusConflict {
		t.Errorf("replace=false = %d, want 409", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/fs/files/a.txt", nil); w.Body.String() != "v1" {
		t.Errorf("payload = %q, want v1", w.Body.String())
	}
	do(t, router, http.MethodPut, "/fs/files/a.txt", strings.NewReader("v2"))
	if w := do(t, router, http.MethodGet, "/fs/files/a.txt", nil); w.Body.String() != "v2" {
		t.Errorf("payload = %q, want v2", w.Body.String())
	}
}

func TestUploadToDirectoryPath(t *testing.T) {
	router := tenantEnv(t)
	if w := do(t, router, http.MethodPut, "/fs/files/docs/", strings.NewReader("x")); w.Code != http.StatusBadRequest {
		t.Errorf("upload to dir path = %d, want 400", w.Code)
	}
}

func TestDownloadAndRemoveMissing(t *testing.T) {
	router := tenantEnv(t)
	if w := do(t, router, http.MethodGet, "/fs/files/nope.txt", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing download = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/fs/files/nope.txt", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing remove = %d, want 404", w.Code)
	}
}

func TestRemoveFile(t *testing.T) {
	router := tenantEnv(t)
	do(t, router, http.MethodPut, "/fs/files/bye.txt", strings.NewReader("gone"))

	if w := do(t, router, http.MethodDelete, "/fs/files/bye.txt", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/fs/files/bye.txt", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestDirectories(t *testing.T) {
	router := tenantEnv(t)

	if w := do(t, router, http.MethodPost, "/fs/dirs/a/b/c", nil); w.Code != http.StatusCreated {
		t.Fatalf("mkdir -p = %d, body = %s", w.Code, w.Body.String())
	}
	if got := listEntries(t, router, "/a/b"); len(got) != 1 || got[0] != "/a/b/c/" {
		t.Errorf("list /a/b = %v", got)
	}
	if w := do(t, router, http.MethodPost, "/fs/dirs/x/y?parents=false", nil); w.Code != http.StatusNotFound {
		t.Errorf("mkdir without parent = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/fs/dirs/a", nil); w.Code != http.StatusConflict {
		t.Errorf("rmdir non-empty = %d, want 409", w.Code)
	}

	w := do(t, router, http.MethodDelete, "/fs/dirs/a?recursive=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rmdir -r = %d, body = %s", w.Code, w.Body.String())
	}
	var removed EntriesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &removed)
	if len(removed.Entries) != 3 {
		t.Errorf("removed = %d entries, want 3", len(removed.Entries))
	}
	if got := listEntries(t, router, "/"); len(got) != 0 {
		t.Errorf("root after rmdir = %v", got)
	}
}

func TestMoveAndRename(t *testing.T) {
	router := tenantEnv(t)
	do(t, router, http.MethodPut, "/fs/files/src/a.txt", strings.NewReader("a"))
	do(t, router, http.MethodPut, "/fs/files/src/sub/b.txt", strings.NewReader("b"))

	body, _ := json.Marshal(MoveRequest{From: "/src", To: "/dst"})
	w := do(t, router, http.MethodPost, "/fs/move", bytes.NewReader(body))
	if w.Code != http.StatusOK {
		t.Fatalf("move = %d, body = %s", w.Code, w.Body.String())
	}
	var count CountResponse
	_ = json.Unmarshal(w.Body.Bytes(), &count)
	if count.Count != 4 {
		t.Errorf("moved = %d, want 4", count.Count)
	}
	if w := do(t, router, http.MethodGet, "/fs/files/dst/sub/b.txt", nil); w.Body.String() != "b" {
		t.Errorf("moved payload = %d %q", w.Code, w.Body.String())
	}

	body, _ = json.Marshal(MoveRequest{From: "/dst/a.txt", To: "/dst/renamed.txt"})
	if w := do(t, router, http.MethodPost, "/fs/rename", bytes.NewReader(body)); w.Code != http.StatusNoContent {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodGet, "/fs/files/dst/renamed.txt", nil); w.Body.String() != "a" {
		t.Errorf("renamed payload = %q", w.Body.String())
	}

	body, _ = json.Marshal(MoveRequest{From: "/dst"})
	if w := do(t, router, http.MethodPost, "/fs/move", bytes.NewReader(body)); w.Code != http.StatusBadRequest {
		t.Errorf("move without target = %d, want 400", w.Code)
	}
	body, _ = json.Marshal(MoveRequest{From: "/dst", To: "/dst/inner"})
	if w := do(t, router, http.MethodPost, "/fs/move", bytes.NewReader(body)); w.Code != http.StatusBadRequest {
		t.Errorf("move into itself = %d, want 400", w.Code)
	}
}

func TestVersionsAndPrune(t *testing.T) {
	router := tenantEnv(t)
	do(t, router, http.MethodPut, "/fs/files/v.txt", strings.NewReader("1"))
	do(t, router, http.MethodPut, "/fs/files/v.txt", strings.NewReader("22"))

	w := do(t, router, http.MethodGet, "/fs/versions/v.txt", nil)
	var versions EntriesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &versions)
	if w.Code != http.StatusOK || len(versions.Entries) != 1 {
		t.Fatalf("versions = %d %+v", w.Code, versions)
	}
	if versions.Entries[0].Key != "/v.txt" || versions.Entries[0].Length != 2 {
		t.Errorf("version = %+v", versions.Entries[0])
	}

	w = do(t, router, http.MethodPost, "/fs/prune/v.txt", nil)
	var count CountResponse
	_ = json.Unmarshal(w.Body.Bytes(), &count)
	if w.Code != http.StatusOK || count.Count != 0 {
		t.Errorf("prune = %d %+v", w.Code, count)
	}

	w = do(t, router, http.MethodGet, "/fs/versions/missing.txt", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"entries":[]`) {
		t.Errorf("versions of missing file = %d %s", w.Code, w.Body.String())
	}
}

func TestTenantIsolation(t *testing.T) {
	router := tenantEnv(t)
	signUp(t, router, "bob", "bpw")

	do(t, router, http.MethodPut, "/fs/files/secret.txt", strings.NewReader("alice only"))

	if w := doAs(t, router, "bob", "bpw", http.MethodGet, "/fs/files/secret.txt", nil); w.Code != http.StatusNotFound {
		t.Errorf("bob reads alice's file = %d, want 404", w.Code)
	}
	w := doAs(t, router, "bob", "bpw", http.MethodGet, "/fs/list/", nil)
	if w.Code != http.StatusOK || strings.Contains(w.Body.String(), "secret") {
		t.Errorf("bob lists = %d %s", w.Code, w.Body.String())
	}
}

func uploadForm(t *testing.T, router http.Handler, target, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth("alice", "pw")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadForm(t *testing.T) {
	router := tenantEnv(t)

	w := uploadForm(t, router, "/fs/upload/images", "test.png", []byte("fake-png-data"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Path != "/images/test.png" {
		t.Errorf("path = %q", resp.Path)
	}
	if w := do(t, router, http.MethodGet, "/fs/files/images/test.png", nil); w.Body.String() != "fake-png-data" {
		t.Errorf("content mismatch: %q", w.Body.String())
	}
}

func TestUploadForm_InvalidFilename(t *testing.T) {
	router := tenantEnv(t)
	// multipart may clean "../"; either way nothing lands outside /images/.
	w := uploadForm(t, router, "/fs/upload/images", "../escape.txt", []byte("bad"))
	if w.Code == http.StatusCreated {
		var resp UploadResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if !strings.HasPrefix(resp.Path, "/images/") {
			t.Errorf("file escaped target dir: %q", resp.Path)
		}
	}
}

func TestUploadForm_MissingFileField(t *testing.T) {
	router := tenantEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/fs/upload/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth("alice", "pw")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestEventsRequireTenantAuth(t *testing.T) {
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	_, router := testEnvFull(t, AuthConfig{Mode: AuthDisabled}, broker)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("events without auth = %d, want 401", w.Code)
	}
}

func TestEventsStreamTenantChanges(t *testing.T) {
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	_, router := testEnvFull(t, AuthConfig{Mode: AuthDisabled}, broker)
	signUp(t, router, "alice", "pw")
	signUp(t, router, "bob", "bpw")

	ts := httptest.NewServer(router)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	req.SetBasicAuth("alice", "pw")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events = %d", resp.StatusCode)
	}

	for broker.ClientCount() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	// Bob's change must not reach alice's stream.
	doAs(t, router, "bob", "bpw", http.MethodPut, "/fs/files/bob.txt", strings.NewReader("b"))
	do(t, router, http.MethodPut, "/fs/files/alice.txt", strings.NewReader("a"))

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "bob.txt") {
			t.Fatalf("alice received bob's event: %s", line)
		}
		if strings.HasPrefix(line, "data:") && strings.Contains(line, "/alice.txt") {
			return
		}
	}
	t.Fatalf("stream ended without alice's event: %v", scanner.Err())
}
