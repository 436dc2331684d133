package imagehost_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	imagehost "github.com/Skryldev/image-host"
	"github.com/Skryldev/image-host/config"
)

func init() { gin.SetMode(gin.TestMode) }

type client struct {
	t     *testing.T
	srv   *httptest.Server
	token string
}

func newServer(t *testing.T, mutate ...func(*config.Config)) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.SecretKey = "test-secret"
	cfg.DatabasePath = filepath.Join(dir, "app.db")
	cfg.Local.RootDir = filepath.Join(dir, "uploads")
	cfg.WorkerCount = 2
	cfg.RateLimitPerMinute = 1000
	for _, m := range mutate {
		m(&cfg)
	}

	app, err := imagehost.New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		srv.Close()
		app.Close()
	})
	return srv
}

func (c *client) do(req *http.Request) (int, map[string]any, []byte) {
	c.t.Helper()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(raw, &body)
	}
	return resp.StatusCode, body, raw
}

func (c *client) postJSON(path string, v any) (int, map[string]any) {
	b, _ := json.Marshal(v)
	req, _ := http.NewRequest(http.MethodPost, c.srv.URL+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	status, body, _ := c.do(req)
	return status, body
}

func (c *client) postForm(path string, form url.Values) (int, map[string]any) {
	req, _ := http.NewRequest(http.MethodPost, c.srv.URL+path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	status, body, _ := c.do(req)
	return status, body
}

func (c *client) get(path string) (int, map[string]any, []byte) {
	req, _ := http.NewRequest(http.MethodGet, c.srv.URL+path, nil)
	return c.do(req)
}

func (c *client) upload(name string, data []byte) (int, map[string]any) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", name)
	fw.Write(data)
	mw.Close()
	req, _ := http.NewRequest(http.MethodPost, c.srv.URL+"/images/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	status, body, _ := c.do(req)
	return status, body
}

func (c *client) transform(query string) (int, map[string]any) {
	req, _ := http.NewRequest(http.MethodPost, c.srv.URL+"/images/transform?"+query, nil)
	status, body, _ := c.do(req)
	return status, body
}

func signUp(t *testing.T, srv *httptest.Server, email string) *client {
	t.Helper()
	c := &client{t: t, srv: srv}
	if status, body := c.postJSON("/register", map[string]string{"email": email, "password": "pw"}); status != http.StatusCreated {
		t.Fatalf("register: %d %v", status, body)
	}
	status, body := c.postForm("/login", url.Values{"username": {email}, "password": {"pw"}})
	if status != http.StatusOK || body["token_type"] != "bearer" {
		t.Fatalf("login: %d %v", status, body)
	}
	c.token = body["access_token"].(string)
	return c
}

func catPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func id(body map[string]any, key string) int64 {
	f, _ := body[key].(float64)
	return int64(f)
}

func TestUploadTransformRepeat(t *testing.T) {
	srv := newServer(t)
	alice := signUp(t, srv, "alice@example.com")

	status, up := alice.upload("cat.png", catPNG(t))
	if status != http.StatusOK {
		t.Fatalf("upload: %d %v", status, up)
	}
	if up["filename"] != "cat.png" || up["uploaded_by"] != "alice@example.com" {
		t.Errorf("upload body: %v", up)
	}
	imgID := id(up, "id")

	q := fmt.Sprintf("image_id=%d&action=resize&width=100&height=100", imgID)
	status, first := alice.transform(q)
	if status != http.StatusOK {
		t.Fatalf("transform: %d %v", status, first)
	}
	if id(first, "original_image_id") != imgID || first["action"] != "resize" {
		t.Errorf("transform body: %v", first)
	}
	out, _ := first["output_file"].(string)
	if !strings.HasSuffix(out, ".jpeg") {
		t.Errorf("output_file: %q", out)
	}

	status, second := alice.transform(q)
	if status != http.StatusOK || second["message"] != "Transformation already exists" {
		t.Fatalf("repeat: %d %v", status, second)
	}
	if second["output_file"] != out || id(second, "transformation_id") != id(first, "transformation_id") {
		t.Errorf("repeat returned different artifact: %v vs %v", second, first)
	}

	status, _, raw := alice.get(fmt.Sprintf("/images/%d?transformation_id=%d", imgID, id(first, "transformation_id")))
	if status != http.StatusOK {
		t.Fatalf("get transformation: %d", status)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil || format != "jpeg" || cfg.Width != 100 || cfg.Height != 100 {
		t.Errorf("served artifact: %s %dx%d %v", format, cfg.Width, cfg.Height, err)
	}

	status, _, raw = alice.get(fmt.Sprintf("/images/%d?transformation_id=0", imgID))
	if _, format, err := image.DecodeConfig(bytes.NewReader(raw)); status != http.StatusOK || format != "png" || err != nil {
		t.Errorf("transformation_id=0: %d %s %v, want the original png", status, format, err)
	}

	status, hist, _ := alice.get(fmt.Sprintf("/images/%d/transformations", imgID))
	if items, _ := hist["items"].([]any); status != http.StatusOK || len(items) != 1 {
		t.Errorf("history: %d %v", status, hist)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	srv := newServer(t)
	alice := signUp(t, srv, "alice@example.com")
	bob := signUp(t, srv, "bob@example.com")

	_, up := alice.upload("cat.png", catPNG(t))
	imgID := id(up, "id")

	status, body, _ := bob.get(fmt.Sprintf("/images/%d", imgID))
	if status != http.StatusNotFound || body["detail"] != "Image not found" {
		t.Errorf("foreign get: %d %v", status, body)
	}
	status, body = bob.transform(fmt.Sprintf("image_id=%d&action=mirror", imgID))
	if status != http.StatusNotFound || body["detail"] != "Image not found" {
		t.Errorf("foreign transform: %d %v", status, body)
	}
	status, body, _ = alice.get(fmt.Sprintf("/images/%d?transformation_id=999", imgID))
	if status != http.StatusNotFound || body["detail"] != "Transformation not found" {
		t.Errorf("unknown transformation: %d %v", status, body)
	}

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/images/%d", srv.URL, imgID), nil)
	if status, _, _ := bob.do(req); status != http.StatusNotFound {
		t.Errorf("foreign delete: %d", status)
	}
	req, _ = http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/images/%d", srv.URL, imgID), nil)
	if status, _, _ := alice.do(req); status != http.StatusNoContent {
		t.Errorf("owner delete: %d", status)
	}
}

func TestPagination(t *testing.T) {
	srv := newServer(t)
	alice := signUp(t, srv, "alice@example.com")
	data := catPNG(t)
	for i := 0; i < 12; i++ {
		if status, body := alice.upload(fmt.Sprintf("img-%d.png", i), data); status != http.StatusOK {
			t.Fatalf("upload %d: %d %v", i, status, body)
		}
	}

	status, body, _ := alice.get("/images")
	if status != http.StatusOK || id(body, "total") != 12 || id(body, "page") != 1 || id(body, "size") != 5 {
		t.Fatalf("default page: %d %v", status, body)
	}
	items := body["items"].([]any)
	if len(items) != 5 {
		t.Errorf("default page items: %d", len(items))
	}
	first := items[0].(map[string]any)
	for _, k := range []string{"id", "filename", "created_at", "transformation_count"} {
		if _, ok := first[k]; !ok {
			t.Errorf("item missing %q: %v", k, first)
		}
	}

	_, body, _ = alice.get("/images?page=3&size=5")
	if items := body["items"].([]any); len(items) != 2 {
		t.Errorf("page 3: %d items", len(items))
	}

	status, body, _ = alice.get("/images?size=1099511627776")
	if status != http.StatusBadRequest || body["detail"] != "Size must not exceed 100" {
		t.Errorf("huge size: %d %v", status, body)
	}
	status, body, _ = alice.get("/images?page=4611686018427387904&size=5")
	if items, _ := body["items"].([]any); status != http.StatusOK || len(items) != 0 || id(body, "total") != 12 {
		t.Errorf("huge page: %d %v", status, body)
	}

	status, body, _ = alice.get("/images?page=0&size=5")
	if status != http.StatusBadRequest || body["detail"] != "Page and size must be positive" {
		t.Errorf("page 0: %d %v", status, body)
	}
}

func TestTransformValidation(t *testing.T) {
	srv := newServer(t)
	alice := signUp(t, srv, "alice@example.com")
	_, up := alice.upload("cat.png", catPNG(t))
	imgID := id(up, "id")

	tests := []struct {
		query  string
		status int
		detail string
	}{
		{"action=resize&width=10&height=10&quality=0", 400, "Quality must be between 1 and 95"},
		{"action=resize&width=10&height=10&quality=96", 400, "Quality must be between 1 and 95"},
		{"action=resize&width=10", 400, "Width and height required"},
		{"action=crop&left=1", 400, "Crop coordinates required"},
		{"action=rotate", 400, "Angle required"},
		{"action=blur", 400, "Invalid action"},
		{"action=resize&width=1099511627776&height=1", 400, "Image dimensions exceed the allowed maximum"},
		{"action=resize&width=ten&height=10", 400, ""},
		{"action=resize&width=10&height=10&quality=1", 200, ""},
		{"action=resize&width=10&height=10&quality=95", 200, ""},
	}
	for _, tc := range tests {
		status, body := alice.transform(fmt.Sprintf("image_id=%d&%s", imgID, tc.query))
		if status != tc.status {
			t.Errorf("%s: status %d, want %d (%v)", tc.query, status, tc.status, body)
			continue
		}
		if tc.detail != "" && body["detail"] != tc.detail {
			t.Errorf("%s: detail %v, want %q", tc.query, body["detail"], tc.detail)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newServer(t)
	c := &client{t: t, srv: srv}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/images", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized || resp.Header.Get("WWW-Authenticate") != "Bearer" {
		t.Errorf("no token: %d %q", resp.StatusCode, resp.Header.Get("WWW-Authenticate"))
	}

	c.token = "a.b.c"
	if status, _, _ := c.get("/images"); status != http.StatusUnauthorized {
		t.Errorf("bad token: %d", status)
	}

	c.token = ""
	c.postJSON("/register", map[string]string{"email": "a@example.com", "password": "pw"})
	if status, body := c.postJSON("/register", map[string]string{"email": "a@example.com", "password": "pw"}); status != http.StatusBadRequest || body["detail"] != "Email already registered" {
		t.Errorf("duplicate register: %d %v", status, body)
	}
	if status, body := c.postJSON("/login", map[string]string{"email": "a@example.com", "password": "nope"}); status != http.StatusBadRequest || body["detail"] != "Invalid credentials" {
		t.Errorf("bad login: %d %v", status, body)
	}
	if status, body := c.postJSON("/login", map[string]string{"email": "a@example.com", "password": "pw"}); status != http.StatusOK || body["access_token"] == nil {
		t.Errorf("JSON login: %d %v", status, body)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newServer(t, func(c *config.Config) { c.RateLimitPerMinute = 2 })
	alice := signUp(t, srv, "alice@example.com")
	_, up := alice.upload("cat.png", catPNG(t))
	q := fmt.Sprintf("image_id=%d&action=mirror", id(up, "id"))

	for i := 0; i < 2; i++ {
		if status, body := alice.transform(q); status != http.StatusOK {
			t.Fatalf("request %d: %d %v", i, status, body)
		}
	}
	status, body := alice.transform(q)
	if status != http.StatusTooManyRequests || body["detail"] != "Rate limit exceeded. Try again later." {
		t.Errorf("third request: %d %v", status, body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t)
	c := &client{t: t, srv: srv}
	if status, body, _ := c.get("/healthz"); status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz: %d %v", status, body)
	}
	status, body, _ := c.get("/metrics")
	if status != http.StatusOK || body["pool"] == nil || body["pipeline"] == nil {
		t.Errorf("metrics: %d %v", status, body)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SecretKey = "x"
	cfg.Storage = "ftp"
	if _, err := imagehost.New(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected configuration error")
	}
}
