// fake_backend.go - In-process stand-in for the PatternGuard backend
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Credentials accepted by a fresh FakeBackend.
const (
	AdminUsername = "admin"
	AdminPassword = "correct"
	AdminToken    = "abc123"
)

// FeedbackShape selects how the admin feedback listing is wrapped.
type FeedbackShape int

const (
	ShapeArray FeedbackShape = iota
	ShapeContent
	ShapeItems
	ShapeSingleObject
)

// RecordedRequest is what the fake saw for one request.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	RequestID     string
}

// StoredFile is an uploaded build held by the fake.
type StoredFile struct {
	ID       int64
	FileName string
	Platform string
	Version  string
	Data     []byte
}

type cannedResponse struct {
	status int
	body   string
}

var versionPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

var allowedPlatforms = map[string]bool{
	"chrome":        true,
	"firefox":       true,
	"edge":          true,
	"dummy-browser": true,
}

// FakeBackend implements the backend HTTP contract in memory.
type FakeBackend struct {
	Echo *echo.Echo

	mu             sync.Mutex
	token          string
	files          map[int64]*StoredFile
	nextFileID     int64
	feedback       []map[string]interface{}
	nextFeedbackID int64
	shape          FeedbackShape
	requests       []RecordedRequest
	canned         map[string]cannedResponse
}

// NewFakeBackend creates a fake with no files and no feedback.
func NewFakeBackend() *FakeBackend {
	f := &FakeBackend{
		Echo:           echo.New(),
		token:          AdminToken,
		files:          make(map[int64]*StoredFile),
		nextFileID:     1,
		nextFeedbackID: 10101,
		canned:         make(map[string]cannedResponse),
	}
	f.Echo.HideBanner = true
	f.Echo.Pre(f.record)

	f.Echo.POST("/auth/login", f.handleLogin)

	f.Echo.GET("/files/admin/files", f.handleListFiles, f.requireAdmin)
	f.Echo.POST("/files/admin/upload/:platform/:version", f.handleUpload, f.requireAdmin)
	f.Echo.DELETE("/files/admin/delete/:id", f.handleDelete, f.requireAdmin)
	f.Echo.GET("/feedback/admin/get", f.handleListFeedback, f.requireAdmin)
	f.Echo.GET("/files/download/:id", f.handleDownloadByID, f.requireAdmin)

	f.Echo.GET("/files/download/:platform/:version", f.handleDownloadRelease)
	f.Echo.GET("/files/:platform/versions", f.handleVersions)
	f.Echo.POST("/feedback/add", f.handleAddFeedback)

	return f
}

func (f *FakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.Echo.ServeHTTP(w, r)
}

// Respond makes every later request to method+path return status and body.
// Bodies starting with '[' or '{' are sent as JSON, anything else as text.
func (f *FakeBackend) Respond(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canned[method+" "+path] = cannedResponse{status: status, body: body}
}

// SetToken changes the bearer token the admin routes accept.
func (f *FakeBackend) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

// SetFeedbackShape changes the wrapping of the feedback listing.
func (f *FakeBackend) SetFeedbackShape(shape FeedbackShape) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shape = shape
}

// AddFile stores a build directly and returns its ID.
func (f *FakeBackend) AddFile(platform, version, name string, data []byte) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.storeLocked(platform, version, name, data)
}

// AddFeedback stores a feedback entry as-is.
func (f *FakeBackend) AddFeedback(entry map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, entry)
}

// Files returns the stored builds ordered by ID.
func (f *FakeBackend) Files() []StoredFile {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]StoredFile, 0, len(f.files))
	for _, sf := range f.files {
		out = append(out, *sf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Requests returns every request received so far.
func (f *FakeBackend) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// RequestCount returns the number of requests received so far.
func (f *FakeBackend) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// LastRequest returns the most recent request, or false when there was none.
func (f *FakeBackend) LastRequest() (RecordedRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return RecordedRequest{}, false
	}
	return f.requests[len(f.requests)-1], true
}

// IdentityToken builds an identity-provider style JWT for feedback tests.
// The signature uses a throwaway key; only the claims matter to the client.
func IdentityToken(email string, verified bool) string {
	claims := jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"sub":            "1098765",
		"email":          email,
		"email_verified": verified,
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	if err != nil {
		panic(fmt.Sprintf("signing identity token: %v", err))
	}
	return signed
}

// AdminJWT builds a session token shaped like the backend's admin JWT.
func AdminJWT(subject string, expires time.Time) string {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": "ROLE_ADMIN",
		"exp":  expires.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	if err != nil {
		panic(fmt.Sprintf("signing admin token: %v", err))
	}
	return signed
}

func (f *FakeBackend) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Method:        req.Method,
			Path:          req.URL.Path,
			Authorization: req.Header.Get(echo.HeaderAuthorization),
			ContentType:   req.Header.Get(echo.HeaderContentType),
			RequestID:     req.Header.Get(echo.HeaderXRequestID),
		})
		canned, ok := f.canned[req.Method+" "+req.URL.Path]
		f.mu.Unlock()

		if ok {
			trimmed := strings.TrimSpace(canned.body)
			if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
				return c.Blob(canned.status, echo.MIMEApplicationJSON, []byte(canned.body))
			}
			return c.String(canned.status, canned.body)
		}
		return next(c)
	}
}

func (f *FakeBackend) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		f.mu.Lock()
		want := "Bearer " + f.token
		f.mu.Unlock()

		if c.Request().Header.Get(echo.HeaderAuthorization) != want {
			return c.String(http.StatusUnauthorized, "Unauthorized")
		}
		return next(c)
	}
}

func (f *FakeBackend) handleLogin(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "Malformed login request")
	}
	if req.Username != AdminUsername || req.Password != AdminPassword {
		return c.String(http.StatusUnauthorized, "Invalid credentials")
	}

	f.mu.Lock()
	token := f.token
	f.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (f *FakeBackend) handleListFiles(c echo.Context) error {
	files := f.Files()
	out := make([]map[string]interface{}, 0, len(files))
	for _, sf := range files {
		out = append(out, map[string]interface{}{
			"id":          sf.ID,
			"fileName":    sf.FileName,
			"fileSize":    len(sf.Data),
			"contentType": "application/zip",
			"browser":     sf.Platform,
			"version":     sf.Version,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (f *FakeBackend) handleUpload(c echo.Context) error {
	platform := strings.ToLower(c.Param("platform"))
	version := strings.ToLower(c.Param("version"))

	if !allowedPlatforms[platform] {
		return c.String(http.StatusBadRequest, "Invalid browser. Allowed: [chrome, firefox, edge, dummy-browser]")
	}
	if !strings.HasPrefix(version, "dummy-version") && !versionPattern.MatchString(version) {
		return c.String(http.StatusBadRequest, "Invalid version format. Must be alphanumeric (._- allowed) or start with 'dummy-version'")
	}

	header, err := c.FormFile("file")
	if err != nil {
		return c.String(http.StatusBadRequest, "Required part 'file' is not present.")
	}
	src, err := header.Open()
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sf := range f.files {
		if sf.Platform == platform && sf.Version == version {
			return c.String(http.StatusBadRequest, "Upload failed: Please ensure unique version")
		}
	}
	id := f.storeLocked(platform, version, header.Filename, data)
	return c.String(http.StatusOK, fmt.Sprintf("File uploaded successfully with ID: %d", id))
}

func (f *FakeBackend) handleDelete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.String(http.StatusBadRequest, "Invalid file id")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[id]; !ok {
		return c.String(http.StatusNotFound, "File not found")
	}
	delete(f.files, id)
	return c.JSON(http.StatusOK, id)
}

func (f *FakeBackend) handleDownloadByID(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.String(http.StatusBadRequest, "Invalid file id")
	}

	f.mu.Lock()
	sf, ok := f.files[id]
	f.mu.Unlock()
	if !ok {
		return c.String(http.StatusNotFound, "File not found")
	}
	return f.sendFile(c, sf)
}

func (f *FakeBackend) handleDownloadRelease(c echo.Context) error {
	platform := strings.ToLower(c.Param("platform"))
	version := strings.ToLower(c.Param("version"))

	f.mu.Lock()
	var found *StoredFile
	for _, sf := range f.files {
		if sf.Platform == platform && sf.Version == version {
			found = sf
			break
		}
	}
	f.mu.Unlock()

	if found == nil {
		return c.String(http.StatusNotFound, "File not found")
	}
	return f.sendFile(c, found)
}

func (f *FakeBackend) sendFile(c echo.Context, sf *StoredFile) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, sf.FileName))
	return c.Blob(http.StatusOK, "application/zip", sf.Data)
}

func (f *FakeBackend) handleVersions(c echo.Context) error {
	platform := strings.ToLower(c.Param("platform"))

	files := f.Files()
	versions := make([]string, 0)
	for i := len(files) - 1; i >= 0; i-- {
		if files[i].Platform == platform {
			versions = append(versions, files[i].Version)
		}
	}
	return c.JSON(http.StatusOK, versions)
}

func (f *FakeBackend) handleAddFeedback(c echo.Context) error {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(header, "Bearer ") {
		return c.String(http.StatusUnauthorized, "Missing or invalid Authorization header")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(header[7:]), claims); err != nil {
		return c.String(http.StatusUnauthorized, "Invalid or expired Google ID token")
	}
	email, _ := claims["email"].(string)

	var req struct {
		URL     string `json:"url"`
		Issue   string `json:"issue"`
		Message string `json:"message"`
	}
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "Malformed feedback")
	}

	f.mu.Lock()
	entry := map[string]interface{}{
		"id":      f.nextFeedbackID,
		"message": req.Message,
		"url":     req.URL,
		"issue":   req.Issue,
		"mail":    email,
		"date":    time.Now().UTC().Format("2006-01-02"),
	}
	f.nextFeedbackID++
	f.feedback = append(f.feedback, entry)
	f.mu.Unlock()

	return c.JSON(http.StatusOK, entry)
}

func (f *FakeBackend) handleListFeedback(c echo.Context) error {
	f.mu.Lock()
	entries := append([]map[string]interface{}{}, f.feedback...)
	shape := f.shape
	f.mu.Unlock()

	switch shape {
	case ShapeContent:
		return c.JSON(http.StatusOK, map[string]interface{}{"content": entries, "totalElements": len(entries)})
	case ShapeItems:
		return c.JSON(http.StatusOK, map[string]interface{}{"items": entries})
	case ShapeSingleObject:
		if len(entries) == 0 {
			return c.JSON(http.StatusOK, map[string]interface{}{})
		}
		return c.JSON(http.StatusOK, entries[0])
	default:
		return c.JSON(http.StatusOK, entries)
	}
}

// storeLocked saves a build. Caller holds f.mu.
func (f *FakeBackend) storeLocked(platform, version, name string, data []byte) int64 {
	id := f.nextFileID
	f.nextFileID++
	f.files[id] = &StoredFile{
		ID:       id,
		FileName: name,
		Platform: platform,
		Version:  version,
		Data:     append([]byte(nil), data...),
	}
	return id
}
