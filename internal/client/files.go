package client

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/patternguard/console/internal/models"
)

// fileItem is the loose wire form of a FileRecord.
type fileItem struct {
	ID       models.FlexString `json:"id"`
	FileName models.FlexString `json:"fileName"`
	Name     models.FlexString `json:"name"`
	Browser  models.FlexString `json:"browser"`
	Version  models.FlexString `json:"version"`
	FileSize models.FlexString `json:"fileSize"`
}

func normalizeFile(index int, it fileItem) models.FileRecord {
	rec := models.FileRecord{
		ID:          it.ID.String(),
		DisplayName: it.FileName.String(),
		Platform:    models.Platform(it.Browser.String()),
		Version:     it.Version.String(),
	}
	if rec.ID == "" {
		rec.ID = strconv.Itoa(index)
	}
	if rec.DisplayName == "" {
		rec.DisplayName = it.Name.String()
	}
	if rec.DisplayName == "" {
		rec.DisplayName = models.UnnamedFile
	}
	if rec.Platform == "" {
		rec.Platform = models.MissingValue
	}
	if rec.Version == "" {
		rec.Version = models.MissingValue
	}
	if size, err := strconv.ParseFloat(it.FileSize.String(), 64); err == nil && size > 0 {
		rec.SizeBytes = int64(size)
	}
	return rec
}

// ListFiles returns every stored build, normalized.
func (c *Client) ListFiles(ctx context.Context) ([]models.FileRecord, error) {
	const op = "list files"

	hc, err := c.authorized(op)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/files/admin/files", nil)
	if err != nil {
		return nil, newTransportError(op, err)
	}

	res, err := c.sendAuthorized(op, hc, req)
	if err != nil {
		return nil, err
	}
	if !res.ok() {
		return nil, newResponseError(op, res.status, res.body, "Failed to fetch files")
	}

	var items []fileItem
	if err := json.Unmarshal(res.body, &items); err != nil {
		return nil, c.malformed(op, req, err)
	}

	records := make([]models.FileRecord, len(items))
	for i, it := range items {
		records[i] = normalizeFile(i, it)
	}
	return records, nil
}

// ValidateUpload checks an upload locally. The returned error is a
// KindValidation Error.
func (c *Client) ValidateUpload(up models.UploadRequest) error {
	const op = "upload"

	if err := c.validate.Struct(up); err != nil {
		return newValidationError(op, validationMessage(err, map[string]string{
			"Payload":  "No file selected",
			"Platform": "Platform is required",
			"Version":  "Version is required!",
		}), err)
	}
	if _, err := models.ParsePlatform(string(up.Platform), c.platforms); err != nil {
		return newValidationError(op, err.Error(), err)
	}
	return nil
}

// Upload sends a build as multipart form data and returns the backend's
// confirmation text. Nothing is sent when validation fails.
func (c *Client) Upload(ctx context.Context, up models.UploadRequest) (string, error) {
	const op = "upload"

	if err := c.ValidateUpload(up); err != nil {
		return "", err
	}
	hc, err := c.authorized(op)
	if err != nil {
		return "", err
	}

	platform, version := up.Normalized()
	name := up.Name()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", newValidationError(op, "Could not prepare upload", err)
	}
	if _, err := part.Write(up.Payload); err != nil {
		return "", newValidationError(op, "Could not prepare upload", err)
	}
	if err := mw.Close(); err != nil {
		return "", newValidationError(op, "Could not prepare upload", err)
	}

	path := "/files/admin/upload/" + url.PathEscape(string(platform)) + "/" + url.PathEscape(version)
	req, err := c.newRequest(ctx, http.MethodPost, path, &body)
	if err != nil {
		return "", newTransportError(op, err)
	}
	// The writer's own content type, carrying its boundary.
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := c.sendAuthorized(op, hc, req)
	if err != nil {
		return "", err
	}
	if !res.ok() {
		return "", newResponseError(op, res.status, res.body, "Upload failed")
	}

	c.forgetVersions(string(platform))
	c.log.Info(module, "build uploaded", map[string]interface{}{
		"platform": platform,
		"version":  version,
		"file":     name,
		"bytes":    len(up.Payload),
	})
	return string(res.body), nil
}

// DeleteFile removes a stored build.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	const op = "delete file"

	if strings.TrimSpace(id) == "" {
		return newValidationError(op, "File id is required", nil)
	}
	hc, err := c.authorized(op)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodDelete, "/files/admin/delete/"+url.PathEscape(id), nil)
	if err != nil {
		return newTransportError(op, err)
	}

	res, err := c.sendAuthorized(op, hc, req)
	if err != nil {
		return err
	}
	if !res.ok() {
		return newResponseError(op, res.status, res.body, "Failed to delete file")
	}

	c.forgetVersions("")
	c.log.Info(module, "build deleted", map[string]interface{}{"id": id})
	return nil
}

// DownloadByID fetches a stored build through the admin path.
func (c *Client) DownloadByID(ctx context.Context, id string) (*models.Payload, error) {
	const op = "download file"

	if strings.TrimSpace(id) == "" {
		return nil, newValidationError(op, "File id is required", nil)
	}
	hc, err := c.authorized(op)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/files/download/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, newTransportError(op, err)
	}

	res, err := c.sendAuthorized(op, hc, req)
	if err != nil {
		return nil, err
	}
	if !res.ok() {
		return nil, newResponseError(op, res.status, res.body, "Failed to download file")
	}
	return payloadFrom(res), nil
}

// DownloadRelease fetches the public build for platform and version.
func (c *Client) DownloadRelease(ctx context.Context, platform, version string) (*models.Payload, error) {
	const op = "download release"

	p, err := models.ParsePlatform(platform, c.platforms)
	if err != nil {
		return nil, newValidationError(op, err.Error(), err)
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, newValidationError(op, "Version is required!", nil)
	}

	path := "/files/download/" + url.PathEscape(string(p)) + "/" + url.PathEscape(version)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, newTransportError(op, err)
	}

	res, err := c.send(op, c.httpClient, req)
	if err != nil {
		return nil, err
	}
	if !res.ok() {
		return nil, newResponseError(op, res.status, res.body, "Failed to download file")
	}
	return payloadFrom(res), nil
}

// ListVersions returns the published versions for platform. Results are
// cached per platform when the client has a version cache.
func (c *Client) ListVersions(ctx context.Context, platform string) ([]string, error) {
	const op = "list versions"

	p, err := models.ParsePlatform(platform, c.platforms)
	if err != nil {
		return nil, newValidationError(op, err.Error(), err)
	}

	if c.versions != nil {
		if cached, ok := c.versions.Get(string(p)); ok {
			return append([]string(nil), cached.([]string)...), nil
		}
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(string(p))+"/versions", nil)
	if err != nil {
		return nil, newTransportError(op, err)
	}

	res, err := c.send(op, c.httpClient, req)
	if err != nil {
		return nil, err
	}
	if !res.ok() {
		return nil, newResponseError(op, res.status, res.body, "Failed to fetch versions")
	}

	var versions []string
	if err := json.Unmarshal(res.body, &versions); err != nil {
		return nil, c.malformed(op, req, err)
	}
	if versions == nil {
		versions = []string{}
	}

	if c.versions != nil {
		c.versions.SetDefault(string(p), append([]string(nil), versions...))
	}
	return versions, nil
}

// forgetVersions drops cached versions for platform, or all of them when
// platform is empty.
func (c *Client) forgetVersions(platform string) {
	if c.versions == nil {
		return
	}
	if platform == "" {
		c.versions.Flush()
		return
	}
	c.versions.Delete(platform)
}

func payloadFrom(res *response) *models.Payload {
	p := &models.Payload{
		ContentType: res.header.Get("Content-Type"),
		Data:        res.body,
	}
	if cd := res.header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			p.FileName = params["filename"]
		}
	}
	return p
}
