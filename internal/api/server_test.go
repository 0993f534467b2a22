package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eHtmlu/peak-publisher/internal/core"
	"github.com/eHtmlu/peak-publisher/internal/testutil"
	"github.com/eHtmlu/peak-publisher/internal/upload"
)

const publicURL = "https://updates.example.com"

type client struct {
	t      *testing.T
	router http.Handler
	app    *core.App
}

func newClient(t *testing.T) *client {
	server, app := testutil.SetupTestServer(t)
	return &client{t: t, router: server.Router(), app: app}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	c.router.ServeHTTP(rr, req)
	return rr
}

func (c *client) json(method, target string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// phase posts one multipart phase call. A non-empty zipPath is attached
// as the file field.
func (c *client) phase(fields map[string]string, zipPath string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(c.t, mw.WriteField(k, v))
	}
	if zipPath != "" {
		fw, err := mw.CreateFormFile("file", filepath.Base(zipPath))
		require.NoError(c.t, err)
		data, err := os.ReadFile(zipPath)
		require.NoError(c.t, err)
		_, err = fw.Write(data)
		require.NoError(c.t, err)
	}
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// publish uploads a plugin archive, runs every phase and finalizes it.
func (c *client) publish(slug, ver string) map[string]any {
	t := c.t
	t.Helper()
	zipPath := testutil.CreateTestZip(t, t.TempDir(), slug+".zip", map[string]string{
		slug + "/" + slug + ".php": "<?php\n/**\n * Plugin Name: Plugin " + slug + "\n * Version: " + ver + "\n * Requires PHP: 8.1\n */\n",
		slug + "/readme.txt":       "readme",
	})

	rr := c.phase(map[string]string{"phase": "upload_prepare"}, zipPath)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[upload.PhaseResponse](t, rr)
	require.Equal(t, upload.StatusOK, resp.Status, "%v", resp.Errors)
	id := resp.UploadID

	for next := resp.Next; next != upload.PhaseResult; next = resp.Next {
		rr = c.phase(map[string]string{"phase": next, "upload_id": id}, "")
		resp = decode[upload.PhaseResponse](t, rr)
		require.Equal(t, upload.StatusOK, resp.Status, "phase %s: %v", next, resp.Errors)
	}

	rr = c.json(http.MethodPost, "/api/admin/uploads/finalize", map[string]any{"upload_id": id})
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode[map[string]any](t, rr)
	require.Equal(t, "ok", out["status"], rr.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	c := newClient(t)

	rr := c.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	c.phase(map[string]string{"phase": "bogus"}, "")
	rr = c.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `publisher_upload_phase_total{phase="invalid",result="error"} 1`)
}

func TestUploadPhases(t *testing.T) {
	c := newClient(t)

	t.Run("Full ingestion reports the result", func(t *testing.T) {
		zipPath := testutil.CreateTestZip(t, t.TempDir(), "demo.zip", map[string]string{
			"demo.php":   testutil.PluginHeader("Demo", "1.0.0"),
			".DS_Store":  "junk",
			"readme.txt": "readme",
		})
		rr := c.phase(map[string]string{"phase": "prepare", "built_in_browser": "jszip"}, zipPath)
		resp := decode[upload.PhaseResponse](t, rr)
		require.Equal(t, upload.StatusOK, resp.Status, "%v", resp.Errors)
		assert.Regexp(t, `^\d{8}-\d{6}_[0-9a-f]{32}$`, resp.UploadID)
		assert.Equal(t, upload.PhaseUnpack, resp.Next)

		var ran []string
		for next := resp.Next; next != upload.PhaseResult; next = resp.Next {
			resp = decode[upload.PhaseResponse](t, c.phase(map[string]string{"phase": next, "upload_id": resp.UploadID}, ""))
			require.Equal(t, upload.StatusOK, resp.Status, "%v", resp.Errors)
			ran = append(ran, next)
		}
		assert.Equal(t, []string{upload.PhaseUnpack, upload.PhaseAnalyze, upload.PhaseRebuild}, ran)

		resp = decode[upload.PhaseResponse](t, c.phase(map[string]string{"phase": upload.PhaseResult, "upload_id": resp.UploadID}, ""))
		require.NotNil(t, resp.Data)
		assert.True(t, resp.Data.PluginOK)
		assert.True(t, resp.Data.CleanupInfo.FixedTopLevelFolder)
		assert.True(t, resp.Data.OriginalZip.BuiltInBrowser)
		assert.NotEmpty(t, resp.Checks)

		rr = c.json(http.MethodPost, "/api/admin/uploads/discard", map[string]string{"upload_id": resp.UploadID})
		assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	})

	testCases := []struct {
		name   string
		fields map[string]string
		code   string
	}{
		{"No file", map[string]string{"phase": "prepare"}, upload.CodeNoFile},
		{"Missing upload id", map[string]string{"phase": "unpack"}, upload.CodeMissingUploadID},
		{"Unknown upload", map[string]string{"phase": "unpack", "upload_id": "20240101-000000_" + strings.Repeat("a", 32)}, upload.CodeUploadNotFound},
		{"Path traversal id", map[string]string{"phase": "analyze", "upload_id": "../../etc"}, upload.CodeUploadNotFound},
		{"Invalid phase", map[string]string{"phase": "bogus", "upload_id": "x"}, upload.CodeInvalidPhase},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := c.phase(tc.fields, "")
			require.Equal(t, http.StatusOK, rr.Code)
			resp := decode[upload.PhaseResponse](t, rr)
			assert.Equal(t, upload.StatusError, resp.Status)
			require.Len(t, resp.Errors, 1)
			assert.Equal(t, tc.code, resp.Errors[0].Code)
		})
	}
}

func TestUploadSizeLimit(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	app.Config.Uploads.MaxSizeMB = 0
	c := &client{t: t, router: server.Router(), app: app}

	big := filepath.Join(t.TempDir(), "big.zip")
	require.NoError(t, os.WriteFile(big, bytes.Repeat([]byte{0}, 2<<20), 0644))

	rr := c.phase(map[string]string{"phase": "prepare"}, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestFinalizeErrors(t *testing.T) {
	c := newClient(t)

	rr := c.json(http.MethodPost, "/api/admin/uploads/finalize", map[string]any{})
	out := decode[map[string]any](t, rr)
	assert.Equal(t, "error", out["status"])
	assert.Contains(t, rr.Body.String(), upload.CodeMissingUploadID)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/uploads/finalize", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, c.do(req).Code)

	rr = c.json(http.MethodPost, "/api/admin/uploads/discard", map[string]string{"upload_id": "20240101-000000_" + strings.Repeat("b", 32)})
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String(), "discarding a missing upload succeeds")
}

func TestPublishAndDistribute(t *testing.T) {
	c := newClient(t)
	first := c.publish("hello", "1.0.0")
	second := c.publish("hello", "1.1.0")
	assert.Equal(t, first["plugin_id"], second["plugin_id"])

	t.Run("Update check with JSON body", func(t *testing.T) {
		rr := c.json(http.MethodPost, "/api/v1/plugins/update-check", map[string]any{
			"plugins": map[string]any{
				"hello/hello.php":     map[string]string{"Version": "1.0.0"},
				"unknown/unknown.php": map[string]string{"Version": "1.0.0"},
			},
		})
		require.Equal(t, http.StatusOK, rr.Code)
		out := decode[struct {
			Plugins      map[string]map[string]any `json:"plugins"`
			Translations []any                     `json:"translations"`
		}](t, rr)
		require.Len(t, out.Plugins, 1)
		assert.NotNil(t, out.Translations)
		entry := out.Plugins["hello/hello.php"]
		assert.Equal(t, "1.1.0", entry["version"])
		assert.Equal(t, publicURL+"/api/v1/plugins/download/hello/1.1.0", entry["package"])
		assert.Equal(t, "8.1", entry["requires_php"])
	})

	t.Run("Update check with form field", func(t *testing.T) {
		form := url.Values{"plugins": {`{"plugins":{"hello/hello.php":{"Version":"1.0.0"}}}`}}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins/update-check", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := c.do(req)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"version":"1.1.0"`)
	})

	t.Run("Update check without plugins", func(t *testing.T) {
		rr := c.json(http.MethodPost, "/api/v1/plugins/update-check", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Info", func(t *testing.T) {
		rr := c.do(httptest.NewRequest(http.MethodGet, "/api/v1/plugins/info?action=plugin_information&request[slug]=hello", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		out := decode[map[string]any](t, rr)
		assert.Equal(t, "Plugin hello", out["name"])
		assert.Equal(t, "1.1.0", out["version"])
		versions := out["versions"].(map[string]any)
		assert.Len(t, versions, 3)
		assert.Equal(t, publicURL+"/api/v1/plugins/download/hello", versions["trunk"])
	})

	t.Run("Info errors", func(t *testing.T) {
		for target, code := range map[string]int{
			"/api/v1/plugins/info?action=query_plugins&slug=hello":     http.StatusBadRequest,
			"/api/v1/plugins/info?action=plugin_information":           http.StatusBadRequest,
			"/api/v1/plugins/info?action=plugin_information&slug=nope": http.StatusNotFound,
		} {
			rr := c.do(httptest.NewRequest(http.MethodGet, target, nil))
			assert.Equal(t, code, rr.Code, target)
		}
	})

	t.Run("Download", func(t *testing.T) {
		for _, target := range []string{"/api/v1/plugins/download/hello", "/api/v1/plugins/download/hello/1.0.0"} {
			rr := c.do(httptest.NewRequest(http.MethodGet, target, nil))
			require.Equal(t, http.StatusOK, rr.Code, target)
			assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
			assert.Equal(t, `attachment; filename="hello.zip"`, rr.Header().Get("Content-Disposition"))
			assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")))
		}
		rr := c.do(httptest.NewRequest(http.MethodGet, "/api/v1/plugins/download/hello/9.9", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Draft plugins are not distributed", func(t *testing.T) {
		target := fmt.Sprintf("/api/admin/plugins/%v", first["plugin_id"])
		rr := c.json(http.MethodPut, target, map[string]string{"status": "draft"})
		require.Equal(t, http.StatusOK, rr.Code)

		rr = c.do(httptest.NewRequest(http.MethodGet, "/api/v1/plugins/download/hello", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = c.json(http.MethodPut, target, map[string]string{"status": "published"})
		require.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestCatalogAdmin(t *testing.T) {
	c := newClient(t)
	pub := c.publish("alpha", "2.0")
	pluginID := pub["plugin_id"]
	releaseID := pub["release_id"]

	rr := c.do(httptest.NewRequest(http.MethodGet, "/api/admin/plugins", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]map[string]any](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "2.0", list[0]["latest_version"])

	rr = c.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/admin/plugins/%v", pluginID), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[map[string]any](t, rr)["releases"], 1)

	rr = c.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/admin/releases/%v/download", releaseID), nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	testCases := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"Invalid status", http.MethodPut, fmt.Sprintf("/api/admin/releases/%v", releaseID), map[string]string{"status": "archived"}, http.StatusBadRequest},
		{"Draft release", http.MethodPut, fmt.Sprintf("/api/admin/releases/%v", releaseID), map[string]string{"status": "draft"}, http.StatusOK},
		{"Bad plugin id", http.MethodGet, "/api/admin/plugins/abc", nil, http.StatusBadRequest},
		{"Unknown plugin", http.MethodGet, "/api/admin/plugins/999", nil, http.StatusNotFound},
		{"Unknown release", http.MethodDelete, "/api/admin/releases/999", nil, http.StatusNotFound},
		{"Delete release", http.MethodDelete, fmt.Sprintf("/api/admin/releases/%v", releaseID), nil, http.StatusNoContent},
		{"Delete plugin", http.MethodDelete, fmt.Sprintf("/api/admin/plugins/%v", pluginID), nil, http.StatusNoContent},
		{"Plugin gone", http.MethodGet, fmt.Sprintf("/api/admin/plugins/%v", pluginID), nil, http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := c.json(tc.method, tc.target, tc.body)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}

	_, err := os.Stat(filepath.Join(c.app.Config.Storage.Path, "plugins", "alpha"))
	assert.True(t, os.IsNotExist(err))
}

func TestJobs(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	c := &client{t: t, router: server.Router(), app: app}

	rr := c.json(http.MethodPost, "/api/admin/jobs/run", map[string]string{"job_id": "sweep-uploads"})
	require.Equal(t, http.StatusAccepted, rr.Code)
	server.Jobs().Wait()

	rr = c.do(httptest.NewRequest(http.MethodGet, "/api/admin/jobs/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	statuses := decode[[]map[string]any](t, rr)
	require.Len(t, statuses, 2)
	assert.Equal(t, "prune-storage", statuses[0]["id"])
	assert.Equal(t, "sweep-uploads", statuses[1]["id"])
	assert.Equal(t, "success", statuses[1]["status"])

	rr = c.json(http.MethodPost, "/api/admin/jobs/run", map[string]string{"job_id": "reindex"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
