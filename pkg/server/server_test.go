package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormrose-io/filegate/pkg/config"
	"github.com/stormrose-io/filegate/pkg/engine"
	"github.com/stormrose-io/filegate/pkg/metadata/badgerstore"
	"github.com/stormrose-io/filegate/pkg/repository"
	"github.com/stormrose-io/filegate/pkg/storage"
	"github.com/stormrose-io/filegate/pkg/storage/fs"
)

func newTestServer(t *testing.T, cfg config.ServerConfig, repos ...repository.Repository) *httptest.Server {
	t.Helper()

	store, err := badgerstore.New(badgerstore.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := repository.NewRegistry(repository.StaticLoader(repos))
	require.NoError(t, registry.Refresh(context.Background()))

	eng := engine.New(registry, store,
		func(ctx context.Context, repo *repository.Repository) (storage.Backend, error) {
			return fs.New(ctx, repo.PhysicalPath)
		})

	if cfg.TokenPurgeTimeout == 0 {
		cfg.TokenPurgeTimeout = 2 * time.Minute
	}
	srv := httptest.NewServer(New(cfg, eng).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func fileRepo(t *testing.T, id string) repository.Repository {
	t.Helper()
	return repository.Repository{
		RepositoryID:  id,
		StorageType:   repository.StorageFileSystem,
		PhysicalPath:  t.TempDir(),
		IsMultiUpload: true,
		UploadCount:   5,
	}
}

func multipartBody(t *testing.T, field, fileName, content string, form map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range form {
		require.NoError(t, w.WriteField(name, value))
	}
	part, err := w.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, fileRepo(t, "docs"))

	body, contentType := multipartBody(t, "file", "hello.txt", "hello world", map[string]string{
		"repositoryId": "docs",
		"dependencyId": "dep-1",
	})
	resp, err := http.Post(srv.URL+"/api/upload", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "upload", resp.Header.Get("X-Model-Type"))

	var up engine.UploadResult
	decodeBody(t, resp, &up)
	require.True(t, up.Success, up.Message)
	require.NotNil(t, up.Item)
	assert.Equal(t, "hello.txt", up.Item.ItemID)

	resp, err = http.Get(srv.URL + "/api/download?repositoryId=docs&itemId=hello.txt")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `"hello.txt"`)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestResultHeaderMirrorsBody(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, fileRepo(t, "docs"))

	resp, err := http.Get(srv.URL + "/api/item?repositoryId=docs&itemId=ghost")
	require.NoError(t, err)

	assert.Equal(t, "item", resp.Header.Get("X-Model-Type"))
	encoded := resp.Header.Get("X-Result")
	require.NotEmpty(t, encoded)
	headerBody, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(headerBody))

	var res engine.ItemResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.False(t, res.Success)
	assert.Equal(t, engine.CodeNotFound, res.Code)
}

func TestRawUpload(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, fileRepo(t, "docs"))

	req, err := http.NewRequest(http.MethodPost,
		srv.URL+"/api/upload-raw?repositoryId=docs&dependencyId=dep-1",
		strings.NewReader("raw bytes"))
	require.NoError(t, err)
	req.Header.Set("X-File-Name", "report%20final.pdf")
	req.Header.Set("X-File-Size", "9")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	var up engine.UploadResult
	decodeBody(t, resp, &up)
	require.True(t, up.Success, up.Message)
	assert.Equal(t, "report final.pdf", up.Item.FileName, "the header name is URL-decoded")
}

func TestRawUpload_RequiresFileName(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, fileRepo(t, "docs"))

	resp, err := http.Post(srv.URL+"/api/upload-raw?repositoryId=docs&dependencyId=dep-1",
		"application/octet-stream", strings.NewReader("x"))
	require.NoError(t, err)

	var up engine.UploadResult
	decodeBody(t, resp, &up)
	assert.False(t, up.Success)
	assert.Equal(t, engine.CodeValidation, up.Code)
}

func TestUploadFiles_Batch(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, fileRepo(t, "docs"))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("repositoryId", "docs"))
	require.NoError(t, w.WriteField("dependencyId", "dep-1"))
	for _, name := range []string{"a.txt", "b.txt"} {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = io.WriteString(part, "content of "+name)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	resp, err := http.Post(srv.URL+"/api/upload-files", w.FormDataContentType(), &buf)
	require.NoError(t, err)

	var batch struct {
		engine.Result
		Items []engine.UploadResult `json:"items"`
	}
	decodeBody(t, resp, &batch)
	require.True(t, batch.Success, batch.Message)
	require.Len(t, batch.Items, 2)
	assert.Equal(t, "a.txt", batch.Items[0].Item.ItemID)
	assert.Equal(t, "b.txt", batch.Items[1].Item.ItemID)
}

func TestUploadFiles_ScriptCallback(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, fileRepo(t, "docs"))

	body, contentType := multipartBody(t, "files", "a.txt", "x", map[string]string{
		"repositoryId": "docs",
		"dependencyId": "dep-1",
		"responseType": "script",
	})
	resp, err := http.Post(srv.URL+"/api/upload-files", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "parent.postMessage")
}

func TestRemoveAndRename(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, fileRepo(t, "docs"))

	body, contentType := multipartBody(t, "file", "a.txt", "x", map[string]string{
		"repositoryId": "docs",
		"dependencyId": "dep-1",
	})
	resp, err := http.Post(srv.URL+"/api/upload", contentType, body)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/update-filename?repositoryId=docs&itemId=a.txt&fileName=b.txt")
	require.NoError(t, err)
	var renamed engine.RenameResult
	decodeBody(t, resp, &renamed)
	require.True(t, renamed.Success, renamed.Message)
	assert.Equal(t, "b.txt", renamed.Item.ItemID)

	resp, err = http.Get(srv.URL + "/api/remove-item?repositoryId=docs&itemId=b.txt")
	require.NoError(t, err)
	var removed engine.RemoveResult
	decodeBody(t, resp, &removed)
	require.True(t, removed.Success, removed.Message)
	assert.Equal(t, 1, removed.Affected)
}

func TestRepositoriesEndpoint(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, fileRepo(t, "docs"), fileRepo(t, "images"))

	resp, err := http.Get(srv.URL + "/api/repositories")
	require.NoError(t, err)

	var res engine.RepositoriesResult
	decodeBody(t, resp, &res)
	require.True(t, res.Success)
	assert.Len(t, res.Repositories, 2)
}

func TestTokenEndpoint(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, fileRepo(t, "docs"))

	resp, err := http.Get(srv.URL + "/api/token")
	require.NoError(t, err)

	var res struct {
		engine.Result
		Token string `json:"token"`
	}
	decodeBody(t, resp, &res)
	require.True(t, res.Success)
	assert.Len(t, res.Token, 32)
}

func TestMimeTypeEndpoint(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, fileRepo(t, "docs"))

	resp, err := http.Get(srv.URL + "/api/mime-type?fileName=photo.png")
	require.NoError(t, err)

	var res struct {
		engine.Result
		MimeType string `json:"mimeType"`
	}
	decodeBody(t, resp, &res)
	require.True(t, res.Success)
	assert.Equal(t, "image/png", res.MimeType)
}

func TestMD5Endpoint(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, fileRepo(t, "docs"))

	resp, err := http.Post(srv.URL+"/api/md5", "application/octet-stream", strings.NewReader("hello"))
	require.NoError(t, err)

	var res struct {
		engine.Result
		MD5 string `json:"md5"`
	}
	decodeBody(t, resp, &res)
	require.True(t, res.Success)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", res.MD5)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, fileRepo(t, "docs"))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSecureHeaders(t *testing.T) {
	cfg := config.ServerConfig{
		XFrameOptions: "DENY",
		Origins:       []string{"https://app.example.com"},
	}
	srv := newTestServer(t, cfg, fileRepo(t, "docs"))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
