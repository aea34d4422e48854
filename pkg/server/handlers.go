package server

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/engine"
)

// maxMultipartMemory bounds the in-memory part of multipart parsing;
// larger files spill to temp files.
const maxMultipartMemory = 32 << 20

func validationResult(message string) engine.Result {
	return engine.Result{Success: false, Code: engine.CodeValidation, Message: message}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type tokenResponse struct {
	engine.Result
	Token string `json:"token,omitempty"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	token := s.tokens.Issue(clientIP(r))
	writeResult(w, "token", tokenResponse{Result: engine.Result{Success: true}, Token: token})
}

type clientIPResponse struct {
	engine.Result
	IP string `json:"ip"`
}

func (s *Server) handleClientIP(w http.ResponseWriter, r *http.Request) {
	writeResult(w, "client-ip", clientIPResponse{Result: engine.Result{Success: true}, IP: clientIP(r)})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := s.engine.GetItem(r.Context(), q.Get("repositoryId"), q.Get("itemId"), q.Get("businessId"))
	writeResult(w, "item", res)
}

func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := s.engine.GetItems(r.Context(), q.Get("repositoryId"), q.Get("dependencyId"), q.Get("businessId"))
	writeResult(w, "items", res)
}

// uploadParamsFromForm collects the identifier and path fields shared
// by every upload variant.
func uploadParamsFromForm(r *http.Request) engine.UploadParams {
	get := func(name string) string {
		if v := r.FormValue(name); v != "" {
			return v
		}
		return r.URL.Query().Get(name)
	}
	return engine.UploadParams{
		RepositoryID: get("repositoryId"),
		DependencyID: get("dependencyId"),
		BusinessID:   get("businessId"),
		CustomPath1:  get("customPath1"),
		CustomPath2:  get("customPath2"),
		CustomPath3:  get("customPath3"),
		ItemSummary:  get("itemSummary"),
		CreatedBy:    get("createdBy"),
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeResult(w, "upload", engine.UploadResult{Result: validationResult("invalid multipart form: " + err.Error())})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeResult(w, "upload", engine.UploadResult{Result: validationResult("the \"file\" form field is required")})
		return
	}
	defer file.Close()

	params := uploadParamsFromForm(r)
	params.FileName = header.Filename
	params.Size = header.Size
	params.Content = file
	params.ContentType = header.Header.Get("Content-Type")

	writeResult(w, "upload", s.engine.Upload(r.Context(), params))
}

// handleUploadRaw accepts the request body as the file content, with
// the name and declared size carried in X-File-Name and X-File-Size.
func (s *Server) handleUploadRaw(w http.ResponseWriter, r *http.Request) {
	fileName := r.Header.Get("X-File-Name")
	if decoded, err := url.QueryUnescape(fileName); err == nil {
		fileName = decoded
	}
	if fileName == "" {
		writeResult(w, "upload", engine.UploadResult{Result: validationResult("the X-File-Name header is required")})
		return
	}

	size, _ := strconv.ParseInt(r.Header.Get("X-File-Size"), 10, 64)
	if size == 0 {
		size = r.ContentLength
	}

	params := uploadParamsFromForm(r)
	params.FileName = fileName
	params.Size = size
	params.Content = r.Body
	params.ContentType = r.Header.Get("Content-Type")

	writeResult(w, "upload", s.engine.Upload(r.Context(), params))
}

type uploadBatchResponse struct {
	engine.Result
	Items []engine.UploadResult `json:"items"`
}

// handleUploadFiles lands several files in one request. The response
// is either a JSON array of per-file results or, for legacy iframe
// clients, an HTML document posting the results to the parent window.
func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeResult(w, "uploads", uploadBatchResponse{Result: validationResult("invalid multipart form: " + err.Error())})
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeResult(w, "uploads", uploadBatchResponse{Result: validationResult("no files in request")})
		return
	}

	base := uploadParamsFromForm(r)
	results := make([]engine.UploadResult, 0, len(headers))
	allOK := true
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			results = append(results, engine.UploadResult{Result: validationResult("unreadable file part: " + header.Filename)})
			allOK = false
			continue
		}

		params := base
		params.FileName = header.Filename
		params.Size = header.Size
		params.Content = file
		params.ContentType = header.Header.Get("Content-Type")

		res := s.engine.Upload(r.Context(), params)
		file.Close()
		if !res.Success {
			allOK = false
		}
		results = append(results, res)
	}

	batch := uploadBatchResponse{Result: engine.Result{Success: allOK}, Items: results}
	if !allOK {
		batch.Code = engine.CodeBackendFailure
		batch.Message = "one or more files failed to upload"
	}

	if r.FormValue("responseType") == "script" {
		writeScriptCallback(w, batch)
		return
	}
	writeResult(w, "uploads", batch)
}

// writeScriptCallback renders the batch result as an HTML page that
// posts it to the parent window, for iframe-based upload forms.
func writeScriptCallback(w http.ResponseWriter, batch uploadBatchResponse) {
	payload, err := json.Marshal(batch)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html><html><body><script>parent.postMessage(%s, \"*\");</script></body></html>", payload)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	get := func(name string) string {
		if v := r.FormValue(name); v != "" {
			return v
		}
		return r.URL.Query().Get(name)
	}

	res := s.engine.Download(r.Context(), get("repositoryId"), get("itemId"), get("businessId"), r.Referer())
	if !res.Success {
		writeResult(w, "download", res)
		return
	}
	defer res.Content.Close()
	streamFile(w, res.FileName, res.MimeType, res.Length, res.Content)
}

func (s *Server) handleVirtualDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := s.engine.VirtualDownload(r.Context(), q.Get("repositoryId"), q.Get("fileName"), q.Get("subDirectory"), r.Referer())
	if !res.Success {
		writeResult(w, "download", res)
		return
	}
	defer res.Content.Close()

	mimeType := res.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(path.Ext(res.FileName))
	}
	streamFile(w, res.FileName, mimeType, res.Length, res.Content)
}

func streamFile(w http.ResponseWriter, fileName, mimeType string, length int64, content io.Reader) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if length > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	}
	if _, err := io.Copy(w, content); err != nil {
		logger.Debug("download: stream %q: %v", fileName, err)
	}
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := s.engine.RemoveItem(r.Context(), q.Get("repositoryId"), q.Get("itemId"), q.Get("businessId"))
	writeResult(w, "remove", res)
}

func (s *Server) handleRemoveItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := s.engine.RemoveItems(r.Context(), q.Get("repositoryId"), q.Get("dependencyId"), q.Get("businessId"))
	writeResult(w, "remove", res)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := s.engine.Rename(r.Context(), q.Get("repositoryId"), q.Get("itemId"), q.Get("businessId"), q.Get("fileName"))
	writeResult(w, "rename", res)
}

func (s *Server) handleReparent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := s.engine.Reparent(r.Context(),
		q.Get("repositoryId"), q.Get("sourceDependencyId"), q.Get("targetDependencyId"), q.Get("businessId"))
	writeResult(w, "reparent", res)
}

func (s *Server) handleRepository(w http.ResponseWriter, r *http.Request) {
	res := s.engine.GetRepository(r.URL.Query().Get("repositoryId"))
	writeResult(w, "repository", res)
}

func (s *Server) handleRepositories(w http.ResponseWriter, r *http.Request) {
	writeResult(w, "repositories", s.engine.GetRepositories())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Refresh(r.Context()); err != nil {
		logger.Error("refresh: %v", err)
		writeResult(w, "refresh", engine.Result{Success: false, Code: engine.CodeBackendFailure, Message: "repository refresh failed"})
		return
	}
	writeResult(w, "refresh", engine.Result{Success: true})
}

type mimeTypeResponse struct {
	engine.Result
	MimeType string `json:"mimeType,omitempty"`
}

func (s *Server) handleMimeType(w http.ResponseWriter, r *http.Request) {
	fileName := r.URL.Query().Get("fileName")
	if fileName == "" {
		writeResult(w, "mime-type", mimeTypeResponse{Result: validationResult("fileName is required")})
		return
	}
	mimeType := mime.TypeByExtension(path.Ext(fileName))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	writeResult(w, "mime-type", mimeTypeResponse{Result: engine.Result{Success: true}, MimeType: mimeType})
}

type md5Response struct {
	engine.Result
	MD5 string `json:"md5,omitempty"`
}

func (s *Server) handleMD5(w http.ResponseWriter, r *http.Request) {
	hash := md5.New()
	if _, err := io.Copy(hash, r.Body); err != nil {
		writeResult(w, "md5", md5Response{Result: validationResult("failed to read request body")})
		return
	}
	writeResult(w, "md5", md5Response{
		Result: engine.Result{Success: true},
		MD5:    fmt.Sprintf("%x", hash.Sum(nil)),
	})
}
