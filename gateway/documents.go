package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jmcleod/docsession/internal/util"
	"github.com/jmcleod/docsession/session"
)

// maxContentSize caps downloaded and previewed file bodies.
const maxContentSize = 256 << 20

// File is a document owned by the current user.
type File struct {
	ID           int64   `json:"id"`
	Filename     string  `json:"filename"`
	Version      int     `json:"version"`
	SHA256       string  `json:"sha256"`
	CID          string  `json:"cid"`
	UploadedTime string  `json:"uploadedtime"`
	Description  *string `json:"description"`
	Size         *int64  `json:"size"`
	FileType     *string `json:"filetype"`
}

// Registration is the body of a sign-up request.
type Registration struct {
	FullName string       `json:"full_name"`
	Email    string       `json:"email"`
	Password string       `json:"password"`
	Role     session.Role `json:"role,omitempty"`
}

// LoginResult is what the service returns for valid credentials.
type LoginResult struct {
	User  session.User `json:"user"`
	Token string       `json:"token"`
}

// Session converts the result into a logged-in session value.
func (r LoginResult) Session() session.Session {
	return session.New(r.User, r.Token)
}

// UploadResult describes a stored upload. The service reports per-file
// failures in Error with a 200 status.
type UploadResult struct {
	Filename string `json:"filename"`
	Version  int    `json:"version,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	CID      string `json:"cid,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Content is a fetched file body.
type Content struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Documents is a typed client for the document service.
type Documents struct {
	gw *Gateway
}

// NewDocuments returns a Documents client that sends through gw.
func NewDocuments(gw *Gateway) *Documents {
	return &Documents{gw: gw}
}

// Login exchanges credentials for a user and token. It does not touch the
// session; the caller commits the result.
func (d *Documents) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	body := map[string]string{"email": util.NormalizeEmail(email), "password": password}
	if err := d.doJSON(ctx, http.MethodPost, "login", body, &out); err != nil {
		return LoginResult{}, err
	}
	if out.Token == "" {
		return LoginResult{}, fmt.Errorf("login response carried no token: %w", session.ErrInvalidSession)
	}
	return out, nil
}

// Register creates an account and returns the service's confirmation message.
func (d *Documents) Register(ctx context.Context, r Registration) (string, error) {
	r.Email = util.NormalizeEmail(r.Email)
	var out struct {
		Message string `json:"message"`
	}
	if err := d.doJSON(ctx, http.MethodPost, "register", r, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ListFiles lists the caller's files, filtered by search when it is non-empty.
func (d *Documents) ListFiles(ctx context.Context, search string) ([]File, error) {
	req, err := d.gw.NewRequest(ctx, http.MethodGet, "files/", nil)
	if err != nil {
		return nil, err
	}
	if search != "" {
		req.URL.RawQuery = url.Values{"search": {search}}.Encode()
	}
	var files []File
	if err := d.send(req, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (d *Documents) RenameFile(ctx context.Context, id int64, newName string) (File, error) {
	var out File
	body := map[string]string{"new_filename": newName}
	err := d.doJSON(ctx, http.MethodPut, "files/"+strconv.FormatInt(id, 10), body, &out)
	return out, err
}

// DescribeFile sets the description of a file; an empty description clears it.
func (d *Documents) DescribeFile(ctx context.Context, id int64, description string) (File, error) {
	var out File
	body := map[string]*string{"description": nil}
	if description != "" {
		body["description"] = &description
	}
	err := d.doJSON(ctx, http.MethodPut, "files/description/"+strconv.FormatInt(id, 10), body, &out)
	return out, err
}

func (d *Documents) DeleteFile(ctx context.Context, id int64) error {
	return d.doJSON(ctx, http.MethodDelete, "files/"+strconv.FormatInt(id, 10), nil, nil)
}

// Download fetches a file's content as an attachment.
func (d *Documents) Download(ctx context.Context, id int64) (Content, error) {
	return d.content(ctx, "files/download/"+strconv.FormatInt(id, 10))
}

// Preview fetches a file's content for inline display.
func (d *Documents) Preview(ctx context.Context, id int64) (Content, error) {
	return d.content(ctx, "files/preview/"+strconv.FormatInt(id, 10))
}

// Upload stores a new file.
func (d *Documents) Upload(ctx context.Context, filename string, r io.Reader) (UploadResult, error) {
	var out UploadResult
	if err := d.doMultipart(ctx, http.MethodPost, "upload", filename, r, &out); err != nil {
		return UploadResult{}, err
	}
	if out.Error != "" {
		return out, fmt.Errorf("upload %s: %s", filename, out.Error)
	}
	return out, nil
}

// ReplaceContent uploads new content for an existing file.
func (d *Documents) ReplaceContent(ctx context.Context, id int64, filename string, r io.Reader) (File, error) {
	var out File
	err := d.doMultipart(ctx, http.MethodPut, "files/upload/"+strconv.FormatInt(id, 10), filename, r, &out)
	return out, err
}

func (d *Documents) content(ctx context.Context, path string) (Content, error) {
	req, err := d.gw.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Content{}, err
	}
	resp, err := d.gw.Do(req)
	if err != nil {
		return Content{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Content{}, readAPIError(resp)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxContentSize+1))
	if err != nil {
		return Content{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) > maxContentSize {
		return Content{}, fmt.Errorf("reading %s: content exceeds %d bytes", path, maxContentSize)
	}

	c := Content{Data: data, ContentType: resp.Header.Get("Content-Type")}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		c.Filename = params["filename"]
	}
	return c, nil
}

func (d *Documents) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := d.gw.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return d.send(req, out)
}

func (d *Documents) doMultipart(ctx context.Context, method, path, filename string, r io.Reader, out any) error {
	if filename == "" {
		return errors.New("upload requires a filename")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := d.gw.NewRequest(ctx, method, path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return d.send(req, out)
}

// send performs req and decodes a 2xx JSON body into out when out is non-nil.
func (d *Documents) send(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := d.gw.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
