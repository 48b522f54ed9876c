package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// APIClient drives an http.Handler in-process and keeps cookies between
// calls like a browser would
type APIClient struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
	// Bearer is sent as the Authorization header when set
	Bearer string
	// RemoteAddr overrides the client address seen by the server
	RemoteAddr string
}

// NewAPIClient creates a client for handler
func NewAPIClient(t *testing.T, handler http.Handler) *APIClient {
	return &APIClient{t: t, handler: handler, cookies: map[string]*http.Cookie{}}
}

// Response is a decoded API envelope
type Response struct {
	Status  int            `json:"-"`
	Header  http.Header    `json:"-"`
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Raw string `json:"-"`
}

// ErrorCode returns the error code or "" for successful responses
func (r *Response) ErrorCode() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Code
}

// String returns a data field as a string
func (r *Response) String(key string) string {
	s, _ := r.Data[key].(string)
	return s
}

// Do sends a JSON request and decodes the envelope
func (c *APIClient) Do(method, path string, body any) *Response {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	if c.RemoteAddr != "" {
		req.RemoteAddr = c.RemoteAddr
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge < 0 || ck.Value == "" {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}

	resp := &Response{Status: w.Code, Header: w.Header(), Raw: w.Body.String()}
	if w.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), resp), w.Body.String())
	}
	return resp
}

// Post is Do with POST
func (c *APIClient) Post(path string, body any) *Response {
	c.t.Helper()
	return c.Do(http.MethodPost, path, body)
}

// Get is Do with GET
func (c *APIClient) Get(path string) *Response {
	c.t.Helper()
	return c.Do(http.MethodGet, path, nil)
}

// Cookie returns the stored cookie value or ""
func (c *APIClient) Cookie(name string) string {
	if ck, ok := c.cookies[name]; ok {
		return ck.Value
	}
	return ""
}

// SetCookie stores a cookie to send on later requests
func (c *APIClient) SetCookie(name, value string) {
	c.cookies[name] = &http.Cookie{Name: name, Value: value}
}
