package api

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestDecodePositional(t *testing.T) {
	args, err := decodePositional(`/%22MyPack%22/%5B%22http://x%22%5D`)
	if err != nil {
		t.Fatalf("decodePositional failed: %v", err)
	}
	if len(args) != 2 {
		t.Fatalf("Expected 2 args, got %d: %#v", len(args), args)
	}
	if args[0] != "MyPack" {
		t.Errorf("Expected first arg %q, got %#v", "MyPack", args[0])
	}
	urls, ok := args[1].([]any)
	if !ok || len(urls) != 1 || urls[0] != "http://x" {
		t.Errorf("Expected second arg [http://x], got %#v", args[1])
	}
}

func TestDecodePositional_Scalars(t *testing.T) {
	args, err := decodePositional("/1/true/%22a%22")
	if err != nil {
		t.Fatalf("decodePositional failed: %v", err)
	}
	if len(args) != 3 {
		t.Fatalf("Expected 3 args, got %d", len(args))
	}
	if args[0] != float64(1) || args[1] != true || args[2] != "a" {
		t.Errorf("Unexpected args: %#v", args)
	}
}

func TestDecodePositional_Empty(t *testing.T) {
	args, err := decodePositional("")
	if err != nil {
		t.Fatalf("decodePositional failed: %v", err)
	}
	if len(args) != 0 {
		t.Errorf("Expected no args, got %#v", args)
	}
}

func TestDecodePositional_Invalid(t *testing.T) {
	_, err := decodePositional("/notjson")
	if err == nil {
		t.Fatal("Expected error for undecodable segment")
	}
	var uie *UnsupportedInputError
	if !errors.As(err, &uie) {
		t.Fatalf("Expected UnsupportedInputError, got %T", err)
	}
	if uie.Value != "notjson" {
		t.Errorf("Expected offending value %q, got %q", "notjson", uie.Value)
	}
}

func TestDecodeKwargs_QueryParams(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, `/api/x?paused=true&session=abc&name=%22p%22`, nil)

	kwargs, err := decodeKwargs(c)
	if err != nil {
		t.Fatalf("decodeKwargs failed: %v", err)
	}
	if kwargs["paused"] != true {
		t.Errorf("Expected paused=true, got %#v", kwargs["paused"])
	}
	if kwargs["name"] != "p" {
		t.Errorf("Expected name=p, got %#v", kwargs["name"])
	}
	if _, ok := kwargs["session"]; ok {
		t.Error("session parameter must never become a keyword argument")
	}
}

func TestDecodeKwargs_BadParam(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, `/api/x?bad=notjson`, nil)

	_, err := decodeKwargs(c)
	var uie *UnsupportedInputError
	if !errors.As(err, &uie) {
		t.Fatalf("Expected UnsupportedInputError, got %v", err)
	}
	if uie.Name != "bad" {
		t.Errorf("Expected offending parameter %q, got %q", "bad", uie.Name)
	}
}

func TestDecodeKwargs_JSONBody(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	body := strings.NewReader(`{"name": "p", "links": ["http://x"]}`)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/x", body)
	c.Request.Header.Set("Content-Type", "application/json")

	kwargs, err := decodeKwargs(c)
	if err != nil {
		t.Fatalf("decodeKwargs failed: %v", err)
	}
	if kwargs["name"] != "p" {
		t.Errorf("Expected name=p, got %#v", kwargs["name"])
	}
	links, ok := kwargs["links"].([]any)
	if !ok || len(links) != 1 {
		t.Errorf("Expected links list, got %#v", kwargs["links"])
	}
}

// writeBody runs writeJSON against a fresh context and returns the recorder.
func writeBody(t *testing.T, v any, acceptGzip bool) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/x", nil)
	if acceptGzip {
		c.Request.Header.Set("Accept-Encoding", "gzip")
	}
	writeJSON(c, http.StatusOK, v)
	return w
}

func TestWriteJSON_ExactThresholdUncompressed(t *testing.T) {
	// A JSON string of 498 chars serializes to exactly 500 bytes.
	payload := strings.Repeat("a", 498)
	w := writeBody(t, payload, true)

	if got := w.Header().Get("Content-Encoding"); got != "" {
		t.Errorf("500-byte body must not be compressed, got Content-Encoding %q", got)
	}
	if w.Body.Len() != 500 {
		t.Fatalf("Expected 500 byte body, got %d", w.Body.Len())
	}
}

func TestWriteJSON_OverThresholdCompressed(t *testing.T) {
	payload := strings.Repeat("a", 499) // 501 serialized bytes
	w := writeBody(t, payload, true)

	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Expected gzip encoding, got %q", got)
	}
	if got := w.Header().Get("Vary"); got != "Accept-Encoding" {
		t.Errorf("Expected Vary: Accept-Encoding, got %q", got)
	}

	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("Body is not valid gzip: %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}

	expected, _ := json.Marshal(payload)
	if !bytes.Equal(plain, expected) {
		t.Error("Decompressed body differs from the uncompressed encoding")
	}
}

func TestWriteJSON_NoAcceptNoCompression(t *testing.T) {
	payload := strings.Repeat("a", 2000)
	w := writeBody(t, payload, false)

	if got := w.Header().Get("Content-Encoding"); got != "" {
		t.Errorf("Client without gzip support got Content-Encoding %q", got)
	}

	var decoded string
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("Round-trip decode failed: %v", err)
	}
	if decoded != payload {
		t.Error("Round-trip did not reproduce the original value")
	}
}
