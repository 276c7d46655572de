package api

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// compressThreshold is the serialized size above which responses are
// gzip-compressed for clients that accept it. Small payloads are never
// compressed.
const compressThreshold = 500

const maxUploadMemory = 32 << 20

// decodePositional turns the escaped path remainder after the method name
// into positional arguments: segments are URL-unescaped and JSON-decoded
// in order. A segment that is only a JSON prefix absorbs the following
// segments (slash included) until the accumulated text parses, so URLs
// with literal slashes survive inside a single argument.
func decodePositional(rawArgs string) ([]any, error) {
	var (
		args    []any
		acc     string
		lastErr error
	)
	for _, seg := range strings.Split(rawArgs, "/") {
		if acc == "" && seg == "" {
			continue
		}
		unescaped, err := url.PathUnescape(seg)
		if err != nil {
			return nil, &UnsupportedInputError{Name: "arg" + strconv.Itoa(len(args)), Value: seg, Err: err}
		}
		if acc == "" {
			acc = unescaped
		} else {
			acc += "/" + unescaped
		}
		var v any
		if err := json.Unmarshal([]byte(acc), &v); err != nil {
			lastErr = err
			continue
		}
		args = append(args, v)
		acc = ""
	}
	if acc != "" {
		return nil, &UnsupportedInputError{Name: "arg" + strconv.Itoa(len(args)), Value: acc, Err: lastErr}
	}
	return args, nil
}

// decodeKwargs collects keyword arguments from a JSON body, uploaded files
// and remaining query/form parameters.
func decodeKwargs(c *gin.Context) (map[string]any, error) {
	kwargs := make(map[string]any)

	// A JSON body is already structured, its top-level mapping merges
	// as-is with no per-value decoding.
	if strings.HasPrefix(c.ContentType(), "application/json") {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, &UnsupportedInputError{Name: "body", Err: err}
		}
		if len(body) > 0 {
			var m map[string]any
			if err := json.Unmarshal(body, &m); err != nil {
				return nil, &UnsupportedInputError{Name: "body", Value: string(body), Err: err}
			}
			for k, v := range m {
				kwargs[k] = v
			}
		}
	}

	// Uploaded file content lands under the field name, the original
	// filename under the shared "filename" key. With several uploads the
	// last file wins the "filename" slot; single-upload is assumed.
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for name, headers := range form.File {
			for _, hdr := range headers {
				f, err := hdr.Open()
				if err != nil {
					return nil, fmt.Errorf("open upload %s: %w", name, err)
				}
				content, err := io.ReadAll(f)
				f.Close()
				if err != nil {
					return nil, fmt.Errorf("read upload %s: %w", name, err)
				}
				kwargs["filename"] = hdr.Filename
				kwargs[name] = string(content)
			}
		}
	}

	// Remaining query/form parameters are URL-unescaped and JSON-decoded
	// one by one; a single bad parameter aborts the whole call.
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil && err != http.ErrNotMultipart {
		if err2 := c.Request.ParseForm(); err2 != nil {
			return nil, &UnsupportedInputError{Name: "form", Err: err2}
		}
	}
	params := make(url.Values)
	for k, vs := range c.Request.URL.Query() {
		params[k] = vs
	}
	for k, vs := range c.Request.PostForm {
		params[k] = vs
	}
	for k, vs := range params {
		if k == "" || k == "session" || len(vs) == 0 || vs[0] == "" {
			continue
		}
		unescaped, err := url.PathUnescape(vs[0])
		if err != nil {
			return nil, &UnsupportedInputError{Name: k, Value: vs[0], Err: err}
		}
		var v any
		if err := json.Unmarshal([]byte(unescaped), &v); err != nil {
			return nil, &UnsupportedInputError{Name: k, Value: unescaped, Err: err}
		}
		kwargs[k] = v
	}

	return kwargs, nil
}

// writeJSON serializes v and writes it, gzip-compressed when the client
// advertises support and the payload exceeds the threshold.
func writeJSON(c *gin.Context, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.String(http.StatusInternalServerError, "serialization failed")
		return
	}

	accepts := strings.Contains(c.GetHeader("Accept-Encoding"), "gzip")
	if !accepts || len(data) <= compressThreshold {
		c.Data(status, "application/json", data)
		return
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, 6)
	if err != nil {
		c.Data(status, "application/json", data)
		return
	}
	if _, err := zw.Write(data); err != nil || zw.Close() != nil {
		c.Data(status, "application/json", data)
		return
	}

	c.Header("Vary", "Accept-Encoding")
	c.Header("Content-Encoding", "gzip")
	c.Data(status, "application/json", buf.Bytes())
}
