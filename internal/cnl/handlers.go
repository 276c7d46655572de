package cnl

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/loadrelay/go-download-gateway/internal/core"
	"github.com/loadrelay/go-download-gateway/pkg/config"
	"github.com/loadrelay/go-download-gateway/pkg/middleware"
)

const (
	pingSignature = "JDownloader\n"

	defaultCryptedPackage = "ClickAndLoad Package"

	jdcheckBody = "jdownloader=true;\nvar version='9.581;'"

	crossdomainBody = "<?xml version=\"1.0\"?>\n" +
		"<!DOCTYPE cross-domain-policy SYSTEM \"http://www.macromedia.com/xml/dtds/cross-domain-policy.dtd\">\n" +
		"<cross-domain-policy>\n" +
		"<allow-access-from domain=\"*\" />\n" +
		"</cross-domain-policy>"
)

// flashgotReferers are the only Referer values accepted on /flashgot.
var flashgotReferers = []string{
	"http://localhost:9666/flashgot",
	"http://127.0.0.1:9666/flashgot",
}

// Handlers serves the Click'n'Load endpoints. All routes sit behind the
// loopback filter; the protocol has no authentication of its own.
type Handlers struct {
	core   core.Core
	cfg    config.CNLConfig
	logger *zap.Logger
}

// NewHandlers creates the Click'n'Load handler set.
func NewHandlers(c core.Core, cfg config.CNLConfig, logger *zap.Logger) *Handlers {
	return &Handlers{
		core:   c,
		cfg:    cfg,
		logger: logger.Named("cnl"),
	}
}

// RegisterRoutes adds the /flash* routes behind the loopback filter.
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	local := middleware.LocalOnly(h.cfg.AllowedHosts, h.logger)

	r.GET("/flash", local, h.Ping)
	r.POST("/flash", local, h.Ping)
	// gin cannot mix a param route with static siblings, so the id
	// segment also carries checkSupportForUrl.
	r.GET("/flash/:id", local, h.flashByID)
	r.POST("/flash/add", local, h.Add)
	r.POST("/flash/addcrypted", local, h.AddCrypted)
	r.POST("/flash/addcrypted2", local, h.AddCrypted2)

	r.GET("/flashgot", local, h.Flashgot)
	r.POST("/flashgot", local, h.Flashgot)
	r.GET("/flashgot_pyload", local, h.Flashgot)
	r.POST("/flashgot_pyload", local, h.Flashgot)

	r.GET("/crossdomain.xml", local, h.Crossdomain)
	r.GET("/jdcheck.js", local, h.JDCheck)
}

func (h *Handlers) flashByID(c *gin.Context) {
	if c.Param("id") == "checkSupportForUrl" {
		h.CheckSupport(c)
		return
	}
	h.Ping(c)
}

// Ping answers the extension's discovery probe with the fixed signature.
func (h *Handlers) Ping(c *gin.Context) {
	c.String(http.StatusOK, pingSignature)
}

// Add submits a plaintext newline-separated URL list.
func (h *Handlers) Add(c *gin.Context) {
	urls := SplitURLs(c.PostForm("urls"))
	if len(urls) == 0 {
		c.String(http.StatusBadRequest, "failed")
		return
	}

	if err := h.submit(c, c.PostForm("referer"), urls, true); err != nil {
		h.logger.Error("Plain add failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "failed")
		return
	}
	c.String(http.StatusOK, "")
}

// AddCrypted persists the raw container to a .dlc file keyed by the
// sanitized package name and submits it by file reference, for the
// external decoder tool.
func (h *Handlers) AddCrypted(c *gin.Context) {
	pkg := c.PostForm("referer")
	if pkg == "" {
		pkg = defaultCryptedPackage
	}
	dlc := []byte(strings.ReplaceAll(c.PostForm("crypted"), " ", "+"))

	path := filepath.Join(h.cfg.StorageDir, SanitizeName(pkg)+".dlc")
	if err := writeExclusive(path, dlc); err != nil {
		h.logger.Error("Container file write failed",
			zap.String("path", path), zap.Error(err))
		c.String(http.StatusInternalServerError, "failed")
		return
	}

	if _, err := h.core.AddPackage(c.Request.Context(), pkg, []string{path}, true); err != nil {
		h.logger.Error("Container package submit failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "failed")
		return
	}
	c.String(http.StatusOK, "success\n")
}

// AddCrypted2 decrypts an inline container: the jk fragment yields the
// key, the crypted blob yields the URL list.
func (h *Handlers) AddCrypted2(c *gin.Context) {
	pkg := c.PostForm("source")
	crypted := c.PostForm("crypted")
	jk := c.PostForm("jk")

	token, err := DecodeTransport(crypted)
	if err != nil {
		h.logger.Error("Container transport decode failed", zap.Error(err))
		c.String(http.StatusOK, "failed")
		return
	}

	key, err := RecoverKey(jk, h.logger)
	if err != nil {
		c.String(http.StatusOK, "failed")
		return
	}

	urls, err := DecryptURLs(key, token)
	if err != nil {
		h.logger.Error("Container decryption failed", zap.Error(err))
		c.String(http.StatusOK, "failed")
		return
	}

	if err := h.submit(c, pkg, urls, true); err != nil {
		h.logger.Error("Container package submit failed", zap.Error(err))
		c.String(http.StatusOK, "failed")
		return
	}
	c.String(http.StatusOK, "success\n")
}

// Flashgot submits a plaintext URL list from the FlashGot extension.
// Only requests originating from the extension's own page are accepted.
func (h *Handlers) Flashgot(c *gin.Context) {
	referer := c.GetHeader("Referer")
	allowed := false
	for _, r := range flashgotReferers {
		if referer == r {
			allowed = true
			break
		}
	}
	if !allowed {
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	autostart := c.PostForm("autostart") == "1"
	urls := SplitURLs(c.PostForm("urls"))
	if len(urls) == 0 {
		c.String(http.StatusBadRequest, "failed")
		return
	}

	if err := h.submit(c, c.PostForm("package"), urls, !autostart); err != nil {
		h.logger.Error("Flashgot submit failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "failed")
		return
	}
	c.String(http.StatusOK, "")
}

// CheckSupport reports whether any plugin claims the given URL.
func (h *Handlers) CheckSupport(c *gin.Context) {
	statuses, err := h.core.CheckURLs(c.Request.Context(), []string{c.Query("url")})
	if err != nil || len(statuses) == 0 {
		c.String(http.StatusOK, "false")
		return
	}
	if statuses[0].Plugin != "" {
		c.String(http.StatusOK, "true")
		return
	}
	c.String(http.StatusOK, "false")
}

// Crossdomain serves the fixed Flash cross-domain policy.
func (h *Handlers) Crossdomain(c *gin.Context) {
	c.String(http.StatusOK, crossdomainBody)
}

// JDCheck serves the fixed extension detection script.
func (h *Handlers) JDCheck(c *gin.Context) {
	c.String(http.StatusOK, jdcheckBody)
}

// submit creates a package with the explicit name, or groups the URLs via
// the core's name inference when no name was supplied.
func (h *Handlers) submit(c *gin.Context, pkg string, urls []string, paused bool) error {
	ctx := c.Request.Context()

	if pkg != "" {
		_, err := h.core.AddPackage(ctx, pkg, urls, paused)
		return err
	}

	packs, err := h.core.GeneratePackages(ctx, urls)
	if err != nil {
		return err
	}
	for name, grouped := range packs {
		if _, err := h.core.AddPackage(ctx, name, grouped, paused); err != nil {
			return err
		}
	}
	return nil
}

// writeExclusive writes the container atomically: a truncate-or-create
// temp file renamed into place, so concurrent submissions with the same
// sanitized name never interleave.
func writeExclusive(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename container file: %w", err)
	}
	return nil
}
