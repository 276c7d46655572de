package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LocalOnly rejects any request whose peer address is not loopback and
// whose Host header is not on the allow-list. The container submission
// protocol carries no authentication of its own, so this check runs
// before any request parsing.
func LocalOnly(allowedHosts []string, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("localonly")

	return func(c *gin.Context) {
		if isLoopbackAddr(c.Request.RemoteAddr) || hostAllowed(c.Request.Host, allowedHosts) {
			c.Next()
			return
		}

		log.Warn("Rejected non-local request",
			zap.String("remote_addr", c.Request.RemoteAddr),
			zap.String("host", c.Request.Host),
			zap.String("path", c.Request.URL.Path),
		)
		c.String(http.StatusForbidden, "Forbidden")
		c.Abort()
	}
}

// isLoopbackAddr reports whether the peer address is 127.0.0.0/8, ::1
// or a localhost name.
func isLoopbackAddr(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return isLocalhostName(host)
}

func hostAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(host, a) {
			return true
		}
	}
	return false
}

// isLocalhostName checks if a hostname refers to localhost.
func isLocalhostName(hostname string) bool {
	h := strings.ToLower(hostname)
	return h == "localhost" ||
		h == "localhost.localdomain" ||
		strings.HasSuffix(h, ".localhost")
}
