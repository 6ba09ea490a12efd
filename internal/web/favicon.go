// internal/web/favicon.go
package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Camera lens on a status-red background.
const faviconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32" width="32" height="32">
  <rect width="32" height="32" rx="6" fill="#b91c1c"/>
  <g fill="#ffffff">
    <rect x="4" y="10" width="18" height="13" rx="2"/>
    <polygon points="22,14 28,10 28,23 22,19"/>
  </g>
  <circle cx="13" cy="16.5" r="4" fill="#b91c1c"/>
  <circle cx="13" cy="16.5" r="2" fill="#ffffff"/>
</svg>`

func (s *Server) serveFavicon(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=31536000")
	c.Data(http.StatusOK, "image/svg+xml", []byte(faviconSVG))
}
