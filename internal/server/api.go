package server

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serveStatus exposes the status and metrics endpoints on a separate
// listener. Intended for localhost or an internal interface; there is
// no authentication.
func (s *Server) serveStatus(addr string) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/status", s.handleStatus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	go func() {
		s.log.Info("status API listening", "addr", addr)
		if err := r.Run(addr); err != nil {
			s.log.Error("status API stopped", "err", err)
		}
	}()
}

func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"sessions":    s.sessions.len(),
		"peers":       s.peers.snapshot(),
		"gateway":     s.cfg.Gateway,
		"tun":         s.dev.Name(),
		"traffic_in":  humanize.Bytes(s.trafficIn.Load()),
		"traffic_out": humanize.Bytes(s.trafficOut.Load()),
	}
	if s.publicAddr.IsValid() {
		status["public_endpoint"] = s.publicAddr.String()
	}
	c.JSON(http.StatusOK, status)
}
