package server

import (
	"errors"
	"io"
	"net/http"
	pp "net/http/pprof"

	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/errorstore"
	"faultline-go/internal/logging"
	mw "faultline-go/internal/middleware"
	"github.com/gin-gonic/gin"
)

func setNoCacheHeaders(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

// readBody reads the request body up to limit bytes. On failure the
// response has been written and ok is false.
func readBody(c *gin.Context, limit int64) (body []byte, ok bool) {
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			mw.AbortWithRecord(c, apperrors.New(http.StatusRequestEntityTooLarge, apperrors.CodeBadRequest, "payload too large"))
			return nil, false
		}
		mw.AbortWithRecord(c, apperrors.New(http.StatusBadRequest, apperrors.CodeBadRequest, "unable to read request body"))
		return nil, false
	}
	return body, true
}

// respondArchiveError maps an archive failure to the error envelope.
func respondArchiveError(c *gin.Context, op string, err error) {
	if errors.Is(err, errorstore.ErrNotFound) {
		mw.AbortWithRecord(c, apperrors.New(http.StatusNotFound, apperrors.CodeNotFound, "error entry not found"))
		return
	}
	logging.WithReq(c, nil).WithError(err).WithField("operation", op).Error("archive operation failed")
	mw.AbortWithRecord(c, apperrors.New(http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable, "error archive unavailable"))
}

func registerPprof(r gin.IRouter) {
	ppGroup := r.Group("/debug/pprof")
	ppGroup.GET("/", gin.WrapF(pp.Index))
	ppGroup.GET("/cmdline", gin.WrapF(pp.Cmdline))
	ppGroup.GET("/profile", gin.WrapF(pp.Profile))
	ppGroup.POST("/symbol", gin.WrapF(pp.Symbol))
	ppGroup.GET("/symbol", gin.WrapF(pp.Symbol))
	ppGroup.GET("/trace", gin.WrapF(pp.Trace))
	ppGroup.GET("/allocs", gin.WrapF(pp.Handler("allocs").ServeHTTP))
	ppGroup.GET("/block", gin.WrapF(pp.Handler("block").ServeHTTP))
	ppGroup.GET("/goroutine", gin.WrapF(pp.Handler("goroutine").ServeHTTP))
	ppGroup.GET("/heap", gin.WrapF(pp.Handler("heap").ServeHTTP))
	ppGroup.GET("/mutex", gin.WrapF(pp.Handler("mutex").ServeHTTP))
	ppGroup.GET("/threadcreate", gin.WrapF(pp.Handler("threadcreate").ServeHTTP))
}
