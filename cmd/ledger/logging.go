package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/weegigs/wee-ledger-go/support"
)

func configureRequestLog(cfg support.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}

	return nil
}

func withLogging(h http.Handler) http.Handler {
	logFn := func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(rw, r.ProtoMajor)

		uri := r.RequestURI
		method := r.Method
		h.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"uri":      uri,
			"method":   method,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start),
		}).Info("request")
	}
	return http.HandlerFunc(logFn)
}
