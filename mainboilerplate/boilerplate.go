// Package mainboilerplate contains shared initialization boilerplate for
// this project's programs: configuration parsing, logging setup, and a
// metrics endpoint. Methods are narrowly scoped so callers don't buy in
// to an all-or-nothing approach.
package mainboilerplate

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Version of the program, set at build time via the linker.
var Version = "development"

// Must panics on |err|, wrapping it with |msg| and |extra| field pairs.
// It's used for fatal initialization errors which have no runtime
// recovery path.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var f = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		f[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(f).Fatal(msg)
}

// InitMetrics serves the prometheus metrics registry over HTTP at
// |addr|, in a background goroutine. An empty |addr| disables it.
func InitMetrics(addr string) {
	if addr == "" {
		return
	}
	var mux = http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithFields(log.Fields{"err": err, "addr": addr}).Error("metrics endpoint failed")
		}
	}()
}
