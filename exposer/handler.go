// Copyright 2026 The Promkit Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package exposer

import (
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/common/expfmt"

	"github.com/promkit/promkit"
)

const (
	contentTypeHeader     = "Content-Type"
	contentEncodingHeader = "Content-Encoding"
	acceptEncodingHeader  = "Accept-Encoding"
)

var gzipPool = sync.Pool{
	New: func() interface{} {
		return gzip.NewWriter(nil)
	},
}

// HandlerErrorHandling defines how a Handler serving metrics will handle
// errors.
type HandlerErrorHandling int

// These constants cause handlers serving metrics to behave as described if
// errors are encountered.
const (
	// HTTPErrorOnError serves an HTTP status code 500 upon the first error
	// encountered. Report the error message in the body. This is the
	// default.
	HTTPErrorOnError HandlerErrorHandling = iota
	// ContinueOnError ignores errors and tries to serve as many metrics as
	// possible. However, if no metrics can be served, serve an HTTP status
	// code 500 and the last error message in the body.
	ContinueOnError
	// PanicOnError panics upon the first error encountered (useful for
	// "crash only" apps).
	PanicOnError
)

// HandlerOpts specifies options how to serve metrics via an http.Handler. The
// zero value of HandlerOpts is a reasonable default.
type HandlerOpts struct {
	// ErrorLog is used to log errors gathering and serving metrics. If nil,
	// errors are not logged at all.
	ErrorLog *slog.Logger
	// ErrorHandling defines how errors are handled. Note that errors are
	// logged regardless of the configured ErrorHandling provided ErrorLog
	// is not nil.
	ErrorHandling HandlerErrorHandling
	// DisableCompression disables the response being gzipped even if the
	// client requests it.
	DisableCompression bool
}

// HandlerFor returns an uninstrumented http.Handler for the provided
// Gatherer. Each request triggers a Gather call, and the result is encoded in
// the negotiated exposition format (plain text, version 0.0.4, by default).
//
// The Handler is usually used internally by Exposer, but it can be mounted
// into an existing http.ServeMux directly.
func HandlerFor(g promkit.Gatherer, opts HandlerOpts) http.Handler {
	return http.HandlerFunc(func(rsp http.ResponseWriter, req *http.Request) {
		mfs, err := g.Gather()
		if err != nil {
			if opts.ErrorLog != nil {
				opts.ErrorLog.Error("error gathering metrics", "err", err)
			}
			switch opts.ErrorHandling {
			case PanicOnError:
				panic(err)
			case HTTPErrorOnError:
				httpError(rsp, err)
				return
			case ContinueOnError:
				if len(mfs) == 0 {
					// Still report the error if no metrics have been gathered.
					httpError(rsp, err)
					return
				}
			}
		}

		contentType := expfmt.Negotiate(req.Header)
		header := rsp.Header()
		header.Set(contentTypeHeader, string(contentType))

		w := io.Writer(rsp)
		if !opts.DisableCompression && gzipAccepted(req.Header) {
			header.Set(contentEncodingHeader, "gzip")
			gz := gzipPool.Get().(*gzip.Writer)
			defer gzipPool.Put(gz)

			gz.Reset(w)
			defer gz.Close()

			w = gz
		}

		enc := expfmt.NewEncoder(w, contentType)

		for _, mf := range mfs {
			if err := enc.Encode(mf); err != nil {
				if opts.ErrorLog != nil {
					opts.ErrorLog.Error("error encoding and sending metric family", "err", err)
				}
				if opts.ErrorHandling == PanicOnError {
					panic(err)
				}
				// Headers are already sent, so an HTTP error status is
				// no longer possible; abort the body instead.
				if opts.ErrorHandling == HTTPErrorOnError {
					return
				}
			}
		}
	})
}

// gzipAccepted returns whether the client will accept gzip-encoded content.
func gzipAccepted(header http.Header) bool {
	a := header.Get(acceptEncodingHeader)
	parts := strings.Split(a, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "gzip" || strings.HasPrefix(part, "gzip;") {
			return true
		}
	}
	return false
}

// httpError removes any content-encoding header and then calls http.Error with
// the provided error and http.StatusInternalServerError. Error contents is
// supposed to be uncompressed plain text. Same as with a plain http.Error, this
// must not be called if the header or any payload was already sent.
func httpError(rsp http.ResponseWriter, err error) {
	rsp.Header().Del(contentEncodingHeader)
	http.Error(
		rsp,
		"An error has occurred while serving metrics:\n\n"+fmt.Sprint(err),
		http.StatusInternalServerError,
	)
}
