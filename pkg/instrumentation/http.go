// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package instrumentation

import (
	"context"
	"net"
	"net/http"
	"time"
)

const (
	// httpServer is used in log messages.
	httpServer = "HTTP server"
	// httpShutdownTimeout bounds graceful shutdown.
	httpShutdownTimeout = 5 * time.Second
)

// httpEndpoint serves our HTTP request multiplexer.
type httpEndpoint struct {
	server *http.Server
	mux    *http.ServeMux
}

// start sets up the server to listen and serve on the given address.
func (h *httpEndpoint) start(addr string) error {
	if addr == "" {
		log.Info("%s is disabled", httpServer)
		return nil
	}

	log.Info("starting %s...", httpServer)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return instrumentationError("can't listen on HTTP TCP address '%s': %v", addr, err)
	}

	// update address if port was autobound
	h.server = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           h.mux,
		ReadHeaderTimeout: httpShutdownTimeout,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("%s failed: %v", httpServer, err)
		}
	}(h.server)

	return nil
}

// address returns the current server HTTP endpoint/address.
func (h *httpEndpoint) address() string {
	if h.server == nil {
		return ""
	}
	return h.server.Addr
}

// stop shuts the server down gracefully.
func (h *httpEndpoint) stop() {
	if h.server == nil {
		return
	}

	log.Info("shutting down %s...", httpServer)

	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		log.Warn("%s shutdown: %v", httpServer, err)
		h.server.Close()
	}
	h.server = nil
}
