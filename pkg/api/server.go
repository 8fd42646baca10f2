// YHS Sign
// Copyright (c) 2025 The YHS Sign Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of YHS Sign.
//
// YHS Sign is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// YHS Sign is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with YHS Sign.  If not, see <http://www.gnu.org/licenses/>.


// Package api is the HTTP interface of the sign service: JSON endpoints for
// text, topics, scripts and jobs, a websocket notification feed, and the
// static UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/yorkhackspace/yhs-sign/pkg/api/methods"
	apimiddleware "github.com/yorkhackspace/yhs-sign/pkg/api/middleware"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models/requests"
	"github.com/yorkhackspace/yhs-sign/pkg/assets"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/transport"
)

const (
	maxBodySize     = 64 * 1024
	shutdownTimeout = 5 * time.Second
)

type handlerFunc func(requests.RequestEnv) (any, error)

// Deps is everything the router needs to serve requests.
type Deps struct {
	Config        *config.Instance
	Sequencer     *sequencer.Sequencer
	Store         *store.Store
	Transport     transport.Transport
	Rotator       requests.TopicRotator
	Clock         clockwork.Clock
	Notifications chan<- models.Notification
	// Static overrides the static UI directory from the config.
	Static afero.Fs
}

// statusCoder lets a handler result pick its own HTTP status.
type statusCoder interface {
	StatusCode() int
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("error writing response")
	}
}

func (d *Deps) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params json.RawMessage
		if r.Method == http.MethodPut || r.Method == http.MethodPost {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
			if err != nil {
				writeError(w, r, fmt.Errorf("reading request body: %w", err))
				return
			}
			if len(body) > 0 {
				params = body
			}
		}

		result, err := h(requests.RequestEnv{
			Context:       r.Context(),
			Config:        d.Config,
			Sequencer:     d.Sequencer,
			Store:         d.Store,
			Transport:     d.Transport,
			Rotator:       d.Rotator,
			Notifications: d.Notifications,
			Request:       r,
			Params:        params,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		if result == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		status := http.StatusOK
		if sc, ok := result.(statusCoder); ok {
			status = sc.StatusCode()
		}
		writeJSON(w, status, result)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, obj := errorObject(err)
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request failed")
	writeJSON(w, status, models.ErrorResponse{Error: obj})
}

// privateNetworkAccessMiddleware answers Private Network Access preflights
// so pages served from public origins can reach the sign on the LAN.
func privateNetworkAccessMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions &&
			r.Header.Get("Access-Control-Request-Private-Network") == "true" {
			w.Header().Set("Access-Control-Allow-Private-Network", "true")
		}
		next.ServeHTTP(w, r)
	})
}

// staticHandler serves the UI directory. Missing files get a plain 404
// instead of a directory listing.
func staticHandler(fsys http.FileSystem) http.Handler {
	fileServer := http.FileServer(fsys)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")

		name := r.URL.Path
		if strings.HasSuffix(name, "/") {
			name += "index.html"
		}
		f, err := fsys.Open(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		_ = f.Close()

		if strings.HasSuffix(name, ".html") {
			w.Header().Set("Cache-Control", "no-cache")
		}
		fileServer.ServeHTTP(w, r)
	})
}

func handleHelp(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(assets.Help); err != nil {
		log.Error().Err(err).Msg("error writing help page")
	}
}

// broadcastNotifications forwards notifications to every websocket client
// as JSON-RPC notification objects until ctx is done.
func broadcastNotifications(
	ctx context.Context,
	session *melody.Melody,
	notifications <-chan models.Notification,
) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stopping notification broadcast")
			return
		case notif := <-notifications:
			data, err := json.Marshal(models.NotificationObject{
				JSONRPC: "2.0",
				Method:  notif.Method,
				Params:  notif.Params,
			})
			if err != nil {
				log.Error().Err(err).Msg("marshalling notification")
				continue
			}
			// slow clients must not hold up the sequencer's event stream
			go func() {
				if err := session.Broadcast(data); err != nil {
					log.Debug().Err(err).Msg("broadcasting notification")
				}
			}()
		}
	}
}

func handleWSMessage(session *melody.Session, msg []byte) {
	if string(msg) == "ping" {
		if err := session.Write([]byte("pong")); err != nil {
			log.Error().Err(err).Msg("sending pong")
		}
		return
	}
	log.Debug().Int("len", len(msg)).Msg("ignoring websocket message")
}

func newMelody() *melody.Melody {
	m := melody.New()
	m.Upgrader.CheckOrigin = func(*http.Request) bool { return true }
	m.HandleMessage(handleWSMessage)
	return m
}

// NewRouter builds the HTTP handler. Notifications are published to ws by
// the caller, see broadcastNotifications. Background work started for the
// router stops with ctx.
func NewRouter(ctx context.Context, d *Deps, ws *melody.Melody) http.Handler {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(privateNetworkAccessMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.Config.AllowedOrigins(),
		AllowedMethods: []string{
			http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	if allowed := d.Config.AllowedIPs(); len(allowed) > 0 {
		r.Use(apimiddleware.HTTPIPFilterMiddleware(apimiddleware.NewIPFilter(allowed)))
	}
	if perMinute := d.Config.RateLimit(); perMinute > 0 {
		limiter := apimiddleware.NewIPRateLimiter(d.Clock, perMinute, apimiddleware.DefaultBurstSize)
		limiter.StartCleanup(ctx)
		r.Use(apimiddleware.HTTPRateLimitMiddleware(limiter))
	}

	r.Get("/notifications", func(w http.ResponseWriter, r *http.Request) {
		if err := ws.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("handling websocket request")
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Use(middleware.Timeout(d.Config.RequestTimeout()))

		r.Put("/text/{key}", d.handle(methods.HandlePutText))
		r.Get("/text/get/{label}", d.handle(methods.HandleGetText))

		r.Get("/topics", d.handle(methods.HandleGetTopics))
		r.Get("/topics/{name}", d.handle(methods.HandleGetTopic))
		r.Put("/topics/{name}", d.handle(methods.HandlePutTopic))
		r.Delete("/topics/{name}", d.handle(methods.HandleDeleteTopic))

		r.Post("/script", d.handle(methods.HandlePostScript))

		r.Get("/jobs", d.handle(methods.HandleListJobs))
		r.Get("/jobs/{id}", d.handle(methods.HandleGetJob))
		r.Delete("/jobs/{id}", d.handle(methods.HandleCancelJob))

		r.Get("/health", d.handle(methods.HandleHealth))
		r.Get("/version", d.handle(methods.HandleVersion))
	})

	r.Get("/help", handleHelp)

	static := d.Static
	if static == nil {
		if dir := d.Config.StaticDir(); dir != "" {
			static = afero.NewBasePathFs(afero.NewOsFs(), dir)
		}
	}
	if static != nil {
		r.Handle("/*", staticHandler(afero.NewHttpFs(static).Dir("/")))
	}

	return r
}

// Serve runs the API on ln until ctx is cancelled, then shuts down
// gracefully. ln is already accepting connections when Serve is called.
func Serve(ctx context.Context, ln net.Listener, d *Deps, notifications <-chan models.Notification) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ws := newMelody()
	handler := NewRouter(ctx, d, ws)
	go broadcastNotifications(ctx, ws, notifications)

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", ln.Addr().String()).Msg("api server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down api server")
	if err := ws.Close(); err != nil {
		log.Debug().Err(err).Msg("closing websocket sessions")
	}
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

// Start listens on the configured address and serves until ctx is done.
func Start(ctx context.Context, d *Deps, notifications <-chan models.Notification) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", d.Config.APIListen())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", d.Config.APIListen(), err)
	}
	return Serve(ctx, ln, d, notifications)
}
