// Package viewer serves the local page that stands in for the device's
// browser surface: the pointer-lock canvas, the four channel images and
// a websocket carrying input and lock notifications.
package viewer

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hako/durafmt"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"webkvm/internal/network"
	"webkvm/internal/osutils"
	"webkvm/internal/protocol"
	"webkvm/internal/session"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary
	log  = logrus.WithField("pkg", "viewer")
)

// Controller is the session side of the viewer
type Controller interface {
	EventHandler
	Reload(reason string) error
	SessionID() string
	Status(ctx context.Context) session.Status
}

// Server provides the viewer page and its API
type Server struct {
	ctrl   Controller
	hub    *Hub
	frames *FrameStore
	device string
}

// NewServer creates a viewer server. The hub's events are routed to ctrl.
func NewServer(ctrl Controller, hub *Hub, frames *FrameStore, device string) *Server {
	hub.SetHandler(ctrl)
	return &Server{
		ctrl:   ctrl,
		hub:    hub,
		frames: frames,
		device: device,
	}
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/frame/{channel}", s.handleFrame)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/reload", s.handleReload)
	r.Get("/health", s.handleHealth)
	return r
}

// logRequests logs every request except the frame polling at debug level
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithFields(logrus.Fields{
			"status": ww.Status(),
			"took":   time.Since(start),
		}).Debugf("API: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
	})
}

// ListenAndServe serves the viewer on addr until ctx ends
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves the viewer on ln until ctx ends
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	addr := ln.Addr().String()
	if _, loopback, err := osutils.ListenPort(addr); err == nil && !loopback {
		log.Info("--- Diagnostic: Network Interfaces ---")
		if ips, err := network.GetLocalIPs(); err == nil {
			for _, ip := range ips {
				log.Infof("  Found Local IPv4: %s", ip)
			}
		}
		log.Info("--------------------------------------")
		if err := osutils.AllowViewer(addr); err != nil {
			log.WithError(err).Warn("Viewer: Could not open the firewall for the viewer port")
		}
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Viewer: Serving at http://%s", addr)
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "viewer server stopped")
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, newPageData(s.device)); err != nil {
		log.WithError(err).Error("Viewer: Failed to render page")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	greeting, err := protocol.New(protocol.TypeSession, protocol.SessionPayload{
		Session:    s.ctrl.SessionID(),
		Generation: s.frames.Generation(),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.hub.serve(w, r, greeting)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	channel, err := strconv.Atoi(chi.URLParam(r, "channel"))
	if err != nil {
		http.Error(w, "Invalid channel", http.StatusBadRequest)
		return
	}

	// Without g the current set is served; the page always pins g so its
	// four requests come from one set.
	gen := s.frames.Generation()
	if g := r.URL.Query().Get("g"); g != "" {
		if gen, err = strconv.ParseUint(g, 10, 64); err != nil {
			http.Error(w, "Invalid generation", http.StatusBadRequest)
			return
		}
	}
	frame, err := s.frames.FrameAt(channel, gen)
	switch errors.Cause(err) {
	case nil:
	case ErrSuperseded:
		http.Error(w, err.Error(), http.StatusGone)
		return
	default:
		http.Error(w, "No frame", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", frame.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Generation", strconv.FormatUint(gen, 10))
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.Data)))
	w.Write(frame.Data)
}

type statusResponse struct {
	Session         string `json:"session"`
	Uptime          string `json:"uptime"`
	SessionUptime   string `json:"session_uptime,omitempty"`
	Reloads         uint64 `json:"reloads"`
	Viewers         int    `json:"viewers"`
	Locked          bool   `json:"locked"`
	Uplink          string `json:"uplink,omitempty"`
	MouseSent       uint64 `json:"mouse_sent"`
	MouseFailures   uint64 `json:"mouse_failures"`
	LastMouseError  string `json:"last_mouse_error,omitempty"`
	Cycles          uint64 `json:"cycles"`
	Stalls          uint64 `json:"stalls"`
	Received        string `json:"received"`
	FetchInProgress bool   `json:"fetch_in_progress"`
	Pending         int    `json:"pending"`
	Generation      uint64 `json:"generation"`
	KeysSuppressed  uint64 `json:"keys_suppressed"`
}

func uptime(since time.Time) string {
	return durafmt.Parse(time.Since(since).Round(time.Second)).LimitFirstN(2).String()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.Status(r.Context())
	resp := statusResponse{
		Session:         st.Session,
		Uptime:          uptime(st.Started),
		Reloads:         st.Reloads,
		Viewers:         s.hub.Clients(),
		Locked:          st.Locked,
		Uplink:          st.Uplink,
		MouseSent:       st.MouseSent,
		MouseFailures:   st.MouseFailures,
		LastMouseError:  st.LastMouseError,
		Cycles:          st.Cycles,
		Stalls:          st.Stalls,
		Received:        humanize.Bytes(st.BytesReceived),
		FetchInProgress: st.FetchInProgress,
		Pending:         st.Pending,
		Generation:      s.frames.Generation(),
		KeysSuppressed:  st.KeysSuppressed,
	}
	if !st.SessionStarted.IsZero() {
		resp.SessionUptime = uptime(st.SessionStarted)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Reload("viewer request"); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "reloading"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
