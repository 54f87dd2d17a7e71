package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"text/template"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/realtime-ai/realtime-coach/pkg/logger"
)

// ServerConfig holds configuration for Server.
type ServerConfig struct {
	// Address is the listen address (e.g., ":8080")
	Address string

	// WebSocketPath is the path for WebSocket connections (default: "/media")
	WebSocketPath string

	// TwiMLPath is the path for the TwiML webhook (default: "/twiml")
	TwiMLPath string

	// StreamURL is the public wss:// URL put in the TwiML <Stream> element.
	StreamURL string

	// CustomParameters are passed from TwiML to the stream's start event.
	CustomParameters map[string]string

	ReadBufferSize  int
	WriteBufferSize int

	// ShutdownTimeout bounds graceful shutdown (default: 10s)
	ShutdownTimeout time.Duration
}

// Session is an active call on the server.
type Session struct {
	CallSid   string
	StreamSid string
	StartTime time.Time
	Bridge    *Bridge
}

// Server accepts Twilio Media Streams and serves the TwiML that starts them.
type Server struct {
	config   ServerConfig
	factory  SinkFactory
	log      *logger.Logger
	upgrader websocket.Upgrader

	ctxMu   sync.RWMutex
	baseCtx context.Context

	sessionsMu sync.RWMutex
	sessions   map[string]*Session

	mounts map[string]http.Handler

	active sync.WaitGroup
}

// NewServer creates a server. factory creates a sink per call; log may be nil.
func NewServer(config ServerConfig, factory SinkFactory, log *logger.Logger) *Server {
	if config.WebSocketPath == "" {
		config.WebSocketPath = "/media"
	}
	if config.TwiMLPath == "" {
		config.TwiMLPath = "/twiml"
	}
	if config.ReadBufferSize == 0 {
		config.ReadBufferSize = 1024
	}
	if config.WriteBufferSize == 0 {
		config.WriteBufferSize = 1024
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	return &Server{
		config:  config,
		factory: factory,
		log:     logger.OrNop(log).Named("twilio-server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			// Twilio does not send a browser Origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		baseCtx:  context.Background(),
		sessions: make(map[string]*Session),
		mounts:   make(map[string]http.Handler),
	}
}

// Mount serves h at pattern next to the media routes. Call it before
// Handler or Serve.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mounts[pattern] = h
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
	mux.HandleFunc(s.config.TwiMLPath, s.handleTwiML)
	mux.HandleFunc("/health", s.handleHealth)
	for pattern, h := range s.mounts {
		mux.Handle(pattern, h)
	}
	return mux
}

// ListenAndServe listens on config.Address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully: the
// listener closes, every open stream is closed and Serve waits for them.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	s.ctxMu.Lock()
	s.baseCtx = gctx
	s.ctxMu.Unlock()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("server listening",
		"addr", ln.Addr().String(),
		"websocket_path", s.config.WebSocketPath,
		"twiml_path", s.config.TwiMLPath)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Hijacked connections are not tracked by Shutdown.
		s.active.Wait()
		s.log.Info("server stopped")
		return err
	})
	return g.Wait()
}

func (s *Server) serveContext() context.Context {
	s.ctxMu.RLock()
	defer s.ctxMu.RUnlock()
	return s.baseCtx
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.active.Add(1)
	defer s.active.Done()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.serveContext(), cancel)
	defer stop()

	bridge := NewBridge(wsConn, s.log)
	var callSid string
	factory := func(ctx context.Context, b *Bridge, start StartPayload) (AudioSink, error) {
		sink, err := s.factory(ctx, b, start)
		if err != nil {
			return nil, err
		}
		callSid = start.CallSid
		s.addSession(&Session{
			CallSid:   start.CallSid,
			StreamSid: start.StreamSid,
			StartTime: time.Now(),
			Bridge:    b,
		})
		return sink, nil
	}

	if err := bridge.Run(ctx, factory); err != nil {
		s.log.Warn("media stream ended with error", "call_sid", bridge.CallSid(), "error", err)
	}
	if callSid != "" {
		s.removeSession(callSid)
	}
}

// handleTwiML answers Twilio's voice webhook with a <Connect><Stream>.
func (s *Server) handleTwiML(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err == nil {
		s.log.Info("incoming call",
			"call_sid", r.FormValue("CallSid"),
			"caller", r.FormValue("From"))
	}

	data := struct {
		StreamURL  string
		Parameters map[string]string
	}{
		StreamURL:  s.config.StreamURL,
		Parameters: s.config.CustomParameters,
	}

	w.Header().Set("Content-Type", "application/xml")
	if err := twimlTemplate.Execute(w, data); err != nil {
		s.log.Error("render TwiML failed", "error", err)
	}
}

// Values are escaped with the html func, which is valid for XML attributes.
var twimlTemplate = template.Must(template.New("twiml").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="{{html .StreamURL}}">{{range $key, $value := .Parameters}}
            <Parameter name="{{html $key}}" value="{{html $value}}" />{{end}}
        </Stream>
    </Connect>
</Response>`))

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.SessionCount(),
	})
}

func (s *Server) addSession(session *Session) {
	s.sessionsMu.Lock()
	s.sessions[session.CallSid] = session
	s.sessionsMu.Unlock()
}

func (s *Server) removeSession(callSid string) {
	s.sessionsMu.Lock()
	session, ok := s.sessions[callSid]
	delete(s.sessions, callSid)
	s.sessionsMu.Unlock()
	if ok {
		s.log.Info("session removed", "call_sid", callSid, "duration", time.Since(session.StartTime))
	}
}

// Session returns the active session for callSid, or nil.
func (s *Server) Session(callSid string) *Session {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return s.sessions[callSid]
}

// SessionCount returns the number of active sessions.
func (s *Server) SessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

// ActiveCallSids returns the call SIDs of active sessions, sorted.
func (s *Server) ActiveCallSids() []string {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
