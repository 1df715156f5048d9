package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/tliron/commonlog"

	"poker-hand-editor/pkg/config"
	"poker-hand-editor/pkg/db"
	"poker-hand-editor/pkg/editor"
	"poker-hand-editor/pkg/handlers"
	"poker-hand-editor/pkg/keymap"
	"poker-hand-editor/pkg/room"
)

var log = commonlog.GetLogger("poker-editor.app")

// Server represents the application server
type Server struct {
	router      *mux.Router
	roomManager *room.RoomManager
	handlers    *handlers.Handlers
	slotStore   db.ISlotStore
	config      *config.Config
	httpServer  *http.Server
}

// NewServer creates a new server instance backed by the storage driver the
// config selects.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	store, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewServerWithStore(cfg, store), nil
}

// NewServerWithStore creates a server on an already opened store.
func NewServerWithStore(cfg *config.Config, store db.ISlotStore) *Server {
	roomManager := room.NewRoomManager(store, cfg.StorageKey, editor.Options{
		MaxHistorySize: cfg.MaxHistorySize,
		NoticeDuration: cfg.NoticeDuration,
		PersistTimeout: cfg.PersistTimeout,
	})

	h := handlers.NewHandlers(roomManager, keymap.Default())

	// Setup routes
	r := mux.NewRouter()
	h.Routes(r)

	// The browser UI, when configured.
	if cfg.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return &Server{
		router:      r,
		roomManager: roomManager,
		handlers:    h,
		slotStore:   store,
		config:      cfg,
	}
}

// Handler returns the root HTTP handler, CORS included.
func (s *Server) Handler() http.Handler {
	// Wrap the router with a top-level CORS middleware so that
	// preflight (OPTIONS) requests are handled before mux does
	// method-based matching (which can otherwise return 405).
	return corsMiddleware(s.router)
}

// Start starts the server and blocks until ctx is done or the listener fails.
func (s *Server) Start(ctx context.Context, addr string) error {
	if addr == "" {
		addr = s.config.GetServerAddr()
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Noticef("starting poker hand history editor on %s (storage: %s)", addr, s.config.StorageDriver)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// corsMiddleware handles CORS headers and responds to preflight requests
// at the outer layer so they don't get rejected by method-restricted routes.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			// Reflect the origin for stricter CORS (avoids some browser issues with credentials)
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		// If the browser asked for specific headers, echo them back; otherwise allow common headers
		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		// Let the UI read the download name and the notice of an export.
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Notice")
		w.Header().Set("Access-Control-Max-Age", "600")

		w.Header().Add("Vary", "Origin")
		w.Header().Add("Vary", "Access-Control-Request-Headers")

		if r.Method == http.MethodOptions {
			log.Debugf("CORS preflight: %s %s origin=%s", r.Method, r.URL.Path, origin)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Close stops all sessions and closes the store
func (s *Server) Close() error {
	s.roomManager.Close()
	return s.slotStore.Close()
}
