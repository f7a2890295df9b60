// Package rest is the thin REST dispatcher described in spec §6: it
// binds the HTTP verb/path table onto internal/store and
// internal/notify, translating sentinel errors into the status codes
// spec §7 specifies. All the hard engineering lives below this layer.
package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/kapilratnani/pgfire/internal/notify"
	"github.com/kapilratnani/pgfire/internal/store"
)

const ldbNamePattern = `{ldb:[a-z0-9_\-]+}`

// Server wires store.Store and the notification pipeline up to an
// http.Handler.
type Server struct {
	store  store.Store
	log    *zap.SugaredLogger
	router chi.Router
}

// New builds the router. ServeHTTP (via Handler) is ready to pass to
// http.Server.
func New(s store.Store, log *zap.SugaredLogger) *Server {
	srv := &Server{store: s, log: log}

	r := chi.NewRouter()
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Post("/createdb", srv.createDB)
	r.Delete("/deletedb", srv.deleteDB)

	dbRoot := "/database/" + ldbNamePattern
	r.Get(dbRoot, srv.get)
	r.Get(dbRoot+"/*", srv.get)
	r.Put(dbRoot+"/*", srv.put)
	r.Patch(dbRoot+"/*", srv.patch)
	r.Post(dbRoot+"/*", srv.post)
	r.Delete(dbRoot+"/*", srv.del)
	r.Head(dbRoot+"/*", srv.headNotAllowed)
	r.Head(dbRoot, srv.headNotAllowed)

	eventsRoot := "/database_events/" + ldbNamePattern
	r.Get(eventsRoot, srv.events)
	r.Get(eventsRoot+"/*", srv.events)

	srv.router = r
	return srv
}

// Handler returns the http.Handler, gzip-wrapped per spec's ambient
// "Enables HTTP compression" config concern; SSE responses opt out
// since they must flush incrementally (see sse.go).
func (s *Server) Handler() http.Handler {
	wrap, err := gzhttp.NewWrapper(gzhttp.ContentTypes([]string{"application/json"}))
	if err != nil {
		return s.router
	}
	gz := wrap(s.router)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/database_events/") {
			s.router.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

func requestLogger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Infow("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}

// newListenDialer adapts the store's LISTEN-connection factory to
// notify.Dialer so internal/rest never imports internal/notify's
// innards directly.
func (s *Server) newListenDialer() notify.Dialer {
	return s.store.NewListenConn
}
