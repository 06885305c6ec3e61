package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/toastate/toastbuild/internal/tlogger"

	_ "embed"
)

// LiveReloadPath is the websocket endpoint notified after every rebuild.
const LiveReloadPath = "/__internal/livereload"

//go:embed livereload.html
var liveReloadScript []byte

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
		w.WriteHeader(500)
	},
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server serves a build output directory and tells the open pages to reload
// when it changes.
type Server struct {
	dir          string
	port         int
	override404  string
	reloadBroker *Broker
	log          *tlogger.Logger

	startOnce sync.Once
}

func NewServer(dir string, port int, override404 string, lg *tlogger.Logger) *Server {
	if lg == nil {
		lg = tlogger.Nop()
	}
	if override404 != "" && !strings.HasPrefix(override404, "/") {
		override404 = "/" + override404
	}

	return &Server{
		dir:          dir,
		port:         port,
		override404:  override404,
		reloadBroker: newBroker(),
		log:          lg.With("component", "server"),
	}
}

// TriggerReload reloads every connected page.
func (s *Server) TriggerReload() {
	s.startBroker()
	s.reloadBroker.Publish(struct{}{})
}

func (s *Server) startBroker() {
	s.startOnce.Do(func() {
		go s.reloadBroker.Start()
	})
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	s.startBroker()

	r := mux.NewRouter()
	r.HandleFunc(LiveReloadPath, s.livereloadHandler)
	r.PathPrefix("/").HandlerFunc(s.fileServer)
	return r
}

// Start listens until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	// We use println here so the address can be copied or opened directly from the terminal
	fmt.Println("Listening on http://localhost:" + portOf(ln.Addr()))

	select {
	case err := <-errCh:
		s.reloadBroker.Stop()
		return err
	case <-ctx.Done():
	}

	// pending livereload sockets are released by closing their subscriptions
	s.reloadBroker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func portOf(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return strconv.Itoa(tcp.Port)
	}
	return addr.String()
}

// resolve finds the file served for upath, trying the path as is, with a
// .html extension, then as a directory index.
func (s *Server) resolve(upath string) (string, bool, error) {
	const indexPage = "index.html"

	fullName := filepath.Join(s.dir, filepath.FromSlash(path.Clean(upath)))
	if strings.HasSuffix(upath, "/") {
		fullName = filepath.Join(fullName, indexPage)
	}

	for _, candidate := range []string{fullName, fullName + ".html", filepath.Join(fullName, indexPage)} {
		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
				continue
			}
			return "", false, err
		}
		if !info.IsDir() {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

func (s *Server) fileServer(w http.ResponseWriter, r *http.Request) {
	upath := r.URL.Path
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
	}

	fullName, found, err := s.resolve(upath)
	if err != nil {
		w.WriteHeader(500)
		w.Write([]byte("Internal error: can't open file: " + err.Error()))
		return
	}

	status := 200
	if !found && s.override404 != "" && upath != s.override404 {
		fullName, found, err = s.resolve(s.override404)
		if err != nil {
			w.WriteHeader(500)
			w.Write([]byte("Internal error: can't open file: " + err.Error()))
			return
		}
		status = 404
	}
	if !found {
		w.WriteHeader(404)
		w.Write([]byte("404 page not found"))
		return
	}

	content, err := os.Open(fullName)
	if err != nil {
		w.WriteHeader(500)
		w.Write([]byte("Internal error: can't open file"))
		return
	}
	defer content.Close()

	ctype := mime.TypeByExtension(filepath.Ext(fullName))
	if ctype == "" {
		// read a chunk to decide between utf-8 text and binary
		var buf [512]byte
		n, _ := io.ReadFull(content, buf[:])
		ctype = http.DetectContentType(buf[:n])
		if _, err := content.Seek(0, io.SeekStart); err != nil {
			w.WriteHeader(500)
			w.Write([]byte("Internal error: can't seek file: " + err.Error()))
			return
		}
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	io.Copy(w, content)
	if strings.HasPrefix(ctype, "text/html") {
		if _, err := w.Write(liveReloadScript); err != nil {
			s.log.Error("msg", "could not live reload", "error", err)
		}
	}
}

func (s *Server) livereloadHandler(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("msg", "WS Established")

	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("msg", "Reload socket upgrade", "error", err)
		return
	}
	defer c.Close()

	waitCh := s.reloadBroker.Subscribe()
	defer s.reloadBroker.Unsubscribe(waitCh)

	// the client never talks, reading only detects it going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.NextReader(); err != nil {
				return
			}
		}
	}()

	select {
	case _, ok := <-waitCh:
		if !ok {
			return
		}
	case <-gone:
		return
	}

	if err := c.WriteMessage(websocket.TextMessage, []byte("reload")); err != nil {
		s.log.Warn("msg", "Reload socket error", "error", err)
	}
}
