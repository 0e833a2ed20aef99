package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/dlnafleet/caster/internal/soap"
)

const (
	// portRangeStart / portRangeEnd bound the pool's probed port range,
	// spec.md §4.3: "binds the first free port in 9000-9100".
	portRangeStart = 9000
	portRangeEnd   = 9100
	// keepLastServers is spec.md §4.3: "cleanup_old_servers(keep_last=5)".
	keepLastServers       = 5
	serverShutdownTimeout = 10 * time.Second
)

// ErrNoFreePort is returned when every port in the pool's range is taken.
var ErrNoFreePort = errors.New("streaming: no free port in pool range")

// fileServer is one bound *http.Server plus the resource it exposes.
type fileServer struct {
	port      int
	videoPath string
	srv       *http.Server
	errCh     chan error
	startedAt time.Time
}

// ServerPool binds one *http.Server per streamed file on a free port in
// [portRangeStart, portRangeEnd], serving the file (and its sibling
// subtitle, if any) with DLNA-flavored response headers, per spec.md
// §4.3. It retires old servers once more than keepLastServers accumulate.
type ServerPool struct {
	mu       sync.Mutex
	registry *Registry
	servers  []*fileServer
}

// NewServerPool returns a pool that reports client connect/disconnect
// and activity back into reg.
func NewServerPool(reg *Registry) *ServerPool {
	return &ServerPool{registry: reg}
}

// Serve binds a new server for videoPath, registers a streaming session
// for deviceName, and returns the public URL a renderer should be given
// along with the bound port and the session ID the caller should use
// for subsequent registry lookups.
func (p *ServerPool) Serve(ctx context.Context, deviceName, videoPath, serveIP string) (streamURL string, port int, sessionID string, err error) {
	sess := p.registry.Register(deviceName, videoPath, serveIP, 0)
	sessionID = sess.ID

	fs, port, err := p.bind(videoPath, sess.ID)
	if err != nil {
		p.registry.SetError(sess.ID, err.Error())
		return "", 0, sessionID, err
	}

	p.mu.Lock()
	p.servers = append(p.servers, fs)
	p.retireOld()
	p.mu.Unlock()

	go func() {
		if err := <-fs.errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("streaming: server on port %d: %v", port, err)
			p.registry.SetError(sess.ID, err.Error())
		}
	}()

	base := filepath.Base(videoPath)
	streamURL = fmt.Sprintf("http://%s:%d/%s", serveIP, port, base)
	log.Printf("streaming: serving %q for %q at %s (session %s)", videoPath, deviceName, streamURL, sess.ID)
	return streamURL, port, sessionID, nil
}

// bind probes ports sequentially starting at portRangeStart, matching
// spec.md §4.3's "binds the first free port" behavior rather than
// picking one at random.
func (p *ServerPool) bind(videoPath, sessionID string) (*fileServer, int, error) {
	for port := portRangeStart; port <= portRangeEnd; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		mux := http.NewServeMux()
		mux.Handle("/", p.handler(videoPath, sessionID))

		srv := &http.Server{Handler: mux}
		fs := &fileServer{port: port, videoPath: videoPath, srv: srv, errCh: make(chan error, 1), startedAt: time.Now()}
		go func() { fs.errCh <- srv.Serve(ln) }()
		return fs, port, nil
	}
	return nil, 0, ErrNoFreePort
}

// handler serves videoPath (and, if the client asks for it, a matching
// subtitle), resolving the request path case-insensitively against the
// video's basename since many renderers don't URL-escape carefully,
// per spec.md §4.3 "path resolution: exact, then basename, then
// case-insensitive".
func (p *ServerPool) handler(videoPath, sessionID string) http.HandlerFunc {
	dir := filepath.Dir(videoPath)
	base := filepath.Base(videoPath)

	return func(w http.ResponseWriter, r *http.Request) {
		p.registry.OnClientConnect(sessionID)
		clientIP := clientIP(r)
		defer func() {
			p.registry.OnClientDisconnect(sessionID, clientIP)
		}()

		requested := strings.TrimPrefix(r.URL.Path, "/")
		resolved, err := resolvePath(dir, base, requested)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		if strings.EqualFold(filepath.Ext(resolved), ".srt") && acceptsBrotli(r) {
			serveCompressedSubtitle(w, r, resolved)
			return
		}

		start := time.Now()
		n, served := serveWithDLNAHeaders(w, r, resolved)
		if served {
			p.registry.UpdateActivity(sessionID, clientIP, n, time.Since(start))
		}
	}
}

// resolvePath implements spec.md §4.3's exact -> basename ->
// case-insensitive fallback chain, always within dir.
func resolvePath(dir, base, requested string) (string, error) {
	if requested == "" || requested == base {
		return filepath.Join(dir, base), nil
	}
	if requested == filepath.Base(requested) {
		candidate := filepath.Join(dir, requested)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		entries, err := os.ReadDir(dir)
		if err == nil {
			for _, e := range entries {
				if strings.EqualFold(e.Name(), requested) {
					return filepath.Join(dir, e.Name()), nil
				}
			}
		}
	}
	return "", fmt.Errorf("streaming: %q not found alongside %q", requested, base)
}

func serveWithDLNAHeaders(w http.ResponseWriter, r *http.Request, path string) (int64, bool) {
	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return 0, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "stat failed", http.StatusInternalServerError)
		return 0, false
	}

	w.Header().Set("Content-Type", soap.MIMEType(path))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("transferMode.dlna.org", "Streaming")
	w.Header().Set("contentFeatures.dlna.org", "DLNA.ORG_PN="+soap.DLNAProfile(path)+";DLNA.ORG_OP=01;DLNA.ORG_CI=0")

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return info.Size(), true
}

// acceptsBrotli reports whether the client advertised br support, per
// spec.md §4.3's optional subtitle compression.
func acceptsBrotli(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "br")
}

func serveCompressedSubtitle(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", mimeTypeOrDefault(path))
	w.Header().Set("Content-Encoding", "br")
	bw := brotli.NewWriter(w)
	defer bw.Close()
	io.Copy(bw, f)
}

func mimeTypeOrDefault(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/x-subrip"
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// retireOld shuts down the oldest servers once more than keepLastServers
// are tracked, per spec.md §4.3's cleanup_old_servers(keep_last=5). Must
// be called with p.mu held.
func (p *ServerPool) retireOld() {
	if len(p.servers) <= keepLastServers {
		return
	}
	sort.Slice(p.servers, func(i, j int) bool { return p.servers[i].startedAt.Before(p.servers[j].startedAt) })
	excess := len(p.servers) - keepLastServers
	toRetire := p.servers[:excess]
	p.servers = p.servers[excess:]
	for _, fs := range toRetire {
		go shutdownServer(fs)
	}
}

func shutdownServer(fs *fileServer) {
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := fs.srv.Shutdown(ctx); err != nil {
		log.Printf("streaming: shutdown server on port %d: %v", fs.port, err)
	}
}

// Shutdown stops every tracked server, for use during process shutdown.
func (p *ServerPool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	servers := append([]*fileServer(nil), p.servers...)
	p.servers = nil
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, fs := range servers {
		wg.Add(1)
		go func(fs *fileServer) {
			defer wg.Done()
			_ = fs.srv.Shutdown(ctx)
		}(fs)
	}
	wg.Wait()
}
