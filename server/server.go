// Package server implements the Control Server: one instance per test
// input, fronting the instrumented test page and the TAP ingest
// endpoint.
//
// http.ServeMux is insufficient for the traversal-safe static serving
// and the dual routing rule (TAP ingest vs. instrumented page vs.
// static file), so routing is hand-rolled in a single handler, switched
// on a discriminant, one case per concern, rather than built up from
// mux pattern trees.
package server

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/qunitjs/qtap/agent"
	"github.com/qunitjs/qtap/log"
	"github.com/qunitjs/qtap/tap"
	"github.com/qunitjs/qtap/types"
)

// TapIngestPath is the fixed TAP POST endpoint.
const TapIngestPath = "/.qtap/tap/"

// clientIDQueryParam is the query key carrying a Client's id on every
// request that concerns it (the instrumented page request and every
// TAP POST).
const clientIDQueryParam = "qtap_clientId"

// maxTapBodyBytes bounds the TAP POST body the ingest handler will
// read into memory per request.
const maxTapBodyBytes = 8 << 20 // 8 MiB

// Hooks are the callbacks the orchestrator wires to observe a Control
// Server's Client lifecycle. All are invoked synchronously from the
// HTTP handler goroutine that triggered them.
type Hooks struct {
	// OnOnline fires on a Client's first instrumented-page request.
	OnOnline func(c *types.Client)
	// OnConsoleError fires once per forwarded `# console:` comment.
	OnConsoleError func(c *types.Client, message string)
	// OnFinish fires exactly once per Client when its FinishDetector
	// triggers; result.Bailout is non-empty for a bailout.
	OnFinish func(c *types.Client, result types.FinalResult)
}

// Server is the proxy for one TestInput. Created per input; destroyed
// on orchestrator shutdown.
type Server struct {
	ServerID  string
	TestInput types.TestInput
	Hooks     Hooks
	logger    *log.Logger

	httpServer *http.Server
	listener   net.Listener
	proxyBase  string

	html    []byte
	htmlErr error
	htmlMu  sync.RWMutex

	mu      sync.Mutex
	clients map[string]*session
	closed  bool
}

// session pairs a live Client with the parsing pipeline that feeds it.
type session struct {
	client *types.Client
	fd     *tap.FinishDetector
}

// New creates a Server for input, not yet listening.
func New(serverID string, input types.TestInput, hooks Hooks, logger *log.Logger) *Server {
	return &Server{
		ServerID:  serverID,
		TestInput: input,
		Hooks:     hooks,
		logger:    logger,
		clients:   make(map[string]*session),
	}
}

// Start prefetches the test body (in a background goroutine, in
// parallel with the socket bind) and binds an HTTP
// listener on an ephemeral loopback port. ProxyBase is valid once Start
// returns.
func (s *Server) Start() error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.prefetch()
	}()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return types.NewError(types.KindTransport, "server.Start", err)
	}
	s.listener = l
	s.proxyBase = fmt.Sprintf("http://%s", l.Addr().String())

	s.httpServer = &http.Server{Handler: http.HandlerFunc(s.handle)}

	go func() {
		if err := s.httpServer.Serve(l); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control server exited", map[string]any{"server_id": s.ServerID, "error": err.Error()})
		}
	}()

	wg.Wait()
	return nil
}

// ProxyBase returns the immutable base URL once the socket is listening.
func (s *Server) ProxyBase() string {
	return s.proxyBase
}

func (s *Server) prefetch() {
	switch s.TestInput.Kind {
	case types.InputFile:
		absPath := filepath.Join(s.TestInput.ResolvedRoot, filepath.FromSlash(s.TestInput.NormalizedDisplayPath))
		b, err := os.ReadFile(absPath)
		s.htmlMu.Lock()
		s.html, s.htmlErr = b, err
		s.htmlMu.Unlock()
	case types.InputURL:
		resp, err := http.Get(s.TestInput.Raw)
		if err != nil {
			s.htmlMu.Lock()
			s.htmlErr = types.NewError(types.KindTransport, "server.prefetch", err)
			s.htmlMu.Unlock()
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			s.htmlMu.Lock()
			s.htmlErr = types.NewError(types.KindUserInput, "server.prefetch", fmt.Errorf("fetching %s: status %d", s.TestInput.Raw, resp.StatusCode))
			s.htmlMu.Unlock()
			return
		}
		b, err := io.ReadAll(resp.Body)
		s.htmlMu.Lock()
		s.html, s.htmlErr = b, err
		s.htmlMu.Unlock()
	}
}

// RegisterClient creates a Client for a new Supervisor session and
// stores it in this Server's registry so incoming requests bearing its
// clientId can be routed. cancel aborts the associated browser.
func (s *Server) RegisterClient(browserName string, cancel func()) *types.Client {
	clientID := types.NewClientID()
	tapURL := fmt.Sprintf("%s%s?%s=%s", s.proxyBase, TapIngestPath, clientIDQueryParam, clientID)

	display := s.TestInput.NormalizedDisplayPath
	if s.TestInput.Kind == types.InputURL {
		display = s.TestInput.Raw
	}

	client := types.NewClient(clientID, display, browserName, tapURL, cancel)

	sess := &session{client: client}
	sess.fd = tap.NewFinishDetector(&commentObserver{server: s, session: sess}, func(result types.FinalResult) {
		s.finishClient(sess, result)
	}, 0)

	s.mu.Lock()
	s.clients[clientID] = sess
	s.mu.Unlock()

	return client
}

// RemoveClient removes a Client from the registry. finishClient calls it
// once a Client's TAP stream has finished it; a watchdog timeout does not
// remove the Client.
func (s *Server) RemoveClient(clientID string) {
	s.mu.Lock()
	delete(s.clients, clientID)
	s.mu.Unlock()
}

// LaunchURL builds the URL a browser should open for clientID, per
// file inputs get the normalized display path under this
// server's proxy base; URL inputs keep the original URL and path,
// adding only the clientId query parameter.
func (s *Server) LaunchURL(clientID string) string {
	if s.TestInput.Kind == types.InputURL {
		u, err := url.Parse(s.TestInput.Raw)
		if err != nil {
			return s.TestInput.Raw
		}
		q := u.Query()
		q.Set(clientIDQueryParam, clientID)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return fmt.Sprintf("%s/%s?%s=%s", s.proxyBase, s.TestInput.NormalizedDisplayPath, clientIDQueryParam, clientID)
}

func (s *Server) finishClient(sess *session, result types.FinalResult) {
	to := types.StateFinished
	if sess.fd.Bailed() {
		to = types.StateBailed
	}
	if !sess.client.TryTransition(to) {
		return
	}
	s.RemoveClient(sess.client.ClientID)
	if s.Hooks.OnFinish != nil {
		s.Hooks.OnFinish(sess.client, result)
	}
}

// Close shuts down the HTTP listener. Safe to call more than once; the
// second call is a no-op.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == TapIngestPath {
		s.handleTapIngest(w, r)
		return
	}

	clientID := r.URL.Query().Get(clientIDQueryParam)
	if clientID != "" {
		s.handleInstrumentedPage(w, r, clientID)
		return
	}

	s.handleStatic(w, r)
}

func (s *Server) handleTapIngest(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get(clientIDQueryParam)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxTapBodyBytes))
	if err != nil {
		s.logger.Warn("tap ingest: read body failed", map[string]any{"client_id": clientID, "error": err.Error()})
		w.WriteHeader(http.StatusNoContent)
		return
	}
	body = tap.StripANSI(body)

	s.mu.Lock()
	sess, ok := s.clients[clientID]
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("tap ingest: unknown client", map[string]any{"client_id": clientID})
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sess.client.Touch()
	sess.fd.Write(body)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInstrumentedPage(w http.ResponseWriter, r *http.Request, clientID string) {
	s.mu.Lock()
	sess, ok := s.clients[clientID]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	s.htmlMu.RLock()
	htmlBody, htmlErr := s.html, s.htmlErr
	s.htmlMu.RUnlock()
	if htmlErr != nil {
		http.Error(w, htmlErr.Error(), http.StatusBadGateway)
		return
	}

	if sess.client.TryTransition(types.StateConnected) && s.Hooks.OnOnline != nil {
		s.Hooks.OnOnline(sess.client)
	}

	page := buildInstrumentedPage(htmlBody, sess.client.TapChannelURL, s.TestInput.Kind == types.InputURL, s.TestInput.Raw)

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.TestInput.Kind == types.InputURL || s.TestInput.ResolvedRoot == "" {
		http.NotFound(w, r)
		return
	}

	reqPath := filepath.FromSlash(strings.TrimPrefix(r.URL.Path, "/"))
	resolved := filepath.Join(s.TestInput.ResolvedRoot, reqPath)

	rel, err := filepath.Rel(s.TestInput.ResolvedRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	f, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", mimeType(resolved))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Warn("static serve: write failed", map[string]any{"path": resolved, "error": err.Error()})
	}
}

// commentObserver is the FinishDetector's Outer observer for one
// session. Server only cares about the parser's comment stream — it
// inspects every `comment` signal for console/error forwarding
// and re-emits the ones beginning `# console: ` as consoleerror events,
// rewriting any stack-frame URLs pointing back at this proxy to
// proxy-relative paths. Every other signal is ignored; the aggregated
// outcome arrives separately via the FinishDetector's OnFinish callback.
//
// The agent reprefixes every embedded newline in a single console
// message with its own "# console: " comment marker (see
// agent/script/client-agent.js forwardConsoleError), so one logical
// message can arrive as several consecutive comment lines. This
// observer re-joins consecutive console-prefixed lines into a single
// consoleerror event, flushing whenever a non-console-comment signal
// interrupts the run (a plain comment, an assert, a plan, a bailout, or
// stream completion).
type commentObserver struct {
	server  *Server
	session *session

	pending strings.Builder
}

// consolePrefix is what a "# console: <text>" TAP comment line looks
// like after the parser has stripped the leading "#" and trimmed space.
const consolePrefix = "console:"

func (o *commentObserver) OnAssert(tap.Assert)  { o.flush() }
func (o *commentObserver) OnPlan(tap.Plan)      { o.flush() }
func (o *commentObserver) OnBailout(tap.Bailout) { o.flush() }
func (o *commentObserver) OnComplete(types.FinalResult) { o.flush() }

func (o *commentObserver) OnComment(c tap.Comment) {
	if !strings.HasPrefix(c.Text, consolePrefix) {
		o.flush()
		return
	}
	line := strings.TrimSpace(strings.TrimPrefix(c.Text, consolePrefix))
	if o.pending.Len() > 0 {
		o.pending.WriteByte('\n')
	}
	o.pending.WriteString(line)
}

func (o *commentObserver) flush() {
	if o.pending.Len() == 0 {
		return
	}
	msg := strings.ReplaceAll(o.pending.String(), o.server.proxyBase, "")
	o.pending.Reset()

	if o.server.Hooks.OnConsoleError != nil {
		o.server.Hooks.OnConsoleError(o.session.client, msg)
	}
}
