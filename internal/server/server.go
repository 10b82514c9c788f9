package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"vignette/internal/derivative"
	"vignette/internal/images"
	"vignette/internal/presets"
	"vignette/internal/store"
)

const (
	apiTokenEnvKey         = "VIGNETTE_API_TOKEN"
	adminTokenEnvKey       = "VIGNETTE_ADMIN_TOKEN"
	allowRemoteEnvKey      = "VIGNETTE_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 60 * time.Second
	writeTimeout           = 120 * time.Second
	idleTimeout            = 60 * time.Second
	shutdownTimeout        = 10 * time.Second
	uploadConcurrencyLimit = 8
	gcConcurrencyLimit     = 1

	defaultMaxUploadBytes  = 20 << 20 // 20 MiB
	defaultMultipartMemory = 8 << 20  // 8 MiB
)

// Deps are the components the HTTP API serves.
type Deps struct {
	Images      *images.Manager
	Derivatives *derivative.Generator
	Presets     *presets.Registry
	Store       *store.Store
	Logger      *slog.Logger
}

// Options tunes request handling.
type Options struct {
	MaxUploadBytes  int64
	MultipartMemory int64
	// Reported by /v1/info.
	StorageName   string
	CacheName     string
	MissingPolicy string
}

// Server wraps HTTP handlers for the vignette API.
type Server struct {
	addr          string
	images        *images.Manager
	derivatives   *derivative.Generator
	presets       *presets.Registry
	store         *store.Store
	logger        *slog.Logger
	opts          Options
	apiToken      string
	adminToken    string
	uploadLimiter chan struct{}
	gcLimiter     chan struct{}
}

// New creates a new server instance.
func New(addr string, deps Deps, opts Options) (*Server, error) {
	if deps.Images == nil || deps.Derivatives == nil || deps.Presets == nil || deps.Store == nil {
		return nil, fmt.Errorf("server: images, derivatives, presets and store are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.MultipartMemory <= 0 {
		opts.MultipartMemory = defaultMultipartMemory
	}

	return &Server{
		addr:          addr,
		images:        deps.Images,
		derivatives:   deps.Derivatives,
		presets:       deps.Presets,
		store:         deps.Store,
		logger:        logger.With("component", "http"),
		opts:          opts,
		apiToken:      strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken:    strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
		uploadLimiter: make(chan struct{}, uploadConcurrencyLimit),
		gcLimiter:     make(chan struct{}, gcConcurrencyLimit),
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withAuth(s.routes()))
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log().Info("stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}
