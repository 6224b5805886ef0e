// Package server exposes a similarity function over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/example/go-simscore/internal/config"
	"github.com/example/go-simscore/internal/runtime/tensor"
	"github.com/example/go-simscore/internal/similarity"
)

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxElements    int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxElements:    1 << 22,
		workers:        2,
		requestTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxElements caps the element count of each input tensor and of the
// largest tensor scoring allocates (see similarity.PeakElements).
func WithMaxElements(n int) Option {
	return func(o *options) { o.maxElements = n }
}

// WithWorkers sets the maximum number of concurrent Score calls. Zero
// disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request scoring deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	fn   similarity.Function
	opts options
	sem  chan struct{}
	log  *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /function and
// POST /score. fn is only read; callers must not mutate its parameters while
// the handler is serving.
func NewHandler(fn similarity.Function, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, f := range optFns {
		f(&opts)
	}

	h := &handler{
		fn:   fn,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/function", h.handleFunction)
	mux.HandleFunc("/score", h.handleScore)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleFunction(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.fn.Config())
}

// TensorJSON is the wire form of a dense tensor.
type TensorJSON struct {
	Shape []int64   `json:"shape"`
	Data  []float32 `json:"data"`
}

// ScoreRequest is the body of POST /score.
type ScoreRequest struct {
	Tensor1 TensorJSON `json:"tensor_1"`
	Tensor2 TensorJSON `json:"tensor_2"`
}

func (h *handler) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	t1, err := h.decodeTensor("tensor_1", req.Tensor1)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	t2, err := h.decodeTensor("tensor_2", req.Tensor2)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	if peak := similarity.PeakElements(h.fn, t1.Shape(), t2.Shape()); peak > int64(h.opts.maxElements) {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("scoring needs %d elements, maximum is %d", peak, h.opts.maxElements))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	sim, err := h.score(ctx, t1, t2)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			h.log.WarnContext(r.Context(), "scoring timed out",
				slog.Any("tensor_1", t1.Shape()),
				slog.Any("tensor_2", t2.Shape()),
				slog.Int64("duration_ms", durationMS),
			)
			writeError(w, http.StatusGatewayTimeout, "scoring timed out")
		case errors.Is(err, similarity.ErrShapeAssertion):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.log.ErrorContext(r.Context(), "scoring failed",
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.log.InfoContext(r.Context(), "scoring complete",
		slog.Any("tensor_1", t1.Shape()),
		slog.Any("tensor_2", t2.Shape()),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, TensorJSON{Shape: sim.Shape(), Data: sim.RawData()})
}

// score runs Score on its own goroutine so the request deadline applies even
// though the kernels themselves are not cancellable. The worker slot is held
// until Score returns, not until the request gives up on it.
func (h *handler) score(ctx context.Context, t1, t2 *tensor.Tensor) (*tensor.Tensor, error) {
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for worker: %w", ctx.Err())
		}
	}

	type result struct {
		t   *tensor.Tensor
		err error
	}

	done := make(chan result, 1)
	go func() {
		if h.sem != nil {
			defer func() { <-h.sem }()
		}

		t, err := h.fn.Score(t1, t2)
		done <- result{t, err}
	}()

	select {
	case res := <-done:
		return res.t, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var errTooLarge = errors.New("too large")

func (h *handler) decodeTensor(name string, tj TensorJSON) (*tensor.Tensor, error) {
	if len(tj.Data) > h.opts.maxElements {
		return nil, fmt.Errorf("%s has %d elements, maximum is %d: %w", name, len(tj.Data), h.opts.maxElements, errTooLarge)
	}

	t, err := tensor.New(tj.Data, tj.Shape)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return t, nil
}

func statusFor(err error) int {
	if errors.Is(err, errTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server wires the handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.ServerConfig
	fn              similarity.Function
	shutdownTimeout time.Duration
}

func New(cfg config.ServerConfig, fn similarity.Function) *Server {
	return &Server{
		cfg:             cfg,
		fn:              fn,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	h := NewHandler(s.fn,
		WithWorkers(s.cfg.Workers),
		WithMaxElements(s.cfg.MaxElements),
		WithRequestTimeout(time.Duration(s.cfg.RequestTimeout)*time.Second),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	slog.Info("server listening", "addr", s.cfg.ListenAddr, "function", s.fn.Config()["type"])

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks that a server at addr answers /health with 200.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
