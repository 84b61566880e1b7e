package lgcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultFitTimeout bounds one inference engine call.
	DefaultFitTimeout = 10 * time.Minute

	// maxEngineResponseBytes limits the engine response body to 200 MB.
	maxEngineResponseBytes = 200 << 20

	// Stable hyperparameter keys in FitResult.Hyper and in exports.
	HyperRangeKey = "range"
	HyperSigmaKey = "sigma"
)

// DensityPoint is one support point of a discretized posterior density.
type DensityPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Marginal is an approximate posterior marginal: summary statistics plus
// the discretized density table returned by the engine.
type Marginal struct {
	Mean    float64        `json:"mean"`
	SD      float64        `json:"sd"`
	Lower   float64        `json:"q025"`
	Upper   float64        `json:"q975"`
	Density []DensityPoint `json:"density,omitempty"`
}

// FitResult is what the external engine returns: marginals per fixed
// effect and per field hyperparameter, and the Gaussian approximation of
// the latent field (mode and precision at the posterior mode of the
// hyperparameters) that the posterior predictor samples from.
type FitResult struct {
	Effects         map[string]Marginal `json:"effects"`
	Hyper           map[string]Marginal `json:"hyperparameters"`
	LatentMean      []float64           `json:"latentMean,omitempty"`
	LatentPrecision *SparseMatrix       `json:"latentPrecision,omitempty"`
	Converged       bool                `json:"converged"`
	Message         string              `json:"message,omitempty"`
}

// InferenceEngine is the external approximate-Bayesian solver boundary.
// Implementations consume the assembled model inputs and return posterior
// marginals; the core never looks inside the inference itself.
type InferenceEngine interface {
	Fit(ctx context.Context, in *ModelInputs) (*FitResult, error)
}

// FitWithTimeout runs one fitting attempt under a deadline. Expiry maps to
// InferenceTimeoutError and a completed-but-unconverged fit maps to
// NonConvergenceError; in both cases no partial result is returned because
// partial latent-Gaussian state cannot be safely reused. The core never
// retries; callers may refit with relaxed priors or a coarser mesh.
func FitWithTimeout(ctx context.Context, engine InferenceEngine, in *ModelInputs, timeout time.Duration) (*FitResult, error) {
	if timeout <= 0 {
		timeout = DefaultFitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := engine.Fit(ctx, in)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &InferenceTimeoutError{Timeout: timeout}
		}
		return nil, fmt.Errorf("inference engine: %w", err)
	}
	if !res.Converged {
		return nil, &NonConvergenceError{Detail: res.Message}
	}
	return res, nil
}

// engineRequest is the wire form of ModelInputs. The precision family is
// shipped as its mesh-derived parts (lumped mass diagonal, stiffness
// matrix, smoothness order) so the engine can rebuild Q(range, sigma)
// while it explores the hyperparameters.
type engineRequest struct {
	FixedNames []string          `json:"fixedNames"`
	Design     [][]float64       `json:"design"`
	Response   []float64         `json:"response"`
	Weights    []float64         `json:"weights"`
	Field      *engineFieldBlock `json:"field,omitempty"`
	Threads    int               `json:"threads,omitempty"`
}

type engineFieldBlock struct {
	Name       string         `json:"name"`
	Alpha      int            `json:"alpha"`
	NumNodes   int            `json:"numNodes"`
	MassDiag   []float64      `json:"massDiag"`
	Stiffness  *SparseMatrix  `json:"stiffness"`
	Basis      []BasisRow     `json:"basis"`
	RangePrior LogNormalPrior `json:"rangePrior"`
	SigmaPrior LogNormalPrior `json:"sigmaPrior"`
}

// EngineOption configures HTTPEngine behavior.
type EngineOption func(*HTTPEngine)

// WithEngineHTTPClient overrides the default HTTP client (useful for testing).
func WithEngineHTTPClient(client *http.Client) EngineOption {
	return func(e *HTTPEngine) { e.client = client }
}

// WithEngineThreads sets the thread-count hint passed to the engine. It is
// an opaque resource budget, not a contract the core depends on.
func WithEngineThreads(n int) EngineOption {
	return func(e *HTTPEngine) { e.threads = n }
}

// HTTPEngine talks to an inference engine exposed as an HTTP service:
// model inputs are POSTed as JSON and the fit result comes back as JSON.
// Cancellation and deadlines arrive through the request context; there is
// no automatic retry for fit calls.
type HTTPEngine struct {
	url     string
	threads int
	client  *http.Client
}

// NewHTTPEngine creates an engine client for the given fit endpoint URL.
func NewHTTPEngine(url string, opts ...EngineOption) *HTTPEngine {
	e := &HTTPEngine{url: url, client: http.DefaultClient}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fit implements InferenceEngine.
func (e *HTTPEngine) Fit(ctx context.Context, in *ModelInputs) (*FitResult, error) {
	if e.url == "" {
		return nil, fmt.Errorf("engine URL is empty")
	}

	payload, err := json.Marshal(e.buildRequest(in))
	if err != nil {
		return nil, fmt.Errorf("encoding engine request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine POST %s: status %d", e.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEngineResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading engine response: %w", err)
	}
	var res FitResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decoding engine response: %w", err)
	}
	return &res, nil
}

func (e *HTTPEngine) buildRequest(in *ModelInputs) engineRequest {
	rows, cols := in.Design.Dims()
	design := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		design[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			design[r][c] = in.Design.At(r, c)
		}
	}
	req := engineRequest{
		FixedNames: in.FixedNames,
		Design:     design,
		Response:   in.Response,
		Weights:    in.Weights,
		Threads:    e.threads,
	}
	if in.Operator != nil {
		req.Field = &engineFieldBlock{
			Name:       in.FieldName,
			Alpha:      in.Operator.Alpha,
			NumNodes:   in.NumNodes,
			MassDiag:   in.Operator.MassDiag(),
			Stiffness:  in.Operator.Stiffness(),
			Basis:      in.Basis,
			RangePrior: in.RangePrior,
			SigmaPrior: in.SigmaPrior,
		}
	}
	return req
}
