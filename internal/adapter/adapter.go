// Package adapter implements one PostingFetcher per provider family and a
// registry that builds decorated fetchers from source configuration.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/amishk599/jobdigest/internal/model"
	"github.com/amishk599/jobdigest/internal/normalize"
	"github.com/amishk599/jobdigest/internal/ratelimit"
	"github.com/amishk599/jobdigest/internal/retry"
)

// ErrUnknownProvider is returned when no factory is registered for a
// source's provider type.
var ErrUnknownProvider = errors.New("unknown provider")

// Factory builds a raw fetcher for one source.
type Factory func(src model.SourceConfig, client *http.Client) (model.PostingFetcher, error)

// Registry maps provider type strings to factories. Adding a source of a
// registered provider is a configuration change only.
type Registry struct {
	factories  map[string]Factory
	client     *http.Client
	limiter    *ratelimit.ProviderLimiter
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithRateLimiter throttles every built fetcher through l.
func WithRateLimiter(l *ratelimit.ProviderLimiter) Option {
	return func(r *Registry) { r.limiter = l }
}

// WithRetry retries transient failures of every built fetcher.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(r *Registry) {
		r.maxRetries = maxRetries
		r.baseDelay = baseDelay
	}
}

// NewRegistry returns a registry with every built-in provider registered.
func NewRegistry(client *http.Client, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		client:    client,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.Register("greenhouse", newGreenhouse)
	r.Register("lever", newLever)
	r.Register("ashby", newAshby)
	r.Register("gem", newGem)
	r.Register("workday", newWorkday)
	r.Register("smartrecruiters", newSmartRecruiters)
	r.Register("recruitee", newRecruitee)
	r.Register("personio", newPersonio)
	r.Register("remoteok", newRemoteOK)
	r.Register("remotive", newRemotive)
	r.Register("careers", newCareersPage)
	return r
}

// Register adds or replaces the factory for a provider type.
func (r *Registry) Register(provider string, f Factory) {
	r.factories[strings.ToLower(provider)] = f
}

// Supports reports whether a provider type is registered.
func (r *Registry) Supports(provider string) bool {
	_, ok := r.factories[strings.ToLower(provider)]
	return ok
}

// Providers lists registered provider types, sorted.
func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Build returns a fetcher for src wrapped with rate limiting, retries,
// normalization and error classification. The returned fetcher only ever
// fails with *model.FetchError.
func (r *Registry) Build(src model.SourceConfig) (model.PostingFetcher, error) {
	provider := strings.ToLower(src.Provider)
	f, ok := r.factories[provider]
	if !ok {
		return nil, fmt.Errorf("source %s: %w %q", src.ID, ErrUnknownProvider, src.Provider)
	}

	fetcher, err := f(src, r.client)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}

	if r.limiter != nil {
		fetcher = ratelimit.NewRateLimitedFetcher(fetcher, r.limiter, provider)
	}
	if r.maxRetries > 0 {
		fetcher = retry.NewRetryFetcher(fetcher, r.maxRetries, r.baseDelay, r.logger.With("source", src.ID))
	}
	return &classifyingFetcher{inner: fetcher, sourceID: src.ID, provider: provider}, nil
}

// classifyingFetcher is the fetch boundary: it stamps postings with their
// source, normalizes them and maps every failure to a typed FetchError.
type classifyingFetcher struct {
	inner    model.PostingFetcher
	sourceID string
	provider string
}

func (f *classifyingFetcher) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	postings, err := f.inner.FetchPostings(ctx)
	if err != nil {
		return nil, &model.FetchError{SourceID: f.sourceID, Kind: Classify(ctx, err), Err: err}
	}

	for i := range postings {
		postings[i].SourceID = f.sourceID
		if postings[i].Provider == "" {
			postings[i].Provider = f.provider
		}
	}
	postings = normalize.Postings(postings)
	if len(postings) == 0 {
		return nil, &model.FetchError{SourceID: f.sourceID, Kind: model.FetchEmpty}
	}
	return postings, nil
}

// Classify maps a raw adapter error to a fetch error kind.
func Classify(ctx context.Context, err error) model.FetchErrorKind {
	if kind := model.FetchErrorKindOf(err); kind != "" {
		return kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.FetchTimeout
	}
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return model.FetchBadResponse
	}
	var de *decodeError
	if errors.As(err, &de) {
		return model.FetchBadResponse
	}
	var pe *paramsError
	if errors.As(err, &pe) {
		return model.FetchBadResponse
	}
	return model.FetchUnreachable
}

// paramsError reports unusable connection parameters.
type paramsError struct {
	err error
}

func (e *paramsError) Error() string { return e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

// decodeParams converts the free-form params map into a typed struct and
// checks that every field named in required is non-empty.
func decodeParams(src model.SourceConfig, out any, required ...string) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(src.Params); err != nil {
		return &paramsError{err: fmt.Errorf("%s params: %w", src.Provider, err)}
	}
	for _, key := range required {
		v, ok := src.Params[key]
		if !ok || strings.TrimSpace(fmt.Sprint(v)) == "" {
			return &paramsError{err: fmt.Errorf("%s params: %q is required", src.Provider, key)}
		}
	}
	return nil
}
