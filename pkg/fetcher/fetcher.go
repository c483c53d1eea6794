// Package fetcher retrieves guideline documents from http(s) URLs and local
// files with a bounded timeout and a small number of retries on transient
// failures. Failures are returned as values, never as Go errors.
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/telemetry"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
)

const (
	// DefaultTimeout bounds a single attempt
	DefaultTimeout = 10 * time.Second
	// DefaultRetries is the number of retries after the first attempt
	DefaultRetries = 2
	// DefaultRetryDelay is the initial backoff between attempts
	DefaultRetryDelay = 500 * time.Millisecond
	// MaxDocumentSize caps the bytes read from one document
	MaxDocumentSize = 5 << 20
	// maxRetryDelay caps the exponential backoff
	maxRetryDelay = 5 * time.Second
	// maxRedirects mirrors net/http's own default limit
	maxRedirects = 10
)

// Fetcher retrieves documents. It is safe for concurrent use.
type Fetcher struct {
	timeout      time.Duration
	retries      int
	retryDelay   time.Duration
	client       *http.Client
	allowedHosts []glob.Glob
	now          func() time.Time
}

// Option configures a Fetcher
type Option func(*Fetcher) error

// WithTimeout sets the per-attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) error {
		if timeout <= 0 {
			return errors.Errorf("timeout must be positive: %s", timeout)
		}
		f.timeout = timeout
		return nil
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(retries int) Option {
	return func(f *Fetcher) error {
		if retries < 0 {
			return errors.Errorf("retries cannot be negative: %d", retries)
		}
		f.retries = retries
		return nil
	}
}

// WithRetryDelay sets the initial delay between attempts. It doubles on
// every retry.
func WithRetryDelay(delay time.Duration) Option {
	return func(f *Fetcher) error {
		if delay < 0 {
			return errors.Errorf("retry delay cannot be negative: %s", delay)
		}
		f.retryDelay = delay
		return nil
	}
}

// WithHTTPClient replaces the HTTP client. A same-host redirect policy is
// installed if the client has none.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		c := *client
		if c.CheckRedirect == nil {
			c.CheckRedirect = sameHostRedirects
		}
		f.client = &c
		return nil
	}
}

// WithAllowedHosts restricts URL fetches to hosts matching one of the glob
// patterns, e.g. "raw.githubusercontent.com" or "*.example.com". With no
// patterns any host is allowed.
func WithAllowedHosts(patterns ...string) Option {
	return func(f *Fetcher) error {
		f.allowedHosts = nil
		for _, p := range patterns {
			g, err := glob.Compile(strings.ToLower(p), '.')
			if err != nil {
				return errors.Wrapf(err, "invalid allowed host pattern %q", p)
			}
			f.allowedHosts = append(f.allowedHosts, g)
		}
		return nil
	}
}

// WithClock sets the time source for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		f.now = now
		return nil
	}
}

// New creates a Fetcher with the default timeout and retry policy.
func New(opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		timeout:    DefaultTimeout,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		client:     &http.Client{CheckRedirect: sameHostRedirects},
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, errors.Wrap(err, "failed to apply fetcher option")
		}
	}
	return f, nil
}

// fetchError carries the classification of a failed attempt.
type fetchError struct {
	kind      guide.FetchErrorKind
	transient bool
	err       error
}

func (e *fetchError) Error() string { return e.err.Error() }

func (e *fetchError) Unwrap() error { return e.err }

func transientErr(err error) error {
	return &fetchError{kind: guide.FetchUnreachable, transient: true, err: err}
}

func permanentErr(kind guide.FetchErrorKind, format string, args ...any) error {
	return &fetchError{kind: kind, err: errors.Errorf(format, args...)}
}

func isTransient(err error) bool {
	var fe *fetchError
	if errors.As(err, &fe) {
		return fe.transient
	}
	return false
}

// Fetch retrieves one reference. The result always carries the reference;
// on failure ErrKind and Err describe what went wrong.
func (f *Fetcher) Fetch(ctx context.Context, ref guide.DocumentReference) guide.FetchedDocument {
	var doc guide.FetchedDocument
	_ = telemetry.WithSpan(ctx, "fetcher.fetch", func(ctx context.Context) error {
		doc = f.fetch(ctx, ref)
		telemetry.SetAttributes(ctx,
			attribute.String("fetch.result", doc.ErrKind.String()),
			attribute.Int("fetch.bytes", len(doc.Content)),
		)
		return doc.Err
	},
		attribute.String("document.kind", ref.Kind.String()),
		attribute.String("document.location", ref.Location),
	)
	return doc
}

func (f *Fetcher) fetch(ctx context.Context, ref guide.DocumentReference) guide.FetchedDocument {
	log := logger.G(ctx).WithField("location", ref.Location).WithField("document", ref.Label())

	var (
		content string
		err     error
	)
	switch {
	case strings.TrimSpace(ref.Location) == "":
		err = permanentErr(guide.FetchInvalid, "%s has no location configured", ref.Label())
	case hasScheme(ref.Location, "http"), hasScheme(ref.Location, "https"):
		content, err = f.fetchURL(ctx, ref.Location)
	case hasScheme(ref.Location, "file"):
		content, err = readFileURL(ref.Location)
	case strings.Contains(ref.Location, "://"):
		err = permanentErr(guide.FetchInvalid, "unsupported reference scheme in %s", ref.Location)
	default:
		content, err = readFile(ref.Location)
	}

	doc := guide.FetchedDocument{Reference: ref, FetchedAt: f.now()}
	if err != nil {
		doc.ErrKind = classify(err)
		doc.Err = errors.Wrapf(sentinelFor(doc.ErrKind, err), "%s", ref.Location)
		log.WithField("kind", doc.ErrKind.String()).WithError(err).Debug("fetch failed")
		return doc
	}

	doc.Content = content
	log.WithField("bytes", len(content)).Debug("document fetched")
	return doc
}

func classify(err error) guide.FetchErrorKind {
	var fe *fetchError
	if errors.As(err, &fe) {
		return fe.kind
	}
	return guide.FetchUnreachable
}

// sentinelFor joins the classification sentinel to the underlying cause so
// callers can use errors.Is on either.
func sentinelFor(kind guide.FetchErrorKind, cause error) error {
	switch kind {
	case guide.FetchNotFound:
		return &classified{sentinel: guide.ErrFetchNotFound, cause: cause}
	case guide.FetchUnreachable:
		return &classified{sentinel: guide.ErrFetchUnreachable, cause: cause}
	default:
		return cause
	}
}

type classified struct {
	sentinel error
	cause    error
}

func (c *classified) Error() string {
	return fmt.Sprintf("%v: %v", c.sentinel, c.cause)
}

func (c *classified) Unwrap() []error { return []error{c.sentinel, c.cause} }

// FetchAll retrieves the references concurrently and returns the documents
// in input order. Once ctx is cancelled no new fetch starts; the remaining
// references are returned as unreachable.
func (f *Fetcher) FetchAll(ctx context.Context, refs []guide.DocumentReference) []guide.FetchedDocument {
	docs := make([]guide.FetchedDocument, len(refs))
	g := new(errgroup.Group)
	for i, ref := range refs {
		if ctx.Err() != nil {
			docs[i] = cancelled(ref, ctx.Err(), f.now())
			continue
		}
		g.Go(func() error {
			docs[i] = f.Fetch(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()
	return docs
}

func cancelled(ref guide.DocumentReference, cause error, at time.Time) guide.FetchedDocument {
	return guide.FetchedDocument{
		Reference: ref,
		FetchedAt: at,
		ErrKind:   guide.FetchUnreachable,
		Err:       errors.Wrapf(&classified{sentinel: guide.ErrFetchUnreachable, cause: cause}, "%s", ref.Location),
	}
}

func hasScheme(location, scheme string) bool {
	return len(location) > len(scheme)+3 && strings.EqualFold(location[:len(scheme)+3], scheme+"://")
}
