package fetcher

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/guidesync/pkg/logger"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
	"github.com/jingkaihe/guidesync/pkg/version"
)

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", permanentErr(guide.FetchInvalid, "malformed URL %q: %v", rawURL, err)
	}
	if u.Hostname() == "" {
		return "", permanentErr(guide.FetchInvalid, "URL %q has no host", rawURL)
	}
	// Plain HTTP is only accepted for loopback addresses.
	if strings.EqualFold(u.Scheme, "http") && !isLocalHost(u.Hostname()) {
		return "", permanentErr(guide.FetchInvalid, "only HTTPS is supported for external hosts, HTTP is allowed for localhost: %s", rawURL)
	}
	if !f.hostAllowed(u.Hostname()) {
		return "", permanentErr(guide.FetchInvalid, "host %s is not in fetch.allowed_hosts", u.Hostname())
	}

	var content string
	err = retry.Do(
		func() error {
			body, getErr := f.get(ctx, rawURL)
			if getErr != nil {
				return getErr
			}
			content = body
			return nil
		},
		retry.RetryIf(isTransient),
		retry.Attempts(uint(f.retries+1)),
		retry.Delay(f.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).
				WithField("url", rawURL).
				WithField("attempt", n+1).
				WithField("max_attempts", f.retries+1).
				Warn("retrying document fetch")
		}),
	)
	if err != nil {
		if ctx.Err() != nil && !isFetchError(err) {
			return "", transientErr(errors.Wrap(ctx.Err(), "fetch cancelled"))
		}
		return "", err
	}
	return content, nil
}

// get performs one attempt bounded by the per-attempt timeout.
func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", permanentErr(guide.FetchInvalid, "failed to build request for %s: %v", rawURL, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "text/markdown, text/plain;q=0.9, text/html;q=0.8, */*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		var redirectErr *redirectError
		if errors.As(err, &redirectErr) {
			return "", permanentErr(guide.FetchInvalid, "%v", redirectErr)
		}
		return "", transientErr(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return "", permanentErr(guide.FetchNotFound, "HTTP %d from %s", resp.StatusCode, rawURL)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return "", transientErr(errors.Errorf("HTTP %d from %s", resp.StatusCode, rawURL))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", permanentErr(guide.FetchUnreachable, "HTTP %d from %s", resp.StatusCode, rawURL)
	}

	contentType := resp.Header.Get("Content-Type")
	if isBinaryContentType(contentType) {
		return "", permanentErr(guide.FetchInvalid, "unsupported content type %q from %s", contentType, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return "", transientErr(errors.Wrapf(err, "failed to read body of %s", rawURL))
	}
	if len(body) > MaxDocumentSize {
		return "", permanentErr(guide.FetchInvalid, "document %s exceeds %d bytes", rawURL, MaxDocumentSize)
	}

	if isHTML(contentType) {
		return convertHTMLToMarkdown(ctx, string(body)), nil
	}
	return string(body), nil
}

func (f *Fetcher) hostAllowed(host string) bool {
	if len(f.allowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, g := range f.allowedHosts {
		if g.Match(host) {
			return true
		}
	}
	return false
}

type redirectError struct {
	msg string
}

func (e *redirectError) Error() string { return e.msg }

// sameHostRedirects follows redirects only while they stay on the host of
// the original request.
func sameHostRedirects(req *http.Request, via []*http.Request) error {
	origin := via[0].URL.Hostname()
	if req.URL.Hostname() != origin {
		return &redirectError{msg: "redirect to different host not allowed: " + origin + " -> " + req.URL.Hostname()}
	}
	if len(via) >= maxRedirects {
		return &redirectError{msg: "stopped after 10 redirects"}
	}
	return nil
}

func isFetchError(err error) bool {
	var fe *fetchError
	return errors.As(err, &fe)
}

func isLocalHost(hostname string) bool {
	if hostname == "localhost" {
		return true
	}
	if ip := net.ParseIP(hostname); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func isBinaryContentType(contentType string) bool {
	mediaType := mediaTypeOf(contentType)
	for _, prefix := range []string{"image/", "audio/", "video/", "font/"} {
		if strings.HasPrefix(mediaType, prefix) {
			return true
		}
	}
	switch mediaType {
	case "application/octet-stream", "application/zip", "application/gzip", "application/pdf":
		return true
	}
	return false
}

func isHTML(contentType string) bool {
	mediaType := mediaTypeOf(contentType)
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mediaType
}

func convertHTMLToMarkdown(ctx context.Context, html string) string {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("failed to convert HTML to Markdown, keeping raw HTML")
		return html
	}
	return markdown
}
