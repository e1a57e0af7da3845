// Package fetcher discovers and downloads gazette editions from the publisher.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"gazette_bot/internal/model"
	"gazette_bot/internal/pdf"
)

const (
	userAgent      = "GazetteNotifyBot/1.0"
	editionPage    = "/edicao_atual.html"
	probeWindow    = 30
	maxPageSize    = 5 * 1024 * 1024
	maxDocumentLen = 1 << 30
)

var editionPattern = regexp.MustCompile(`Edição\s*(\d+),\s*(\d{2}/\d{2}/\d{4})`)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Reason classifies a fetch failure.
type Reason string

// Fetch failure reasons.
const (
	ReasonNetwork   Reason = "network"
	ReasonNotFound  Reason = "not-found"
	ReasonMalformed Reason = "malformed"
)

// FetchError reports why an edition could not be obtained.
type FetchError struct {
	Reason Reason
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether trying again may succeed.
func (e *FetchError) Retryable() bool { return e.Reason == ReasonNetwork }

// Options configures a Fetcher.
type Options struct {
	BaseURL     string         // publisher site, without trailing slash
	Dir         string         // where downloaded editions are stored
	EditionBase int            // first edition number probed when the page has none
	Location    *time.Location // publisher time zone
}

// Fetcher locates the latest edition and downloads it to disk.
type Fetcher struct {
	client   HTTPClient
	opts     Options
	lastSeen atomic.Int64
	now      func() time.Time
	log      *slog.Logger
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient, opts Options, logger *slog.Logger) *Fetcher {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	f := &Fetcher{
		client: client,
		opts:   opts,
		now:    time.Now,
		log:    logger,
	}
	f.lastSeen.Store(int64(opts.EditionBase))
	return f
}

// DocumentURL returns where the publisher serves edition n.
func (f *Fetcher) DocumentURL(n int) string {
	return fmt.Sprintf("%s/intranet/_lib/file/doc/pdfs/novo/%d/DM_%d.pdf", f.opts.BaseURL, n, n)
}

// Fetch looks up the latest edition and downloads it.
func (f *Fetcher) Fetch(ctx context.Context) (*model.Edition, error) {
	info, err := f.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, info)
}

// Latest returns the edition the publisher currently reports as newest.
// The edition page is read first; when it does not name an edition the
// document URLs are probed forward from the last known edition.
func (f *Fetcher) Latest(ctx context.Context) (model.EditionInfo, error) {
	info, err := f.fromPage(ctx)
	if err == nil {
		f.remember(info.Number)
		return info, nil
	}
	if ctx.Err() != nil {
		return model.EditionInfo{}, &FetchError{Reason: ReasonNetwork, Err: ctx.Err()}
	}
	f.log.Warn("Edition page unusable, probing documents", "error", err)

	n, probeErr := f.probe(ctx, int(f.lastSeen.Load()))
	if probeErr != nil {
		// A failing server is retried later rather than reported as a
		// missing edition.
		var pageErr *FetchError
		if errors.As(err, &pageErr) && pageErr.Retryable() {
			return model.EditionInfo{}, pageErr
		}
		return model.EditionInfo{}, probeErr
	}
	f.remember(n)
	return model.EditionInfo{
		Number: n,
		Date:   f.now().In(f.opts.Location).Format("02/01/2006"),
		URL:    f.DocumentURL(n),
	}, nil
}

func (f *Fetcher) remember(n int) {
	if int64(n) > f.lastSeen.Load() {
		f.lastSeen.Store(int64(n))
	}
}

func (f *Fetcher) fromPage(ctx context.Context) (model.EditionInfo, error) {
	resp, err := f.do(ctx, http.MethodGet, f.opts.BaseURL+editionPage)
	if err != nil {
		return model.EditionInfo{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return model.EditionInfo{}, &FetchError{Reason: ReasonNetwork, Err: fmt.Errorf("edition page status %d", resp.StatusCode)}
	default:
		return model.EditionInfo{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return model.EditionInfo{}, fmt.Errorf("parse edition page: %w", err)
	}
	m := editionPattern.FindStringSubmatch(doc.Find("body").Text())
	if m == nil {
		return model.EditionInfo{}, errors.New("edition page names no edition")
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return model.EditionInfo{}, fmt.Errorf("parse edition number: %w", err)
	}
	return model.EditionInfo{Number: n, Date: m[2], URL: f.DocumentURL(n)}, nil
}

// probe returns the newest edition at or after base whose document exists,
// checking at most probeWindow numbers.
func (f *Fetcher) probe(ctx context.Context, base int) (int, error) {
	latest := 0
	for n := base; n < base+probeWindow; n++ {
		resp, err := f.do(ctx, http.MethodHead, f.DocumentURL(n))
		if err != nil {
			if latest == 0 {
				return 0, &FetchError{Reason: ReasonNetwork, Err: err}
			}
			break
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 500 && latest == 0 {
			return 0, &FetchError{Reason: ReasonNetwork, Err: fmt.Errorf("probe %d: status %d", n, resp.StatusCode)}
		}
		if resp.StatusCode != http.StatusOK {
			break
		}
		latest = n
	}
	if latest == 0 {
		return 0, &FetchError{Reason: ReasonNotFound, Err: fmt.Errorf("no edition found from %d", base)}
	}
	f.log.Info("Latest edition found by probing", "edition", latest)
	return latest, nil
}

// Download stores the document of info under the fetcher directory and
// returns it as an Edition. A valid copy already on disk is reused.
func (f *Fetcher) Download(ctx context.Context, info model.EditionInfo) (*model.Edition, error) {
	ed := &model.Edition{EditionInfo: info}
	path := filepath.Join(f.opts.Dir, ed.FileName())
	ed.Path = path

	if st, err := os.Stat(path); err == nil {
		pages, err := pdf.Inspect(path)
		if err == nil {
			f.log.Debug("Using stored edition", "edition", info.Number, "path", path)
			ed.Size, ed.PageCount, ed.FetchedAt = st.Size(), pages, f.now()
			return ed, nil
		}
		f.log.Warn("Stored edition unreadable, downloading again", "edition", info.Number, "error", err)
		_ = os.Remove(path)
	}

	size, err := f.save(ctx, info.URL, path)
	if err != nil {
		return nil, err
	}
	pages, err := pdf.Inspect(path)
	if err != nil {
		_ = os.Remove(path)
		f.log.Error("Downloaded edition is not a valid PDF", "edition", info.Number, "error", err)
		return nil, &FetchError{Reason: ReasonMalformed, Err: err}
	}

	f.log.Info("Edition downloaded", "edition", info.Number, "bytes", size, "pages", pages)
	ed.Size, ed.PageCount, ed.FetchedAt = size, pages, f.now()
	return ed, nil
}

// save streams url into a temporary file next to path and renames it into
// place once complete.
func (f *Fetcher) save(ctx context.Context, url, path string) (int64, error) {
	resp, err := f.do(ctx, http.MethodGet, url)
	if err != nil {
		return 0, &FetchError{Reason: ReasonNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return 0, &FetchError{Reason: ReasonNetwork, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	default:
		return 0, &FetchError{Reason: ReasonNotFound, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxDocumentLen+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, &FetchError{Reason: ReasonNetwork, Err: fmt.Errorf("read body: %w", err)}
	}
	if n == 0 {
		return 0, &FetchError{Reason: ReasonMalformed, Err: errors.New("empty document")}
	}
	if n > maxDocumentLen {
		return 0, &FetchError{Reason: ReasonMalformed, Err: fmt.Errorf("document exceeds %d bytes", int64(maxDocumentLen))}
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("store document: %w", err)
	}
	return n, nil
}

func (f *Fetcher) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http %s: %w", method, err)
	}
	return resp, nil
}
