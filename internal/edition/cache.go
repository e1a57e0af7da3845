// Package edition holds the current gazette edition and everything derived
// from it: the parsed text layout and the highlighted copies already sent.
package edition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"gazette_bot/internal/model"
	"gazette_bot/internal/pdf"
	"gazette_bot/internal/search"
)

// ErrSuperseded is returned when asking for data of an edition that is no
// longer the current one.
var ErrSuperseded = errors.New("edition superseded")

// Source reports and downloads editions.
type Source interface {
	Latest(ctx context.Context) (model.EditionInfo, error)
	Download(ctx context.Context, info model.EditionInfo) (*model.Edition, error)
}

// Opener parses a stored edition into its text layout.
type Opener func(path string) (search.DocumentReader, error)

// OpenPDF is the Opener for PDF editions.
func OpenPDF(path string) (search.DocumentReader, error) {
	return pdf.Open(path)
}

// Options configures a Cache.
type Options struct {
	Dir            string        // directory holding downloaded editions
	FetchTimeout   time.Duration // limit for one freshness check plus download
	CheckInterval  time.Duration // minimum time between freshness checks
	MaxDerivatives int64         // bytes of highlighted copies kept in memory
}

type entry struct {
	ed   *model.Edition
	once sync.Once
	doc  search.DocumentReader
	err  error
}

// Cache holds at most one edition. Concurrent callers needing a fetch share
// a single one.
type Cache struct {
	src   Source
	open  Opener
	opts  Options
	log   *slog.Logger
	now   func() time.Time
	group singleflight.Group

	mu          sync.Mutex
	current     *entry
	checkedAt   time.Time
	derivatives map[uint64][]byte
	derivBytes  int64
}

// New creates an empty Cache.
func New(src Source, open Opener, opts Options, logger *slog.Logger) *Cache {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Minute
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 15 * time.Minute
	}
	if opts.MaxDerivatives <= 0 {
		opts.MaxDerivatives = 256 << 20
	}
	return &Cache{
		src:         src,
		open:        open,
		opts:        opts,
		log:         logger,
		now:         time.Now,
		derivatives: make(map[uint64][]byte),
	}
}

// Current returns the held edition, or nil.
func (c *Cache) Current() *model.Edition {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.ed
}

// Store makes ed the current edition. The file of the replaced edition is
// removed and every derivative of it dropped.
func (c *Cache) Store(ed *model.Edition) {
	c.mu.Lock()
	old := c.current
	c.current = &entry{ed: ed}
	c.checkedAt = c.now()
	c.clearDerivatives()
	c.mu.Unlock()

	if old != nil && old.ed.Path != ed.Path {
		if err := os.Remove(old.ed.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("Failed to remove superseded edition", "path", old.ed.Path, "error", err)
		}
	}
	c.log.Info("Edition stored", "edition", ed.Number, "date", ed.Date, "pages", ed.PageCount)
}

// Invalidate drops the held edition and deletes every stored document,
// returning how many files were removed. The next Get fetches again.
func (c *Cache) Invalidate() (int, error) {
	c.mu.Lock()
	c.current = nil
	c.checkedAt = time.Time{}
	c.clearDerivatives()
	c.mu.Unlock()

	if c.opts.Dir == "" {
		return 0, nil
	}
	files, err := filepath.Glob(filepath.Join(c.opts.Dir, "*.pdf"))
	if err != nil {
		return 0, fmt.Errorf("list cache dir: %w", err)
	}
	removed := 0
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			return removed, fmt.Errorf("remove %s: %w", filepath.Base(f), err)
		}
		removed++
	}
	c.log.Info("Edition cache cleared", "files", removed)
	return removed, nil
}

// Get returns the current edition, fetching it when none is held, when its
// file is gone or when the publisher reports a different one. The publisher
// is asked at most once per check interval.
func (c *Cache) Get(ctx context.Context) (*model.Edition, error) {
	c.mu.Lock()
	var held *model.Edition
	if c.current != nil && c.now().Sub(c.checkedAt) < c.opts.CheckInterval {
		held = c.current.ed
	}
	c.mu.Unlock()
	if held != nil && c.present(held) {
		return held, nil
	}
	return c.Refresh(ctx)
}

// Refresh asks the publisher for the latest edition now and fetches it when
// it differs from the held one. If a check is already running, Refresh waits
// for its result; ctx only bounds the wait.
func (c *Cache) Refresh(ctx context.Context) (*model.Edition, error) {
	ch := c.group.DoChan("latest", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()
		return c.refresh(fctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Edition), nil
	}
}

func (c *Cache) refresh(ctx context.Context) (*model.Edition, error) {
	held := c.Current()
	if held != nil && !c.present(held) {
		held = nil
	}

	info, err := c.src.Latest(ctx)
	if err != nil {
		if held != nil {
			c.log.Warn("Freshness check failed, serving held edition", "edition", held.Number, "error", err)
			c.touch(held)
			return held, nil
		}
		return nil, err
	}
	if held != nil && held.Number == info.Number && held.Date == info.Date {
		c.touch(held)
		return held, nil
	}

	ed, err := c.src.Download(ctx, info)
	if err != nil {
		return nil, err
	}
	c.Store(ed)
	return ed, nil
}

// present reports whether the file of ed still exists, dropping ed from the
// cache when it does not.
func (c *Cache) present(ed *model.Edition) bool {
	if _, err := os.Stat(ed.Path); err == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.ed == ed {
		c.log.Warn("Edition file missing, dropping edition", "edition", ed.Number, "path", ed.Path)
		c.current = nil
		c.checkedAt = time.Time{}
		c.clearDerivatives()
	}
	return false
}

// touch records a successful check for ed if it is still current.
func (c *Cache) touch(ed *model.Edition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.ed == ed {
		c.checkedAt = c.now()
	}
}

// Document returns the parsed text layout of ed. The document is parsed
// once per stored edition.
func (c *Cache) Document(ed *model.Edition) (search.DocumentReader, error) {
	c.mu.Lock()
	e := c.current
	c.mu.Unlock()
	if e == nil || e.ed.ID() != ed.ID() {
		return nil, ErrSuperseded
	}

	e.once.Do(func() {
		start := c.now()
		e.doc, e.err = c.open(e.ed.Path)
		if e.err == nil {
			c.log.Debug("Edition parsed", "edition", e.ed.Number, "duration", c.now().Sub(start))
		}
	})
	if e.err != nil {
		return nil, fmt.Errorf("parse edition %d: %w", ed.Number, e.err)
	}
	return e.doc, nil
}

// Derivative returns a highlighted copy stored for ed, keywords and mode.
func (c *Cache) Derivative(ed *model.Edition, keywords []string, mode model.Mode) ([]byte, bool) {
	key := derivativeKey(ed, keywords, mode)
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.derivatives[key]
	return data, ok
}

// PutDerivative stores a highlighted copy of ed. Copies of editions that are
// no longer current are discarded.
func (c *Cache) PutDerivative(ed *model.Edition, keywords []string, mode model.Mode, data []byte) {
	key := derivativeKey(ed, keywords, mode)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.ed.ID() != ed.ID() {
		return
	}
	if int64(len(data)) > c.opts.MaxDerivatives {
		return
	}
	if _, ok := c.derivatives[key]; ok {
		return
	}
	if c.derivBytes+int64(len(data)) > c.opts.MaxDerivatives {
		c.clearDerivatives()
	}
	c.derivatives[key] = data
	c.derivBytes += int64(len(data))
}

func (c *Cache) clearDerivatives() {
	clear(c.derivatives)
	c.derivBytes = 0
}

// derivativeKey identifies a highlighted copy by edition, folded keywords
// and mode. Keyword order is kept since it decides highlight colours.
func derivativeKey(ed *model.Edition, keywords []string, mode model.Mode) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(ed.ID())
	for _, kw := range keywords {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(model.FoldKeyword(kw))
	}
	_, _ = d.WriteString("\x01")
	_, _ = d.WriteString(string(mode))
	return d.Sum64()
}
