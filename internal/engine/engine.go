// Package engine ties the edition cache, search and rendering together and
// applies the retry policy shared by on-demand requests and broadcasts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gazette_bot/internal/edition"
	"gazette_bot/internal/fetcher"
	"gazette_bot/internal/model"
	"gazette_bot/internal/render"
	"gazette_bot/internal/search"
)

// ErrTooLarge is returned by DownloadFull when the edition exceeds the
// requested size limit.
var ErrTooLarge = errors.New("edition too large")

// Editions is the edition cache as used by the engine.
type Editions interface {
	Get(ctx context.Context) (*model.Edition, error)
	Refresh(ctx context.Context) (*model.Edition, error)
	Invalidate() (int, error)
	Document(ed *model.Edition) (search.DocumentReader, error)
	Derivative(ed *model.Edition, keywords []string, mode model.Mode) ([]byte, bool)
	PutDerivative(ed *model.Edition, keywords []string, mode model.Mode, data []byte)
}

// Renderer produces highlighted copies of an edition.
type Renderer interface {
	Render(ctx context.Context, ed *model.Edition, result model.SearchResult, mode model.Mode) ([]byte, error)
}

// Report is the outcome of processing one keyword set against an edition.
type Report struct {
	Edition  *model.Edition
	Result   model.SearchResult
	Document []byte // highlighted copy; nil when nothing matched
}

// FileName returns the attachment name of the highlighted copy.
func (r *Report) FileName() string {
	return fmt.Sprintf("DM_%d_DESTACADO.pdf", r.Edition.Number)
}

// Engine serves editions, searches and highlighted copies.
type Engine struct {
	editions Editions
	renderer Renderer
	log      *slog.Logger
}

// New creates an Engine.
func New(editions Editions, renderer Renderer, logger *slog.Logger) *Engine {
	return &Engine{editions: editions, renderer: renderer, log: logger}
}

// Edition returns the current edition, fetching it if needed. A network
// failure is retried once.
func (e *Engine) Edition(ctx context.Context) (*model.Edition, error) {
	return e.retryNetwork(ctx, e.editions.Get)
}

// Refresh checks the publisher for a newer edition before returning the
// current one. A network failure is retried once.
func (e *Engine) Refresh(ctx context.Context) (*model.Edition, error) {
	return e.retryNetwork(ctx, e.editions.Refresh)
}

func (e *Engine) retryNetwork(ctx context.Context, get func(context.Context) (*model.Edition, error)) (*model.Edition, error) {
	ed, err := get(ctx)
	if err == nil || !retryable(err) || ctx.Err() != nil {
		return ed, err
	}
	e.log.Warn("Edition fetch failed, retrying", "error", err)
	return get(ctx)
}

// Invalidate drops the held edition and its stored files.
func (e *Engine) Invalidate() (int, error) {
	return e.editions.Invalidate()
}

// Search finds keywords in ed.
func (e *Engine) Search(ctx context.Context, ed *model.Edition, keywords []string) (model.SearchResult, error) {
	doc, err := e.editions.Document(ed)
	if err != nil {
		return model.SearchResult{}, err
	}
	return search.Search(ctx, doc, keywords)
}

// Process searches keywords in ed and renders the highlighted copy in the
// given mode. If the edition is replaced or its file disappears meanwhile,
// the current edition is fetched and processing retried once.
func (e *Engine) Process(ctx context.Context, ed *model.Edition, keywords []string, mode model.Mode) (*Report, error) {
	rep, err := e.process(ctx, ed, keywords, mode)
	if err == nil || !stale(err) || ctx.Err() != nil {
		return rep, err
	}

	e.log.Warn("Edition went stale during processing, retrying", "edition", ed.Number, "error", err)
	ed, err = e.Edition(ctx)
	if err != nil {
		return nil, err
	}
	return e.process(ctx, ed, keywords, mode)
}

func (e *Engine) process(ctx context.Context, ed *model.Edition, keywords []string, mode model.Mode) (*Report, error) {
	res, err := e.Search(ctx, ed, keywords)
	if err != nil {
		return nil, err
	}
	rep := &Report{Edition: ed, Result: res}
	if res.Total() == 0 {
		return rep, nil
	}

	if data, ok := e.editions.Derivative(ed, res.Keywords, mode); ok {
		rep.Document = data
		return rep, nil
	}
	data, err := e.renderer.Render(ctx, ed, res, mode)
	if err != nil {
		return nil, err
	}
	e.editions.PutDerivative(ed, res.Keywords, mode, data)
	rep.Document = data
	return rep, nil
}

// DownloadFull returns the current edition and its content. When the edition
// is larger than limit, ErrTooLarge is returned along with the edition.
func (e *Engine) DownloadFull(ctx context.Context, limit int64) (*model.Edition, []byte, error) {
	ed, err := e.Edition(ctx)
	if err != nil {
		return nil, nil, err
	}
	if limit > 0 && ed.Size > limit {
		return ed, nil, ErrTooLarge
	}

	data, err := os.ReadFile(ed.Path)
	if errors.Is(err, os.ErrNotExist) {
		e.log.Warn("Edition file gone, fetching again", "edition", ed.Number)
		if ed, err = e.Edition(ctx); err != nil {
			return nil, nil, err
		}
		data, err = os.ReadFile(ed.Path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read edition: %w", err)
	}
	return ed, data, nil
}

func retryable(err error) bool {
	var ferr *fetcher.FetchError
	return errors.As(err, &ferr) && ferr.Retryable()
}

func stale(err error) bool {
	if errors.Is(err, edition.ErrSuperseded) {
		return true
	}
	var rerr *render.RenderError
	return errors.As(err, &rerr) && rerr.Reason == render.ReasonStaleEdition
}

// UserMessage returns the text shown to a user when a request failed with err.
func UserMessage(err error) string {
	var ferr *fetcher.FetchError
	var rerr *render.RenderError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "⏱️ A operação demorou demais. Tente novamente em alguns minutos."
	case errors.As(err, &ferr):
		switch ferr.Reason {
		case fetcher.ReasonNetwork:
			return "❌ Não foi possível acessar o Diário Oficial agora. Tente novamente em alguns minutos."
		case fetcher.ReasonNotFound:
			return "❌ A edição atual ainda não foi publicada."
		default:
			return "❌ Nenhuma edição válida disponível no momento."
		}
	case errors.As(err, &rerr):
		if rerr.Reason == render.ReasonStaleEdition {
			return "❌ A edição mudou durante o processamento. Tente novamente."
		}
		return "❌ Não foi possível gerar o PDF destacado."
	case errors.Is(err, edition.ErrSuperseded):
		return "❌ A edição mudou durante o processamento. Tente novamente."
	default:
		return "❌ Erro ao processar o Diário Oficial."
	}
}
