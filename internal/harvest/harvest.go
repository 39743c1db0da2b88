package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/deck"
	"github.com/JakeFAU/deck-harvester/internal/deckfile"
	"github.com/JakeFAU/deck-harvester/internal/metrics"
	"github.com/JakeFAU/deck-harvester/internal/progress"
	"github.com/JakeFAU/deck-harvester/internal/router"
)

// ErrAlreadyVisited marks a URL seen earlier in the same batch.
var ErrAlreadyVisited = errors.New("already visited in this batch")

const (
	defaultMaxDepth    = 2
	defaultMaxChildren = 50
	pastedSource       = "pasted"
	pastedLabel        = "<pasted text>"
)

// Classifier routes a raw input.
type Classifier interface {
	Classify(ctx context.Context, input string) (router.Route, error)
}

// Normalizer turns a raw decklist into a Deck.
type Normalizer interface {
	Normalize(ctx context.Context, raw deck.RawDecklist) (deck.Deck, error)
}

// Config controls recursion, protected sites, archiving, and publishing.
type Config struct {
	// MaxDepth bounds container recursion. Zero selects 2; negative disables
	// following children.
	MaxDepth int
	// MaxChildren caps the children followed per container.
	MaxChildren     int
	ProtectedPolicy ProtectedPolicy
	ArchiveMode     ArchiveMode
	ArchivePrefix   string
	Topic           string
}

// Dependencies are the collaborators a Harvester drives. Blobs, Decks, and
// Publisher are optional; Events defaults to discarding and Tracer to no-op.
type Dependencies struct {
	Router     Classifier
	Fetcher    deck.Fetcher
	Normalizer Normalizer
	Blobs      deck.BlobStore
	Decks      deck.DeckStore
	Publisher  deck.Publisher
	Clock      deck.Clock
	IDs        deck.IDGenerator
	Events     progress.Emitter
	Tracer     trace.Tracer
}

// Outcome reports what happened to one input.
type Outcome struct {
	Input   string
	Route   router.Kind
	URL     string
	Adapter string
	Status  Status
	// Decks are the decks first seen in this batch, in discovery order.
	Decks []deck.Deck
	// Duplicates counts decks whose fingerprint was already seen in the batch.
	Duplicates int
	// Known counts new decks the store already held from an earlier run.
	Known int
	// Children counts container child pages visited.
	Children int
	// ChildFailures counts child pages that failed to fetch or parse.
	ChildFailures int
	Archived      []string
	Err           error
	Duration      time.Duration
}

// Warnings totals the warnings across the outcome's decks.
func (o Outcome) Warnings() int {
	n := 0
	for _, d := range o.Decks {
		n += len(d.Warnings)
	}
	return n
}

// Report is the result of a batch.
type Report struct {
	BatchID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []Outcome
	Canceled   bool
}

// Decks returns every deck accepted by the batch.
func (r Report) Decks() []deck.Deck {
	var out []deck.Deck
	for _, o := range r.Outcomes {
		out = append(out, o.Decks...)
	}
	return out
}

// Counts tallies outcomes by status.
func (r Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}

// Harvester processes inputs sequentially.
type Harvester struct {
	deps   Dependencies
	cfg    Config
	logger *zap.Logger
}

// New constructs a Harvester. Router, Fetcher, Normalizer, Clock, and IDs are
// required.
func New(deps Dependencies, cfg Config, logger *zap.Logger) (*Harvester, error) {
	switch {
	case deps.Router == nil:
		return nil, fmt.Errorf("harvest: router is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("harvest: fetcher is required")
	case deps.Normalizer == nil:
		return nil, fmt.Errorf("harvest: normalizer is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("harvest: clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("harvest: id generator is required")
	}
	if deps.Events == nil {
		deps.Events = progress.Discard{}
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("harvest")
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	} else if cfg.MaxDepth == 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.MaxChildren <= 0 {
		cfg.MaxChildren = defaultMaxChildren
	}
	if cfg.ProtectedPolicy == "" {
		cfg.ProtectedPolicy = ProtectedAttempt
	}
	if cfg.ArchiveMode == "" {
		cfg.ArchiveMode = ArchiveFailures
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "archive"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{deps: deps, cfg: cfg, logger: logger.Named("harvest")}, nil
}

// batch holds the per-run dedupe state.
type batch struct {
	id           string
	visited      map[string]struct{}
	fingerprints map[string]struct{}
	logger       *zap.Logger
}

// Run processes inputs in order. A failing input never stops the batch;
// cancellation stops it between inputs and is returned alongside the partial
// report.
func (h *Harvester) Run(ctx context.Context, inputs []string) (Report, error) {
	batchID, err := h.deps.IDs.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("batch id: %w", err)
	}
	b := &batch{
		id:           batchID,
		visited:      make(map[string]struct{}),
		fingerprints: make(map[string]struct{}),
		logger:       h.logger.With(zap.String("batch_id", batchID)),
	}
	report := Report{BatchID: batchID, StartedAt: h.deps.Clock.Now()}
	h.deps.Events.Emit(progress.Event{
		BatchID: batchID,
		TS:      report.StartedAt,
		Stage:   progress.StageBatchStart,
		Inputs:  len(inputs),
	})
	b.logger.Info("batch started", zap.Int("inputs", len(inputs)))

	var runErr error
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			report.Canceled = true
			runErr = fmt.Errorf("batch canceled: %w", err)
			break
		}
		outcome := h.process(ctx, b, input)
		report.Outcomes = append(report.Outcomes, outcome)
		h.observe(b, outcome)
	}

	report.FinishedAt = h.deps.Clock.Now()
	result := "completed"
	if report.Canceled {
		result = "canceled"
	}
	h.deps.Events.Emit(progress.Event{
		BatchID: batchID,
		TS:      report.FinishedAt,
		Stage:   progress.StageBatchDone,
		Status:  result,
		Dur:     nonNegative(report.FinishedAt.Sub(report.StartedAt)),
	})
	b.logger.Info("batch finished",
		zap.String("result", result),
		zap.Int("processed", len(report.Outcomes)),
		zap.Int("decks", len(report.Decks())),
	)
	return report, runErr
}

// Process harvests a single input as a batch of one.
func (h *Harvester) Process(ctx context.Context, input string) (Outcome, error) {
	report, err := h.Run(ctx, []string{input})
	if len(report.Outcomes) == 0 {
		if err == nil {
			err = fmt.Errorf("harvest: input was not processed")
		}
		return Outcome{Input: input, Status: StatusSkipped, Err: err}, err
	}
	return report.Outcomes[0], nil
}

func (h *Harvester) process(ctx context.Context, b *batch, input string) (out Outcome) {
	ctx, span := h.deps.Tracer.Start(ctx, "harvest.input", trace.WithAttributes(attribute.String("batch_id", b.id)))
	defer func() {
		span.SetAttributes(attribute.String("route", string(out.Route)), attribute.String("status", string(out.Status)))
		finishSpan(span, out.Err)
	}()

	started := h.deps.Clock.Now()
	classifyCtx, classifySpan := h.deps.Tracer.Start(ctx, "harvest.classify")
	route, err := h.deps.Router.Classify(classifyCtx, input)
	classifySpan.SetAttributes(attribute.String("kind", string(route.Kind)))
	finishSpan(classifySpan, err)
	out = Outcome{Input: input, Route: route.Kind}
	if route.URL != nil {
		out.URL = route.URL.String()
	}
	switch {
	case err != nil:
		out.Status, out.Err = StatusSkipped, err
	case route.Kind == router.KindPlainText:
		out.Status, out.Err = h.processText(ctx, b, &out, route.Text)
	case route.Registration == nil:
		out.Status = StatusUnsupported
		b.logger.Info("unsupported input", zap.String("url", out.URL))
	default:
		out.Adapter = route.Registration.Adapter.Name()
		out.Status, out.Err = h.visit(ctx, b, &out, route.URL, *route.Registration, 0)
	}
	out.Duration = nonNegative(h.deps.Clock.Now().Sub(started))
	return out
}

func (h *Harvester) processText(ctx context.Context, b *batch, out *Outcome, text string) (Status, error) {
	raw := deckfile.Parse(text)
	raw.Source = pastedSource
	d, err := h.normalize(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return StatusSkipped, err
		}
		return StatusParseFailed, err
	}
	h.accept(ctx, b, out, d)
	return StatusOK, nil
}

// visit fetches and parses one registered URL, recursing into container
// children while depth allows.
func (h *Harvester) visit(ctx context.Context, b *batch, out *Outcome, target *url.URL, reg router.Registration, depth int) (status Status, err error) {
	ctx, span := h.deps.Tracer.Start(ctx, "harvest.visit", trace.WithAttributes(
		attribute.String("url", target.String()),
		attribute.String("adapter", reg.Adapter.Name()),
		attribute.Int("depth", depth),
	))
	defer func() {
		span.SetAttributes(attribute.String("status", string(status)))
		if errors.Is(err, ErrAlreadyVisited) {
			finishSpan(span, nil)
			return
		}
		finishSpan(span, err)
	}()

	key := router.CanonicalKey(target)
	if _, seen := b.visited[key]; seen {
		return StatusSkipped, fmt.Errorf("%s: %w", target, ErrAlreadyVisited)
	}
	b.visited[key] = struct{}{}

	adapter := reg.Adapter
	logger := b.logger.With(zap.String("url", target.String()), zap.String("adapter", adapter.Name()))

	request, err := adapter.Request(target)
	if err != nil {
		logger.Warn("build request failed", zap.Error(err))
		return StatusParseFailed, err
	}
	if reg.Protected {
		switch h.cfg.ProtectedPolicy {
		case ProtectedSkip:
			logger.Info("protected source skipped")
			return StatusSkipped, fmt.Errorf("%s: %w", target, deck.ErrProtectedSource)
		case ProtectedHeadless:
			request.Headless = true
		}
	}

	doc, err := h.fetch(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return StatusSkipped, err
		}
		logger.Warn("fetch failed", zap.Error(err))
		return StatusFetchFailed, err
	}

	parsed, err := h.parse(ctx, adapter, target, doc)
	if err != nil {
		logger.Warn("parse failed", zap.Error(err))
		if h.cfg.ArchiveMode != ArchiveNone {
			h.archive(ctx, b, out, adapter.Name(), doc)
		}
		return StatusParseFailed, err
	}
	if h.cfg.ArchiveMode == ArchiveAll {
		h.archive(ctx, b, out, adapter.Name(), doc)
	}

	var emptyErr error
	produced := 0
	for _, raw := range parsed.Decklists {
		if raw.URL == "" {
			raw.URL = firstNonEmpty(doc.FinalURL, target.String())
		}
		d, err := h.normalize(ctx, raw)
		switch {
		case err != nil && ctx.Err() != nil:
			return StatusSkipped, err
		case err != nil:
			logger.Warn("decklist rejected", zap.String("title", raw.Title), zap.Error(err))
			emptyErr = err
			continue
		}
		h.accept(ctx, b, out, d)
		produced++
	}
	if reg.Kind == router.KindDecklist && produced == 0 {
		if emptyErr == nil {
			emptyErr = deck.NewParseError(adapter.Name(), target.String(), "no decklist found", deck.ErrEmptyDecklist)
		}
		return StatusParseFailed, emptyErr
	}

	if reg.Kind == router.KindContainer {
		h.visitChildren(ctx, b, out, parsed.Children, depth, logger)
	}
	return StatusOK, nil
}

func (h *Harvester) visitChildren(ctx context.Context, b *batch, out *Outcome, children []string, depth int, logger *zap.Logger) {
	if len(children) == 0 {
		return
	}
	if depth >= h.cfg.MaxDepth {
		logger.Debug("max depth reached, children not followed", zap.Int("children", len(children)))
		return
	}
	if len(children) > h.cfg.MaxChildren {
		logger.Info("container truncated", zap.Int("children", len(children)), zap.Int("max_children", h.cfg.MaxChildren))
		children = children[:h.cfg.MaxChildren]
	}
	for _, child := range children {
		if ctx.Err() != nil {
			return
		}
		route, err := h.deps.Router.Classify(ctx, child)
		if err != nil {
			return
		}
		if route.Registration == nil {
			logger.Debug("child not routable", zap.String("child", child))
			continue
		}
		status, err := h.visit(ctx, b, out, route.URL, *route.Registration, depth+1)
		switch {
		case errors.Is(err, ErrAlreadyVisited):
		case status == StatusFetchFailed, status == StatusParseFailed:
			out.Children++
			out.ChildFailures++
		default:
			out.Children++
		}
	}
}

// accept dedupes d within the batch, assigns its ID, and hands it to the
// store and publisher.
func (h *Harvester) accept(ctx context.Context, b *batch, out *Outcome, d deck.Deck) {
	ctx, span := h.deps.Tracer.Start(ctx, "harvest.accept", trace.WithAttributes(attribute.String("source", d.Source)))
	defer span.End()

	fingerprint := d.Fingerprint()
	span.SetAttributes(attribute.String("fingerprint", fingerprint))
	if _, seen := b.fingerprints[fingerprint]; seen {
		out.Duplicates++
		span.SetAttributes(attribute.Bool("duplicate", true))
		return
	}
	b.fingerprints[fingerprint] = struct{}{}

	id, err := h.deps.IDs.NewID()
	if err != nil {
		b.logger.Error("deck id generation failed", zap.Error(err))
		return
	}
	d.ID = id
	harvestedAt := h.deps.Clock.Now()
	out.Decks = append(out.Decks, d)
	metrics.ObserveDeck(d.Source)

	saved := true
	if h.deps.Decks != nil {
		saved, err = h.deps.Decks.SaveDeck(ctx, d, b.id, harvestedAt)
		if err != nil {
			b.logger.Error("store deck failed", zap.String("deck_id", d.ID), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		if !saved {
			out.Known++
			return
		}
	}
	if h.deps.Publisher == nil || h.cfg.Topic == "" {
		return
	}
	event := deck.DeckEvent{
		DeckID:      d.ID,
		BatchID:     b.id,
		Name:        d.Name,
		Format:      d.Format,
		Source:      d.Source,
		URL:         d.URL,
		CardCount:   d.CardCount(),
		Warnings:    len(d.Warnings),
		Fingerprint: fingerprint,
		HarvestedAt: harvestedAt,
	}
	if _, err := h.deps.Publisher.Publish(ctx, h.cfg.Topic, event); err != nil {
		b.logger.Warn("publish deck event failed", zap.String("deck_id", d.ID), zap.Error(err))
	}
}

func (h *Harvester) fetch(ctx context.Context, request deck.FetchRequest) (deck.Document, error) {
	ctx, span := h.deps.Tracer.Start(ctx, "harvest.fetch", trace.WithAttributes(
		attribute.String("url", request.URL),
		attribute.Bool("headless", request.Headless),
	))
	doc, err := h.deps.Fetcher.Fetch(ctx, request)
	if err == nil {
		span.SetAttributes(attribute.Int("http.status_code", doc.StatusCode), attribute.Int("bytes", len(doc.Body)))
	}
	finishSpan(span, err)
	return doc, err
}

func (h *Harvester) parse(ctx context.Context, adapter deck.Adapter, target *url.URL, doc deck.Document) (deck.Parsed, error) {
	ctx, span := h.deps.Tracer.Start(ctx, "harvest.parse", trace.WithAttributes(attribute.String("adapter", adapter.Name())))
	parsed, err := adapter.Parse(ctx, target, doc)
	if err == nil {
		span.SetAttributes(attribute.Int("decklists", len(parsed.Decklists)), attribute.Int("children", len(parsed.Children)))
	}
	finishSpan(span, err)
	return parsed, err
}

func (h *Harvester) normalize(ctx context.Context, raw deck.RawDecklist) (deck.Deck, error) {
	ctx, span := h.deps.Tracer.Start(ctx, "harvest.normalize", trace.WithAttributes(attribute.Int("entries", len(raw.Entries))))
	d, err := h.deps.Normalizer.Normalize(ctx, raw)
	if err == nil {
		span.SetAttributes(attribute.Int("warnings", len(d.Warnings)))
	}
	finishSpan(span, err)
	return d, err
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (h *Harvester) observe(b *batch, out Outcome) {
	metrics.ObserveInput(string(out.Route), string(out.Status))
	evt := progress.Event{
		BatchID:  b.id,
		TS:       h.deps.Clock.Now(),
		Stage:    progress.StageInputDone,
		Input:    out.Input,
		Route:    string(out.Route),
		Status:   string(out.Status),
		Decks:    len(out.Decks),
		Warnings: out.Warnings(),
		Dur:      out.Duration,
	}
	if out.Route == router.KindPlainText {
		evt.Input = pastedLabel
	}
	if out.URL != "" {
		evt.Site = metrics.SanitizeSite(out.URL)
	}
	if out.Err != nil {
		evt.Note = out.Err.Error()
	}
	h.deps.Events.Emit(evt)

	fields := []zap.Field{
		zap.String("input", evt.Input),
		zap.String("route", evt.Route),
		zap.String("status", evt.Status),
		zap.Int("decks", evt.Decks),
		zap.Duration("dur", out.Duration),
	}
	if out.Children > 0 {
		fields = append(fields, zap.Int("children", out.Children), zap.Int("child_failures", out.ChildFailures))
	}
	if out.Err != nil {
		fields = append(fields, zap.Error(out.Err))
	}
	b.logger.Info("input processed", fields...)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
