package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jo-hoe/promptrank/internal/backend/catalogue"
	"github.com/jo-hoe/promptrank/internal/backend/database"
	"github.com/jo-hoe/promptrank/internal/backend/imageinfo"
	"github.com/jo-hoe/promptrank/internal/backend/inflight"
	"github.com/jo-hoe/promptrank/internal/backend/renderer"
	"github.com/jo-hoe/promptrank/internal/entry"
	"github.com/jo-hoe/promptrank/internal/lifecycle"
	"github.com/jo-hoe/promptrank/internal/rating"
	"github.com/jo-hoe/promptrank/internal/workflow"
)

var (
	// ErrPrecondition rejects a request the current entry state does not allow.
	ErrPrecondition = errors.New("precondition failed")
	// ErrUnknownEntry is the ErrPrecondition for ids the store does not hold.
	ErrUnknownEntry = fmt.Errorf("%w: unknown entry", ErrPrecondition)
	// ErrRenderFailed is returned by Generate when the renderer did not finish the job.
	ErrRenderFailed = errors.New("render failed")
)

type CoreService struct {
	config   *ServiceConfig
	store    database.DatabaseService
	locks    *database.KeyedLocker
	inflight inflight.Registry
	engine   *rating.Engine
	machine  *lifecycle.Machine
	renderer renderer.Renderer
	metrics  *serviceMetrics
}

type options struct {
	store       database.DatabaseService
	inflight    inflight.Registry
	renderer    renderer.Renderer
	registerer  prometheus.Registerer
	machineOpts []lifecycle.Option
}

// Option replaces a collaborator that would otherwise be built from the config.
type Option func(*options)

func WithStore(s database.DatabaseService) Option {
	return func(o *options) { o.store = s }
}

func WithInFlight(r inflight.Registry) Option {
	return func(o *options) { o.inflight = r }
}

func WithRenderer(r renderer.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithRegisterer registers the service metrics somewhere other than the default
// prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

func WithLifecycleOptions(opts ...lifecycle.Option) Option {
	return func(o *options) { o.machineOpts = append(o.machineOpts, opts...) }
}

func NewCoreService(config *ServiceConfig, opts ...Option) (*CoreService, error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	engine, err := rating.NewEngine(config.Rating)
	if err != nil {
		return nil, err
	}
	templates, err := workflow.NewRegistryFromConfig(config.Templates)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	if o.store == nil {
		o.store, err = getDatabaseService(config)
		if err != nil {
			return nil, err
		}
	}
	slog.Info("rating engine ready", "prior", engine.Prior(), "drawMargin", engine.DrawMargin())
	if o.inflight == nil {
		o.inflight, err = inflight.NewRegistry(config.InFlight)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize inflight registry: %w", err)
		}
	}
	if o.renderer == nil {
		o.renderer, err = renderer.NewRenderer(config.Renderer)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize renderer: %w", err)
		}
	}

	return &CoreService{
		config:   config,
		store:    o.store,
		locks:    database.NewKeyedLocker(),
		inflight: o.inflight,
		engine:   engine,
		machine:  lifecycle.NewMachine(engine.Prior(), templates, o.machineOpts...),
		renderer: o.renderer,
		metrics:  newServiceMetrics(o.registerer),
	}, nil
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}

// Close releases the store and the inflight registry.
func (s *CoreService) Close() error {
	return errors.Join(s.store.Close(), s.inflight.Close())
}

// Prior is the belief of new and invalidated entries.
func (s *CoreService) Prior() rating.Belief {
	return s.engine.Prior()
}

// Resolve decides the target of op on sourceID, persists it and returns the job to
// run. Holding the source lock from read to write keeps resolutions per id serial.
func (s *CoreService) Resolve(ctx context.Context, sourceID string, op lifecycle.Operation) (lifecycle.Resolution, error) {
	unlock := s.locks.Lock(sourceID)
	defer unlock()

	src, err := s.getEntry(ctx, sourceID)
	if err != nil {
		return lifecycle.Resolution{}, err
	}
	if op == lifecycle.Upscale && !src.HasRender() {
		return lifecycle.Resolution{}, fmt.Errorf("%w: entry %s has no render to upscale", ErrPrecondition, sourceID)
	}

	res, err := s.machine.Resolve(src, op)
	if err != nil {
		return lifecycle.Resolution{}, err
	}

	switch res.Outcome {
	case lifecycle.InPlace:
		err = s.store.UpdateEntry(ctx, res.Entry)
	case lifecycle.Forked:
		res.Entry, err = s.store.CreateEntry(ctx, res.Entry)
	}
	if err != nil {
		return lifecycle.Resolution{}, fmt.Errorf("failed to persist resolution of %s: %w", sourceID, err)
	}

	s.metrics.resolutions.WithLabelValues(string(op), res.Outcome.String()).Inc()
	slog.Info("resolve: entry resolved",
		"source", sourceID, "target", res.Entry.ID, "operation", op,
		"outcome", res.Outcome, "seed", res.Job.Seed, "seedReused", res.SeedReused)
	return res, nil
}

// OnJobResult records the outputs of the finished job of entryID. Missing dimensions
// are read from the output file when it is reachable.
func (s *CoreService) OnJobResult(ctx context.Context, entryID string, outputs []renderer.Output) (entry.Entry, error) {
	updated, err := s.applyJobResult(ctx, entryID, outputs)
	if err != nil {
		s.metrics.jobResults.WithLabelValues("invalid").Inc()
		return updated, err
	}
	s.metrics.jobResults.WithLabelValues("completed").Inc()

	if updated.Upscale == entry.IsUpscale && updated.UpscaleOf != "" {
		if err := s.linkOrigin(ctx, updated.UpscaleOf); err != nil {
			slog.Warn("onJobResult: failed to link upscale origin", "id", entryID, "origin", updated.UpscaleOf, "error", err)
		}
	}
	return updated, nil
}

func (s *CoreService) applyJobResult(ctx context.Context, entryID string, outputs []renderer.Output) (entry.Entry, error) {
	unlock := s.locks.Lock(entryID)
	defer unlock()

	e, err := s.getEntry(ctx, entryID)
	if err != nil {
		return entry.Entry{}, err
	}

	results := make([]lifecycle.Output, len(outputs))
	for i, out := range outputs {
		results[i] = lifecycle.Output{Ref: out.Ref, Width: out.Width, Height: out.Height}
		if (out.Width > 0 && out.Height > 0) || out.Path == "" {
			continue
		}
		info, err := imageinfo.ProbeFile(out.Path)
		if err != nil {
			slog.Warn("onJobResult: could not read output dimensions", "id", entryID, "path", out.Path, "error", err)
			results[i].Width, results[i].Height = 0, 0
			continue
		}
		results[i].Width, results[i].Height = info.Width, info.Height
	}

	updated, err := lifecycle.ApplyJobResult(e, results)
	if err != nil {
		return e, err
	}
	if err := s.store.UpdateEntry(ctx, updated); err != nil {
		return e, fmt.Errorf("failed to store render of %s: %w", entryID, err)
	}
	slog.Info("onJobResult: render stored", "id", entryID, "filepath", updated.Filepath, "width", updated.Width, "height", updated.Height)
	return updated, nil
}

func (s *CoreService) linkOrigin(ctx context.Context, originID string) error {
	unlock := s.locks.Lock(originID)
	defer unlock()

	origin, err := s.getEntry(ctx, originID)
	if err != nil {
		return err
	}
	linked, changed := lifecycle.LinkUpscale(origin)
	if !changed {
		return nil
	}
	return s.store.UpdateEntry(ctx, linked)
}

// Generate resolves op on sourceID, renders the job and stores the result. Progress
// messages go to onProgress, which may be nil. The resolved entry is returned even
// when rendering fails; its render fields then stay empty.
func (s *CoreService) Generate(ctx context.Context, sourceID string, op lifecycle.Operation, onProgress func(string)) (entry.Entry, error) {
	progress := func(format string, args ...any) {
		if onProgress != nil {
			onProgress(fmt.Sprintf(format, args...))
		}
	}

	res, err := s.Resolve(ctx, sourceID, op)
	if err != nil {
		return entry.Entry{}, err
	}
	progress("%s: rendering entry %s with seed %d", res.Outcome, res.Entry.ID, res.Job.Seed)

	if timeout := s.config.Renderer.JobTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	task, err := s.renderer.Render(ctx, res.Job, func(ev renderer.Event) {
		if ev.Max > 0 {
			progress("%s %d/%d", ev.State, ev.Progress, ev.Max)
			return
		}
		progress("%s: %s", ev.State, ev.Message)
	})
	s.metrics.jobDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.jobResults.WithLabelValues(renderer.Failed.String()).Inc()
		slog.Error("generate: render failed", "id", res.Entry.ID, "error", err)
		return res.Entry, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	if task.State != renderer.Completed {
		s.metrics.jobResults.WithLabelValues(renderer.Failed.String()).Inc()
		slog.Error("generate: render failed", "id", res.Entry.ID, "reason", task.Reason)
		return res.Entry, fmt.Errorf("%w: %s", ErrRenderFailed, task.Reason)
	}

	return s.OnJobResult(ctx, res.Entry.ID, task.Outputs)
}

const maxPairAttempts = 8

// SelectPair picks the next comparison among candidateIDs, or among all entries when
// none are given. Deleted entries, entries without a render and entries of pending
// pairs are skipped. The chosen pair stays reserved until it is judged or expires.
func (s *CoreService) SelectPair(ctx context.Context, candidateIDs []string) (entry.Entry, entry.Entry, error) {
	all, err := s.store.GetEntries(ctx)
	if err != nil {
		return entry.Entry{}, entry.Entry{}, err
	}

	wanted := make(map[string]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		wanted[id] = true
	}
	byID := make(map[string]entry.Entry)
	var ids []string
	for _, e := range all {
		if len(wanted) > 0 && !wanted[e.ID] {
			continue
		}
		if e.Deleted || !e.HasRender() {
			continue
		}
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	for attempt := 1; ; attempt++ {
		free, err := s.inflight.Filter(ctx, ids)
		if err != nil {
			return entry.Entry{}, entry.Entry{}, err
		}
		candidates := make([]rating.Candidate, 0, len(free))
		for _, id := range free {
			candidates = append(candidates, rating.Candidate{ID: id, Belief: byID[id].Quality})
		}

		a, b, err := s.engine.SelectPair(candidates)
		if err != nil {
			if errors.Is(err, rating.ErrInsufficientCandidates) {
				s.metrics.pairSelections.WithLabelValues("insufficient").Inc()
			}
			return entry.Entry{}, entry.Entry{}, err
		}
		// Another caller may have reserved a or b since Filter ran
		ok, err := s.inflight.TryReserve(ctx, a.ID, b.ID)
		if err != nil {
			return entry.Entry{}, entry.Entry{}, err
		}
		if ok {
			s.metrics.pairSelections.WithLabelValues("selected").Inc()
			slog.Debug("selectPair: pair selected", "a", a.ID, "b", b.ID, "quality", s.engine.MatchQuality(a.Belief, b.Belief))
			return byID[a.ID], byID[b.ID], nil
		}
		s.metrics.pairSelections.WithLabelValues("contended").Inc()
		if attempt == maxPairAttempts {
			slog.Warn("selectPair: giving up on contended pairs", "attempts", attempt)
			return entry.Entry{}, entry.Entry{}, fmt.Errorf("%w: reservations kept conflicting", rating.ErrInsufficientCandidates)
		}
	}
}

// Update applies a judged comparison to both entries and releases their reservation.
func (s *CoreService) Update(ctx context.Context, aID, bID string, outcome rating.Outcome) (entry.Entry, entry.Entry, error) {
	if !outcome.Valid() {
		return entry.Entry{}, entry.Entry{}, fmt.Errorf("%w: %d", rating.ErrInvalidOutcome, outcome)
	}
	if aID == bID {
		return entry.Entry{}, entry.Entry{}, fmt.Errorf("%w: entry %s compared with itself", rating.ErrInvalidOutcome, aID)
	}

	unlock := s.locks.Lock(aID, bID)
	defer unlock()

	a, err := s.getEntry(ctx, aID)
	if err != nil {
		return entry.Entry{}, entry.Entry{}, err
	}
	b, err := s.getEntry(ctx, bID)
	if err != nil {
		return entry.Entry{}, entry.Entry{}, err
	}

	a.Quality, b.Quality, err = s.engine.Update(a.Quality, b.Quality, outcome)
	if err != nil {
		return entry.Entry{}, entry.Entry{}, err
	}
	if err := s.store.UpdateEntry(ctx, a); err != nil {
		return entry.Entry{}, entry.Entry{}, err
	}
	if err := s.store.UpdateEntry(ctx, b); err != nil {
		return entry.Entry{}, entry.Entry{}, err
	}
	if err := s.inflight.Release(ctx, aID, bID); err != nil {
		slog.Warn("update: failed to release pair", "a", aID, "b", bID, "error", err)
	}

	s.metrics.comparisons.WithLabelValues(outcome.String()).Inc()
	slog.Info("update: comparison recorded", "a", aID, "b", bID, "outcome", outcome,
		"muA", a.Quality.Mu, "muB", b.Quality.Mu)
	return a, b, nil
}

// Entries lists the entries matching filter in insertion order.
func (s *CoreService) Entries(ctx context.Context, filter EntryFilter) ([]entry.Entry, error) {
	all, err := s.store.GetEntries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]entry.Entry, 0, len(all))
	for _, e := range all {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *CoreService) Entry(ctx context.Context, id string) (entry.Entry, error) {
	return s.getEntry(ctx, id)
}

// Ranking returns the live entries, best first by conservative score. Ties keep id
// order.
func (s *CoreService) Ranking(ctx context.Context) ([]entry.Entry, error) {
	notDeleted := false
	entries, err := s.Entries(ctx, EntryFilter{Deleted: &notDeleted})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(entries, func(x, y entry.Entry) int {
		if c := cmp.Compare(y.Quality.Conservative(), x.Quality.Conservative()); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	return entries, nil
}

func (s *CoreService) ToggleBroken(ctx context.Context, id string) (entry.Entry, error) {
	return s.mutate(ctx, id, lifecycle.ToggleBroken)
}

func (s *CoreService) SetStatus(ctx context.Context, id string, status entry.Status) (entry.Entry, error) {
	return s.mutate(ctx, id, func(e entry.Entry) entry.Entry {
		return lifecycle.SetStatus(e, status)
	})
}

// Delete soft-deletes id and withdraws its pending pair, which frees the partner for
// selection again.
func (s *CoreService) Delete(ctx context.Context, id string) (entry.Entry, error) {
	prior := s.engine.Prior()
	deleted, err := s.mutate(ctx, id, func(e entry.Entry) entry.Entry {
		return lifecycle.Delete(e, prior)
	})
	if err != nil {
		return deleted, err
	}
	if err := s.inflight.Release(ctx, id); err != nil {
		slog.Warn("delete: failed to release reservation", "id", id, "error", err)
	}
	return deleted, nil
}

// PurgeDeleted physically removes all soft-deleted entries and returns how many went.
func (s *CoreService) PurgeDeleted(ctx context.Context) (int, error) {
	deletedOnly := true
	entries, err := s.Entries(ctx, EntryFilter{Deleted: &deletedOnly})
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, e := range entries {
		ok, err := s.purgeIfDeleted(ctx, e.ID)
		if err != nil {
			return purged, err
		}
		if ok {
			purged++
		}
	}
	slog.Info("purge: removed deleted entries", "count", purged)
	return purged, nil
}

// purgeIfDeleted removes id unless it was restored or purged after the listing.
func (s *CoreService) purgeIfDeleted(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.store.GetEntryByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !cur.Deleted {
		slog.Debug("purge: entry no longer deleted", "id", id)
		return false, nil
	}
	err = s.store.PurgeEntry(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to purge %s: %w", id, err)
	}
	return true, nil
}

// ImportCatalogue adds every row of the CSV at path as a new entry.
func (s *CoreService) ImportCatalogue(ctx context.Context, path string) (int, error) {
	rows, err := catalogue.ReadFile(path, s.engine.Prior())
	if err != nil {
		return 0, err
	}
	for i, e := range rows {
		if _, err := s.store.CreateEntry(ctx, e); err != nil {
			return i, fmt.Errorf("failed to import row %d: %w", i+1, err)
		}
	}
	slog.Info("import: catalogue loaded", "path", path, "entries", len(rows))
	return len(rows), nil
}

func (s *CoreService) mutate(ctx context.Context, id string, fn func(entry.Entry) entry.Entry) (entry.Entry, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	e, err := s.getEntry(ctx, id)
	if err != nil {
		return entry.Entry{}, err
	}
	next := fn(e)
	if err := s.store.UpdateEntry(ctx, next); err != nil {
		return entry.Entry{}, err
	}
	return next, nil
}

func (s *CoreService) getEntry(ctx context.Context, id string) (entry.Entry, error) {
	e, err := s.store.GetEntryByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return entry.Entry{}, fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	return e, err
}
