package studio

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ai-portrait-studio/internal/style"
)

// DefaultErrorMessage is shown when a failed generation carries no message.
const DefaultErrorMessage = "生成失败，请稍后重试"

type Generator interface {
	Generate(ctx context.Context, sourceImage, stylePrompt string) (string, error)
}

type GeneratorFunc func(ctx context.Context, sourceImage, stylePrompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, sourceImage, stylePrompt string) (string, error) {
	return f(ctx, sourceImage, stylePrompt)
}

type Options struct {
	Catalog   []style.Definition
	Generator Generator
	Logger    *slog.Logger

	// BaseContext is the parent of every generation. Reset does not cancel it.
	BaseContext    context.Context
	RequestTimeout time.Duration

	// OnChange is called after applied transitions, outside the state lock and
	// one at a time. A transition already superseded when its turn comes is
	// skipped, so the last state delivered for a style is its current one.
	// OnChange may read Snapshot but must not call SubmitImage, Retry or Reset.
	OnChange func(State)
	// Prompt builds the instruction for a style; defaults to style.BuildPrompt.
	Prompt func(style.Definition) string
}

// Studio owns the source image and one generation slot per catalog style.
type Studio struct {
	mu     sync.Mutex
	source string
	slots  []slot
	active time.Time

	catalog  []style.Definition
	index    map[string]int
	gen      Generator
	logger   *slog.Logger
	baseCtx  context.Context
	timeout  time.Duration
	onChange func(State)
	prompt   func(style.Definition) string

	notifyMu sync.Mutex
	inflight sync.WaitGroup
}

type slot struct {
	state State
	token uint64
	// version counts every transition of state.
	version uint64
}

type change struct {
	index   int
	version uint64
	state   State
}

type launch struct {
	index  int
	token  uint64
	source string
}

func New(opts Options) *Studio {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = style.Catalog()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	prompt := opts.Prompt
	if prompt == nil {
		prompt = style.BuildPrompt
	}

	s := &Studio{
		catalog:  append([]style.Definition(nil), catalog...),
		index:    make(map[string]int, len(catalog)),
		slots:    make([]slot, len(catalog)),
		gen:      opts.Generator,
		logger:   logger,
		baseCtx:  baseCtx,
		timeout:  opts.RequestTimeout,
		onChange: opts.OnChange,
		prompt:   prompt,
		active:   time.Now(),
	}
	for i, def := range s.catalog {
		s.index[def.ID] = i
		s.slots[i] = slot{state: idle(def.ID)}
	}
	return s
}

// SubmitImage replaces the source image and starts one generation per style.
// It returns without waiting for any of them.
func (s *Studio) SubmitImage(encoded string) {
	if encoded == "" {
		s.logger.Debug("empty image ignored")
		return
	}

	s.mu.Lock()
	s.source = encoded
	s.active = time.Now()
	launches := make([]launch, 0, len(s.slots))
	changed := make([]change, 0, len(s.slots))
	for i := range s.slots {
		launches = append(launches, s.startLocked(i))
		changed = append(changed, s.changeLocked(i))
	}
	s.mu.Unlock()

	s.logger.Info("image submitted", "styles", len(launches))
	s.notify(changed...)
	for _, l := range launches {
		s.run(l)
	}
}

// Retry starts a new generation for one style. It reports false and changes
// nothing when no source image is set or the style is unknown.
func (s *Studio) Retry(styleID string) bool {
	s.mu.Lock()
	i, ok := s.index[styleID]
	if !ok || s.source == "" {
		s.mu.Unlock()
		s.logger.Debug("retry ignored", "style", styleID, "known", ok)
		return false
	}
	s.active = time.Now()
	l := s.startLocked(i)
	c := s.changeLocked(i)
	s.mu.Unlock()

	s.logger.Info("retry", "style", styleID)
	s.notify(c)
	s.run(l)
	return true
}

// Reset clears the source image and returns every style to idle. Generations
// still in flight are left running; their results are discarded.
func (s *Studio) Reset() {
	s.mu.Lock()
	s.source = ""
	s.active = time.Now()
	changed := make([]change, 0, len(s.slots))
	for i := range s.slots {
		s.slots[i].token++
		s.slots[i].state = idle(s.catalog[i].ID)
		changed = append(changed, s.changeLocked(i))
	}
	s.mu.Unlock()

	s.logger.Info("reset")
	s.notify(changed...)
}

func (s *Studio) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make([]State, len(s.slots))
	for i, sl := range s.slots {
		states[i] = sl.state
	}
	return Snapshot{Source: s.source, States: states}
}

func (s *Studio) Catalog() []style.Definition {
	return append([]style.Definition(nil), s.catalog...)
}

// Wait blocks until every generation launched so far has settled.
func (s *Studio) Wait() {
	s.inflight.Wait()
}

func (s *Studio) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Studio) startLocked(i int) launch {
	s.slots[i].token++
	s.slots[i].state = loading(s.catalog[i].ID)
	return launch{index: i, token: s.slots[i].token, source: s.source}
}

func (s *Studio) run(l launch) {
	def := s.catalog[l.index]
	prompt := s.prompt(def)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx := s.baseCtx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		start := time.Now()
		imageURL, err := s.gen.Generate(ctx, l.source, prompt)
		s.logger.Debug("generation settled", "style", def.ID, "dur_ms", time.Since(start).Milliseconds(), "ok", err == nil)
		s.settle(l, imageURL, err)
	}()
}

func (s *Studio) settle(l launch, imageURL string, err error) {
	def := s.catalog[l.index]

	var next State
	switch {
	case err != nil:
		next = failed(def.ID, errorMessage(err))
	case imageURL == "":
		next = failed(def.ID, DefaultErrorMessage)
	default:
		next = succeeded(def.ID, imageURL)
	}

	s.mu.Lock()
	if s.slots[l.index].token != l.token {
		s.mu.Unlock()
		s.logger.Debug("stale generation discarded", "style", def.ID, "token", l.token)
		return
	}
	s.slots[l.index].state = next
	c := s.changeLocked(l.index)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("generation failed", "style", def.ID, "err", err)
	}
	s.notify(c)
}

// changeLocked records a transition of slot i for delivery to OnChange.
func (s *Studio) changeLocked(i int) change {
	s.slots[i].version++
	return change{index: i, version: s.slots[i].version, state: s.slots[i].state}
}

func (s *Studio) notify(changes ...change) {
	if s.onChange == nil {
		return
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	current := make([]State, 0, len(changes))
	for _, c := range changes {
		if s.slots[c.index].version == c.version {
			current = append(current, c.state)
		}
	}
	s.mu.Unlock()

	for _, st := range current {
		s.onChange(st)
	}
}

func errorMessage(err error) string {
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return DefaultErrorMessage
}
