// Package viewstate holds the user-facing state of one graph session: which
// view is shown, whether dependency links are drawn, and whether the hover
// tip for links is still pending.
package viewstate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/waabox/pipegraph/internal/domain"
	"github.com/waabox/pipegraph/internal/layout"
)

const (
	// ViewTypeKey is the preference key storing the last chosen view.
	ViewTypeKey = "VIEW_TYPE_KEY"
	// HoverTipCallout is the callout recorded once the links hint is dismissed.
	HoverTipCallout = "pipeline_needs_hover_tip"
	// DefaultMinLoading is how long the loading indicator stays up after a view switch.
	DefaultMinLoading = 500 * time.Millisecond
)

// ErrLayersUnavailable is returned when the layer view is requested for a
// pipeline that does not use needs.
var ErrLayersUnavailable = errors.New("layer view requires a pipeline that uses needs")

// Preferences is a client-local key/value store.
type Preferences interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Controller is the view-state machine. It never changes state on its own:
// every transition is a method call made in response to the user.
type Controller struct {
	prefs      Preferences
	callouts   domain.CalloutStore
	now        func() time.Time
	minLoading time.Duration
	logger     *slog.Logger

	usesNeeds     bool
	view          layout.ViewType
	showLinks     bool
	hintDismissed bool
	loadingUntil  time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithMinLoading overrides DefaultMinLoading.
func WithMinLoading(d time.Duration) Option {
	return func(c *Controller) { c.minLoading = d }
}

// WithLogger sets the logger for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a controller in stage view. Call Init once the first snapshot arrives.
func New(prefs Preferences, callouts domain.CalloutStore, opts ...Option) *Controller {
	c := &Controller{
		prefs:      prefs,
		callouts:   callouts,
		now:        time.Now,
		minLoading: DefaultMinLoading,
		logger:     slog.Default(),
		view:       layout.StageView,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init sets the initial view from the stored preference, which is honored
// only when the pipeline uses needs, and loads the hover tip dismissal.
// A failing callout lookup leaves the tip pending.
func (c *Controller) Init(ctx context.Context, usesNeeds bool) {
	c.usesNeeds = usesNeeds
	c.view = layout.StageView
	if usesNeeds && c.prefs != nil {
		if stored, ok := c.prefs.Get(ViewTypeKey); ok {
			if v, err := layout.ParseViewType(stored); err == nil {
				c.view = v
			} else {
				c.logger.Warn("ignoring stored view type", "value", stored, "err", err)
			}
		}
	}
	if c.callouts != nil {
		dismissed, err := c.callouts.IsDismissed(ctx, HoverTipCallout)
		if err != nil {
			c.logger.Warn("could not load callouts", "err", err)
		}
		c.hintDismissed = dismissed
	}
}

// Sync applies a fresh snapshot's usesNeeds flag. A pipeline that stopped
// using needs is shown in stage view without touching the stored preference.
func (c *Controller) Sync(usesNeeds bool) {
	c.usesNeeds = usesNeeds
	if !usesNeeds {
		c.view = layout.StageView
	}
}

// ViewType returns the current view.
func (c *Controller) ViewType() layout.ViewType { return c.view }

// SelectorVisible reports whether the stage/layer selector is offered at all.
func (c *Controller) SelectorVisible() bool { return c.usesNeeds }

// SetViewType switches the view, starts the loading window and persists the
// choice. Selecting the current view is a no-op. A persistence failure is
// returned after the switch has taken effect.
func (c *Controller) SetViewType(v layout.ViewType) error {
	if v == c.view {
		return nil
	}
	if v == layout.LayerView && !c.usesNeeds {
		return ErrLayersUnavailable
	}
	c.view = v
	c.loadingUntil = c.now().Add(c.minLoading)
	if c.prefs == nil {
		return nil
	}
	return c.prefs.Set(ViewTypeKey, string(v))
}

// ToggleView flips between stage and layer view.
func (c *Controller) ToggleView() error {
	if c.view == layout.LayerView {
		return c.SetViewType(layout.StageView)
	}
	return c.SetViewType(layout.LayerView)
}

// Loading reports whether the loading indicator is still inside its minimum window.
func (c *Controller) Loading() bool {
	return c.now().Before(c.loadingUntil)
}

// LoadingRemaining returns how long the loading indicator has left.
func (c *Controller) LoadingRemaining() time.Duration {
	d := c.loadingUntil.Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}

// ShowLinks reports the raw links toggle, regardless of view.
func (c *Controller) ShowLinks() bool { return c.showLinks }

// SetShowLinks sets the links toggle.
func (c *Controller) SetShowLinks(on bool) { c.showLinks = on }

// ToggleLinks flips the links toggle.
func (c *Controller) ToggleLinks() { c.showLinks = !c.showLinks }

// LinksVisible reports whether links are drawn; they only exist in layer view.
func (c *Controller) LinksVisible() bool {
	return c.showLinks && c.view == layout.LayerView
}

// HintVisible reports whether the hover tip is shown: links are visible and
// the user has not dismissed it yet.
func (c *Controller) HintVisible() bool {
	return c.LinksVisible() && !c.hintDismissed
}

// HintDismissed reports whether the hover tip was dismissed.
func (c *Controller) HintDismissed() bool { return c.hintDismissed }

// DismissHint records the hover tip as dismissed. Repeated calls do nothing.
// The tip stays hidden for this session even if recording it fails.
func (c *Controller) DismissHint(ctx context.Context) error {
	if c.hintDismissed {
		return nil
	}
	c.hintDismissed = true
	if c.callouts == nil {
		return nil
	}
	return c.callouts.Dismiss(ctx, HoverTipCallout)
}
