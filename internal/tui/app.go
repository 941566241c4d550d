package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/pipegraph/internal/domain"
	"github.com/waabox/pipegraph/internal/graph"
	"github.com/waabox/pipegraph/internal/layout"
	"github.com/waabox/pipegraph/internal/metrics"
	"github.com/waabox/pipegraph/internal/viewstate"
)

const (
	defaultPollInterval = 10 * time.Second
	fetchTimeout        = 30 * time.Second
)

// PipelinesLoadedMsg is sent when pipelines have been fetched from the provider.
// It is exported so that tests can inject it directly into AppModel.Update.
type PipelinesLoadedMsg struct {
	Pipelines []domain.Pipeline
	Err       error
}

// PipelineDetailMsg is sent when a pipeline graph has been fetched. Seq ties
// the response to the request that produced it; a response older than the
// one already applied is dropped.
type PipelineDetailMsg struct {
	Seq      int
	Pipeline domain.Pipeline
	Err      error
	// CalloutsChecked is set on the first fetch of a pipeline, together with
	// the hover tip lookup result.
	CalloutsChecked bool
	HintDismissed   bool
	CalloutErr      error
}

// CalloutDismissedMsg reports the outcome of recording a dismissed tip.
type CalloutDismissedMsg struct {
	Err error
}

// tickMsg is sent by the auto-refresh ticker.
type tickMsg struct{}

// loadingDoneMsg is sent when the view-switch loading window ends.
type loadingDoneMsg struct{}

// viewState indicates the current navigation level.
type viewState int

const (
	viewPipelines viewState = iota
	viewGraph
)

// Options carries the collaborators of AppModel. Every field is optional.
type Options struct {
	// Advisor supplies the server's polling advice.
	Advisor domain.PollAdvisor
	// Callouts records the dismissed hover tip.
	Callouts domain.CalloutStore
	// Prefs stores the last chosen view.
	Prefs        viewstate.Preferences
	Recorder     *metrics.Recorder
	Logger       *slog.Logger
	PollInterval time.Duration
	// MinLoading overrides the loading window after a view switch.
	MinLoading time.Duration
	Clock      func() time.Time
}

// AppModel is the root Bubbletea model for pipegraph.
type AppModel struct {
	repo     domain.Repository
	provider domain.PipelineProvider
	opts     Options
	logger   *slog.Logger

	controller *viewstate.Controller
	callouts   *deferredCallouts
	adapter    layout.Adapter

	// Navigation
	view viewState
	// Pipeline level
	list             PipelineListModel
	selectedPipeline domain.Pipeline
	// Graph level
	snapshot    *layout.Snapshot
	graph       GraphModel
	links       []graph.Link
	initialized bool
	// fetchSeq numbers detail requests. appliedSeq is the newest request whose
	// response was applied; responses at or below it are stale.
	fetchSeq   int
	appliedSeq int
	// General state
	spinner       spinner.Model
	loading       bool
	detailLoading bool
	alert         error
	notice        string
	err           error
	width         int
	height        int
}

// NewAppModel creates the root application model.
func NewAppModel(repo domain.Repository, provider domain.PipelineProvider, opts Options) AppModel {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	callouts := newDeferredCallouts()
	ctrlOpts := []viewstate.Option{viewstate.WithLogger(logger)}
	if opts.MinLoading > 0 {
		ctrlOpts = append(ctrlOpts, viewstate.WithMinLoading(opts.MinLoading))
	}
	if opts.Clock != nil {
		ctrlOpts = append(ctrlOpts, viewstate.WithClock(opts.Clock))
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = AccentStyle

	return AppModel{
		repo:       repo,
		provider:   provider,
		opts:       opts,
		logger:     logger,
		controller: viewstate.New(opts.Prefs, callouts, ctrlOpts...),
		callouts:   callouts,
		adapter:    layout.Adapter{Logger: logger},
		list:       NewPipelineListModel(nil),
		spinner:    s,
		loading:    true,
	}
}

// Init triggers the initial pipeline load.
func (m AppModel) Init() tea.Cmd {
	return tea.Batch(m.loadPipelines(), m.spinner.Tick, tickEvery(m.pollInterval()))
}

// Controller exposes the view state, for tests.
func (m AppModel) Controller() *viewstate.Controller { return m.controller }

// Graph exposes the graph model, for tests.
func (m AppModel) Graph() GraphModel { return m.graph }

// Alert returns the last fetch error shown above the graph.
func (m AppModel) Alert() error { return m.alert }

func (m AppModel) loadPipelines() tea.Cmd {
	provider, repo := m.provider, m.repo
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		pipelines, err := provider.ListPipelines(ctx, repo)
		return PipelinesLoadedMsg{Pipelines: pipelines, Err: err}
	}
}

func (m AppModel) loadPipelineDetail(seq int, id domain.PipelineID, checkCallouts bool) tea.Cmd {
	provider, repo, store := m.provider, m.repo, m.opts.Callouts
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		p, err := provider.GetPipeline(ctx, repo, id)
		msg := PipelineDetailMsg{Seq: seq, Pipeline: p, Err: err}
		if checkCallouts && store != nil {
			msg.CalloutsChecked = true
			msg.HintDismissed, msg.CalloutErr = store.IsDismissed(ctx, viewstate.HoverTipCallout)
		}
		return msg
	}
}

func (m AppModel) flushCallouts() tea.Cmd {
	features := m.callouts.drain()
	store := m.opts.Callouts
	if len(features) == 0 || store == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		for _, f := range features {
			if err := store.Dismiss(ctx, f); err != nil {
				return CalloutDismissedMsg{Err: err}
			}
		}
		return CalloutDismissedMsg{}
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	if d <= 0 {
		return nil
	}
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return tickMsg{}
	})
}

// pollInterval follows the server's advice when there is one. A negative
// value stops polling.
func (m AppModel) pollInterval() time.Duration {
	if m.opts.Advisor != nil {
		if d := m.opts.Advisor.PollInterval(); d != 0 {
			return d
		}
	}
	if m.opts.PollInterval > 0 {
		return m.opts.PollInterval
	}
	return defaultPollInterval
}

func (m AppModel) busy() bool {
	return m.loading || m.detailLoading || m.controller.Loading()
}

// Update handles all incoming messages and key events.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadingDoneMsg:
		return m, nil

	case PipelinesLoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.logger.Warn("listing pipelines failed", "repo", m.repo.ProjectPath, "err", msg.Err)
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.list = m.list.UpdatePipelines(msg.Pipelines)
		if m.view == viewPipelines {
			m.selectedPipeline = m.list.SelectedPipeline()
		}

	case PipelineDetailMsg:
		return m.applyDetail(msg)

	case CalloutDismissedMsg:
		if msg.Err != nil {
			m.logger.Warn("recording dismissed tip failed", "err", msg.Err)
		}

	case tickMsg:
		next := m.pollInterval()
		cmds := []tea.Cmd{tickEvery(next)}
		switch {
		case m.view == viewGraph && m.selectedPipeline.IID != "":
			m.fetchSeq++
			cmds = append(cmds, m.loadPipelineDetail(m.fetchSeq, m.selectedPipeline.IID, !m.initialized))
		case m.view == viewPipelines:
			cmds = append(cmds, m.loadPipelines())
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "ctrl+r":
			return m.refresh()
		}
		switch m.view {
		case viewPipelines:
			return m.updatePipelines(msg)
		case viewGraph:
			return m.updateGraph(msg)
		}
	}
	return m, nil
}

func (m AppModel) refresh() (tea.Model, tea.Cmd) {
	if m.view == viewGraph && m.selectedPipeline.IID != "" {
		m.fetchSeq++
		m.detailLoading = m.snapshot == nil
		return m, tea.Batch(m.loadPipelineDetail(m.fetchSeq, m.selectedPipeline.IID, !m.initialized), m.spinner.Tick)
	}
	m.loading = true
	return m, tea.Batch(m.loadPipelines(), m.spinner.Tick)
}

func (m AppModel) applyDetail(msg PipelineDetailMsg) (tea.Model, tea.Cmd) {
	if msg.Seq <= m.appliedSeq {
		m.logger.Debug("dropping stale pipeline response", "seq", msg.Seq, "applied", m.appliedSeq)
		return m, nil
	}
	m.appliedSeq = msg.Seq
	m.detailLoading = false
	if msg.Err != nil {
		m.opts.Recorder.ObserveFetch(metrics.OutcomeError)
		m.logger.Warn("fetching pipeline failed", "pipeline", m.selectedPipeline.IID, "err", msg.Err)
		m.alert = msg.Err
		return m, nil
	}
	m.opts.Recorder.ObserveFetch(metrics.OutcomeOK)
	m.alert = nil
	m.snapshot = layout.NewSnapshot(msg.Pipeline)

	if !m.initialized {
		if msg.CalloutsChecked {
			m.callouts.set(viewstate.HoverTipCallout, msg.HintDismissed, msg.CalloutErr)
		}
		m.controller.Init(context.Background(), msg.Pipeline.UsesNeeds)
		m.initialized = true
	} else {
		m.controller.Sync(msg.Pipeline.UsesNeeds)
	}
	m = m.relayout()
	m = m.refreshLinks()
	return m, nil
}

// relayout rebuilds the columns for the current view and highlight.
func (m AppModel) relayout() AppModel {
	if m.snapshot == nil {
		return m
	}
	before := m.highlighted()
	l := m.adapter.Build(m.snapshot, m.controller.ViewType(), before)
	if l.Fallback != nil {
		m.opts.Recorder.ObserveFallback()
	}
	m.graph = m.graph.WithLayout(l)
	// The cursor lands on another group when the old one is gone.
	if after := m.highlighted(); after != before {
		m.graph = m.graph.WithLayout(m.adapter.Build(m.snapshot, m.controller.ViewType(), after))
	}
	return m
}

// highlighted is the group under the cursor while links are drawn.
func (m AppModel) highlighted() string {
	if !m.controller.LinksVisible() {
		return ""
	}
	g, ok := m.graph.SelectedGroup()
	if !ok {
		return ""
	}
	return g.Name
}

// refreshLinks recomputes the drawn links and records how long it took.
func (m AppModel) refreshLinks() AppModel {
	if m.snapshot == nil || !m.controller.LinksVisible() {
		m.links = nil
		return m
	}
	start := time.Now()
	m.links = m.snapshot.Edges().Links()
	m.opts.Recorder.ObserveLinks(time.Since(start), len(m.links), m.snapshot.Pipeline().GroupCount())
	return m
}

func (m AppModel) openPipeline(p domain.Pipeline) (tea.Model, tea.Cmd) {
	m.selectedPipeline = p
	m.view = viewGraph
	m.snapshot = nil
	m.graph = GraphModel{}
	m.links = nil
	m.alert = nil
	m.notice = ""
	m.initialized = false
	m.detailLoading = true
	m.appliedSeq = m.fetchSeq
	m.fetchSeq++
	return m, tea.Batch(m.loadPipelineDetail(m.fetchSeq, p.IID, true), m.spinner.Tick)
}

func (m AppModel) updatePipelines(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "down", "j":
		m.list = m.list.MoveDown()
		m.selectedPipeline = m.list.SelectedPipeline()
	case "up", "k":
		m.list = m.list.MoveUp()
		m.selectedPipeline = m.list.SelectedPipeline()
	case "enter":
		if len(m.list.Pipelines()) > 0 {
			return m.openPipeline(m.list.SelectedPipeline())
		}
	}
	return m, nil
}

func (m AppModel) updateGraph(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""
	switch msg.String() {
	case "down", "j":
		m.graph = m.graph.MoveDown()
		return m.relayout(), nil
	case "up", "k":
		m.graph = m.graph.MoveUp()
		return m.relayout(), nil
	case "right", "l":
		m.graph = m.graph.MoveRight()
		return m.relayout(), nil
	case "left", "h":
		m.graph = m.graph.MoveLeft()
		return m.relayout(), nil
	case "v":
		return m.toggleView()
	case "d":
		m.controller.ToggleLinks()
		if !m.controller.LinksVisible() && m.controller.ShowLinks() {
			m.notice = "Links are drawn in the layer view."
		}
		m = m.relayout()
		return m.refreshLinks(), nil
	case "t":
		if !m.controller.HintVisible() {
			return m, nil
		}
		if err := m.controller.DismissHint(context.Background()); err != nil {
			m.logger.Warn("dismissing tip failed", "err", err)
		}
		return m, m.flushCallouts()
	case "x":
		m.alert = nil
		return m, nil
	case "esc":
		m.view = viewPipelines
		m.appliedSeq = m.fetchSeq
		m.detailLoading = false
		m.alert = nil
		return m, nil
	}
	return m, nil
}

func (m AppModel) toggleView() (tea.Model, tea.Cmd) {
	if err := m.controller.ToggleView(); err != nil {
		if errors.Is(err, viewstate.ErrLayersUnavailable) {
			m.notice = "This pipeline does not use needs; only the stage view is available."
			return m, nil
		}
		m.logger.Warn("saving view preference failed", "err", err)
	}
	m = m.relayout()
	m = m.refreshLinks()
	remaining := m.controller.LoadingRemaining()
	if remaining <= 0 {
		return m, nil
	}
	return m, tea.Batch(m.spinner.Tick, tea.Tick(remaining, func(time.Time) tea.Msg {
		return loadingDoneMsg{}
	}))
}

const separator = "────────────────────────────────────────────────────────────\n"

// View renders the full TUI.
func (m AppModel) View() string {
	switch m.view {
	case viewGraph:
		return m.renderGraphView()
	default:
		return m.renderPipelinesView()
	}
}

func (m AppModel) header() string {
	return fmt.Sprintf(" pipegraph | %s / ⎇ %s %s / %s\n",
		m.repo.ProjectPath, m.selectedPipeline.Branch,
		shortSHA(m.selectedPipeline.CommitSHA),
		firstLine(m.selectedPipeline.CommitMsg))
}

func (m AppModel) renderPipelinesView() string {
	if m.loading && len(m.list.Pipelines()) == 0 {
		return m.spinner.View() + " Loading pipelines...\n"
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress 'ctrl+r' to retry or 'q' to quit.\n", m.err)
	}
	title := " Pipelines\n"
	statusBar := fmt.Sprintf(" #%s by %s\n", m.selectedPipeline.IID, m.selectedPipeline.Author)
	footer := " ↑/↓: navigate   enter: open graph   ctrl+r: refresh   q: quit\n"
	return m.header() + separator + title + m.list.View() + "\n" + separator + statusBar + separator + footer
}

func (m AppModel) renderGraphView() string {
	var sb strings.Builder
	sb.WriteString(m.header())
	sb.WriteString(separator)
	sb.WriteString(m.viewBar())
	sb.WriteString(separator)

	if m.alert != nil {
		sb.WriteString(AlertStyle.Render("An error occurred while fetching the pipeline: "+m.alert.Error()) + "\n")
	}
	if m.notice != "" {
		sb.WriteString(HintStyle.Render(m.notice) + "\n")
	}
	if fb := m.graph.Layout().Fallback; fb != nil && m.controller.ViewType() == layout.LayerView {
		sb.WriteString(WarningStyle.Render("Cannot group jobs by dependencies, showing stages: "+fb.Error()) + "\n")
	}

	switch {
	case m.controller.Loading() || (m.detailLoading && m.snapshot == nil):
		sb.WriteString(m.spinner.View() + " Loading pipeline graph...\n")
	case m.snapshot == nil:
		sb.WriteString(MutedStyle.Render("No pipeline data.") + "\n")
	default:
		sb.WriteString(m.graph.View() + "\n")
		if m.controller.LinksVisible() {
			sb.WriteString(m.renderLinks())
		}
		if m.controller.HintVisible() {
			sb.WriteString(HintStyle.Render("Tip: move the cursor over a job to see the jobs it depends on. Press t to dismiss.") + "\n")
		}
		sb.WriteString(separator)
		sb.WriteString(m.renderSelection())
	}

	sb.WriteString(separator)
	sb.WriteString(m.footer())
	return sb.String()
}

func (m AppModel) viewBar() string {
	title := fmt.Sprintf(" Pipeline #%s", m.selectedPipeline.IID)
	if !m.controller.SelectorVisible() {
		return title + "\n"
	}
	stage, layer := "stage", "job dependencies"
	if m.controller.ViewType() == layout.LayerView {
		layer = BoldStyle.Render("[" + layer + "]")
	} else {
		stage = BoldStyle.Render("[" + stage + "]")
	}
	bar := fmt.Sprintf("%s   group jobs by: %s %s", title, stage, layer)
	if m.controller.ViewType() == layout.LayerView {
		links := "off"
		if m.controller.ShowLinks() {
			links = "on"
		}
		bar += "   show dependencies: " + links
	}
	return bar + "\n"
}

func (m AppModel) renderLinks() string {
	if len(m.links) == 0 {
		return MutedStyle.Render(" no explicit needs") + "\n"
	}
	g, selected := m.graph.SelectedGroup()
	members := make(map[string]bool)
	if selected {
		for _, j := range g.Jobs {
			members[j.Name] = true
		}
	}
	var sb strings.Builder
	for _, l := range m.links {
		line := fmt.Sprintf(" %s → %s", l.From, l.To)
		if members[l.From] || members[l.To] {
			sb.WriteString(AccentStyle.Render(line) + "\n")
			continue
		}
		sb.WriteString(MutedStyle.Render(line) + "\n")
	}
	return sb.String()
}

func (m AppModel) renderSelection() string {
	if g, ok := m.graph.SelectedGroup(); ok {
		return NewJobDetailModel(g, m.snapshot.Edges()).View()
	}
	if e, ok := m.graph.SelectedLinked(); ok {
		label := e.Label
		if label == "" {
			label = "Multi-project"
		}
		return fmt.Sprintf("%s %s pipeline %s #%s  %s\n",
			styledIcon(e.Pipeline.Status.Kind), label, e.Pipeline.ProjectPath,
			e.Pipeline.IID, SecondaryStyle.Render(e.Pipeline.Status.Label))
	}
	return ""
}

func (m AppModel) footer() string {
	keys := []string{"←/→/↑/↓: move"}
	if m.controller.SelectorVisible() {
		keys = append(keys, "v: view")
	}
	if m.controller.ViewType() == layout.LayerView {
		keys = append(keys, "d: dependencies")
	}
	if m.controller.HintVisible() {
		keys = append(keys, "t: dismiss tip")
	}
	if m.alert != nil {
		keys = append(keys, "x: dismiss alert")
	}
	keys = append(keys, "ctrl+r: refresh", "esc: back", "q: quit")
	return " " + strings.Join(keys, "   ") + "\n"
}

// Run starts the Bubbletea program.
func Run(model AppModel) error {
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
