// Package tui provides the interactive Bubble Tea monitor for genmeter.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AngeloRai/genmeter/internal/analytics"
	"github.com/AngeloRai/genmeter/internal/cli"
	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/pipeline"
	"github.com/AngeloRai/genmeter/internal/source"
	"github.com/AngeloRai/genmeter/internal/store"
)

// DataLoadedMsg is sent when the data pipeline finishes.
type DataLoadedMsg struct {
	Sessions []pipeline.SessionRecord
	LoadTime time.Duration
	Err      error
}

// ProgressMsg reports file parsing progress.
type ProgressMsg struct {
	Current int
	Total   int
}

type tickMsg time.Time

// Options configure the monitor.
type Options struct {
	DataDir         string
	Days            int
	Project         string
	UseCache        bool
	RefreshInterval time.Duration
	ParseOptions    source.ParseOptions

	MaxSessionCostUSD float64
	MaxTaskCostUSD    float64
	BaseLevels        map[string]bool
	Weights           model.HealthWeights
}

// Monitor is the root Bubble Tea model: a single-screen live dashboard over
// the session logs, refreshed on an interval.
type Monitor struct {
	opts Options

	sessions []pipeline.SessionRecord
	totals   pipeline.Totals
	models   []model.RollupBucket
	levels   []model.RollupBucket
	health   model.HierarchyHealth
	warnings []warningLine

	loaded      bool
	refreshing  bool
	loadTime    time.Duration
	lastRefresh time.Time
	loadErr     error

	width  int
	height int

	spinner     spinner.Model
	budgetBar   progress.Model
	progressCur int
	progressMax int
	loadSub     chan tea.Msg
}

type warningLine struct {
	sessionID string
	warning   analytics.LimitWarning
}

var (
	accentColor = lipgloss.Color("#3AA99F")
	mutedColor  = lipgloss.Color("#6F6E69")

	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	labelStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFCF0"))
)

// NewMonitor creates the monitor model.
func NewMonitor(opts Options) Monitor {
	if opts.RefreshInterval < 5*time.Second {
		opts.RefreshInterval = 30 * time.Second
	}
	if opts.BaseLevels == nil {
		opts.BaseLevels = model.DefaultBaseLevels
	}
	if opts.Weights == (model.HealthWeights{}) {
		opts.Weights = model.DefaultHealthWeights
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accentColor)

	return Monitor{
		opts:      opts,
		spinner:   sp,
		budgetBar: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		loadSub:   make(chan tea.Msg, 1),
	}
}

// Init implements tea.Model.
func (m Monitor) Init() tea.Cmd {
	return tea.Batch(
		loadDataCmd(m.opts, m.loadSub),
		waitForLoad(m.loadSub),
		m.spinner.Tick,
		tickCmd(m.opts.RefreshInterval),
	)
}

func loadDataCmd(opts Options, sub chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		go func() {
			start := time.Now()
			progressFn := func(current, total int) {
				select {
				case sub <- ProgressMsg{Current: current, Total: total}:
				default:
				}
			}

			var sessions []pipeline.SessionRecord
			var err error
			if opts.UseCache {
				if cache, cacheErr := store.Open(pipeline.CachePath()); cacheErr == nil {
					cr, loadErr := pipeline.LoadWithCache(opts.DataDir, opts.ParseOptions, cache, progressFn)
					_ = cache.Close()
					if loadErr == nil {
						sessions = cr.Sessions
					} else {
						err = loadErr
					}
				}
			}
			if sessions == nil && err == nil {
				var lr *pipeline.LoadResult
				lr, err = pipeline.Load(opts.DataDir, opts.ParseOptions, progressFn)
				if err == nil {
					sessions = lr.Sessions
				}
			}

			sub <- DataLoadedMsg{Sessions: sessions, LoadTime: time.Since(start), Err: err}
		}()
		return nil
	}
}

func waitForLoad(sub chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-sub }
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.budgetBar.Width = min(msg.Width-20, 40)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			if !m.refreshing {
				m.refreshing = true
				return m, tea.Batch(loadDataCmd(m.opts, m.loadSub), waitForLoad(m.loadSub))
			}
		}
		return m, nil

	case ProgressMsg:
		m.progressCur = msg.Current
		m.progressMax = msg.Total
		return m, waitForLoad(m.loadSub)

	case DataLoadedMsg:
		m.loaded = true
		m.refreshing = false
		m.loadTime = msg.LoadTime
		m.lastRefresh = time.Now()
		m.loadErr = msg.Err
		if msg.Err == nil {
			m.sessions = msg.Sessions
			m.recompute()
		}
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd(m.opts.RefreshInterval)}
		if m.loaded && !m.refreshing {
			m.refreshing = true
			cmds = append(cmds, loadDataCmd(m.opts, m.loadSub), waitForLoad(m.loadSub))
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Monitor) recompute() {
	now := time.Now()
	since := now.AddDate(0, 0, -m.opts.Days)

	filtered := pipeline.FilterByProject(m.sessions, m.opts.Project)

	m.totals = pipeline.Aggregate(filtered, since, now)
	m.models = pipeline.AggregateBuckets(filtered, pipeline.ByModel, since, now)
	m.levels = pipeline.AggregateBuckets(filtered, pipeline.ByLevel, since, now)
	m.health = pipeline.AggregateHealth(filtered, m.opts.BaseLevels, m.opts.Weights, since, now)

	m.warnings = m.warnings[:0]
	if m.opts.MaxSessionCostUSD > 0 || m.opts.MaxTaskCostUSD > 0 {
		for _, sr := range pipeline.FilterByTime(filtered, since, now) {
			for _, w := range analytics.CheckStoredLimits(sr.Summary, sr.Tasks, m.opts.MaxSessionCostUSD, m.opts.MaxTaskCostUSD) {
				m.warnings = append(m.warnings, warningLine{sessionID: sr.Summary.SessionID, warning: w})
			}
		}
		sort.Slice(m.warnings, func(i, j int) bool {
			return m.warnings[i].warning.Amount > m.warnings[j].warning.Amount
		})
	}
}

// View implements tea.Model.
func (m Monitor) View() string {
	if !m.loaded {
		return m.viewLoading()
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(cli.RenderTitle(fmt.Sprintf("genmeter · last %d days", m.opts.Days)))
	b.WriteString("\n\n")

	if m.loadErr != nil {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  load error: %v", m.loadErr)))
		b.WriteString("\n\n")
	}

	b.WriteString(m.viewTotals())
	b.WriteString(m.viewBudget())
	b.WriteString(m.viewModels())
	b.WriteString(m.viewHealth())
	b.WriteString(m.viewWarnings())

	status := fmt.Sprintf("  refreshed %s ago · load %dms · r refresh · q quit",
		cli.FormatDuration(time.Since(m.lastRefresh).Round(time.Second)),
		m.loadTime.Milliseconds())
	if m.refreshing {
		status = fmt.Sprintf("  %s refreshing…", m.spinner.View())
	}
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(status))
	b.WriteString("\n")

	return b.String()
}

func (m Monitor) viewLoading() string {
	var b strings.Builder
	b.WriteString("\n\n  ")
	b.WriteString(m.spinner.View())
	b.WriteString(textStyle.Render(" Loading session logs…"))
	b.WriteString("\n\n")
	if m.progressMax > 0 {
		b.WriteString("  ")
		b.WriteString(cli.RenderProgressBar(m.progressCur, m.progressMax, 30))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Monitor) viewTotals() string {
	t := m.totals
	var b strings.Builder
	b.WriteString(sectionStyle.Render("  Usage"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s %s   %s %s   %s %d (%d active)   %s %s\n",
		labelStyle.Render("cost"), textStyle.Render(cli.FormatCost(t.TotalCost)),
		labelStyle.Render("tokens"), textStyle.Render(cli.FormatTokens(t.TotalTokens)),
		labelStyle.Render("sessions"), t.Sessions, t.ActiveSessions,
		labelStyle.Render("success"), cli.RenderSuccessRate(t.SuccessRate),
	))
	b.WriteString(fmt.Sprintf("  %s %d/%d   %s %s/day\n\n",
		labelStyle.Render("tasks done"), t.CompletedTasks, t.TaskCount,
		labelStyle.Render("burn"), cli.FormatCost(t.CostPerDay),
	))
	return b.String()
}

func (m Monitor) viewBudget() string {
	if m.opts.MaxSessionCostUSD <= 0 || m.totals.Sessions == 0 {
		return ""
	}

	// Utilization of the worst session against the per-session budget.
	var worst float64
	for _, sr := range m.sessions {
		if sr.Summary.TotalCost > worst {
			worst = sr.Summary.TotalCost
		}
	}
	pct := worst / m.opts.MaxSessionCostUSD
	if pct > 1 {
		pct = 1
	}

	var b strings.Builder
	b.WriteString(sectionStyle.Render("  Session budget"))
	b.WriteString("\n  ")
	b.WriteString(m.budgetBar.ViewAs(pct))
	b.WriteString(labelStyle.Render(fmt.Sprintf("  worst %s of %s",
		cli.FormatCost(worst), cli.FormatCost(m.opts.MaxSessionCostUSD))))
	b.WriteString("\n\n")
	return b.String()
}

func (m Monitor) viewModels() string {
	if len(m.models) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(sectionStyle.Render("  By model"))
	b.WriteString("\n")

	maxCost := m.models[0].TotalCost
	shown := m.models
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, bucket := range shown {
		b.WriteString(fmt.Sprintf("  %-22s %10s %8s  %s\n",
			cli.Truncate(bucket.Key, 22),
			cli.FormatCost(bucket.TotalCost),
			cli.FormatTokens(bucket.TotalTokens),
			cli.RenderHorizontalBar(bucket.TotalCost, maxCost, 20),
		))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Monitor) viewHealth() string {
	if len(m.levels) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(sectionStyle.Render("  Hierarchy"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s %s   %s %s   %s %d/%d base\n",
		labelStyle.Render("index"), textStyle.Render(cli.FormatScore(m.health.ReusabilityIndex)),
		labelStyle.Render("base ratio"), textStyle.Render(cli.FormatPercent(m.health.BaseRatio)),
		labelStyle.Render("artifacts"), m.health.BaseArtifacts, m.health.BaseArtifacts+m.health.CompositeArtifacts,
	))
	for _, bucket := range m.levels {
		b.WriteString(fmt.Sprintf("  %-12s %4d tasks %10s\n",
			bucket.Key, bucket.TaskCount, cli.FormatCost(bucket.TotalCost)))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Monitor) viewWarnings() string {
	if len(m.warnings) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(sectionStyle.Render("  Limit warnings"))
	b.WriteString("\n")
	shown := m.warnings
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, wl := range shown {
		b.WriteString("  ")
		b.WriteString(labelStyle.Render(cli.Truncate(wl.sessionID, 12) + " "))
		b.WriteString(cli.RenderWarning(wl.warning))
	}
	return b.String()
}
