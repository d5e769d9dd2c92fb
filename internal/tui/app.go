package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/christopherklint97/daylog/internal/lifecycle"
	"github.com/christopherklint97/daylog/internal/pm"
	"github.com/christopherklint97/daylog/internal/service"
)

type viewState int

const (
	loadingView viewState = iota
	suggestionView
	editView
	confirmationView
)

// DaySource loads the timeline shown next to the suggestions.
type DaySource interface {
	FetchDay(ctx context.Context, date, tz string) (*service.DayActivities, error)
}

type Result struct {
	Skipped bool
	Results []pm.SubmitResult
}

type loadedMsg struct {
	day *service.DayActivities
	err error
}

type generatedMsg struct {
	err error
}

type submitMsg struct {
	results []pm.SubmitResult
	err     error
}

type undoTickMsg struct{}

type App struct {
	state   viewState
	spinner spinner.Model
	edit    editModel
	result  *Result
	errMsg  string
	status  string

	ctrl    *lifecycle.Controller
	days    DaySource
	date    string
	day     *service.DayActivities
	timeout time.Duration
}

func NewApp(ctrl *lifecycle.Controller, days DaySource, date string) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return &App{
		state:   loadingView,
		spinner: s,
		ctrl:    ctrl,
		days:    days,
		date:    date,
		timeout: 90 * time.Second,
		status:  "Loading " + date + "...",
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.load())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.result = &Result{Skipped: true}
			return a, tea.Quit
		}
	case loadedMsg:
		return a.handleLoaded(msg)
	case generatedMsg:
		return a.handleGenerated(msg)
	case submitMsg:
		return a.handleSubmit(msg)
	case undoTickMsg:
		return a, nil
	}

	switch a.state {
	case loadingView:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	case suggestionView:
		return a.updateSuggestions(msg)
	case editView:
		return a.updateEdit(msg)
	case confirmationView:
		if _, ok := msg.(tea.KeyMsg); ok {
			return a, tea.Quit
		}
	}
	return a, nil
}

func (a *App) View() string {
	switch a.state {
	case loadingView:
		return a.spinner.View() + " " + a.status
	case suggestionView:
		return a.suggestionsView()
	case editView:
		return a.edit.View()
	case confirmationView:
		return a.confirmationView()
	}
	return ""
}

func (a *App) GetResult() *Result {
	return a.result
}

func (a *App) load() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.ctrl.SetDate(ctx, a.date); err != nil {
			return loadedMsg{err: err}
		}
		day, err := a.days.FetchDay(ctx, a.date, "")
		return loadedMsg{day: day, err: err}
	}
}

func (a *App) generate(force bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		return generatedMsg{err: a.ctrl.Generate(ctx, force)}
	}
}

func (a *App) submit() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		results, err := a.ctrl.Submit(ctx)
		return submitMsg{results: results, err: err}
	}
}

func undoTick() tea.Cmd {
	return tea.Tick(lifecycle.UndoWindow+100*time.Millisecond, func(time.Time) tea.Msg { return undoTickMsg{} })
}

func (a *App) handleLoaded(msg loadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		a.state = confirmationView
		a.errMsg = msg.err.Error()
		return a, nil
	}
	a.day = msg.day
	a.status = "Generating suggestions..."
	return a, a.generate(false)
}

func (a *App) handleGenerated(msg generatedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil && !errors.Is(msg.err, lifecycle.ErrStale) {
		a.errMsg = msg.err.Error()
		if len(a.ctrl.View().Suggestions) == 0 {
			a.state = confirmationView
			return a, nil
		}
	} else {
		a.errMsg = ""
	}
	a.state = suggestionView
	return a, nil
}

func (a *App) handleSubmit(msg submitMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		// approvals stay in place so the user can retry
		a.errMsg = msg.err.Error()
		a.state = suggestionView
		return a, nil
	}
	a.errMsg = ""
	a.result = &Result{Results: msg.results}
	a.state = confirmationView
	return a, nil
}

func (a *App) updateSuggestions(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return a, nil
	}

	a.errMsg = ""
	focused := a.ctrl.Focused()
	var err error

	switch keyMsg.String() {
	case "down", "j", "tab":
		a.ctrl.FocusNext()
	case "up", "k", "shift+tab":
		a.ctrl.FocusPrev()
	case "enter", " ":
		if focused != "" {
			err = a.ctrl.Focus(focused)
		} else {
			a.ctrl.FocusNext()
		}
	case "a":
		if focused != "" {
			err = a.ctrl.Approve(focused)
		}
	case "x":
		if focused != "" {
			if err = a.ctrl.Reject(focused); err == nil {
				return a, undoTick()
			}
		}
	case "u":
		a.ctrl.Undo()
	case "A":
		err = a.ctrl.ApproveAll()
	case "e":
		if focused == "" {
			break
		}
		view := a.ctrl.View()
		if view.Locked {
			err = lifecycle.ErrLocked
			break
		}
		for _, s := range view.Suggestions {
			if s.ID == focused {
				a.edit = newEditModel(s, view.Context)
				a.state = editView
			}
		}
	case "g":
		a.state = loadingView
		a.status = "Regenerating suggestions..."
		return a, tea.Batch(a.spinner.Tick, a.generate(true))
	case "s":
		a.state = loadingView
		a.status = "Submitting..."
		return a, tea.Batch(a.spinner.Tick, a.submit())
	case "q":
		a.result = &Result{Skipped: true}
		return a, tea.Quit
	}

	if err != nil {
		a.errMsg = err.Error()
	}
	return a, nil
}

func (a *App) updateEdit(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "esc" && !a.edit.editing {
		if a.edit.changed {
			if err := a.ctrl.Edit(a.edit.suggestion.ID, a.edit.changes()); err != nil {
				a.errMsg = err.Error()
			}
		}
		a.state = suggestionView
		return a, nil
	}

	var cmd tea.Cmd
	a.edit, cmd = a.edit.Update(msg)
	return a, cmd
}

func (a *App) suggestionsView() string {
	view := a.ctrl.View()
	var sb strings.Builder

	sb.WriteString(renderSuggestions(view, a.ctrl.ApprovedHours()))
	if a.day != nil {
		sb.WriteString("\n")
		sb.WriteString(renderTimeline(a.day, a.ctrl.Highlighted))
	}
	if a.errMsg != "" {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render("Error: ") + a.errMsg)
	}

	help := "j/k: nav • enter: focus • [a]pprove • [x] reject • [A]pprove all • [e]dit • [s]ubmit • [g] regenerate • [q]uit"
	if view.Locked {
		help = "locked • [g] regenerate • [q]uit"
	}
	if a.ctrl.CanUndo() {
		help = "[u]ndo • " + help
	}
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(help))
	return sb.String()
}

func (a *App) confirmationView() string {
	if a.errMsg != "" {
		return errorStyle.Render("Error: ") + a.errMsg + "\n\n" + helpStyle.Render("Press any key to exit")
	}
	if a.result == nil {
		return helpStyle.Render("Press any key to exit")
	}

	var sb strings.Builder
	ok := 0
	for _, r := range a.result.Results {
		if r.Success {
			ok++
			continue
		}
		sb.WriteString(errorStyle.Render("✗ ") + fmt.Sprintf("%s: %s\n", r.EntryID, r.Error))
	}
	header := successStyle.Render(fmt.Sprintf("%d of %d entries logged", ok, len(a.result.Results)))
	return header + "\n" + sb.String() + "\n" + helpStyle.Render("Press any key to exit")
}
