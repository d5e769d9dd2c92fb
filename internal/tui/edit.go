package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/christopherklint97/daylog/internal/ai"
	"github.com/christopherklint97/daylog/internal/lifecycle"
	"github.com/christopherklint97/daylog/internal/pm"
)

type editField int

const (
	editProject editField = iota
	editActivityType
	editHours
	editDescription
	editNote
	editFieldCount
)

var fieldNames = []string{"Project", "Activity type", "Hours", "Description", "Internal note"}

// editModel edits one suggestion locally; changes() yields the fields the
// user touched.
type editModel struct {
	suggestion ai.Suggestion
	pmCtx      *pm.Context
	field      editField
	textInput  textinput.Model
	editing    bool
	changed    bool
	touched    map[editField]bool
	projects   []pm.Project
	types      []pm.ActivityType
}

func newEditModel(s ai.Suggestion, pmCtx *pm.Context) editModel {
	ti := textinput.New()
	ti.CharLimit = 300
	ti.Width = 60

	return editModel{
		suggestion: s,
		pmCtx:      pmCtx,
		textInput:  ti,
		touched:    map[editField]bool{},
	}
}

func (m editModel) Update(msg tea.Msg) (editModel, tea.Cmd) {
	if m.editing {
		return m.updateEditing(msg)
	}
	return m.updateNavigating(msg)
}

func (m editModel) updateNavigating(msg tea.Msg) (editModel, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "tab", "down", "j":
			m.field = (m.field + 1) % editFieldCount
		case "shift+tab", "up", "k":
			m.field = (m.field + editFieldCount - 1) % editFieldCount
		case "enter":
			m.editing = true
			switch m.field {
			case editProject:
				m.textInput.SetValue("")
				m.textInput.Placeholder = "Search project..."
				m.filter("")
			case editActivityType:
				m.textInput.SetValue("")
				m.textInput.Placeholder = "Search activity type..."
				m.filter("")
			case editHours:
				m.textInput.SetValue(strconv.FormatFloat(m.suggestion.Hours, 'f', -1, 64))
				m.textInput.Placeholder = "Hours"
			case editDescription:
				m.textInput.SetValue(m.suggestion.Description)
				m.textInput.Placeholder = "Description"
			case editNote:
				m.textInput.SetValue(m.suggestion.InternalNote)
				m.textInput.Placeholder = "Internal note"
			}
			cmd := m.textInput.Focus()
			return m, cmd
		}
	}
	return m, nil
}

func (m editModel) updateEditing(msg tea.Msg) (editModel, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter":
			m.applyEdit(m.textInput.Value())
			m.editing = false
			m.textInput.Blur()
			return m, nil
		case "esc":
			m.editing = false
			m.textInput.Blur()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	m.filter(m.textInput.Value())
	return m, cmd
}

func (m *editModel) filter(query string) {
	query = strings.ToLower(query)
	m.projects, m.types = nil, nil
	switch m.field {
	case editProject:
		if m.pmCtx == nil {
			return
		}
		for _, p := range m.pmCtx.Projects {
			if strings.Contains(strings.ToLower(p.Name), query) || strings.Contains(strings.ToLower(p.Code), query) {
				m.projects = append(m.projects, p)
			}
		}
	case editActivityType:
		for _, t := range m.pmCtx.ActivityTypesFor(m.suggestion.ProjectID) {
			if strings.Contains(strings.ToLower(t.Name), query) {
				m.types = append(m.types, t)
			}
		}
	}
}

func (m *editModel) applyEdit(value string) {
	switch m.field {
	case editProject:
		if len(m.projects) == 0 {
			return
		}
		m.suggestion.ProjectID = m.projects[0].ID
		m.suggestion.ProjectName = m.projects[0].Name
	case editActivityType:
		if len(m.types) == 0 {
			return
		}
		m.suggestion.ActivityTypeID = m.types[0].ID
		m.suggestion.ActivityTypeName = m.types[0].Name
	case editHours:
		v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(value), ",", "."), 64)
		if err != nil || v <= 0 || v > 24 {
			return
		}
		m.suggestion.Hours = ai.RoundToHalf(v)
	case editDescription:
		if strings.TrimSpace(value) == "" {
			return
		}
		m.suggestion.Description = value
	case editNote:
		m.suggestion.InternalNote = value
	}
	m.touched[m.field] = true
	m.changed = true
}

func (m editModel) changes() lifecycle.Edit {
	s := m.suggestion
	var e lifecycle.Edit
	if m.touched[editProject] {
		e.ProjectID, e.ProjectName = &s.ProjectID, &s.ProjectName
	}
	if m.touched[editActivityType] {
		e.ActivityTypeID, e.ActivityTypeName = &s.ActivityTypeID, &s.ActivityTypeName
	}
	if m.touched[editHours] {
		e.Hours = &s.Hours
	}
	if m.touched[editDescription] {
		e.Description = &s.Description
	}
	if m.touched[editNote] {
		e.InternalNote = &s.InternalNote
	}
	return e
}

func (m editModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Edit Suggestion"))
	sb.WriteString("\n")

	s := m.suggestion
	values := []string{
		s.ProjectName,
		s.ActivityTypeName,
		strconv.FormatFloat(s.Hours, 'f', -1, 64) + "h",
		s.Description,
		s.InternalNote,
	}
	for i, name := range fieldNames {
		prefix := "  "
		line := fmt.Sprintf("%-14s %s", name+":", values[i])
		if editField(i) == m.field {
			prefix = "> "
			line = highlightStyle.Render(line)
		}
		sb.WriteString(prefix + line + "\n")
	}

	if m.editing {
		sb.WriteString("\n")
		sb.WriteString(m.textInput.View())
		sb.WriteString("\n")

		var options []string
		for _, p := range m.projects {
			options = append(options, p.Name)
		}
		for _, t := range m.types {
			options = append(options, t.Name)
		}
		if len(options) > 5 {
			options = options[:5]
		}
		for _, o := range options {
			sb.WriteString(fmt.Sprintf("  %s\n", dimStyle.Render(o)))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("Enter: edit field • Tab/j/k: next field • Esc: done editing"))

	return boxStyle.Render(sb.String())
}
