package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/hostbridge/ir"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newBrowseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "browse <module-file>",
		Short: "Browse the descriptors of a binding module interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal(cmd.OutOrStdout()) {
				return fmt.Errorf("browse needs a terminal; use inspect instead")
			}
			m, err := ir.Load(args[0])
			if err != nil {
				return err
			}
			p := tea.NewProgram(newBrowseModel(m, args[0]), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// descriptor is one browsable entry.
type descriptor struct {
	owner  string
	label  string
	title  string
	detail []string
}

func (d descriptor) matches(q string) bool {
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(d.owner+"."+d.title), q)
}

type browseState int

const (
	stateList browseState = iota
	stateFilter
	stateDetail
)

type browseModel struct {
	err      error
	filename string
	all      []descriptor
	shown    []descriptor
	filter   textinput.Model
	selected int
	state    browseState
}

func newBrowseModel(m *ir.Module, filename string) *browseModel {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "filter"
	ti.Width = 40

	bm := &browseModel{filename: filename, filter: ti}
	bm.all, bm.err = descriptors(m)
	bm.shown = bm.all
	return bm
}

func descriptors(m *ir.Module) ([]descriptor, error) {
	var out []descriptor
	addFn := func(owner string, fn ir.Function) error {
		params, results, err := m.CoreSignature(fn)
		if err != nil {
			return err
		}
		detail := []string{
			"native  " + fn.Name,
			"kind    " + kindLabel(fn),
			"self    " + fn.Self.String(),
			"core    " + coreSigStr(params, results),
		}
		if fn.HostModule != "" {
			detail = append(detail, "module  "+fn.HostModule)
		}
		out = append(out, descriptor{
			owner:  owner,
			label:  kindLabel(fn),
			title:  signature(m, fn),
			detail: append(detail, fn.Comments...),
		})
		return nil
	}

	for _, fn := range m.Functions() {
		if err := addFn("", fn); err != nil {
			return nil, err
		}
	}
	for _, s := range m.Structs() {
		t, err := m.WIT(ir.TypeRef(s.Name))
		if err != nil {
			return nil, err
		}
		detail := []string{"kind    " + s.Kind.String(), "wit     " + witTypeStr(t)}
		for _, f := range s.Fields {
			detail = append(detail, "field   "+f.HostName+": "+string(f.Type))
		}
		out = append(out, descriptor{label: "class", title: s.HostName, detail: append(detail, s.Comments...)})
		for _, fn := range m.Methods(s.Name) {
			if err := addFn(s.HostName, fn); err != nil {
				return nil, err
			}
		}
	}
	for _, e := range m.Enums() {
		detail := make([]string, 0, len(e.Variants))
		for _, v := range e.Variants {
			detail = append(detail, fmt.Sprintf("%-7s %d", v.Name, v.Value))
		}
		out = append(out, descriptor{label: "enum", title: e.HostName, detail: append(detail, e.Comments...)})
	}
	for _, c := range m.Consts() {
		out = append(out, descriptor{
			label:  "const",
			title:  c.HostName + ": " + string(c.Type),
			detail: append([]string{"value   " + c.Expr}, c.Comments...),
		})
	}
	return out, nil
}

func (m *browseModel) Init() tea.Cmd {
	return nil
}

func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.state == stateFilter {
		switch key.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter", "esc":
			m.filter.Blur()
			m.state = stateList
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.state == stateList && m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.state == stateList && m.selected < len(m.shown)-1 {
			m.selected++
		}

	case "/":
		if m.state == stateList {
			m.state = stateFilter
			return m, m.filter.Focus()
		}

	case "enter":
		switch m.state {
		case stateList:
			if len(m.shown) > 0 {
				m.state = stateDetail
			}
		case stateDetail:
			m.state = stateList
		}

	case "esc":
		if m.state == stateDetail {
			m.state = stateList
		} else if m.filter.Value() != "" {
			m.filter.SetValue("")
			m.applyFilter()
		}
	}
	return m, nil
}

func (m *browseModel) applyFilter() {
	q := m.filter.Value()
	m.shown = m.shown[:0:0]
	for _, d := range m.all {
		if q == "" || d.matches(q) {
			m.shown = append(m.shown, d)
		}
	}
	if m.selected >= len(m.shown) {
		m.selected = max(len(m.shown)-1, 0)
	}
}

func (m *browseModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("hostbridge"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateList, stateFilter:
		if m.state == stateFilter || m.filter.Value() != "" {
			b.WriteString(m.filter.View())
			b.WriteString("\n\n")
		}
		if len(m.shown) == 0 {
			b.WriteString("No descriptors match.\n")
		}
		for i, d := range m.shown {
			line := m.formatLine(d)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter details • / filter • q quit"))

	case stateDetail:
		d := m.shown[m.selected]
		b.WriteString(m.formatLine(d))
		b.WriteString("\n\n")
		for _, line := range d.detail {
			b.WriteString("  ")
			b.WriteString(typeStyle.Render(line))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter/esc back • q quit"))
	}
	return b.String()
}

func (m *browseModel) formatLine(d descriptor) string {
	name := d.title
	if d.owner != "" {
		name = d.owner + "." + name
	}
	return fmt.Sprintf("%-8s %s", d.label, funcStyle.Render(name))
}
