// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigchat/internal/ollama"
)

const maxProgressWidth = 60

// drainPull reads stream to the end, reporting each update. io.EOF is
// success and returns nil.
func drainPull(stream *ollama.PullStream, report func(ollama.PullProgress)) error {
	for {
		p, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		report(p)
	}
}

// useProgressBar reports whether w is an interactive terminal that can
// host the bubbletea progress view.
func useProgressBar(w io.Writer) bool {
	return isTerminal(w) && ColorsEnabled()
}

// =============================================================================
// BUBBLETEA PROGRESS VIEW
// =============================================================================

type pullProgressMsg ollama.PullProgress

type pullDoneMsg struct{}

// pullModel is the bubbletea model for one download.
type pullModel struct {
	name    string
	status  string
	percent float64
	bar     progress.Model
	cancel  context.CancelFunc
	done    bool
}

func newPullModel(name string, cancel context.CancelFunc) pullModel {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = maxProgressWidth
	return pullModel{name: name, status: "starting", percent: -1, bar: bar, cancel: cancel}
}

func (m pullModel) Init() tea.Cmd { return nil }

func (m pullModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.cancel()
			m.done = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-4, maxProgressWidth)
	case pullProgressMsg:
		p := ollama.PullProgress(msg)
		if s := strings.TrimSpace(p.Status); s != "" {
			m.status = s
		}
		m.percent = p.Percent()
	case pullDoneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m pullModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", TitleStyle.Render("Pulling"), m.name)
	b.WriteString(DimStyle.Render(m.status))
	b.WriteString("\n")
	if m.percent >= 0 {
		b.WriteString(m.bar.ViewAs(m.percent / 100))
		b.WriteString("\n")
	}
	b.WriteString(DimStyle.Render("Ctrl+C to cancel"))
	b.WriteString("\n")
	return b.String()
}

// pullWithProgressBar drains stream under a bubbletea program drawing to w.
// cancel must abort the request that produced stream.
func pullWithProgressBar(ctx context.Context, w io.Writer, name string, stream *ollama.PullStream, cancel context.CancelFunc) error {
	p := tea.NewProgram(newPullModel(name, cancel), tea.WithOutput(w), tea.WithContext(ctx))

	errc := make(chan error, 1)
	go func() {
		errc <- drainPull(stream, func(pp ollama.PullProgress) {
			p.Send(pullProgressMsg(pp))
		})
		p.Send(pullDoneMsg{})
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-errc
		return err
	}
	return <-errc
}
