package console

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"wingman/internal/domain"
)

// Conn is a live gateway connection.
type Conn interface {
	Backend
	Events() <-chan domain.Event
}

// Run starts the console on conn and blocks until the user quits, the
// connection ends, or ctx is cancelled.
func Run(ctx context.Context, conn Conn, user string) error {
	program := tea.NewProgram(
		NewModel(conn, user),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	go func() {
		for ev := range conn.Events() {
			program.Send(EventMsg{Event: ev})
		}
		program.Send(ClosedMsg{})
	}()

	go func() {
		<-ctx.Done()
		program.Send(QuitMsg{})
	}()

	_, err := program.Run()
	return err
}
