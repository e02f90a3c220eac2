package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"rampwatch/pkg/config"
	"rampwatch/pkg/keyring"
	"rampwatch/pkg/tx"
	"rampwatch/pkg/watcher"
)

// Deps are the collaborators the UI needs once the node connection and the
// keyring are ready. They are injected, never fetched from ambient scope.
type Deps struct {
	Watcher *watcher.Watcher
	Builder *tx.Builder
	Keyring *keyring.Keyring
}

func Start(cfg config.Config, connect func() (Deps, error), version string) {
	Version = version
	p := tea.NewProgram(
		initialModel(cfg, connect),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
