package tui

import (
	"math/big"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"rampwatch/pkg/models"
	"rampwatch/pkg/watcher"
)

const historyLimit = 288

// destinationOptions lists the transfer modes on offer. Withdraw is only
// offered when the active account is the recipient itself.
func destinationOptions(current, recipient models.Address) []string {
	opts := []string{string(models.DestIban), string(models.DestAddress)}
	if current != "" && current == recipient {
		opts = append(opts, string(models.DestWithdraw))
	}
	return opts
}

func (m model) destOptions() []string {
	if m.apiState != stateReady {
		return destinationOptions("", m.cfg.Recipient.Address)
	}
	return destinationOptions(m.deps.Keyring.Current().Address, m.cfg.Recipient.Address)
}

func (m model) currentDest() string {
	opts := m.destOptions()
	idx := m.destIdx
	if idx < 0 || idx >= len(opts) {
		idx = 0
	}
	return opts[idx]
}

func (m *model) cycleDest(dir int) {
	opts := m.destOptions()
	m.destIdx = ((m.destIdx+dir)%len(opts) + len(opts)) % len(opts)
}

// registered reports whether the active account may donate. It stays false
// until the first record push arrives for the current key.
func (m model) registered() bool {
	return m.recordKnown && m.record.Present
}

// canSubmit gates the action while a submission is outstanding. A terminal
// status (Finalized or Error) re-enables it.
func (m model) canSubmit() bool {
	return !m.submitting
}

// visibleInputs returns the focusable inputs for the current form state, in
// tab order.
func (m *model) visibleInputs() []*textinput.Model {
	if m.apiState != stateReady || !m.recordKnown {
		return nil
	}
	if !m.registered() {
		return []*textinput.Model{&m.registerInput}
	}
	switch m.currentDest() {
	case string(models.DestIban):
		return []*textinput.Model{&m.ibanInput, &m.amountInput}
	case string(models.DestAddress):
		return []*textinput.Model{&m.addressInput, &m.amountInput}
	default:
		return []*textinput.Model{&m.amountInput}
	}
}

func (m *model) focusedInput() *textinput.Model {
	inputs := m.visibleInputs()
	if m.focus < 0 || m.focus >= len(inputs) {
		return nil
	}
	return inputs[m.focus]
}

func (m *model) cycleFocus(dir int) {
	inputs := m.visibleInputs()
	for _, in := range inputs {
		in.Blur()
	}
	if len(inputs) == 0 {
		m.focus = -1
		return
	}
	// -1 participates in the cycle so focus can rest outside the form
	n := len(inputs) + 1
	m.focus = ((m.focus+1+dir)%n+n)%n - 1
	if m.focus >= 0 {
		inputs[m.focus].Focus()
	}
}

func (m model) amountValue() string {
	return strings.TrimSpace(m.amountInput.Value())
}

func (m model) submitLabel() string {
	if m.currentDest() == string(models.DestWithdraw) {
		return "Withdraw"
	}
	return "Donate"
}

// deltaPoint converts a donation delta to a graph sample in display units.
func deltaPoint(delta *big.Int, decimals int) float64 {
	if delta == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(delta), scale).Float64()
	return f
}

func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

func waitForStatus(ch chan string) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return submitDoneMsg{}
		}
		return statusUpdateMsg(s)
	}
}
