package tui

import (
	"context"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"rampwatch/pkg/models"
	"rampwatch/pkg/tx"
	"rampwatch/pkg/watcher"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case connectErrMsg:
		m.apiState = stateError
		m.apiErr = msg.err

	case readyMsg:
		m.deps = msg.deps
		m.apiState = stateReady
		m.keyringState = stateReady
		m.events = m.deps.Watcher.Subscribe()
		m.deps.Watcher.Start(context.Background())
		m.deps.Watcher.SetAccount(context.Background(), m.deps.Keyring.Current().Address)
		cmds = append(cmds, listenForWatcher(m.events))

	case watcher.Event:
		// Re-arm for the next event
		cmds = append(cmds, listenForWatcher(m.events))

		switch msg.Type {
		case watcher.EventDonationsUpdated:
			if data, ok := msg.Data.(watcher.DonationsData); ok {
				m.donations = data.Display
				m.donationHistory = append(m.donationHistory, deltaPoint(data.Delta, m.cfg.Units.Decimals))
				if len(m.donationHistory) > historyLimit {
					m.donationHistory = m.donationHistory[len(m.donationHistory)-historyLimit:]
				}
			}
		case watcher.EventRecordUpdated:
			if data, ok := msg.Data.(watcher.RecordData); ok {
				m.record = data.Record
				m.recordKnown = true
			}
		case watcher.EventWatchError:
			if data, ok := msg.Data.(watcher.WatchErrorData); ok && data.Err != nil {
				m.notice = "watch error: " + data.Err.Error()
				cmds = append(cmds, noticeTimeout())
			}
		}
		m.lastUpdate = time.Now()

	case statusUpdateMsg:
		m.submitStatus = string(msg)
		cmds = append(cmds, waitForStatus(m.statusCh))

	case submitDoneMsg:
		m.submitting = false

	case clearNoticeMsg:
		m.notice = ""

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		for _, in := range m.visibleInputs() {
			in.Blur()
		}
		m.focus = -1
		return m, nil
	case "tab":
		m.cycleFocus(1)
		return m, nil
	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil
	case "enter":
		return m.handleSubmit()
	}

	if in := m.focusedInput(); in != nil {
		var cmd tea.Cmd
		*in, cmd = in.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "a":
		if m.apiState == stateReady && m.deps.Keyring.Len() > 1 {
			pair := m.deps.Keyring.Next()
			m.record = models.AccountRecord{}
			m.recordKnown = false
			m.destIdx = 0
			m.submitStatus = ""
			m.deps.Watcher.SetAccount(context.Background(), pair.Address)
			m.notice = "Active account: " + pair.Name
			return m, noticeTimeout()
		}
	case "d":
		if m.registered() {
			m.cycleDest(1)
			m.focus = -1
			for _, in := range m.visibleInputs() {
				in.Blur()
			}
		}
	case "c":
		if err := clipboard.WriteAll(string(m.cfg.Recipient.Address)); err == nil {
			m.notice = "Recipient address copied!"
			return m, noticeTimeout()
		}
	case "i":
		if err := clipboard.WriteAll(m.cfg.Recipient.IBAN); err == nil {
			m.notice = "Recipient IBAN copied!"
			return m, noticeTimeout()
		}
	}
	return m, nil
}

func (m model) handleSubmit() (tea.Model, tea.Cmd) {
	if m.apiState != stateReady || !m.recordKnown {
		return m, nil
	}
	if !m.canSubmit() {
		m.notice = "Submission in progress"
		return m, noticeTimeout()
	}

	from := m.deps.Keyring.Current().Address
	builder := m.deps.Builder

	if !m.registered() {
		iban := strings.TrimSpace(m.registerInput.Value())
		cmd := m.startSubmit(func(set func(string)) {
			_ = builder.SubmitRegister(context.Background(), from, iban, set)
		})
		return m, cmd
	}

	dest := tx.ResolveDestination(
		m.currentDest(),
		models.Address(strings.TrimSpace(m.addressInput.Value())),
		strings.TrimSpace(m.ibanInput.Value()),
	)
	amount := m.amountValue()
	decimals := m.cfg.Units.Decimals
	cmd := m.startSubmit(func(set func(string)) {
		_ = builder.SubmitTransfer(context.Background(), from, amount, decimals, dest, set)
	})
	return m, cmd
}

// startSubmit runs one submission in the background, feeding its status
// updates through the model's status channel. The submitting flag stays set
// until the channel closes after the terminal status.
func (m *model) startSubmit(run func(setStatus func(string))) tea.Cmd {
	ch := make(chan string, 16)
	m.statusCh = ch
	m.submitting = true
	m.submitStatus = ""
	go func() {
		run(func(s string) { ch <- s })
		close(ch)
	}()
	return waitForStatus(ch)
}

func noticeTimeout() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return clearNoticeMsg{}
	})
}
