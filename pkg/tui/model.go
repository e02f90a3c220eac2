package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rampwatch/pkg/config"
	"rampwatch/pkg/models"
	"rampwatch/pkg/watcher"
)

// Version is set by Start()
var Version = "dev"

// --- Messages ---

type readyMsg struct{ deps Deps }
type connectErrMsg struct{ err error }
type statusUpdateMsg string
type submitDoneMsg struct{}
type clearNoticeMsg struct{}

// --- Readiness ---

type readiness int

const (
	stateConnecting readiness = iota
	stateError
	stateReady
)

// --- Model ---

type model struct {
	cfg     config.Config
	connect func() (Deps, error)
	deps    Deps
	events  watcher.Subscriber

	apiState     readiness
	apiErr       error
	keyringState readiness

	width  int
	height int

	spinner spinner.Model
	notice  string // transient footer notice (clipboard, account switch)

	// derived state mirror
	donations       string
	donationHistory []float64
	record          models.AccountRecord
	recordKnown     bool

	// registration form
	registerInput textinput.Model

	// transfer form
	destIdx      int
	addressInput textinput.Model
	ibanInput    textinput.Model
	amountInput  textinput.Model

	focus        int // -1 means no input focused
	submitStatus string
	submitting   bool
	statusCh     chan string
	lastUpdate   time.Time
}

func initialModel(cfg config.Config, connect func() (Deps, error)) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	register := textinput.New()
	register.Placeholder = "IBAN"
	register.Width = 40

	address := textinput.New()
	address.Placeholder = "address"
	address.Width = 50
	address.SetValue(string(cfg.Recipient.Address))

	iban := textinput.New()
	iban.Placeholder = "iban"
	iban.Width = 40
	iban.SetValue(cfg.Recipient.IBAN)

	amount := textinput.New()
	amount.Placeholder = "amount"
	amount.Width = 20

	return model{
		cfg:           cfg,
		connect:       connect,
		apiState:      stateConnecting,
		keyringState:  stateConnecting,
		spinner:       s,
		registerInput: register,
		addressInput:  address,
		ibanInput:     iban,
		amountInput:   amount,
		focus:         -1,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg {
			deps, err := m.connect()
			if err != nil {
				return connectErrMsg{err: err}
			}
			return readyMsg{deps: deps}
		},
	)
}
