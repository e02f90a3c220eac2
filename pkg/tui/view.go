package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"rampwatch/pkg/models"
	"rampwatch/pkg/utils"
)

func (m model) View() string {
	switch m.apiState {
	case stateConnecting:
		return fmt.Sprintf("\n  %s Connecting to node %s...\n", m.spinner.View(), m.cfg.NodeURL)
	case stateError:
		return "\n  " + errStyle.Render("Error connecting to node: "+m.apiErr.Error()) + "\n\n  " + subtleStyle.Render("q: quit") + "\n"
	}
	if m.keyringState != stateReady {
		return fmt.Sprintf("\n  %s Loading accounts...\n", m.spinner.View())
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("rampwatch "+Version) + "  " + m.accountLine() + "\n\n")
	b.WriteString(m.recipientCard() + "\n")

	if !m.recordKnown {
		b.WriteString(fmt.Sprintf("\n%s Checking registration for %s...\n",
			m.spinner.View(), m.activeAddress()))
	} else if !m.registered() {
		b.WriteString("\n" + m.registerCard() + "\n")
	} else {
		b.WriteString("\n" + m.transferCard() + "\n")
	}

	if m.submitStatus != "" {
		style := infoStyle
		if strings.HasPrefix(m.submitStatus, "Error") {
			style = errStyle
		}
		b.WriteString("\n" + style.Render(m.submitStatus) + "\n")
	}

	b.WriteString("\n" + m.footer())
	return b.String()
}

func (m model) accountLine() string {
	pair := m.deps.Keyring.Current()
	line := fmt.Sprintf("Account: %s (%s)", pair.Name, utils.TruncateAddress(string(pair.Address), 8, 6))
	if m.deps.Keyring.Len() > 1 {
		line += subtleStyle.Render("  a: switch")
	}
	return line
}

func (m model) activeAddress() string {
	return string(m.deps.Keyring.Current().Address)
}

func (m model) recipientCard() string {
	rec := m.cfg.Recipient

	total := m.donations
	if total == "" {
		total = m.spinner.View() + " waiting for first update"
	}

	var lines []string
	lines = append(lines,
		cardHeaderStyle.Render("Buy me a coffee"),
		"",
		labelStyle.Render("Name")+"    "+rec.Name,
		labelStyle.Render("Account")+" "+utils.TruncateAddress(string(rec.Address), 12, 8),
		labelStyle.Render("IBAN")+"    "+rec.IBAN,
		"",
		labelStyle.Render("Total donations")+"  "+infoStyle.Render(total),
	)

	if len(m.donationHistory) > 1 {
		width := m.width - 12
		if width < 20 {
			width = 20
		}
		if width > 70 {
			width = 70
		}
		graph := asciigraph.Plot(m.donationHistory,
			asciigraph.Height(5),
			asciigraph.Width(width),
			asciigraph.Caption("Donations ("+m.cfg.Units.Unit+")"),
		)
		lines = append(lines, "", graph)
	}

	return cardStyle.Render(strings.Join(lines, "\n"))
}

func (m model) registerCard() string {
	var lines []string
	lines = append(lines,
		cardHeaderStyle.Render("Map your IBAN to your address"),
		"",
		"No account associated with your address:",
		subtleStyle.Render(m.activeAddress()),
		"",
		labelStyle.Render("IBAN")+" "+m.registerInput.View(),
		"",
		subtleStyle.Render("enter: Register Bank Account"),
	)
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func (m model) transferCard() string {
	dest := m.currentDest()

	var lines []string
	lines = append(lines,
		cardHeaderStyle.Render("Donate via on-chain transaction"),
		"",
		subtleStyle.Render(fmt.Sprintf("1 unit = 10^%d minimal units; transfer more than the existential amount for empty accounts", m.cfg.Units.Decimals)),
		"",
		labelStyle.Render("Destination")+" "+dest+subtleStyle.Render("  d: change"),
	)

	switch dest {
	case string(models.DestAddress):
		lines = append(lines, labelStyle.Render("To address")+" "+m.addressInput.View())
	case string(models.DestIban):
		lines = append(lines, labelStyle.Render("To IBAN")+"    "+m.ibanInput.View())
	}

	lines = append(lines,
		labelStyle.Render("Amount")+"     "+m.amountInput.View(),
		"",
		subtleStyle.Render("enter: "+m.submitLabel()),
	)
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func (m model) footer() string {
	help := "q: quit • tab: fields • c: copy address • i: copy IBAN"
	out := subtleStyle.Render(help)
	if m.notice != "" {
		out += "\n" + infoStyle.Render(m.notice)
	}
	return lipgloss.NewStyle().MarginTop(1).Render(out)
}
