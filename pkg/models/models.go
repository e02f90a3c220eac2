package models

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Address is an opaque account identifier on the remote ledger.
type Address string

// Recipient describes the configured demo recipient account.
type Recipient struct {
	Name    string  `json:"name"`
	Address Address `json:"address"`
	IBAN    string  `json:"iban"`
}

// AccountRecord is the on-chain mapping from an address to an IBAN.
// The remote value is optional; Present distinguishes "no mapping registered"
// from a registered record.
type AccountRecord struct {
	Present bool   `json:"present"`
	IBAN    string `json:"iban,omitempty"`
}

// BalanceObservation is a single push of remote system account state.
// Free is in minimal units (10^-10 of the display unit).
type BalanceObservation struct {
	Free *big.Int
}

// DestinationKind enumerates the transfer destination variants.
type DestinationKind string

const (
	DestIban     DestinationKind = "Iban"
	DestAddress  DestinationKind = "Address"
	DestWithdraw DestinationKind = "Withdraw"
)

// DestinationPayload is the tagged union sent as the transfer destination.
// Exactly one variant is set, selected by Kind.
type DestinationPayload struct {
	Kind    DestinationKind
	IBAN    string
	Address Address
}

// MarshalJSON renders the single-variant object shape the ledger expects:
// {"Iban": "..."}, {"Address": "..."} or {"Withdraw": null}.
func (d DestinationPayload) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case DestIban:
		return json.Marshal(map[string]string{"Iban": d.IBAN})
	case DestAddress:
		return json.Marshal(map[string]Address{"Address": d.Address})
	case DestWithdraw:
		return []byte(`{"Withdraw":null}`), nil
	}
	return nil, fmt.Errorf("unknown destination kind %q", d.Kind)
}

// SubmitStage is one step of the submission lifecycle reported by the node.
type SubmitStage string

const (
	StageReady     SubmitStage = "Ready"
	StageBroadcast SubmitStage = "Broadcast"
	StageInBlock   SubmitStage = "InBlock"
	StageFinalized SubmitStage = "Finalized"
	StageError     SubmitStage = "Error"
)

// SubmitStatus is a single progress notification for a submitted transaction.
type SubmitStatus struct {
	Stage  SubmitStage
	Detail string // block hash or error reason, depending on Stage
}

// Terminal reports whether no further notifications follow this one.
func (s SubmitStatus) Terminal() bool {
	return s.Stage == StageFinalized || s.Stage == StageError
}

func (s SubmitStatus) String() string {
	switch s.Stage {
	case StageError:
		return "Error: " + s.Detail
	case StageInBlock, StageFinalized:
		if s.Detail != "" {
			return fmt.Sprintf("%s (%s)", s.Stage, s.Detail)
		}
	}
	return string(s.Stage)
}

// NodeReport holds the results of the configuration/node test mode.
type NodeReport struct {
	ConfigPath      string   `json:"config_path"`
	ValidStructure  bool     `json:"valid_structure"`
	StructureErrors []string `json:"structure_errors,omitempty"`
	NodeURL         string   `json:"node_url"`
	NodeStatus      string   `json:"node_status,omitempty"` // "ok" or "error"
	Chain           string   `json:"chain,omitempty"`
	NodeError       string   `json:"node_error,omitempty"`
}
