package tx

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rampwatch/pkg/chain"
	"rampwatch/pkg/models"
)

// The two fiat-ramps calls this client submits.
const (
	Module       = "fiatRamps"
	CallRegister = "createAccount"
	CallTransfer = "transfer"
)

// ResolveDestination maps the user-selected destination mode and form inputs
// to the transfer payload. Total by contract: an unrecognized mode falls back
// to Withdraw rather than failing, matching the on-chain call's default path.
// Callers only offer known modes in the UI.
func ResolveDestination(mode string, addressTo models.Address, ibanTo string) models.DestinationPayload {
	switch mode {
	case string(models.DestIban):
		return models.DestinationPayload{Kind: models.DestIban, IBAN: ibanTo}
	case string(models.DestAddress):
		return models.DestinationPayload{Kind: models.DestAddress, Address: addressTo}
	default:
		return models.DestinationPayload{Kind: models.DestWithdraw}
	}
}

// ScaleAmount parses a user-entered amount in display units and scales it to
// minimal units (10^decimals). The input must be a non-negative whole number;
// anything else is a validation failure, caught before submission.
func ScaleAmount(input string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil {
		return nil, fmt.Errorf("amount %q is not a number", input)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative")
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("amount must be a whole number of units")
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// Request is an assembled call ready for submission. Params and ParamFields
// are positional and of equal length.
type Request struct {
	Module      string
	Call        string
	Params      []interface{}
	ParamFields []bool
}

func (r Request) validate() error {
	if r.Module == "" || r.Call == "" {
		return fmt.Errorf("request is missing call target")
	}
	if len(r.Params) != len(r.ParamFields) {
		return fmt.Errorf("request has %d params but %d param fields", len(r.Params), len(r.ParamFields))
	}
	return nil
}

// RegisterRequest builds the createAccount call mapping an IBAN to the
// sender's address.
func RegisterRequest(iban string) Request {
	return Request{
		Module:      Module,
		Call:        CallRegister,
		Params:      []interface{}{iban},
		ParamFields: []bool{true},
	}
}

// TransferRequest builds the transfer call. Amount is in minimal units.
func TransferRequest(amount *big.Int, dest models.DestinationPayload) Request {
	return Request{
		Module:      Module,
		Call:        CallTransfer,
		Params:      []interface{}{amount.String(), dest},
		ParamFields: []bool{true, true},
	}
}

// Builder assembles requests and drives the status callback through the
// submission lifecycle. It does not serialize submissions; callers disable
// the action while one is outstanding.
type Builder struct {
	submitter chain.Submitter
	log       zerolog.Logger
}

func NewBuilder(submitter chain.Submitter, log zerolog.Logger) *Builder {
	return &Builder{
		submitter: submitter,
		log:       log.With().Str("component", "tx").Logger(),
	}
}

// Submit validates the request, hands it to the submitter and forwards every
// progress notification to setStatus. Exactly one terminal status is reported
// per call; validation failures never reach the submitter.
func (b *Builder) Submit(ctx context.Context, from models.Address, req Request, setStatus func(string)) error {
	if err := req.validate(); err != nil {
		setStatus("Error: " + err.Error())
		return err
	}

	setStatus("Sending...")
	statuses, err := b.submitter.Submit(ctx, from, req.Module, req.Call, req.Params)
	if err != nil {
		b.log.Warn().Err(err).Str("call", req.Module+"."+req.Call).Msg("submission rejected")
		setStatus("Error: " + err.Error())
		return err
	}

	var last models.SubmitStatus
	for status := range statuses {
		last = status
		setStatus(status.String())
	}
	if last.Stage == models.StageError {
		return fmt.Errorf("submission failed: %s", last.Detail)
	}
	b.log.Debug().Str("call", req.Module+"."+req.Call).Str("stage", string(last.Stage)).Msg("submission complete")
	return nil
}

// SubmitRegister validates and submits the IBAN registration call.
func (b *Builder) SubmitRegister(ctx context.Context, from models.Address, iban string, setStatus func(string)) error {
	if strings.TrimSpace(iban) == "" {
		err := fmt.Errorf("IBAN must not be empty")
		setStatus("Error: " + err.Error())
		return err
	}
	return b.Submit(ctx, from, RegisterRequest(iban), setStatus)
}

// SubmitTransfer validates the amount, resolves the destination and submits
// the transfer call. Malformed amounts are refused before the submitter is
// invoked, reported through setStatus as a recoverable validation message.
func (b *Builder) SubmitTransfer(ctx context.Context, from models.Address, amountInput string, decimals int, dest models.DestinationPayload, setStatus func(string)) error {
	amount, err := ScaleAmount(amountInput, decimals)
	if err != nil {
		setStatus("Error: " + err.Error())
		return err
	}
	return b.Submit(ctx, from, TransferRequest(amount, dest), setStatus)
}
