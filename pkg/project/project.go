// Package project derives UI-facing values from raw remote state. Every
// function is a pure transformation of one push; nothing here holds state.
package project

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"rampwatch/pkg/models"
	"rampwatch/pkg/utils"
)

// DonationDelta is the observed free balance minus the baseline. Values below
// the baseline yield a negative delta, which is legal and displayed as such.
func DonationDelta(free, baseline *big.Int) *big.Int {
	return new(big.Int).Sub(free, baseline)
}

// FormatUnits renders a fixed-scale integer amount as a decimal string with
// the unit label, e.g. FormatUnits(50000000000, 10, "pEURO") == "5 pEURO".
// Exact integer arithmetic, no floats.
func FormatUnits(v *big.Int, decimals int, unit string) string {
	if v == nil {
		return "0 " + unit
	}
	sign := ""
	abs := new(big.Int).Abs(v)
	if v.Sign() < 0 {
		sign = "-"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, scale, new(big.Int))

	out := sign + utils.AddCommas(whole.String())
	if frac.Sign() != 0 {
		digits := frac.String()
		if pad := decimals - len(digits); pad > 0 {
			digits = strings.Repeat("0", pad) + digits
		}
		out += "." + strings.TrimRight(digits, "0")
	}
	return out + " " + unit
}

// EncodeIBAN returns the hex representation the ledger stores for an IBAN.
func EncodeIBAN(iban string) string {
	return hexutil.Encode([]byte(iban))
}

// DecodeRecord decodes an optional account record push. A null (or empty)
// value means no mapping is registered for the address; a present value
// carries the IBAN as hex-encoded bytes.
func DecodeRecord(raw json.RawMessage) (models.AccountRecord, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return models.AccountRecord{}, nil
	}
	var payload struct {
		IBAN string `json:"iban"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.AccountRecord{}, fmt.Errorf("malformed account record: %w", err)
	}
	hexStr := payload.IBAN
	if !strings.HasPrefix(hexStr, "0x") {
		hexStr = "0x" + hexStr
	}
	b, err := hexutil.Decode(hexStr)
	if err != nil {
		return models.AccountRecord{}, fmt.Errorf("account record iban is not hex: %w", err)
	}
	return models.AccountRecord{Present: true, IBAN: string(b)}, nil
}

// Registered reports whether the record gates transfer eligibility open.
func Registered(rec models.AccountRecord) bool {
	return rec.Present
}

// DecodeBalance decodes a system account push into an observation. The wire
// nests the balance under "data" ({"data":{"free":...}}); a top-level "free"
// is accepted too. Free may be a decimal string, a bare number or 0x-hex.
func DecodeBalance(raw json.RawMessage) (models.BalanceObservation, error) {
	var payload struct {
		Data *struct {
			Free json.RawMessage `json:"free"`
		} `json:"data"`
		Free json.RawMessage `json:"free"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.BalanceObservation{}, fmt.Errorf("malformed balance: %w", err)
	}
	free := payload.Free
	if payload.Data != nil {
		free = payload.Data.Free
	}
	if len(free) == 0 {
		return models.BalanceObservation{}, fmt.Errorf("balance has no free field")
	}
	n, err := parseBigInt(free)
	if err != nil {
		return models.BalanceObservation{}, err
	}
	return models.BalanceObservation{Free: n}, nil
}

func parseBigInt(raw json.RawMessage) (*big.Int, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if strings.HasPrefix(s, "0x") {
		n, err := hexutil.DecodeBig(s)
		if err != nil {
			return nil, fmt.Errorf("malformed hex balance %q: %w", s, err)
		}
		return n, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed balance %q", s)
	}
	return n, nil
}
