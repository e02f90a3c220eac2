package project

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseline = func() *big.Int {
	b, _ := new(big.Int).SetString("10000000000000", 10) // 1000 * 10^10
	return b
}()

func TestDonationDelta(t *testing.T) {
	tests := []struct {
		name string
		free string
		want string
	}{
		{"at baseline", "10000000000000", "0"},
		{"five units above", "10050000000000", "50000000000"},
		{"below baseline", "9990000000000", "-10000000000"},
		{"zero balance", "0", "-10000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			free, ok := new(big.Int).SetString(tt.free, 10)
			require.True(t, ok)
			want, ok := new(big.Int).SetString(tt.want, 10)
			require.True(t, ok)
			assert.Zero(t, DonationDelta(free, baseline).Cmp(want))
		})
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"whole units", "50000000000", "5 pEURO"},
		{"zero", "0", "0 pEURO"},
		{"fractional", "50500000000", "5.05 pEURO"},
		{"negative", "-25000000000", "-2.5 pEURO"},
		{"below one unit", "5", "0.0000000005 pEURO"},
		{"grouped", "12345000000000000", "1,234,500 pEURO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := new(big.Int).SetString(tt.value, 10)
			require.True(t, ok)
			assert.Equal(t, tt.want, FormatUnits(v, 10, "pEURO"))
		})
	}

	assert.Equal(t, "0 pEURO", FormatUnits(nil, 10, "pEURO"))
}

func TestDecodeRecord_Absent(t *testing.T) {
	for _, raw := range []string{"null", "", "  null  "} {
		rec, err := DecodeRecord(json.RawMessage(raw))
		require.NoError(t, err)
		assert.False(t, rec.Present)
		assert.Empty(t, rec.IBAN)
		assert.False(t, Registered(rec))
	}
}

func TestDecodeRecord_RoundTrip(t *testing.T) {
	ibans := []string{
		"CH2108307000289537320",
		"DE89370400440532013000",
		"X",
	}
	for _, iban := range ibans {
		raw, err := json.Marshal(map[string]string{"iban": EncodeIBAN(iban)})
		require.NoError(t, err)

		rec, err := DecodeRecord(raw)
		require.NoError(t, err)
		assert.True(t, rec.Present)
		assert.Equal(t, iban, rec.IBAN)
		assert.True(t, Registered(rec))
	}
}

func TestDecodeRecord_BareHex(t *testing.T) {
	// the ledger historically emitted the hex payload without the 0x prefix
	rec, err := DecodeRecord(json.RawMessage(`{"iban": "434821"}`))
	require.NoError(t, err)
	assert.True(t, rec.Present)
	assert.Equal(t, "CH!", rec.IBAN)
}

func TestDecodeRecord_Malformed(t *testing.T) {
	_, err := DecodeRecord(json.RawMessage(`{"iban": "zzzz"}`))
	assert.Error(t, err)

	_, err = DecodeRecord(json.RawMessage(`{`))
	assert.Error(t, err)
}

func TestDecodeBalance(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"nested decimal string", `{"data":{"free":"10050000000000"}}`, "10050000000000"},
		{"nested number", `{"data":{"free":10050000000000}}`, "10050000000000"},
		{"top-level free", `{"free":"42"}`, "42"},
		{"hex", `{"data":{"free":"0x2a"}}`, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := DecodeBalance(json.RawMessage(tt.raw))
			require.NoError(t, err)
			want, ok := new(big.Int).SetString(tt.want, 10)
			require.True(t, ok)
			assert.Zero(t, obs.Free.Cmp(want))
		})
	}
}

func TestDecodeBalance_Malformed(t *testing.T) {
	for _, raw := range []string{`{}`, `{"data":{}}`, `{"free":"abc"}`, `[1]`} {
		_, err := DecodeBalance(json.RawMessage(raw))
		assert.Error(t, err, "raw: %s", raw)
	}
}
