package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in       string
		currency Currency
		want     int64
		wantErr  bool
	}{
		{in: "12.34", currency: EUR, want: 1234},
		{in: "12,34", currency: EUR, want: 1234},
		{in: "12", currency: EUR, want: 1200},
		{in: "0.01", currency: EUR, want: 1},
		{in: "12.345", currency: EUR, want: 1234}, // rounds down
		{in: "12.346", currency: EUR, want: 1235}, // rounds up
		{in: "500", currency: JPY, want: 500},
		{in: "500.6", currency: JPY, want: 501},
		{in: "", currency: EUR, wantErr: true},
		{in: "-5", currency: EUR, wantErr: true},
		{in: "+5", currency: EUR, wantErr: true},
		{in: "0", currency: EUR, wantErr: true},
		{in: "0.004", currency: EUR, wantErr: true}, // rounds to zero
		{in: "1.2.3", currency: EUR, wantErr: true},
		{in: "12a", currency: EUR, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAmount(tc.in, tc.currency)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Cents)
		})
	}
}

func TestMoneyFormat(t *testing.T) {
	assert.Equal(t, "66.67", Money{Cents: 6667}.Format(EUR))
	assert.Equal(t, "0.05", Money{Cents: 5}.Format(EUR))
	assert.Equal(t, "-10.00", Money{Cents: -1000}.Format(EUR))
	assert.Equal(t, "500", Money{Cents: 500}.Format(JPY))
}

func TestMoneyValidate(t *testing.T) {
	require.NoError(t, Money{Cents: 1}.Validate())
	assert.ErrorIs(t, Money{Cents: 0}.Validate(), ErrValidation)
	assert.ErrorIs(t, Money{Cents: -100}.Validate(), ErrValidation)
}

func TestCurrencyValidate(t *testing.T) {
	require.NoError(t, EUR.Validate())
	require.NoError(t, JPY.Validate())
	assert.ErrorIs(t, Currency("XXX").Validate(), ErrValidation)
	assert.Equal(t, 0, JPY.MinorDigits())
	assert.Equal(t, 2, EUR.MinorDigits())
}
