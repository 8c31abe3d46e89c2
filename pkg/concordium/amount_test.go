package concordium

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountFormatting(t *testing.T) {
	tests := []struct {
		amount Amount
		want   string
	}{
		{amount: 0, want: "0.000000 CCD"},
		{amount: 1, want: "0.000001 CCD"},
		{amount: 1000000, want: "1.000000 CCD"},
		{amount: 123456789, want: "123.456789 CCD"},
		{amount: 18446744073709551615, want: "18446744073709.551615 CCD"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.amount.CCD())
		})
	}
}

func TestAmountJSON(t *testing.T) {
	var fromString, fromNumber Amount
	require.NoError(t, json.Unmarshal([]byte(`"2500000"`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`2500000`), &fromNumber))
	assert.Equal(t, Amount(2500000), fromString)
	assert.Equal(t, fromString, fromNumber)

	var bad Amount
	assert.Error(t, json.Unmarshal([]byte(`"-1"`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`"1.5"`), &bad))
}

func TestAmountWithScheduleTotal(t *testing.T) {
	var schedule AmountWithSchedule
	require.NoError(t, json.Unmarshal([]byte(`[[1640995200000,"400000"],[1643673600000,"600000"]]`), &schedule))

	require.Len(t, schedule, 2)
	assert.Equal(t, uint64(1640995200000), schedule[0].ReleaseTime)
	assert.Equal(t, Amount(1000000), schedule.Total())
	assert.Equal(t, "1.000000 CCD", schedule.Total().CCD())

	assert.Equal(t, Amount(0), AmountWithSchedule(nil).Total())
}
