package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrice_Text(t *testing.T) {
	out, err := executeCommand(t, "price",
		"--init-price", "1_000_000", "--start", "1700000000", "--period", "3600", "--now", "1700001800")
	require.NoError(t, err)
	assert.Equal(t, "Price: 500000\n  Init price: 1000000\n  Elapsed: 1800s, remaining: 1800s\n", out)
}

func TestPrice_NextInitPriceAndDecimals(t *testing.T) {
	out, err := executeCommand(t, "price",
		"--init-price", "1_000_000", "--start", "1700000000", "--period", "3600", "--now", "1700000900",
		"--multiplier", "2_000_000_000_000_000_000", "--min-init-price", "1_000_000",
		"--decimals", "6", "--format", "json")
	require.NoError(t, err)

	data := decodeResponse(t, out)["data"].(map[string]any)
	assert.Equal(t, "0.75", data["price"])
	assert.Equal(t, "1", data["init_price"])
	assert.Equal(t, "1.5", data["next_init_price"])
	assert.Equal(t, float64(2700), data["remaining"])
}

func TestPrice_Expired(t *testing.T) {
	out, err := executeCommand(t, "price", "--init-price", "5", "--period", "600", "--now", "601", "--format", "json")
	require.NoError(t, err)
	data := decodeResponse(t, out)["data"].(map[string]any)
	assert.Equal(t, "0", data["price"])
	assert.Equal(t, float64(600), data["elapsed"])
	assert.Equal(t, float64(0), data["remaining"])
}

func TestPrice_BadFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "amount", args: []string{"--init-price", "lots", "--period", "60"}, want: `--init-price "lots"`},
		{name: "zero period", args: []string{"--init-price", "1", "--period", "0"}, want: "--period must be positive"},
		{name: "half pair", args: []string{"--init-price", "1", "--period", "600", "--multiplier", "2"}, want: "go together"},
		{
			name: "multiplier bound",
			args: []string{"--init-price", "1", "--period", "600", "--multiplier", "1", "--min-init-price", "1_000_000"},
			want: "INVALID_PRICE_MULTIPLIER",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(t, append([]string{"price"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestEmission_Supply(t *testing.T) {
	out, err := executeCommand(t, "emission", "supply",
		"--initial-ups", "4_000_000_000_000_000_000", "--tail-ups", "10_000_000_000_000_000",
		"--halving-amount", "10_000_000_000_000_000_000_000", "--minted", "12_000_000_000_000_000_000_000",
		"--format", "json")
	require.NoError(t, err)

	data := decodeResponse(t, out)["data"].(map[string]any)
	assert.Equal(t, "supply", data["schedule"])
	assert.Equal(t, float64(1), data["halvings"])
	assert.Equal(t, "2000000000000000000", data["rate"])
	assert.Equal(t, "15000000000000000000000", data["next"])
}

func TestEmission_Time(t *testing.T) {
	out, err := executeCommand(t, "emission", "time",
		"--initial-ups", "4_000_000_000_000_000_000", "--tail-ups", "10_000_000_000_000_000",
		"--halving-period", "2592000", "--start", "1700000000", "--now", "1705000000", "--decimals", "18")
	require.NoError(t, err)
	assert.Equal(t, "Rate: 2\n  time: 1705000000\n  halvings: 1\n  next halving: 1705184000\n", out)
}

func TestEmission_Day(t *testing.T) {
	out, err := executeCommand(t, "emission", "day",
		"--initial", "1_000_000", "--min", "1_000", "--halving-period", "30", "--day", "95", "--format", "json")
	require.NoError(t, err)

	data := decodeResponse(t, out)["data"].(map[string]any)
	assert.Equal(t, float64(3), data["halvings"])
	assert.Equal(t, "125000", data["rate"])
	assert.Equal(t, "120", data["next"])

	out, err = executeCommand(t, "emission", "day",
		"--initial", "1_000_000", "--min", "1_000", "--halving-period", "1", "--day", "400", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, "1000", decodeResponse(t, out)["data"].(map[string]any)["rate"], "floored")
}

func TestEmission_InvalidSchedule(t *testing.T) {
	out, err := executeCommand(t, "emission", "time",
		"--initial-ups", "4", "--tail-ups", "1", "--halving-period", "60")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "INVALID_HALVING")

	_, err = executeCommand(t, "emission", "supply", "--initial-ups", "4", "--tail-ups", "1")
	require.Error(t, err, "halving amount is required")
}
