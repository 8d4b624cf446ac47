package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrover/drived/pkg/drive"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		want        drive.Intent
		wantClamped bool
		wantErr     bool
	}{
		{"split tokens", []string{"0.5", "0.2"}, drive.Manual(0.5, 0.2), false, false},
		{"comma joined", []string{"0.5,0.2"}, drive.Manual(0.5, 0.2), false, false},
		{"quoted tokens", []string{`"0.5"`, `"-0.2"`}, drive.Manual(0.5, -0.2), false, false},
		{"explicit manual", []string{"manual", "0.1", "0"}, drive.Manual(0.1, 0), false, false},
		{"velocity mode", []string{"velocity", "1.5", "-0.3"}, drive.Velocity(1.5, -0.3), false, false},
		{"clamped forward", []string{"1.5", "0"}, drive.Manual(1, 0), true, false},
		{"clamped turn", []string{"0", "-2"}, drive.Manual(0, -1), true, false},
		{"velocity not clamped", []string{"velocity", "4.2", "0"}, drive.Velocity(4.2, 0), false, false},
		{"unknown mode", []string{"turbo", "0", "0"}, drive.Intent{}, false, true},
		{"too few tokens", []string{"0.5"}, drive.Intent{}, false, true},
		{"too many tokens", []string{"0.1", "0.2", "0.3", "0.4"}, drive.Intent{}, false, true},
		{"not a number", []string{"fast", "0"}, drive.Intent{}, false, true},
		{"nan rejected", []string{"NaN", "0"}, drive.Intent{}, false, true},
		{"inf rejected", []string{"0", "+Inf"}, drive.Intent{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped, err := ParseIntent(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantClamped, clamped)
		})
	}
}

func TestParseParamSet(t *testing.T) {
	key, value, err := ParseParamSet([]string{"drive.slowTurnFactor", "0.25"})
	require.NoError(t, err)
	assert.Equal(t, "drive.slowTurnFactor", key)
	assert.Equal(t, 0.25, value)

	key, value, err = ParseParamSet([]string{"drive.idleBrake,false"})
	require.NoError(t, err)
	assert.Equal(t, "drive.idleBrake", key)
	assert.Equal(t, false, value)

	key, value, err = ParseParamSet([]string{"vehicle.label", "rover-b"})
	require.NoError(t, err)
	assert.Equal(t, "vehicle.label", key)
	assert.Equal(t, "rover-b", value)

	_, _, err = ParseParamSet([]string{"onlykey"})
	assert.Error(t, err)

	_, _, err = ParseParamSet([]string{"k", "NaN"})
	assert.Error(t, err, "non-finite numeric value must be rejected")
}

func TestParseParamGet(t *testing.T) {
	key, err := ParseParamGet([]string{"drive.gearRatio"})
	require.NoError(t, err)
	assert.Equal(t, "drive.gearRatio", key)

	_, err = ParseParamGet(nil)
	assert.Error(t, err)

	_, err = ParseParamGet([]string{"a", "b"})
	assert.Error(t, err)
}

func TestParseSessionStart(t *testing.T) {
	assert.Equal(t, "", ParseSessionStart(nil))
	assert.Equal(t, "morning run", ParseSessionStart([]string{"morning", "run"}))
	assert.Equal(t, "field test", ParseSessionStart([]string{`"field test"`}))
}
