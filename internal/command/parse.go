// Package command implements the operator command surface: parsing of wire
// arguments and the dispatcher handlers that apply them to the drive
// controller, the parameter store and the session lifecycle.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openrover/drived/internal/util"
	"github.com/openrover/drived/pkg/drive"
)

// Wire command constants. These are the dispatcher routing keys; remotes and
// the stream backend send exactly these strings.
const (
	CmdSessionStart   = ":SESSION:START:"
	CmdSessionEnd     = ":SESSION:END:"
	CmdIntent         = ":INTENT:"
	CmdModeManual     = ":MODE:MANUAL:"
	CmdModeVelocity   = ":MODE:VELOCITY:"
	CmdToggleReverse  = ":TOGGLE:REVERSE:"
	CmdToggleSlowTurn = ":TOGGLE:SLOWTURN:"
	CmdReset          = ":RESET:"
	CmdParamSet       = ":PARAM:SET:"
	CmdParamGet       = ":PARAM:GET:"
	CmdParamList      = ":PARAM:LIST:"
	CmdStatus         = ":STATUS:"
	CmdOdom           = ":ODOM:"
	CmdVersion        = ":VERSION:"
)

// normalizeArgs flattens the token forms remotes send: either one
// comma-joined string or pre-split tokens, either way possibly quoted.
func normalizeArgs(args []string) []string {
	if len(args) == 1 && strings.Contains(args[0], ",") {
		args = strings.Split(args[0], ",")
	}
	out := make([]string, 0, len(args))
	for _, a := range args {
		a = strings.TrimSpace(util.FixEscapeQuotes(util.TrimQuotes(a)))
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// parseAxis parses one numeric token, rejecting NaN and infinities at the
// intake boundary so the mixer never sees them.
func parseAxis(token string) (float64, error) {
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid axis value %q: %w", token, err)
	}
	if !util.IsFinite(v) {
		return 0, fmt.Errorf("non-finite axis value %q", token)
	}
	return v, nil
}

// ParseIntent parses an :INTENT: argument list: "forward,turn" or
// "mode,forward,turn". Manual axes outside [-1, 1] are clamped; clamped
// reports whether that happened so the handler can log it.
func ParseIntent(args []string) (intent drive.Intent, clamped bool, err error) {
	tokens := normalizeArgs(args)

	mode := drive.ModeManual
	if len(tokens) == 3 {
		switch strings.ToLower(tokens[0]) {
		case "manual":
			mode = drive.ModeManual
		case "velocity":
			mode = drive.ModeVelocity
		default:
			return drive.Intent{}, false, fmt.Errorf("unknown drive mode %q", tokens[0])
		}
		tokens = tokens[1:]
	}
	if len(tokens) != 2 {
		return drive.Intent{}, false, fmt.Errorf("intent expects 2 axes, got %d tokens", len(tokens))
	}

	forward, err := parseAxis(tokens[0])
	if err != nil {
		return drive.Intent{}, false, err
	}
	turn, err := parseAxis(tokens[1])
	if err != nil {
		return drive.Intent{}, false, err
	}

	if mode == drive.ModeManual {
		// velocity targets are physical units bounded by the actuator, but
		// manual axes are normalized by contract
		if forward < -1 || forward > 1 {
			forward = util.Clamp(forward, -1, 1)
			clamped = true
		}
		if turn < -1 || turn > 1 {
			turn = util.Clamp(turn, -1, 1)
			clamped = true
		}
		return drive.Manual(forward, turn), clamped, nil
	}
	return drive.Velocity(forward, turn), false, nil
}

// ParseParamSet parses a :PARAM:SET: argument list: "key,value". The value
// is typed by trial: number, then bool, else string.
func ParseParamSet(args []string) (key string, value any, err error) {
	tokens := normalizeArgs(args)
	if len(tokens) != 2 {
		return "", nil, fmt.Errorf("param set expects key and value, got %d tokens", len(tokens))
	}
	key = tokens[0]

	if f, err := strconv.ParseFloat(tokens[1], 64); err == nil {
		if !util.IsFinite(f) {
			return "", nil, fmt.Errorf("non-finite param value %q", tokens[1])
		}
		return key, f, nil
	}
	if b, err := strconv.ParseBool(tokens[1]); err == nil {
		return key, b, nil
	}
	return key, tokens[1], nil
}

// ParseParamGet parses a :PARAM:GET: argument list: "key".
func ParseParamGet(args []string) (string, error) {
	tokens := normalizeArgs(args)
	if len(tokens) != 1 {
		return "", fmt.Errorf("param get expects a single key, got %d tokens", len(tokens))
	}
	return tokens[0], nil
}

// ParseSessionStart parses the optional session name argument.
func ParseSessionStart(args []string) string {
	tokens := normalizeArgs(args)
	if len(tokens) == 0 {
		return ""
	}
	return strings.Join(tokens, " ")
}
