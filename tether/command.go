package tether

import (
	"fmt"
	"strconv"
	"strings"
)

// Inbound command names.
const (
	CmdPosition = "POS"
	CmdButton1  = "BTN_1"
	CmdButton2  = "BTN_2"
	CmdAck      = "AOK"
	CmdError    = "ERROR"
)

// PositionScale converts POS arguments, integers in tenths of a millimeter, to centimeters.
const PositionScale = 100.0

// ParseFrame converts one inbound frame (without its terminator) to a typed event.
//
// Recognized frames:
//
//	POS x y z      three integers in tenths of a millimeter -> PositionUpdate in centimeters
//	BTN_1 state    one integer, pressed when state > 0     -> ButtonEvent{ID: 1}
//	BTN_2 state                                            -> ButtonEvent{ID: 2}
//	AOK ...        any arguments                           -> Acknowledgement{Text: frame}
//	ERROR ...      any arguments                           -> DeviceError{Text: frame}
//
// Any other frame yields an error wrapping ErrMalformedFrame. A trailing carriage return is
// ignored, as are trailing token separators.
func ParseFrame(frame string) (Event, error) {
	frame = strings.TrimSuffix(frame, "\r")
	tokens := tokenize(frame)
	name, args := tokens[0], tokens[1:]

	switch name {
	case CmdPosition:
		if err := checkArgs(name, args, 3); err != nil {
			return nil, err
		}

		var coords [3]float64
		for i, arg := range args {
			v, err := parseInt(name, arg)
			if err != nil {
				return nil, err
			}
			coords[i] = float64(v) / PositionScale
		}

		return PositionUpdate{X: coords[0], Y: coords[1], Z: coords[2]}, nil

	case CmdButton1, CmdButton2:
		if err := checkArgs(name, args, 1); err != nil {
			return nil, err
		}

		state, err := parseInt(name, args[0])
		if err != nil {
			return nil, err
		}

		id := 1
		if name == CmdButton2 {
			id = 2
		}

		return ButtonEvent{ID: id, Pressed: state > 0}, nil

	case CmdAck:
		return Acknowledgement{Text: frame}, nil

	case CmdError:
		return DeviceError{Text: frame}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

// tokenize splits a frame on the token separator. Interior empty tokens are kept and count
// toward the arity; trailing empty tokens are dropped. The result always has at least one
// element.
func tokenize(frame string) []string {
	tokens := strings.Split(frame, string(TokenSeparator))
	for len(tokens) > 1 && tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}

	return tokens
}

func checkArgs(name string, args []string, want int) error {
	if len(args) != want {
		return fmt.Errorf("%w: %s expects %d, got %d", ErrArgCount, name, want, len(args))
	}

	return nil
}

func parseInt(name, token string) (int64, error) {
	v, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s argument %q is not an integer", ErrInvalidArgument, name, token)
	}

	return v, nil
}
