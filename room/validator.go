package room

import (
	"fmt"

	"github.com/wfunc/bingoserver/models"
)

// WinCheck is everything a validator may look at.
type WinCheck struct {
	PlayerID string
	Pattern  string
	Marked   []int
	Called   []models.CalledNumber
}

// WinValidator decides whether a claim is a real win.
type WinValidator interface {
	Validate(check WinCheck) bool
}

// WinValidatorFunc adapts a plain function.
type WinValidatorFunc func(check WinCheck) bool

func (f WinValidatorFunc) Validate(check WinCheck) bool {
	return f(check)
}

// AcceptAll trusts the client.
type AcceptAll struct{}

func (AcceptAll) Validate(WinCheck) bool { return true }

// CalledMarks accepts a claim when at least one cell is marked and every
// marked value has been called.
type CalledMarks struct{}

func (CalledMarks) Validate(check WinCheck) bool {
	if len(check.Marked) == 0 {
		return false
	}
	called := make(map[int]struct{}, len(check.Called))
	for _, n := range check.Called {
		called[n.Value] = struct{}{}
	}
	for _, v := range check.Marked {
		if _, ok := called[v]; !ok {
			return false
		}
	}
	return true
}

// ValidatorByName maps the game.win_validator setting.
func ValidatorByName(name string) (WinValidator, error) {
	switch name {
	case "", "accept_all":
		return AcceptAll{}, nil
	case "called_marks":
		return CalledMarks{}, nil
	default:
		return nil, fmt.Errorf("unknown win validator %q", name)
	}
}
