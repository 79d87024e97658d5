package auth

import (
	"errors"
	"testing"

	"github.com/wfunc/bingoserver/errs"
	"github.com/wfunc/bingoserver/models"
)

func TestRequireHost(t *testing.T) {
	if err := RequireHost(models.Player{Name: "Alice", IsHost: true}); err != nil {
		t.Errorf("Expected the host to pass, got %v", err)
	}
	if err := RequireHost(models.Player{Name: "Bob"}); !errors.Is(err, errs.ErrNotHost) {
		t.Errorf("Expected ErrNotHost, got %v", err)
	}
}
