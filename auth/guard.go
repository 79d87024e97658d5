package auth

import (
	"github.com/wfunc/bingoserver/errs"
	"github.com/wfunc/bingoserver/models"
)

// RequireHost 仅房主可执行
func RequireHost(p models.Player) error {
	if !p.IsHost {
		return errs.ErrNotHost
	}
	return nil
}
