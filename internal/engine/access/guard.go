package access

import (
	"github.com/rs/zerolog/log"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/models"
)

// Recorder receives every decision a Guard makes.
type Recorder interface {
	RecordDecision(action string, allowed bool)
}

// Guard wraps the evaluators for services: it records the decision and
// returns a deny as an error. A nil Guard still enforces the policy.
type Guard struct {
	recorder Recorder
}

func NewGuard(recorder Recorder) *Guard {
	return &Guard{recorder: recorder}
}

func (g *Guard) Require(caller Caller, action Action, res Resource) error {
	return g.observe(action, caller, Check(caller, action, res))
}

// Precheck rejects anonymous callers for actions that need a session, so
// they learn nothing about whether the target exists. Nothing is recorded.
func (g *Guard) Precheck(caller Caller, action Action) error {
	if caller.Authenticated() {
		return nil
	}
	if req, ok := policy[action]; ok && req == RequireNone {
		return nil
	}
	return errors.ErrUnauthenticated
}

// RequireManage authorizes administration of a user holding target,
// optionally reassigning it to newRole.
func (g *Guard) RequireManage(caller Caller, action Action, target models.Role, newRole *models.Role) error {
	return g.observe(action, caller, CanManageUser(caller, target, newRole))
}

func (g *Guard) RequireRead(caller Caller, targetID string, target models.Role) error {
	return g.observe(ActionReadUser, caller, CanReadUser(caller, targetID, target))
}

func (g *Guard) observe(action Action, caller Caller, d Decision) error {
	if g != nil && g.recorder != nil {
		g.recorder.RecordDecision(string(action), d.Allowed)
	}
	if !d.Allowed {
		log.Debug().
			Str("action", string(action)).
			Str("user_id", caller.UserID).
			Str("role", caller.Role.String()).
			Str("reason", string(d.Reason)).
			Msg("access denied")
	}
	return d.Err()
}
