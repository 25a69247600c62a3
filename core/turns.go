package orchestration

import (
	"time"

	"github.com/google/uuid"

	"github.com/voiceloop-ai/voiceloop-core/core/reply"
)

type TurnRole string

const (
	TurnRoleUser   TurnRole = "user"
	TurnRoleAgent  TurnRole = "agent"
	TurnRoleSystem TurnRole = "system"
)

// Turn is one conversational exchange unit. Turns are immutable once
// appended to the transcript log.
type Turn struct {
	ID        string
	Role      TurnRole
	Text      string
	CreatedAt time.Time
}

func newTurn(role TurnRole, text string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// toHistory converts the transcript log into the reply service's history
// format. System turns are advisory and stay local.
func toHistory(turns []Turn) []reply.HistoryTurn {
	history := make([]reply.HistoryTurn, 0, len(turns))
	for _, turn := range turns {
		var role reply.Role
		switch turn.Role {
		case TurnRoleUser:
			role = reply.RoleUser
		case TurnRoleAgent:
			role = reply.RoleAssistant
		default:
			continue
		}
		history = append(history, reply.HistoryTurn{Role: role, Content: turn.Text})
	}
	return history
}
