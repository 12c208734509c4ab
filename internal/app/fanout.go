package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Whisper/internal/core"
	"github.com/dkeye/Whisper/internal/domain"
)

// FanoutEngine pushes one encoded frame to every online device of every
// conversation member. At-most-once per currently registered device, best
// effort; offline delivery belongs to the push-notification collaborator.
type FanoutEngine struct {
	Members  core.MembershipStore
	Registry *Registry
}

func NewFanoutEngine(members core.MembershipStore, registry *Registry) *FanoutEngine {
	return &FanoutEngine{Members: members, Registry: registry}
}

// DeliverToConversation resolves membership and sends frame to every member
// except exclude. A dead connection is pruned by the registry and never
// aborts delivery to the remaining recipients. Empty membership is fine.
func (f *FanoutEngine) DeliverToConversation(ctx context.Context, id domain.ConversationID, frame core.Frame, exclude domain.UserID) error {
	members, err := f.Members.Members(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve members of %s: %w", id, err)
	}

	delivered := 0
	for _, member := range members {
		if member == exclude {
			continue
		}
		delivered += f.Registry.SendToUser(member, frame)
	}
	log.Debug().Str("module", "app.fanout").Str("conversation", string(id)).
		Int("members", len(members)).Int("delivered", delivered).Msg("fanout done")
	return nil
}
