package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/wren/pkg/dice"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/entity"
	"github.com/aretw0/wren/pkg/ports"
	"github.com/aretw0/wren/pkg/scenelog"
)

// handleScene shows the scene, or narrates a new one and applies any labeled
// fields found in the narration.
func (r *Router) handleScene(ctx context.Context, inv Invocation) (Result, error) {
	if !inv.Member.IsGameMaster() {
		return Result{}, fmt.Errorf("%w: Only the GM can use the /scene command", domain.ErrUnauthorized)
	}
	sessionID := inv.Session.ID

	if inv.Raw == "" {
		st, err := r.svc.Scenes.Read(ctx, sessionID)
		if err != nil {
			return Result{}, err
		}
		return Result{Message: FormatScene(st), Scene: &st}, nil
	}

	var res Result
	err := r.svc.Locks.WithLock(ctx, sessionID, func(ctx context.Context) error {
		current, err := r.svc.Scenes.Read(ctx, sessionID)
		if err != nil {
			return err
		}
		st, err := r.svc.Scenes.Apply(ctx, sessionID, ExtractSceneFields(inv.Raw), true)
		if err != nil {
			return err
		}
		entry, err := r.svc.Log.Append(ctx, scenelog.AppendRequest{
			SessionID: sessionID,
			AuthorID:  inv.Member.ParticipantID,
			Speaker:   domain.SceneSpeaker,
			Content:   fmt.Sprintf("**SCENE %d**\n%s", current.SceneNumber, inv.Raw),
			Kind:      domain.KindScene,
			Override:  true,
		})
		if err != nil {
			// The scene must not advance without its log entry.
			if _, rerr := r.svc.Scenes.Restore(context.WithoutCancel(ctx), current); rerr != nil {
				r.logger.Error("Failed to restore scene", "session_id", sessionID, "err", rerr)
			}
			return err
		}
		res = Result{Message: "Scene updated", Entry: &entry, Scene: &st}
		return nil
	})
	return res, err
}

// handleRoll rolls a dice pool: /roll [NdM|N] [comment...].
func (r *Router) handleRoll(ctx context.Context, inv Invocation) (Result, error) {
	spec, comment := dice.ParseArgs(inv.Args)
	roll := r.roller.Roll(spec)
	text := dice.Format(roll, comment)
	entry, err := r.svc.Log.Append(ctx, scenelog.AppendRequest{
		SessionID: inv.Session.ID,
		AuthorID:  inv.Member.ParticipantID,
		Speaker:   characterName(inv.Member),
		Content:   text,
		Kind:      domain.KindRoll,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Message: text, Entry: &entry, Roll: &roll}, nil
}

// handleSummon brings an entity into the scene. Both "/summon <type> <name>
// [description]" and "/summon <name> [type] [description]" are accepted; the
// first form applies when the first argument is a known type.
func (r *Router) handleSummon(ctx context.Context, inv Invocation) (Result, error) {
	name, typ, desc, err := parseSummonArgs(inv.Args)
	if err != nil {
		return Result{}, err
	}
	if typ.Restricted() && !inv.Member.IsGameMaster() {
		return Result{}, fmt.Errorf("%w: Only GM can summon %s entities", domain.ErrUnauthorized, typ)
	}

	sessionID := inv.Session.ID
	character := characterName(inv.Member)
	var res Result
	err = r.svc.Locks.WithLock(ctx, sessionID, func(ctx context.Context) error {
		e, err := r.svc.Entities.Summon(ctx, entity.SummonRequest{
			SessionID:   sessionID,
			CreatorID:   inv.Member.ParticipantID,
			Name:        name,
			Type:        typ,
			Description: desc,
		})
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("**%s** %s %s '%s' to the scene", character, e.Type.Verb(), e.Type, e.Name)
		if e.Description != "" {
			msg += "\n" + e.Description
		}
		entry, err := r.svc.Log.Append(ctx, scenelog.AppendRequest{
			SessionID: sessionID,
			AuthorID:  inv.Member.ParticipantID,
			Speaker:   character,
			Content:   msg,
			Kind:      domain.KindSummon,
		})
		if err != nil {
			return err
		}
		res = Result{Message: msg, Entry: &entry, Entity: &e}
		return nil
	})
	return res, err
}

func parseSummonArgs(args []string) (string, domain.EntityType, string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", "", "", fmt.Errorf("%w: Entity name required", domain.ErrValidation)
	}
	first := domain.EntityType(strings.ToLower(args[0]))
	if first.Known() && len(args) >= 2 {
		return args[1], first, strings.Join(args[2:], " "), nil
	}
	typ := domain.EntityNPC
	if len(args) > 1 {
		typ = domain.EntityType(strings.ToLower(args[1]))
	}
	var desc string
	if len(args) > 2 {
		desc = strings.Join(args[2:], " ")
	}
	return args[0], typ, desc, nil
}

// handleEcho writes in-character text to the log.
func (r *Router) handleEcho(ctx context.Context, inv Invocation) (Result, error) {
	if inv.Raw == "" {
		return Result{}, fmt.Errorf("%w: Message text required", domain.ErrValidation)
	}
	entry, err := r.svc.Log.Append(ctx, scenelog.AppendRequest{
		SessionID: inv.Session.ID,
		AuthorID:  inv.Member.ParticipantID,
		Speaker:   characterName(inv.Member),
		Content:   inv.Raw,
		Kind:      domain.KindEcho,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Message: "Echo added to scene log", Entry: &entry}, nil
}

// handleDismiss retires an entity. The game-master may dismiss anything,
// other members only what they summoned.
func (r *Router) handleDismiss(ctx context.Context, inv Invocation) (Result, error) {
	if inv.Raw == "" {
		return Result{}, fmt.Errorf("%w: Entity id or name required", domain.ErrValidation)
	}
	ref := inv.Raw
	if len(inv.Args) == 1 {
		ref = inv.Args[0]
	}

	sessionID := inv.Session.ID
	character := characterName(inv.Member)
	var res Result
	err := r.svc.Locks.WithLock(ctx, sessionID, func(ctx context.Context) error {
		target, err := r.svc.Entities.Find(ctx, sessionID, ref)
		if err != nil {
			return err
		}
		if !target.IsActive {
			return fmt.Errorf("%w: entity %q is not in the scene", domain.ErrNotFound, ref)
		}
		if !inv.Member.IsGameMaster() && target.CreatedBy != inv.Member.ParticipantID {
			return fmt.Errorf("%w: Only the GM or its summoner can dismiss '%s'", domain.ErrUnauthorized, target.Name)
		}
		retired, err := r.svc.Entities.Retire(ctx, sessionID, target.ID)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("**%s** dismissed %s '%s' from the scene", character, retired.Type, retired.Name)
		entry, err := r.svc.Log.Append(ctx, scenelog.AppendRequest{
			SessionID: sessionID,
			AuthorID:  inv.Member.ParticipantID,
			Speaker:   character,
			Content:   msg,
			Kind:      domain.KindDismiss,
		})
		if err != nil {
			return err
		}
		res = Result{Message: msg, Entry: &entry, Entity: &retired}
		return nil
	})
	return res, err
}

// handlePrompt forwards free text to the completion bridge. The reply is
// logged only after generation succeeds.
func (r *Router) handlePrompt(ctx context.Context, inv Invocation) (Result, error) {
	if r.completer == nil {
		return Result{}, fmt.Errorf("%w: no completion bridge configured", domain.ErrGeneration)
	}
	participantID := inv.Member.ParticipantID

	var history []domain.Message
	if r.conversations != nil && r.historyLimit > 0 {
		h, err := r.conversations.Recent(ctx, participantID, r.historyLimit)
		if err != nil {
			r.logger.Warn("Failed to load conversation history", "participant_id", participantID, "err", err)
		}
		history = h
	}

	start := time.Now()
	reply, err := r.generate(ctx, inv, history)
	r.hooks.Generate(ctx, &domain.GenerateEvent{
		Timestamp:     time.Now(),
		SessionID:     inv.Session.ID,
		ParticipantID: participantID,
		Duration:      time.Since(start),
		IsError:       err != nil,
	})
	if err != nil {
		if errors.Is(err, domain.ErrGeneration) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}

	entry, err := r.svc.Log.Append(ctx, scenelog.AppendRequest{
		SessionID: inv.Session.ID,
		AuthorID:  participantID,
		Speaker:   domain.AISpeaker,
		Content:   reply,
		Kind:      domain.KindAI,
	})
	if err != nil {
		return Result{}, err
	}

	if r.conversations != nil {
		now := time.Now().UTC()
		for _, msg := range []domain.Message{
			{Role: domain.MessageUser, Content: inv.Raw, CreatedAt: now},
			{Role: domain.MessageAssistant, Content: reply, CreatedAt: now},
		} {
			if err := r.conversations.Append(ctx, participantID, msg); err != nil {
				r.logger.Warn("Failed to record conversation", "participant_id", participantID, "err", err)
				break
			}
		}
	}
	return Result{Command: PromptCommand, Message: reply, Entry: &entry}, nil
}

// generate streams through the completer when the caller wants fragments
// and the completer supports it. A non-streaming completer delivers its whole
// reply as a single fragment.
func (r *Router) generate(ctx context.Context, inv Invocation, history []domain.Message) (string, error) {
	if inv.OnDelta == nil {
		return r.completer.Generate(ctx, inv.Raw, history)
	}
	if sc, ok := r.completer.(ports.StreamingCompleter); ok {
		return sc.GenerateStream(ctx, inv.Raw, history, inv.OnDelta)
	}
	reply, err := r.completer.Generate(ctx, inv.Raw, history)
	if err != nil {
		return "", err
	}
	if err := inv.OnDelta(reply); err != nil {
		return "", err
	}
	return reply, nil
}

func characterName(m domain.Membership) string {
	if m.CharacterName != "" {
		return m.CharacterName
	}
	return "Runner-" + domain.ShortID(m.ParticipantID)
}

// FormatScene renders a scene state as markdown.
func FormatScene(st domain.SceneState) string {
	return fmt.Sprintf("**SCENE %d**\nLocation: %s\nGoal: %s\nOpposition: %s\nMagical conditions: %s",
		st.SceneNumber, st.Location, st.Goal, st.Opposition, st.MagicalConditions)
}
