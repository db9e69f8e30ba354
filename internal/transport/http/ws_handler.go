package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"vexcel-xp-service/internal/app"
	"vexcel-xp-service/internal/domain"
)

// Services bundles the use cases reachable over the websocket.
type Services struct {
	Users      *app.UserService
	Progress   *app.ProgressService
	Teams      *app.TeamService
	Challenges *app.ChallengeService
	Events     *app.Hub
	// DefaultChallengeCount is used when challengeStart omits a count.
	DefaultChallengeCount int
}

type WSHandler struct {
	services Services
	verifier *TokenVerifier
	upgrader websocket.Upgrader
}

func NewWSHandler(services Services, verifier *TokenVerifier) *WSHandler {
	return &WSHandler{
		services: services,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type completePayload struct {
	ModuleID   string `json:"moduleId"`
	ActivityID string `json:"activityId"`
	Answers    []int  `json:"answers"`
}

type createTeamPayload struct {
	Name string `json:"name"`
}

type joinTeamPayload struct {
	Code string `json:"code"`
}

type leaderboardPayload struct {
	Kind  string `json:"kind"`
	Limit int    `json:"limit"`
}

type challengeAnswerPayload struct {
	Option int `json:"option"`
}

type teamResult struct {
	Team    *domain.Team `json:"team,omitempty"`
	Deleted bool         `json:"deleted,omitempty"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS authenticates the caller, signs them in and serves the XP protocol
// until the connection closes. Hub events for the user are forwarded as they arrive.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	raw, err := tokenFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	userID, err := h.verifier.Verify(raw)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	user, err := h.services.Users.SignIn(ctx, domain.Identity{
		ID:          userID,
		DisplayName: r.URL.Query().Get("name"),
		AvatarURL:   r.URL.Query().Get("avatar"),
	})
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorPayload{Message: domain.Message(err)}})
		return
	}

	events, cancel := h.services.Events.Subscribe(userID)
	defer cancel()
	defer h.services.Challenges.Discard(userID)

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).WithField("user_id", userID).Warn("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: ev.Type, Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage{Type: "joined", Payload: user}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		for _, msg := range h.dispatch(ctx, userID, inbound) {
			send <- msg
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// dispatch runs one inbound message and returns the direct replies. Challenge
// state changes reach the client through the hub instead.
func (h *WSHandler) dispatch(ctx context.Context, userID string, in inboundMessage) []outboundMessage {
	switch in.Type {
	case "complete":
		var p completePayload
		if err := decode(in.Payload, &p); err != nil {
			return errorReply("invalid complete payload")
		}
		res, err := h.services.Progress.CompleteActivity(ctx, userID, p.ModuleID, p.ActivityID, domain.Attempt{Answers: p.Answers})
		if errors.Is(err, domain.ErrBelowPassThreshold) {
			return []outboundMessage{{Type: "progress", Payload: res}, errorMessage(err)}
		}
		if err != nil {
			return []outboundMessage{errorMessage(err)}
		}
		if res.XPAwarded > 0 {
			h.services.Teams.BroadcastLeaderboard(ctx)
		}
		return []outboundMessage{{Type: "progress", Payload: res}}

	case "createTeam":
		var p createTeamPayload
		if err := decode(in.Payload, &p); err != nil {
			return errorReply("invalid createTeam payload")
		}
		team, err := h.services.Teams.CreateTeam(ctx, userID, p.Name)
		if err != nil {
			return []outboundMessage{errorMessage(err)}
		}
		h.services.Teams.BroadcastLeaderboard(ctx)
		return []outboundMessage{{Type: "team", Payload: teamResult{Team: &team}}}

	case "joinTeam":
		var p joinTeamPayload
		if err := decode(in.Payload, &p); err != nil {
			return errorReply("invalid joinTeam payload")
		}
		team, err := h.services.Teams.JoinTeam(ctx, userID, p.Code)
		if err != nil {
			return []outboundMessage{errorMessage(err)}
		}
		return []outboundMessage{{Type: "team", Payload: teamResult{Team: &team}}}

	case "leaveTeam":
		deleted, err := h.services.Teams.LeaveTeam(ctx, userID)
		if err != nil {
			return []outboundMessage{errorMessage(err)}
		}
		if deleted {
			h.services.Teams.BroadcastLeaderboard(ctx)
		}
		return []outboundMessage{{Type: "team", Payload: teamResult{Deleted: deleted}}}

	case "leaderboard":
		var p leaderboardPayload
		if err := decode(in.Payload, &p); err != nil {
			return errorReply("invalid leaderboard payload")
		}
		var (
			board domain.Leaderboard
			err   error
		)
		if p.Kind == "users" {
			board, err = h.services.Teams.UserLeaderboard(ctx, p.Limit)
		} else {
			board, err = h.services.Teams.Leaderboard(ctx, p.Limit)
		}
		if err != nil {
			return []outboundMessage{errorMessage(err)}
		}
		return []outboundMessage{{Type: "leaderboard", Payload: board}}

	case "challengeStart":
		var cfg app.ChallengeConfig
		if err := decode(in.Payload, &cfg); err != nil {
			return errorReply("invalid challengeStart payload")
		}
		if cfg.Count == 0 {
			cfg.Count = h.services.DefaultChallengeCount
		}
		if _, err := h.services.Challenges.Start(ctx, userID, cfg); err != nil {
			return []outboundMessage{errorMessage(err)}
		}
		return nil

	case "challengeAnswer":
		var p challengeAnswerPayload
		if err := decode(in.Payload, &p); err != nil {
			return errorReply("invalid challengeAnswer payload")
		}
		if _, err := h.services.Challenges.Answer(ctx, userID, p.Option); err != nil {
			return []outboundMessage{errorMessage(err)}
		}
		return nil

	case "challengeNext":
		snap, err := h.services.Challenges.Next(ctx, userID)
		if err != nil {
			return []outboundMessage{errorMessage(err)}
		}
		if snap.State == app.ChallengeResults && snap.XPAward > 0 {
			h.services.Teams.BroadcastLeaderboard(ctx)
		}
		return nil

	case "challengeReset":
		if _, err := h.services.Challenges.Reset(ctx, userID); err != nil {
			return []outboundMessage{errorMessage(err)}
		}
		return nil
	}
	return errorReply("unsupported message type")
}

// decode tolerates an absent payload.
func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: domain.Message(err)}}
}

func errorReply(message string) []outboundMessage {
	return []outboundMessage{{Type: "error", Payload: errorPayload{Message: message}}}
}
