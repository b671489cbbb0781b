package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/CrowderSoup/retro-board/database"
)

// call performs a request and decodes envelope.data into T. Envelopes whose
// code is not 200 come back as *APIError without a second toast.
func call[T any](ctx context.Context, c *Client, path string, opts RequestOptions) (T, error) {
	var result T
	env, err := c.Request(ctx, path, opts)
	if err != nil {
		return result, err
	}
	if env == nil {
		return result, context.Canceled
	}
	if env.Code != http.StatusOK {
		msg := env.Msg
		if msg == "" {
			msg = ErrorMessage(env.Code)
		}
		return result, &APIError{Status: env.Code, Message: msg}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return result, nil
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return result, fmt.Errorf("decode %s: %w", path, err)
	}
	return result, nil
}

func byID(prefix, id string) string {
	return prefix + "/" + url.PathEscape(id)
}

// LoginGoogle exchanges an identity-provider token for an access/refresh pair.
func (c *Client) LoginGoogle(ctx context.Context, idToken string) (database.Tokens, error) {
	return call[database.Tokens](ctx, c, "/auth/login-google", RequestOptions{
		Method: http.MethodPost,
		Data:   map[string]string{"token": idToken},
		NoAuth: true,
	})
}

func (c *Client) Profile(ctx context.Context) (database.User, error) {
	return call[database.User](ctx, c, "/user/profile", RequestOptions{})
}

// CreateRetroSessionRequest is the body of POST /retro-session.
type CreateRetroSessionRequest struct {
	Name     string `json:"name"`
	TeamID   string `json:"team_id,omitempty"`
	SprintID string `json:"sprint_id,omitempty"`
}

func (c *Client) CreateRetroSession(ctx context.Context, req CreateRetroSessionRequest) (database.RetroSession, error) {
	return call[database.RetroSession](ctx, c, "/retro-session", RequestOptions{Method: http.MethodPost, Data: req})
}

func (c *Client) ListRetroSessions(ctx context.Context) ([]database.RetroSession, error) {
	return call[[]database.RetroSession](ctx, c, "/retro-session", RequestOptions{})
}

func (c *Client) GetRetroSession(ctx context.Context, id string) (database.RetroSession, error) {
	return call[database.RetroSession](ctx, c, byID("/retro-session", id), RequestOptions{})
}

func (c *Client) DeleteRetroSession(ctx context.Context, id string) error {
	_, err := call[json.RawMessage](ctx, c, byID("/retro-session", id), RequestOptions{Method: http.MethodDelete})
	return err
}

func (c *Client) CreateActionItem(ctx context.Context, item database.ActionItem) (database.ActionItem, error) {
	return call[database.ActionItem](ctx, c, "/action-item", RequestOptions{Method: http.MethodPost, Data: item})
}

func (c *Client) ListActionItems(ctx context.Context, sessionID string) ([]database.ActionItem, error) {
	return call[[]database.ActionItem](ctx, c, "/action-item", RequestOptions{
		Params: url.Values{"retro_session_id": {sessionID}},
	})
}

// UpdateActionItem posts the full item to /action-item/{id}.
func (c *Client) UpdateActionItem(ctx context.Context, item database.ActionItem) (database.ActionItem, error) {
	return call[database.ActionItem](ctx, c, byID("/action-item", item.ID), RequestOptions{Method: http.MethodPost, Data: item})
}

func (c *Client) DeleteActionItem(ctx context.Context, id string) error {
	_, err := call[json.RawMessage](ctx, c, byID("/action-item", id), RequestOptions{Method: http.MethodDelete})
	return err
}

func (c *Client) CreatePollQuestion(ctx context.Context, q database.PollQuestion) (database.PollQuestion, error) {
	return call[database.PollQuestion](ctx, c, "/poll-question", RequestOptions{Method: http.MethodPost, Data: q})
}

func (c *Client) ListPollQuestions(ctx context.Context, sessionID string) ([]database.PollQuestion, error) {
	return call[[]database.PollQuestion](ctx, c, "/poll-question", RequestOptions{
		Params: url.Values{"retro_session_id": {sessionID}},
	})
}

func (c *Client) CreateTeam(ctx context.Context, team database.Team) (database.Team, error) {
	return call[database.Team](ctx, c, "/teams", RequestOptions{Method: http.MethodPost, Data: team})
}

func (c *Client) ListTeams(ctx context.Context) ([]database.Team, error) {
	return call[[]database.Team](ctx, c, "/teams", RequestOptions{})
}

func (c *Client) DeleteTeam(ctx context.Context, id string) error {
	_, err := call[json.RawMessage](ctx, c, byID("/teams", id), RequestOptions{Method: http.MethodDelete})
	return err
}

func (c *Client) CreateSprint(ctx context.Context, sprint database.Sprint) (database.Sprint, error) {
	return call[database.Sprint](ctx, c, "/sprints", RequestOptions{Method: http.MethodPost, Data: sprint})
}

// ListSprints lists sprints, narrowed to one team when teamID is set.
func (c *Client) ListSprints(ctx context.Context, teamID string) ([]database.Sprint, error) {
	var params url.Values
	if teamID != "" {
		params = url.Values{"team_id": {teamID}}
	}
	return call[[]database.Sprint](ctx, c, "/sprints", RequestOptions{Params: params})
}
