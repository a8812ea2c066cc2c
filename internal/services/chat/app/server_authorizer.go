package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
	"github.com/openhack/teamup/internal/platform/identity"
	"github.com/openhack/teamup/internal/platform/timeouts"
	"github.com/openhack/teamup/internal/services/chat/domain"
)

// roomAuthorizer decides who may enter a room. World rooms are open to every
// authenticated attendee; team rooms require a seat on the team.
type roomAuthorizer interface {
	CanJoin(ctx context.Context, actor identity.Principal, room domain.RoomID) (bool, error)
}

// teamsAuthorizer consults the teams service's internal membership endpoint,
// authenticated by a shared resource secret.
type teamsAuthorizer struct {
	baseURL        string
	resourceSecret string
	httpClient     *http.Client
}

func newTeamsAuthorizer(baseURL, resourceSecret string) roomAuthorizer {
	baseURL = strings.TrimSpace(baseURL)
	resourceSecret = strings.TrimSpace(resourceSecret)
	if baseURL == "" || resourceSecret == "" {
		return nil
	}
	return &teamsAuthorizer{
		baseURL:        strings.TrimRight(baseURL, "/"),
		resourceSecret: resourceSecret,
		httpClient: &http.Client{
			Timeout: timeouts.InternalRequest,
		},
	}
}

type membershipPayload struct {
	Member bool `json:"member"`
}

func (a *teamsAuthorizer) CanJoin(ctx context.Context, actor identity.Principal, room domain.RoomID) (bool, error) {
	if room.Kind == domain.RoomKindWorld {
		return true, nil
	}
	if a == nil || a.httpClient == nil {
		return false, apperrors.New(apperrors.CodeUnavailable, "membership checks are not configured")
	}

	endpoint := a.baseURL + "/internal/membership?" + url.Values{
		"team_id": {room.Scope},
		"user_id": {actor.UserID},
	}.Encode()

	callCtx, cancel := context.WithTimeout(ctx, timeouts.InternalRequest)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build membership request: %w", err)
	}
	req.Header.Set("X-Resource-Secret", a.resourceSecret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeUnavailable, "membership verification unavailable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		return false, apperrors.New(apperrors.CodeUnavailable, fmt.Sprintf("membership check status %d", resp.StatusCode))
	}

	var payload membershipPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("decode membership response: %w", err)
	}
	return payload.Member, nil
}
