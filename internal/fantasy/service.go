package fantasy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// probePath is a login-scoped collection every connected account can read.
// It is used to disambiguate the provider's 400/404 conflation: if the probe
// succeeds the original key simply does not resolve, if the probe is denied
// the account lacks access.
const probePath = "/users;use_login=1/games"

// Service exposes the normalized fantasy data operations.
type Service struct {
	client *Client
	logger *zap.Logger
}

// NewService constructs the data service on top of an authenticated client.
func NewService(client *Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, logger: logger}
}

// FetchLeague returns the normalized league. The commissioner lookup is a
// best-effort secondary call: its failure is logged and the field left nil,
// never surfaced as an error of the league fetch itself.
func (service *Service) FetchLeague(ctx context.Context, userID string, leagueKey string) (NormalizedLeague, error) {
	var envelope leagueEnvelope
	path := fmt.Sprintf("/league/%s/metadata", leagueKey)
	if fetchErr := service.client.GetJSON(ctx, userID, path, &envelope); fetchErr != nil {
		return NormalizedLeague{}, service.resolveAmbiguity(ctx, userID, fetchErr)
	}
	league := normalizeLeague(envelope.FantasyContent.League)

	commissioner, commissionerErr := service.lookupCommissioner(ctx, userID, leagueKey)
	if commissionerErr != nil {
		service.logger.Warn("commissioner lookup failed",
			zap.String("user_id", userID),
			zap.String("league_key", leagueKey),
			zap.Error(commissionerErr),
		)
	} else {
		league.Commissioner = commissioner
	}
	return league, nil
}

// FetchLeagueTeams returns the normalized teams of a league.
func (service *Service) FetchLeagueTeams(ctx context.Context, userID string, leagueKey string) ([]NormalizedTeam, error) {
	var envelope leagueTeamsEnvelope
	path := fmt.Sprintf("/league/%s/teams", leagueKey)
	if fetchErr := service.client.GetJSON(ctx, userID, path, &envelope); fetchErr != nil {
		return nil, service.resolveAmbiguity(ctx, userID, fetchErr)
	}
	teams := make([]NormalizedTeam, 0, len(envelope.FantasyContent.League.Teams))
	for _, entry := range envelope.FantasyContent.League.Teams {
		teams = append(teams, normalizeTeam(entry.Team, leagueKey))
	}
	return teams, nil
}

// FetchTeam returns one normalized team by its provider team key.
func (service *Service) FetchTeam(ctx context.Context, userID string, teamKey string) (NormalizedTeam, error) {
	var envelope teamEnvelope
	path := fmt.Sprintf("/team/%s/metadata", teamKey)
	if fetchErr := service.client.GetJSON(ctx, userID, path, &envelope); fetchErr != nil {
		return NormalizedTeam{}, service.resolveAmbiguity(ctx, userID, fetchErr)
	}
	return normalizeTeam(envelope.FantasyContent.Team, leagueKeyFromTeamKey(teamKey)), nil
}

func (service *Service) lookupCommissioner(ctx context.Context, userID string, leagueKey string) (*NormalizedManager, error) {
	teams, teamsErr := service.FetchLeagueTeams(ctx, userID, leagueKey)
	if teamsErr != nil {
		return nil, teamsErr
	}
	for _, team := range teams {
		if team.IsCommissioner {
			return &NormalizedManager{ID: team.ManagerID, Name: team.ManagerName}, nil
		}
	}
	return nil, nil
}

// resolveAmbiguity turns the internal ambiguous-key marker into NotFound or
// PermissionDenied by probing a collection the connected account can always
// read. The provider does not document the distinction, so this is a policy,
// not a guarantee.
func (service *Service) resolveAmbiguity(ctx context.Context, userID string, fetchErr error) error {
	if !errors.Is(fetchErr, errAmbiguousKey) {
		return fetchErr
	}
	var probe struct{}
	probeErr := service.client.GetJSON(ctx, userID, probePath, &probe)
	switch {
	case probeErr == nil:
		return fmt.Errorf("%w: %v", ErrNotFound, fetchErr)
	case errors.Is(probeErr, ErrPermissionDenied):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, fetchErr)
	default:
		service.logger.Warn("ambiguity probe failed", zap.String("user_id", userID), zap.Error(probeErr))
		return fmt.Errorf("%w: %v", ErrNotFound, fetchErr)
	}
}
