package fantasy

import (
	"fmt"
	"strings"
)

// NormalizedLeague is the read-only league projection handed to callers.
// ID is derived deterministically from the provider league key so repeated
// imports of the same league are idempotent.
type NormalizedLeague struct {
	ID           string             `json:"id"`
	Key          string             `json:"key"`
	Name         string             `json:"name"`
	Season       string             `json:"season"`
	NumTeams     int                `json:"numTeams"`
	ScoringType  string             `json:"scoringType"`
	Commissioner *NormalizedManager `json:"commissioner"`
}

// NormalizedTeam is the read-only team projection handed to callers.
type NormalizedTeam struct {
	ID             string `json:"id"`
	Key            string `json:"key"`
	LeagueID       string `json:"leagueId"`
	Name           string `json:"name"`
	LogoURL        string `json:"logoUrl"`
	ManagerID      string `json:"managerId"`
	ManagerName    string `json:"managerName"`
	IsCommissioner bool   `json:"isCommissioner"`
}

// NormalizedManager identifies a league or team manager.
type NormalizedManager struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// stableID derives a domain identifier from a provider key. The provider key
// is already unique and stable, so a prefixed copy is enough to keep imports
// idempotent while staying independent of the provider's response nesting.
func stableID(kind string, providerKey string) string {
	return fmt.Sprintf("%s:%s", kind, providerKey)
}

// Raw provider payload shapes. The provider wraps every response in a
// fantasy_content envelope; only the fields this subsystem reads are modeled.

type leagueEnvelope struct {
	FantasyContent struct {
		League rawLeague `json:"league"`
	} `json:"fantasy_content"`
}

type leagueTeamsEnvelope struct {
	FantasyContent struct {
		League struct {
			rawLeague
			Teams []struct {
				Team rawTeam `json:"team"`
			} `json:"teams"`
		} `json:"league"`
	} `json:"fantasy_content"`
}

type teamEnvelope struct {
	FantasyContent struct {
		Team rawTeam `json:"team"`
	} `json:"fantasy_content"`
}

type rawLeague struct {
	LeagueKey   string `json:"league_key"`
	LeagueID    string `json:"league_id"`
	Name        string `json:"name"`
	Season      string `json:"season"`
	NumTeams    int    `json:"num_teams"`
	ScoringType string `json:"scoring_type"`
}

type rawTeam struct {
	TeamKey  string `json:"team_key"`
	TeamID   string `json:"team_id"`
	Name     string `json:"name"`
	TeamLogo struct {
		URL string `json:"url"`
	} `json:"team_logo"`
	Managers []struct {
		Manager rawManager `json:"manager"`
	} `json:"managers"`
}

type rawManager struct {
	ManagerID      string `json:"manager_id"`
	Nickname       string `json:"nickname"`
	IsCommissioner string `json:"is_commissioner"`
}

func normalizeLeague(raw rawLeague) NormalizedLeague {
	return NormalizedLeague{
		ID:          stableID("league", raw.LeagueKey),
		Key:         raw.LeagueKey,
		Name:        raw.Name,
		Season:      raw.Season,
		NumTeams:    raw.NumTeams,
		ScoringType: raw.ScoringType,
	}
}

func normalizeTeam(raw rawTeam, leagueKey string) NormalizedTeam {
	team := NormalizedTeam{
		ID:      stableID("team", raw.TeamKey),
		Key:     raw.TeamKey,
		Name:    raw.Name,
		LogoURL: raw.TeamLogo.URL,
	}
	if leagueKey != "" {
		team.LeagueID = stableID("league", leagueKey)
	}
	for _, entry := range raw.Managers {
		manager := entry.Manager
		if team.ManagerID == "" {
			team.ManagerID = stableID("manager", manager.ManagerID)
			team.ManagerName = manager.Nickname
		}
		// The provider reports the flag as the string "1".
		if manager.IsCommissioner == "1" {
			team.ManagerID = stableID("manager", manager.ManagerID)
			team.ManagerName = manager.Nickname
			team.IsCommissioner = true
		}
	}
	return team
}

// leagueKeyFromTeamKey strips the team suffix from a provider team key
// ("nfl.l.12345.t.3" -> "nfl.l.12345"). An unrecognized shape yields "".
func leagueKeyFromTeamKey(teamKey string) string {
	if index := strings.LastIndex(teamKey, ".t."); index > 0 {
		return teamKey[:index]
	}
	return ""
}
