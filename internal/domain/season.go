package domain

import (
	"fmt"
	"strings"
	"time"
)

// SeasonStatus is the lifecycle phase of a season.
type SeasonStatus string

const (
	StatusInitial       SeasonStatus = "initial"
	StatusStartSignup   SeasonStatus = "start_signup"
	StatusStoppedSignup SeasonStatus = "stopped_signup"
	StatusStartGaming   SeasonStatus = "start_gaming"
	StatusRoundOngoing  SeasonStatus = "round_ongoing"
	StatusStoppedGaming SeasonStatus = "stopped_gaming"
	StatusClosed        SeasonStatus = "closed"
)

// ParseSeasonStatus converts a stored status string. Unknown values are an error.
func ParseSeasonStatus(s string) (SeasonStatus, error) {
	st := SeasonStatus(strings.TrimSpace(s))
	switch st {
	case StatusInitial, StatusStartSignup, StatusStoppedSignup, StatusStartGaming,
		StatusRoundOngoing, StatusStoppedGaming, StatusClosed:
		return st, nil
	}
	return "", fmt.Errorf("unknown season status %q", s)
}

func (s SeasonStatus) String() string { return string(s) }

// Label is the human-facing phase name used in status replies.
func (s SeasonStatus) Label() string {
	switch s {
	case StatusInitial:
		return "Season created, signup not opened yet"
	case StatusStartSignup:
		return "Signup open"
	case StatusStoppedSignup:
		return "Signup closed"
	case StatusStartGaming:
		return "Gaming phase (between rounds)"
	case StatusRoundOngoing:
		return "Round in progress"
	case StatusStoppedGaming:
		return "Gaming phase stopped"
	case StatusClosed:
		return "Closed"
	}
	return string(s)
}

// Hand is a rock-paper-scissors move. HandNone marks a forfeit.
type Hand string

const (
	HandNone     Hand = ""
	HandRock     Hand = "rock"
	HandPaper    Hand = "paper"
	HandScissors Hand = "scissors"
)

// ParseHand accepts a player-typed hand. The empty hand is never accepted from a player.
func ParseHand(s string) (Hand, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock", "r", "🪨", "바위", "주먹":
		return HandRock, nil
	case "paper", "p", "📜", "보":
		return HandPaper, nil
	case "scissors", "s", "✂️", "✂", "가위":
		return HandScissors, nil
	}
	return HandNone, fmt.Errorf("%w: unknown hand %q", ErrInvalidArgument, s)
}

// ParseStoredHand converts a persisted hand, which may be the forfeit hand.
func ParseStoredHand(s string) (Hand, error) {
	h := Hand(strings.TrimSpace(s))
	switch h {
	case HandNone, HandRock, HandPaper, HandScissors:
		return h, nil
	}
	return HandNone, fmt.Errorf("unknown stored hand %q", s)
}

func (h Hand) Emoji() string {
	switch h {
	case HandRock:
		return "🪨"
	case HandPaper:
		return "📜"
	case HandScissors:
		return "✂️"
	case HandNone:
		return "🚫"
	}
	return "❓"
}

// Outcome is a move result from the point of view of the player holding the move.
type Outcome string

const (
	OutcomeWon  Outcome = "won"
	OutcomeLost Outcome = "lost"
	OutcomeDraw Outcome = "draw"
)

func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(strings.TrimSpace(s))
	switch o {
	case OutcomeWon, OutcomeLost, OutcomeDraw:
		return o, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// Invert returns the opponent's view of the same match.
func (o Outcome) Invert() Outcome {
	switch o {
	case OutcomeWon:
		return OutcomeLost
	case OutcomeLost:
		return OutcomeWon
	case OutcomeDraw:
		return OutcomeDraw
	}
	return o
}

// Points is the score credited for one side of a match.
func (o Outcome) Points() int {
	switch o {
	case OutcomeWon:
		return 2
	case OutcomeDraw:
		return 1
	case OutcomeLost:
		return 0
	}
	return 0
}

type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "pending"
	CandidateAccepted CandidateStatus = "accepted"
	CandidateRefused  CandidateStatus = "refused"
)

func ParseCandidateStatus(s string) (CandidateStatus, error) {
	c := CandidateStatus(strings.TrimSpace(s))
	switch c {
	case CandidatePending, CandidateAccepted, CandidateRefused:
		return c, nil
	}
	return "", fmt.Errorf("unknown candidate status %q", s)
}

// ListFilter selects candidates by status. FilterAll matches every status.
type ListFilter string

const (
	FilterAll      ListFilter = "all"
	FilterPending  ListFilter = ListFilter(CandidatePending)
	FilterAccepted ListFilter = ListFilter(CandidateAccepted)
	FilterRefused  ListFilter = ListFilter(CandidateRefused)
)

// Matches reports whether a candidate status passes the filter.
func (f ListFilter) Matches(s CandidateStatus) bool {
	switch f {
	case FilterAll:
		return true
	case FilterPending, FilterAccepted, FilterRefused:
		return CandidateStatus(f) == s
	}
	return false
}

type Season struct {
	ID         int64
	Name       string
	Active     bool
	MaxPlayers int
	StartDate  time.Time
	StopDate   *time.Time
	Status     SeasonStatus
}

type Candidate struct {
	ID        int64
	SeasonID  int64
	PlayerID  string
	Username  string
	Wallet    string
	Status    CandidateStatus
	Room      string
	CreatedAt time.Time
}

type Player struct {
	SeasonID int64
	PlayerID string
	Username string
	Wallet   string
	Score    int
}

type Round struct {
	ID        int64
	SeasonID  int64
	Number    int
	StartTime time.Time
	EndTime   *time.Time
}

func (r Round) Open() bool { return r.EndTime == nil }

// Move is one player's row for a round. Opponent fields and Status stay empty until the round closes.
type Move struct {
	RoundID          int64
	PlayerID         string
	PlayerUsername   string
	Hand             Hand
	OpponentID       string
	OpponentUsername string
	OpponentHand     Hand
	Status           Outcome
	PlayedAt         time.Time
}

func (m Move) Resolved() bool { return m.Status != "" }

// MoveResolution carries the outcome fields written once per move when a round closes.
type MoveResolution struct {
	RoundID          int64
	PlayerID         string
	PlayerUsername   string
	OpponentID       string
	OpponentUsername string
	OpponentHand     Hand
	Status           Outcome
}

type ChannelSettings struct {
	BroadcastChannelID string
	GroupChannelID     string
}

// Administrator is keyed by the Iris user id. Username is the display name seen when the
// role was granted and is only used for rendering.
type Administrator struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	AddedBy   string    `json:"added_by,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// NormalizeUsername strips the mention marker and surrounding space.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}
