package models

import "time"

type SessionState string

const (
	SessionStateCreated       SessionState = "created"
	SessionStateActive        SessionState = "active"
	SessionStateGoalProposed  SessionState = "goal_proposed"
	SessionStateGoalApproved  SessionState = "goal_approved"
	SessionStateGoalAbandoned SessionState = "goal_abandoned"
)

// Exchange is one user message and the reply it produced.
type Exchange struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserText  string    `json:"user_text"`
	AIText    string    `json:"ai_text"`
	GoalID    string    `json:"goal_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Goal is only populated on the response that proposed it.
	Goal *Goal `json:"goal,omitempty"`
}

type Session struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	CreatedAt      time.Time   `json:"created_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	Exchanges      []*Exchange `json:"exchanges,omitempty"`
	Goal           *Goal       `json:"goal,omitempty"`
}

func (s *Session) State() SessionState {
	if s.Goal != nil {
		switch s.Goal.Status {
		case GoalStatusApproved:
			return SessionStateGoalApproved
		case GoalStatusAbandoned:
			return SessionStateGoalAbandoned
		default:
			return SessionStateGoalProposed
		}
	}
	if len(s.Exchanges) == 0 {
		return SessionStateCreated
	}
	return SessionStateActive
}

// Clone deep-copies the session so cached views are never shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Exchanges != nil {
		c.Exchanges = make([]*Exchange, len(s.Exchanges))
		for i, e := range s.Exchanges {
			c.Exchanges[i] = e.Clone()
		}
	}
	c.Goal = s.Goal.Clone()
	return &c
}

func (e *Exchange) Clone() *Exchange {
	if e == nil {
		return nil
	}
	c := *e
	c.Goal = e.Goal.Clone()
	return &c
}
