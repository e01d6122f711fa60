package model

import (
	"fmt"
	"time"
)

// LocalTime formats as "YYYY-MM-DD HH:MM:SS" in JSON.
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements json.Marshaler.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Format(timeFormat))
	return []byte(formatted), nil
}

// TurnView is the API representation of a Turn.
type TurnView struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt LocalTime `json:"createdAt"`
}

// NewTurnViews converts turns for rendering.
func NewTurnViews(turns []Turn) []TurnView {
	views := make([]TurnView, 0, len(turns))
	for _, t := range turns {
		views = append(views, TurnView{Role: t.Role, Content: t.Text, CreatedAt: LocalTime(t.CreatedAt)})
	}
	return views
}
