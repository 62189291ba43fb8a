package votes

import (
	"strings"

	"github.com/memeflix/backend/internal/memes"
	"github.com/memeflix/backend/internal/users"
)

// Direction is the polarity of a vote.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection accepts "up"/"upvote" and "down"/"downvote" in any case.
func ParseDirection(raw string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "up", "upvote":
		return DirectionUp, true
	case "down", "downvote":
		return DirectionDown, true
	default:
		return "", false
	}
}

func (d Direction) counterColumn() string {
	if d == DirectionUp {
		return "upvotes"
	}
	return "downvotes"
}

func (d Direction) opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// Vote is the single ledger row for a (user, meme) pair.
type Vote struct {
	UserID         uint       `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	MemeID         uint       `gorm:"column:meme_id;primaryKey;autoIncrement:false;index"`
	Type           Direction  `gorm:"column:type;size:8;not null"`
	VotedAtSeconds int64      `gorm:"column:voted_at_s;not null"`
	User           users.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Meme           memes.Meme `gorm:"foreignKey:MemeID;constraint:OnDelete:CASCADE"`
}

// TableName binds the ledger to the votes table.
func (Vote) TableName() string {
	return "votes"
}

// Result names the ledger transition a vote request caused.
type Result string

const (
	ResultRecorded Result = "recorded"
	ResultRemoved  Result = "removed"
	ResultChanged  Result = "changed"
)

// Outcome reports the transition and the meme's counters after commit.
type Outcome struct {
	Result    Result
	Direction Direction
	Upvotes   int64
	Downvotes int64
}
