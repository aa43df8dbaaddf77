package models

import (
	"fmt"
	"time"
)

// Friendship is an undirected edge, stored once per pair.
type Friendship struct {
	User1Id   string    `dynamodbav:"user1_id" gorm:"column:user1_id;primaryKey;size:64" json:"user1_id"`
	User2Id   string    `dynamodbav:"user2_id" gorm:"column:user2_id;primaryKey;size:64;index" json:"user2_id"`
	CreatedAt time.Time `dynamodbav:"created_at" gorm:"column:created_at;not null" json:"created_at"`

	PK string `dynamodbav:"PK" gorm:"-" json:"-"`
	SK string `dynamodbav:"SK" gorm:"-" json:"-"`
}

func (Friendship) TableName() string { return "friendships" }

// Other returns the end of the edge that is not userId.
func (f Friendship) Other(userId string) string {
	if f.User1Id == userId {
		return f.User2Id
	}
	return f.User1Id
}

func FriendSK(friendId string) string {
	return fmt.Sprintf("FRIEND#%s", friendId)
}

func FriendSKPrefix() string {
	return "FRIEND#"
}
