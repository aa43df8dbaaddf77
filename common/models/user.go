package models

import (
	"fmt"
	"strconv"
	"time"
)

type User struct {
	UserId     string    `dynamodbav:"user_id" gorm:"column:user_id;primaryKey;size:64" json:"user_id"`
	ExternalId int64     `dynamodbav:"external_id" gorm:"column:external_id;not null;uniqueIndex" json:"external_id"`
	Username   string    `dynamodbav:"username" gorm:"column:username;not null;default:''" json:"username"`
	FirstName  string    `dynamodbav:"first_name" gorm:"column:first_name;not null;default:''" json:"first_name"`
	LastName   string    `dynamodbav:"last_name" gorm:"column:last_name;not null;default:''" json:"last_name"`
	Nickname   string    `dynamodbav:"nickname" gorm:"column:nickname;not null" json:"nickname"`
	CreatedAt  time.Time `dynamodbav:"created_at" gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt  time.Time `dynamodbav:"updated_at" gorm:"column:updated_at;not null" json:"updated_at"`

	PK string `dynamodbav:"PK" gorm:"-" json:"-"`
	SK string `dynamodbav:"SK" gorm:"-" json:"-"`
}

func (User) TableName() string { return "users" }

// ExternalUserRef maps a messenger id to the internal user id.
type ExternalUserRef struct {
	ExternalId int64  `dynamodbav:"external_id"`
	UserId     string `dynamodbav:"user_id"`

	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
}

// Key handlers
func UserPK(userId string) string {
	return fmt.Sprintf("USER#%s", userId)
}

func ProfileSK() string {
	return "PROFILE"
}

func ExternalPK(externalId int64) string {
	return "EXTERNAL#" + strconv.FormatInt(externalId, 10)
}

func ExternalSK() string {
	return "REF"
}

func ExtractUserID(pk string) (string, error) {
	if len(pk) < 6 || pk[:5] != "USER#" {
		return "", fmt.Errorf("invalid user PK format: %s", pk)
	}
	return pk[5:], nil
}
