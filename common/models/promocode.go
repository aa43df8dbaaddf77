package models

import (
	"fmt"
	"time"
)

type TierScope string

const (
	ScopeRecord TierScope = "record"
	ScopeTotal  TierScope = "total"
)

func (s TierScope) Valid() bool {
	return s == ScopeRecord || s == ScopeTotal
}

// PromocodeType is a reward tier: crossing ThresholdScore in Scope unlocks one code.
type PromocodeType struct {
	TierId         string    `dynamodbav:"tier_id" gorm:"column:tier_id;primaryKey;size:64" json:"tier_id"`
	Scope          TierScope `dynamodbav:"scope" gorm:"column:scope;not null;size:16;index" json:"scope"`
	ThresholdScore int64     `dynamodbav:"threshold_score" gorm:"column:threshold_score;not null" json:"threshold_score"`
	Discount       int64     `dynamodbav:"discount" gorm:"column:discount;not null;default:0" json:"discount"`
	MinOrder       int64     `dynamodbav:"min_order" gorm:"column:min_order;not null;default:0" json:"min_order"`
	Label          string    `dynamodbav:"label" gorm:"column:label;not null;default:''" json:"label,omitempty"`
	URL            string    `dynamodbav:"url" gorm:"column:url;not null;default:''" json:"url,omitempty"`
	SortOrder      int       `dynamodbav:"sort_order" gorm:"column:sort_order;not null;default:0" json:"sort_order"`

	PK string `dynamodbav:"PK" gorm:"-" json:"-"`
	SK string `dynamodbav:"SK" gorm:"-" json:"-"`
}

func (PromocodeType) TableName() string { return "promocode_types" }

// InventoryCode is one unassigned code in a tier's pool.
type InventoryCode struct {
	CodeId    string    `dynamodbav:"code_id" gorm:"column:code_id;primaryKey;size:64" json:"code_id"`
	TierId    string    `dynamodbav:"tier_id" gorm:"column:tier_id;not null;index" json:"tier_id"`
	Code      string    `dynamodbav:"code" gorm:"column:code;not null" json:"code"`
	CreatedAt time.Time `dynamodbav:"created_at" gorm:"column:created_at;not null" json:"created_at"`

	PK string `dynamodbav:"PK" gorm:"-" json:"-"`
	SK string `dynamodbav:"SK" gorm:"-" json:"-"`
}

func (InventoryCode) TableName() string { return "inventory_codes" }

// Grant is a tier awarded to a user. At most one exists per (UserId, TierId).
type Grant struct {
	GrantId   string    `dynamodbav:"grant_id" gorm:"column:grant_id;primaryKey;size:64" json:"grant_id"`
	UserId    string    `dynamodbav:"user_id" gorm:"column:user_id;not null;uniqueIndex:idx_grants_user_tier,priority:1" json:"user_id"`
	TierId    string    `dynamodbav:"tier_id" gorm:"column:tier_id;not null;uniqueIndex:idx_grants_user_tier,priority:2" json:"tier_id"`
	Code      string    `dynamodbav:"code" gorm:"column:code;not null" json:"code"`
	Opened    bool      `dynamodbav:"opened" gorm:"column:opened;not null;default:false" json:"opened"`
	CreatedAt time.Time `dynamodbav:"created_at" gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at" gorm:"column:updated_at;not null" json:"updated_at"`

	PK string `dynamodbav:"PK" gorm:"-" json:"-"`
	SK string `dynamodbav:"SK" gorm:"-" json:"-"`
}

func (Grant) TableName() string { return "grants" }

// Key handlers

func TierCatalogPK() string {
	return "TIERS"
}

func TierSK(tierId string) string {
	return fmt.Sprintf("TIER#%s", tierId)
}

func InventoryPK(tierId string) string {
	return fmt.Sprintf("INVENTORY#%s", tierId)
}

func InventorySK(codeId string) string {
	return fmt.Sprintf("CODE#%s", codeId)
}

func GrantSK(tierId string) string {
	return fmt.Sprintf("GRANT#%s", tierId)
}

func GrantSKPrefix() string {
	return "GRANT#"
}
