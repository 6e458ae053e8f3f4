package models

import "time"

// Review is a buyer's 1-5 rating of a product. A user holds at most one
// review per product; writing again replaces it.
type Review struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    int64     `gorm:"column:user_id;not null;uniqueIndex:ux_reviews_user_product,priority:1"`
	ProductID int64     `gorm:"column:product_id;not null;index;uniqueIndex:ux_reviews_user_product,priority:2"`
	Rating    int       `gorm:"column:rating;not null"`
	Comment   *string   `gorm:"column:comment"`
	User      *User     `gorm:"foreignKey:UserID"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
