package users

import (
	"strings"
	"time"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/money"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID          int64       `json:"id"`
	Email       string      `json:"email"`
	Role        enums.Role  `json:"role"`
	Profile     *ProfileDTO `json:"profile,omitempty"`
	Balance     *string     `json:"balance,omitempty"`
	LastLoginAt *time.Time  `json:"last_login_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type ProfileDTO struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	Role         enums.Role
}

// ProfileInput carries optional profile fields. Nil fields are left as is.
type ProfileInput struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	dto := &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	if p := u.Profile; p != nil {
		dto.Profile = &ProfileDTO{
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Phone:     p.Phone,
			Address:   p.Address,
			Bio:       p.Bio,
			AvatarURL: p.AvatarURL,
		}
	}
	if u.Wallet != nil {
		balance := money.Format(u.Wallet.BalanceCents)
		dto.Balance = &balance
	}
	return dto
}

func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if role == "" {
		role = enums.RoleBuyer
	}
	return &models.User{
		Email:        NormalizeEmail(c.Email),
		PasswordHash: c.PasswordHash,
		Role:         role,
	}
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsEmpty reports whether no field is set.
func (in ProfileInput) IsEmpty() bool {
	return len(in.columns()) == 0
}

func (in ProfileInput) applyTo(p *models.Profile) {
	if in.FirstName != nil {
		p.FirstName = in.FirstName
	}
	if in.LastName != nil {
		p.LastName = in.LastName
	}
	if in.Phone != nil {
		p.Phone = in.Phone
	}
	if in.Address != nil {
		p.Address = in.Address
	}
	if in.Bio != nil {
		p.Bio = in.Bio
	}
	if in.AvatarURL != nil {
		p.AvatarURL = in.AvatarURL
	}
}

func (in ProfileInput) columns() []string {
	var cols []string
	if in.FirstName != nil {
		cols = append(cols, "first_name")
	}
	if in.LastName != nil {
		cols = append(cols, "last_name")
	}
	if in.Phone != nil {
		cols = append(cols, "phone")
	}
	if in.Address != nil {
		cols = append(cols, "address")
	}
	if in.Bio != nil {
		cols = append(cols, "bio")
	}
	if in.AvatarURL != nil {
		cols = append(cols, "avatar_url")
	}
	return cols
}
