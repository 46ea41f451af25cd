package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account owner model. Credential and identity fields live here;
// lifecycle flags live on the related AccountStatus row.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName     string         `bun:"first_name" json:"first_name,omitempty"`
	LastName      string         `bun:"last_name" json:"last_name,omitempty"`
	Username      string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string         `bun:"password_hash" json:"-"`
	IsSuperuser   bool           `bun:"is_superuser" json:"is_superuser,omitempty"`
	Status        *AccountStatus `bun:"rel:has-one,join:id=user_id" json:"status,omitempty"`
	LoggedInAt    *time.Time     `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasUsablePassword reports whether the account carries a credential hash.
// Passwordless registrations have none until the password set flow completes.
func (u *User) HasUsablePassword() bool {
	return u != nil && u.PasswordHash != ""
}

// AccountStatus tracks the lifecycle flags of a user, one row per user.
// The flags are independent booleans; blocked always wins over the others.
type AccountStatus struct {
	bun.BaseModel  `bun:"table:account_status,alias:ast"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID         uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	User           *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Verified       bool       `bun:"verified" json:"verified"`
	Archived       bool       `bun:"archived" json:"archived"`
	Blocked        bool       `bun:"blocked" json:"blocked"`
	SecondaryEmail *string    `bun:"secondary_email,nullzero" json:"secondary_email,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasSecondaryEmail reports whether the secondary slot is set.
func (s *AccountStatus) HasSecondaryEmail() bool {
	return s != nil && s.SecondaryEmail != nil && *s.SecondaryEmail != ""
}

// RefreshToken is a persisted long lived credential. Revocation flips the
// flag, the row is kept for auditing.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rft"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	Revoked       bool       `bun:"revoked" json:"revoked"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
}

// IsExpired reports whether the refresh token is older than ttl.
func (r *RefreshToken) IsExpired(ttl time.Duration, now time.Time) bool {
	if r == nil || r.CreatedAt == nil {
		return true
	}
	return now.Sub(*r.CreatedAt) > ttl
}

// MarkRevoked returns an update record flagging the token as revoked.
func MarkRevoked(id uuid.UUID) *RefreshToken {
	r := &RefreshToken{}
	r.ID = id
	r.Revoked = true
	n := time.Now()
	r.RevokedAt = &n
	return r
}
