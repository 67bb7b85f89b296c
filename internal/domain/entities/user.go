package entities

import "time"

// UserTier is the membership tier of a user.
type UserTier string

const (
	UserTierNormal UserTier = "normal"
	UserTierVIP    UserTier = "vip"
	UserTierSuper  UserTier = "super"
)

// Rank orders tiers normal < vip < super. Unknown tiers rank as normal.
func (t UserTier) Rank() int {
	switch t {
	case UserTierVIP:
		return 1
	case UserTierSuper:
		return 2
	}
	return 0
}

// User is a marketplace member. Users are never cascaded from task deletion.
type User struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Email                *string    `json:"email,omitempty"`
	Phone                *string    `json:"phone,omitempty"`
	PasswordHash         string     `json:"-"`
	Avatar               string     `json:"avatar,omitempty"`
	UserLevel            UserTier   `json:"user_level"`
	TaskCount            int        `json:"task_count"`
	CompletedTaskCount   int        `json:"completed_task_count"`
	AvgRating            float64    `json:"avg_rating"`
	IsSuspended          bool       `json:"is_suspended"`
	IsBanned             bool       `json:"is_banned"`
	SuspendUntil         *time.Time `json:"suspend_until,omitempty"`
	Timezone             string     `json:"timezone"`
	Language             string     `json:"language"`
	StripeAccountID      *string    `json:"stripe_account_id,omitempty"`
	StripeAccountEnabled bool       `json:"stripe_account_enabled"`
	StripeCustomerID     *string    `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// CanReceivePayouts reports whether the user has an enabled connected account.
func (u *User) CanReceivePayouts() bool {
	return u.StripeAccountID != nil && *u.StripeAccountID != "" && u.StripeAccountEnabled
}

// IsRestricted reports whether moderation blocks the user at now.
func (u *User) IsRestricted(now time.Time) bool {
	if u.IsBanned {
		return true
	}
	if u.IsSuspended {
		return u.SuspendUntil == nil || u.SuspendUntil.After(now)
	}
	return false
}

// PrefersEnglish selects the English variant of bilingual texts.
func (u *User) PrefersEnglish() bool {
	return u.Language == "" || u.Language == "en"
}

// Staff is an admin (A####) or customer-service (CS####) reviewer.
type Staff struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	IsService bool      `json:"is_service"`
	CreatedAt time.Time `json:"created_at"`
}
