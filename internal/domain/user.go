package domain

// Roles known to the admin gate
const (
	RoleUser  = "user"  // Regular trader
	RoleAdmin = "admin" // May override rates and read every ledger row
)

// User Model
type User struct {
	ID         uint       `gorm:"primaryKey"`                                    // Primary key
	Username   string     `gorm:"unique;not null"`                               // Unique username
	Password   string     `gorm:"not null" json:"-"`                             // Hashed password
	Role       string     `gorm:"default:user"`                                  // Role: user or admin
	Wallet     Wallet     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"` // One-to-one gold wallet
	TestWallet TestWallet `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"` // One-to-one virtual cash wallet
}

// IsAdmin reports whether the user passes the admin gate
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
