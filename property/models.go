package property

import "time"

// Profile carries the property fields the lifecycle engine reads: identity
// plus the owner contact used for decline notifications.
type Profile struct {
	ID         string
	Name       string
	Address    *string
	OwnerName  string
	OwnerEmail string
	OwnerPhone *string
	CreatedAt  time.Time
}
