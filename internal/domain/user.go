package domain

// User is the view of a user record needed by login.
type User struct {
	ID           string
	Email        string
	PasswordHash string
}

// UserFromRecord extracts a User from a raw (unscoped) user record.
func UserFromRecord(r Record) User {
	return User{
		ID:           r.String(FieldID),
		Email:        r.String("email"),
		PasswordHash: r.String("password"),
	}
}
