package schemas

// User is an entry of the user directory. Users are identified, never authenticated.
type User struct {
	// chosen at creation, never changes
	ID string

	// display name sent with rings
	Name string

	CreatedAt string
}
