// package dal is the data access layer. It contains functions that perform SQL queries and logic
// that cannot be decoupled from the queries. Files correspond to SQL tables
package dal

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/gregriff/vocall/server/internal/schemas"
)

// ErrUserNotFound is returned when no user has the requested id.
var ErrUserNotFound = errors.New("user not found")

// CreateUser adds a user to the directory.
func CreateUser(db *sql.DB, id, name string) error {
	if id == "" || name == "" {
		return errors.New("user id and name are required")
	}
	if _, err := db.Exec("INSERT INTO users (id, name) VALUES (?, ?)", id, name); err != nil {
		return fmt.Errorf("error inserting user: %w", err)
	}
	return nil
}

// GetUserByID returns the user with id, or ErrUserNotFound.
func GetUserByID(db *sql.DB, id string) (*schemas.User, error) {
	var user schemas.User

	query := "SELECT id, name, created_at FROM users WHERE id = ?"
	err := db.QueryRow(query, id).Scan(&user.ID, &user.Name, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	return &user, nil
}
