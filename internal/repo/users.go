package repo

import (
	"context"
	"fmt"
)

// UsersRepo reads customer roles.
type UsersRepo struct {
	DB DBTX
}

// Roles returns the role labels of userID. Unknown users have no roles.
func (r UsersRepo) Roles(ctx context.Context, userID string) ([]string, error) {
	var roles []string
	err := r.DB.QueryRow(ctx, `SELECT roles FROM users WHERE id = $1`, userID).Scan(&roles)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load user roles: %w", err)
	}
	return roles, nil
}
