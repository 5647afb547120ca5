package platform

import (
	"context"
	"errors"
	"fmt"
)

// Admins decides whether a user is an operator: listed by id, or holding
// one of the admin roles
type Admins struct {
	client  Client
	userIDs map[string]struct{}
	roleIDs map[string]struct{}
}

func NewAdmins(client Client, userIDs, roleIDs []string) *Admins {
	a := &Admins{
		client:  client,
		userIDs: make(map[string]struct{}, len(userIDs)),
		roleIDs: make(map[string]struct{}, len(roleIDs)),
	}
	for _, id := range userIDs {
		a.userIDs[id] = struct{}{}
	}
	for _, id := range roleIDs {
		a.roleIDs[id] = struct{}{}
	}
	return a
}

// IsAdmin reports whether userID is an operator. Users who are not guild
// members are not admins.
func (a *Admins) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if _, ok := a.userIDs[userID]; ok {
		return true, nil
	}
	if len(a.roleIDs) == 0 || a.client == nil {
		return false, nil
	}

	roles, err := a.client.MemberRoles(ctx, userID)
	if errors.Is(err, ErrMemberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch member roles: %w", err)
	}
	for _, r := range roles {
		if _, ok := a.roleIDs[r]; ok {
			return true, nil
		}
	}
	return false, nil
}
