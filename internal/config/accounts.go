package config

import (
	"context"
	"fmt"

	"github.com/amishk599/jobdigest/internal/model"
)

var _ model.AccountStore = (*StaticAccounts)(nil)

// StaticAccounts serves users and preferences declared in the config file.
type StaticAccounts struct {
	users []model.User
	prefs map[string]model.Preference
}

// NewStaticAccounts indexes users.
func NewStaticAccounts(users []UserConfig) *StaticAccounts {
	a := &StaticAccounts{prefs: make(map[string]model.Preference, len(users))}
	for _, u := range users {
		a.users = append(a.users, u.User)
		a.prefs[u.User.ID] = u.Preference
	}
	return a
}

func (a *StaticAccounts) ActiveUsers(context.Context) ([]model.User, error) {
	var out []model.User
	for _, u := range a.users {
		if u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

func (a *StaticAccounts) Preference(_ context.Context, userID string) (model.Preference, error) {
	p, ok := a.prefs[userID]
	if !ok {
		return model.Preference{}, fmt.Errorf("no preference for user %q", userID)
	}
	return p, nil
}
