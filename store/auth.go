package store

import "github.com/CrowderSoup/retro-board/database"

// AuthStore owns the "auth-storage" token pair.
type AuthStore struct {
	view[database.Tokens]
}

func NewAuthStore(p Persister) *AuthStore {
	s := New(database.AuthStorage, func() database.Tokens { return database.Tokens{} }, p)
	return &AuthStore{view: view[database.Tokens]{s: s}}
}

// SetTokens stores a freshly issued pair.
func (as *AuthStore) SetTokens(t database.Tokens) {
	as.s.Update(func(cur *database.Tokens) { *cur = t })
}

// AccessToken returns the current bearer token, or "".
func (as *AuthStore) AccessToken() string {
	return as.Get().AccessToken
}

// UserStore owns the "user-storage" profile.
type UserStore struct {
	view[*database.User]
}

func NewUserStore(p Persister) *UserStore {
	s := New(database.UserStorage, func() *database.User { return nil }, p)
	return &UserStore{view: view[*database.User]{s: s}}
}

// SetProfile stores the signed-in user's profile.
func (us *UserStore) SetProfile(u database.User) {
	us.s.Update(func(cur **database.User) { *cur = &u })
}

// UserID returns the signed-in user's id, or "".
func (us *UserStore) UserID() string {
	if u := us.Get(); u != nil {
		return u.ID
	}
	return ""
}
