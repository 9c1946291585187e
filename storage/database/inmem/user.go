package inmemdb

import (
	"context"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) CheckUsernameUniqueness(
	_ context.Context,
	username, email string,
	excludedUsers []user.User,
	_ ...core.DBExecutor,
) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]struct{}, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded[usr.ID] = struct{}{}
	}

	for id, row := range repo.db.table {
		if _, ok := excluded[id]; ok {
			continue
		}
		if username != "" && row.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && row.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.Roles = cloneStrings(usr.Roles)
	repo.db.table[usr.ID] = &userRow{User: usr}
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if row, ok := repo.db.table[filter.ID]; ok {
			return copyUser(row.User), nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.UsernameOrEmail != "" {
		for _, row := range repo.db.table {
			if row.Username == filter.UsernameOrEmail || row.Email == filter.UsernameOrEmail {
				return copyUser(row.User), nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	row, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	// enrollments are owned by the enrollment repository
	row.User = copyUser(usr)
	return copyUser(row.User), nil
}

func copyUser(usr user.User) user.User {
	usr.Roles = cloneStrings(usr.Roles)
	if usr.PasswordHash != nil {
		hash := make([]byte, len(usr.PasswordHash))
		copy(hash, usr.PasswordHash)
		usr.PasswordHash = hash
	}
	return usr
}
