package memory

import (
	"context"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

type userRepo struct{ s *Store }

func (r userRepo) GetUser(_ context.Context, id string) (*events.User, error) {
	user, ok := lookup(r.s, usersTable, id)
	if !ok {
		return nil, apperr.NotFound("user with id=%s was not found", id)
	}
	return &user, nil
}

func (r userRepo) CreateUser(ctx context.Context, user *events.User) error {
	return r.s.write(ctx, func(tx *Store) error {
		for _, other := range scan(tx, usersTable) {
			if other.Email == user.Email {
				return apperr.Conflict("user with email %s already exists", user.Email)
			}
		}
		put(tx, usersTable, user.ID, *user)
		return nil
	})
}

type categoryRepo struct{ s *Store }

func (r categoryRepo) GetCategory(_ context.Context, id string) (*events.Category, error) {
	category, ok := lookup(r.s, categoriesTable, id)
	if !ok {
		return nil, apperr.NotFound("category with id=%s was not found", id)
	}
	return &category, nil
}

func (r categoryRepo) CreateCategory(ctx context.Context, category *events.Category) error {
	return r.s.write(ctx, func(tx *Store) error {
		for _, other := range scan(tx, categoriesTable) {
			if other.Name == category.Name {
				return apperr.Conflict("category %q already exists", category.Name)
			}
		}
		put(tx, categoriesTable, category.ID, *category)
		return nil
	})
}
