package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/Togather-Foundation/gatherings/internal/domain/ids"
)

type NewUser struct {
	Name  string `validate:"required,min=2,max=250"`
	Email string `validate:"required,email,min=6,max=254"`
}

type NewCategory struct {
	Name string `validate:"required,min=1,max=50"`
}

// DirectoryService is the minimal create path for users and categories.
type DirectoryService struct {
	store Store
	opts  options
}

func NewDirectoryService(store Store, opts ...Option) *DirectoryService {
	return &DirectoryService{store: store, opts: newOptions("directory", opts)}
}

// CreateUser fails with a conflict when the email is taken.
func (s *DirectoryService) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateInput(in); err != nil {
		return nil, err
	}
	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint user id: %w", err)
	}
	user := &User{ID: id, Name: in.Name, Email: in.Email}
	if err := s.store.Users().CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.opts.logger.Info().Str("user_id", user.ID).Msg("user created")
	return user, nil
}

// CreateCategory fails with a conflict when the name is taken.
func (s *DirectoryService) CreateCategory(ctx context.Context, in NewCategory) (*Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint category id: %w", err)
	}
	category := &Category{ID: id, Name: in.Name}
	if err := s.store.Categories().CreateCategory(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *DirectoryService) GetUser(ctx context.Context, id string) (*User, error) {
	return s.store.Users().GetUser(ctx, id)
}

func (s *DirectoryService) GetCategory(ctx context.Context, id string) (*Category, error) {
	return s.store.Categories().GetCategory(ctx, id)
}
