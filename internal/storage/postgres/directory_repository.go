package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

type UserRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (*events.User, error) {
	var user events.User
	err := pick(r.pool, r.tx).QueryRow(ctx, `SELECT id, name, email FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Name, &user.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user with id=%s was not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user *events.User) error {
	_, err := exec(ctx, pick(r.pool, r.tx), "users_insert",
		`INSERT INTO users (id, name, email) VALUES ($1, $2, $3)`, user.ID, user.Name, user.Email)
	if constraintViolation(err, sqlStateUniqueViolation, "users_email_key") {
		return apperr.Conflict("user with email %s already exists", user.Email)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

type CategoryRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *CategoryRepository) GetCategory(ctx context.Context, id string) (*events.Category, error) {
	var category events.Category
	err := pick(r.pool, r.tx).QueryRow(ctx, `SELECT id, name FROM categories WHERE id = $1`, id).
		Scan(&category.ID, &category.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("category with id=%s was not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &category, nil
}

func (r *CategoryRepository) CreateCategory(ctx context.Context, category *events.Category) error {
	_, err := exec(ctx, pick(r.pool, r.tx), "categories_insert",
		`INSERT INTO categories (id, name) VALUES ($1, $2)`, category.ID, category.Name)
	if constraintViolation(err, sqlStateUniqueViolation, "categories_name_key") {
		return apperr.Conflict("category %q already exists", category.Name)
	}
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}
