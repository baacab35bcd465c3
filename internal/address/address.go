package address

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vasiliy-maslov/fashion-store/internal/db"
)

var ErrNotFound = errors.New("address not found")

type Address struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	FullName string    `json:"fullname"`
	Phone    string    `json:"phone"`
	Street   string    `json:"street"`
	District string    `json:"district"`
	City     string    `json:"city"`
}

type Repository struct {
	db db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// GetForUser returns the address only if it belongs to userID; an address
// owned by someone else is reported as ErrNotFound.
func (r *Repository) GetForUser(ctx context.Context, addressID, userID uuid.UUID) (*Address, error) {
	query := `
		SELECT id, user_id, fullname, phone, street, district, city
		FROM addresses
		WHERE id = $1 AND user_id = $2
	`

	var a Address
	err := r.db.QueryRow(ctx, query, addressID, userID).Scan(
		&a.ID,
		&a.UserID,
		&a.FullName,
		&a.Phone,
		&a.Street,
		&a.District,
		&a.City,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select address %s: %w", addressID, err)
	}

	return &a, nil
}
