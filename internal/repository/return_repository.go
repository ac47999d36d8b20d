package repository

import "context"

// ReturnRepository answers whether a return was already raised.
type ReturnRepository interface {
	ExistsForOrder(ctx context.Context, orderID string) (bool, error)
}

type returnRepository struct {
	db DB
}

// NewReturnRepository instantiates repository.
func NewReturnRepository(db DB) ReturnRepository {
	return &returnRepository{db: db}
}

func (r *returnRepository) ExistsForOrder(ctx context.Context, orderID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM returns WHERE order_id=$1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, orderID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
