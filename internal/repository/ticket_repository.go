package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-agent/internal/domain"
)

// TicketFilter captures staff console search parameters.
type TicketFilter struct {
	ConversationID *string
	CustomerEmail  *string
	Statuses       []domain.TicketStatus
	Limit          int
	Offset         int
}

// TicketRepository encapsulates escalation ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	// Resolve closes an open ticket. It returns pgx.ErrNoRows when no open ticket matched.
	Resolve(ctx context.Context, id int64, staffID string, note *string) (*domain.Ticket, error)
	CountOpen(ctx context.Context, conversationID string) (int, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	db DB
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DB) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, external_key, conversation_id, customer_email, reason, source, status,
               resolved_by, resolution_note, created_at, updated_at, resolved_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, conversation_id, customer_email, reason, source, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.ConversationID,
		ticket.CustomerEmail,
		ticket.Reason,
		ticket.Source,
		ticket.Status,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) Resolve(ctx context.Context, id int64, staffID string, note *string) (*domain.Ticket, error) {
	query := `
        UPDATE tickets SET status=$1, resolved_by=$2, resolution_note=$3, resolved_at=NOW(), updated_at=NOW()
        WHERE id=$4 AND status=$5
        RETURNING ` + ticketColumns
	var ticket domain.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query,
		domain.TicketStatusResolved,
		staffID,
		note,
		id,
		domain.TicketStatusOpen,
	), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) CountOpen(ctx context.Context, conversationID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE conversation_id=$1 AND status=$2`
	var count int
	if err := r.db.QueryRow(ctx, query, conversationID, domain.TicketStatusOpen).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ConversationID != nil {
		args = append(args, *filter.ConversationID)
		clauses = append(clauses, fmt.Sprintf("conversation_id=$%d", len(args)))
	}
	if filter.CustomerEmail != nil {
		args = append(args, strings.ToLower(*filter.CustomerEmail))
		clauses = append(clauses, fmt.Sprintf("LOWER(customer_email)=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.ConversationID,
		&ticket.CustomerEmail,
		&ticket.Reason,
		&ticket.Source,
		&ticket.Status,
		&ticket.ResolvedBy,
		&ticket.ResolutionNote,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
	)
}
