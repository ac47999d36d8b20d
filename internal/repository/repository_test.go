package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-agent/internal/domain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func strPtr(s string) *string { return &s }

func TestConversationCreateWithSystemMessage(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs("c-1", "user@example.com", "s1", "web", domain.ConversationStatusOpen).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs("c-1", domain.SenderSystem, "system prompt").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO conversation_analytics").
		WithArgs("c-1", domain.ResolutionPending).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := NewConversationRepository(mock)
	conv := &domain.Conversation{ID: "c-1", CustomerEmail: "user@example.com", StoreID: "s1", Channel: "web", Status: domain.ConversationStatusOpen}
	require.NoError(t, repo.CreateWithSystemMessage(context.Background(), conv, "system prompt"))
	assert.Equal(t, now, conv.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationCreateRollsBackOnFailure(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO conversations").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("INSERT INTO messages").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	repo := NewConversationRepository(mock)
	conv := &domain.Conversation{ID: "c-1", CustomerEmail: "a@b.c", StoreID: "s1", Channel: "web", Status: domain.ConversationStatusOpen}
	err := repo.CreateWithSystemMessage(context.Background(), conv, "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert system message")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationTransitionStatus(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("UPDATE conversations SET status").
		WithArgs(domain.ConversationStatusEscalated, "c-1", []string{"open"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE conversations SET status").
		WithArgs(domain.ConversationStatusEscalated, "c-1", []string{"open"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewConversationRepository(mock)
	changed, err := repo.TransitionStatus(context.Background(), "c-1", domain.ConversationStatusEscalated, domain.ConversationStatusOpen)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.TransitionStatus(context.Background(), "c-1", domain.ConversationStatusEscalated, domain.ConversationStatusOpen)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = repo.TransitionStatus(context.Background(), "c-1", domain.ConversationStatusClosed)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageListRecent(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	cols := []string{"id", "conversation_id", "sender", "text", "tool_call_id", "tool_name", "tool_calls_json", "created_at"}

	mock.ExpectQuery("SELECT (.+) FROM messages").
		WithArgs("c-1", 15).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(4), "c-1", "tool", strPtr(`{"status":"success"}`), strPtr("call_1"), strPtr("cancel_order"), nil, now).
			AddRow(int64(5), "c-1", "agent", strPtr("Done."), nil, nil, nil, now))

	repo := NewMessageRepository(mock)
	msgs, err := repo.ListRecent(context.Background(), "c-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.SenderTool, msgs[0].Sender)
	assert.Equal(t, "call_1", *msgs[0].ToolCallID)
	assert.Equal(t, "Done.", msgs[1].Body())
	assert.Nil(t, msgs[1].ToolCallID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageAppend(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	text := "hello"

	mock.ExpectQuery("INSERT INTO messages").
		WithArgs("c-1", domain.SenderUser, &text, (*string)(nil), (*string)(nil), (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), now))

	repo := NewMessageRepository(mock)
	msg := &domain.Message{ConversationID: "c-1", Sender: domain.SenderUser, Text: &text}
	require.NoError(t, repo.Append(context.Background(), msg))
	assert.Equal(t, int64(9), msg.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

var orderCols = []string{"id", "store_id", "customer_email", "status", "total_amount", "order_date", "delivery_date", "shipping_address", "tracking_id"}

func TestOrderCancelCommits(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM orders (.+) FOR UPDATE").
		WithArgs("o_proc").
		WillReturnRows(pgxmock.NewRows(orderCols).
			AddRow("o_proc", "s1", "test@test.com", "processing", 45.0, "2026-10-18", nil, "456 Beta Road", nil))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(domain.OrderStatusCancelled, "o_proc").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	repo := NewOrderRepository(mock)
	var seen domain.OrderStatus
	order, err := repo.Cancel(context.Background(), "o_proc", func(_ context.Context, o *domain.Order) error {
		seen = o.Status
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, seen)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderCancelCheckFailureRollsBack(t *testing.T) {
	mock := newMock(t)
	refusal := errors.New("not allowed")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM orders (.+) FOR UPDATE").
		WithArgs("o1").
		WillReturnRows(pgxmock.NewRows(orderCols).
			AddRow("o1", "s1", "user@example.com", "shipped", 199.99, "2026-10-16", nil, "123 AI Street", strPtr("TRK123456")))
	mock.ExpectRollback()

	repo := NewOrderRepository(mock)
	_, err := repo.Cancel(context.Background(), "o1", func(context.Context, *domain.Order) error { return refusal })
	assert.ErrorIs(t, err, refusal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderCancelUpdateFailureRollsBack(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM orders (.+) FOR UPDATE").
		WithArgs("o_proc").
		WillReturnRows(pgxmock.NewRows(orderCols).
			AddRow("o_proc", "s1", "test@test.com", "processing", 45.0, "2026-10-18", nil, "456 Beta Road", nil))
	mock.ExpectExec("UPDATE orders SET status").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	repo := NewOrderRepository(mock)
	_, err := repo.Cancel(context.Background(), "o_proc", nil)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderCancelNotFound(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM orders (.+) FOR UPDATE").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(orderCols))
	mock.ExpectRollback()

	repo := NewOrderRepository(mock)
	_, err := repo.Cancel(context.Background(), "missing", nil)
	assert.True(t, IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsDefaultWhenMissing(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery("FROM store_settings").
		WithArgs("s9").
		WillReturnError(pgx.ErrNoRows)

	repo := NewSettingsRepository(mock)
	settings, err := repo.GetPolicy(context.Background(), "s9")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultStoreSettings("s9"), settings)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsApply(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	escalated := domain.ResolutionEscalated
	resolution := string(escalated)

	mock.ExpectQuery("INSERT INTO conversation_analytics").
		WithArgs("c-1", 2, 1, true, &resolution).
		WillReturnRows(pgxmock.NewRows([]string{"conversation_id", "message_count", "tool_calls_count", "was_escalated", "resolution_type", "updated_at"}).
			AddRow("c-1", 4, 1, true, "escalated", now))

	repo := NewAnalyticsRepository(mock)
	a, err := repo.Apply(context.Background(), "c-1", domain.AnalyticsDelta{Messages: 2, ToolCalls: 1, Escalated: true, Resolution: &escalated})
	require.NoError(t, err)
	assert.Equal(t, 4, a.MessageCount)
	assert.Equal(t, domain.ResolutionEscalated, a.ResolutionType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketResolveOnlyOpen(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery("UPDATE tickets SET status").
		WithArgs(domain.TicketStatusResolved, "staff-1", (*string)(nil), int64(3), domain.TicketStatusOpen).
		WillReturnError(pgx.ErrNoRows)

	repo := NewTicketRepository(mock)
	_, err := repo.Resolve(context.Background(), 3, "staff-1", nil)
	assert.True(t, IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
