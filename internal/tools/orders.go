package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-agent/internal/domain"
	"github.com/spec-kit/support-agent/internal/repository"
)

const fallbackStoreName = "Main Store"

func (e *Executor) listCustomerOrders(ctx context.Context, id Identity) Result {
	if !plausibleEmail(id.Email) {
		return failed(StatusFailed, "Invalid email format provided.")
	}
	orders, err := e.orders.ListByEmail(ctx, id.Email)
	if err != nil {
		e.logger.Error("list orders", zap.Error(err), zap.String("conversation_id", id.ConversationID))
		return failed(StatusError, "Unable to look up orders right now.")
	}
	if len(orders) == 0 {
		return failed(StatusNotFound, fmt.Sprintf("No orders found for '%s'.", id.Email))
	}
	list := OrderList{Status: StatusSuccess, Orders: make([]OrderSummary, 0, len(orders))}
	for _, o := range orders {
		list.Orders = append(list.Orders, OrderSummary{
			OrderID:     o.ID,
			Status:      string(o.Status),
			OrderDate:   o.OrderDate,
			TotalAmount: o.TotalAmount,
		})
	}
	return Result{Status: StatusSuccess, Value: list}
}

func (e *Executor) getOrderDetails(ctx context.Context, id Identity, ref string) Result {
	order, res, ok := e.findOrder(ctx, id, ref)
	if !ok {
		return res
	}
	if !strings.EqualFold(order.CustomerEmail, id.Email) {
		return failed(StatusUnauthorized, "Account verification failed.")
	}

	storeName := fallbackStoreName
	store, err := e.stores.GetByID(ctx, order.StoreID)
	switch {
	case err == nil && store.Name != "":
		storeName = store.Name
	case err != nil && !repository.IsNotFound(err):
		e.logger.Warn("store lookup", zap.Error(err), zap.String("store_id", order.StoreID))
	}

	return Result{Status: StatusSuccess, Value: OrderDetail{
		Status:          StatusSuccess,
		OrderID:         order.ID,
		StatusLabel:     string(order.Status),
		OrderDate:       order.OrderDate,
		DeliveryDate:    order.DeliveryDate,
		TotalAmount:     order.TotalAmount,
		ShippingAddress: order.ShippingAddress,
		TrackingID:      order.TrackingID,
		StoreName:       storeName,
	}}
}

func (e *Executor) checkReturnEligibility(ctx context.Context, id Identity, ref string) Result {
	ineligible := func(status Status, reason string) Result {
		return Result{Status: status, Value: Eligibility{Eligible: false, Reason: reason, Status: status}}
	}

	order, err := e.orders.FindByRef(ctx, ref)
	if repository.IsNotFound(err) || (err == nil && !strings.EqualFold(order.CustomerEmail, id.Email)) {
		return ineligible(StatusNotFound, "Order not found.")
	}
	if err != nil {
		e.logger.Error("find order", zap.Error(err), zap.String("ref", ref))
		return ineligible(StatusError, "Unable to check this order right now.")
	}

	if order.Status != domain.OrderStatusDelivered {
		return ineligible(StatusInvalidState, fmt.Sprintf("Order status is '%s'. Needs to be 'delivered'.", order.Status))
	}

	settings, err := e.settings.GetPolicy(ctx, order.StoreID)
	if err != nil {
		e.logger.Error("load store policy", zap.Error(err), zap.String("store_id", order.StoreID))
		return ineligible(StatusError, "Unable to check this order right now.")
	}
	policyDays := settings.ReturnWindowDays
	if policyDays <= 0 {
		policyDays = domain.DefaultStoreSettings(order.StoreID).ReturnWindowDays
	}

	if order.DeliveryDate == nil || strings.TrimSpace(*order.DeliveryDate) == "" {
		return ineligible(StatusDataError, "Delivery date missing.")
	}
	delivered, err := time.Parse(time.DateOnly, strings.TrimSpace(*order.DeliveryDate))
	if err != nil {
		return ineligible(StatusDataError, "Invalid date format.")
	}

	days := daysBetween(delivered, e.now())
	if days > policyDays {
		return ineligible(StatusExpired, fmt.Sprintf("Return window closed (%d days since delivery, policy is %d days).", days, policyDays))
	}

	exists, err := e.returns.ExistsForOrder(ctx, order.ID)
	if err != nil {
		e.logger.Error("return lookup", zap.Error(err), zap.String("order_id", order.ID))
		return ineligible(StatusError, "Unable to check this order right now.")
	}
	if exists {
		return ineligible(StatusDuplicate, "Return already requested.")
	}

	return Result{Status: StatusSuccess, Value: Eligibility{
		Eligible:    true,
		Reason:      "Eligible for return.",
		Status:      StatusSuccess,
		PolicyLimit: policyDays,
	}}
}

// refusal aborts a cancel transaction with a business outcome.
type refusal struct {
	status  Status
	message string
}

func (r *refusal) Error() string { return r.message }

func (e *Executor) cancelOrder(ctx context.Context, id Identity, ref string) Result {
	order, err := e.orders.Cancel(ctx, ref, func(ctx context.Context, order *domain.Order) error {
		if !strings.EqualFold(order.CustomerEmail, id.Email) {
			return &refusal{status: StatusNotFound, message: "Order not found."}
		}
		settings, err := e.settings.GetPolicy(ctx, order.StoreID)
		if err != nil {
			return err
		}
		if !settings.CancelAllowed {
			return &refusal{status: StatusDisabled, message: "Cancellations are disabled for this store. Please contact support."}
		}
		if order.Status != domain.OrderStatusProcessing {
			return &refusal{status: StatusInvalidState, message: fmt.Sprintf("Cannot cancel order in '%s' status.", order.Status)}
		}
		return nil
	})

	var r *refusal
	switch {
	case err == nil:
		return Result{Status: StatusSuccess, Value: Cancellation{
			Success: true,
			Message: fmt.Sprintf("Order %s cancelled.", order.ID),
			Status:  StatusSuccess,
		}}
	case repository.IsNotFound(err):
		return failed(StatusNotFound, "Order not found.")
	case errors.As(err, &r):
		return failed(r.status, r.message)
	default:
		e.logger.Error("cancel order", zap.Error(err), zap.String("ref", ref), zap.String("conversation_id", id.ConversationID))
		return failed(StatusError, "The order could not be cancelled right now. No changes were made.")
	}
}

func (e *Executor) createSupportTicket(ctx context.Context, id Identity, reason string) Result {
	if e.escalator == nil {
		return failed(StatusError, "Support tickets are unavailable right now.")
	}
	ticket, err := e.escalator.Escalate(ctx, domain.EscalationRequest{
		ConversationID: id.ConversationID,
		CustomerEmail:  id.Email,
		Reason:         strings.TrimSpace(reason),
		Source:         domain.TicketSourceTool,
	})
	if err != nil {
		e.logger.Error("create support ticket", zap.Error(err), zap.String("conversation_id", id.ConversationID))
		return failed(StatusError, "Unable to create a support ticket right now.")
	}
	return Result{Status: StatusSuccess, Escalated: true, Value: TicketCreated{
		Success:  true,
		TicketID: ticket.ExternalKey,
		Message:  "A support ticket has been created and a human agent will take over shortly.",
		Status:   StatusSuccess,
	}}
}

func (e *Executor) findOrder(ctx context.Context, id Identity, ref string) (*domain.Order, Result, bool) {
	order, err := e.orders.FindByRef(ctx, ref)
	if repository.IsNotFound(err) {
		return nil, failed(StatusNotFound, fmt.Sprintf("Order with ID or Tracking ID '%s' not found.", ref)), false
	}
	if err != nil {
		e.logger.Error("find order", zap.Error(err), zap.String("ref", ref), zap.String("conversation_id", id.ConversationID))
		return nil, failed(StatusError, "Unable to look up this order right now."), false
	}
	return order, Result{}, true
}

func plausibleEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

// daysBetween counts calendar days from a to b in UTC.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}
