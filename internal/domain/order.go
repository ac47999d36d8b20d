package domain

import "time"

// OrderStatus enumerates fulfilment states.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Order is a customer purchase. Dates are ISO-8601 calendar dates as stored.
type Order struct {
	ID              string
	StoreID         string
	CustomerEmail   string
	Status          OrderStatus
	TotalAmount     float64
	OrderDate       string
	DeliveryDate    *string
	ShippingAddress string
	TrackingID      *string
}

// Return is a return request raised against an order.
type Return struct {
	ID        int64
	OrderID   string
	Status    string
	CreatedAt time.Time
}
