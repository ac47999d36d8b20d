package tools

// Status is the outcome code every tool result carries.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusNotFound     Status = "not_found"
	StatusFailed       Status = "failed"
	StatusUnauthorized Status = "unauthorized"
	StatusInvalidState Status = "invalid_state"
	StatusDataError    Status = "data_error"
	StatusExpired      Status = "expired"
	StatusDuplicate    Status = "duplicate"
	StatusDisabled     Status = "disabled"
	StatusError        Status = "error"
)

// Failure is the generic business error payload.
type Failure struct {
	Error   string   `json:"error"`
	Status  Status   `json:"status,omitempty"`
	Details []string `json:"details,omitempty"`
}

// OrderSummary is one row of list_customer_orders.
type OrderSummary struct {
	OrderID     string  `json:"order_id"`
	Status      string  `json:"status"`
	OrderDate   string  `json:"order_date"`
	TotalAmount float64 `json:"total_amount"`
}

// OrderList is the list_customer_orders payload.
type OrderList struct {
	Status Status         `json:"status"`
	Orders []OrderSummary `json:"orders"`
}

// OrderDetail is the get_order_details payload.
type OrderDetail struct {
	Status          Status  `json:"status"`
	OrderID         string  `json:"order_id"`
	StatusLabel     string  `json:"status_label"`
	OrderDate       string  `json:"order_date"`
	DeliveryDate    *string `json:"delivery_date"`
	TotalAmount     float64 `json:"total_amount"`
	ShippingAddress string  `json:"shipping_address"`
	TrackingID      *string `json:"tracking_id"`
	StoreName       string  `json:"store_name"`
}

// Eligibility is the check_return_eligibility payload.
type Eligibility struct {
	Eligible    bool   `json:"eligible"`
	Reason      string `json:"reason"`
	Status      Status `json:"status"`
	PolicyLimit int    `json:"policy_limit,omitempty"`
}

// Cancellation is the cancel_order success payload.
type Cancellation struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  Status `json:"status"`
}

// TicketCreated is the create_support_ticket success payload.
type TicketCreated struct {
	Success  bool   `json:"success"`
	TicketID string `json:"ticket_id"`
	Message  string `json:"message"`
	Status   Status `json:"status"`
}
