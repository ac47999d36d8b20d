package tools

// Name identifies a tool in the closed catalog.
type Name string

const (
	ListCustomerOrders     Name = "list_customer_orders"
	GetOrderDetails        Name = "get_order_details"
	CheckReturnEligibility Name = "check_return_eligibility"
	CancelOrder            Name = "cancel_order"
	CreateSupportTicket    Name = "create_support_ticket"
)

// Names lists the catalog in presentation order.
func Names() []Name {
	return []Name{ListCustomerOrders, GetOrderDetails, CheckReturnEligibility, CancelOrder, CreateSupportTicket}
}

// ParseName maps a model-supplied string onto the catalog.
func ParseName(s string) (Name, bool) {
	for _, n := range Names() {
		if string(n) == s {
			return n, true
		}
	}
	return "", false
}

// Definition is the model-facing contract of a tool. Identity fields never
// appear in Parameters; they are supplied by the engine through Identity.
type Definition struct {
	Name        Name
	Description string
	Parameters  map[string]any
}

func orderRefSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"order_id_or_tracking": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Order id (e.g. o1) or carrier tracking id (e.g. TRK123456)",
			},
		},
		"required": []string{"order_id_or_tracking"},
	}
}

var catalog = map[Name]Definition{
	ListCustomerOrders: {
		Name:        ListCustomerOrders,
		Description: "List all orders placed by the verified customer. Use when the customer asks about their orders without giving an order id.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	GetOrderDetails: {
		Name:        GetOrderDetails,
		Description: "Get full details of one of the customer's orders by order id or tracking id.",
		Parameters:  orderRefSchema(),
	},
	CheckReturnEligibility: {
		Name:        CheckReturnEligibility,
		Description: "Check whether an order can be returned under its store's return policy.",
		Parameters:  orderRefSchema(),
	},
	CancelOrder: {
		Name:        CancelOrder,
		Description: "Cancel an order. Only orders still in processing can be cancelled, and only if the store allows it.",
		Parameters:  orderRefSchema(),
	},
	CreateSupportTicket: {
		Name:        CreateSupportTicket,
		Description: "Escalate the conversation to a human agent by opening a support ticket.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "Short summary of why a human is needed",
				},
			},
			"required": []string{"reason"},
		},
	},
}

// Catalog returns every definition in presentation order.
func Catalog() []Definition {
	out := make([]Definition, 0, len(catalog))
	for _, n := range Names() {
		out = append(out, catalog[n])
	}
	return out
}

// Lookup returns the definition for n.
func Lookup(n Name) (Definition, bool) {
	def, ok := catalog[n]
	return def, ok
}
