package conversation

import (
	"fmt"
	"strings"

	"github.com/spec-kit/support-agent/internal/domain"
)

const basePrompt = `You are a professional ecommerce support assistant named EcommerceSupportAgent.

You support customers across multiple stores.
Only discuss orders that belong to the verified customer. Tools already enforce ownership; never ask the customer for their email.
If the customer asks about their orders without giving an order id, use the 'list_customer_orders' tool first.
Always use tools when you need real-time order data. You can share:
- Order status and history
- Total amount
- Shipping address and tracking id
- Return eligibility under the store's return policy (use 'check_return_eligibility')

Follow the outcome of 'check_return_eligibility'; it already applies the store-specific policy.

HUMAN ESCALATION:
Use the 'create_support_ticket' tool to hand the conversation to a human agent when:
1. The customer is extremely angry, frustrated, or abusive.
2. The customer insists on a refund or return outside the calculated policy.
3. You hit a technical error or the customer reports a major bug.
4. You suspect fraudulent activity.
5. The request is beyond your capabilities or scope.`

// SystemPrompt renders the one system message stored when a conversation is created.
func SystemPrompt(settings domain.StoreSettings, storeName, email string) string {
	if storeName == "" {
		storeName = "Main Store"
	}
	tone := strings.TrimSpace(settings.Tone)
	if tone == "" {
		tone = domain.DefaultStoreSettings(settings.StoreID).Tone
	}
	cancel := "Orders that are still processing can be cancelled with 'cancel_order'."
	if !settings.CancelAllowed {
		cancel = "This store does not allow order cancellations; offer a support ticket instead."
	}

	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\nSTORE POLICY:\n")
	fmt.Fprintf(&b, "- Store: %s (%s)\n", storeName, settings.StoreID)
	fmt.Fprintf(&b, "- Return window: %d days after delivery.\n", settings.ReturnWindowDays)
	fmt.Fprintf(&b, "- %s\n", cancel)
	fmt.Fprintf(&b, "\nVERIFIED CUSTOMER: %s\n", email)
	fmt.Fprintf(&b, "\nKeep a %s tone. Be polite, concise, and helpful.", tone)
	return b.String()
}
