package domain

// Store is a tenant storefront.
type Store struct {
	ID           string
	Name         string
	SupportEmail string
}

// StoreSettings carries per-store policy knobs.
type StoreSettings struct {
	StoreID             string
	ReturnWindowDays    int
	CancelAllowed       bool
	Tone                string
	EscalationThreshold int
}

// DefaultStoreSettings applies when a store has no settings row.
func DefaultStoreSettings(storeID string) StoreSettings {
	return StoreSettings{
		StoreID:             storeID,
		ReturnWindowDays:    7,
		CancelAllowed:       true,
		Tone:                "friendly and professional",
		EscalationThreshold: 10,
	}
}
