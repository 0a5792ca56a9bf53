package model

// Trigger names why an order changed.
type Trigger string

const (
	TriggerNewOrder     Trigger = "new-order"
	TriggerReprice      Trigger = "reprice"
	TriggerCancel       Trigger = "cancel"
	TriggerSale         Trigger = "sale"
	TriggerRevalidation Trigger = "revalidation"
)

// OrderUpdate is pushed downstream whenever an order changes.
type OrderUpdate struct {
	OrderID string  `json:"order_id"`
	Trigger Trigger `json:"trigger"`
	Context string  `json:"context"`
}
