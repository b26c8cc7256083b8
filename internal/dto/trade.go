package dto

// ProposeTradeRequest offers access to one of the proposer's classes in exchange for another.
type ProposeTradeRequest struct {
	OfferedEntryID   string `json:"offered_entry_id" validate:"required,uuid"`
	RequestedEntryID string `json:"requested_entry_id" validate:"required,uuid,nefield=OfferedEntryID"`
	Message          string `json:"message" validate:"max=1000"`
}
