package domain

import "encoding/json"

// OperationName identifies a dispatchable operation.
type OperationName string

const (
	OpGetServices           OperationName = "getServices"
	OpGetAvailability       OperationName = "getAvailability"
	OpGetBookings           OperationName = "getBookings"
	OpGetBooking            OperationName = "getBooking"
	OpCreateBooking         OperationName = "createBooking"
	OpCancelBooking         OperationName = "cancelBooking"
	OpGetPets               OperationName = "getPets"
	OpCreatePet             OperationName = "createPet"
	OpGetOwner              OperationName = "getOwner"
	OpUpdateOwner           OperationName = "updateOwner"
	OpUpdateBookingStatus   OperationName = "updateBookingStatus"
	OpBroadcastNotification OperationName = "broadcastNotification"
)

// OperationRequest is the inbound operation envelope.
type OperationRequest struct {
	Operation OperationName   `json:"operation"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId"`
}

// OperationResponse acknowledges one request to its caller only.
type OperationResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Code      string          `json:"code,omitempty"`
	RequestID string          `json:"requestId"`
}
