package errors

// Code identifies an error kind independently of the transport.
type Code string

const (
	CodeUserNotFound       Code = "USER_NOT_FOUND"
	CodeNotFriends         Code = "NOT_FRIENDS"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeNoDevices          Code = "NO_DEVICES"
	CodeNoRecipientDevices Code = "NO_RECIPIENT_DEVICES"
	CodeDeliveryFailed     Code = "DELIVERY_FAILED"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeInternal           Code = "INTERNAL"
)
