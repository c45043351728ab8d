package logging

// Standardized field names for structured logging.
// Sync components log queue and remote activity with these keys so a single
// operation can be followed from enqueue to drain.
const (
	FieldOperation     = "operation"
	FieldOpID          = "op_id"
	FieldOpType        = "op_type"
	FieldEntity        = "entity"
	FieldKey           = "key"
	FieldOwner         = "owner"
	FieldTransactionID = "transaction_id"
	FieldCategory      = "category"
	FieldCount         = "count"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldOffline       = "offline"
	FieldCurrency      = "currency"
	FieldRate          = "rate"
	FieldJob           = "job"
	FieldFile          = "file"
	FieldDriver        = "driver"
)
