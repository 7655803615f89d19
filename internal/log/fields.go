package log

// Common field names for structured logging.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldOwnerID    = "owner_id"
	FieldCardID     = "card_id"
	FieldSeriesID   = "series_id"
	FieldCycle      = "cycle"
	FieldCategory   = "category"
	FieldCount      = "count"
	FieldSheetsRef  = "sheets_ref"
)

// Standard component names.
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentLedger     = "ledger"
	ComponentSeries     = "series"
	ComponentCards      = "cards"
	ComponentCategories = "categories"
	ComponentNotify     = "notify"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
)
