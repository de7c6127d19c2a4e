package log

// Common field names for structured logging
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

	FieldUserID         = "user_id"
	FieldAccountID      = "account_id"
	FieldDebtID         = "debt_id"
	FieldRecurringID    = "recurring_id"
	FieldTransactionID  = "transaction_id"
	FieldOccurrenceDate = "occurrence_date"
	FieldAmount         = "amount"
	FieldFrequency      = "frequency"
	FieldHorizonMonths  = "horizon_months"
	FieldInstallments   = "installments"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentForecast   = "forecast"
	ComponentGeneration = "generation"
	ComponentDebt       = "debt"
)

// Operations defines standard operation names
const (
	OpGenerate   = "generate"
	OpForecast   = "forecast"
	OpRegenerate = "regenerate"
	OpPreview    = "preview"
	OpValidate   = "validate"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)
