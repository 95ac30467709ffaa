package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserID      = "user_id"
	FieldTermID      = "term_id"
	FieldInstallment = "installment_id"
	FieldExpenseID   = "expense_id"
	FieldAmountCents = "amount_cents"
	FieldError       = "error"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentSemester = "semester"
	ComponentExpense  = "expense"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentRepair   = "repair"
)
