package billing

type quoteRequest struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	TargetPlan string `json:"target_plan" validate:"required,max=32"`
}

type createSubscriptionRequest struct {
	Plan        string `json:"plan" validate:"required,max=32"`
	CustomerID  string `json:"customer_id" validate:"required,max=64"`
	UserID      string `json:"user_id" validate:"omitempty,uuid"`
	ChatID      string `json:"chat_id" validate:"omitempty,max=64"`
	BillingType string `json:"billing_type" validate:"omitempty,oneof=PIX BOLETO CREDIT_CARD UNDEFINED"`
	NextDueDate string `json:"next_due_date" validate:"omitempty,datetime=2006-01-02"`
}

type changePlanRequest struct {
	TargetPlan  string `json:"target_plan" validate:"required,max=32"`
	CustomerID  string `json:"customer_id" validate:"omitempty,max=64"`
	BillingType string `json:"billing_type" validate:"omitempty,oneof=PIX BOLETO CREDIT_CARD UNDEFINED"`
}
