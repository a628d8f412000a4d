package wizard

import "fmt"

type Stage string

const (
	StageForm         Stage = "form"
	StagePayment      Stage = "payment"
	StageConfirmation Stage = "confirmation"
)

// transitions lists the stages reachable from each stage.
var transitions = map[Stage][]Stage{
	StageForm:         {StagePayment},
	StagePayment:      {StageForm, StageConfirmation},
	StageConfirmation: {}, // terminal
}

func CanTransition(from, to Stage) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func validateTransition(from, to Stage) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrWrongStage, from, to)
	}
	return nil
}

// State is a snapshot of the controller. It holds only plain values so it
// can be logged or serialized as is.
type State struct {
	Stage             Stage  `json:"stage"`
	RegistrationID    string `json:"registrationId,omitempty"`
	PaymentAmount     int64  `json:"paymentAmount,omitempty"`
	PaymentMethod     string `json:"paymentMethod,omitempty"`
	ProcessingPayment bool   `json:"processingPayment"`
	OrderID           string `json:"orderId,omitempty"`
	LastError         string `json:"lastError,omitempty"`
}
