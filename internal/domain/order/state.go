package order

// OrderState implements the state pattern for the order lifecycle.
// Every transition returns the next state and whether it is legal from the current one.
type OrderState interface {
	Status() Status
	Modifiable() bool
	OnPaymentConfirmed() (OrderState, bool)
	OnPreparationStarted() (OrderState, bool)
	OnReady() (OrderState, bool)
	OnCompleted() (OrderState, bool)
	OnCancelled() (OrderState, bool)
}

// terminal rejects every transition; concrete states embed it and override what they allow.
type terminal struct{}

func (terminal) Modifiable() bool                         { return false }
func (terminal) OnPaymentConfirmed() (OrderState, bool)   { return nil, false }
func (terminal) OnPreparationStarted() (OrderState, bool) { return nil, false }
func (terminal) OnReady() (OrderState, bool)              { return nil, false }
func (terminal) OnCompleted() (OrderState, bool)          { return nil, false }
func (terminal) OnCancelled() (OrderState, bool)          { return nil, false }

type pendingState struct{ terminal }

func (pendingState) Status() Status                         { return StatusPending }
func (pendingState) Modifiable() bool                       { return true }
func (pendingState) OnPaymentConfirmed() (OrderState, bool) { return paymentConfirmedState{}, true }
func (pendingState) OnCancelled() (OrderState, bool)        { return cancelledState{}, true }

type paymentConfirmedState struct{ terminal }

func (paymentConfirmedState) Status() Status                           { return StatusPaymentConfirmed }
func (paymentConfirmedState) OnPreparationStarted() (OrderState, bool) { return inPreparationState{}, true }
func (paymentConfirmedState) OnCancelled() (OrderState, bool)          { return cancelledState{}, true }

type inPreparationState struct{ terminal }

func (inPreparationState) Status() Status                  { return StatusInPreparation }
func (inPreparationState) OnReady() (OrderState, bool)     { return readyForPickupState{}, true }
func (inPreparationState) OnCancelled() (OrderState, bool) { return cancelledState{}, true }

type readyForPickupState struct{ terminal }

func (readyForPickupState) Status() Status                  { return StatusReadyForPickup }
func (readyForPickupState) OnCompleted() (OrderState, bool) { return completedState{}, true }
func (readyForPickupState) OnCancelled() (OrderState, bool) { return cancelledState{}, true }

type completedState struct{ terminal }

func (completedState) Status() Status { return StatusCompleted }

type cancelledState struct{ terminal }

func (cancelledState) Status() Status { return StatusCancelled }

func stateFor(s Status) (OrderState, bool) {
	switch s {
	case StatusPending:
		return pendingState{}, true
	case StatusPaymentConfirmed:
		return paymentConfirmedState{}, true
	case StatusInPreparation:
		return inPreparationState{}, true
	case StatusReadyForPickup:
		return readyForPickupState{}, true
	case StatusCompleted:
		return completedState{}, true
	case StatusCancelled:
		return cancelledState{}, true
	default:
		return nil, false
	}
}
