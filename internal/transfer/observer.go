package transfer

// Observer receives transfer notifications. Implementations must not block;
// callbacks run on the goroutine driving the transfer.
type Observer interface {
	OnTransferAdded(item Item)
	OnProgress(id string, percent int)
	OnCompleted(id string, handle *Handle)
	OnLog(message string)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnTransferAdded(Item)        {}
func (NopObserver) OnProgress(string, int)      {}
func (NopObserver) OnCompleted(string, *Handle) {}
func (NopObserver) OnLog(string)                {}
