package session

// Event is a discrete input to a Session.
type Event interface {
	event()
}

// ScanDecoded carries raw decoder output.
type ScanDecoded struct {
	Text string
}

// ScanFailed reports a decoder or device failure.
type ScanFailed struct {
	Err error
}

// QuantityChanged requests a new quantity for a cart line.
type QuantityChanged struct {
	ProductID int64
	Quantity  int
}

// LineRemoved removes a cart line.
type LineRemoved struct {
	ProductID int64
}

// CheckoutRequested commits the cart.
type CheckoutRequested struct{}

// Abandoned discards the cart.
type Abandoned struct{}

func (ScanDecoded) event()       {}
func (ScanFailed) event()        {}
func (QuantityChanged) event()   {}
func (LineRemoved) event()       {}
func (CheckoutRequested) event() {}
func (Abandoned) event()         {}
