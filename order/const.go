package order

// Status is the custom type to define the fulfillment state of an order
type Status string

// Define the valid states of an order
// Pending -> Paid -> Shipped -> Delivered
// Pending -> Cancelled
// Paid -> Cancelled
// Paid -> Delivered (buyer may confirm delivery even if the seller never
// explicitly marked the order shipped)
// Delivered and Cancelled are terminal. The nested return workflow on a
// delivered order never changes Status
const (
	StatusPending   Status = "Pending"
	StatusPaid             = "Paid"
	StatusShipped          = "Shipped"
	StatusDelivered        = "Delivered"
	StatusCancelled        = "Cancelled"
)

// ReturnStatus is the custom type for the return sub-workflow nested within
// a delivered order
type ReturnStatus string

// Define the valid return states. None -> Requested -> Approved|Denied,
// no transition back. Approved and Denied are terminal for that order
const (
	ReturnNone      ReturnStatus = ""
	ReturnRequested              = "Requested"
	ReturnApproved               = "Approved"
	ReturnDenied                 = "Denied"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusDelivered, StatusCancelled},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: {},
	StatusCancelled: {},
}

// CanTransition reports whether the ordinary state machine permits moving
// from one status to another. Admin force-set bypasses this table but not
// the structural invariants
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether the given value is a defined order status
func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no ordinary transition leads out of the status
func Terminal(s Status) bool {
	return ValidStatus(s) && len(transitions[s]) == 0
}
