package order

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusPaid:      true,
		StatusCancelled: true,
	},
	StatusPaid: {
		StatusShipping:  true,
		StatusCancelled: true,
	},
	StatusShipping: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// Valid reports whether s is one of the known order statuses.
func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether an order may move from one status to
// another. Staying in the same status is not a transition.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// Cancellable reports whether a customer may cancel an order in status s.
// Customers can only cancel before the order ships.
func Cancellable(s Status) bool {
	return s == StatusPending || s == StatusPaid
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", invalidStatus(s)
	}
	return st, nil
}
