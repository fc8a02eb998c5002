package domain

type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentWallet      PaymentMethod = "wallet"
	PaymentVoucher     PaymentMethod = "voucher"
	PaymentEFT         PaymentMethod = "eft"
	PaymentMobileMoney PaymentMethod = "mobile_money"
)

var PaymentMethods = []PaymentMethod{PaymentCash, PaymentWallet, PaymentVoucher, PaymentEFT, PaymentMobileMoney}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentWallet, PaymentVoucher, PaymentEFT, PaymentMobileMoney:
		return true
	default:
		return false
	}
}

// SettlesImmediately reports whether the method is confirmed at the counter.
// EFT and mobile money are confirmed later by the payment provider.
func (m PaymentMethod) SettlesImmediately() bool {
	switch m {
	case PaymentCash, PaymentWallet, PaymentVoucher:
		return true
	case PaymentEFT, PaymentMobileMoney:
		return false
	default:
		return false
	}
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	default:
		return false
	}
}

// CanBecome validates a payment status change.
func (s PaymentStatus) CanBecome(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentPaid || next == PaymentFailed
	case PaymentFailed:
		return next == PaymentPaid
	case PaymentPaid:
		return next == PaymentRefunded
	case PaymentRefunded:
		return false
	default:
		return false
	}
}

type Channel string

const (
	ChannelApp   Channel = "app"
	ChannelPod   Channel = "pod"
	ChannelPOS   Channel = "pos"
	ChannelAdmin Channel = "admin"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelApp, ChannelPod, ChannelPOS, ChannelAdmin:
		return true
	default:
		return false
	}
}

// CounterSale reports whether the order is handed over at a pod counter, in
// which case no delivery fee applies.
func (c Channel) CounterSale() bool {
	return c == ChannelPod || c == ChannelPOS
}

type OrderStatus string

const (
	StatusCreated   OrderStatus = "created"
	StatusConfirmed OrderStatus = "confirmed"
	StatusAssigned  OrderStatus = "assigned"
	StatusInTransit OrderStatus = "in_transit"
	StatusArriving  OrderStatus = "arriving"
	StatusDelivered OrderStatus = "delivered"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// happyPath is the only forward order of states.
var happyPath = []OrderStatus{
	StatusCreated,
	StatusConfirmed,
	StatusAssigned,
	StatusInTransit,
	StatusArriving,
	StatusDelivered,
	StatusCompleted,
}

func (s OrderStatus) Valid() bool {
	return s == StatusCancelled || s.position() >= 0
}

func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Next returns the successor on the happy path.
func (s OrderStatus) Next() (OrderStatus, bool) {
	pos := s.position()
	if pos < 0 || pos == len(happyPath)-1 {
		return "", false
	}
	return happyPath[pos+1], true
}

// CanTransition reports whether next is a legal move from s: the immediate
// successor, or cancellation before delivery.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.Terminal() || !next.Valid() || s == next {
		return false
	}
	if next == StatusCancelled {
		return s.position() >= 0 && s.position() < StatusDelivered.position()
	}
	successor, ok := s.Next()
	return ok && successor == next
}

func (s OrderStatus) position() int {
	for i, status := range happyPath {
		if status == s {
			return i
		}
	}
	return -1
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleDriver   Role = "driver"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleDriver, RoleCustomer:
		return true
	default:
		return false
	}
}

const (
	CustomerStatusActive    = "active"
	CustomerStatusSuspended = "suspended"
	CustomerStatusClosed    = "closed"
)
