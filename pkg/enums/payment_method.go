package enums

// PaymentMethod describes how a customer settles an order.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodStripe PaymentMethod = "stripe"
)

var paymentMethods = closed[PaymentMethod]{"payment method", []PaymentMethod{
	PaymentMethodCOD,
	PaymentMethodStripe,
}}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return paymentMethods.has(p) }

// SettlesOnline reports whether payment is captured before fulfillment
// rather than collected at the door.
func (p PaymentMethod) SettlesOnline() bool { return p == PaymentMethodStripe }

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return paymentMethods.parse(value)
}
