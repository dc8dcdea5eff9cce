package models

type DeliveryItem struct {
	CounterpartyId string `json:"cp" validate:"required"`
	ItemKey        string `json:"key"`
	Quantity       int    `json:"qty" validate:"min=1"`
	UnitPriceMinor int64  `json:"price" validate:"min=0"`
	Payload        []byte `json:"payload,omitempty"`
}

type DeliveryIntent struct {
	Items []DeliveryItem `validate:"required,min=1,dive"`
}

type DeliveryReport struct {
	CounterpartyId string
	Succeeded      bool
	Err            error
}

// DeliveryEnvelope is the plaintext sent to one counterparty before encryption.
type DeliveryEnvelope struct {
	Id    string         `json:"id"`
	Items []DeliveryItem `json:"items"`
}
