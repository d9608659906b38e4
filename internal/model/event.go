package model

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies a marketplace contract event.
type EventKind string

const (
	EventFarmerJoined   EventKind = "farmerJoined"
	EventProductCreated EventKind = "productCreated"
	EventProductBought  EventKind = "productBought"
	EventStockUpdated   EventKind = "stockUpdated"
	EventPriceIncreased EventKind = "priceIncreased"
)

// Kinds lists every event kind the monitor subscribes to.
func Kinds() []EventKind {
	return []EventKind{
		EventFarmerJoined,
		EventProductCreated,
		EventProductBought,
		EventStockUpdated,
		EventPriceIncreased,
	}
}

// EventPayload is a decoded contract event body. One implementation per kind;
// big integers are carried as decimal strings.
type EventPayload interface {
	Kind() EventKind
}

// FarmerJoinedData is the decoded farmerJoined payload.
type FarmerJoinedData struct {
	Farmer string `json:"farmer"`
	Name   string `json:"name"`
}

func (FarmerJoinedData) Kind() EventKind { return EventFarmerJoined }

// ProductCreatedData is the decoded productCreated payload.
// Field order mirrors the ABI declaration: (productId, price, farmer, amount).
type ProductCreatedData struct {
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Farmer    string `json:"farmer"`
	Amount    string `json:"amount"`
}

func (ProductCreatedData) Kind() EventKind { return EventProductCreated }

// ProductBoughtData is the decoded productBought payload.
type ProductBoughtData struct {
	ProductID  string `json:"product_id"`
	Buyer      string `json:"buyer"`
	Amount     string `json:"amount"`
	TotalPrice string `json:"total_price"`
}

func (ProductBoughtData) Kind() EventKind { return EventProductBought }

// StockUpdatedData is the decoded stockUpdated payload.
type StockUpdatedData struct {
	ProductID string `json:"product_id"`
	NewAmount string `json:"new_amount"`
}

func (StockUpdatedData) Kind() EventKind { return EventStockUpdated }

// PriceIncreasedData is the decoded priceIncreased payload.
type PriceIncreasedData struct {
	ProductID string `json:"product_id"`
	NewPrice  string `json:"new_price"`
}

func (PriceIncreasedData) Kind() EventKind { return EventPriceIncreased }

// DecodePayload reconstructs a typed payload from its stored JSON encoding.
func DecodePayload(kind EventKind, data []byte) (EventPayload, error) {
	switch kind {
	case EventFarmerJoined:
		var p FarmerJoinedData
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	case EventProductCreated:
		var p ProductCreatedData
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	case EventProductBought:
		var p ProductBoughtData
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	case EventStockUpdated:
		var p StockUpdatedData
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	case EventPriceIncreased:
		var p PriceIncreasedData
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event kind: %s", kind)
	}
}
