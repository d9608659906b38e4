package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"agromart/internal/model"
)

// Decoder converts raw marketplace contract logs into typed event payloads.
// Payloads are decoded exactly once here; everything downstream works with
// the tagged union in internal/model.
type Decoder struct {
	abi         abi.ABI
	topicToKind map[common.Hash]model.EventKind
}

// NewDecoder parses the contract ABI and builds the topic0 index.
func NewDecoder() (*Decoder, error) {
	parsed, err := MarketplaceABI()
	if err != nil {
		return nil, err
	}

	topicToKind := make(map[common.Hash]model.EventKind, len(model.Kinds()))
	for _, kind := range model.Kinds() {
		ev, ok := parsed.Events[string(kind)]
		if !ok {
			return nil, fmt.Errorf("abi missing event %s", kind)
		}
		topicToKind[ev.ID] = kind
	}

	return &Decoder{abi: parsed, topicToKind: topicToKind}, nil
}

// Topics returns the topic0 hashes for every known event, for log filters.
func (d *Decoder) Topics() []common.Hash {
	topics := make([]common.Hash, 0, len(d.topicToKind))
	for topic := range d.topicToKind {
		topics = append(topics, topic)
	}
	return topics
}

// KindFor resolves a topic0 hash to its event kind.
func (d *Decoder) KindFor(topic0 common.Hash) (model.EventKind, bool) {
	kind, ok := d.topicToKind[topic0]
	return kind, ok
}

// Decode unpacks one log into its typed payload.
func (d *Decoder) Decode(log types.Log) (model.EventPayload, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log %s:%d has no topics", log.TxHash.Hex(), log.Index)
	}
	kind, ok := d.topicToKind[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	data := make(map[string]interface{})
	if err := d.abi.UnpackIntoMap(data, string(kind), log.Data); err != nil {
		return nil, fmt.Errorf("unpack %s data: %w", kind, err)
	}

	switch kind {
	case model.EventFarmerJoined:
		farmer, err := topicAddress(log, 1)
		if err != nil {
			return nil, err
		}
		name, err := stringField(data, "name")
		if err != nil {
			return nil, err
		}
		return model.FarmerJoinedData{Farmer: farmer, Name: name}, nil

	case model.EventProductCreated:
		productID, err := topicUint(log, 1)
		if err != nil {
			return nil, err
		}
		farmer, err := topicAddress(log, 2)
		if err != nil {
			return nil, err
		}
		price, err := uintField(data, "price")
		if err != nil {
			return nil, err
		}
		amount, err := uintField(data, "amount")
		if err != nil {
			return nil, err
		}
		return model.ProductCreatedData{
			ProductID: productID,
			Price:     price,
			Farmer:    farmer,
			Amount:    amount,
		}, nil

	case model.EventProductBought:
		productID, err := topicUint(log, 1)
		if err != nil {
			return nil, err
		}
		buyer, err := topicAddress(log, 2)
		if err != nil {
			return nil, err
		}
		amount, err := uintField(data, "amount")
		if err != nil {
			return nil, err
		}
		totalPrice, err := uintField(data, "totalPrice")
		if err != nil {
			return nil, err
		}
		return model.ProductBoughtData{
			ProductID:  productID,
			Buyer:      buyer,
			Amount:     amount,
			TotalPrice: totalPrice,
		}, nil

	case model.EventStockUpdated:
		productID, err := topicUint(log, 1)
		if err != nil {
			return nil, err
		}
		newAmount, err := uintField(data, "newAmount")
		if err != nil {
			return nil, err
		}
		return model.StockUpdatedData{ProductID: productID, NewAmount: newAmount}, nil

	case model.EventPriceIncreased:
		productID, err := topicUint(log, 1)
		if err != nil {
			return nil, err
		}
		newPrice, err := uintField(data, "newPrice")
		if err != nil {
			return nil, err
		}
		return model.PriceIncreasedData{ProductID: productID, NewPrice: newPrice}, nil

	default:
		return nil, fmt.Errorf("unsupported event kind: %s", kind)
	}
}

func topicAddress(log types.Log, index int) (string, error) {
	if len(log.Topics) <= index {
		return "", fmt.Errorf("log %s:%d missing indexed topic %d", log.TxHash.Hex(), log.Index, index)
	}
	return common.BytesToAddress(log.Topics[index].Bytes()).Hex(), nil
}

func topicUint(log types.Log, index int) (string, error) {
	if len(log.Topics) <= index {
		return "", fmt.Errorf("log %s:%d missing indexed topic %d", log.TxHash.Hex(), log.Index, index)
	}
	return new(big.Int).SetBytes(log.Topics[index].Bytes()).String(), nil
}

func uintField(data map[string]interface{}, name string) (string, error) {
	raw, ok := data[name]
	if !ok {
		return "", fmt.Errorf("missing field %s", name)
	}
	value, ok := raw.(*big.Int)
	if !ok {
		return "", fmt.Errorf("field %s is not uint256", name)
	}
	return value.String(), nil
}

func stringField(data map[string]interface{}, name string) (string, error) {
	raw, ok := data[name]
	if !ok {
		return "", fmt.Errorf("missing field %s", name)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field %s is not string", name)
	}
	return value, nil
}
