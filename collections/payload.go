package collections

import (
	"context"
	"fmt"

	"www.velocidex.com/golang/flowsched/json"
)

// Collections may hold records of different kinds. Each record is
// wrapped with its kind so readers can decode it.
type Payload struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type UnexpectedKindError struct {
	Expected string
	Actual   string
}

func (self UnexpectedKindError) Error() string {
	return fmt.Sprintf("unexpected kind: expected %v, got %v",
		self.Expected, self.Actual)
}

func NewPayload(kind string, item interface{}) (*Payload, error) {
	serialized, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	return &Payload{Kind: kind, Data: serialized}, nil
}

// Decode the payload into target, which must be of the given kind.
func (self *Payload) Decode(kind string, target interface{}) error {
	if self.Kind != kind {
		return UnexpectedKindError{Expected: kind, Actual: self.Kind}
	}
	return json.Unmarshal(self.Data, target)
}

func ParsePayload(serialized []byte) (*Payload, error) {
	result := &Payload{}
	err := json.Unmarshal(serialized, result)
	if err != nil {
		return nil, err
	}
	if result.Kind == "" {
		return nil, fmt.Errorf("payload without a kind")
	}
	return result, nil
}

func (self *Collection) AddPayload(kind string, item interface{}) (Key, error) {
	payload, err := NewPayload(kind, item)
	if err != nil {
		return Key{}, err
	}
	return self.AddPayloadWithKey(payload, Key{})
}

func (self *Collection) AddPayloadWithKey(payload *Payload, key Key) (Key, error) {
	serialized, err := json.Marshal(payload)
	if err != nil {
		return Key{}, err
	}
	return self.AddWithKey(serialized, key)
}

type PayloadItem struct {
	Key     Key
	Payload *Payload
}

// Like GenerateItems but decodes the payloads. An undecodable record
// ends the sequence.
func (self *Collection) GeneratePayloads(
	ctx context.Context, offset int64) <-chan *PayloadItem {
	output := make(chan *PayloadItem)

	go func() {
		defer close(output)

		sub_ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		for item := range self.GenerateItems(sub_ctx, offset) {
			payload, err := ParsePayload(item.Value)
			if err != nil {
				return
			}

			select {
			case <-ctx.Done():
				return
			case output <- &PayloadItem{Key: item.Key, Payload: payload}:
			}
		}
	}()

	return output
}
