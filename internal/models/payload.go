package models

import (
	"encoding/json"
)

const (
	ResourcePatron         = "/user/patron"
	ResourceAddress1       = "/user/patron/address1"
	ResourcePatronAddress1 = "/policy/patronAddress1"
	AddressListField       = "address1"
)

// Payload is the create or update body sent to the directory service.
// Create payloads carry no key.
type Payload struct {
	Resource string         `json:"resource"`
	Key      string         `json:"key,omitempty"`
	Fields   map[string]any `json:"fields"`
}

type ResourceRef struct {
	Resource string `json:"resource"`
	Key      string `json:"key"`
}

type AddressEntry struct {
	Resource string        `json:"resource"`
	Fields   AddressFields `json:"fields"`
}

type AddressFields struct {
	Code ResourceRef `json:"code"`
	Data string      `json:"data"`
}

func NewPayload() *Payload {
	return &Payload{Resource: ResourcePatron, Fields: map[string]any{}}
}

// AddAddress appends one entry to the ordered address list.
func (p *Payload) AddAddress(code, data string) {
	entries, _ := p.Fields[AddressListField].([]AddressEntry)
	entries = append(entries, AddressEntry{
		Resource: ResourceAddress1,
		Fields: AddressFields{
			Code: ResourceRef{Resource: ResourcePatronAddress1, Key: code},
			Data: data,
		},
	})
	p.Fields[AddressListField] = entries
}

// Flatten returns the payload fields in the same flattened form used for
// existing remote values, so a payload can be fed back into the builder.
func (p *Payload) Flatten() map[string]string {
	flat := make(map[string]string, len(p.Fields))
	for name, value := range p.Fields {
		switch v := value.(type) {
		case string:
			flat[name] = v
		case ResourceRef:
			flat[name] = v.Key
		case []AddressEntry:
			for _, entry := range v {
				flat[name+"."+entry.Fields.Code.Key] = entry.Fields.Data
			}
		}
	}
	return flat
}

// FlattenFields converts the raw "fields" object of a remote record into a
// flat map. Resource references collapse to their key and address lists
// expand to "address1.<CODE>" entries. Anything else is ignored.
func FlattenFields(raw map[string]json.RawMessage) map[string]string {
	flat := make(map[string]string, len(raw))
	for name, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			flat[name] = s
			continue
		}

		var ref ResourceRef
		if err := json.Unmarshal(value, &ref); err == nil && ref.Key != "" {
			flat[name] = ref.Key
			continue
		}

		var entries []AddressEntry
		if err := json.Unmarshal(value, &entries); err == nil {
			for _, entry := range entries {
				if entry.Fields.Code.Key == "" {
					continue
				}
				flat[name+"."+entry.Fields.Code.Key] = entry.Fields.Data
			}
		}
	}
	return flat
}

// BuildMode selects create or overlay semantics in the payload builder.
type BuildMode int

const (
	ModeCreate BuildMode = iota
	ModeOverlay
)

func (m BuildMode) String() string {
	if m == ModeOverlay {
		return "overlay"
	}
	return "create"
}
