package protocol

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const Version = "1.0"

// Message types. The set is closed: anything else is rejected at the edge.
const (
	TypeInit   = "INIT"
	TypeJoin   = "JOIN"
	TypeLeave  = "LEAVE"
	TypeLoad   = "LOAD"
	TypeUnload = "UNLOAD"
	TypeUpdate = "UPDATE"
	TypePeer   = "PEER"
	TypeConfig = "CONFIG"
	TypeChat   = "CHAT"
	TypeNoop   = "NOOP"
)

var knownTypes = map[string]struct{}{
	TypeInit:   {},
	TypeJoin:   {},
	TypeLeave:  {},
	TypeLoad:   {},
	TypeUnload: {},
	TypeUpdate: {},
	TypePeer:   {},
	TypeConfig: {},
	TypeChat:   {},
	TypeNoop:   {},
}

func IsKnownType(t string) bool {
	_, ok := knownTypes[t]
	return ok
}

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

//go:embed message.schema.json
var messageSchemaJSON string

var messageSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("message.schema.json", strings.NewReader(messageSchemaJSON)); err != nil {
		panic(err)
	}
	return c.MustCompile("message.schema.json")
}()

// Decode validates an inbound frame against the message schema and decodes it.
func Decode(b []byte) (Message, error) {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return Message{}, fmt.Errorf("decode: %w", err)
	}
	if err := messageSchema.Validate(raw); err != nil {
		return Message{}, fmt.Errorf("validate: %w", err)
	}
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode: %w", err)
	}
	return m, nil
}

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}
