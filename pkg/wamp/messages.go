package wamp

// MessageType is the integer code that leads every message on the wire.
type MessageType int

const (
	HELLO        MessageType = 1
	WELCOME      MessageType = 2
	ABORT        MessageType = 3
	GOODBYE      MessageType = 6
	ERROR        MessageType = 8
	CALL         MessageType = 48
	RESULT       MessageType = 50
	REGISTER     MessageType = 64
	REGISTERED   MessageType = 65
	UNREGISTER   MessageType = 66
	UNREGISTERED MessageType = 67
	INVOCATION   MessageType = 68
	YIELD        MessageType = 70
)

func (t MessageType) String() string {
	switch t {
	case HELLO:
		return "HELLO"
	case WELCOME:
		return "WELCOME"
	case ABORT:
		return "ABORT"
	case GOODBYE:
		return "GOODBYE"
	case ERROR:
		return "ERROR"
	case CALL:
		return "CALL"
	case RESULT:
		return "RESULT"
	case REGISTER:
		return "REGISTER"
	case REGISTERED:
		return "REGISTERED"
	case UNREGISTER:
		return "UNREGISTER"
	case UNREGISTERED:
		return "UNREGISTERED"
	case INVOCATION:
		return "INVOCATION"
	case YIELD:
		return "YIELD"
	default:
		return "UNKNOWN"
	}
}

// Message is implemented by every protocol message.
type Message interface {
	MessageType() MessageType
}

// Hello opens a session on a realm.
type Hello struct {
	Realm   URI
	Details Dict
}

// Welcome confirms a session.
type Welcome struct {
	Session ID
	Details Dict
}

// Abort rejects a session before it is established.
type Abort struct {
	Details Dict
	Reason  URI
}

// Goodbye closes an established session.
type Goodbye struct {
	Details Dict
	Reason  URI
}

// Error answers a request that failed. Type is the message type of the failed request.
type Error struct {
	Type    MessageType
	Request ID
	Details Dict
	Error   URI
	Args    List
	Kwargs  Dict
}

// Register asks the dealer to route calls for Procedure to the sender.
type Register struct {
	Request   ID
	Options   Dict
	Procedure URI
}

// Registered acknowledges a Register.
type Registered struct {
	Request      ID
	Registration ID
}

// Unregister removes a registration.
type Unregister struct {
	Request      ID
	Registration ID
}

// Unregistered acknowledges an Unregister.
type Unregistered struct {
	Request ID
}

// Call invokes a procedure.
type Call struct {
	Request   ID
	Options   Dict
	Procedure URI
	Args      List
	Kwargs    Dict
}

// Result carries the outcome of a Call back to the caller.
type Result struct {
	Request ID
	Details Dict
	Args    List
	Kwargs  Dict
}

// Invocation is the dealer's request to a callee.
type Invocation struct {
	Request      ID
	Registration ID
	Details      Dict
	Args         List
	Kwargs       Dict
}

// Yield is the callee's answer to an Invocation.
type Yield struct {
	Request ID
	Options Dict
	Args    List
	Kwargs  Dict
}

func (*Hello) MessageType() MessageType        { return HELLO }
func (*Welcome) MessageType() MessageType      { return WELCOME }
func (*Abort) MessageType() MessageType        { return ABORT }
func (*Goodbye) MessageType() MessageType      { return GOODBYE }
func (*Error) MessageType() MessageType        { return ERROR }
func (*Register) MessageType() MessageType     { return REGISTER }
func (*Registered) MessageType() MessageType   { return REGISTERED }
func (*Unregister) MessageType() MessageType   { return UNREGISTER }
func (*Unregistered) MessageType() MessageType { return UNREGISTERED }
func (*Call) MessageType() MessageType         { return CALL }
func (*Result) MessageType() MessageType       { return RESULT }
func (*Invocation) MessageType() MessageType   { return INVOCATION }
func (*Yield) MessageType() MessageType        { return YIELD }
