package gateway

import "github.com/MrWong99/papo/pkg/audio"

// Client → server message types. Audio travels in binary frames.
const (
	MsgHello       = "hello"
	MsgStart       = "start"
	MsgStop        = "stop"
	MsgCancel      = "cancel"
	MsgBack        = "back"
	MsgSay         = "say"
	MsgPhoneInput  = "phone_input"
	MsgSubmitPhone = "submit_phone"
	MsgConfirm     = "confirm"
	MsgReset       = "reset"
	MsgMic         = "mic"
)

// Server → client event types. Narration audio travels in binary frames.
const (
	EvReady        = "ready"
	EvStep         = "step"
	EvRecording    = "recording"
	EvTranscript   = "transcript"
	EvVolume       = "volume"
	EvNotification = "notification"
	EvValidation   = "validation"
	EvPhone        = "phone"
	EvUser         = "user"
	EvComplete     = "complete"
	EvNavigate     = "navigate"
	EvError        = "error"
)

// Input codecs announced in hello.
const (
	CodecPCM16 = "pcm16"
	CodecOpus  = "opus"
)

// ClientMessage is any JSON text frame sent by the client.
type ClientMessage struct {
	Type string `json:"type"`

	// hello / mic
	Mic        string `json:"mic,omitempty"`
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`

	// phone_input / submit_phone
	Value string `json:"value,omitempty"`

	// say / confirm
	Text string `json:"text,omitempty"`
}

// Event is a JSON text frame sent to the client. Data holds the payload
// type named after the event; step carries an onboarding.Snapshot,
// notification a notify.Notification, user an onboarding.UserData and
// complete an onboarding.Completion.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Ready is the payload of the first event on a connection.
type Ready struct {
	SessionID string        `json:"session_id"`
	Narration *audio.Format `json:"narration,omitempty"`
}

// Recording is the payload of EvRecording.
type Recording struct {
	On bool `json:"on"`
}

// Transcript is the payload of EvTranscript.
type Transcript struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Volume is the payload of EvVolume.
type Volume struct {
	Level uint8 `json:"level"`
}

// Validation is the payload of EvValidation. An empty message clears it.
type Validation struct {
	Message string `json:"message"`
}

// Phone is the payload of EvPhone: the as-typed formatting of phone_input.
type Phone struct {
	Value string `json:"value"`
}

// Navigate is the payload of EvNavigate.
type Navigate struct {
	Route string `json:"route"`
}

// ErrorPayload is the payload of EvError, sent for protocol misuse.
type ErrorPayload struct {
	Message string `json:"message"`
}
