package kenmodel

import "encoding/json"

// RequestType discriminates the four verbs an agent may send, per
// spec §4.5 and §6.
type RequestType string

const (
	RequestComplete       RequestType = "complete"
	RequestFail           RequestType = "fail"
	RequestSleep          RequestType = "sleep"
	RequestSpawnAndSleep  RequestType = "spawn_and_sleep"
)

// ChildSpec describes one child session to mint during spawn_and_sleep.
type ChildSpec struct {
	KenPath  string    `json:"ken_path"`
	Task     string    `json:"task"`
	DoneWhen *DoneWhen `json:"done_when,omitempty"`
}

// Envelope is the outer shape every agent request line shares: a type
// tag plus the session id making the request. Callers decode the
// type-specific fields from the same raw bytes after dispatching on Type.
type Envelope struct {
	Type      RequestType `json:"type"`
	SessionID string      `json:"session_id"`
}

// CompleteRequest is the `complete` verb.
type CompleteRequest struct {
	Envelope
	Result string `json:"result"`
}

// FailRequest is the `fail` verb.
type FailRequest struct {
	Envelope
	Reason string `json:"reason"`
}

// SleepRequest is the `sleep` verb. Trigger is decoded separately since
// Trigger.UnmarshalJSON needs the insertion-time "now" for
// timeout_seconds resolution.
type SleepRequest struct {
	Envelope
	TriggerRaw json.RawMessage `json:"trigger"`
	Checkpoint string          `json:"checkpoint"`
}

// SpawnAndSleepRequest is the `spawn_and_sleep` verb.
type SpawnAndSleepRequest struct {
	Envelope
	Children   []ChildSpec     `json:"children"`
	TriggerRaw json.RawMessage `json:"trigger"`
	Checkpoint string          `json:"checkpoint"`
}

// Response is the envelope returned to the agent for every request,
// matching the {ok,data?}/{ok,error} shape of spec §6.
type Response struct {
	OK    bool `json:"ok"`
	Data  any  `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// OKResponse builds a successful response, optionally carrying data.
func OKResponse(data any) Response { return Response{OK: true, Data: data} }

// ErrResponse builds a failure response.
func ErrResponse(msg string) Response { return Response{OK: false, Error: msg} }
