package domain

// ConnectionState is the lifecycle state of the realtime connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
)

// validTransitions lists allowed moves between connection states.
var validTransitions = map[ConnectionState][]ConnectionState{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateDisconnected},
	StateConnected:    {StateDisconnected},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s ConnectionState) CanTransitionTo(next ConnectionState) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition describes one state change of the connection controller.
type Transition struct {
	From       ConnectionState `json:"from"`
	To         ConnectionState `json:"to"`
	Generation uint64          `json:"generation"`
	Reason     string          `json:"reason,omitempty"`
}

// Codec selects the audio encoding negotiated before the handshake.
type Codec string

const (
	CodecOpus Codec = "opus" // wide-band
	CodecPCMU Codec = "pcmu" // narrow-band G.711 mu-law
	CodecPCMA Codec = "pcma" // narrow-band G.711 A-law
)

// ParseCodec validates a codec name.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(s); c {
	case CodecOpus, CodecPCMU, CodecPCMA:
		return c, nil
	}
	return "", NewDomainError("ParseCodec", ErrInvalidInput, s)
}

// AudioFormat returns the transport audio format name for the codec.
func (c Codec) AudioFormat() string {
	switch c {
	case CodecPCMU:
		return "g711_ulaw"
	case CodecPCMA:
		return "g711_alaw"
	default:
		return "pcm16"
	}
}

// SampleRate returns the output sample rate in Hz.
func (c Codec) SampleRate() int {
	if c == CodecPCMU || c == CodecPCMA {
		return 8000
	}
	return 24000
}
