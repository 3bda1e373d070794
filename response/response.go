package response

// Response is the uniform envelope for every JSON reply.
type Response struct {
	Msg  string `json:"msg,omitempty"`
	Data any    `json:"data,omitempty"`
}
