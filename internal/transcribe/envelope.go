package transcribe

import "strings"

// RequestBody is the JSON job description accepted by the intakes.
// voice_url is the primary key; source_url is accepted as an alias.
type RequestBody struct {
	JobID     string `json:"job_id,omitempty"`
	VoiceURL  string `json:"voice_url,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	ReplyTo   string `json:"reply_to,omitempty"` // MQTT only
}

// JobRequest converts the body to a pipeline request.
func (b RequestBody) JobRequest() JobRequest {
	url := strings.TrimSpace(b.VoiceURL)
	if url == "" {
		url = strings.TrimSpace(b.SourceURL)
	}
	return JobRequest{ID: b.JobID, SourceURL: url}
}

// Envelope is the response returned to callers: {message} on success,
// {message, status_code} on failure.
type Envelope struct {
	JobID      string `json:"job_id,omitempty"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// Envelope renders the outcome for callers.
func (o Outcome) Envelope() Envelope {
	env := Envelope{JobID: o.JobID, Message: o.Message()}
	if o.Err != nil {
		env.StatusCode = o.StatusCode()
		env.Kind = o.Err.Kind.String()
	}
	return env
}
