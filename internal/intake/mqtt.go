// Package intake accepts transcription jobs from asynchronous transports.
package intake

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/snarg/voicescribe/internal/metrics"
	"github.com/snarg/voicescribe/internal/transcribe"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Enqueuer accepts jobs for background processing.
type Enqueuer interface {
	Enqueue(j transcribe.Job) bool
}

// MQTT turns request-topic messages into jobs and publishes their outcomes.
type MQTT struct {
	queue       Enqueuer
	pub         Publisher
	resultTopic string
	log         zerolog.Logger
}

// NewMQTT creates an intake. The queue may be attached later with SetQueue
// since the worker pool needs PublishResult as its callback.
func NewMQTT(pub Publisher, resultTopic string, log zerolog.Logger) *MQTT {
	return &MQTT{pub: pub, resultTopic: resultTopic, log: log}
}

// SetQueue attaches the job queue. Must be called before messages arrive.
func (m *MQTT) SetQueue(q Enqueuer) { m.queue = q }

// HandleMessage is the mqttclient.MessageHandler for the request topic.
func (m *MQTT) HandleMessage(topic string, payload []byte) {
	var body transcribe.RequestBody
	if err := json.Unmarshal(payload, &body); err != nil {
		m.log.Warn().Err(err).Str("topic", topic).Msg("invalid job payload")
		m.publish("", transcribe.Envelope{
			Message:    "invalid request: " + err.Error(),
			StatusCode: http.StatusBadRequest,
			Kind:       transcribe.KindInvalidInput.String(),
		})
		return
	}

	job := transcribe.Job{Request: body.JobRequest(), ReplyTo: body.ReplyTo}
	if !m.queue.Enqueue(job) {
		metrics.MQTTJobsDropped.Inc()
		m.log.Warn().Str("job_id", body.JobID).Msg("job queue full, dropping job")
		m.publish(body.ReplyTo, transcribe.Envelope{
			JobID:      body.JobID,
			Message:    "job queue is full",
			StatusCode: http.StatusServiceUnavailable,
		})
	}
}

// PublishResult is the transcribe.ResultPublishFunc for the worker pool.
func (m *MQTT) PublishResult(job transcribe.Job, out transcribe.Outcome) {
	m.publish(job.ReplyTo, out.Envelope())
}

func (m *MQTT) publish(replyTo string, env transcribe.Envelope) {
	topic := replyTo
	if topic == "" {
		topic = m.resultTopic
	}
	payload, err := json.Marshal(env)
	if err != nil {
		m.log.Error().Err(err).Msg("marshal result")
		return
	}
	if err := m.pub.Publish(topic, payload); err != nil {
		m.log.Error().Err(err).Str("topic", topic).Str("job_id", env.JobID).Msg("failed to publish result")
	}
}
