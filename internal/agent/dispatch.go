package agent

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Dispatch protocol: JSON envelopes on the worker's websocket to the agent
// dispatch endpoint. The server offers jobs; the worker accepts and reports
// status.

type dispatchType string

const (
	typeRegister             dispatchType = "register"
	typeRegistered           dispatchType = "registered"
	typeAvailability         dispatchType = "availability"
	typeAvailabilityResponse dispatchType = "availability_response"
	typeAssignment           dispatchType = "assignment"
	typeJobStatus            dispatchType = "job_status"
)

type dispatchEnvelope struct {
	Type dispatchType `json:"type"`
}

type registerMessage struct {
	Type      dispatchType `json:"type"`
	AgentName string       `json:"agent_name"`
}

type registeredMessage struct {
	Type     dispatchType `json:"type"`
	WorkerID string       `json:"worker_id"`
}

type availabilityMessage struct {
	Type  dispatchType `json:"type"`
	JobID string       `json:"job_id"`
	Room  string       `json:"room"`
}

type availabilityResponse struct {
	Type      dispatchType `json:"type"`
	JobID     string       `json:"job_id"`
	Available bool         `json:"available"`
}

// assignment hands the worker one job: the room to join and a token scoped
// to it. URL overrides the worker's server URL when the media bridge lives
// elsewhere.
type assignment struct {
	Type  dispatchType `json:"type"`
	JobID string       `json:"job_id"`
	Room  string       `json:"room"`
	Token string       `json:"token"`
	URL   string       `json:"url,omitempty"`
}

type jobStatus struct {
	Type   dispatchType `json:"type"`
	JobID  string       `json:"job_id"`
	Status string       `json:"status"`
	Error  string       `json:"error,omitempty"`
}

const (
	jobStatusRunning = "running"
	jobStatusSuccess = "success"
	jobStatusFailed  = "failed"
)

func parseDispatchMessage(raw []byte) (any, error) {
	var env dispatchEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid dispatch envelope: %w", err)
	}

	switch env.Type {
	case typeRegistered:
		var msg registeredMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case typeAvailability:
		var msg availabilityMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.JobID == "" {
			return nil, errors.New("invalid availability: missing job_id")
		}
		return msg, nil
	case typeAssignment:
		var msg assignment
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.JobID == "" || msg.Room == "" || msg.Token == "" {
			return nil, errors.New("invalid assignment: job_id, room and token required")
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unsupported dispatch type %q", env.Type)
	}
}
