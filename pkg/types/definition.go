package types

// TaskDefinition is the task description accepted by the queue service.
type TaskDefinition struct {
	ProvisionerID string            `json:"provisionerId"`
	WorkerType    string            `json:"workerType"`
	SchedulerID   string            `json:"schedulerId"`
	TaskGroupID   string            `json:"taskGroupId"`
	Dependencies  []string          `json:"dependencies"`
	Requires      string            `json:"requires"`
	Routes        []string          `json:"routes"`
	Priority      string            `json:"priority"`
	Retries       int               `json:"retries"`
	Created       string            `json:"created"`
	Deadline      string            `json:"deadline"`
	Expires       string            `json:"expires"`
	Scopes        []string          `json:"scopes"`
	Tags          map[string]string `json:"tags"`
	Payload       Payload           `json:"payload"`
	Metadata      Metadata          `json:"metadata"`
	Extra         map[string]any    `json:"extra,omitempty"`
}

// Payload is the worker specific part of a task definition.
type Payload struct {
	Image             string              `json:"image,omitempty"`
	Command           []string            `json:"command,omitempty"`
	Artifacts         map[string]Artifact `json:"artifacts,omitempty"`
	MaxRunTime        int                 `json:"maxRunTime,omitempty"`
	Features          map[string]bool     `json:"features,omitempty"`
	UpstreamArtifacts []UpstreamArtifact  `json:"upstreamArtifacts,omitempty"`
	Commit            *bool               `json:"commit,omitempty"`
	GooglePlayTrack   string              `json:"google_play_track,omitempty"`
	Channel           string              `json:"channel,omitempty"`
}

// Metadata is the human readable part of a task definition.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
	Source      string `json:"source"`
}

// TaskStatus is the status structure returned by the queue.
type TaskStatus struct {
	TaskID        string `json:"taskId"`
	ProvisionerID string `json:"provisionerId,omitempty"`
	WorkerType    string `json:"workerType,omitempty"`
	TaskGroupID   string `json:"taskGroupId,omitempty"`
	State         string `json:"state,omitempty"`
	RetriesLeft   int    `json:"retriesLeft,omitempty"`
}

func (d *TaskDefinition) clone() *TaskDefinition {
	c := *d
	c.Dependencies = append([]string(nil), d.Dependencies...)
	c.Routes = append([]string(nil), d.Routes...)
	c.Scopes = append([]string(nil), d.Scopes...)
	c.Payload.Command = append([]string(nil), d.Payload.Command...)
	c.Payload.UpstreamArtifacts = nil
	if d.Tags != nil {
		c.Tags = make(map[string]string, len(d.Tags))
		for k, v := range d.Tags {
			c.Tags[k] = v
		}
	}
	if d.Payload.Features != nil {
		c.Payload.Features = make(map[string]bool, len(d.Payload.Features))
		for k, v := range d.Payload.Features {
			c.Payload.Features[k] = v
		}
	}
	if d.Payload.Artifacts != nil {
		c.Payload.Artifacts = make(map[string]Artifact, len(d.Payload.Artifacts))
		for k, v := range d.Payload.Artifacts {
			c.Payload.Artifacts[k] = v
		}
	}
	return &c
}
