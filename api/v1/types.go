package v1

import "time"

type ServiceMode string

const (
	BuildFromSource ServiceMode = "BUILD_FROM_SOURCE"
	ComposeStack    ServiceMode = "COMPOSE_STACK"
	PrebuiltImage   ServiceMode = "PREBUILT_IMAGE"
)

type ServiceState string

const (
	Created      ServiceState = "CREATED"
	Initializing ServiceState = "INITIALIZING"
	Building     ServiceState = "BUILDING"
	Running      ServiceState = "RUNNING"
	BuildFailed  ServiceState = "BUILD_FAILED"
	Updating     ServiceState = "UPDATING"
	Stopped      ServiceState = "STOPPED"
)

// Error is an RFC 7807 problem document.
type Error struct {
	Type     string  `json:"type"`
	Title    string  `json:"title"`
	Status   *int    `json:"status,omitempty"`
	Detail   *string `json:"detail,omitempty"`
	Instance *string `json:"instance,omitempty"`
	Port     *int    `json:"port,omitempty"`
}

type Health struct {
	Status *string `json:"status,omitempty"`
	Path   *string `json:"path,omitempty"`
}

type RegisterServiceRequest struct {
	SourceLocator string            `json:"source_locator,omitempty"`
	Mode          string            `json:"mode"`
	Port          string            `json:"port,omitempty"`
	WorkspaceRoot string            `json:"workspace_root,omitempty"`
	Image         string            `json:"image,omitempty"`
	Tag           string            `json:"tag,omitempty"`
	Files         map[string]string `json:"files,omitempty"`
	Volumes       []string          `json:"volumes,omitempty"`
}

// UpdateServiceRequest redeploys a service. Nil fields keep their current
// value; Volumes replaces the stored list when present.
type UpdateServiceRequest struct {
	Files   map[string]string `json:"files,omitempty"`
	Volumes *[]string         `json:"volumes,omitempty"`
	Port    *string           `json:"port,omitempty"`
	Image   *string           `json:"image,omitempty"`
	Tag     *string           `json:"tag,omitempty"`
}

// TaskAcknowledgement confirms that background work was accepted.
type TaskAcknowledgement struct {
	Id    string       `json:"id"`
	State ServiceState `json:"state"`
	Task  string       `json:"task,omitempty"`
}

type Service struct {
	Id            string       `json:"id"`
	SourceLocator *string      `json:"source_locator,omitempty"`
	Mode          ServiceMode  `json:"mode"`
	State         ServiceState `json:"state"`
	Port          *string      `json:"port,omitempty"`
	Volumes       *[]string    `json:"volumes,omitempty"`
	WorkspaceRoot string       `json:"workspace_root,omitempty"`
	Image         *string      `json:"image,omitempty"`
	Tag           *string      `json:"tag,omitempty"`
	Revision      *string      `json:"revision,omitempty"`
	Error         *string      `json:"error"`
	CreateTime    *time.Time   `json:"create_time,omitempty"`
	UpdateTime    *time.Time   `json:"update_time,omitempty"`
}

type ServiceList struct {
	Services      []Service `json:"services"`
	NextPageToken *string   `json:"next_page_token,omitempty"`
}

type ListServicesParams struct {
	MaxPageSize *int    `form:"max_page_size,omitempty" json:"max_page_size,omitempty"`
	PageToken   *string `form:"page_token,omitempty" json:"page_token,omitempty"`
}
