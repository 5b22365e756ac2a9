package model

import (
	"time"

	"gorm.io/datatypes"
)

// Mode is the build/run strategy of a service. It is fixed at creation.
type Mode string

const (
	ModeBuildFromSource Mode = "BUILD_FROM_SOURCE"
	ModeComposeStack    Mode = "COMPOSE_STACK"
	ModePrebuiltImage   Mode = "PREBUILT_IMAGE"
)

// BindsPorts reports whether services of this mode may publish host ports.
func (m Mode) BindsPorts() bool {
	return m == ModeBuildFromSource || m == ModePrebuiltImage
}

// RequiresPorts reports whether a port mapping is mandatory for this mode.
func (m Mode) RequiresPorts() bool {
	return m == ModePrebuiltImage
}

// SourceBacked reports whether the workspace of this mode holds a fetched source tree.
func (m Mode) SourceBacked() bool {
	return m == ModeBuildFromSource || m == ModeComposeStack
}

// RunsContainer reports whether the mode is backed by a single named container.
func (m Mode) RunsContainer() bool {
	return m == ModeBuildFromSource || m == ModePrebuiltImage
}

type State string

const (
	StateInitializing State = "INITIALIZING"
	StateBuilding     State = "BUILDING"
	StateRunning      State = "RUNNING"
	StateBuildFailed  State = "BUILD_FAILED"
	StateUpdating     State = "UPDATING"
	StateStopped      State = "STOPPED"
)

// PortMapping binds an external (host) port to an internal (container) port.
type PortMapping struct {
	External int `json:"external"`
	Internal int `json:"internal"`
}

// VolumeMapping mounts a host path into the container.
type VolumeMapping struct {
	Host      string `json:"host"`
	Container string `json:"container"`
}

type Service struct {
	ID             string                             `gorm:"primaryKey"`
	SourceLocator  string                             `gorm:"column:source_locator"`
	Mode           Mode                               `gorm:"column:mode;not null"`
	State          State                              `gorm:"column:state;not null"`
	PortMappings   datatypes.JSONSlice[PortMapping]   `gorm:"column:port_mappings"`
	VolumeMappings datatypes.JSONSlice[VolumeMapping] `gorm:"column:volume_mappings"`
	WorkspaceRoot  string                             `gorm:"column:workspace_root;not null;default:'.'"`
	ImageReference string                             `gorm:"column:image_reference"`
	ImageTag       string                             `gorm:"column:image_tag"`
	Revision       string                             `gorm:"column:revision"`
	CreateTime     time.Time                          `gorm:"column:create_time;autoCreateTime"`
	UpdateTime     time.Time                          `gorm:"column:update_time;autoUpdateTime"`
}

type ServiceList []Service

// ExternalPorts returns the host ports claimed by the service.
func (s *Service) ExternalPorts() []int {
	ports := make([]int, 0, len(s.PortMappings))
	for _, p := range s.PortMappings {
		ports = append(ports, p.External)
	}
	return ports
}

// ImageName is the image run for the service: the pulled reference for
// pre-built images, the locally built tag otherwise.
func (s *Service) ImageName() string {
	if s.Mode == ModePrebuiltImage {
		return s.ImageReference + ":" + s.ImageTag
	}
	return s.ID + ":latest"
}
