package service

import (
	"time"

	v1 "github.com/dcm-project/service-orchestrator/api/v1"
	"github.com/dcm-project/service-orchestrator/internal/store/model"
	"github.com/dcm-project/service-orchestrator/internal/validation"
)

// ModelToService converts a database model and its diagnostic to an API response type
func ModelToService(m *model.Service, diagnostic *string) *v1.Service {
	svc := &v1.Service{
		Id:            m.ID,
		SourceLocator: ptrString(m.SourceLocator),
		Mode:          v1.ServiceMode(m.Mode),
		State:         v1.ServiceState(m.State),
		WorkspaceRoot: m.WorkspaceRoot,
		Image:         ptrString(m.ImageReference),
		Tag:           ptrString(m.ImageTag),
		Revision:      ptrString(m.Revision),
		Error:         diagnostic,
		CreateTime:    ptrTime(m.CreateTime),
		UpdateTime:    ptrTime(m.UpdateTime),
	}
	if len(m.PortMappings) > 0 {
		svc.Port = ptrString(validation.FormatPortMapping(m.PortMappings))
	}
	if len(m.VolumeMappings) > 0 {
		volumes := make([]string, len(m.VolumeMappings))
		for i, v := range m.VolumeMappings {
			volumes[i] = v.Host + ":" + v.Container
		}
		svc.Volumes = &volumes
	}
	return svc
}

// Helper functions for pointer conversions

func ptrTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func ptrString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
