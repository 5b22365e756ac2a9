package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dcm-project/service-orchestrator/internal/store/model"
	"gorm.io/gorm"
)

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrServiceExists   = errors.New("service already exists")
	ErrPortClaimed     = errors.New("port already claimed")
)

// PortClaimedError names the external port that another service holds.
type PortClaimedError struct {
	Port      int
	ServiceID string
}

func (e *PortClaimedError) Error() string {
	if e.ServiceID == "" {
		return fmt.Sprintf("port %d already claimed", e.Port)
	}
	return fmt.Sprintf("port %d already claimed by service %s", e.Port, e.ServiceID)
}

func (e *PortClaimedError) Unwrap() error {
	return ErrPortClaimed
}

// ServiceFilter contains optional fields for filtering service queries.
// Empty fields are ignored (not filtered).
type ServiceFilter struct {
	States []model.State
	Modes  []model.Mode
}

// Pagination contains options for paginated queries.
type Pagination struct {
	Limit  int
	Offset int
}

type Service interface {
	List(ctx context.Context, filter *ServiceFilter, pagination *Pagination) (model.ServiceList, error)
	Count(ctx context.Context, filter *ServiceFilter) (int64, error)
	Create(ctx context.Context, service model.Service) (*model.Service, error)
	Update(ctx context.Context, service model.Service) (*model.Service, error)
	UpdateState(ctx context.Context, id string, state model.State) error
	UpdateRevision(ctx context.Context, id string, revision string) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*model.Service, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	PortOwner(ctx context.Context, port int) (string, error)
}

type ServiceStore struct {
	db *gorm.DB
}

var _ Service = (*ServiceStore)(nil)

func NewService(db *gorm.DB) Service {
	return &ServiceStore{db: db}
}

func (s *ServiceStore) List(ctx context.Context, filter *ServiceFilter, pagination *Pagination) (model.ServiceList, error) {
	var services model.ServiceList
	query := applyFilter(s.db.WithContext(ctx), filter)

	// Apply consistent ordering for pagination
	query = query.Order("create_time ASC, id ASC")

	if pagination != nil {
		query = query.Limit(pagination.Limit).Offset(pagination.Offset)
	}

	if err := query.Find(&services).Error; err != nil {
		return nil, err
	}
	return services, nil
}

func (s *ServiceStore) Count(ctx context.Context, filter *ServiceFilter) (int64, error) {
	var count int64
	query := applyFilter(s.db.WithContext(ctx).Model(&model.Service{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func applyFilter(query *gorm.DB, filter *ServiceFilter) *gorm.DB {
	if filter == nil {
		return query
	}
	if len(filter.States) > 0 {
		query = query.Where("state IN ?", filter.States)
	}
	if len(filter.Modes) > 0 {
		query = query.Where("mode IN ?", filter.Modes)
	}
	return query
}

// Create inserts the service together with claims on its external ports.
// Either both are written or neither is.
func (s *ServiceStore) Create(ctx context.Context, service model.Service) (*model.Service, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.Service{}).Where("id = ?", service.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrServiceExists
		}
		if err := claimPorts(tx, service.ID, service.ExternalPorts()); err != nil {
			return err
		}
		if err := tx.Create(&service).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrServiceExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &service, nil
}

// Update writes the mutable configuration of a service and replaces its port
// claims in one transaction.
func (s *ServiceStore) Update(ctx context.Context, service model.Service) (*model.Service, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Service{ID: service.ID}).
			Select("state", "port_mappings", "volume_mappings", "image_reference", "image_tag", "revision").
			Updates(&service)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrServiceNotFound
		}

		ports := service.ExternalPorts()
		stale := tx.Where("service_id = ?", service.ID)
		if len(ports) > 0 {
			stale = stale.Where("port NOT IN ?", ports)
		}
		if err := stale.Delete(&model.PortClaim{}).Error; err != nil {
			return err
		}
		return claimPorts(tx, service.ID, ports)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, service.ID)
}

func (s *ServiceStore) UpdateState(ctx context.Context, id string, state model.State) error {
	result := s.db.WithContext(ctx).Model(&model.Service{}).Where("id = ?", id).Update("state", state)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func (s *ServiceStore) UpdateRevision(ctx context.Context, id string, revision string) error {
	result := s.db.WithContext(ctx).Model(&model.Service{}).Where("id = ?", id).Update("revision", revision)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrServiceNotFound
	}
	return nil
}

// Delete removes the service record and releases its port claims.
func (s *ServiceStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("service_id = ?", id).Delete(&model.PortClaim{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&model.Service{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrServiceNotFound
		}
		return nil
	})
}

func (s *ServiceStore) Get(ctx context.Context, id string) (*model.Service, error) {
	var service model.Service
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&service).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &service, nil
}

func (s *ServiceStore) ExistsByID(ctx context.Context, id string) (bool, error) {
	var service model.Service
	err := s.db.WithContext(ctx).Select("id").Where("id = ?", id).Take(&service).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PortOwner returns the id of the service claiming port, or "" when the port is free.
func (s *ServiceStore) PortOwner(ctx context.Context, port int) (string, error) {
	var claim model.PortClaim
	err := s.db.WithContext(ctx).Where("port = ?", port).Take(&claim).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return claim.ServiceID, nil
}

func claimPorts(tx *gorm.DB, serviceID string, ports []int) error {
	for _, port := range ports {
		var claim model.PortClaim
		err := tx.Where("port = ?", port).Take(&claim).Error
		switch {
		case err == nil:
			if claim.ServiceID != serviceID {
				return &PortClaimedError{Port: port, ServiceID: claim.ServiceID}
			}
			continue
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Create(&model.PortClaim{Port: port, ServiceID: serviceID}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &PortClaimedError{Port: port}
			}
			return err
		}
	}
	return nil
}
