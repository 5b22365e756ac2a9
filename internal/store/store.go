package store

import "gorm.io/gorm"

type Store interface {
	Close() error
	Service() Service
}

type DataStore struct {
	db      *gorm.DB
	service Service
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:      db,
		service: NewService(db),
	}
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *DataStore) Service() Service {
	return s.service
}
