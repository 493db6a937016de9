package analytics

import (
	"context"

	"scamwatch/internal/storage"
)

type Store interface {
	CountReportsByStatus(ctx context.Context) (map[storage.Status]int, error)
	CountVPNReports(ctx context.Context) (int, error)
	CountAdminActions(ctx context.Context, types ...string) (map[string]int, error)
	CountAllAdminActions(ctx context.Context) (int, error)
	CountTimeouts(ctx context.Context) (int, error)
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

// Database summarises the store for the settings command.
type Database struct {
	TotalReports int
	ByStatus     map[storage.Status]int
	VPNReports   int
	TotalActions int
	Timeouts     int
	Kicks        int
	Bans         int
	TimeoutRows  int
}

func (s *Service) Database(ctx context.Context) (Database, error) {
	byStatus, err := s.store.CountReportsByStatus(ctx)
	if err != nil {
		return Database{}, err
	}
	vpn, err := s.store.CountVPNReports(ctx)
	if err != nil {
		return Database{}, err
	}
	actions, err := s.store.CountAdminActions(ctx, storage.ActionTimeout, storage.ActionKick, storage.ActionBan)
	if err != nil {
		return Database{}, err
	}
	totalActions, err := s.store.CountAllAdminActions(ctx)
	if err != nil {
		return Database{}, err
	}
	timeoutRows, err := s.store.CountTimeouts(ctx)
	if err != nil {
		return Database{}, err
	}

	stats := Database{
		ByStatus:     byStatus,
		VPNReports:   vpn,
		TotalActions: totalActions,
		Timeouts:     actions[storage.ActionTimeout],
		Kicks:        actions[storage.ActionKick],
		Bans:         actions[storage.ActionBan],
		TimeoutRows:  timeoutRows,
	}
	for _, count := range byStatus {
		stats.TotalReports += count
	}
	return stats, nil
}
