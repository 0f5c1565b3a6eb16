package core

import (
	"context"
	"fmt"
)

// DefaultPatients are the fixture patients a fresh registry starts with.
func DefaultPatients() []Patient {
	return []Patient{
		{ID: "patient-1", Name: "John Doe"},
		{ID: "patient-2", Name: "Jane Smith"},
	}
}

// SeedPatients inserts each fixture whose id is not yet registered and
// returns how many were added. Restored registries keep their existing
// records.
func (s *Service) SeedPatients(ctx context.Context, patients []Patient) (int, error) {
	added := 0
	err := s.run(ctx, "SeedPatients", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			added = 0
			for _, p := range patients {
				if p.ID == "" || p.Name == "" {
					return fmt.Errorf("seed patient requires id and name: %+v", p)
				}
				if _, exists := tx.FindPatient(p.ID); exists {
					continue
				}
				if _, err := tx.CreatePatient(p); err != nil {
					return err
				}
				added++
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	if added > 0 {
		s.logger.Info("fixture patients seeded", "count", added)
	}
	return added, nil
}
