// Package scripts provides utility scripts for database and system management.
//
// This package implements seeding of onboarded APIs from a YAML file. The
// seeding system works similarly to migrations, tracking executed seeds so
// each API is onboarded only once. An API later deleted through the
// management API is therefore not recreated on the next start.
package scripts

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/try-veil/veil-gateway/internal/database"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// seedPrefix namespaces API seeds in the seeds table
const seedPrefix = "api:"

// APIOnboarder registers an upstream API
type APIOnboarder interface {
	OnboardAPI(ctx context.Context, req *models.OnboardAPIRequest) (*models.APIResponseDTO, error)
}

// SeedFile is the YAML document listing APIs to onboard at startup
type SeedFile struct {
	APIs []SeedAPI `yaml:"apis"`
}

// SeedAPI is one API entry of a seed file
type SeedAPI struct {
	Name                 string          `yaml:"name"`
	Path                 string          `yaml:"path"`
	Upstream             string          `yaml:"upstream"`
	RequiredSubscription string          `yaml:"required_subscription"`
	Methods              []string        `yaml:"methods"`
	RequiredHeaders      []string        `yaml:"required_headers"`
	Parameters           []SeedParameter `yaml:"parameters"`
}

// SeedParameter is a request rule of a seeded API
type SeedParameter struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Required   bool   `yaml:"required"`
	Validation string `yaml:"validation"`
}

// request converts the entry to a validated onboarding request
func (a SeedAPI) request() (*models.OnboardAPIRequest, error) {
	req := &models.OnboardAPIRequest{
		Name:                 a.Name,
		Path:                 a.Path,
		Upstream:             a.Upstream,
		RequiredSubscription: a.RequiredSubscription,
		Methods:              a.Methods,
		RequiredHeaders:      a.RequiredHeaders,
	}
	for _, p := range a.Parameters {
		req.Parameters = append(req.Parameters, models.APIParameter{
			Name:       p.Name,
			Type:       p.Type,
			Required:   p.Required,
			Validation: p.Validation,
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	return req, nil
}

// LoadSeedFile reads and parses a seed file
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &file, nil
}

// Seeder handles database seeding.
// It onboards the APIs of a seed file that have not been seeded before.
type Seeder struct {
	db   *database.Pool
	apis APIOnboarder
}

// NewSeeder creates a new seeder.
//
// Parameters:
//   - db: A database connection pool used to track executed seeds
//   - apis: The service that onboards seeded APIs
//
// Returns:
//   - *Seeder: A configured seeder
func NewSeeder(db *database.Pool, apis APIOnboarder) *Seeder {
	return &Seeder{
		db:   db,
		apis: apis,
	}
}

// SeedDatabase onboards every API of file that has not been seeded yet.
//
// Parameters:
//   - ctx: Context for database operations and cancellation
//   - file: The parsed seed file
//
// Returns:
//   - The number of APIs onboarded by this run
//   - error: The first invalid entry or failed operation, nil if successful
func (s *Seeder) SeedDatabase(ctx context.Context, file *SeedFile) (int, error) {
	log.Info().Int("apis", len(file.APIs)).Msg("Seeding onboarded APIs")
	startTime := time.Now()

	if err := s.createSeedsTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create seeds table: %w", err)
	}

	executedSeeds, err := s.getExecutedSeeds(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get executed seeds: %w", err)
	}

	seeded := 0
	for _, api := range file.APIs {
		name := seedPrefix + api.Path
		if executedSeeds[name] {
			log.Debug().Str("seed", name).Msg("Seed already executed")
			continue
		}

		req, err := api.request()
		if err != nil {
			return seeded, fmt.Errorf("seed %s is invalid: %w", name, err)
		}

		log.Info().Str("seed", name).Msg("Running seed")
		if _, err := s.apis.OnboardAPI(ctx, req); err != nil {
			return seeded, fmt.Errorf("seed %s failed: %w", name, err)
		}
		if err := s.recordSeed(ctx, name); err != nil {
			return seeded, err
		}
		seeded++
	}

	log.Info().
		Int("seeded", seeded).
		Dur("duration", time.Since(startTime)).
		Msg("API seeding completed")

	return seeded, nil
}

// createSeedsTable creates the seeds table if it doesn't exist.
// This table tracks which seed operations have been executed.
func (s *Seeder) createSeedsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS seeds (
			name VARCHAR(255) PRIMARY KEY,
			executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// getExecutedSeeds returns a map of executed seeds.
// The map keys are seed names and values are always true.
func (s *Seeder) getExecutedSeeds(ctx context.Context) (map[string]bool, error) {
	query := `SELECT name FROM seeds`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close rows")
		}
	}()

	seeds := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		seeds[name] = true
	}

	return seeds, rows.Err()
}

// recordSeed marks name as executed
func (s *Seeder) recordSeed(ctx context.Context, name string) error {
	query := s.db.Rebind(`INSERT INTO seeds (name) VALUES ($1)`)
	if _, err := s.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("failed to record seed: %w", err)
	}
	return nil
}
