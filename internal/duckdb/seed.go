package duckdb

import (
	"context"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/queryview/internal/model"
)

// Seed is a declarative catalog loaded from YAML.
type Seed struct {
	DataSources []SeedDataSource `yaml:"data_sources"`
	Queries     []SeedQuery      `yaml:"queries"`
}

// SeedDataSource declares a data source by unique name.
type SeedDataSource struct {
	Name     string            `yaml:"name"`
	Type     string            `yaml:"type"`
	ViewOnly bool              `yaml:"view_only"`
	Options  map[string]string `yaml:"options"`
}

// SeedQuery declares a query; DataSource refers to a data source name.
type SeedQuery struct {
	Name           string              `yaml:"name"`
	Description    string              `yaml:"description"`
	DataSource     string              `yaml:"data_source"`
	Query          string              `yaml:"query"`
	Parameters     []model.Parameter   `yaml:"parameters"`
	Schedule       *model.Schedule     `yaml:"schedule"`
	Visualizations []SeedVisualization `yaml:"visualizations"`
}

// SeedVisualization declares one visualization of a seeded query.
type SeedVisualization struct {
	Type    string         `yaml:"type"`
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options"`
}

// SeedResult counts what ApplySeed created.
type SeedResult struct {
	DataSources int
	Queries     int
	Skipped     int
}

// LoadSeed parses a seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("duckdb: read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("duckdb: parse seed %s: %w", path, err)
	}
	for i, ds := range seed.DataSources {
		if ds.Name == "" || ds.Type == "" {
			return Seed{}, fmt.Errorf("duckdb: seed data_sources[%d]: name and type are required", i)
		}
	}
	for i, q := range seed.Queries {
		if q.Name == "" || q.DataSource == "" {
			return Seed{}, fmt.Errorf("duckdb: seed queries[%d]: name and data_source are required", i)
		}
	}
	return seed, nil
}

// ApplySeed creates the data sources and queries that do not exist yet.
// Existing entries, matched by name, are left untouched so the seed can be
// applied repeatedly.
func (s *Store) ApplySeed(ctx context.Context, seed Seed) (SeedResult, error) {
	var res SeedResult
	ids := make(map[string]int64, len(seed.DataSources))

	for _, sds := range seed.DataSources {
		ds, err := s.DataSourceByName(ctx, sds.Name)
		switch {
		case err == nil:
			res.Skipped++
		case errors.Is(err, ErrNotFound):
			ds, err = s.CreateDataSource(ctx, model.DataSource{
				Name:     sds.Name,
				Type:     sds.Type,
				ViewOnly: sds.ViewOnly,
				Options:  sds.Options,
			})
			if err != nil {
				return res, err
			}
			res.DataSources++
		default:
			return res, err
		}
		ids[sds.Name] = ds.ID
	}

	existing, err := s.ListQueries(ctx)
	if err != nil {
		return res, err
	}
	names := make(map[string]bool, len(existing))
	for _, q := range existing {
		names[q.Name] = true
	}

	for _, sq := range seed.Queries {
		if names[sq.Name] {
			res.Skipped++
			continue
		}
		dsID, ok := ids[sq.DataSource]
		if !ok {
			ds, err := s.DataSourceByName(ctx, sq.DataSource)
			if err != nil {
				return res, fmt.Errorf("duckdb: seed query %q: %w", sq.Name, err)
			}
			dsID = ds.ID
		}
		q := model.Query{
			Name:         sq.Name,
			Description:  sq.Description,
			QueryText:    sq.Query,
			DataSourceID: dsID,
			Parameters:   sq.Parameters,
			Schedule:     sq.Schedule,
		}
		for _, v := range sq.Visualizations {
			q.Visualizations = append(q.Visualizations, model.Visualization{
				Type:    model.VisualizationType(v.Type),
				Name:    v.Name,
				Options: v.Options,
			})
		}
		if _, err := s.CreateQuery(ctx, q); err != nil {
			return res, err
		}
		names[sq.Name] = true
		res.Queries++
	}

	log.Printf("duckdb: seed applied: %d data sources, %d queries, %d skipped", res.DataSources, res.Queries, res.Skipped)
	return res, nil
}
