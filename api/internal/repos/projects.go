package repos

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/esheo1787/qc-management-system/api/internal/models"
)

// Projects and parts are created lazily during case registration; there is no
// separate management surface for them.

func getOrCreateProject(ctx context.Context, db DBTX, name string) (models.Project, error) {
	var project models.Project
	err := db.QueryRow(ctx, `
		INSERT INTO projects (name, is_active, created_at)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (name) DO NOTHING
		RETURNING project_id, name, is_active, created_at
	`, name, time.Now().UTC()).
		Scan(&project.ProjectID, &project.Name, &project.IsActive, &project.CreatedAt)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Project{}, err
	}

	err = db.QueryRow(ctx, `
		SELECT project_id, name, is_active, created_at
		FROM projects
		WHERE name = $1
	`, name).
		Scan(&project.ProjectID, &project.Name, &project.IsActive, &project.CreatedAt)
	return project, err
}

func getOrCreatePart(ctx context.Context, db DBTX, name string) (models.Part, error) {
	var part models.Part
	err := db.QueryRow(ctx, `
		INSERT INTO parts (name, is_active, created_at)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (name) DO NOTHING
		RETURNING part_id, name, is_active, created_at
	`, name, time.Now().UTC()).
		Scan(&part.PartID, &part.Name, &part.IsActive, &part.CreatedAt)
	if err == nil {
		return part, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Part{}, err
	}

	err = db.QueryRow(ctx, `
		SELECT part_id, name, is_active, created_at
		FROM parts
		WHERE name = $1
	`, name).
		Scan(&part.PartID, &part.Name, &part.IsActive, &part.CreatedAt)
	return part, err
}
