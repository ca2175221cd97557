package repos

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/api/internal/models"
)

// Definition snapshots are immutable labeling-spec documents. Projects point
// at them through link rows so a cohort can be pinned to the exact rules it
// was labeled under.
type DefinitionsRepo struct {
	pool *pgxpool.Pool
}

func NewDefinitionsRepo(pool *pgxpool.Pool) *DefinitionsRepo {
	return &DefinitionsRepo{pool: pool}
}

func (r *DefinitionsRepo) CreateSnapshot(ctx context.Context, versionName string, content []byte) (models.DefinitionSnapshot, error) {
	if versionName == "" {
		return models.DefinitionSnapshot{}, Validationf("version_name must not be empty")
	}
	if !json.Valid(content) {
		return models.DefinitionSnapshot{}, Validationf("content_json must be valid JSON")
	}

	var snap models.DefinitionSnapshot
	snap.VersionName = versionName
	snap.Content = content
	err := r.pool.QueryRow(ctx, `
		INSERT INTO definition_snapshots (version_name, content_json, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (version_name) DO NOTHING
		RETURNING snapshot_id, created_at
	`, versionName, content, time.Now().UTC()).Scan(&snap.SnapshotID, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefinitionSnapshot{}, Validationf("version '%s' already exists", versionName)
	}
	if err != nil {
		return models.DefinitionSnapshot{}, err
	}
	return snap, nil
}

const snapshotColumns = "snapshot_id, version_name, content_json, created_at"

func scanSnapshot(row pgx.Row) (models.DefinitionSnapshot, error) {
	var snap models.DefinitionSnapshot
	err := row.Scan(&snap.SnapshotID, &snap.VersionName, &snap.Content, &snap.CreatedAt)
	return snap, err
}

func (r *DefinitionsRepo) ListSnapshots(ctx context.Context) ([]models.DefinitionSnapshot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM definition_snapshots
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []models.DefinitionSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (r *DefinitionsRepo) GetSnapshotByVersion(ctx context.Context, versionName string) (models.DefinitionSnapshot, error) {
	snap, err := scanSnapshot(r.pool.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM definition_snapshots
		WHERE version_name = $1
	`, versionName))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefinitionSnapshot{}, NotFoundf("definition version '%s' not found", versionName)
	}
	return snap, err
}

// LinkRow is a project-definition link joined with both display names.
type LinkRow struct {
	models.ProjectDefinitionLink
	ProjectName string
	VersionName string
}

// LinkProject attaches a definition snapshot to a project. Linking the same
// pair twice returns the existing link.
func (r *DefinitionsRepo) LinkProject(ctx context.Context, projectID uuid.UUID, snapshotID uuid.UUID) (LinkRow, error) {
	var link LinkRow
	link.ProjectID = projectID
	link.DefinitionSnapshotID = snapshotID

	err := r.pool.QueryRow(ctx, `
		SELECT name FROM projects WHERE project_id = $1
	`, projectID).Scan(&link.ProjectName)
	if errors.Is(err, pgx.ErrNoRows) {
		return LinkRow{}, NotFoundf("project %s not found", projectID)
	}
	if err != nil {
		return LinkRow{}, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT version_name FROM definition_snapshots WHERE snapshot_id = $1
	`, snapshotID).Scan(&link.VersionName)
	if errors.Is(err, pgx.ErrNoRows) {
		return LinkRow{}, NotFoundf("definition snapshot %s not found", snapshotID)
	}
	if err != nil {
		return LinkRow{}, err
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO project_definition_links (project_id, definition_snapshot_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, definition_snapshot_id) DO NOTHING
		RETURNING link_id, created_at
	`, projectID, snapshotID, time.Now().UTC()).Scan(&link.LinkID, &link.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		err = r.pool.QueryRow(ctx, `
			SELECT link_id, created_at
			FROM project_definition_links
			WHERE project_id = $1 AND definition_snapshot_id = $2
		`, projectID, snapshotID).Scan(&link.LinkID, &link.CreatedAt)
	}
	if err != nil {
		return LinkRow{}, err
	}
	return link, nil
}

const linkRowQuery = `
	SELECT l.link_id, l.project_id, l.definition_snapshot_id, l.created_at, p.name, d.version_name
	FROM project_definition_links l
	JOIN projects p ON p.project_id = l.project_id
	JOIN definition_snapshots d ON d.snapshot_id = l.definition_snapshot_id`

func (r *DefinitionsRepo) ListLinks(ctx context.Context) ([]LinkRow, error) {
	rows, err := r.pool.Query(ctx, linkRowQuery+` ORDER BY l.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLinkRows(rows)
}

func (r *DefinitionsRepo) ListLinksByProject(ctx context.Context, projectID uuid.UUID) ([]LinkRow, error) {
	rows, err := r.pool.Query(ctx, linkRowQuery+` WHERE l.project_id = $1 ORDER BY l.created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLinkRows(rows)
}

func collectLinkRows(rows pgx.Rows) ([]LinkRow, error) {
	var links []LinkRow
	for rows.Next() {
		var link LinkRow
		if err := rows.Scan(&link.LinkID, &link.ProjectID, &link.DefinitionSnapshotID, &link.CreatedAt,
			&link.ProjectName, &link.VersionName); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}
