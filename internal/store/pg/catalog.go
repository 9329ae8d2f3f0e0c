package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gatewise.org/internal/authz"
	"gatewise.org/internal/ids"
)

func (s *Store) CreateApplication(ctx context.Context, organizationID, key, name string) (authz.Application, error) {
	var app authz.Application
	row := s.db.QueryRowContext(ctx, `
		insert into applications (id, organization_id, key, name, active)
		values ($1, $2, $3, $4, true)
		returning id, organization_id, key, name, active, created_at, updated_at
	`, ids.New(), organizationID, key, name)
	if err := row.Scan(&app.ID, &app.OrganizationID, &app.Key, &app.Name, &app.Active, &app.CreatedAt, &app.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.Application{}, fmt.Errorf("%w: application key %s", authz.ErrConflict, key)
			case pgErrForeignKeyViolation:
				return authz.Application{}, fmt.Errorf("%w: organization %s", authz.ErrNotFound, organizationID)
			}
		}
		return authz.Application{}, err
	}
	return app, nil
}

func (s *Store) GetApplication(ctx context.Context, applicationID string) (authz.Application, error) {
	var app authz.Application
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, key, name, active, created_at, updated_at
		from applications
		where id = $1
	`, applicationID).Scan(&app.ID, &app.OrganizationID, &app.Key, &app.Name, &app.Active, &app.CreatedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Application{}, fmt.Errorf("%w: application %s", authz.ErrNotFound, applicationID)
	}
	if err != nil {
		return authz.Application{}, err
	}
	return app, nil
}

func (s *Store) GetApplicationByKey(ctx context.Context, organizationID, key string) (authz.Application, error) {
	var app authz.Application
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, key, name, active, created_at, updated_at
		from applications
		where organization_id = $1 and key = $2
	`, organizationID, key).Scan(&app.ID, &app.OrganizationID, &app.Key, &app.Name, &app.Active, &app.CreatedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Application{}, fmt.Errorf("%w: application %s", authz.ErrNotFound, key)
	}
	if err != nil {
		return authz.Application{}, err
	}
	return app, nil
}

func (s *Store) ListApplications(ctx context.Context, organizationID string) ([]authz.Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, key, name, active, created_at, updated_at
		from applications
		where organization_id = $1
		order by key
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []authz.Application
	for rows.Next() {
		var app authz.Application
		if err := rows.Scan(&app.ID, &app.OrganizationID, &app.Key, &app.Name, &app.Active, &app.CreatedAt, &app.UpdatedAt); err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return apps, nil
}

// DeleteApplication relies on on-delete-cascade for resources, actions,
// roles, grants, and assignments.
func (s *Store) DeleteApplication(ctx context.Context, applicationID string) error {
	res, err := s.db.ExecContext(ctx, `delete from applications where id = $1`, applicationID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: application %s", authz.ErrNotFound, applicationID)
	}
	return nil
}

func (s *Store) CreateResource(ctx context.Context, applicationID, key, name, description string) (authz.Resource, error) {
	var (
		res  authz.Resource
		desc sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into resources (id, application_id, key, name, description)
		values ($1, $2, $3, $4, $5)
		returning id, application_id, key, name, description, created_at
	`, ids.New(), applicationID, key, name, nullIfEmpty(description))
	if err := row.Scan(&res.ID, &res.ApplicationID, &res.Key, &res.Name, &desc, &res.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.Resource{}, fmt.Errorf("%w: resource key %s", authz.ErrConflict, key)
			case pgErrForeignKeyViolation:
				return authz.Resource{}, fmt.Errorf("%w: application %s", authz.ErrNotFound, applicationID)
			}
		}
		return authz.Resource{}, err
	}
	if desc.Valid {
		res.Description = desc.String
	}
	return res, nil
}

func (s *Store) GetResource(ctx context.Context, resourceID string) (authz.Resource, error) {
	var (
		res  authz.Resource
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, application_id, key, name, description, created_at
		from resources
		where id = $1
	`, resourceID).Scan(&res.ID, &res.ApplicationID, &res.Key, &res.Name, &desc, &res.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Resource{}, fmt.Errorf("%w: resource %s", authz.ErrNotFound, resourceID)
	}
	if err != nil {
		return authz.Resource{}, err
	}
	if desc.Valid {
		res.Description = desc.String
	}
	return res, nil
}

func (s *Store) ListResources(ctx context.Context, applicationID string) ([]authz.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, application_id, key, name, description, created_at
		from resources
		where application_id = $1
		order by key
	`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []authz.Resource
	for rows.Next() {
		var (
			res  authz.Resource
			desc sql.NullString
		)
		if err := rows.Scan(&res.ID, &res.ApplicationID, &res.Key, &res.Name, &desc, &res.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			res.Description = desc.String
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return resources, nil
}

// DeleteResource cascades to the resource's actions.
func (s *Store) DeleteResource(ctx context.Context, resourceID string) error {
	res, err := s.db.ExecContext(ctx, `delete from resources where id = $1`, resourceID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: resource %s", authz.ErrNotFound, resourceID)
	}
	return nil
}

func (s *Store) CreateAction(ctx context.Context, resourceID, key, name string) (authz.Action, error) {
	var act authz.Action
	row := s.db.QueryRowContext(ctx, `
		insert into actions (id, resource_id, key, name)
		values ($1, $2, $3, $4)
		returning id, resource_id, key, name, created_at
	`, ids.New(), resourceID, key, name)
	if err := row.Scan(&act.ID, &act.ResourceID, &act.Key, &act.Name, &act.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.Action{}, fmt.Errorf("%w: action key %s", authz.ErrConflict, key)
			case pgErrForeignKeyViolation:
				return authz.Action{}, fmt.Errorf("%w: resource %s", authz.ErrNotFound, resourceID)
			}
		}
		return authz.Action{}, err
	}
	return act, nil
}

func (s *Store) ListActions(ctx context.Context, resourceID string) ([]authz.Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, resource_id, key, name, created_at
		from actions
		where resource_id = $1
		order by key
	`, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []authz.Action
	for rows.Next() {
		var act authz.Action
		if err := rows.Scan(&act.ID, &act.ResourceID, &act.Key, &act.Name, &act.CreatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, act)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}

// ActionScopes resolves each action's application and organization in one
// batched read.
func (s *Store) ActionScopes(ctx context.Context, actionIDs []string) ([]authz.ActionScope, error) {
	if len(actionIDs) == 0 {
		return nil, nil
	}
	clause, args := inClause(1, actionIDs)
	rows, err := s.db.QueryContext(ctx, `
		select a.id, a.resource_id, r.application_id, ap.organization_id
		from actions a
		join resources r on r.id = a.resource_id
		join applications ap on ap.id = r.application_id
		where a.id in `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []authz.ActionScope
	for rows.Next() {
		var sc authz.ActionScope
		if err := rows.Scan(&sc.ActionID, &sc.ResourceID, &sc.ApplicationID, &sc.OrganizationID); err != nil {
			return nil, err
		}
		scopes = append(scopes, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scopes, nil
}
