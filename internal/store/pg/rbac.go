package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gatewise.org/internal/authz"
	"gatewise.org/internal/ids"
)

const roleColumns = `
	r.id, r.organization_id, r.application_id, r.key, r.name, r.description,
	r.active, r.created_at, r.updated_at,
	(select count(*) from role_actions ra where ra.role_id = r.id) as action_count
`

func scanRole(row interface{ Scan(...any) error }) (authz.Role, error) {
	var (
		role  authz.Role
		appID sql.NullString
		desc  sql.NullString
	)
	err := row.Scan(&role.ID, &role.OrganizationID, &appID, &role.Key, &role.Name, &desc,
		&role.Active, &role.CreatedAt, &role.UpdatedAt, &role.ActionCount)
	if err != nil {
		return authz.Role{}, err
	}
	if appID.Valid {
		role.ApplicationID = appID.String
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

// CreateRole inserts the role and one grant row per action inside a single
// transaction.
func (s *Store) CreateRole(ctx context.Context, role authz.Role, actionIDs []string) (authz.Role, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.Role{}, err
	}
	defer func() { _ = tx.Rollback() }()

	role.ID = ids.New()
	row := tx.QueryRowContext(ctx, `
		insert into roles (id, organization_id, application_id, key, name, description, active)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at, updated_at
	`, role.ID, role.OrganizationID, nullIfEmpty(role.ApplicationID), role.Key, role.Name,
		nullIfEmpty(role.Description), role.Active)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.Role{}, fmt.Errorf("%w: role key %s", authz.ErrConflict, role.Key)
			case pgErrForeignKeyViolation:
				return authz.Role{}, fmt.Errorf("%w: role scope", authz.ErrNotFound)
			}
		}
		return authz.Role{}, err
	}

	for _, actionID := range actionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_actions (role_id, action_id)
			values ($1, $2)
		`, role.ID, actionID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return authz.Role{}, fmt.Errorf("%w: action %s", authz.ErrReference, actionID)
			}
			return authz.Role{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return authz.Role{}, err
	}
	role.ActionCount = len(actionIDs)
	return role, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (authz.Role, error) {
	role, err := scanRole(s.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles r
		where r.id = $1
	`, roleID))
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Role{}, fmt.Errorf("%w: role %s", authz.ErrNotFound, roleID)
	}
	if err != nil {
		return authz.Role{}, err
	}
	return role, nil
}

func (s *Store) RolesByIDs(ctx context.Context, roleIDs []string) ([]authz.Role, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	clause, args := inClause(1, roleIDs)
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+`
		from roles r
		where r.id in `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (s *Store) ListRoles(ctx context.Context, scope authz.RoleScope) ([]authz.Role, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if scope.ApplicationScoped() {
		rows, err = s.db.QueryContext(ctx, `
			select `+roleColumns+`
			from roles r
			where r.application_id = $1
			order by r.key
		`, scope.ApplicationID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			select `+roleColumns+`
			from roles r
			where r.organization_id = $1 and r.application_id is null
			order by r.key
		`, scope.OrganizationID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func collectRoles(rows *sql.Rows) ([]authz.Role, error) {
	var roles []authz.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) UpdateRole(ctx context.Context, roleID string, patch authz.RolePatch) (authz.Role, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if patch.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *patch.Name)
		idx++
	}
	if patch.Description != nil {
		if *patch.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", idx))
			args = append(args, *patch.Description)
			idx++
		}
	}
	if patch.Active != nil {
		sets = append(sets, fmt.Sprintf("active = $%d", idx))
		args = append(args, *patch.Active)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, roleID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return authz.Role{}, fmt.Errorf("%w: role name", authz.ErrConflict)
			}
			return authz.Role{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return authz.Role{}, err
		}
		if aff == 0 {
			return authz.Role{}, fmt.Errorf("%w: role %s", authz.ErrNotFound, roleID)
		}
	}
	return s.GetRole(ctx, roleID)
}

// DeleteRole relies on on-delete-cascade for grants and assignments.
func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: role %s", authz.ErrNotFound, roleID)
	}
	return nil
}

// SetRoleActions replaces the role's grant rows transactionally.
func (s *Store) SetRoleActions(ctx context.Context, roleID string, actionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: role %s", authz.ErrNotFound, roleID)
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_actions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, actionID := range actionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_actions (role_id, action_id)
			values ($1, $2)
		`, roleID, actionID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: action %s", authz.ErrReference, actionID)
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetMember(ctx context.Context, memberID string) (authz.Member, error) {
	var m authz.Member
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, organization_id, role, joined_at
		from members
		where id = $1
	`, memberID).Scan(&m.ID, &m.UserID, &m.OrganizationID, &m.Role, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Member{}, fmt.Errorf("%w: member %s", authz.ErrNotFound, memberID)
	}
	if err != nil {
		return authz.Member{}, err
	}
	return m, nil
}

func (s *Store) FindMember(ctx context.Context, userID, organizationID string) (authz.Member, error) {
	var m authz.Member
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, organization_id, role, joined_at
		from members
		where user_id = $1 and organization_id = $2
	`, userID, organizationID).Scan(&m.ID, &m.UserID, &m.OrganizationID, &m.Role, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Member{}, fmt.Errorf("%w: membership of %s", authz.ErrNotFound, userID)
	}
	if err != nil {
		return authz.Member{}, err
	}
	return m, nil
}

// UpsertMember inserts the membership or refreshes the organization role of
// an existing one. Membership identity is (user, organization).
func (s *Store) UpsertMember(ctx context.Context, m authz.Member) (authz.Member, error) {
	if m.ID == "" {
		m.ID = ids.New()
	}
	var stored authz.Member
	row := s.db.QueryRowContext(ctx, `
		insert into members (id, user_id, organization_id, role, joined_at)
		values ($1, $2, $3, $4, $5)
		on conflict (user_id, organization_id) do update set role = excluded.role
		returning id, user_id, organization_id, role, joined_at
	`, m.ID, m.UserID, m.OrganizationID, string(m.Role), m.JoinedAt)
	if err := row.Scan(&stored.ID, &stored.UserID, &stored.OrganizationID, &stored.Role, &stored.JoinedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return authz.Member{}, fmt.Errorf("%w: organization %s", authz.ErrNotFound, m.OrganizationID)
		}
		return authz.Member{}, err
	}
	return stored, nil
}

// AssignRoles inserts assignment rows, skipping ones that already exist.
// The returned count covers new rows only.
func (s *Store) AssignRoles(ctx context.Context, memberID string, roleIDs []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	assigned := 0
	for _, roleID := range roleIDs {
		res, err := tx.ExecContext(ctx, `
			insert into member_roles (member_id, role_id)
			values ($1, $2)
			on conflict (member_id, role_id) do nothing
		`, memberID, roleID)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return 0, fmt.Errorf("%w: role %s", authz.ErrReference, roleID)
			}
			return 0, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		assigned += int(aff)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return assigned, nil
}

// UnassignRole is an idempotent delete: removing a missing assignment is a
// no-op.
func (s *Store) UnassignRole(ctx context.Context, memberID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from member_roles
		where member_id = $1 and role_id = $2
	`, memberID, roleID)
	return err
}

func (s *Store) ListAssignments(ctx context.Context, memberID string) ([]authz.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select member_id, role_id, created_at
		from member_roles
		where member_id = $1
		order by role_id
	`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []authz.Assignment
	for rows.Next() {
		var a authz.Assignment
		if err := rows.Scan(&a.MemberID, &a.RoleID, &a.CreatedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (s *Store) MemberIDsHoldingRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select member_id from member_roles where role_id = $1
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

// RolesForMember returns the member's active roles scoped to one
// application.
func (s *Store) RolesForMember(ctx context.Context, memberID, applicationID string) ([]authz.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+`
		from roles r
		join member_roles mr on mr.role_id = r.id
		where mr.member_id = $1 and r.application_id = $2 and r.active
		order by r.key
	`, memberID, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// GrantsForRoles fetches every grant for the given roles joined to resource
// and action metadata in one batched read.
func (s *Store) GrantsForRoles(ctx context.Context, roleIDs []string) ([]authz.Grant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	clause, args := inClause(1, roleIDs)
	rows, err := s.db.QueryContext(ctx, `
		select ra.role_id, r.key, r.name, res.key, res.name, a.id, a.key, a.name
		from role_actions ra
		join roles r on r.id = ra.role_id
		join actions a on a.id = ra.action_id
		join resources res on res.id = a.resource_id
		where ra.role_id in `+clause+`
		order by r.key, res.key, a.key
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []authz.Grant
	for rows.Next() {
		var g authz.Grant
		if err := rows.Scan(&g.RoleID, &g.RoleKey, &g.RoleName, &g.ResourceKey, &g.ResourceName,
			&g.ActionID, &g.ActionKey, &g.ActionName); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}
