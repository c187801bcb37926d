package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/onnwee/dmflow/internal/tracing"
)

const encounterColumns = `id, campaign_id, name, story_text, dm_notes, spotify_track_uri, created_at, updated_at`

func scanEncounter(row scanner) (*Encounter, error) {
	e := &Encounter{}
	err := row.Scan(&e.ID, &e.CampaignID, &e.Name, &e.StoryText, &e.DMNotes, &e.SpotifyTrackURI, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PostgresStore) listEncounters(ctx context.Context, campaignID string) ([]Encounter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+encounterColumns+`
		FROM encounters
		WHERE campaign_id = $1
		ORDER BY created_at, id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list encounters: %w", err)
	}
	defer rows.Close()

	encounters := []Encounter{}
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan encounter: %w", err)
		}
		encounters = append(encounters, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating encounters: %w", err)
	}
	return encounters, nil
}

// loadEncounter reads one encounter with enemies, loot and its linking node.
func (s *PostgresStore) loadEncounter(ctx context.Context, id string) (*Encounter, error) {
	e, err := scanEncounter(s.db.QueryRowContext(ctx,
		`SELECT `+encounterColumns+` FROM encounters WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEncounterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get encounter: %w", err)
	}

	if e.Enemies, err = s.listEnemies(ctx, e); err != nil {
		return nil, err
	}
	if e.Loot, err = s.listLoot(ctx, e); err != nil {
		return nil, err
	}

	node := &FlowNode{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, type, label, description, position_x, position_y,
		       encounter_id, created_at, updated_at
		FROM flow_nodes
		WHERE encounter_id = $1
		ORDER BY created_at, id
		LIMIT 1
	`, id).Scan(
		&node.ID, &node.CampaignID, &node.Type, &node.Label, &node.Description,
		&node.PositionX, &node.PositionY, &node.EncounterID, &node.CreatedAt, &node.UpdatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to get linking flow node: %w", err)
	default:
		e.FlowNode = node
	}
	return e, nil
}

const enemyColumns = `id, encounter_id, name, hit_points, armor_class, challenge, abilities, image_url, created_at`

func scanEnemy(row scanner, extra ...any) (*Enemy, error) {
	e := &Enemy{}
	dest := []any{&e.ID, &e.EncounterID, &e.Name, &e.HitPoints, &e.ArmorClass, &e.Challenge, &e.Abilities, &e.ImageURL, &e.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PostgresStore) listEnemies(ctx context.Context, enc *Encounter) ([]Enemy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+enemyColumns+`
		FROM enemies
		WHERE encounter_id = $1
		ORDER BY created_at, id
	`, enc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enemies: %w", err)
	}
	defer rows.Close()

	enemies := []Enemy{}
	for rows.Next() {
		e, err := scanEnemy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enemy: %w", err)
		}
		e.CampaignID = enc.CampaignID
		enemies = append(enemies, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enemies: %w", err)
	}
	return enemies, nil
}

const lootColumns = `id, encounter_id, name, description, quantity, rarity, created_at`

func scanLoot(row scanner, extra ...any) (*Loot, error) {
	l := &Loot{}
	dest := []any{&l.ID, &l.EncounterID, &l.Name, &l.Description, &l.Quantity, &l.Rarity, &l.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *PostgresStore) listLoot(ctx context.Context, enc *Encounter) ([]Loot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lootColumns+`
		FROM loot
		WHERE encounter_id = $1
		ORDER BY created_at, id
	`, enc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loot: %w", err)
	}
	defer rows.Close()

	items := []Loot{}
	for rows.Next() {
		l, err := scanLoot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loot: %w", err)
		}
		l.CampaignID = enc.CampaignID
		items = append(items, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating loot: %w", err)
	}
	return items, nil
}

// GetEncounter returns one encounter with enemies, loot and linking node.
func (s *PostgresStore) GetEncounter(ctx context.Context, id string) (_ *Encounter, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "encounters", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	return s.loadEncounter(ctx, id)
}

// CreateEncounter persists a new encounter.
func (s *PostgresStore) CreateEncounter(ctx context.Context, e *Encounter) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "encounters", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	created, err := scanEncounter(s.db.QueryRowContext(ctx, `
		INSERT INTO encounters (id, campaign_id, name, story_text, dm_notes, spotify_track_uri)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+encounterColumns,
		uuid.NewString(), e.CampaignID, e.Name, e.StoryText, e.DMNotes, e.SpotifyTrackURI,
	))
	if err != nil {
		return mapConstraintError("create encounter", err)
	}
	created.Enemies = []Enemy{}
	created.Loot = []Loot{}
	*e = *created
	return nil
}

// UpdateEncounter applies the supplied fields and bumps updated_at.
func (s *PostgresStore) UpdateEncounter(ctx context.Context, id string, p EncounterPatch) (_ *Encounter, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "encounters", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	var b setBuilder
	if p.Name != nil {
		b.add("name", *p.Name)
	}
	if p.StoryText != nil {
		b.add("story_text", *p.StoryText)
	}
	if p.DMNotes != nil {
		b.add("dm_notes", *p.DMNotes)
	}
	if p.SpotifyTrackURI.Set {
		b.add("spotify_track_uri", p.SpotifyTrackURI.Value)
	}
	b.raw("updated_at = NOW()")

	query := `UPDATE encounters SET ` + b.clause() + ` WHERE id = ` + b.where(id)
	res, err := s.db.ExecContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update encounter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update encounter: %w", err)
	}
	if affected == 0 {
		return nil, ErrEncounterNotFound
	}
	return s.loadEncounter(ctx, id)
}

// DeleteEncounter removes the encounter; the schema cascades to enemies and
// loot and clears encounter_id on linking nodes.
func (s *PostgresStore) DeleteEncounter(ctx context.Context, id string) (_ string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "encounters", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	var campaignID string
	err = s.db.QueryRowContext(ctx,
		`DELETE FROM encounters WHERE id = $1 RETURNING campaign_id`, id).Scan(&campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrEncounterNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete encounter: %w", err)
	}
	return campaignID, nil
}

// AddEnemy persists a new enemy on an existing encounter.
func (s *PostgresStore) AddEnemy(ctx context.Context, e *Enemy) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "enemies", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	var campaignID string
	created, err := scanEnemy(s.db.QueryRowContext(ctx, `
		INSERT INTO enemies (id, encounter_id, name, hit_points, armor_class, challenge, abilities, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+enemyColumns+`, (SELECT campaign_id FROM encounters WHERE id = $2)`,
		uuid.NewString(), e.EncounterID, e.Name, e.HitPoints, e.ArmorClass, e.Challenge, e.Abilities, e.ImageURL,
	), &campaignID)
	if err != nil {
		return mapConstraintError("add enemy", err)
	}
	created.CampaignID = campaignID
	*e = *created
	return nil
}

// UpdateEnemy applies the supplied fields.
func (s *PostgresStore) UpdateEnemy(ctx context.Context, id string, p EnemyPatch) (_ *Enemy, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "enemies", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	var b setBuilder
	if p.Name != nil {
		b.add("name", *p.Name)
	}
	if p.HitPoints != nil {
		b.add("hit_points", *p.HitPoints)
	}
	if p.ArmorClass != nil {
		b.add("armor_class", *p.ArmorClass)
	}
	if p.Challenge != nil {
		b.add("challenge", *p.Challenge)
	}
	if p.Abilities != nil {
		b.add("abilities", *p.Abilities)
	}
	if p.ImageURL.Set {
		b.add("image_url", p.ImageURL.Value)
	}

	var query string
	if b.empty() {
		query = `SELECT ` + enemyColumns + `, (SELECT campaign_id FROM encounters WHERE id = enemies.encounter_id)
			FROM enemies WHERE id = ` + b.where(id)
	} else {
		query = `UPDATE enemies SET ` + b.clause() + ` WHERE id = ` + b.where(id) +
			` RETURNING ` + enemyColumns + `, (SELECT campaign_id FROM encounters WHERE id = enemies.encounter_id)`
	}

	var campaignID string
	e, err := scanEnemy(s.db.QueryRowContext(ctx, query, b.args...), &campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEnemyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update enemy: %w", err)
	}
	e.CampaignID = campaignID
	return e, nil
}

// DeleteEnemy removes one enemy.
func (s *PostgresStore) DeleteEnemy(ctx context.Context, id string) (_ string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "enemies", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	var campaignID string
	err = s.db.QueryRowContext(ctx, `
		DELETE FROM enemies en
		USING encounters e
		WHERE en.id = $1 AND e.id = en.encounter_id
		RETURNING e.campaign_id
	`, id).Scan(&campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrEnemyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete enemy: %w", err)
	}
	return campaignID, nil
}

// AddLoot persists a new loot item, applying quantity and rarity defaults.
func (s *PostgresStore) AddLoot(ctx context.Context, l *Loot) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "loot", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	l.ApplyDefaults()

	var campaignID string
	created, err := scanLoot(s.db.QueryRowContext(ctx, `
		INSERT INTO loot (id, encounter_id, name, description, quantity, rarity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+lootColumns+`, (SELECT campaign_id FROM encounters WHERE id = $2)`,
		uuid.NewString(), l.EncounterID, l.Name, l.Description, l.Quantity, string(l.Rarity),
	), &campaignID)
	if err != nil {
		return mapConstraintError("add loot", err)
	}
	created.CampaignID = campaignID
	*l = *created
	return nil
}

// UpdateLoot applies the supplied fields.
func (s *PostgresStore) UpdateLoot(ctx context.Context, id string, p LootPatch) (_ *Loot, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "loot", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	var b setBuilder
	if p.Name != nil {
		b.add("name", *p.Name)
	}
	if p.Description != nil {
		b.add("description", *p.Description)
	}
	if p.Quantity != nil {
		b.add("quantity", *p.Quantity)
	}
	if p.Rarity != nil {
		b.add("rarity", string(*p.Rarity))
	}

	var query string
	if b.empty() {
		query = `SELECT ` + lootColumns + `, (SELECT campaign_id FROM encounters WHERE id = loot.encounter_id)
			FROM loot WHERE id = ` + b.where(id)
	} else {
		query = `UPDATE loot SET ` + b.clause() + ` WHERE id = ` + b.where(id) +
			` RETURNING ` + lootColumns + `, (SELECT campaign_id FROM encounters WHERE id = loot.encounter_id)`
	}

	var campaignID string
	l, err := scanLoot(s.db.QueryRowContext(ctx, query, b.args...), &campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLootNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update loot: %w", err)
	}
	l.CampaignID = campaignID
	return l, nil
}

// DeleteLoot removes one loot item.
func (s *PostgresStore) DeleteLoot(ctx context.Context, id string) (_ string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "loot", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	var campaignID string
	err = s.db.QueryRowContext(ctx, `
		DELETE FROM loot l
		USING encounters e
		WHERE l.id = $1 AND e.id = l.encounter_id
		RETURNING e.campaign_id
	`, id).Scan(&campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrLootNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete loot: %w", err)
	}
	return campaignID, nil
}
