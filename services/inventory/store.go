package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"muster/pkg/db"
)

// Storage is the persistence collaborator of the inventory core.
type Storage interface {
	// FindByCanonicalFacts returns every host in the account sharing at least
	// one present canonical fact with the given (normalized) set.
	FindByCanonicalFacts(ctx context.Context, account string, facts CanonicalFacts) ([]Host, error)

	Get(ctx context.Context, id uuid.UUID) (Host, error)
	List(ctx context.Context, account string, limit, offset int) ([]Host, error)
	Create(ctx context.Context, host Host) (Host, error)

	// UpdateMerged applies one complete merge to the host under a row lock so
	// concurrent reports cannot interleave partial merges.
	UpdateMerged(ctx context.Context, id uuid.UUID, apply func(*Host) error) (Host, error)

	// Delete removes the host and reports whether a row was actually removed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// CulledBefore returns hosts whose culled timestamp has passed.
	CulledBefore(ctx context.Context, now time.Time) ([]Host, error)

	// MergeSystemProfile merges the partial profile into the host's stored
	// profile, top-level key by key.
	MergeSystemProfile(ctx context.Context, id uuid.UUID, profile map[string]any) error
}

// PgStore implements Storage on a pgx connection pool.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore wraps the pool.
func NewPgStore(pool *pgxpool.Pool) (*PgStore, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	return &PgStore{pool: pool}, nil
}

const hostColumns = `id, account, display_name, ansible_host, canonical_facts, facts, tags,
	system_profile, reporter, stale_timestamp, stale_warning_timestamp, culled_timestamp,
	created_on, modified_on`

type hostRow struct {
	ID                    uuid.UUID `db:"id"`
	Account               string    `db:"account"`
	DisplayName           string    `db:"display_name"`
	AnsibleHost           string    `db:"ansible_host"`
	CanonicalFacts        []byte    `db:"canonical_facts"`
	Facts                 []byte    `db:"facts"`
	Tags                  []byte    `db:"tags"`
	SystemProfile         []byte    `db:"system_profile"`
	Reporter              string    `db:"reporter"`
	StaleTimestamp        time.Time `db:"stale_timestamp"`
	StaleWarningTimestamp time.Time `db:"stale_warning_timestamp"`
	CulledTimestamp       time.Time `db:"culled_timestamp"`
	CreatedOn             time.Time `db:"created_on"`
	ModifiedOn            time.Time `db:"modified_on"`
}

func (r hostRow) toAPI() (Host, error) {
	h := Host{
		ID:                    r.ID,
		Account:               r.Account,
		DisplayName:           r.DisplayName,
		AnsibleHost:           r.AnsibleHost,
		Reporter:              r.Reporter,
		StaleTimestamp:        r.StaleTimestamp,
		StaleWarningTimestamp: r.StaleWarningTimestamp,
		CulledTimestamp:       r.CulledTimestamp,
		CreatedOn:             r.CreatedOn,
		ModifiedOn:            r.ModifiedOn,
	}
	if len(r.CanonicalFacts) > 0 {
		if err := json.Unmarshal(r.CanonicalFacts, &h.CanonicalFacts); err != nil {
			return Host{}, fmt.Errorf("decode canonical facts: %w", err)
		}
	}
	if len(r.Facts) > 0 {
		if err := json.Unmarshal(r.Facts, &h.Facts); err != nil {
			return Host{}, fmt.Errorf("decode facts: %w", err)
		}
	}
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &h.Tags); err != nil {
			return Host{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	if len(r.SystemProfile) > 0 {
		if err := json.Unmarshal(r.SystemProfile, &h.SystemProfile); err != nil {
			return Host{}, fmt.Errorf("decode system profile: %w", err)
		}
	}
	return h, nil
}

func hostJSONColumns(h Host) (canonicalFacts, facts, tags, systemProfile []byte, err error) {
	if canonicalFacts, err = json.Marshal(h.CanonicalFacts); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode canonical facts: %w", err)
	}
	if h.Facts == nil {
		h.Facts = map[string]map[string]any{}
	}
	if facts, err = json.Marshal(h.Facts); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode facts: %w", err)
	}
	if h.Tags == nil {
		h.Tags = []Tag{}
	}
	if tags, err = json.Marshal(h.Tags); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode tags: %w", err)
	}
	if h.SystemProfile == nil {
		h.SystemProfile = map[string]any{}
	}
	if systemProfile, err = json.Marshal(h.SystemProfile); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode system profile: %w", err)
	}
	return canonicalFacts, facts, tags, systemProfile, nil
}

func (s *PgStore) FindByCanonicalFacts(ctx context.Context, account string, facts CanonicalFacts) ([]Host, error) {
	conditions, args := canonicalFactConditions(account, facts)
	if len(conditions) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
SELECT %s
FROM hosts
WHERE account = $1 AND (%s)
ORDER BY created_on
`, hostColumns, strings.Join(conditions, " OR "))

	var rows []hostRow
	if err := db.Select(ctx, s.pool, &rows, query, args...); err != nil {
		return nil, err
	}
	return rowsToHosts(rows)
}

// canonicalFactConditions builds the OR predicate equivalent to a full
// field-by-field comparison against the stored canonical_facts document.
func canonicalFactConditions(account string, facts CanonicalFacts) ([]string, []any) {
	args := []any{account}
	var conditions []string

	scalar := func(field, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("canonical_facts->>'%s' = $%d", field, len(args)))
	}
	list := func(field string, values []string) {
		if len(values) == 0 {
			return
		}
		args = append(args, values)
		conditions = append(conditions, fmt.Sprintf("canonical_facts->'%s' ?| $%d", field, len(args)))
	}

	scalar("insights_id", facts.InsightsID)
	scalar("rhel_machine_id", facts.RHELMachineID)
	scalar("subscription_manager_id", facts.SubscriptionManagerID)
	scalar("satellite_id", facts.SatelliteID)
	scalar("bios_uuid", facts.BIOSUUID)
	scalar("fqdn", facts.FQDN)
	scalar("external_id", facts.ExternalID)
	list("ip_addresses", facts.IPAddresses)
	list("mac_addresses", facts.MACAddresses)

	return conditions, args
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (Host, error) {
	var row hostRow
	err := db.Get(ctx, s.pool, &row, fmt.Sprintf(`SELECT %s FROM hosts WHERE id = $1`, hostColumns), id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Host{}, &NotFoundError{ID: id}
	}
	if err != nil {
		return Host{}, err
	}
	return row.toAPI()
}

func (s *PgStore) List(ctx context.Context, account string, limit, offset int) ([]Host, error) {
	var rows []hostRow
	err := db.Select(ctx, s.pool, &rows, fmt.Sprintf(`
SELECT %s
FROM hosts
WHERE account = $1
ORDER BY created_on
LIMIT $2 OFFSET $3
`, hostColumns), account, limit, offset)
	if err != nil {
		return nil, err
	}
	return rowsToHosts(rows)
}

func (s *PgStore) Create(ctx context.Context, host Host) (Host, error) {
	canonicalFacts, facts, tags, systemProfile, err := hostJSONColumns(host)
	if err != nil {
		return Host{}, err
	}

	now := time.Now().UTC()
	host.CreatedOn = now
	host.ModifiedOn = now

	_, err = db.Exec(ctx, s.pool, `
INSERT INTO hosts (id, account, display_name, ansible_host, canonical_facts, facts, tags,
	system_profile, reporter, stale_timestamp, stale_warning_timestamp, culled_timestamp,
	created_on, modified_on)
VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, $8::jsonb, $9, $10, $11, $12, $13, $14)
`, host.ID, host.Account, host.DisplayName, host.AnsibleHost, canonicalFacts, facts, tags,
		systemProfile, host.Reporter, host.StaleTimestamp, host.StaleWarningTimestamp,
		host.CulledTimestamp, host.CreatedOn, host.ModifiedOn)
	if err != nil {
		return Host{}, err
	}
	return host, nil
}

func (s *PgStore) UpdateMerged(ctx context.Context, id uuid.UUID, apply func(*Host) error) (Host, error) {
	var updated Host

	err := db.InTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		var row hostRow
		err := pgxscan.Get(ctx, tx, &row,
			fmt.Sprintf(`SELECT %s FROM hosts WHERE id = $1 FOR UPDATE`, hostColumns), id)
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{ID: id}
		}
		if err != nil {
			return err
		}

		host, err := row.toAPI()
		if err != nil {
			return err
		}
		if err := apply(&host); err != nil {
			return err
		}
		host.ModifiedOn = time.Now().UTC()

		canonicalFacts, facts, tags, systemProfile, err := hostJSONColumns(host)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
UPDATE hosts
SET display_name = $2, ansible_host = $3, canonical_facts = $4::jsonb, facts = $5::jsonb,
	tags = $6::jsonb, system_profile = $7::jsonb, reporter = $8, stale_timestamp = $9,
	stale_warning_timestamp = $10, culled_timestamp = $11, modified_on = $12
WHERE id = $1
`, host.ID, host.DisplayName, host.AnsibleHost, canonicalFacts, facts, tags, systemProfile,
			host.Reporter, host.StaleTimestamp, host.StaleWarningTimestamp, host.CulledTimestamp,
			host.ModifiedOn)
		if err != nil {
			return err
		}

		updated = host
		return nil
	})
	if err != nil {
		return Host{}, err
	}
	return updated, nil
}

func (s *PgStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, s.pool, `DELETE FROM hosts WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PgStore) CulledBefore(ctx context.Context, now time.Time) ([]Host, error) {
	var rows []hostRow
	err := db.Select(ctx, s.pool, &rows, fmt.Sprintf(`
SELECT %s
FROM hosts
WHERE culled_timestamp <= $1
ORDER BY culled_timestamp
`, hostColumns), now)
	if err != nil {
		return nil, err
	}
	return rowsToHosts(rows)
}

func (s *PgStore) MergeSystemProfile(ctx context.Context, id uuid.UUID, profile map[string]any) error {
	if profile == nil {
		profile = map[string]any{}
	}
	partial, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode system profile: %w", err)
	}

	tag, err := db.Exec(ctx, s.pool, `
UPDATE hosts
SET system_profile = COALESCE(system_profile, '{}'::jsonb) || $2::jsonb, modified_on = now()
WHERE id = $1
`, id, partial)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

func rowsToHosts(rows []hostRow) ([]Host, error) {
	hosts := make([]Host, 0, len(rows))
	for _, row := range rows {
		h, err := row.toAPI()
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}
