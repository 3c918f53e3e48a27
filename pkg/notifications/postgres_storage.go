package notifications

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifykit/pkg/pg"
)

// PostgresStorage implements Storage on the tables created by the
// notifications migration. Every statement filters by tenant_id.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a Storage over pool. Tables come from the
// goose migrations.
func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const notificationColumns = `id, tenant_id, user_id, category, type, priority, title, message, data,
	channels_sent, sensitive_data, created_at, expires_at, retention_date, read_at, deleted_at,
	COALESCE(deleted_by, '')`

// CreateNotification inserts a new row.
func (s *PostgresStorage) CreateNotification(ctx context.Context, n *Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, tenant_id, user_id, category, type, priority, title, message, data,
			channels_sent, sensitive_data, created_at, expires_at, retention_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		n.ID, n.TenantID, n.UserID, n.Category, string(n.Type), string(n.Priority), n.Title, n.Message,
		n.Data, channelNames(n.ChannelsSent), n.SensitiveData, n.CreatedAt, n.ExpiresAt, n.RetentionDate,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// AddChannelsSent unions the stored set with channels, ordered by ChannelOrder.
func (s *PostgresStorage) AddChannelsSent(ctx context.Context, tenantID, id uuid.UUID, channels []ChannelType) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET channels_sent = ARRAY(
			SELECT o.ch FROM unnest($4::text[]) WITH ORDINALITY AS o(ch, pos)
			WHERE o.ch = ANY(channels_sent) OR o.ch = ANY($3::text[])
			ORDER BY o.pos
		)
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, channelNames(channels), channelNames(ChannelOrder),
	)
	if err != nil {
		return fmt.Errorf("update channels_sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *PostgresStorage) GetNotification(ctx context.Context, tenantID uuid.UUID, userID string, id uuid.UUID) (*Notification, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications
		WHERE tenant_id = $1 AND user_id = $2 AND id = $3 AND deleted_at IS NULL`,
		tenantID, userID, id,
	)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	return n, err
}

// ListNotifications builds the filter from opts and returns newest first.
func (s *PostgresStorage) ListNotifications(ctx context.Context, tenantID uuid.UUID, userID string, opts ListOptions) ([]Notification, error) {
	args := []any{tenantID, userID, time.Now()}
	where := []string{
		"tenant_id = $1", "user_id = $2", "deleted_at IS NULL",
		"(expires_at IS NULL OR expires_at > $3)",
	}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if opts.OnlyUnread {
		where = append(where, "read_at IS NULL")
	}
	if len(opts.Types) > 0 {
		types := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			types[i] = string(t)
		}
		where = append(where, "type = ANY("+arg(types)+"::text[])")
	}
	if len(opts.Categories) > 0 {
		where = append(where, "category = ANY("+arg(opts.Categories)+"::text[])")
	}
	if opts.Since != nil {
		where = append(where, "created_at > "+arg(*opts.Since))
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + arg(opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) MarkRead(ctx context.Context, tenantID uuid.UUID, userID string, at time.Time, ids ...uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = $4
		WHERE tenant_id = $1 AND user_id = $2 AND id = ANY($3) AND read_at IS NULL AND deleted_at IS NULL`,
		tenantID, userID, ids, at,
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStorage) MarkAllRead(ctx context.Context, tenantID uuid.UUID, userID string, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = $3
		WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL AND deleted_at IS NULL`,
		tenantID, userID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStorage) CountUnread(ctx context.Context, tenantID uuid.UUID, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications
		WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL AND deleted_at IS NULL
		  AND (expires_at IS NULL OR expires_at > now())`,
		tenantID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// SoftDelete returns the ids it marked deleted.
func (s *PostgresStorage) SoftDelete(ctx context.Context, tenantID uuid.UUID, userID, deletedBy string, at time.Time, ids ...uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE notifications SET deleted_at = $4, deleted_by = $5
		WHERE tenant_id = $1 AND user_id = $2 AND id = ANY($3) AND deleted_at IS NULL
		RETURNING id`,
		tenantID, userID, ids, at, deletedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("soft delete: %w", err)
	}
	deleted, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("soft delete: %w", err)
	}
	return deleted, nil
}

// PurgeRetention relies on ON DELETE CASCADE to drop delivery logs.
func (s *PostgresStorage) PurgeRetention(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE retention_date < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge retention: %w", err)
	}
	return tag.RowsAffected(), nil
}

const deliveryLogColumns = `id, tenant_id, notification_id, channel, status, COALESCE(provider, ''),
	COALESCE(provider_message_id, ''), COALESCE(error_message, ''), attempts, sent_at, created_at, updated_at`

// AcquireDeliveryLog inserts a PENDING row or reopens a FAILED one. A row of
// another tenant is never returned.
func (s *PostgresStorage) AcquireDeliveryLog(ctx context.Context, tenantID, notificationID uuid.UUID, channel ChannelType) (*DeliveryLog, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO delivery_logs (id, tenant_id, notification_id, channel, status, created_at, updated_at)
		SELECT $1, $2, $3, $4, 'PENDING', $5, $5
		WHERE EXISTS (SELECT 1 FROM notifications WHERE id = $3 AND tenant_id = $2)
		ON CONFLICT (notification_id, channel) DO UPDATE SET
			status = CASE WHEN delivery_logs.status = 'FAILED' THEN 'PENDING' ELSE delivery_logs.status END,
			updated_at = CASE WHEN delivery_logs.status = 'FAILED' THEN EXCLUDED.updated_at ELSE delivery_logs.updated_at END
		WHERE delivery_logs.tenant_id = EXCLUDED.tenant_id
		RETURNING `+deliveryLogColumns,
		uuid.New(), tenantID, notificationID, string(channel), time.Now(),
	)
	dl, err := scanDeliveryLog(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows), pg.IsForeignKeyViolationError(err):
		return nil, ErrNotificationNotFound
	case err != nil:
		return nil, fmt.Errorf("acquire delivery log: %w", err)
	}
	return dl, nil
}

// MarkDeliverySent moves a PENDING log to SENT.
func (s *PostgresStorage) MarkDeliverySent(ctx context.Context, tenantID, id uuid.UUID, provider, messageID string, at time.Time) (*DeliveryLog, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE delivery_logs SET status = 'SENT', provider = $3, provider_message_id = NULLIF($4, ''),
			error_message = NULL, sent_at = $5, attempts = attempts + 1, updated_at = $5
		WHERE tenant_id = $1 AND id = $2 AND status = 'PENDING'
		RETURNING `+deliveryLogColumns,
		tenantID, id, provider, messageID, at,
	)
	return s.transitioned(ctx, row, tenantID, id, DeliverySent)
}

// MarkDeliveryFailed moves a PENDING log to FAILED.
func (s *PostgresStorage) MarkDeliveryFailed(ctx context.Context, tenantID, id uuid.UUID, provider, reason string, at time.Time) (*DeliveryLog, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE delivery_logs SET status = 'FAILED', provider = COALESCE(NULLIF($3, ''), provider),
			error_message = $4, attempts = attempts + 1, updated_at = $5
		WHERE tenant_id = $1 AND id = $2 AND status = 'PENDING'
		RETURNING `+deliveryLogColumns,
		tenantID, id, provider, reason, at,
	)
	return s.transitioned(ctx, row, tenantID, id, DeliveryFailed)
}

// transitioned tells a missing row apart from a disallowed transition.
func (s *PostgresStorage) transitioned(ctx context.Context, row pgx.Row, tenantID, id uuid.UUID, to DeliveryStatus) (*DeliveryLog, error) {
	dl, err := scanDeliveryLog(row)
	if err == nil {
		return dl, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update delivery log: %w", err)
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM delivery_logs WHERE tenant_id = $1 AND id = $2`, tenantID, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeliveryLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read delivery log status: %w", err)
	}
	return nil, &TransitionError{ID: id, From: DeliveryStatus(current), To: to}
}

func (s *PostgresStorage) GetDeliveryLog(ctx context.Context, tenantID, notificationID uuid.UUID, channel ChannelType) (*DeliveryLog, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+deliveryLogColumns+` FROM delivery_logs
		WHERE tenant_id = $1 AND notification_id = $2 AND channel = $3`,
		tenantID, notificationID, string(channel),
	)
	dl, err := scanDeliveryLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeliveryLogNotFound
	}
	return dl, err
}

func (s *PostgresStorage) ListDeliveryLogs(ctx context.Context, tenantID, notificationID uuid.UUID) ([]DeliveryLog, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+deliveryLogColumns+` FROM delivery_logs
		WHERE tenant_id = $1 AND notification_id = $2
		ORDER BY array_position($3::text[], channel::text)`,
		tenantID, notificationID, channelNames(ChannelOrder),
	)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	defer rows.Close()

	var out []DeliveryLog
	for rows.Next() {
		dl, err := scanDeliveryLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *dl)
	}
	return out, rows.Err()
}

const preferenceColumns = `tenant_id, user_id, category, in_app_enabled, email_enabled, sms_enabled, created_at, updated_at`

func (s *PostgresStorage) GetPreference(ctx context.Context, tenantID uuid.UUID, userID, category string) (*Preference, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+preferenceColumns+` FROM notification_preferences
		WHERE tenant_id = $1 AND user_id = $2 AND category = $3`,
		tenantID, userID, category,
	)
	p, err := scanPreference(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPreferenceNotFound
	}
	return p, err
}

func (s *PostgresStorage) ListPreferences(ctx context.Context, tenantID uuid.UUID, userID string) ([]Preference, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+preferenceColumns+` FROM notification_preferences
		WHERE tenant_id = $1 AND user_id = $2 ORDER BY category`,
		tenantID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	var out []Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// InsertPreferenceIfAbsent relies on ON CONFLICT DO NOTHING.
func (s *PostgresStorage) InsertPreferenceIfAbsent(ctx context.Context, p Preference) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO notification_preferences (`+preferenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, user_id, category) DO NOTHING`,
		p.TenantID, p.UserID, p.Category, p.InAppEnabled, p.EmailEnabled, p.SMSEnabled, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert preference: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpsertPreference keeps unset fields at their stored value, or at the
// column defaults for a new row.
func (s *PostgresStorage) UpsertPreference(ctx context.Context, tenantID uuid.UUID, userID, category string, upd PreferenceUpdate) (*Preference, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO notification_preferences AS p (`+preferenceColumns+`)
		VALUES ($1, $2, $3, COALESCE($4::boolean, true), COALESCE($5::boolean, true), COALESCE($6::boolean, false), $7, $7)
		ON CONFLICT (tenant_id, user_id, category) DO UPDATE SET
			in_app_enabled = COALESCE($4::boolean, p.in_app_enabled),
			email_enabled  = COALESCE($5::boolean, p.email_enabled),
			sms_enabled    = COALESCE($6::boolean, p.sms_enabled),
			updated_at     = $7
		RETURNING `+preferenceColumns,
		tenantID, userID, category, upd.InAppEnabled, upd.EmailEnabled, upd.SMSEnabled, time.Now(),
	)
	p, err := scanPreference(row)
	if err != nil {
		return nil, fmt.Errorf("upsert preference: %w", err)
	}
	return p, nil
}

func (s *PostgresStorage) GetProviderSettings(ctx context.Context, tenantID uuid.UUID) (*ProviderSettings, error) {
	var ps ProviderSettings
	err := s.pool.QueryRow(ctx, `
		SELECT tenant_id, COALESCE(email_provider, ''), COALESCE(email_api_key, ''), COALESCE(email_from, ''),
			COALESCE(sms_provider, ''), COALESCE(sms_account_sid, ''), COALESCE(sms_auth_token, ''),
			COALESCE(sms_from, ''), updated_at
		FROM tenant_provider_settings WHERE tenant_id = $1`,
		tenantID,
	).Scan(&ps.TenantID, &ps.EmailProvider, &ps.EmailAPIKey, &ps.EmailFrom,
		&ps.SMSProvider, &ps.SMSAccountSID, &ps.SMSAuthToken, &ps.SMSFrom, &ps.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProviderSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provider settings: %w", err)
	}
	return &ps, nil
}

func (s *PostgresStorage) SaveProviderSettings(ctx context.Context, ps ProviderSettings) error {
	if ps.TenantID == uuid.Nil {
		return ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenant_provider_settings (tenant_id, email_provider, email_api_key, email_from,
			sms_provider, sms_account_sid, sms_auth_token, sms_from, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), now())
		ON CONFLICT (tenant_id) DO UPDATE SET
			email_provider = EXCLUDED.email_provider, email_api_key = EXCLUDED.email_api_key,
			email_from = EXCLUDED.email_from, sms_provider = EXCLUDED.sms_provider,
			sms_account_sid = EXCLUDED.sms_account_sid, sms_auth_token = EXCLUDED.sms_auth_token,
			sms_from = EXCLUDED.sms_from, updated_at = EXCLUDED.updated_at`,
		ps.TenantID, ps.EmailProvider, ps.EmailAPIKey, ps.EmailFrom,
		ps.SMSProvider, ps.SMSAccountSID, ps.SMSAuthToken, ps.SMSFrom,
	)
	if err != nil {
		return fmt.Errorf("save provider settings: %w", err)
	}
	return nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		n        Notification
		typ, pri string
		channels []string
	)
	err := row.Scan(&n.ID, &n.TenantID, &n.UserID, &n.Category, &typ, &pri, &n.Title, &n.Message, &n.Data,
		&channels, &n.SensitiveData, &n.CreatedAt, &n.ExpiresAt, &n.RetentionDate, &n.ReadAt, &n.DeletedAt,
		&n.DeletedBy)
	if err != nil {
		return nil, err
	}
	n.Type = Type(typ)
	n.Priority = Priority(pri)
	n.ChannelsSent = make([]ChannelType, len(channels))
	for i, c := range channels {
		n.ChannelsSent[i] = ChannelType(c)
	}
	return &n, nil
}

func scanDeliveryLog(row pgx.Row) (*DeliveryLog, error) {
	var (
		dl              DeliveryLog
		channel, status string
	)
	err := row.Scan(&dl.ID, &dl.TenantID, &dl.NotificationID, &channel, &status, &dl.Provider,
		&dl.ProviderMessageID, &dl.ErrorMessage, &dl.Attempts, &dl.SentAt, &dl.CreatedAt, &dl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	dl.Channel = ChannelType(channel)
	dl.Status = DeliveryStatus(status)
	return &dl, nil
}

func scanPreference(row pgx.Row) (*Preference, error) {
	var p Preference
	err := row.Scan(&p.TenantID, &p.UserID, &p.Category, &p.InAppEnabled, &p.EmailEnabled, &p.SMSEnabled,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
