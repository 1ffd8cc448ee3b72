package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"groupchat/internal/app/store"
	"groupchat/internal/app/user"
)

var _ store.Store = (*PostgresStore)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements store.Store on PostgreSQL.
// It owns the pool: Close releases it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an initialized pool (see NewPool).
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("db: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- users ---

func (s *PostgresStore) FindUser(ctx context.Context, userID string) (user.User, error) {
	var u user.User
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, username, is_online FROM users WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Username, &u.IsOnline)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.User{}, fmt.Errorf("find user %s: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return user.User{}, translate("find user", err)
	}
	return u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, username string) (user.User, error) {
	u := user.User{Username: username}

	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO users (username) VALUES ($1) RETURNING id::text`,
			username,
		).Scan(&u.ID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO user_channels (user_id, channel_id)
			 SELECT $1, id FROM channels WHERE name = $2`,
			u.ID, store.GeneralChannelName,
		)
		return err
	})
	if err != nil {
		return user.User{}, translate("create user", err)
	}
	return u, nil
}

func (s *PostgresStore) SearchUsers(ctx context.Context, userID string, q store.SearchQuery) ([]user.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, username
		   FROM users
		  WHERE username ILIKE $2 ESCAPE '~'
		    AND id <> $1
		    AND id NOT IN (
		        SELECT DISTINCT peer.user_id
		          FROM user_channels peer
		          JOIN user_channels mine ON mine.channel_id = peer.channel_id
		          JOIN channels c ON c.id = peer.channel_id
		         WHERE mine.user_id = $1
		           AND c.type = 'private')
		  ORDER BY username ASC
		  LIMIT $3`,
		userID, store.EscapeLike(q.Prefix)+"%", q.Size,
	)
	if err != nil {
		return nil, translate("search users", err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.User, error) {
		var u user.User
		err := row.Scan(&u.ID, &u.Username)
		return u, err
	})
	if err != nil {
		return nil, translate("search users", err)
	}
	if users == nil {
		users = []user.User{}
	}
	return users, nil
}

// --- presence ---

func (s *PostgresStore) SetUserOnline(ctx context.Context, userID string) (bool, error) {
	var wasOnline bool
	err := s.pool.QueryRow(ctx,
		`UPDATE users u
		    SET is_online = TRUE,
		        last_ping = NOW()
		   FROM (SELECT id, is_online FROM users WHERE id = $1 FOR UPDATE) old_u
		  WHERE u.id = old_u.id
		RETURNING old_u.is_online`,
		userID,
	).Scan(&wasOnline)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("set user online %s: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return false, translate("set user online", err)
	}
	return wasOnline, nil
}

func (s *PostgresStore) SetUserOffline(ctx context.Context, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET is_online = FALSE WHERE id = $1 AND is_online`,
		userID,
	)
	if err != nil {
		return false, translate("set user offline", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) TouchUsers(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET last_ping = NOW() WHERE id = ANY($1::text[]::uuid[])`,
		userIDs,
	)
	return translate("touch users", err)
}

func (s *PostgresStore) SweepStaleOnlineUsers(ctx context.Context, staleness time.Duration) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE users
		    SET is_online = FALSE
		  WHERE is_online
		    AND last_ping < NOW() - make_interval(secs => $1)
		RETURNING id::text`,
		staleness.Seconds(),
	)
	if err != nil {
		return nil, translate("sweep stale users", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, translate("sweep stale users", err)
	}
	return ids, nil
}

// --- channels ---

// channelColumns selects a channel view for viewer $1 from channels c joined with the
// viewer's membership row uc.
const channelColumns = `
	c.id::text,
	c.name,
	c.type,
	(SELECT count(*) FROM user_channels WHERE channel_id = c.id),
	CASE WHEN c.type = 'public'
		THEN ARRAY[]::text[]
		ELSE ARRAY(
			SELECT uc2.user_id::text
			  FROM user_channels uc2
			 WHERE uc2.channel_id = c.id
			   AND uc2.user_id <> $1
			 ORDER BY uc2.user_id::text)
	END,
	(SELECT count(*) FROM messages m WHERE m.channel_id = c.id AND m.id > COALESCE(uc.client_offset, 0))`

func scanChannel(row pgx.Row) (store.Channel, error) {
	var (
		ch  store.Channel
		typ string
	)
	if err := row.Scan(&ch.ID, &ch.Name, &typ, &ch.UserCount, &ch.Users, &ch.UnreadCount); err != nil {
		return store.Channel{}, err
	}
	ch.Type = store.ChannelType(typ)
	if ch.Users == nil {
		ch.Users = []string{}
	}
	return ch, nil
}

func getChannel(ctx context.Context, q querier, viewerID, channelID string) (store.Channel, error) {
	ch, err := scanChannel(q.QueryRow(ctx,
		`SELECT `+channelColumns+`
		   FROM channels c
		   JOIN user_channels uc ON uc.channel_id = c.id
		  WHERE uc.user_id = $1
		    AND c.id = $2`,
		viewerID, channelID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Channel{}, store.ErrNotFound
	}
	return ch, err
}

func (s *PostgresStore) IsMember(ctx context.Context, userID, channelID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_channels WHERE user_id = $1 AND channel_id = $2)`,
		userID, channelID,
	).Scan(&ok)
	if err != nil {
		return false, translate("is member", err)
	}
	return ok, nil
}

func (s *PostgresStore) CreatePublicChannel(ctx context.Context, userID, name string) (store.Channel, error) {
	var ch store.Channel

	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var channelID string
		if err := tx.QueryRow(ctx,
			`INSERT INTO channels (name, type) VALUES ($1, 'public') RETURNING id::text`,
			name,
		).Scan(&channelID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO user_channels (user_id, channel_id) VALUES ($1, $2)`,
			userID, channelID,
		); err != nil {
			return err
		}

		var err error
		ch, err = getChannel(ctx, tx, userID, channelID)
		return err
	})
	if err != nil {
		return store.Channel{}, translate("create public channel", err)
	}
	return ch, nil
}

func (s *PostgresStore) CreatePrivateChannel(ctx context.Context, userID string, otherUserIDs []string) (store.Channel, error) {
	var ch store.Channel

	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var channelID string
		if err := tx.QueryRow(ctx,
			`INSERT INTO channels (type) VALUES ('private') RETURNING id::text`,
		).Scan(&channelID); err != nil {
			return err
		}

		members := append([]string{userID}, otherUserIDs...)
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_channels (user_id, channel_id)
			 SELECT member::uuid, $2 FROM unnest($1::text[]) AS member`,
			members, channelID,
		); err != nil {
			return err
		}

		var err error
		ch, err = getChannel(ctx, tx, userID, channelID)
		return err
	})
	if err != nil {
		return store.Channel{}, translate("create private channel", err)
	}
	return ch, nil
}

func (s *PostgresStore) JoinChannel(ctx context.Context, userID, channelID string) (store.Channel, error) {
	var ch store.Channel

	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO user_channels (user_id, channel_id)
			 SELECT $1, id FROM channels WHERE id = $2 AND type = 'public'`,
			userID, channelID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrConflict
		}

		ch, err = getChannel(ctx, tx, userID, channelID)
		return err
	})
	if errors.Is(err, store.ErrConflict) || pgCode(err) == codeInvalidTextRep {
		return store.Channel{}, fmt.Errorf("join channel %s: %w", channelID, store.ErrConflict)
	}
	if err != nil {
		return store.Channel{}, translate("join channel", err)
	}
	return ch, nil
}

func (s *PostgresStore) ListMemberships(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT channel_id::text FROM user_channels WHERE user_id = $1 ORDER BY channel_id`,
		userID,
	)
	if err != nil {
		return nil, translate("list memberships", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, translate("list memberships", err)
	}
	return ids, nil
}

func (s *PostgresStore) ListChannels(ctx context.Context, userID string, q store.ListChannelsQuery) (store.Page[store.Channel], error) {
	// name:asc is the only supported order.
	rows, err := s.pool.Query(ctx,
		`SELECT `+channelColumns+`
		   FROM channels c
		   JOIN user_channels uc ON uc.channel_id = c.id
		  WHERE uc.user_id = $1
		  ORDER BY c.name ASC NULLS LAST, c.id ASC
		  LIMIT $2`,
		userID, q.Size+1,
	)
	if err != nil {
		return store.Page[store.Channel]{}, translate("list channels", err)
	}

	channels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Channel, error) {
		return scanChannel(row)
	})
	if err != nil {
		return store.Page[store.Channel]{}, translate("list channels", err)
	}
	return pageOf(channels, q.Size), nil
}

func (s *PostgresStore) SearchChannels(ctx context.Context, userID string, q store.SearchQuery) ([]store.Channel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id::text, c.name, c.type,
		        (SELECT count(*) FROM user_channels WHERE channel_id = c.id),
		        ARRAY[]::text[],
		        0
		   FROM channels c
		  WHERE c.type = 'public'
		    AND c.name ILIKE $2 ESCAPE '~'
		    AND NOT EXISTS (
		        SELECT 1 FROM user_channels uc WHERE uc.channel_id = c.id AND uc.user_id = $1)
		  ORDER BY c.name ASC
		  LIMIT $3`,
		userID, store.EscapeLike(q.Prefix)+"%", q.Size,
	)
	if err != nil {
		return nil, translate("search channels", err)
	}

	channels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Channel, error) {
		return scanChannel(row)
	})
	if err != nil {
		return nil, translate("search channels", err)
	}
	if channels == nil {
		channels = []store.Channel{}
	}
	return channels, nil
}

// --- messages ---

func (s *PostgresStore) InsertMessage(ctx context.Context, nm store.NewMessage) (store.Message, error) {
	msg := store.Message{ChannelID: nm.ChannelID, From: nm.From, Content: nm.Content}

	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO messages (from_user, channel_id, content)
			 SELECT $1, $2, $3
			  WHERE EXISTS (SELECT 1 FROM user_channels WHERE user_id = $1 AND channel_id = $2)
			 RETURNING id`,
			nm.From, nm.ChannelID, nm.Content,
		).Scan(&msg.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotMember
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE user_channels
			    SET client_offset = $1
			  WHERE user_id = $2
			    AND channel_id = $3
			    AND (client_offset IS NULL OR client_offset < $1)`,
			msg.ID, nm.From, nm.ChannelID,
		)
		return err
	})
	if errors.Is(err, store.ErrNotMember) || pgCode(err) == codeInvalidTextRep {
		return store.Message{}, fmt.Errorf("insert message: channel %s: %w", nm.ChannelID, store.ErrNotMember)
	}
	if err != nil {
		return store.Message{}, translate("insert message", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, q store.ListMessagesQuery) (store.Page[store.Message], error) {
	cmp, dir := ">", "ASC"
	if q.OrderBy == store.OrderIDDesc {
		cmp, dir = "<", "DESC"
	}

	// $2 NULL means no cursor.
	rows, err := s.pool.Query(ctx,
		`SELECT id, channel_id::text, from_user::text, content
		   FROM messages
		  WHERE channel_id = $1
		    AND ($2::bigint IS NULL OR id `+cmp+` $2)
		  ORDER BY id `+dir+`
		  LIMIT $3`,
		q.ChannelID, q.After, q.Size+1,
	)
	if err != nil {
		return store.Page[store.Message]{}, translate("list messages", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Message, error) {
		var m store.Message
		err := row.Scan(&m.ID, &m.ChannelID, &m.From, &m.Content)
		return m, err
	})
	if err != nil {
		return store.Page[store.Message]{}, translate("list messages", err)
	}
	return pageOf(messages, q.Size), nil
}

func (s *PostgresStore) AdvanceReadOffsetIfGreater(ctx context.Context, userID, channelID string, messageID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_channels
		    SET client_offset = $1
		  WHERE user_id = $2
		    AND channel_id = $3
		    AND (client_offset IS NULL OR client_offset < $1)`,
		messageID, userID, channelID,
	)
	if err != nil {
		return false, translate("advance read offset", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CountUnread(ctx context.Context, userID, channelID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*)
		   FROM messages m
		   JOIN user_channels uc ON uc.channel_id = m.channel_id
		  WHERE uc.user_id = $1
		    AND uc.channel_id = $2
		    AND m.id > COALESCE(uc.client_offset, 0)`,
		userID, channelID,
	).Scan(&n)
	if err != nil {
		return 0, translate("count unread", err)
	}
	return n, nil
}

func pageOf[T any](rows []T, size int) store.Page[T] {
	if len(rows) > size {
		return store.Page[T]{Data: rows[:size], HasMore: true}
	}
	if rows == nil {
		rows = []T{}
	}
	return store.Page[T]{Data: rows}
}
