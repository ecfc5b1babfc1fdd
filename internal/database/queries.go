package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	selectRoomQuery = "SELECT id, game_code, capacity, is_public, COALESCE(match_id, ''), version, created_at, updated_at FROM rooms "

	selectMembershipsQuery = "SELECT m.user_id, u.nickname, m.is_creator, m.position FROM room_memberships m " +
		"JOIN users u ON u.id = m.user_id WHERE m.room_id = $1 ORDER BY m.position"

	insertMembershipQuery = "INSERT INTO room_memberships (room_id, user_id, is_creator, position) VALUES ($1, $2, $3, $4)"
)

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (db *PgStore) CreateUser(ctx context.Context, nickname string) (User, error) {
	now := time.Now().UTC()
	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (nickname, created_at, updated_at) "+
			"VALUES ($1, $2, $3) RETURNING id, nickname, created_at, updated_at",
		nickname,
		now,
		now,
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Nickname,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgStore) UpdateUser(ctx context.Context, params UpdateUserParams) (User, error) {
	res := db.conn.QueryRowContext(ctx,
		"UPDATE users SET nickname = $2, updated_at = $3 "+
			"WHERE id = $1 RETURNING id, nickname, created_at, updated_at",
		params.UserId,
		params.Nickname,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Nickname,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}

	return u, err
}

func (db *PgStore) GetUser(ctx context.Context, id int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, nickname, created_at, updated_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Nickname,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}

	return u, err
}

func (db *PgStore) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	now := time.Now().UTC()
	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO rooms (id, game_code, capacity, is_public, version, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, 1, $5, $6) "+
			"RETURNING id, game_code, capacity, is_public, COALESCE(match_id, ''), version, created_at, updated_at",
		params.Id,
		params.GameCode,
		params.Capacity,
		params.IsPublic,
		now,
		now,
	)

	room, err := scanRoom(res)
	if err != nil {
		return Room{}, err
	}
	room.Memberships = make([]Membership, 0)

	return room, nil
}

func (db *PgStore) GetRoom(ctx context.Context, id string) (Room, error) {
	room, err := scanRoom(db.conn.QueryRowContext(ctx, selectRoomQuery+"WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("scan room: %w", err)
	}

	room.Memberships, err = fetchMemberships(ctx, db.conn, room.Id)
	if err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgStore) SaveRoom(ctx context.Context, room Room) (Room, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, err
	}
	defer tx.Rollback()

	res := tx.QueryRowContext(ctx,
		"UPDATE rooms SET game_code = $2, capacity = $3, is_public = $4, version = version + 1, updated_at = $5 "+
			"WHERE id = $1 AND version = $6 RETURNING version, updated_at",
		room.Id,
		room.GameCode,
		room.Capacity,
		room.IsPublic,
		time.Now().UTC(),
		room.Version,
	)

	var (
		version   int
		updatedAt time.Time
	)
	if err := res.Scan(&version, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, db.missingOrStale(ctx, room.Id)
		}
		return Room{}, err
	}

	if err := replaceMemberships(ctx, tx, room.Id, room.Memberships); err != nil {
		return Room{}, err
	}

	saved := room.Clone()
	saved.Version = version
	saved.UpdatedAt = updatedAt
	saved.Memberships, err = fetchMemberships(ctx, tx, room.Id)
	if err != nil {
		return Room{}, err
	}

	if err := tx.Commit(); err != nil {
		return Room{}, err
	}

	return saved, nil
}

func (db *PgStore) DeleteRoom(ctx context.Context, id string, version int) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM rooms WHERE id = $1 AND version = $2", id, version)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return db.missingOrStale(ctx, id)
	}

	return nil
}

func (db *PgStore) ListPublicRooms(ctx context.Context) ([]Room, error) {
	return db.listRooms(ctx,
		selectRoomQuery+"WHERE is_public AND match_id IS NULL ORDER BY created_at, id",
	)
}

func (db *PgStore) ListRoomsForUser(ctx context.Context, userId int) ([]Room, error) {
	return db.listRooms(ctx,
		selectRoomQuery+"WHERE id IN (SELECT room_id FROM room_memberships WHERE user_id = $1) ORDER BY created_at, id",
		userId,
	)
}

func (db *PgStore) listRooms(ctx context.Context, query string, args ...any) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range rooms {
		rooms[i].Memberships, err = fetchMemberships(ctx, db.conn, rooms[i].Id)
		if err != nil {
			return nil, err
		}
	}

	return rooms, nil
}

func (db *PgStore) StartMatch(ctx context.Context, room Room, match Match) (Room, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO matches (id, game_code, capacity, server_url, setup_data, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6)",
		match.Id,
		match.GameCode,
		match.Capacity,
		match.ServerUrl,
		match.SetupData,
		now,
	)
	if err != nil {
		return Room{}, fmt.Errorf("insert match: %w", err)
	}

	for _, p := range match.Players {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO match_players (match_id, user_id, player_id, secret) VALUES ($1, $2, $3, $4)",
			match.Id,
			p.UserId,
			p.PlayerId,
			p.Secret,
		)
		if err != nil {
			return Room{}, fmt.Errorf("insert match player: %w", err)
		}
	}

	res := tx.QueryRowContext(ctx,
		"UPDATE rooms SET match_id = $2, version = version + 1, updated_at = $3 "+
			"WHERE id = $1 AND version = $4 AND match_id IS NULL RETURNING version, updated_at",
		room.Id,
		match.Id,
		now,
		room.Version,
	)

	var (
		version   int
		updatedAt time.Time
	)
	if err := res.Scan(&version, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, db.missingOrStale(ctx, room.Id)
		}
		return Room{}, err
	}

	if err := replaceMemberships(ctx, tx, room.Id, room.Memberships); err != nil {
		return Room{}, err
	}

	started := room.Clone()
	started.MatchId = match.Id
	started.Version = version
	started.UpdatedAt = updatedAt
	started.Memberships, err = fetchMemberships(ctx, tx, room.Id)
	if err != nil {
		return Room{}, err
	}

	if err := tx.Commit(); err != nil {
		return Room{}, err
	}

	return started, nil
}

func (db *PgStore) GetMatch(ctx context.Context, id string) (Match, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, game_code, capacity, server_url, setup_data, COALESCE(next_room_id, ''), created_at "+
			"FROM matches WHERE id = $1",
		id,
	)

	var m Match
	err := row.Scan(
		&m.Id,
		&m.GameCode,
		&m.Capacity,
		&m.ServerUrl,
		&m.SetupData,
		&m.NextRoomId,
		&m.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Match{}, ErrNotFound
	}
	if err != nil {
		return Match{}, err
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT p.user_id, u.nickname, p.player_id, p.secret FROM match_players p "+
			"JOIN users u ON u.id = p.user_id WHERE p.match_id = $1 ORDER BY p.player_id::int",
		id,
	)
	if err != nil {
		return Match{}, fmt.Errorf("fetch match players: %w", err)
	}
	defer rows.Close()

	m.Players = make([]MatchPlayer, 0, m.Capacity)
	for rows.Next() {
		var p MatchPlayer
		if err := rows.Scan(&p.UserId, &p.Nickname, &p.PlayerId, &p.Secret); err != nil {
			return Match{}, fmt.Errorf("scan row: %w", err)
		}
		m.Players = append(m.Players, p)
	}

	return m, rows.Err()
}

func (db *PgStore) SetNextRoom(ctx context.Context, matchId, roomId string) (string, error) {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE matches SET next_room_id = $2 WHERE id = $1 AND next_room_id IS NULL",
		matchId,
		roomId,
	)
	if err != nil {
		return "", err
	}

	var nextRoomId sql.NullString
	err = db.conn.QueryRowContext(ctx, "SELECT next_room_id FROM matches WHERE id = $1", matchId).Scan(&nextRoomId)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	return nextRoomId.String, nil
}

func (db *PgStore) missingOrStale(ctx context.Context, roomId string) error {
	var exists bool
	err := db.conn.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)", roomId).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func scanRoom(row rowScanner) (Room, error) {
	var room Room
	err := row.Scan(
		&room.Id,
		&room.GameCode,
		&room.Capacity,
		&room.IsPublic,
		&room.MatchId,
		&room.Version,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	return room, err
}

func fetchMemberships(ctx context.Context, q queryer, roomId string) ([]Membership, error) {
	rows, err := q.QueryContext(ctx, selectMembershipsQuery, roomId)
	if err != nil {
		return nil, fmt.Errorf("fetch memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]Membership, 0)
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserId, &m.Nickname, &m.IsCreator, &m.Position); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		memberships = append(memberships, m)
	}

	return memberships, rows.Err()
}

func replaceMemberships(ctx context.Context, tx *sql.Tx, roomId string, memberships []Membership) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM room_memberships WHERE room_id = $1", roomId); err != nil {
		return fmt.Errorf("delete memberships: %w", err)
	}

	for _, m := range memberships {
		if _, err := tx.ExecContext(ctx, insertMembershipQuery, roomId, m.UserId, m.IsCreator, m.Position); err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
	}

	return nil
}
