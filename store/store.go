// Copyright (c) 2025 Bob Vawter (bob@vawter.org)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// SPDX-License-Identifier: MIT

// Package store persists Service and Gate records in an embedded SQLite
// database. Deletion is soft: rows gain a deleted_at timestamp and fall
// out of every read.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates that no live record matches the given id.
var ErrNotFound = errors.New("record not found")

// Ports are persisted as 32-bit integers; anything beyond the TCP range
// is rejected before it reaches the schema.
const maxPort = 65535

// Service identifies a remote TCP endpoint that gates relay to.
type Service struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	Host      string
	Port      int
}

// Addr returns the service's host:port form.
func (s *Service) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Gate identifies a local TCP endpoint relaying to one Service.
type Gate struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	ServiceID int64
	Host      string
	Port      int
}

// Binding pairs a live gate with its service's remote address.
type Binding struct {
	Gate       *Gate
	RemoteAddr string
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS services (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP,
	deleted_at TIMESTAMP,
	host TEXT NOT NULL,
	port INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS gates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP,
	deleted_at TIMESTAMP,
	service_id INTEGER NOT NULL REFERENCES services (id),
	host TEXT NOT NULL,
	port INTEGER NOT NULL
)`,
}

// Store wraps the database handle.
type Store struct {
	db *sql.DB
}

// Open connects to the database at the given DSN and applies the
// schema. Use ":memory:" for an ephemeral database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database %s: %w", dsn, err)
	}

	// SQLite allows one writer; an in-memory database is additionally
	// private to its connection, which must therefore never be
	// recycled.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("could not apply schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Services returns all live services.
func (s *Store) Services(ctx context.Context) ([]*Service, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, updated_at, deleted_at, host, port
		 FROM services WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// Service returns a live service by id.
func (s *Store) Service(ctx context.Context, id int64) (*Service, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at, deleted_at, host, port
		 FROM services WHERE id = ? AND deleted_at IS NULL`, id)
	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	return svc, err
}

// CreateService inserts a new service record.
func (s *Store) CreateService(ctx context.Context, host string, port int) (*Service, error) {
	if err := checkPort(port); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO services (created_at, host, port) VALUES (?, ?, ?)`,
		now, host, port)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Service{ID: id, CreatedAt: now, Host: host, Port: port}, nil
}

// UpdateService applies the non-nil fields to a live service and stamps
// updated_at.
func (s *Store) UpdateService(ctx context.Context, id int64, host *string, port *int) (*Service, error) {
	if port != nil {
		if err := checkPort(*port); err != nil {
			return nil, err
		}
	}
	if err := s.update(ctx, "services", id, map[string]any{
		"host": optString(host),
		"port": optInt(port),
	}); err != nil {
		return nil, err
	}
	return s.Service(ctx, id)
}

// DeleteService soft-deletes a service.
func (s *Store) DeleteService(ctx context.Context, id int64) error {
	return s.softDelete(ctx, "services", id)
}

// Gates returns all live gates.
func (s *Store) Gates(ctx context.Context) ([]*Gate, error) {
	return s.queryGates(ctx,
		`SELECT id, created_at, updated_at, deleted_at, service_id, host, port
		 FROM gates WHERE deleted_at IS NULL ORDER BY id`)
}

// GatesForService returns the live gates referencing a service.
func (s *Store) GatesForService(ctx context.Context, serviceID int64) ([]*Gate, error) {
	return s.queryGates(ctx,
		`SELECT id, created_at, updated_at, deleted_at, service_id, host, port
		 FROM gates WHERE service_id = ? AND deleted_at IS NULL ORDER BY id`, serviceID)
}

// Gate returns a live gate by id.
func (s *Store) Gate(ctx context.Context, id int64) (*Gate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at, deleted_at, service_id, host, port
		 FROM gates WHERE id = ? AND deleted_at IS NULL`, id)
	g, err := scanGate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("gate %d: %w", id, ErrNotFound)
	}
	return g, err
}

// CreateGate inserts a new gate referencing an existing live service.
func (s *Store) CreateGate(ctx context.Context, serviceID int64, host string, port int) (*Gate, error) {
	if err := checkPort(port); err != nil {
		return nil, err
	}
	if _, err := s.Service(ctx, serviceID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO gates (created_at, service_id, host, port) VALUES (?, ?, ?, ?)`,
		now, serviceID, host, port)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Gate{ID: id, CreatedAt: now, ServiceID: serviceID, Host: host, Port: port}, nil
}

// UpdateGate applies the non-nil fields to a live gate and stamps
// updated_at.
func (s *Store) UpdateGate(ctx context.Context, id int64, serviceID *int64, host *string, port *int) (*Gate, error) {
	if port != nil {
		if err := checkPort(*port); err != nil {
			return nil, err
		}
	}
	if serviceID != nil {
		if _, err := s.Service(ctx, *serviceID); err != nil {
			return nil, err
		}
	}
	if err := s.update(ctx, "gates", id, map[string]any{
		"service_id": optInt64(serviceID),
		"host":       optString(host),
		"port":       optInt(port),
	}); err != nil {
		return nil, err
	}
	return s.Gate(ctx, id)
}

// DeleteGate soft-deletes a gate.
func (s *Store) DeleteGate(ctx context.Context, id int64) error {
	return s.softDelete(ctx, "gates", id)
}

// Bindings joins each live gate with its service's remote address. Used
// to rebuild the in-memory proxy registry at startup.
func (s *Store) Bindings(ctx context.Context) ([]*Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.created_at, g.updated_at, g.deleted_at, g.service_id, g.host, g.port,
		        s.host, s.port
		 FROM gates g JOIN services s ON s.id = g.service_id
		 WHERE g.deleted_at IS NULL AND s.deleted_at IS NULL
		 ORDER BY g.id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Binding
	for rows.Next() {
		var g Gate
		var updated, deleted sql.NullTime
		var svcHost string
		var svcPort int
		if err := rows.Scan(&g.ID, &g.CreatedAt, &updated, &deleted,
			&g.ServiceID, &g.Host, &g.Port, &svcHost, &svcPort); err != nil {
			return nil, err
		}
		g.UpdatedAt = timePtr(updated)
		g.DeletedAt = timePtr(deleted)
		out = append(out, &Binding{
			Gate:       &g,
			RemoteAddr: fmt.Sprintf("%s:%d", svcHost, svcPort),
		})
	}
	return out, rows.Err()
}

func (s *Store) queryGates(ctx context.Context, query string, args ...any) ([]*Gate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Gate
	for rows.Next() {
		g, err := scanGate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// update builds a partial SET clause from the non-nil values in cols.
func (s *Store) update(ctx context.Context, table string, id int64, cols map[string]any) error {
	set := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	for col, val := range cols {
		if val == nil {
			continue
		}
		set = append(set, col+" = ?")
		args = append(args, val)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET %s WHERE id = ? AND deleted_at IS NULL`,
		table, strings.Join(set, ", ")), args...)
	if err != nil {
		return err
	}
	return checkAffected(res, table, id)
}

func (s *Store) softDelete(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, table),
		time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return checkAffected(res, table, id)
}

func checkAffected(res sql.Result, table string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", strings.TrimSuffix(table, "s"), id, ErrNotFound)
	}
	return nil
}

func checkPort(port int) error {
	if port < 1 || port > maxPort {
		return fmt.Errorf("port %d outside the TCP port range", port)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanService(row scanner) (*Service, error) {
	var svc Service
	var updated, deleted sql.NullTime
	if err := row.Scan(&svc.ID, &svc.CreatedAt, &updated, &deleted,
		&svc.Host, &svc.Port); err != nil {
		return nil, err
	}
	svc.UpdatedAt = timePtr(updated)
	svc.DeletedAt = timePtr(deleted)
	return &svc, nil
}

func scanGate(row scanner) (*Gate, error) {
	var g Gate
	var updated, deleted sql.NullTime
	if err := row.Scan(&g.ID, &g.CreatedAt, &updated, &deleted,
		&g.ServiceID, &g.Host, &g.Port); err != nil {
		return nil, err
	}
	g.UpdatedAt = timePtr(updated)
	g.DeletedAt = timePtr(deleted)
	return &g, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func optString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func optInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func optInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
