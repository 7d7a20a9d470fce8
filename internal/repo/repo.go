package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO orders(id,order_number,order_date,delivery_link,created_at) VALUES (?,?,?,?,?)`,
		o.ID, o.OrderNumber, o.OrderDate, nullable(o.DeliveryLink), o.CreatedAt)
	return err
}

func scanOrder(row *sql.Row) (domain.Order, error) {
	var o domain.Order
	var link sql.NullString
	err := row.Scan(&o.ID, &o.OrderNumber, &o.OrderDate, &link, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if link.Valid {
		o.DeliveryLink = link.String
	}
	return o, err
}

func (r Repo) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return scanOrder(r.DB.QueryRowContext(ctx, `SELECT id,order_number,order_date,delivery_link,created_at FROM orders WHERE id=?`, id))
}

// GetOrderByNumber looks an order up by its display number.
func (r Repo) GetOrderByNumber(ctx context.Context, number string) (domain.Order, error) {
	return scanOrder(r.DB.QueryRowContext(ctx, `SELECT id,order_number,order_date,delivery_link,created_at FROM orders WHERE order_number=?`, number))
}

func (r Repo) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,order_number,order_date,delivery_link,created_at FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		var o domain.Order
		var link sql.NullString
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.OrderDate, &link, &o.CreatedAt); err != nil {
			return nil, err
		}
		if link.Valid {
			o.DeliveryLink = link.String
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// SingleOrder returns the only order in the workspace, or an error telling
// the caller to disambiguate.
func (r Repo) SingleOrder(ctx context.Context) (domain.Order, error) {
	orders, err := r.ListOrders(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, ErrNotFound
	}
	if len(orders) > 1 {
		return domain.Order{}, fmt.Errorf("multiple orders exist; specify --order")
	}
	return orders[0], nil
}

func (r Repo) DeleteOrder(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM orders WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertReport(ctx context.Context, rep domain.Report) (domain.Report, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO reports(order_id,kind,legal_description,start_date,end_date,created_at) VALUES (?,?,?,?,?,?)`,
		rep.OrderID, string(rep.Kind), rep.LegalDescription, nullablePtr(rep.StartDate), nullablePtr(rep.EndDate), rep.CreatedAt)
	if err != nil {
		return rep, err
	}
	rep.ID, err = res.LastInsertId()
	return rep, err
}

func (r Repo) GetReport(ctx context.Context, id int64) (domain.Report, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,order_id,kind,legal_description,start_date,end_date,created_at FROM reports WHERE id=?`, id)
	var rep domain.Report
	var start, end sql.NullString
	err := row.Scan(&rep.ID, &rep.OrderID, &rep.Kind, &rep.LegalDescription, &start, &end, &rep.CreatedAt)
	if err == sql.ErrNoRows {
		return rep, ErrNotFound
	}
	if err != nil {
		return rep, err
	}
	if start.Valid {
		rep.StartDate = &start.String
	}
	if end.Valid {
		rep.EndDate = &end.String
	}
	return rep, nil
}

func (r Repo) InsertLease(ctx context.Context, l domain.Lease) (domain.Lease, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO leases(lease_number,agency,prior_report_found,archive_link,created_at) VALUES (?,?,?,?,?)`,
		l.LeaseNumber, string(l.Agency), boolToInt(l.PriorReportFound), nullable(l.ArchiveLink), l.CreatedAt)
	if err != nil {
		return l, err
	}
	l.ID, err = res.LastInsertId()
	return l, err
}

// AttachLease links a lease to a report at the next association position.
func (r Repo) AttachLease(ctx context.Context, reportID, leaseID int64) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO report_leases(report_id,lease_id,position)
VALUES (?,?,COALESCE((SELECT MAX(position)+1 FROM report_leases WHERE report_id=?),0))`,
		reportID, leaseID, reportID)
	return err
}

// OrderGraph is an order with its reports and each report's leases, loaded
// in one pass so workflow runs never fan out into per-report queries.
type OrderGraph struct {
	Order   domain.Order
	Reports []domain.Report
}

// LoadOrderGraph fetches the order, its reports, and all lease associations
// in three queries. Report leases come back in association order.
func (r Repo) LoadOrderGraph(ctx context.Context, orderID string) (OrderGraph, error) {
	order, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return OrderGraph{}, err
	}
	g := OrderGraph{Order: order}

	rows, err := r.DB.QueryContext(ctx, `SELECT id,order_id,kind,legal_description,start_date,end_date,created_at FROM reports WHERE order_id=? ORDER BY id`, orderID)
	if err != nil {
		return OrderGraph{}, err
	}
	defer rows.Close()
	index := map[int64]int{}
	for rows.Next() {
		var rep domain.Report
		var start, end sql.NullString
		if err := rows.Scan(&rep.ID, &rep.OrderID, &rep.Kind, &rep.LegalDescription, &start, &end, &rep.CreatedAt); err != nil {
			return OrderGraph{}, err
		}
		if start.Valid {
			rep.StartDate = &start.String
		}
		if end.Valid {
			rep.EndDate = &end.String
		}
		index[rep.ID] = len(g.Reports)
		g.Reports = append(g.Reports, rep)
	}
	if err := rows.Err(); err != nil {
		return OrderGraph{}, err
	}

	leaseRows, err := r.DB.QueryContext(ctx, `
SELECT rl.report_id, l.id, l.lease_number, l.agency, l.prior_report_found, l.archive_link, l.created_at
FROM report_leases rl
JOIN leases l ON l.id = rl.lease_id
JOIN reports rep ON rep.id = rl.report_id
WHERE rep.order_id = ?
ORDER BY rl.report_id, rl.position`, orderID)
	if err != nil {
		return OrderGraph{}, err
	}
	defer leaseRows.Close()
	for leaseRows.Next() {
		var reportID int64
		var l domain.Lease
		var prior int
		var link sql.NullString
		if err := leaseRows.Scan(&reportID, &l.ID, &l.LeaseNumber, &l.Agency, &prior, &link, &l.CreatedAt); err != nil {
			return OrderGraph{}, err
		}
		l.PriorReportFound = prior != 0
		if link.Valid {
			l.ArchiveLink = link.String
		}
		if i, ok := index[reportID]; ok {
			g.Reports[i].Leases = append(g.Reports[i].Leases, l)
		}
	}
	return g, leaseRows.Err()
}

// LatestEvents returns recent events, newest first, with optional filters.
func (r Repo) LatestEvents(ctx context.Context, limit int, orderID, evtType string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(order_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var (
		clauses []string
		args    []any
	)
	if orderID != "" {
		clauses = append(clauses, "order_id=?")
		args = append(args, orderID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OrderID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns up to limit events with id greater than cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(order_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OrderID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the highest event id, or 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
