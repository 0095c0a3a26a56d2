// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Call model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only persistence
// and query composition.
//
// State transitions are expressed as guarded UPDATEs. The WHERE clause carries
// the expected current status, so a transition is a compare-and-swap executed
// by the database: a second concurrent caller matches zero rows. Functions
// that perform such updates return the number of affected rows and leave the
// interpretation of 0 to the caller.
//
// Error semantics:
//   - Lookups of a single call return gorm.ErrRecordNotFound (ErrNotFound)
//     when it does not exist.
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/callcenter-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// waitingOrder ranks the queue Urgencia > Alta > Normal > Baja, oldest first.
const waitingOrder = "CASE priority WHEN 'Urgencia' THEN 4 WHEN 'Alta' THEN 3 WHEN 'Normal' THEN 2 WHEN 'Baja' THEN 1 ELSE 0 END DESC, created_at ASC, id ASC"

// InsertCall persists c and fills its ID.
func InsertCall(ctx context.Context, db *gorm.DB, c *domain.Call) error {
	return db.WithContext(ctx).Create(c).Error
}

// GetCall fetches a call by id.
func GetCall(ctx context.Context, db *gorm.DB, id int64) (*domain.Call, error) {
	var c domain.Call
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindActiveCall returns the active call for conversationID, or ErrNotFound.
func FindActiveCall(ctx context.Context, db *gorm.DB, conversationID string) (*domain.Call, error) {
	var c domain.Call
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND status = ?", conversationID, domain.StatusActive).
		Order("id desc").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindCallByConversation returns the most recent call for conversationID.
func FindCallByConversation(ctx context.Context, db *gorm.DB, conversationID string) (*domain.Call, error) {
	var c domain.Call
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id desc").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CallEnd carries the columns written when a call ends.
type CallEnd struct {
	EndTime        time.Time
	Duration       int
	Transcript     *string
	AudioURL       *string
	WebhookDataEnd string
}

// EndActiveCall marks the active call for conversationID as ended. Only rows
// with status 'active' match, so ending twice affects zero rows the second
// time.
func EndActiveCall(ctx context.Context, db *gorm.DB, conversationID string, end CallEnd) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Call{}).
		Where("conversation_id = ? AND status = ?", conversationID, domain.StatusActive).
		Updates(map[string]any{
			"status":           domain.StatusEnded,
			"end_time":         end.EndTime,
			"duration":         end.Duration,
			"transcript":       end.Transcript,
			"audio_url":        end.AudioURL,
			"webhook_data_end": end.WebhookDataEnd,
		})
	return res.RowsAffected, res.Error
}

// StatusGuard restricts an update to calls whose current status is in In
// (when set) and not in NotIn (when set). The zero value matches any status.
type StatusGuard struct {
	In    []domain.CallStatus
	NotIn []domain.CallStatus
}

// UpdateCallGuarded applies fields to call id when guard matches and returns
// the number of affected rows.
func UpdateCallGuarded(ctx context.Context, db *gorm.DB, id int64, guard StatusGuard, fields map[string]any) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Call{}).Where("id = ?", id)
	if len(guard.In) > 0 {
		q = q.Where("status IN ?", guard.In)
	}
	if len(guard.NotIn) > 0 {
		q = q.Where("status NOT IN ?", guard.NotIn)
	}
	res := q.Updates(fields)
	return res.RowsAffected, res.Error
}

// ListActiveCalls returns every active call, oldest start first.
func ListActiveCalls(ctx context.Context, db *gorm.DB) ([]domain.Call, error) {
	var out []domain.Call
	err := db.WithContext(ctx).
		Where("status = ?", domain.StatusActive).
		Order("start_time asc").
		Order("id asc").
		Find(&out).Error
	return out, err
}

// ListWaitingCalls returns the waiting queue in service order.
func ListWaitingCalls(ctx context.Context, db *gorm.DB) ([]domain.Call, error) {
	var out []domain.Call
	err := db.WithContext(ctx).
		Where("status = ?", domain.StatusWaiting).
		Order(waitingOrder).
		Find(&out).Error
	return out, err
}

// ListRecentCalls returns up to limit calls in status that started at or
// after since, ordered by orderColumn descending. orderColumn must be one of
// start_time or end_time.
func ListRecentCalls(ctx context.Context, db *gorm.DB, status domain.CallStatus, since time.Time, orderColumn string, limit int) ([]domain.Call, error) {
	if orderColumn != "end_time" {
		orderColumn = "start_time"
	}
	var out []domain.Call
	err := db.WithContext(ctx).
		Where("status = ? AND start_time >= ?", status, since).
		Order(orderColumn + " desc").
		Order("id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountCallsByStatus counts calls currently in status.
func CountCallsByStatus(ctx context.Context, db *gorm.DB, status domain.CallStatus) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Call{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

// CallHistoryFilter narrows the call history. Empty values and "all" disable
// the status and priority filters; Search is a case-insensitive substring
// matched against patient name, patient phone and agent name.
type CallHistoryFilter struct {
	Status   string
	Priority string
	Search   string
}

// scope applies the filter to q.
func (f CallHistoryFilter) scope(q *gorm.DB) *gorm.DB {
	if s := strings.TrimSpace(f.Status); s != "" && s != "all" {
		q = q.Where("status = ?", s)
	}
	if p := strings.TrimSpace(f.Priority); p != "" && p != "all" {
		q = q.Where("priority = ?", p)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		q = q.Where(searchClause(term))
	}
	return q
}

var searchColumns = []string{"patient_name", "patient_phone", "agent_name"}

// searchClause matches term as a case-insensitive substring of any search
// column. SQLite's LOWER and LIKE only fold ASCII, so besides LOWER(col)
// against the lowered term, the raw column is matched against the upper-cased
// and the original term. That covers all-caps accented names.
func searchClause(term string) clause.Expr {
	type variant struct{ expr, value string }
	variants := []variant{{"LOWER(%s)", lower(term)}}
	seen := map[string]bool{lower(term): true}
	for _, v := range []string{upper(term), term} {
		if !seen[v] {
			seen[v] = true
			variants = append(variants, variant{"%s", v})
		}
	}

	var parts []string
	var args []any
	for _, col := range searchColumns {
		for _, v := range variants {
			parts = append(parts, fmt.Sprintf(v.expr, col)+" LIKE ? ESCAPE '!'")
			args = append(args, "%"+escapeLike(v.value)+"%")
		}
	}
	return gorm.Expr("("+strings.Join(parts, " OR ")+")", args...)
}

// CallHistoryPage returns a page of calls matching f, newest start first.
func CallHistoryPage(ctx context.Context, db *gorm.DB, f CallHistoryFilter, limit, offset int) ([]domain.Call, error) {
	var out []domain.Call
	err := f.scope(db.WithContext(ctx).Model(&domain.Call{})).
		Order("start_time desc").
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

// CountCallHistory returns the number of calls matching f.
func CountCallHistory(ctx context.Context, db *gorm.DB, f CallHistoryFilter) (int64, error) {
	var n int64
	err := f.scope(db.WithContext(ctx).Model(&domain.Call{})).Count(&n).Error
	return n, err
}

// escapeLike escapes LIKE wildcards using '!' as the escape character, which
// behaves the same on MySQL and SQLite.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

func lower(s string) string { return cases.Lower(language.Und).String(s) }

func upper(s string) string { return cases.Upper(language.Und).String(s) }
