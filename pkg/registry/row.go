package registry

import (
	"database/sql"
	"time"

	"github.com/codeGROOVE-dev/fediscan/pkg/instance"
)

// row holds the nullable columns of an instances row.
type row struct {
	name              string
	localDomain       sql.NullString
	software          sql.NullString
	version           sql.NullString
	registrationsOpen sql.NullBool
	users             sql.NullInt64
	activeMonth       sql.NullInt64
	activeHalfyear    sql.NullInt64
	localPosts        sql.NullInt64
	uptime            sql.NullFloat64
	lastUpdate        sql.NullTime
	dead              bool
	up                bool
}

func (r *row) instance() *instance.Instance {
	inst := &instance.Instance{
		Host:            r.name,
		LocalDomain:     r.localDomain.String,
		Software:        r.software.String,
		SoftwareVersion: r.version.String,
		Users:           intPtr(r.users),
		ActiveMonth:     intPtr(r.activeMonth),
		ActiveHalfyear:  intPtr(r.activeHalfyear),
		LocalPosts:      intPtr(r.localPosts),
		Dead:            r.dead,
		Up:              r.up,
	}
	if r.registrationsOpen.Valid {
		v := r.registrationsOpen.Bool
		inst.RegistrationsOpen = &v
	}
	if r.uptime.Valid {
		v := r.uptime.Float64
		inst.Uptime = &v
	}
	if r.lastUpdate.Valid {
		inst.LastUpdate = r.lastUpdate.Time
	}
	return inst
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

// instanceArgs returns the UpdateInstance parameters in column order.
func instanceArgs(inst *instance.Instance) []any {
	return []any{
		normalize(inst.Host),
		nullString(inst.LocalDomain),
		nullString(inst.Software),
		nullString(inst.SoftwareVersion),
		inst.RegistrationsOpen,
		inst.Users,
		inst.ActiveMonth,
		inst.ActiveHalfyear,
		inst.LocalPosts,
		inst.Uptime,
		inst.Dead,
		inst.Up,
		nullTime(inst.LastUpdate),
	}
}
