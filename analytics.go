package main

import (
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type Overview struct {
	TotalUsers           int64   `json:"totalUsers"`
	TotalEvents          int64   `json:"totalEvents"`
	TotalGroups          int64   `json:"totalGroups"`
	GroupEvents          int64   `json:"groupEvents"`
	TotalParticipations  int64   `json:"totalParticipations"`
	TotalCapacity        int64   `json:"totalCapacity"`
	AvgParticipationRate float64 `json:"avgParticipationRate"`
	ThisMonthEvents      int64   `json:"thisMonthEvents"`
	ThisMonthActiveUsers int64   `json:"thisMonthActiveUsers"`
}

type TypeStats struct {
	Type          string  `json:"type"`
	EventCount    int64   `json:"event_count"`
	TotalCapacity int64   `json:"total_capacity"`
	UniqueHosts   int64   `json:"unique_hosts"`
	AvgCapacity   float64 `json:"avg_capacity"`
}

type GroupParticipation struct {
	GroupName     string `json:"group_name"`
	GroupID       uint   `json:"group_id"`
	EventCount    int64  `json:"event_count"`
	MemberCount   int64  `json:"member_count"`
	ActiveMembers int64  `json:"active_members"`
}

type DailyActivity struct {
	Date        string `json:"date"`
	ActiveUsers int    `json:"active_users"`
	TotalJoins  int    `json:"total_joins"`
}

type VenueUsage struct {
	VenueID      uint    `json:"venue_id"`
	VenueName    string  `json:"venue_name"`
	Building     string  `json:"building"`
	Location     string  `json:"location"`
	BookingCount int64   `json:"booking_count"`
	UsageRate    float64 `json:"usage_rate"`
}

type HostStats struct {
	UserID            uint    `json:"user_id"`
	Name              string  `json:"name"`
	EventsHosted      int64   `json:"events_hosted"`
	TotalParticipants int64   `json:"total_participants"`
	AvgCapacity       float64 `json:"avg_capacity"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func AnalyticsOverview(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()
	db := DB.WithContext(ctx)

	var o Overview
	from := monthStart(timeNow())
	to := from.AddDate(0, 1, 0)

	steps := []struct {
		name string
		run  func() error
	}{
		{"users", func() error { return db.Model(&User{}).Count(&o.TotalUsers).Error }},
		{"events", func() error { return db.Model(&Event{}).Count(&o.TotalEvents).Error }},
		{"groups", func() error { return db.Model(&Group{}).Count(&o.TotalGroups).Error }},
		{"group events", func() error {
			return db.Model(&Event{}).Where("group_id IS NOT NULL").Count(&o.GroupEvents).Error
		}},
		{"participations", func() error { return db.Model(&JoinRecord{}).Count(&o.TotalParticipations).Error }},
		{"capacity", func() error {
			return db.Model(&Event{}).Select("COALESCE(SUM(capacity), 0)").Scan(&o.TotalCapacity).Error
		}},
		{"month events", func() error {
			return db.Model(&Event{}).Where("start_time >= ? AND start_time < ?", from, to).Count(&o.ThisMonthEvents).Error
		}},
		{"month users", func() error {
			return db.Model(&JoinRecord{}).Where("join_time >= ? AND join_time < ?", from, to).
				Distinct("user_id").Count(&o.ThisMonthActiveUsers).Error
		}},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			writeError(c, storeError("overview "+s.name, err))
			return
		}
	}
	if o.TotalCapacity > 0 {
		o.AvgParticipationRate = math.Round(float64(o.TotalParticipations)/float64(o.TotalCapacity)*1000) / 10
	}
	c.JSON(http.StatusOK, o)
}

func AnalyticsEventsByType(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	q := DB.WithContext(ctx).Model(&Event{}).
		Select(`type_name AS type, COUNT(*) AS event_count, COALESCE(SUM(capacity), 0) AS total_capacity,
			COUNT(DISTINCT owner_id) AS unique_hosts, AVG(capacity) AS avg_capacity`)
	if raw := c.Query("startDate"); raw != "" {
		start, err := parseDate("startDate", raw)
		if err != nil {
			writeError(c, err)
			return
		}
		q = q.Where("start_time >= ?", start)
	}
	if raw := c.Query("endDate"); raw != "" {
		end, err := parseDate("endDate", raw)
		if err != nil {
			writeError(c, err)
			return
		}
		// include whole day
		q = q.Where("start_time < ?", end.AddDate(0, 0, 1))
	}

	rows := make([]TypeStats, 0)
	if err := q.Group("type_name").Order("event_count DESC").Scan(&rows).Error; err != nil {
		writeError(c, storeError("events by type", err))
		return
	}
	for i := range rows {
		rows[i].AvgCapacity = round2(rows[i].AvgCapacity)
	}
	c.JSON(http.StatusOK, rows)
}

func AnalyticsGroupParticipation(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	rows := make([]GroupParticipation, 0)
	err := DB.WithContext(ctx).Table(`"groups" AS g`).
		Select(`g.name AS group_name, g.id AS group_id,
			COUNT(DISTINCT e.id) AS event_count,
			COUNT(DISTINCT ug.user_id) AS member_count,
			COUNT(DISTINCT jr.user_id) AS active_members`).
		Joins("LEFT JOIN events e ON e.group_id = g.id").
		Joins("LEFT JOIN user_groups ug ON ug.group_id = g.id").
		Joins("LEFT JOIN join_records jr ON jr.event_id = e.id").
		Group("g.id, g.name").
		Having("COUNT(DISTINCT e.id) > 0 OR COUNT(DISTINCT ug.user_id) > 0").
		Order("event_count DESC").
		Scan(&rows).Error
	if err != nil {
		writeError(c, storeError("group participation", err))
		return
	}
	c.JSON(http.StatusOK, rows)
}

// AnalyticsUserActivity buckets joins per UTC day over the last ?days=N days.
func AnalyticsUserActivity(c *gin.Context) {
	days := 30
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 366 {
			writeError(c, validationError("days must be between 1 and 366"))
			return
		}
		days = n
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	today := timeNow().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -days)

	var joins []JoinRecord
	if err := DB.WithContext(ctx).Select("user_id, join_time").
		Where("join_time >= ?", since).Find(&joins).Error; err != nil {
		writeError(c, storeError("user activity", err))
		return
	}

	type bucket struct {
		users map[uint]struct{}
		total int
	}
	buckets := make(map[string]*bucket)
	for _, j := range joins {
		day := j.JoinTime.UTC().Format("2006-01-02")
		b, ok := buckets[day]
		if !ok {
			b = &bucket{users: make(map[uint]struct{})}
			buckets[day] = b
		}
		b.users[j.UserID] = struct{}{}
		b.total++
	}

	out := make([]DailyActivity, 0, len(buckets))
	for day, b := range buckets {
		out = append(out, DailyActivity{Date: day, ActiveUsers: len(b.users), TotalJoins: b.total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	c.JSON(http.StatusOK, out)
}

func AnalyticsCapacityStats(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()
	db := DB.WithContext(ctx)

	var total int64
	if err := db.Model(&Event{}).Count(&total).Error; err != nil {
		writeError(c, storeError("capacity stats", err))
		return
	}

	rows := make([]VenueUsage, 0)
	err := db.Table("venues AS v").
		Select("v.id AS venue_id, v.name AS venue_name, v.building, v.location, COUNT(e.id) AS booking_count").
		Joins("LEFT JOIN events e ON e.venue_id = v.id").
		Group("v.id, v.name, v.building, v.location").
		Order("booking_count DESC, v.id ASC").
		Limit(20).
		Scan(&rows).Error
	if err != nil {
		writeError(c, storeError("capacity stats", err))
		return
	}
	if total > 0 {
		for i := range rows {
			rows[i].UsageRate = round2(float64(rows[i].BookingCount) / float64(total) * 100)
		}
	}
	c.JSON(http.StatusOK, rows)
}

func AnalyticsTopHosts(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	rows := make([]HostStats, 0)
	err := DB.WithContext(ctx).Table("users AS u").
		Select(`u.id AS user_id, u.name,
			COUNT(DISTINCT e.id) AS events_hosted,
			COUNT(DISTINCT jr.user_id) AS total_participants,
			(SELECT AVG(h.capacity) FROM events h WHERE h.owner_id = u.id) AS avg_capacity`).
		Joins("JOIN events e ON e.owner_id = u.id").
		Joins("LEFT JOIN join_records jr ON jr.event_id = e.id").
		Group("u.id, u.name").
		Order("events_hosted DESC, u.id ASC").
		Limit(10).
		Scan(&rows).Error
	if err != nil {
		writeError(c, storeError("top hosts", err))
		return
	}
	for i := range rows {
		rows[i].AvgCapacity = round2(rows[i].AvgCapacity)
	}
	c.JSON(http.StatusOK, rows)
}

func AnalyticsClickEvents(c *gin.Context) {
	if Clicks == nil {
		writeError(c, &AppError{Kind: KindTransient, Code: CodeStoreUnavailable, Message: "telemetry is disabled", Err: errTelemetryDisabled})
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	data, err := Clicks.DailyCounts(ctx, timeNow().AddDate(0, 0, -30))
	if err != nil {
		writeError(c, &AppError{Kind: KindInternal, Code: CodeInternal, Message: "failed to fetch click events", Err: err})
		return
	}
	c.JSON(http.StatusOK, data)
}

type TrackRequest struct {
	UserID        string `json:"userId"`
	TrackingLabel string `json:"trackingLabel"`
	ElementID     string `json:"elementId"`
}

// TrackClick appends a click to the telemetry store. The participation
// core never reads it.
func TrackClick(c *gin.Context) {
	var body TrackRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, validationError("invalid request: "+err.Error()))
		return
	}
	body.UserID = strings.TrimSpace(body.UserID)
	body.TrackingLabel = strings.TrimSpace(body.TrackingLabel)
	if body.UserID == "" || body.TrackingLabel == "" {
		writeError(c, validationError("userId and trackingLabel are required"))
		return
	}
	if Clicks == nil {
		writeError(c, &AppError{Kind: KindTransient, Code: CodeStoreUnavailable, Message: "telemetry is disabled", Err: errTelemetryDisabled})
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := Clicks.Record(ctx, ClickEvent{
		UserID:        body.UserID,
		Timestamp:     timeNow(),
		EventType:     "click",
		TrackingLabel: body.TrackingLabel,
		ElementID:     strings.TrimSpace(body.ElementID),
	})
	if err != nil {
		writeError(c, &AppError{Kind: KindInternal, Code: CodeInternal, Message: "failed to record click", Err: err})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

func parseDate(field, raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, validationError("invalid " + field + " (use YYYY-MM-DD)")
}
