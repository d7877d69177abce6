package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRegisterAndLogin(t *testing.T) {
	r := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/api/admin/register", "", gin.H{"name": "averylongname", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/admin/register", "", gin.H{"name": "root", "password": "pw"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(r, http.MethodPost, "/api/admin/register", "", gin.H{"name": "root", "password": "pw2"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodPost, "/api/admin/login", "", gin.H{"name": "root", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Token string `json:"token"`
	}](t, w)

	w = doJSON(r, http.MethodGet, "/api/admin/users", body.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminEventTypes(t *testing.T) {
	r := setupRouter(t)
	admin := tokenFor(t, 1, RoleAdmin)
	host := seedUser(t, DB, "host")

	w := doJSON(r, http.MethodPost, "/api/admin/event-types", admin, gin.H{"typeName": "karaoke"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, http.MethodPost, "/api/admin/event-types", admin, gin.H{"typeName": "karaoke"})
	assert.Equal(t, http.StatusConflict, w.Code)

	p := &Participation{DB: DB, Now: time.Now}
	in := eventInput(host, withType("karaoke"))
	in.StartTime = time.Now().Add(time.Hour)
	in.EndTime = time.Now().Add(2 * time.Hour)
	_, err := p.CreateEvent(t.Context(), in)
	require.NoError(t, err)

	w = doJSON(r, http.MethodDelete, "/api/admin/event-types/karaoke", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "TYPE_IN_USE", decode[map[string]any](t, w)["code"])

	w = doJSON(r, http.MethodDelete, "/api/admin/event-types/volunteer", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/admin/event-types/volunteer", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodGet, "/api/admin/event-types", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	usage := decode[[]EventTypeUsage](t, w)
	require.NotEmpty(t, usage)
	assert.Equal(t, "karaoke", usage[0].TypeName)
	assert.Equal(t, int64(1), usage[0].EventCount)
}

func TestAdminGroups(t *testing.T) {
	r := setupRouter(t)
	admin := tokenFor(t, 1, RoleAdmin)

	w := doJSON(r, http.MethodPost, "/api/admin/groups", admin, gin.H{"groupName": "EE", "category": "guild"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/admin/groups", admin, gin.H{"groupName": "EE", "category": "department"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[struct {
		GroupID uint `json:"groupId"`
	}](t, w)

	u := seedUser(t, DB, "u")
	w = doJSON(r, http.MethodPost, "/api/users/"+itoa(u.ID)+"/groups", tokenFor(t, u.ID, RoleStudent), gin.H{"groupId": created.GroupID})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/admin/groups", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[[]AdminGroupRow](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].MemberCount)

	w = doJSON(r, http.MethodDelete, "/api/admin/groups/"+itoa(created.GroupID), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var memberships int64
	require.NoError(t, DB.Model(&UserGroup{}).Count(&memberships).Error)
	assert.Zero(t, memberships)
}

func TestAdminDeleteUserKeepsHostedEvents(t *testing.T) {
	r := setupRouter(t)
	admin := tokenFor(t, 1, RoleAdmin)
	host := seedUser(t, DB, "host")
	guest := seedUser(t, DB, "guest")

	p := &Participation{DB: DB, Now: time.Now}
	in := eventInput(host)
	in.StartTime = time.Now().Add(time.Hour)
	in.EndTime = time.Now().Add(2 * time.Hour)
	id, err := p.CreateEvent(t.Context(), in)
	require.NoError(t, err)
	require.NoError(t, p.JoinEvent(t.Context(), id, guest.ID))

	w := doJSON(r, http.MethodDelete, "/api/admin/users/"+itoa(host.ID), admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ev Event
	require.NoError(t, DB.First(&ev, id).Error)
	assert.Nil(t, ev.OwnerID)
	assert.Equal(t, int64(1), confirmedCount(t, DB, id))

	w = doJSON(r, http.MethodDelete, "/api/admin/users/"+itoa(host.ID), admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/admin/events/"+itoa(id), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, confirmedCount(t, DB, id))
}

func TestUserPreferencesAndProfile(t *testing.T) {
	r := setupRouter(t)
	u := seedUser(t, DB, "u")
	other := seedUser(t, DB, "other")
	tok := tokenFor(t, u.ID, RoleStudent)
	base := "/api/users/" + itoa(u.ID)

	w := doJSON(r, http.MethodPost, base+"/preferences", tok, gin.H{"type_name": "music"})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodPost, base+"/preferences", tok, gin.H{"type_name": "music"})
	require.Equal(t, http.StatusOK, w.Code, "adding twice is a no-op")
	w = doJSON(r, http.MethodPost, base+"/preferences", tok, gin.H{"type_name": "karaoke"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/users/"+itoa(other.ID)+"/preferences", tok, gin.H{"type_name": "music"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodGet, base+"/profile", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode[struct {
		Interests []string       `json:"interests"`
		Hosted    []EventSummary `json:"hostedEvents"`
	}](t, w)
	assert.Equal(t, []string{"music"}, profile.Interests)
	assert.Empty(t, profile.Hosted)

	w = doJSON(r, http.MethodDelete, base+"/preferences/music", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodDelete, base+"/preferences/music", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyticsOverview(t *testing.T) {
	r := setupRouter(t)
	host := seedUser(t, DB, "host")
	guest := seedUser(t, DB, "guest")

	p := &Participation{DB: DB, Now: time.Now}
	in := eventInput(host, withCapacity(4))
	in.StartTime = time.Now().Add(time.Hour)
	in.EndTime = time.Now().Add(2 * time.Hour)
	id, err := p.CreateEvent(t.Context(), in)
	require.NoError(t, err)
	require.NoError(t, p.JoinEvent(t.Context(), id, guest.ID))

	admin := tokenFor(t, 1, RoleAdmin)
	w := doJSON(r, http.MethodGet, "/api/admin/analytics/overview", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	o := decode[Overview](t, w)
	assert.Equal(t, int64(2), o.TotalUsers)
	assert.Equal(t, int64(1), o.TotalEvents)
	assert.Equal(t, int64(2), o.TotalParticipations)
	assert.Equal(t, int64(4), o.TotalCapacity)
	assert.InDelta(t, 50.0, o.AvgParticipationRate, 0.001)

	w = doJSON(r, http.MethodGet, "/api/admin/analytics/top-hosts", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	hosts := decode[[]HostStats](t, w)
	require.Len(t, hosts, 1)
	assert.Equal(t, host.ID, hosts[0].UserID)
	assert.Equal(t, int64(2), hosts[0].TotalParticipants)

	w = doJSON(r, http.MethodGet, "/api/admin/analytics/user-activity?days=0", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
