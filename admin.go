package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type EventTypeUsage struct {
	TypeName   string `json:"type_name"`
	EventCount int64  `json:"event_count"`
}

type AdminGroupRow struct {
	GroupID     uint   `json:"group_id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	MemberCount int64  `json:"member_count"`
	EventCount  int64  `json:"event_count"`
}

type AdminUserRow struct {
	ID          uint   `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Sex         string `json:"sex"`
	Phone       string `json:"phone"`
	HostedCount int64  `json:"hosted_count"`
	JoinedCount int64  `json:"joined_count"`
}

// -----------------------------
// Event types
// -----------------------------

func AdminListEventTypes(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	rows := make([]EventTypeUsage, 0)
	err := DB.WithContext(ctx).Table("event_types AS et").
		Select("et.name AS type_name, COUNT(e.id) AS event_count").
		Joins("LEFT JOIN events e ON e.type_name = et.name").
		Group("et.name").
		Order("event_count DESC, et.name ASC").
		Scan(&rows).Error
	if err != nil {
		writeError(c, storeError("list event types", err))
		return
	}
	c.JSON(http.StatusOK, rows)
}

type AddEventTypeRequest struct {
	TypeName string `json:"typeName" binding:"required"`
}

func AdminAddEventType(c *gin.Context) {
	var body AddEventTypeRequest
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.TypeName) == "" {
		writeError(c, validationError("typeName must not be empty"))
		return
	}
	name := strings.TrimSpace(body.TypeName)

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := DB.WithContext(ctx).Create(&EventType{Name: name}).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeError(c, newError(KindConflict, "TYPE_EXISTS", "event type already exists"))
			return
		}
		writeError(c, storeError("add event type", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "event type " + name + " added"})
}

func AdminDeleteEventType(c *gin.Context) {
	name := c.Param("name")
	ctx, cancel := requestContext(c)
	defer cancel()

	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inUse int64
		if err := tx.Model(&Event{}).Where("type_name = ?", name).Count(&inUse).Error; err != nil {
			return err
		}
		if inUse > 0 {
			return newError(KindConflict, "TYPE_IN_USE", "event type is still used by events")
		}
		if err := tx.Where("type_name = ?", name).Delete(&Preference{}).Error; err != nil {
			return err
		}
		res := tx.Where("name = ?", name).Delete(&EventType{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newError(KindNotFound, "TYPE_NOT_FOUND", "event type not found")
		}
		return nil
	})
	if err != nil {
		writeError(c, storeError("delete event type", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "event type deleted"})
}

// -----------------------------
// Groups
// -----------------------------

func AdminListGroups(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	rows := make([]AdminGroupRow, 0)
	err := DB.WithContext(ctx).Table(`"groups" AS g`).
		Select(`g.id AS group_id, g.name, g.category,
			COUNT(DISTINCT ug.user_id) AS member_count,
			COUNT(DISTINCT e.id) AS event_count`).
		Joins("LEFT JOIN user_groups ug ON ug.group_id = g.id").
		Joins("LEFT JOIN events e ON e.group_id = g.id").
		Group("g.id, g.name, g.category").
		Order("g.name").
		Scan(&rows).Error
	if err != nil {
		writeError(c, storeError("list groups", err))
		return
	}
	c.JSON(http.StatusOK, rows)
}

type AddGroupRequest struct {
	GroupName string `json:"groupName" binding:"required"`
	Category  string `json:"category"`
}

func AdminAddGroup(c *gin.Context) {
	var body AddGroupRequest
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.GroupName) == "" {
		writeError(c, validationError("groupName must not be empty"))
		return
	}
	category := strings.TrimSpace(body.Category)
	switch category {
	case "":
		category = "club"
	case "department", "dorm", "club":
	default:
		writeError(c, validationError("category must be department, dorm or club"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	group := Group{Name: strings.TrimSpace(body.GroupName), Category: category}
	if err := DB.WithContext(ctx).Create(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeError(c, newError(KindConflict, "GROUP_EXISTS", "group name already exists"))
			return
		}
		writeError(c, storeError("add group", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "groupId": group.ID})
}

func AdminDeleteGroup(c *gin.Context) {
	groupID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var restricted int64
		if err := tx.Model(&Event{}).Where("group_id = ?", groupID).Count(&restricted).Error; err != nil {
			return err
		}
		if restricted > 0 {
			return newError(KindConflict, "GROUP_IN_USE", "group still restricts events")
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&UserGroup{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Group{}, groupID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newError(KindNotFound, CodeGroupNotFound, "group not found")
		}
		return nil
	})
	if err != nil {
		writeError(c, storeError("delete group", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "group deleted"})
}

// -----------------------------
// Users
// -----------------------------

func AdminListUsers(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	rows := make([]AdminUserRow, 0)
	err := DB.WithContext(ctx).Table("users AS u").
		Select(`u.id, u.name, u.email, u.sex, u.phone,
			COUNT(DISTINCT e.id) AS hosted_count,
			COUNT(DISTINCT jr.event_id) AS joined_count`).
		Joins("LEFT JOIN events e ON e.owner_id = u.id").
		Joins("LEFT JOIN join_records jr ON jr.user_id = u.id").
		Group("u.id, u.name, u.email, u.sex, u.phone").
		Order("u.id").
		Scan(&rows).Error
	if err != nil {
		writeError(c, storeError("list users", err))
		return
	}
	c.JSON(http.StatusOK, rows)
}

// AdminDeleteUser removes a user and every row that references them in one
// transaction. Owned events survive with no owner.
func AdminDeleteUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&JoinRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&UserGroup{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&Preference{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&Event{}).Where("owner_id = ?", userID).Update("owner_id", nil).Error; err != nil {
			return err
		}
		res := tx.Delete(&User{}, userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newError(KindNotFound, CodeUserNotFound, "user not found")
		}
		return nil
	})
	if err != nil {
		writeError(c, storeError("delete user", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "user deleted"})
}

// -----------------------------
// Events
// -----------------------------

func AdminListEvents(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()
	now := timeNow()

	events := make([]EventSummary, 0)
	if err := summaryQuery(DB.WithContext(ctx)).Order("e.start_time DESC, e.id DESC").Scan(&events).Error; err != nil {
		writeError(c, storeError("list events", err))
		return
	}
	for i := range events {
		events[i] = events[i].withEffectiveStatus(now)
	}
	c.JSON(http.StatusOK, events)
}

func AdminDeleteEvent(c *gin.Context) {
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", eventID).Delete(&JoinRecord{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Event{}, eventID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errEventNotFound()
		}
		return nil
	})
	if err != nil {
		writeError(c, storeError("delete event", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "event deleted"})
}
